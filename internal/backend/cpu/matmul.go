package cpu

import (
	"fmt"

	"github.com/born-ml/stylize/internal/parallel"
	"github.com/born-ml/stylize/internal/tensor"
)

// MatMul performs matrix multiplication.
// For 2D tensors: (M, K) @ (K, N) -> (M, N)
func (cpu *CPUBackend) MatMul(a, b *tensor.RawTensor) *tensor.RawTensor {
	aShape := a.Shape()
	bShape := b.Shape()

	if len(aShape) != 2 || len(bShape) != 2 {
		panic(fmt.Sprintf("matmul: only 2D tensors supported, got %dD and %dD", len(aShape), len(bShape)))
	}

	m, k := aShape[0], aShape[1]
	kAlt, n := bShape[0], bShape[1]
	if k != kAlt {
		panic(fmt.Sprintf("matmul: shape mismatch [%d,%d] @ [%d,%d]", m, k, kAlt, n))
	}

	result := cpu.alloc(tensor.Shape{m, n})
	cpu.gemm(result.Data(), a.Data(), b.Data(), m, k, n)
	return result
}

// gemm computes c = a @ b for row-major matrices, preferring the
// accelerator for large enough products.
func (cpu *CPUBackend) gemm(c, a, b []float32, m, k, n int) {
	if cpu.accel != nil && m*k*n >= cpu.accelMinWork {
		out, err := cpu.accel.MatMul(a, b, m, k, n)
		if err == nil && len(out) == m*n {
			copy(c, out)
			return
		}
		cpu.accelFailed.Add(1)
	}
	gemmFloat32(c, a, b, m, k, n, cpu.par)
}

// gemmFloat32 is a row-parallel i-k-j matrix product.
// The inner loop streams through contiguous rows of b and c.
func gemmFloat32(c, a, b []float32, m, k, n int, cfg parallel.Config) {
	parallel.Range(m, cfg, func(lo, hi int) {
		for i := lo; i < hi; i++ {
			row := c[i*n : (i+1)*n]
			for j := range row {
				row[j] = 0
			}
			for kIdx := 0; kIdx < k; kIdx++ {
				aik := a[i*k+kIdx]
				if aik == 0 {
					continue
				}
				bRow := b[kIdx*n : (kIdx+1)*n]
				for j, bv := range bRow {
					row[j] += aik * bv
				}
			}
		}
	})
}
