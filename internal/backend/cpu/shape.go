package cpu

import (
	"fmt"

	"github.com/born-ml/stylize/internal/tensor"
)

// Reshape returns a copy of t with a different shape.
// The new shape must have the same number of elements.
func (cpu *CPUBackend) Reshape(t *tensor.RawTensor, newShape tensor.Shape) *tensor.RawTensor {
	if err := newShape.Validate(); err != nil {
		panic(fmt.Sprintf("reshape: invalid shape: %v", err))
	}
	if t.NumElements() != newShape.NumElements() {
		panic(fmt.Sprintf("reshape: incompatible shapes: %v -> %v (different number of elements)",
			t.Shape(), newShape))
	}

	result := cpu.alloc(newShape)
	copy(result.Data(), t.Data())
	return result
}

// Transpose permutes the tensor's dimensions. Without axes it reverses them.
func (cpu *CPUBackend) Transpose(t *tensor.RawTensor, axes ...int) *tensor.RawTensor {
	shape := t.Shape()
	ndim := len(shape)

	if len(axes) == 0 {
		axes = make([]int, ndim)
		for i := range axes {
			axes[i] = ndim - 1 - i
		}
	}
	if len(axes) != ndim {
		panic(fmt.Sprintf("transpose: axes length %d != ndim %d", len(axes), ndim))
	}
	seen := make([]bool, ndim)
	for _, ax := range axes {
		if ax < 0 || ax >= ndim {
			panic(fmt.Sprintf("transpose: invalid axis %d for %dD tensor", ax, ndim))
		}
		if seen[ax] {
			panic(fmt.Sprintf("transpose: duplicate axis %d", ax))
		}
		seen[ax] = true
	}

	newShape := make(tensor.Shape, ndim)
	for i, ax := range axes {
		newShape[i] = shape[ax]
	}
	result := cpu.alloc(newShape)

	if ndim == 2 && axes[0] == 1 {
		transpose2D(result.Data(), t.Data(), shape[0], shape[1])
		return result
	}

	srcStrides := t.Strides()
	// Source stride for each destination dimension.
	stepFor := make([]int, ndim)
	for i, ax := range axes {
		stepFor[i] = srcStrides[ax]
	}
	src := t.Data()
	index := make([]int, ndim)
	srcIdx := 0
	for i := range result.Data() {
		result.Data()[i] = src[srcIdx]
		for d := ndim - 1; d >= 0; d-- {
			index[d]++
			srcIdx += stepFor[d]
			if index[d] < newShape[d] {
				break
			}
			srcIdx -= stepFor[d] * newShape[d]
			index[d] = 0
		}
	}
	return result
}

// transpose2D writes the (cols, rows) transpose of a row-major (rows, cols)
// matrix into dst.
func transpose2D(dst, src []float32, rows, cols int) {
	for r := 0; r < rows; r++ {
		row := src[r*cols : (r+1)*cols]
		for c, v := range row {
			dst[c*rows+r] = v
		}
	}
}
