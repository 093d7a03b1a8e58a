package cpu

import (
	"fmt"

	"github.com/born-ml/stylize/internal/tensor"
)

// Add performs element-wise addition with NumPy-style broadcasting.
func (cpu *CPUBackend) Add(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binary("add", a, b, func(x, y float32) float32 { return x + y })
}

// Sub performs element-wise subtraction with broadcasting.
func (cpu *CPUBackend) Sub(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binary("sub", a, b, func(x, y float32) float32 { return x - y })
}

// Mul performs element-wise multiplication with broadcasting.
func (cpu *CPUBackend) Mul(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binary("mul", a, b, func(x, y float32) float32 { return x * y })
}

// Div performs element-wise division with broadcasting.
func (cpu *CPUBackend) Div(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binary("div", a, b, func(x, y float32) float32 { return x / y })
}

// MulScalar multiplies every element by scalar.
func (cpu *CPUBackend) MulScalar(x *tensor.RawTensor, scalar float32) *tensor.RawTensor {
	return cpu.unary(x, func(v float32) float32 { return v * scalar })
}

// AddScalar adds scalar to every element.
func (cpu *CPUBackend) AddScalar(x *tensor.RawTensor, scalar float32) *tensor.RawTensor {
	return cpu.unary(x, func(v float32) float32 { return v + scalar })
}

// ReLU applies max(0, x) element-wise.
func (cpu *CPUBackend) ReLU(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unary(x, func(v float32) float32 {
		if v > 0 {
			return v
		}
		return 0
	})
}

// Sum returns the sum of all elements as a scalar tensor.
// Accumulation runs in float64.
func (cpu *CPUBackend) Sum(x *tensor.RawTensor) *tensor.RawTensor {
	var sum float64
	for _, v := range x.Data() {
		sum += float64(v)
	}
	result := cpu.alloc(tensor.Shape{})
	result.Data()[0] = float32(sum)
	return result
}

func (cpu *CPUBackend) unary(x *tensor.RawTensor, f func(float32) float32) *tensor.RawTensor {
	result := cpu.alloc(x.Shape())
	dst := result.Data()
	for i, v := range x.Data() {
		dst[i] = f(v)
	}
	return result
}

func (cpu *CPUBackend) binary(op string, a, b *tensor.RawTensor, f func(x, y float32) float32) *tensor.RawTensor {
	outShape, needsBroadcast, err := tensor.BroadcastShapes(a.Shape(), b.Shape())
	if err != nil {
		panic(fmt.Sprintf("%s: %v", op, err))
	}

	result := cpu.alloc(outShape)
	dst := result.Data()
	aData, bData := a.Data(), b.Data()

	if !needsBroadcast {
		for i := range dst {
			dst[i] = f(aData[i], bData[i])
		}
		return result
	}

	aStrides := broadcastStrides(a.Shape(), outShape)
	bStrides := broadcastStrides(b.Shape(), outShape)
	index := make([]int, len(outShape))
	aIdx, bIdx := 0, 0
	for i := range dst {
		dst[i] = f(aData[aIdx], bData[bIdx])

		// Advance the multi-index like an odometer, keeping both source
		// offsets in sync.
		for d := len(outShape) - 1; d >= 0; d-- {
			index[d]++
			aIdx += aStrides[d]
			bIdx += bStrides[d]
			if index[d] < outShape[d] {
				break
			}
			aIdx -= aStrides[d] * outShape[d]
			bIdx -= bStrides[d] * outShape[d]
			index[d] = 0
		}
	}
	return result
}

// broadcastStrides returns strides of src laid out against out, with zero
// strides on broadcast dimensions.
func broadcastStrides(src, out tensor.Shape) []int {
	strides := make([]int, len(out))
	srcStrides := src.ComputeStrides()
	offset := len(out) - len(src)
	for d := range out {
		sd := d - offset
		if sd < 0 || src[sd] == 1 {
			continue
		}
		strides[d] = srcStrides[sd]
	}
	return strides
}
