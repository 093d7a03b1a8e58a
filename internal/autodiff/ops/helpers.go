package ops

import (
	"fmt"

	"github.com/born-ml/stylize/internal/tensor"
)

// reduceBroadcast sums a gradient back down to the shape of an input that
// was broadcast in the forward pass.
//
// Example:
//
//	Forward: a[1,3,1,1] - b[1,3,8,8] -> c[1,3,8,8]  (a was broadcast on H, W)
//	Backward: grad_c[1,3,8,8] -> grad_a[1,3,1,1]  (sum over H, W)
func reduceBroadcast(grad *tensor.RawTensor, target tensor.Shape) *tensor.RawTensor {
	gradShape := grad.Shape()
	if gradShape.Equal(target) {
		return grad
	}
	if len(target) > len(gradShape) {
		panic(fmt.Sprintf("reduceBroadcast: target %v has more dimensions than gradient %v", target, gradShape))
	}

	result := tensor.MustRaw(target, grad.Device())
	dst := result.Data()

	// Stride into the target for each gradient dimension; zero on
	// dimensions that were broadcast.
	targetStrides := target.ComputeStrides()
	offset := len(gradShape) - len(target)
	strides := make([]int, len(gradShape))
	for d := range gradShape {
		td := d - offset
		if td < 0 || target[td] == 1 {
			continue
		}
		strides[d] = targetStrides[td]
	}

	index := make([]int, len(gradShape))
	dstIdx := 0
	for _, v := range grad.Data() {
		dst[dstIdx] += v
		for d := len(gradShape) - 1; d >= 0; d-- {
			index[d]++
			dstIdx += strides[d]
			if index[d] < gradShape[d] {
				break
			}
			dstIdx -= strides[d] * gradShape[d]
			index[d] = 0
		}
	}
	return result
}

// filled returns a tensor of the given shape with every element set to v.
func filled(shape tensor.Shape, v float32, device tensor.Device) *tensor.RawTensor {
	r := tensor.MustRaw(shape, device)
	data := r.Data()
	for i := range data {
		data[i] = v
	}
	return r
}
