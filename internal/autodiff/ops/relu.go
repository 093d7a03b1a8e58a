package ops

import "github.com/born-ml/stylize/internal/tensor"

// ReLUOp represents output = max(0, x).
//
// The gradient is the output gradient masked to the positions where the
// input was positive.
type ReLUOp struct{ node }

// NewReLUOp creates a new ReLUOp.
func NewReLUOp(input, output *tensor.RawTensor) *ReLUOp {
	return &ReLUOp{newNode(output, input)}
}

// Backward computes input gradient for ReLU.
func (op *ReLUOp) Backward(outputGrad *tensor.RawTensor, _ []bool, backend tensor.Backend) []*tensor.RawTensor {
	input := op.inputs[0]
	mask := tensor.MustRaw(input.Shape(), input.Device())
	maskData := mask.Data()
	for i, v := range input.Data() {
		if v > 0 {
			maskData[i] = 1
		}
	}
	return []*tensor.RawTensor{backend.Mul(outputGrad, mask)}
}
