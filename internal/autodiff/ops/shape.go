package ops

import "github.com/born-ml/stylize/internal/tensor"

// ReshapeOp represents a change of shape that keeps element order.
type ReshapeOp struct{ node }

// NewReshapeOp creates a new ReshapeOp.
func NewReshapeOp(input, output *tensor.RawTensor) *ReshapeOp {
	return &ReshapeOp{newNode(output, input)}
}

// Backward reshapes the gradient back to the input shape.
func (op *ReshapeOp) Backward(outputGrad *tensor.RawTensor, _ []bool, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{backend.Reshape(outputGrad, op.inputs[0].Shape())}
}

// TransposeOp represents an axis permutation.
type TransposeOp struct {
	node
	axes []int
}

// NewTransposeOp creates a new TransposeOp. Empty axes means reversed axes.
func NewTransposeOp(input, output *tensor.RawTensor, axes []int) *TransposeOp {
	ndim := len(input.Shape())
	perm := append([]int(nil), axes...)
	if len(perm) == 0 {
		perm = make([]int, ndim)
		for i := range perm {
			perm[i] = ndim - 1 - i
		}
	}
	return &TransposeOp{node: newNode(output, input), axes: perm}
}

// Backward applies the inverse permutation to the gradient.
func (op *TransposeOp) Backward(outputGrad *tensor.RawTensor, _ []bool, backend tensor.Backend) []*tensor.RawTensor {
	inverse := make([]int, len(op.axes))
	for i, ax := range op.axes {
		inverse[ax] = i
	}
	return []*tensor.RawTensor{backend.Transpose(outputGrad, inverse...)}
}

// SumOp represents the total sum of a tensor.
type SumOp struct{ node }

// NewSumOp creates a new SumOp.
func NewSumOp(input, output *tensor.RawTensor) *SumOp {
	return &SumOp{newNode(output, input)}
}

// Backward broadcasts the scalar gradient to every input element.
func (op *SumOp) Backward(outputGrad *tensor.RawTensor, _ []bool, _ tensor.Backend) []*tensor.RawTensor {
	in := op.inputs[0]
	return []*tensor.RawTensor{filled(in.Shape(), outputGrad.Data()[0], in.Device())}
}
