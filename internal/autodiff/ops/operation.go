// Package ops defines the differentiable operations recorded on the
// gradient tape.
//
// Each operation remembers its inputs and output during the forward pass
// and maps an output gradient to input gradients during the backward pass.
//
// Supported operations:
//   - AddOp, SubOp, MulOp, DivOp: element-wise arithmetic with broadcasting
//   - ScaleOp, ShiftOp: multiplication and addition by a constant
//   - MatMulOp: d(A@B)/dA = grad@Bᵀ, d(A@B)/dB = Aᵀ@grad
//   - ReshapeOp, TransposeOp: shape changes
//   - SumOp: total reduction to a scalar
//   - ReLUOp: d(ReLU(x))/dx = 1 if x > 0, else 0
//   - Conv2DOp, MaxPool2DOp: convolutional stages
package ops

import "github.com/born-ml/stylize/internal/tensor"

// Operation represents a differentiable operation in the computation graph.
type Operation interface {
	// Backward computes gradients for inputs given the output gradient.
	// needs[i] reports whether input i requires a gradient; operations may
	// return nil for inputs that do not.
	Backward(outputGrad *tensor.RawTensor, needs []bool, backend tensor.Backend) []*tensor.RawTensor

	// Inputs returns the input tensors for this operation.
	Inputs() []*tensor.RawTensor

	// Output returns the output tensor produced by this operation.
	Output() *tensor.RawTensor
}

// node holds the bookkeeping shared by every operation.
type node struct {
	inputs []*tensor.RawTensor
	output *tensor.RawTensor
}

// Inputs returns the input tensors.
func (n *node) Inputs() []*tensor.RawTensor {
	return n.inputs
}

// Output returns the output tensor.
func (n *node) Output() *tensor.RawTensor {
	return n.output
}

func newNode(output *tensor.RawTensor, inputs ...*tensor.RawTensor) node {
	return node{inputs: inputs, output: output}
}
