package ops

import "github.com/born-ml/stylize/internal/tensor"

// Conv2DOp records a 2D convolution.
//
// Backward pass:
//   - Input gradient: transposed convolution of grad with the kernel
//   - Kernel gradient: correlation of the input with grad
//
// Frozen feature extractors only need the input gradient, so each side is
// computed only when requested.
type Conv2DOp struct {
	node
	stride  int
	padding int
}

// NewConv2DOp creates a new Conv2DOp.
func NewConv2DOp(input, kernel, output *tensor.RawTensor, stride, padding int) *Conv2DOp {
	return &Conv2DOp{node: newNode(output, input, kernel), stride: stride, padding: padding}
}

// Backward computes gradients for the input and kernel.
func (op *Conv2DOp) Backward(outputGrad *tensor.RawTensor, needs []bool, backend tensor.Backend) []*tensor.RawTensor {
	input, kernel := op.inputs[0], op.inputs[1]
	grads := make([]*tensor.RawTensor, 2)
	if needs[0] {
		grads[0] = backend.Conv2DInputBackward(input, kernel, outputGrad, op.stride, op.padding)
	}
	if needs[1] {
		grads[1] = backend.Conv2DKernelBackward(input, kernel, outputGrad, op.stride, op.padding)
	}
	return grads
}

// MaxPool2DOp records a max pooling operation.
// Gradients flow only to the position that won each pooling window.
type MaxPool2DOp struct {
	node
	kernelSize int
	stride     int
}

// NewMaxPool2DOp creates a new MaxPool2DOp.
func NewMaxPool2DOp(input, output *tensor.RawTensor, kernelSize, stride int) *MaxPool2DOp {
	return &MaxPool2DOp{node: newNode(output, input), kernelSize: kernelSize, stride: stride}
}

// Backward routes the gradient to the max positions.
func (op *MaxPool2DOp) Backward(outputGrad *tensor.RawTensor, _ []bool, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{backend.MaxPool2DBackward(op.inputs[0], outputGrad, op.kernelSize, op.stride)}
}
