package ops

import "github.com/born-ml/stylize/internal/tensor"

// MatMulOp represents output = A @ B for 2D matrices.
//
// Backward pass:
//   - grad_A = grad @ Bᵀ
//   - grad_B = Aᵀ @ grad
type MatMulOp struct{ node }

// NewMatMulOp creates a new MatMulOp.
func NewMatMulOp(a, b, output *tensor.RawTensor) *MatMulOp {
	return &MatMulOp{newNode(output, a, b)}
}

// Backward computes input gradients for matrix multiplication.
func (op *MatMulOp) Backward(outputGrad *tensor.RawTensor, needs []bool, backend tensor.Backend) []*tensor.RawTensor {
	a, b := op.inputs[0], op.inputs[1]
	grads := make([]*tensor.RawTensor, 2)
	if needs[0] {
		grads[0] = backend.MatMul(outputGrad, backend.Transpose(b))
	}
	if needs[1] {
		grads[1] = backend.MatMul(backend.Transpose(a), outputGrad)
	}
	return grads
}
