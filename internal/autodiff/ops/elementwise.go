package ops

import "github.com/born-ml/stylize/internal/tensor"

// AddOp represents output = a + b.
// Gradients flow unchanged to both inputs, summed over broadcast dimensions.
type AddOp struct{ node }

// NewAddOp creates a new AddOp.
func NewAddOp(a, b, output *tensor.RawTensor) *AddOp {
	return &AddOp{newNode(output, a, b)}
}

// Backward computes input gradients for addition.
func (op *AddOp) Backward(outputGrad *tensor.RawTensor, needs []bool, _ tensor.Backend) []*tensor.RawTensor {
	grads := make([]*tensor.RawTensor, 2)
	for i, in := range op.inputs {
		if needs[i] {
			grads[i] = reduceBroadcast(outputGrad, in.Shape())
		}
	}
	return grads
}

// SubOp represents output = a - b.
type SubOp struct{ node }

// NewSubOp creates a new SubOp.
func NewSubOp(a, b, output *tensor.RawTensor) *SubOp {
	return &SubOp{newNode(output, a, b)}
}

// Backward computes input gradients for subtraction: grad_a = grad, grad_b = -grad.
func (op *SubOp) Backward(outputGrad *tensor.RawTensor, needs []bool, backend tensor.Backend) []*tensor.RawTensor {
	grads := make([]*tensor.RawTensor, 2)
	if needs[0] {
		grads[0] = reduceBroadcast(outputGrad, op.inputs[0].Shape())
	}
	if needs[1] {
		grads[1] = reduceBroadcast(backend.MulScalar(outputGrad, -1), op.inputs[1].Shape())
	}
	return grads
}

// MulOp represents output = a * b.
type MulOp struct{ node }

// NewMulOp creates a new MulOp.
func NewMulOp(a, b, output *tensor.RawTensor) *MulOp {
	return &MulOp{newNode(output, a, b)}
}

// Backward computes input gradients for multiplication: grad_a = grad*b, grad_b = grad*a.
func (op *MulOp) Backward(outputGrad *tensor.RawTensor, needs []bool, backend tensor.Backend) []*tensor.RawTensor {
	a, b := op.inputs[0], op.inputs[1]
	grads := make([]*tensor.RawTensor, 2)
	if needs[0] {
		grads[0] = reduceBroadcast(backend.Mul(outputGrad, b), a.Shape())
	}
	if needs[1] {
		grads[1] = reduceBroadcast(backend.Mul(outputGrad, a), b.Shape())
	}
	return grads
}

// DivOp represents output = a / b.
type DivOp struct{ node }

// NewDivOp creates a new DivOp.
func NewDivOp(a, b, output *tensor.RawTensor) *DivOp {
	return &DivOp{newNode(output, a, b)}
}

// Backward computes input gradients for division:
// grad_a = grad / b, grad_b = -grad * a / b² = -grad * output / b.
func (op *DivOp) Backward(outputGrad *tensor.RawTensor, needs []bool, backend tensor.Backend) []*tensor.RawTensor {
	a, b := op.inputs[0], op.inputs[1]
	grads := make([]*tensor.RawTensor, 2)
	if needs[0] {
		grads[0] = reduceBroadcast(backend.Div(outputGrad, b), a.Shape())
	}
	if needs[1] {
		g := backend.Div(backend.Mul(outputGrad, op.output), b)
		grads[1] = reduceBroadcast(backend.MulScalar(g, -1), b.Shape())
	}
	return grads
}

// ScaleOp represents output = x * s for a constant s.
type ScaleOp struct {
	node
	scalar float32
}

// NewScaleOp creates a new ScaleOp.
func NewScaleOp(x, output *tensor.RawTensor, scalar float32) *ScaleOp {
	return &ScaleOp{node: newNode(output, x), scalar: scalar}
}

// Backward returns grad * s.
func (op *ScaleOp) Backward(outputGrad *tensor.RawTensor, _ []bool, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{backend.MulScalar(outputGrad, op.scalar)}
}

// ShiftOp represents output = x + s for a constant s.
type ShiftOp struct{ node }

// NewShiftOp creates a new ShiftOp.
func NewShiftOp(x, output *tensor.RawTensor) *ShiftOp {
	return &ShiftOp{newNode(output, x)}
}

// Backward passes the gradient through unchanged.
func (op *ShiftOp) Backward(outputGrad *tensor.RawTensor, _ []bool, _ tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{outputGrad}
}
