package nn

import (
	"fmt"

	"github.com/born-ml/stylize/internal/tensor"
)

// MSE computes the mean squared error between predictions and targets:
//
//	loss = mean((predictions - targets)²)
//
// The result is a scalar tensor; every step goes through the backend so
// the loss is differentiable. Shapes must match exactly.
func MSE[B tensor.Backend](predictions, targets *tensor.Tensor[B]) *tensor.Tensor[B] {
	if !predictions.Shape().Equal(targets.Shape()) {
		panic(fmt.Sprintf("mse: predictions %v and targets %v must have the same shape",
			predictions.Shape(), targets.Shape()))
	}
	diff := predictions.Sub(targets)
	return diff.Mul(diff).Mean()
}
