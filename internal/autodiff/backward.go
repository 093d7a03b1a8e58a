package autodiff

import (
	"github.com/born-ml/stylize/internal/tensor"
)

// BackwardCapable is an interface for backends that support backward pass.
// AutodiffBackend implements this interface.
type BackwardCapable interface {
	tensor.Backend
	// Tape returns the gradient tape for backward computation.
	Tape() *GradientTape
}

// Backward computes gradients of t (seeded with ones) using the backend's tape.
//
// Example:
//
//	backend := autodiff.New(cpu.New())
//	x := tensor.Ones(tensor.Shape{2}, backend).RequireGrad()
//	backend.Tape().StartRecording()
//	y := x.Mul(x).Sum()
//	grads := autodiff.Backward(y, backend)
//	grad := grads[x.Raw()] // 2x
func Backward[B BackwardCapable](t *tensor.Tensor[B], backend B) map[*tensor.RawTensor]*tensor.RawTensor {
	return backend.Tape().Backward(t.Raw(), nil, backend)
}

// NoGrad runs fn with recording disabled and restores the previous state.
// Targets captured inside fn carry no operation history.
func NoGrad[B BackwardCapable](backend B, fn func()) {
	tape := backend.Tape()
	was := tape.IsRecording()
	tape.StopRecording()
	defer func() {
		if was {
			tape.StartRecording()
		}
	}()
	fn()
}
