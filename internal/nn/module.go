// Package nn implements the neural network modules used to build and
// instrument feature extraction networks.
//
// This package provides:
//   - Module interface: Forward, Parameters, a declared Kind and deep Clone
//   - Parameter: named weight tensors loaded from checkpoints
//   - Conv2D, ReLU, MaxPool2D, BatchNorm2D: convolutional stages
//   - Normalization: per-channel (x - mean) / std
//   - Opaque: placeholder for imported stages that cannot be evaluated
//   - Sequential: an ordered, named container of stages
//
// Design inspired by PyTorch's nn.Module but adapted for Go generics.
package nn

import (
	"github.com/born-ml/stylize/internal/tensor"
)

// Kind is the role a module declares for itself.
// Consumers classify stages by Kind instead of inspecting concrete types.
type Kind int

// Module kinds.
const (
	KindOpaque Kind = iota
	KindConvolution
	KindNonlinearity
	KindPooling
	KindBatchNorm
	KindNormalization
	KindTap // observes activations and passes them through unchanged
	KindContainer
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindConvolution:
		return "convolution"
	case KindNonlinearity:
		return "nonlinearity"
	case KindPooling:
		return "pooling"
	case KindBatchNorm:
		return "batchnorm"
	case KindNormalization:
		return "normalization"
	case KindTap:
		return "tap"
	case KindContainer:
		return "container"
	default:
		return "opaque"
	}
}

// Module is the base interface for all neural network components.
//
// Modules can be composed to build complex architectures:
//
//	net := nn.NewSequential[Backend](
//	    nn.NewConv2D(3, 64, 3, 3, 1, 1, true, rng, backend),
//	    nn.NewReLU[Backend](),
//	    nn.NewMaxPool2D(2, 2, backend),
//	)
type Module[B tensor.Backend] interface {
	// Forward computes the output of the module given an input tensor.
	Forward(input *tensor.Tensor[B]) *tensor.Tensor[B]

	// Parameters returns all parameters of this module.
	// Returns an empty slice for modules without parameters.
	Parameters() []*Parameter[B]

	// Kind reports the module's role.
	Kind() Kind

	// Clone returns a deep copy sharing no mutable state with the receiver.
	Clone() Module[B]
}

// Stateful is implemented by modules whose tensors can be saved and loaded
// by name ("weight", "bias", "running_mean", ...).
type Stateful interface {
	StateDict() map[string]*tensor.RawTensor
	LoadStateDict(state map[string]*tensor.RawTensor) error
}
