package nn

import (
	"github.com/born-ml/stylize/internal/tensor"
)

// ReLU (Rectified Linear Unit) activation function.
//
// Applies the element-wise function: f(x) = max(0, x)
//
// An in-place ReLU overwrites its input buffer, as torchvision's VGG
// layers do. It saves an allocation in plain inference but destroys the
// activation the previous stage produced and bypasses gradient recording,
// so networks that observe intermediate activations must use the
// allocating form (see WithoutInPlace).
type ReLU[B tensor.Backend] struct {
	inPlace bool
}

// NewReLU creates a new allocating ReLU activation.
func NewReLU[B tensor.Backend]() *ReLU[B] {
	return &ReLU[B]{}
}

// NewReLUInPlace creates a ReLU that overwrites its input.
func NewReLUInPlace[B tensor.Backend]() *ReLU[B] {
	return &ReLU[B]{inPlace: true}
}

// Forward applies ReLU activation.
func (r *ReLU[B]) Forward(input *tensor.Tensor[B]) *tensor.Tensor[B] {
	if !r.inPlace {
		return input.ReLU()
	}
	data := input.Data()
	for i, v := range data {
		if v < 0 {
			data[i] = 0
		}
	}
	return input
}

// InPlace reports whether the activation overwrites its input.
func (r *ReLU[B]) InPlace() bool {
	return r.inPlace
}

// WithoutInPlace returns an allocating ReLU.
func (r *ReLU[B]) WithoutInPlace() Module[B] {
	return NewReLU[B]()
}

// Parameters returns an empty slice.
func (r *ReLU[B]) Parameters() []*Parameter[B] {
	return []*Parameter[B]{}
}

// Kind reports KindNonlinearity.
func (r *ReLU[B]) Kind() Kind {
	return KindNonlinearity
}

// Clone returns a copy with the same in-place setting.
func (r *ReLU[B]) Clone() Module[B] {
	return &ReLU[B]{inPlace: r.inPlace}
}

// String returns a string representation.
func (r *ReLU[B]) String() string {
	if r.inPlace {
		return "ReLU(inplace=True)"
	}
	return "ReLU()"
}
