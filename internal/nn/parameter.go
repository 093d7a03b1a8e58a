package nn

import (
	"fmt"

	"github.com/born-ml/stylize/internal/tensor"
)

// Parameter represents a named weight tensor of a module.
//
// Example:
//
//	weight := nn.NewParameter("weight", weightTensor)
//	w := weight.Tensor()
type Parameter[B tensor.Backend] struct {
	name   string
	tensor *tensor.Tensor[B]
}

// NewParameter creates a new parameter.
func NewParameter[B tensor.Backend](name string, t *tensor.Tensor[B]) *Parameter[B] {
	return &Parameter[B]{
		name:   name,
		tensor: t,
	}
}

// Name returns the parameter name.
func (p *Parameter[B]) Name() string {
	return p.name
}

// Tensor returns the parameter tensor.
func (p *Parameter[B]) Tensor() *tensor.Tensor[B] {
	return p.tensor
}

// Clone returns a parameter with a deep copy of the tensor.
func (p *Parameter[B]) Clone() *Parameter[B] {
	return NewParameter(p.name, p.tensor.Clone())
}

// Load copies raw's values into the parameter. Shapes must match.
func (p *Parameter[B]) Load(raw *tensor.RawTensor) error {
	if !raw.Shape().Equal(p.tensor.Shape()) {
		return fmt.Errorf("parameter %s: shape %v, want %v", p.name, raw.Shape(), p.tensor.Shape())
	}
	copy(p.tensor.Data(), raw.Data())
	return nil
}
