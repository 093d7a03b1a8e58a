package nn

import (
	"fmt"

	"github.com/born-ml/stylize/internal/tensor"
)

// Opaque stands in for an imported stage this package cannot evaluate.
// It keeps the network's stage order intact so that tools can report the
// stage; evaluating it panics.
type Opaque[B tensor.Backend] struct {
	op string
}

// NewOpaque creates a placeholder for an operator named op.
func NewOpaque[B tensor.Backend](op string) *Opaque[B] {
	return &Opaque[B]{op: op}
}

// Op returns the operator name.
func (o *Opaque[B]) Op() string {
	return o.op
}

// Forward panics: opaque stages have no implementation.
func (o *Opaque[B]) Forward(*tensor.Tensor[B]) *tensor.Tensor[B] {
	panic(fmt.Sprintf("nn: cannot evaluate opaque stage %q", o.op))
}

// Parameters returns an empty slice.
func (o *Opaque[B]) Parameters() []*Parameter[B] {
	return []*Parameter[B]{}
}

// Kind reports KindOpaque.
func (o *Opaque[B]) Kind() Kind {
	return KindOpaque
}

// Clone returns a copy.
func (o *Opaque[B]) Clone() Module[B] {
	return &Opaque[B]{op: o.op}
}

// String returns a string representation.
func (o *Opaque[B]) String() string {
	return fmt.Sprintf("Opaque(%s)", o.op)
}
