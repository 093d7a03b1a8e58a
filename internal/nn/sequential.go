package nn

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/born-ml/stylize/internal/tensor"
)

// Sequential is a container module that chains named stages together.
//
// Each stage's output becomes the next stage's input. Stages added without
// a name are named by their index, like PyTorch's nn.Sequential.
//
// Example:
//
//	net := nn.NewSequential[Backend](
//	    nn.NewConv2D(3, 64, 3, 3, 1, 1, true, rng, backend),
//	    nn.NewReLU[Backend](),
//	)
//	net.AddNamed("pool_1", nn.NewMaxPool2D(2, 2, backend))
//
//	output := net.Forward(input)
type Sequential[B tensor.Backend] struct {
	modules []Module[B]
	names   []string
}

// NewSequential creates a new Sequential container.
func NewSequential[B tensor.Backend](modules ...Module[B]) *Sequential[B] {
	s := &Sequential[B]{}
	for _, m := range modules {
		s.Add(m)
	}
	return s
}

// Forward applies all stages in sequence.
func (s *Sequential[B]) Forward(input *tensor.Tensor[B]) *tensor.Tensor[B] {
	return s.ForwardUntil(input, len(s.modules))
}

// ForwardUntil applies the first n stages and returns their output.
func (s *Sequential[B]) ForwardUntil(input *tensor.Tensor[B], n int) *tensor.Tensor[B] {
	if n < 0 || n > len(s.modules) {
		panic(fmt.Sprintf("Sequential.ForwardUntil: %d stages requested, have %d", n, len(s.modules)))
	}
	output := input
	for _, module := range s.modules[:n] {
		output = module.Forward(output)
	}
	return output
}

// Parameters returns all parameters from all stages.
func (s *Sequential[B]) Parameters() []*Parameter[B] {
	var params []*Parameter[B]
	for _, module := range s.modules {
		params = append(params, module.Parameters()...)
	}
	return params
}

// Kind reports KindContainer.
func (s *Sequential[B]) Kind() Kind {
	return KindContainer
}

// Clone returns a deep copy; every stage is cloned.
func (s *Sequential[B]) Clone() Module[B] {
	return s.Copy()
}

// Copy is Clone with the concrete return type.
func (s *Sequential[B]) Copy() *Sequential[B] {
	clone := &Sequential[B]{
		modules: make([]Module[B], len(s.modules)),
		names:   append([]string(nil), s.names...),
	}
	for i, m := range s.modules {
		clone.modules[i] = m.Clone()
	}
	return clone
}

// Add appends a stage named by its index.
func (s *Sequential[B]) Add(module Module[B]) {
	s.AddNamed(strconv.Itoa(len(s.modules)), module)
}

// AddNamed appends a stage under the given name.
func (s *Sequential[B]) AddNamed(name string, module Module[B]) {
	s.modules = append(s.modules, module)
	s.names = append(s.names, name)
}

// Len returns the number of stages.
func (s *Sequential[B]) Len() int {
	return len(s.modules)
}

// Module returns the stage at the given index.
//
// Panics if index is out of bounds.
func (s *Sequential[B]) Module(index int) Module[B] {
	if index < 0 || index >= len(s.modules) {
		panic("Sequential.Module: index out of bounds")
	}
	return s.modules[index]
}

// Name returns the name of the stage at the given index.
func (s *Sequential[B]) Name(index int) string {
	if index < 0 || index >= len(s.names) {
		panic("Sequential.Name: index out of bounds")
	}
	return s.names[index]
}

// Names returns the stage names in order.
func (s *Sequential[B]) Names() []string {
	return append([]string(nil), s.names...)
}

// Index returns the position of the stage with the given name, or -1.
func (s *Sequential[B]) Index(name string) int {
	for i, n := range s.names {
		if n == name {
			return i
		}
	}
	return -1
}

// Truncate keeps only the first n stages.
func (s *Sequential[B]) Truncate(n int) {
	if n < 0 || n > len(s.modules) {
		panic(fmt.Sprintf("Sequential.Truncate: %d stages requested, have %d", n, len(s.modules)))
	}
	clear(s.modules[n:])
	s.modules = s.modules[:n]
	s.names = s.names[:n]
}

// StateDict returns a map of tensor names to raw tensors.
//
// Tensors are prefixed with their stage name (e.g., "0.weight", "0.bias",
// "2.weight") to avoid name collisions.
func (s *Sequential[B]) StateDict() map[string]*tensor.RawTensor {
	stateDict := make(map[string]*tensor.RawTensor)
	for i, module := range s.modules {
		stateful, ok := module.(Stateful)
		if !ok {
			continue
		}
		for name, raw := range stateful.StateDict() {
			stateDict[s.names[i]+"."+name] = raw
		}
	}
	return stateDict
}

// LoadStateDict loads tensors from a state dictionary keyed like StateDict.
// Every tensor of every stateful stage must be present.
func (s *Sequential[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	for i, module := range s.modules {
		stateful, ok := module.(Stateful)
		if !ok {
			continue
		}

		prefix := s.names[i] + "."
		moduleState := make(map[string]*tensor.RawTensor)
		for key, raw := range stateDict {
			if name, found := strings.CutPrefix(key, prefix); found {
				moduleState[name] = raw
			}
		}
		if err := stateful.LoadStateDict(moduleState); err != nil {
			return fmt.Errorf("failed to load stage %s: %w", s.names[i], err)
		}
	}
	return nil
}
