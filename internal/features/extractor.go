package features

import (
	"fmt"

	"github.com/born-ml/stylize/internal/nn"
	"github.com/born-ml/stylize/internal/tensor"
)

// Extractor is a frozen feature network preceded by input normalization.
//
// The extractor owns a private copy of the network in which in-place
// activations are replaced, so every returned activation stays valid.
// No parameter is ever registered for gradients.
//
// Example:
//
//	ext := features.NewExtractor(features.VGG19(rng, backend), nn.NewImageNetNormalization(backend))
//	acts, err := ext.Forward(image, "conv_4", "relu_5")
type Extractor[B tensor.Backend] struct {
	norm   *nn.Normalization[B]
	net    *nn.Sequential[B]
	stages []Stage
}

// NewExtractor wraps net with the given normalization.
func NewExtractor[B tensor.Backend](net *nn.Sequential[B], norm *nn.Normalization[B]) *Extractor[B] {
	frozen := nn.NewSequential[B]()
	for i := 0; i < net.Len(); i++ {
		frozen.AddNamed(net.Name(i), WithoutInPlace(net.Module(i).Clone()))
	}
	return &Extractor[B]{
		norm:   norm,
		net:    frozen,
		stages: Describe(frozen),
	}
}

// Network returns the extractor's private network. Callers must not modify it.
func (e *Extractor[B]) Network() *nn.Sequential[B] {
	return e.net
}

// Normalization returns the input normalization stage.
func (e *Extractor[B]) Normalization() *nn.Normalization[B] {
	return e.norm
}

// Stages returns the classified stages of the network.
func (e *Extractor[B]) Stages() []Stage {
	return append([]Stage(nil), e.stages...)
}

// index resolves a derived layer name.
func (e *Extractor[B]) index(name string) (int, error) {
	for _, s := range e.stages {
		if s.Name != "" && s.Name == name {
			return s.Index, nil
		}
	}
	return -1, fmt.Errorf("%w: %q", ErrUnknownLayer, name)
}

// Forward normalizes x and evaluates the network only as far as the
// deepest requested layer, returning the activation of every requested
// layer by name. With no layers it returns the full network output under
// the key "".
func (e *Extractor[B]) Forward(x *tensor.Tensor[B], layers ...string) (map[string]*tensor.Tensor[B], error) {
	if len(layers) == 0 {
		if err := e.checkSupported(e.net.Len()); err != nil {
			return nil, err
		}
		return map[string]*tensor.Tensor[B]{"": e.net.Forward(e.norm.Forward(x))}, nil
	}

	wanted := make(map[int][]string, len(layers))
	deepest := -1
	for _, name := range layers {
		i, err := e.index(name)
		if err != nil {
			return nil, err
		}
		wanted[i] = append(wanted[i], name)
		deepest = max(deepest, i)
	}
	if err := e.checkSupported(deepest + 1); err != nil {
		return nil, err
	}

	acts := make(map[string]*tensor.Tensor[B], len(layers))
	out := e.norm.Forward(x)
	for i := 0; i <= deepest; i++ {
		out = e.net.Module(i).Forward(out)
		for _, name := range wanted[i] {
			acts[name] = out
		}
	}
	return acts, nil
}

func (e *Extractor[B]) checkSupported(n int) error {
	for _, s := range e.stages[:n] {
		if s.Kind == Unsupported {
			return fmt.Errorf("%w: stage %d (%s)", ErrUnsupportedStage, s.Index, s.Desc)
		}
	}
	return nil
}
