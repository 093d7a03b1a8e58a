// Package features adapts a pretrained convolutional classifier into a
// frozen feature extractor.
//
// Stages of the network are classified by the role each module declares
// (nn.Kind) and given derived names: a running count i of convolutions
// yields conv_i, relu_i, pool_i and bn_i. Those names are how callers pick
// the layers whose activations they want to observe.
package features

import (
	"fmt"

	"github.com/born-ml/stylize/internal/nn"
	"github.com/born-ml/stylize/internal/tensor"
)

// StageKind is the closed set of stage roles a feature extractor accepts.
type StageKind int

// Stage kinds.
const (
	Unsupported StageKind = iota
	Convolution
	Nonlinearity
	Pooling
	BatchNorm
)

// String returns the kind name.
func (k StageKind) String() string {
	switch k {
	case Convolution:
		return "convolution"
	case Nonlinearity:
		return "nonlinearity"
	case Pooling:
		return "pooling"
	case BatchNorm:
		return "batchnorm"
	default:
		return "unsupported"
	}
}

// prefix returns the derived name prefix, or "" for unsupported stages.
func (k StageKind) prefix() string {
	switch k {
	case Convolution:
		return "conv"
	case Nonlinearity:
		return "relu"
	case Pooling:
		return "pool"
	case BatchNorm:
		return "bn"
	default:
		return ""
	}
}

// Classify maps a module's declared kind to a stage kind.
func Classify[B tensor.Backend](m nn.Module[B]) StageKind {
	switch m.Kind() {
	case nn.KindConvolution:
		return Convolution
	case nn.KindNonlinearity:
		return Nonlinearity
	case nn.KindPooling:
		return Pooling
	case nn.KindBatchNorm:
		return BatchNorm
	default:
		return Unsupported
	}
}

// Stage describes one stage of a network.
type Stage struct {
	Index int       // position in the network
	Name  string    // derived name; empty for unsupported stages
	Kind  StageKind // classified role
	Desc  string    // module description
}

// Namer assigns derived names to stages in walk order.
type Namer struct {
	convs int
}

// Next returns the derived name of the next stage of the given kind.
// Unsupported stages get an empty name and leave the count unchanged.
func (n *Namer) Next(kind StageKind) string {
	if kind == Unsupported {
		return ""
	}
	if kind == Convolution {
		n.convs++
	}
	return fmt.Sprintf("%s_%d", kind.prefix(), n.convs)
}

// Convolutions returns how many convolution stages have been named.
func (n *Namer) Convolutions() int {
	return n.convs
}

// Describe classifies and names every stage of net.
func Describe[B tensor.Backend](net *nn.Sequential[B]) []Stage {
	var namer Namer
	stages := make([]Stage, net.Len())
	for i := range stages {
		m := net.Module(i)
		kind := Classify(m)
		desc := fmt.Sprintf("%T", m)
		if s, ok := m.(fmt.Stringer); ok {
			desc = s.String()
		}
		stages[i] = Stage{Index: i, Name: namer.Next(kind), Kind: kind, Desc: desc}
	}
	return stages
}

// StageNames returns the derived name of every stage in order.
// Unsupported stages appear as empty strings.
func StageNames[B tensor.Backend](net *nn.Sequential[B]) []string {
	stages := Describe(net)
	names := make([]string, len(stages))
	for i, s := range stages {
		names[i] = s.Name
	}
	return names
}

// inPlacer is implemented by activations that can overwrite their input.
type inPlacer[B tensor.Backend] interface {
	InPlace() bool
	WithoutInPlace() nn.Module[B]
}

// WithoutInPlace returns m, or an allocating replacement if m overwrites
// its input. Networks whose intermediate activations are observed must
// not contain in-place stages.
func WithoutInPlace[B tensor.Backend](m nn.Module[B]) nn.Module[B] {
	if ip, ok := m.(inPlacer[B]); ok && ip.InPlace() {
		return ip.WithoutInPlace()
	}
	return m
}
