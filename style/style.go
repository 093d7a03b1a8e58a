// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package style transfers the style of one image onto the content of
// another by optimizing pixels against a frozen convolutional network.
//
// Assemble walks a feature network and inserts content and style loss
// taps after the named layers (conv_1, relu_3, pool_2, ...). Run then
// optimizes a candidate image so its activations match the content
// image at the content taps and its Gram matrices match the style image
// at the style taps.
//
// Example:
//
//	backend := autodiff.New(cpu.New())
//	net := style.VGG19(nil, backend)
//	model, err := style.Assemble(net, nn.NewImageNetNormalization(backend),
//	    styleImg, contentImg, style.DefaultContentLayers, style.DefaultStyleLayers)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	out, state, err := style.Run(model, contentImg, style.DefaultConfig(300))
package style

import (
	"math/rand"

	"github.com/born-ml/stylize/internal/autodiff"
	"github.com/born-ml/stylize/internal/features"
	"github.com/born-ml/stylize/internal/nn"
	"github.com/born-ml/stylize/internal/style"
	"github.com/born-ml/stylize/internal/tensor"
)

// Model is a truncated feature network with loss taps.
type Model[B tensor.Backend] = style.Model[B]

// Config configures Run.
type Config = style.Config

// State is the progress of a run.
type State = style.State

// Observer receives a copy of the candidate image as a run progresses.
type Observer = style.Observer

// Default loss weights and report interval.
const (
	DefaultStyleWeight   = style.DefaultStyleWeight
	DefaultContentWeight = style.DefaultContentWeight
	DefaultReportEvery   = style.DefaultReportEvery
)

// Default tap layers.
var (
	DefaultContentLayers = []string{"conv_4"}
	DefaultStyleLayers   = []string{"conv_1", "conv_2", "conv_3", "conv_4", "conv_5"}
)

// Errors returned by Assemble and Run.
var (
	ErrShapeMismatch       = style.ErrShapeMismatch
	ErrRank                = style.ErrRank
	ErrUnsupportedStage    = style.ErrUnsupportedStage
	ErrUnknownLayer        = style.ErrUnknownLayer
	ErrNonFinite           = style.ErrNonFinite
	ErrUnknownArchitecture = features.ErrUnknownArchitecture
)

// DefaultConfig returns the default weights and report interval for a
// budget of maxSteps objective evaluations.
func DefaultConfig(maxSteps int) Config {
	return style.DefaultConfig(maxSteps)
}

// Assemble builds a Model from a frozen network. The network is copied
// and left untouched.
func Assemble[B autodiff.BackwardCapable](
	net *nn.Sequential[B],
	norm *nn.Normalization[B],
	styleImg, contentImg *tensor.Tensor[B],
	contentLayers, styleLayers []string,
) (*Model[B], error) {
	return style.Assemble(net, norm, styleImg, contentImg, contentLayers, styleLayers)
}

// Run optimizes a copy of input for cfg.MaxSteps objective evaluations
// and returns the result clamped to [0, 1].
func Run[B autodiff.BackwardCapable](model *Model[B], input *tensor.Tensor[B], cfg Config) (*tensor.Tensor[B], *State, error) {
	return style.Run(model, input, cfg)
}

// Gram returns the normalized Gram matrix of a [1, C, H, W] activation.
func Gram[B tensor.Backend](x *tensor.Tensor[B]) *tensor.Tensor[B] {
	return style.Gram(x)
}

// StageNames returns the layer name of every stage of net; stages that
// are not convolutions, nonlinearities, pooling or batch norm get "".
func StageNames[B tensor.Backend](net *nn.Sequential[B]) []string {
	return features.StageNames(net)
}

// Extractor evaluates a frozen network behind input normalization and
// returns activations by layer name.
type Extractor[B tensor.Backend] = features.Extractor[B]

// NewExtractor wraps a private copy of net with norm.
func NewExtractor[B tensor.Backend](net *nn.Sequential[B], norm *nn.Normalization[B]) *Extractor[B] {
	return features.NewExtractor(net, norm)
}

// Architectures lists the built-in network names.
func Architectures() []string {
	return features.Architectures()
}

// Build constructs a built-in architecture ("vgg19", "vgg16_bn", ...)
// with randomly initialized weights.
func Build[B tensor.Backend](arch string, rng *rand.Rand, backend B) (*nn.Sequential[B], error) {
	return features.Build(arch, rng, backend)
}

// VGG19 returns the feature stages of torchvision's vgg19.
func VGG19[B tensor.Backend](rng *rand.Rand, backend B) *nn.Sequential[B] {
	return features.VGG19(rng, backend)
}
