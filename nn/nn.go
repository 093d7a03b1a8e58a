// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn provides the modules feature networks are built from.
//
// Every module declares its role through Kind, which is how the style
// transfer assembler classifies stages. Modules are deep-copyable with
// Clone.
//
// Example:
//
//	backend := autodiff.New(cpu.New())
//	net := nn.NewSequential[Backend](
//	    nn.NewConv2D(3, 64, 3, 3, 1, 1, true, nil, backend),
//	    nn.NewReLU[Backend](),
//	    nn.NewMaxPool2D(2, 2, backend),
//	)
package nn

import (
	"math/rand"

	"github.com/born-ml/stylize/internal/nn"
	"github.com/born-ml/stylize/internal/tensor"
)

// Module interface defines the common interface for all neural network modules.
type Module[B tensor.Backend] = nn.Module[B]

// Kind is the role a module declares for itself.
type Kind = nn.Kind

// Module kinds.
const (
	KindOpaque        = nn.KindOpaque
	KindConvolution   = nn.KindConvolution
	KindNonlinearity  = nn.KindNonlinearity
	KindPooling       = nn.KindPooling
	KindBatchNorm     = nn.KindBatchNorm
	KindNormalization = nn.KindNormalization
	KindTap           = nn.KindTap
	KindContainer     = nn.KindContainer
)

// Parameter is a named weight tensor.
type Parameter[B tensor.Backend] = nn.Parameter[B]

// Conv2D represents a 2D convolutional layer.
type Conv2D[B tensor.Backend] = nn.Conv2D[B]

// NewConv2D creates a convolution with Xavier-initialized weights drawn
// from rng (the global source when nil).
func NewConv2D[B tensor.Backend](inChannels, outChannels, kernelH, kernelW, stride, padding int, useBias bool, rng *rand.Rand, backend B) *Conv2D[B] {
	return nn.NewConv2D(inChannels, outChannels, kernelH, kernelW, stride, padding, useBias, rng, backend)
}

// ReLU is the rectified linear activation.
type ReLU[B tensor.Backend] = nn.ReLU[B]

// NewReLU creates an allocating ReLU.
func NewReLU[B tensor.Backend]() *ReLU[B] {
	return nn.NewReLU[B]()
}

// NewReLUInPlace creates a ReLU that overwrites its input.
func NewReLUInPlace[B tensor.Backend]() *ReLU[B] {
	return nn.NewReLUInPlace[B]()
}

// MaxPool2D is a 2D max pooling layer.
type MaxPool2D[B tensor.Backend] = nn.MaxPool2D[B]

// NewMaxPool2D creates a max pooling layer.
func NewMaxPool2D[B tensor.Backend](kernelSize, stride int, backend B) *MaxPool2D[B] {
	return nn.NewMaxPool2D(kernelSize, stride, backend)
}

// BatchNorm2D is inference-mode batch normalization.
type BatchNorm2D[B tensor.Backend] = nn.BatchNorm2D[B]

// NewBatchNorm2D creates a batch normalization layer with identity statistics.
func NewBatchNorm2D[B tensor.Backend](channels int, eps float32, backend B) *BatchNorm2D[B] {
	return nn.NewBatchNorm2D(channels, eps, backend)
}

// Normalization maps x to (x - mean) / std per channel.
type Normalization[B tensor.Backend] = nn.Normalization[B]

// NewNormalization creates a normalization stage.
func NewNormalization[B tensor.Backend](mean, std []float32, backend B) (*Normalization[B], error) {
	return nn.NewNormalization(mean, std, backend)
}

// NewImageNetNormalization creates the normalization ImageNet models expect.
func NewImageNetNormalization[B tensor.Backend](backend B) *Normalization[B] {
	return nn.NewImageNetNormalization(backend)
}

// Sequential is an ordered, named container of stages.
type Sequential[B tensor.Backend] = nn.Sequential[B]

// NewSequential creates a container running modules in order.
func NewSequential[B tensor.Backend](modules ...Module[B]) *Sequential[B] {
	return nn.NewSequential(modules...)
}

// Opaque stands in for an imported stage that cannot be evaluated.
type Opaque[B tensor.Backend] = nn.Opaque[B]

// NewOpaque creates a placeholder for the named operator.
func NewOpaque[B tensor.Backend](op string) *Opaque[B] {
	return nn.NewOpaque[B](op)
}

// NewParameter wraps t as a named parameter.
func NewParameter[B tensor.Backend](name string, t *tensor.Tensor[B]) *Parameter[B] {
	return nn.NewParameter(name, t)
}

// MSE computes the mean squared error between predictions and targets.
func MSE[B tensor.Backend](predictions, targets *tensor.Tensor[B]) *tensor.Tensor[B] {
	return nn.MSE(predictions, targets)
}

// ImageNet channel statistics.
var (
	ImageNetMean = nn.ImageNetMean
	ImageNetStd  = nn.ImageNetStd
)
