// Package style implements neural style transfer on top of a frozen
// convolutional feature network.
//
// Assemble splices content and style loss taps into a copy of the network
// after the requested layers; Run then optimizes the pixels of a candidate
// image against the weighted sum of those taps.
package style

import (
	"fmt"

	"github.com/born-ml/stylize/internal/nn"
	"github.com/born-ml/stylize/internal/tensor"
)

// Gram computes the normalized Gram matrix of an [N, C, H, W] activation:
// the (N·C) × (N·C) inner products of its flattened feature maps, divided
// by N·C·H·W.
func Gram[B tensor.Backend](x *tensor.Tensor[B]) *tensor.Tensor[B] {
	shape := x.Shape()
	if len(shape) != 4 {
		panic(fmt.Sprintf("gram: expected [N,C,H,W], got %v", shape))
	}
	n, c, h, w := shape[0], shape[1], shape[2], shape[3]
	f := x.Reshape(n*c, h*w)
	return f.MatMul(f.T()).MulScalar(1 / float32(n*c*h*w))
}

// ContentLoss is a pass-through stage that measures the mean squared
// error between the activation flowing through it and a fixed target.
type ContentLoss[B tensor.Backend] struct {
	target *tensor.Tensor[B]
	loss   *tensor.Tensor[B]
}

// NewContentLoss captures a detached copy of target.
func NewContentLoss[B tensor.Backend](target *tensor.Tensor[B]) (*ContentLoss[B], error) {
	if len(target.Shape()) != 4 {
		return nil, fmt.Errorf("content loss: %w, got shape %v", ErrRank, target.Shape())
	}
	return &ContentLoss[B]{target: target.Detach()}, nil
}

// Forward records MSE(input, target) and returns input unchanged.
func (l *ContentLoss[B]) Forward(input *tensor.Tensor[B]) *tensor.Tensor[B] {
	l.loss = nn.MSE(input, l.target)
	return input
}

// Loss returns the loss of the last Forward, or nil before the first.
func (l *ContentLoss[B]) Loss() *tensor.Tensor[B] {
	return l.loss
}

// Target returns the captured activation.
func (l *ContentLoss[B]) Target() *tensor.Tensor[B] {
	return l.target
}

// Parameters returns an empty slice.
func (l *ContentLoss[B]) Parameters() []*nn.Parameter[B] {
	return []*nn.Parameter[B]{}
}

// Kind reports nn.KindTap.
func (l *ContentLoss[B]) Kind() nn.Kind {
	return nn.KindTap
}

// Clone returns a tap with its own copy of the target and no loss.
func (l *ContentLoss[B]) Clone() nn.Module[B] {
	return &ContentLoss[B]{target: l.target.Clone()}
}

// String returns a string representation.
func (l *ContentLoss[B]) String() string {
	return fmt.Sprintf("ContentLoss(target=%v)", l.target.Shape())
}

// StyleLoss is a pass-through stage that measures the mean squared error
// between the Gram matrix of the activation flowing through it and the
// Gram matrix of a fixed target.
type StyleLoss[B tensor.Backend] struct {
	target *tensor.Tensor[B] // Gram matrix
	loss   *tensor.Tensor[B]
}

// NewStyleLoss computes and caches the Gram matrix of target.
func NewStyleLoss[B tensor.Backend](target *tensor.Tensor[B]) (*StyleLoss[B], error) {
	if len(target.Shape()) != 4 {
		return nil, fmt.Errorf("style loss: %w, got shape %v", ErrRank, target.Shape())
	}
	return &StyleLoss[B]{target: Gram(target.Detach()).Detach()}, nil
}

// Forward records MSE(Gram(input), target Gram) and returns input unchanged.
func (l *StyleLoss[B]) Forward(input *tensor.Tensor[B]) *tensor.Tensor[B] {
	l.loss = nn.MSE(Gram(input), l.target)
	return input
}

// Loss returns the loss of the last Forward, or nil before the first.
func (l *StyleLoss[B]) Loss() *tensor.Tensor[B] {
	return l.loss
}

// Target returns the cached Gram matrix.
func (l *StyleLoss[B]) Target() *tensor.Tensor[B] {
	return l.target
}

// Parameters returns an empty slice.
func (l *StyleLoss[B]) Parameters() []*nn.Parameter[B] {
	return []*nn.Parameter[B]{}
}

// Kind reports nn.KindTap.
func (l *StyleLoss[B]) Kind() nn.Kind {
	return nn.KindTap
}

// Clone returns a tap with its own copy of the target Gram and no loss.
func (l *StyleLoss[B]) Clone() nn.Module[B] {
	return &StyleLoss[B]{target: l.target.Clone()}
}

// String returns a string representation.
func (l *StyleLoss[B]) String() string {
	return fmt.Sprintf("StyleLoss(gram=%v)", l.target.Shape())
}
