package nn

import (
	"fmt"

	"github.com/born-ml/stylize/internal/tensor"
)

// ImageNet channel statistics used by torchvision's pretrained classifiers.
var (
	ImageNetMean = [3]float32{0.485, 0.456, 0.406}
	ImageNetStd  = [3]float32{0.229, 0.224, 0.225}
)

// Normalization maps an NCHW image to (x - mean) / std per channel.
// The statistics are shaped [1, C, 1, 1] and never change.
type Normalization[B tensor.Backend] struct {
	mean *tensor.Tensor[B]
	std  *tensor.Tensor[B]
}

// NewNormalization creates a normalization stage. mean and std must have
// the same positive length and std must be non-zero.
func NewNormalization[B tensor.Backend](mean, std []float32, backend B) (*Normalization[B], error) {
	if len(mean) == 0 || len(mean) != len(std) {
		return nil, fmt.Errorf("normalization: mean has %d channels, std has %d", len(mean), len(std))
	}
	for c, s := range std {
		if s == 0 {
			return nil, fmt.Errorf("normalization: std of channel %d is zero", c)
		}
	}
	shape := tensor.Shape{1, len(mean), 1, 1}
	m, err := tensor.FromSlice(mean, shape, backend)
	if err != nil {
		return nil, err
	}
	s, err := tensor.FromSlice(std, shape, backend)
	if err != nil {
		return nil, err
	}
	return &Normalization[B]{mean: m, std: s}, nil
}

// NewImageNetNormalization uses the ImageNet statistics.
func NewImageNetNormalization[B tensor.Backend](backend B) *Normalization[B] {
	n, err := NewNormalization(ImageNetMean[:], ImageNetStd[:], backend)
	if err != nil {
		panic(err) // constant statistics are valid
	}
	return n
}

// Forward normalizes the image.
func (n *Normalization[B]) Forward(input *tensor.Tensor[B]) *tensor.Tensor[B] {
	return input.Sub(n.mean).Div(n.std)
}

// Mean returns a copy of the per-channel means.
func (n *Normalization[B]) Mean() []float32 {
	return append([]float32(nil), n.mean.Data()...)
}

// Std returns a copy of the per-channel standard deviations.
func (n *Normalization[B]) Std() []float32 {
	return append([]float32(nil), n.std.Data()...)
}

// Parameters returns an empty slice; the statistics are constants.
func (n *Normalization[B]) Parameters() []*Parameter[B] {
	return []*Parameter[B]{}
}

// Kind reports KindNormalization.
func (n *Normalization[B]) Kind() Kind {
	return KindNormalization
}

// Clone returns a copy with its own statistics.
func (n *Normalization[B]) Clone() Module[B] {
	return &Normalization[B]{mean: n.mean.Clone(), std: n.std.Clone()}
}
