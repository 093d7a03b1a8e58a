package nn

import (
	"fmt"
	"math"

	"github.com/born-ml/stylize/internal/tensor"
)

// BatchNorm2D applies inference-mode batch normalization over channels:
//
//	y = (x - running_mean) / sqrt(running_var + eps) * weight + bias
//
// Running statistics are frozen; the layer is evaluated as a per-channel
// affine map y = x*scale + shift.
type BatchNorm2D[B tensor.Backend] struct {
	channels int
	eps      float32

	weight      *Parameter[B] // [channels]
	bias        *Parameter[B] // [channels]
	runningMean *Parameter[B] // [channels]
	runningVar  *Parameter[B] // [channels]

	backend B
}

// NewBatchNorm2D creates a batch normalization layer with identity
// statistics (mean 0, variance 1, weight 1, bias 0).
func NewBatchNorm2D[B tensor.Backend](channels int, eps float32, backend B) *BatchNorm2D[B] {
	if channels <= 0 {
		panic(fmt.Sprintf("batchnorm2d: invalid channels %d", channels))
	}
	shape := tensor.Shape{channels}
	return &BatchNorm2D[B]{
		channels:    channels,
		eps:         eps,
		weight:      NewParameter("weight", tensor.Ones(shape, backend)),
		bias:        NewParameter("bias", tensor.Zeros(shape, backend)),
		runningMean: NewParameter("running_mean", tensor.Zeros(shape, backend)),
		runningVar:  NewParameter("running_var", tensor.Ones(shape, backend)),
		backend:     backend,
	}
}

// Forward normalizes each channel with the running statistics.
func (bn *BatchNorm2D[B]) Forward(input *tensor.Tensor[B]) *tensor.Tensor[B] {
	shape := input.Shape()
	if len(shape) != 4 || shape[1] != bn.channels {
		panic(fmt.Sprintf("batchnorm2d: expected [N,%d,H,W] input, got %v", bn.channels, shape))
	}

	scale := tensor.Zeros(tensor.Shape{1, bn.channels, 1, 1}, bn.backend)
	shift := tensor.Zeros(tensor.Shape{1, bn.channels, 1, 1}, bn.backend)
	w, b := bn.weight.Tensor().Data(), bn.bias.Tensor().Data()
	mean, variance := bn.runningMean.Tensor().Data(), bn.runningVar.Tensor().Data()
	for c := 0; c < bn.channels; c++ {
		s := w[c] / float32(math.Sqrt(float64(variance[c]+bn.eps)))
		scale.Data()[c] = s
		shift.Data()[c] = b[c] - mean[c]*s
	}
	return input.Mul(scale).Add(shift)
}

// Parameters returns weight, bias and the running statistics.
func (bn *BatchNorm2D[B]) Parameters() []*Parameter[B] {
	return []*Parameter[B]{bn.weight, bn.bias, bn.runningMean, bn.runningVar}
}

// Kind reports KindBatchNorm.
func (bn *BatchNorm2D[B]) Kind() Kind {
	return KindBatchNorm
}

// Clone returns a deep copy of the layer.
func (bn *BatchNorm2D[B]) Clone() Module[B] {
	clone := *bn
	clone.weight = bn.weight.Clone()
	clone.bias = bn.bias.Clone()
	clone.runningMean = bn.runningMean.Clone()
	clone.runningVar = bn.runningVar.Clone()
	return &clone
}

// StateDict returns the layer's tensors under their PyTorch names.
func (bn *BatchNorm2D[B]) StateDict() map[string]*tensor.RawTensor {
	state := make(map[string]*tensor.RawTensor, 4)
	for _, p := range bn.Parameters() {
		state[p.Name()] = p.Tensor().Raw()
	}
	return state
}

// LoadStateDict copies weight, bias and running statistics into the layer.
func (bn *BatchNorm2D[B]) LoadStateDict(state map[string]*tensor.RawTensor) error {
	return loadParameters(state, bn.Parameters())
}

// String returns a string representation.
func (bn *BatchNorm2D[B]) String() string {
	return fmt.Sprintf("BatchNorm2d(%d, eps=%g)", bn.channels, bn.eps)
}
