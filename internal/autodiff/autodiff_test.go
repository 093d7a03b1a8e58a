package autodiff_test

import (
	"math"
	"math/rand"
	"testing"

	"github.com/born-ml/stylize/internal/autodiff"
	"github.com/born-ml/stylize/internal/backend/cpu"
	"github.com/born-ml/stylize/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Backend = *autodiff.AutodiffBackend[*cpu.CPUBackend]

func newBackend() Backend {
	return autodiff.New(cpu.New())
}

func fromSlice(t *testing.T, backend Backend, data []float32, shape ...int) *tensor.Tensor[Backend] {
	t.Helper()
	x, err := tensor.FromSlice(data, tensor.Shape(shape), backend)
	require.NoError(t, err)
	return x
}

func randn(backend Backend, rng *rand.Rand, shape ...int) *tensor.Tensor[Backend] {
	return tensor.Randn(tensor.Shape(shape), rng, backend)
}

func TestAutodiffBackendMetadata(t *testing.T) {
	backend := newBackend()
	assert.Equal(t, "Autodiff(CPU)", backend.Name())
	assert.Equal(t, tensor.CPU, backend.Device())
}

func TestTapeRecordsOnlyTrackedOperations(t *testing.T) {
	backend := newBackend()
	tape := backend.Tape()
	tape.StartRecording()

	a := fromSlice(t, backend, []float32{1, 2}, 2)
	b := fromSlice(t, backend, []float32{3, 4}, 2)

	a.Add(b)
	assert.Equal(t, 0, tape.NumOps(), "constants leave no trace")

	a.RequireGrad()
	c := a.Add(b)
	c.Mul(b)
	assert.Equal(t, 2, tape.NumOps())
	assert.True(t, tape.Tracked(c.Raw()))

	tape.Clear()
	assert.Equal(t, 0, tape.NumOps())
	assert.True(t, tape.IsRecording(), "Clear keeps the recording state")
	assert.True(t, tape.Tracked(a.Raw()), "Clear keeps watched leaves")
	assert.False(t, tape.Tracked(c.Raw()))

	tape.Reset()
	assert.False(t, tape.Tracked(a.Raw()))
}

func TestNoGradSuspendsRecording(t *testing.T) {
	backend := newBackend()
	backend.Tape().StartRecording()
	x := fromSlice(t, backend, []float32{1, 2}, 2).RequireGrad()

	autodiff.NoGrad(backend, func() {
		x.Mul(x)
	})
	assert.Equal(t, 0, backend.Tape().NumOps())
	assert.True(t, backend.Tape().IsRecording())
}

func TestSquareGradient(t *testing.T) {
	backend := newBackend()
	x := fromSlice(t, backend, []float32{2, -3}, 2).RequireGrad()
	backend.Tape().StartRecording()

	y := x.Mul(x).Sum()
	grads := autodiff.Backward(y, backend)

	require.Contains(t, grads, x.Raw())
	assert.Equal(t, []float32{4, -6}, grads[x.Raw()].Data())
}

func TestBroadcastGradientsAreReduced(t *testing.T) {
	backend := newBackend()
	rng := rand.New(rand.NewSource(5))
	x := randn(backend, rng, 1, 2, 3, 3)
	mean := fromSlice(t, backend, []float32{0.5, -0.5}, 1, 2, 1, 1).RequireGrad()
	backend.Tape().StartRecording()

	y := x.Sub(mean).Sum()
	grads := autodiff.Backward(y, backend)

	require.Contains(t, grads, mean.Raw())
	assert.Equal(t, tensor.Shape{1, 2, 1, 1}, grads[mean.Raw()].Shape())
	assert.Equal(t, []float32{-9, -9}, grads[mean.Raw()].Data())
	assert.NotContains(t, grads, x.Raw(), "untracked inputs get no gradient")
}

type lossFn = func() *tensor.Tensor[Backend]

// numericGrad estimates d loss / d x[i] by central differences with recording off.
func numericGrad(backend Backend, x *tensor.Tensor[Backend], i int, loss lossFn) float64 {
	const eps = 1e-3
	var up, down float64
	autodiff.NoGrad(backend, func() {
		data := x.Data()
		orig := data[i]
		data[i] = orig + eps
		up = float64(loss().Item())
		data[i] = orig - eps
		down = float64(loss().Item())
		data[i] = orig
	})
	return (up - down) / (2 * eps)
}

func TestGradientsMatchFiniteDifferences(t *testing.T) {
	tests := []struct {
		name  string
		shape []int
		build func(x *tensor.Tensor[Backend], rng *rand.Rand) lossFn
	}{
		{
			name:  "conv relu pool",
			shape: []int{1, 2, 6, 6},
			build: func(x *tensor.Tensor[Backend], rng *rand.Rand) lossFn {
				kernel := tensor.Randn(tensor.Shape{3, 2, 3, 3}, rng, x.Backend())
				return func() *tensor.Tensor[Backend] {
					return x.Conv2D(kernel, 1, 1).ReLU().MaxPool2D(2, 2).Sum()
				}
			},
		},
		{
			name:  "gram",
			shape: []int{1, 3, 4, 4},
			build: func(x *tensor.Tensor[Backend], _ *rand.Rand) lossFn {
				return func() *tensor.Tensor[Backend] {
					features := x.Reshape(3, 16)
					gram := features.MatMul(features.T()).MulScalar(1.0 / 48)
					return gram.Mul(gram).Sum()
				}
			},
		},
		{
			name:  "normalize",
			shape: []int{1, 2, 2, 2},
			build: func(x *tensor.Tensor[Backend], _ *rand.Rand) lossFn {
				mean := tensor.Full(tensor.Shape{1, 2, 1, 1}, 0.4, x.Backend())
				std := tensor.Full(tensor.Shape{1, 2, 1, 1}, 0.25, x.Backend())
				return func() *tensor.Tensor[Backend] {
					d := x.Sub(mean).Div(std).AddScalar(1)
					return d.Mul(d).Mean()
				}
			},
		},
		{
			name:  "divide by tracked",
			shape: []int{4},
			build: func(x *tensor.Tensor[Backend], _ *rand.Rand) lossFn {
				num := tensor.Full(tensor.Shape{4}, 3, x.Backend())
				return func() *tensor.Tensor[Backend] {
					return num.Div(x.Mul(x).AddScalar(1)).Sum()
				}
			},
		},
		{
			name:  "transpose axes",
			shape: []int{2, 3, 4},
			build: func(x *tensor.Tensor[Backend], rng *rand.Rand) lossFn {
				w := tensor.Randn(tensor.Shape{4, 3, 2}, rng, x.Backend())
				return func() *tensor.Tensor[Backend] {
					return x.Transpose(2, 1, 0).Mul(w).Sum()
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := newBackend()
			rng := rand.New(rand.NewSource(11))
			x := randn(backend, rng, tt.shape...).RequireGrad()
			loss := tt.build(x, rng)

			backend.Tape().StartRecording()
			grads := autodiff.Backward(loss(), backend)
			require.Contains(t, grads, x.Raw())
			analytic := grads[x.Raw()].Data()

			for _, i := range []int{0, len(analytic) / 2, len(analytic) - 1} {
				numeric := numericGrad(backend, x, i, loss)
				assert.InDelta(t, numeric, analytic[i], 2e-2+2e-2*math.Abs(numeric), "element %d", i)
			}
		})
	}
}
