package style_test

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/born-ml/stylize/internal/autodiff"
	"github.com/born-ml/stylize/internal/backend/cpu"
	"github.com/born-ml/stylize/internal/nn"
	"github.com/born-ml/stylize/internal/optim"
	"github.com/born-ml/stylize/internal/style"
	"github.com/born-ml/stylize/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Backend = *autodiff.AutodiffBackend[*cpu.CPUBackend]

func newBackend() Backend {
	return autodiff.New(cpu.New())
}

// solid returns a 1x3xHxW image of a single color.
func solid(backend Backend, size int, rgb [3]float32) *tensor.Tensor[Backend] {
	img := tensor.Zeros(tensor.Shape{1, 3, size, size}, backend)
	plane := size * size
	for c := range 3 {
		for i := range plane {
			img.Data()[c*plane+i] = rgb[c]
		}
	}
	return img
}

// identityNet is a single 1x1 convolution that copies its input.
func identityNet(backend Backend) *nn.Sequential[Backend] {
	conv := nn.NewConv2D(3, 3, 1, 1, 1, 0, false, nil, backend)
	w := conv.Weight().Tensor().Data()
	clear(w)
	for c := range 3 {
		w[c*3+c] = 1
	}
	return nn.NewSequential[Backend](conv)
}

// tinyNet has five stages: conv_1 relu_1 conv_2 relu_2 pool_2.
func tinyNet(backend Backend, seed int64) *nn.Sequential[Backend] {
	rng := rand.New(rand.NewSource(seed))
	return nn.NewSequential[Backend](
		nn.NewConv2D(3, 4, 3, 3, 1, 1, true, rng, backend),
		nn.NewReLUInPlace[Backend](),
		nn.NewConv2D(4, 4, 3, 3, 1, 1, true, rng, backend),
		nn.NewReLUInPlace[Backend](),
		nn.NewMaxPool2D(2, 2, backend),
	)
}

func randomImage(backend Backend, seed int64, size int) *tensor.Tensor[Backend] {
	return tensor.Rand(tensor.Shape{1, 3, size, size}, rand.New(rand.NewSource(seed)), backend)
}

func TestGram(t *testing.T) {
	backend := newBackend()
	x, err := tensor.FromSlice([]float32{1, 2, 3, 4, 0, 1, 0, 1}, tensor.Shape{1, 2, 2, 2}, backend)
	require.NoError(t, err)

	g := style.Gram(x)
	assert.Equal(t, tensor.Shape{2, 2}, g.Shape())
	// [[30, 6], [6, 2]] / 8
	assert.InDeltaSlice(t, []float32{3.75, 0.75, 0.75, 0.25}, g.Data(), 1e-6)

	assert.Panics(t, func() { style.Gram(x.Reshape(2, 4)) })
}

func TestLossTargetsMustBeRank4(t *testing.T) {
	backend := newBackend()
	flat := tensor.Zeros(tensor.Shape{3, 4}, backend)

	_, err := style.NewContentLoss(flat)
	assert.True(t, errors.Is(err, style.ErrRank))
	_, err = style.NewStyleLoss(flat)
	assert.True(t, errors.Is(err, style.ErrRank))
}

func TestLossesAreZeroAgainstThemselves(t *testing.T) {
	backend := newBackend()
	act := randomImage(backend, 1, 6)

	content, err := style.NewContentLoss(act)
	require.NoError(t, err)
	assert.Nil(t, content.Loss())
	out := content.Forward(act)
	assert.Same(t, act, out, "taps pass their input through")
	assert.Equal(t, float32(0), content.Loss().Item())

	styleLoss, err := style.NewStyleLoss(act)
	require.NoError(t, err)
	assert.Same(t, act, styleLoss.Forward(act))
	assert.Equal(t, float32(0), styleLoss.Loss().Item())

	assert.Equal(t, nn.KindTap, content.Kind())
	assert.Equal(t, nn.KindTap, styleLoss.Kind())
}

func TestTargetsAreDetached(t *testing.T) {
	backend := newBackend()
	act := randomImage(backend, 2, 4)

	content, err := style.NewContentLoss(act)
	require.NoError(t, err)
	act.Data()[0] = 42
	assert.NotEqual(t, float32(42), content.Target().Data()[0])
}

func TestAssembleRejectsMismatchedImages(t *testing.T) {
	backend := newBackend()
	net := tinyNet(backend, 1)
	norm := nn.NewImageNetNormalization(backend)

	_, err := style.Assemble(net, norm, randomImage(backend, 1, 64), randomImage(backend, 2, 128),
		[]string{"conv_2"}, []string{"conv_1"})
	assert.True(t, errors.Is(err, style.ErrShapeMismatch), "got %v", err)

	_, err = style.Assemble(net, norm, randomImage(backend, 1, 8).Reshape(3, 8, 8), randomImage(backend, 2, 8),
		[]string{"conv_2"}, nil)
	assert.True(t, errors.Is(err, style.ErrRank), "got %v", err)
}

func TestRunRejectsMismatchedInput(t *testing.T) {
	backend := newBackend()
	img := randomImage(backend, 1, 8)
	model, err := style.Assemble(tinyNet(backend, 1), nn.NewImageNetNormalization(backend), img, img,
		[]string{"conv_2"}, []string{"conv_1"})
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{1, 3, 8, 8}, model.Shape)

	for _, input := range []*tensor.Tensor[Backend]{
		randomImage(backend, 2, 12),
		tensor.Rand(tensor.Shape{1, 3, 8, 12}, rand.New(rand.NewSource(3)), backend),
	} {
		out, state, err := style.Run(model, input, style.DefaultConfig(3))
		assert.True(t, errors.Is(err, style.ErrShapeMismatch), "got %v", err)
		assert.Nil(t, out)
		assert.Nil(t, state)
	}

	_, _, err = style.Run(model, randomImage(backend, 2, 8).Reshape(3, 8, 8), style.DefaultConfig(3))
	assert.True(t, errors.Is(err, style.ErrRank), "got %v", err)
	assert.False(t, backend.Tape().IsRecording(), "rejected runs leave the tape alone")
}

func TestAssembleRejectsUnsupportedStage(t *testing.T) {
	backend := newBackend()
	norm := nn.NewImageNetNormalization(backend)
	img := randomImage(backend, 1, 8)

	for _, stub := range []nn.Module[Backend]{
		nn.NewOpaque[Backend]("Softmax"),
		nn.NewSequential[Backend](),
		norm,
	} {
		net := tinyNet(backend, 1)
		net.Add(stub)
		_, err := style.Assemble(net, norm, img, img, []string{"conv_1"}, nil)
		assert.True(t, errors.Is(err, style.ErrUnsupportedStage), "%T: got %v", stub, err)
	}
}

func TestAssembleRejectsUnknownLayer(t *testing.T) {
	backend := newBackend()
	img := randomImage(backend, 1, 8)

	_, err := style.Assemble(tinyNet(backend, 1), nn.NewImageNetNormalization(backend), img, img,
		[]string{"conv_2"}, []string{"conv_1", "conv_5"})
	assert.True(t, errors.Is(err, style.ErrUnknownLayer), "got %v", err)
	assert.Contains(t, err.Error(), "conv_5")
}

func TestAssembleTrimsAfterLastTap(t *testing.T) {
	backend := newBackend()
	net := tinyNet(backend, 1)
	img := randomImage(backend, 1, 8)

	model, err := style.Assemble(net, nn.NewImageNetNormalization(backend), img, img,
		[]string{"conv_1"}, []string{"conv_1", "relu_2"})
	require.NoError(t, err)

	// Last tap after stage k=3 (relu_2) of N=5: normalization, k+1 stages
	// and three taps.
	const k = 3
	assert.Equal(t, 1+(k+1)+3, model.Net.Len())
	assert.Equal(t, []string{
		"normalization",
		"conv_1", "content_loss_1", "style_loss_1",
		"relu_1", "conv_2", "relu_2", "style_loss_2",
	}, model.Net.Names())
	assert.Len(t, model.ContentLosses, 1)
	assert.Len(t, model.StyleLosses, 2)

	relu, ok := model.Net.Module(4).(*nn.ReLU[Backend])
	require.True(t, ok)
	assert.False(t, relu.InPlace(), "assembled activations allocate")

	// The base network is untouched.
	assert.Equal(t, 5, net.Len())
	assert.True(t, net.Module(1).(*nn.ReLU[Backend]).InPlace())
	assembledConv := model.Net.Module(1).(*nn.Conv2D[Backend])
	assembledConv.Weight().Tensor().Data()[0] = 99
	assert.NotEqual(t, float32(99), net.Module(0).(*nn.Conv2D[Backend]).Weight().Tensor().Data()[0])
}

func TestAssembleCapturesTargetsDeterministically(t *testing.T) {
	backend := newBackend()
	net := tinyNet(backend, 3)
	norm := nn.NewImageNetNormalization(backend)
	styleImg := randomImage(backend, 4, 8)
	contentImg := randomImage(backend, 5, 8)

	build := func() *style.Model[Backend] {
		m, err := style.Assemble(net, norm, styleImg, contentImg, []string{"relu_2"}, []string{"conv_1", "relu_2"})
		require.NoError(t, err)
		return m
	}
	first, second := build(), build()

	require.Len(t, second.ContentLosses, 1)
	assert.Equal(t, first.ContentLosses[0].Target().Data(), second.ContentLosses[0].Target().Data())
	for i := range first.StyleLosses {
		assert.Equal(t, first.StyleLosses[i].Target().Data(), second.StyleLosses[i].Target().Data())
	}

	// Each tap sees the activation at its own insertion point.
	assert.Equal(t, tensor.Shape{1, 4, 8, 8}, first.ContentLosses[0].Target().Shape())
	assert.Equal(t, tensor.Shape{4, 4}, first.StyleLosses[0].Target().Shape())
	for _, v := range first.ContentLosses[0].Target().Data() {
		assert.GreaterOrEqual(t, v, float32(0), "relu_2 target is rectified")
	}

	// The content image through the model measures zero content loss.
	autodiff.NoGrad(backend, func() { first.Forward(contentImg) })
	assert.Equal(t, float32(0), first.ContentLosses[0].Loss().Item())
}

func TestAssembleLeavesNoTapeHistory(t *testing.T) {
	backend := newBackend()
	backend.Tape().StartRecording()
	img := randomImage(backend, 1, 8)

	_, err := style.Assemble(tinyNet(backend, 1), nn.NewImageNetNormalization(backend), img, img,
		[]string{"conv_2"}, []string{"conv_1"})
	require.NoError(t, err)
	assert.Equal(t, 0, backend.Tape().NumOps())
	assert.True(t, backend.Tape().IsRecording())
}

func inUnitRange(t *testing.T, data []float32) {
	t.Helper()
	for i, v := range data {
		if v < 0 || v > 1 {
			t.Fatalf("pixel %d = %v outside [0, 1]", i, v)
		}
	}
}

func TestRunZeroStepsReturnsClampedInput(t *testing.T) {
	backend := newBackend()
	img := randomImage(backend, 1, 4)
	model, err := style.Assemble(identityNet(backend), nn.NewImageNetNormalization(backend), img, img,
		[]string{"conv_1"}, nil)
	require.NoError(t, err)

	input := img.Clone()
	input.Data()[0] = -0.5
	input.Data()[1] = 1.5

	cfg := style.DefaultConfig(0)
	cfg.Observer = func(style.State, *tensor.RawTensor) { t.Fatal("observer called without evaluations") }
	out, state, err := style.Run(model, input, cfg)
	require.NoError(t, err)

	assert.Equal(t, 0, state.Evaluations)
	want := input.Clone()
	want.Raw().Clamp(0, 1)
	assert.Equal(t, want.Data(), out.Data())
	assert.Equal(t, float32(-0.5), input.Data()[0], "the caller's tensor is not modified")
	assert.NotEmpty(t, state.RunID)
}

func TestRunKeepsPixelsInRangeAndSpendsBudget(t *testing.T) {
	backend := newBackend()
	styleImg := randomImage(backend, 1, 8)
	contentImg := randomImage(backend, 2, 8)
	model, err := style.Assemble(tinyNet(backend, 7), nn.NewImageNetNormalization(backend), styleImg, contentImg,
		[]string{"conv_2"}, []string{"conv_1", "relu_2"})
	require.NoError(t, err)

	for _, opt := range []optim.Optimizer{
		optim.NewLBFGS(optim.LBFGSConfig{}),
		optim.NewLBFGS(optim.LBFGSConfig{LineSearch: optim.StrongWolfe}),
		optim.NewAdam(optim.AdamConfig{LR: 0.05}),
	} {
		t.Run(opt.Name(), func(t *testing.T) {
			input := tensor.Randn(tensor.Shape{1, 3, 8, 8}, rand.New(rand.NewSource(3)), backend)
			observed := 0
			cfg := style.DefaultConfig(12)
			cfg.Optimizer = opt
			cfg.ReportEvery = 1
			cfg.RunID = "test-run"
			cfg.Observer = func(s style.State, image *tensor.RawTensor) {
				observed++
				assert.Equal(t, observed, s.Evaluations)
				assert.Equal(t, "test-run", s.RunID)
				inUnitRange(t, image.Data())
			}

			out, state, err := style.Run(model, input, cfg)
			require.NoError(t, err)
			assert.Equal(t, 12, state.Evaluations)
			assert.Equal(t, 12, observed)
			inUnitRange(t, out.Data())
			assert.Equal(t, 0, backend.Tape().NumOps(), "run clears its tape")
			assert.False(t, backend.Tape().Tracked(out.Raw()))
		})
	}
}

func TestRunContentOnlyRecoversContentImage(t *testing.T) {
	backend := newBackend()
	colorA := [3]float32{0.9, 0.1, 0.2}
	colorB := [3]float32{0.2, 0.6, 0.4}
	styleImg := solid(backend, 64, colorA)
	contentImg := solid(backend, 64, colorB)

	model, err := style.Assemble(identityNet(backend), nn.NewImageNetNormalization(backend), styleImg, contentImg,
		[]string{"conv_1"}, []string{"conv_1"})
	require.NoError(t, err)

	input := randomImage(backend, 9, 64)
	cfg := style.Config{MaxSteps: 10, StyleWeight: 0, ContentWeight: 1}
	out, state, err := style.Run(model, input, cfg)
	require.NoError(t, err)
	assert.Equal(t, 10, state.Evaluations)

	before, after := meanAbsDiff(input.Data(), contentImg.Data()), meanAbsDiff(out.Data(), contentImg.Data())
	assert.Less(t, after, 0.02, "mean distance to the content color")
	assert.Less(t, after, before/10)
}

func TestRunStyleOnlyMatchesGram(t *testing.T) {
	backend := newBackend()
	styleImg := solid(backend, 16, [3]float32{0.9, 0.1, 0.2})
	contentImg := solid(backend, 16, [3]float32{0.2, 0.6, 0.4})

	model, err := style.Assemble(identityNet(backend), nn.NewImageNetNormalization(backend), styleImg, contentImg,
		[]string{"conv_1"}, []string{"conv_1"})
	require.NoError(t, err)

	var first float64
	cfg := style.Config{
		MaxSteps:    50,
		StyleWeight: 1,
		Optimizer:   optim.NewLBFGS(optim.LBFGSConfig{LineSearch: optim.StrongWolfe}),
		ReportEvery: 1,
		Observer: func(s style.State, _ *tensor.RawTensor) {
			if s.Evaluations == 1 {
				first = s.StyleScore
			}
		},
	}
	out, _, err := style.Run(model, randomImage(backend, 3, 16), cfg)
	require.NoError(t, err)

	var final float64
	autodiff.NoGrad(backend, func() {
		model.Forward(out)
		styleScore, _ := model.Scores(backend)
		final = float64(styleScore.Item())
	})
	require.Greater(t, first, 0.0)
	assert.Less(t, final, first/10, "Gram distance shrinks")
}

func TestRunFailsOnNonFiniteLoss(t *testing.T) {
	backend := newBackend()
	target := tensor.Full(tensor.Shape{1, 3, 2, 2}, float32(math.NaN()), backend)
	loss, err := style.NewContentLoss(target)
	require.NoError(t, err)
	model := &style.Model[Backend]{
		Net:           nn.NewSequential[Backend](loss),
		ContentLosses: []*style.ContentLoss[Backend]{loss},
	}

	_, state, err := style.Run(model, randomImage(backend, 1, 2), style.DefaultConfig(5))
	assert.True(t, errors.Is(err, style.ErrNonFinite), "got %v", err)
	assert.Equal(t, 1, state.Evaluations)
}

func TestRunValidatesConfig(t *testing.T) {
	backend := newBackend()
	img := randomImage(backend, 1, 4)
	model, err := style.Assemble(identityNet(backend), nn.NewImageNetNormalization(backend), img, img,
		[]string{"conv_1"}, nil)
	require.NoError(t, err)

	_, _, err = style.Run(model, img, style.Config{MaxSteps: -1})
	assert.Error(t, err)
	_, _, err = style.Run(model, img, style.Config{MaxSteps: 1, StyleWeight: -1})
	assert.Error(t, err)
	_, _, err = style.Run(&style.Model[Backend]{Net: nn.NewSequential[Backend]()}, img, style.Config{MaxSteps: 1})
	assert.Error(t, err)
}

func meanAbsDiff(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += math.Abs(float64(a[i] - b[i]))
	}
	return s / float64(len(a))
}
