package features_test

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/born-ml/stylize/internal/autodiff"
	"github.com/born-ml/stylize/internal/backend/cpu"
	"github.com/born-ml/stylize/internal/features"
	"github.com/born-ml/stylize/internal/nn"
	"github.com/born-ml/stylize/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Backend = *autodiff.AutodiffBackend[*cpu.CPUBackend]

func TestClassify(t *testing.T) {
	backend := autodiff.New(cpu.New())
	tests := []struct {
		module nn.Module[Backend]
		want   features.StageKind
	}{
		{nn.NewConv2D(1, 1, 3, 3, 1, 1, true, nil, backend), features.Convolution},
		{nn.NewReLU[Backend](), features.Nonlinearity},
		{nn.NewMaxPool2D(2, 2, backend), features.Pooling},
		{nn.NewBatchNorm2D(1, 1e-5, backend), features.BatchNorm},
		{nn.NewOpaque[Backend]("Softmax"), features.Unsupported},
		{nn.NewImageNetNormalization(backend), features.Unsupported},
		{nn.NewSequential[Backend](), features.Unsupported},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, features.Classify(tt.module), "%T", tt.module)
	}
}

func TestStageNamesFollowConvolutionCount(t *testing.T) {
	backend := autodiff.New(cpu.New())
	net, err := features.FromConfig([]int{4, features.M, 8}, 3, true, nil, backend)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"conv_1", "bn_1", "relu_1", "pool_1",
		"conv_2", "bn_2", "relu_2",
	}, features.StageNames(net))

	net.Add(nn.NewOpaque[Backend]("Flatten"))
	stages := features.Describe(net)
	last := stages[len(stages)-1]
	assert.Equal(t, "", last.Name)
	assert.Equal(t, features.Unsupported, last.Kind)
	assert.Equal(t, "Opaque(Flatten)", last.Desc)
}

func TestVGGLayouts(t *testing.T) {
	backend := autodiff.New(cpu.New())
	rng := rand.New(rand.NewSource(1))

	vgg19 := features.VGG19(rng, backend)
	assert.Equal(t, 37, vgg19.Len())
	names := features.StageNames(vgg19)
	assert.Equal(t, "conv_1", names[0])
	assert.Equal(t, "conv_4", names[7])
	assert.Equal(t, "pool_16", names[36])

	vgg16 := features.VGG16(rng, backend)
	assert.Equal(t, 31, vgg16.Len())

	conv, ok := vgg19.Module(34).(*nn.Conv2D[Backend])
	require.True(t, ok, "stage 34 is the last convolution")
	assert.Equal(t, 512, conv.OutChannels())

	relu, ok := vgg19.Module(1).(*nn.ReLU[Backend])
	require.True(t, ok)
	assert.True(t, relu.InPlace())
}

func TestBuild(t *testing.T) {
	backend := autodiff.New(cpu.New())

	net, err := features.Build("VGG11_bn", nil, backend)
	require.NoError(t, err)
	assert.Equal(t, features.BatchNorm, features.Classify(net.Module(1)))

	_, err = features.Build("resnet50", nil, backend)
	assert.True(t, errors.Is(err, features.ErrUnknownArchitecture))
	assert.Contains(t, features.Architectures(), "vgg19")
}

func TestParseConfig(t *testing.T) {
	cfg, err := features.ParseConfig([]string{"64", "m", " 128 "})
	require.NoError(t, err)
	assert.Equal(t, []int{64, features.M, 128}, cfg)

	_, err = features.ParseConfig([]string{"64", "pool"})
	assert.Error(t, err)
	_, err = features.ParseConfig([]string{"-3"})
	assert.Error(t, err)
}

func TestWithoutInPlace(t *testing.T) {
	inPlace := nn.NewReLUInPlace[Backend]()
	replaced := features.WithoutInPlace[Backend](inPlace)
	assert.NotSame(t, inPlace, replaced)
	assert.False(t, replaced.(*nn.ReLU[Backend]).InPlace())

	plain := nn.NewReLU[Backend]()
	assert.Same(t, plain, features.WithoutInPlace[Backend](plain))
}

func TestExtractorForward(t *testing.T) {
	backend := autodiff.New(cpu.New())
	rng := rand.New(rand.NewSource(2))
	net, err := features.FromConfig([]int{4, features.M, 6}, 3, false, rng, backend)
	require.NoError(t, err)
	ext := features.NewExtractor(net, nn.NewImageNetNormalization(backend))

	x := tensor.Rand(tensor.Shape{1, 3, 8, 8}, rng, backend)
	acts, err := ext.Forward(x, "conv_1", "relu_1", "pool_1")
	require.NoError(t, err)
	require.Len(t, acts, 3)

	assert.Equal(t, tensor.Shape{1, 4, 8, 8}, acts["conv_1"].Shape())
	assert.Equal(t, tensor.Shape{1, 4, 4, 4}, acts["pool_1"].Shape())

	// conv_1 must survive the ReLU that follows it.
	hasNegative := false
	for _, v := range acts["conv_1"].Data() {
		if v < 0 {
			hasNegative = true
			break
		}
	}
	assert.True(t, hasNegative, "convolution output was overwritten by an in-place activation")

	// The caller's network keeps its in-place activation.
	assert.True(t, net.Module(1).(*nn.ReLU[Backend]).InPlace())

	full, err := ext.Forward(x)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{1, 6, 4, 4}, full[""].Shape())
}

func TestExtractorErrors(t *testing.T) {
	backend := autodiff.New(cpu.New())
	net := nn.NewSequential[Backend](
		nn.NewConv2D(3, 2, 3, 3, 1, 1, true, nil, backend),
		nn.NewOpaque[Backend]("Softmax"),
		nn.NewConv2D(2, 2, 3, 3, 1, 1, true, nil, backend),
	)
	ext := features.NewExtractor(net, nn.NewImageNetNormalization(backend))
	x := tensor.Zeros(tensor.Shape{1, 3, 4, 4}, backend)

	_, err := ext.Forward(x, "conv_1")
	assert.NoError(t, err, "stages after the deepest requested layer are never evaluated")

	_, err = ext.Forward(x, "conv_2")
	assert.True(t, errors.Is(err, features.ErrUnsupportedStage))

	_, err = ext.Forward(x, "conv_9")
	assert.True(t, errors.Is(err, features.ErrUnknownLayer))
}
