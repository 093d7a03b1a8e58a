package features

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"

	"github.com/born-ml/stylize/internal/nn"
	"github.com/born-ml/stylize/internal/tensor"
)

// M marks a 2x2 max pooling stage in a configuration list.
const M = 0

// Layer configurations of torchvision's VGG family.
var configs = map[string][]int{
	"vgg11": {64, M, 128, M, 256, 256, M, 512, 512, M, 512, 512, M},
	"vgg13": {64, 64, M, 128, 128, M, 256, 256, M, 512, 512, M, 512, 512, M},
	"vgg16": {64, 64, M, 128, 128, M, 256, 256, 256, M, 512, 512, 512, M, 512, 512, 512, M},
	"vgg19": {64, 64, M, 128, 128, M, 256, 256, 256, 256, M, 512, 512, 512, 512, M, 512, 512, 512, 512, M},
}

// Architectures lists the names accepted by Build, in a stable order.
func Architectures() []string {
	names := make([]string, 0, 2*len(configs))
	for _, base := range []string{"vgg11", "vgg13", "vgg16", "vgg19"} {
		names = append(names, base, base+"_bn")
	}
	return names
}

// Build constructs the convolutional part of a named architecture
// ("vgg19", "vgg16_bn", ...). Weights are Xavier-initialized; load
// pretrained ones with the weights package.
func Build[B tensor.Backend](arch string, rng *rand.Rand, backend B) (*nn.Sequential[B], error) {
	name := strings.ToLower(arch)
	base, batchNorm := strings.CutSuffix(name, "_bn")
	cfg, ok := configs[base]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownArchitecture, arch)
	}
	return FromConfig(cfg, 3, batchNorm, rng, backend)
}

// VGG19 returns the 37 feature stages of torchvision's vgg19.
func VGG19[B tensor.Backend](rng *rand.Rand, backend B) *nn.Sequential[B] {
	net, err := FromConfig(configs["vgg19"], 3, false, rng, backend)
	if err != nil {
		panic(err) // built-in configuration
	}
	return net
}

// VGG16 returns the 31 feature stages of torchvision's vgg16.
func VGG16[B tensor.Backend](rng *rand.Rand, backend B) *nn.Sequential[B] {
	net, err := FromConfig(configs["vgg16"], 3, false, rng, backend)
	if err != nil {
		panic(err) // built-in configuration
	}
	return net
}

// FromConfig builds a VGG-style feature network the way torchvision's
// make_layers does: each positive entry is a 3x3 convolution with padding
// 1 (optionally followed by batch normalization) and an in-place ReLU;
// each M is a 2x2 max pooling with stride 2. Stages are named by index,
// so checkpoint keys like "16.weight" line up.
func FromConfig[B tensor.Backend](cfg []int, inChannels int, batchNorm bool, rng *rand.Rand, backend B) (*nn.Sequential[B], error) {
	if inChannels <= 0 {
		return nil, fmt.Errorf("features: invalid input channels %d", inChannels)
	}
	net := nn.NewSequential[B]()
	channels := inChannels
	for i, v := range cfg {
		switch {
		case v == M:
			net.Add(nn.NewMaxPool2D(2, 2, backend))
		case v > 0:
			net.Add(nn.NewConv2D(channels, v, 3, 3, 1, 1, true, rng, backend))
			if batchNorm {
				net.Add(nn.NewBatchNorm2D(v, 1e-5, backend))
			}
			net.Add(nn.NewReLUInPlace[B]())
			channels = v
		default:
			return nil, fmt.Errorf("features: invalid configuration entry %d at %d", v, i)
		}
	}
	return net, nil
}

// ParseConfig parses a textual configuration list such as
// ["64", "64", "M", "128"] into the form FromConfig takes.
func ParseConfig(items []string) ([]int, error) {
	cfg := make([]int, len(items))
	for i, item := range items {
		item = strings.TrimSpace(item)
		if strings.EqualFold(item, "M") {
			cfg[i] = M
			continue
		}
		v, err := strconv.Atoi(item)
		if err != nil || v <= 0 {
			return nil, fmt.Errorf("features: configuration entry %q at %d: want a positive channel count or M", item, i)
		}
		cfg[i] = v
	}
	return cfg, nil
}
