// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package style_test

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/stylize/autodiff"
	"github.com/born-ml/stylize/backend/cpu"
	"github.com/born-ml/stylize/nn"
	"github.com/born-ml/stylize/style"
	"github.com/born-ml/stylize/tensor"
)

type Backend = *autodiff.Backend[*cpu.Backend]

func Example() {
	backend := autodiff.New(cpu.New())
	rng := rand.New(rand.NewSource(1))

	net := nn.NewSequential[Backend](
		nn.NewConv2D(3, 4, 3, 3, 1, 1, true, rng, backend),
		nn.NewReLUInPlace[Backend](),
		nn.NewMaxPool2D(2, 2, backend),
		nn.NewConv2D(4, 4, 3, 3, 1, 1, true, rng, backend),
	)
	fmt.Println(style.StageNames(net))

	styleImg := tensor.Rand(tensor.Shape{1, 3, 8, 8}, rng, backend)
	contentImg := tensor.Rand(tensor.Shape{1, 3, 8, 8}, rng, backend)
	model, err := style.Assemble(net, nn.NewImageNetNormalization(backend),
		styleImg, contentImg, []string{"conv_2"}, []string{"conv_1", "relu_1"})
	if err != nil {
		fmt.Println(err)
		return
	}

	cfg := style.DefaultConfig(6)
	cfg.RunID = "example"
	out, state, err := style.Run(model, contentImg, cfg)
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(state.Evaluations, out.Shape())
	// Output:
	// [conv_1 relu_1 pool_1 conv_2]
	// 6 [1 3 8 8]
}

func ExampleNewExtractor() {
	backend := autodiff.New(cpu.New())
	rng := rand.New(rand.NewSource(1))
	net := nn.NewSequential[Backend](
		nn.NewConv2D(3, 4, 3, 3, 1, 1, true, rng, backend),
		nn.NewReLUInPlace[Backend](),
		nn.NewMaxPool2D(2, 2, backend),
	)

	ext := style.NewExtractor(net, nn.NewImageNetNormalization(backend))
	acts, err := ext.Forward(tensor.Rand(tensor.Shape{1, 3, 8, 8}, rng, backend), "relu_1", "pool_1")
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(acts["relu_1"].Shape(), acts["pool_1"].Shape())
	// Output:
	// [1 4 8 8] [1 4 4 4]
}
