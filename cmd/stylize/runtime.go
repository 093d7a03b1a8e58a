package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"strings"

	"github.com/born-ml/stylize/internal/autodiff"
	"github.com/born-ml/stylize/internal/backend/cpu"
	"github.com/born-ml/stylize/internal/backend/webgpu"
	"github.com/born-ml/stylize/internal/config"
	"github.com/born-ml/stylize/internal/features"
	"github.com/born-ml/stylize/internal/nn"
	"github.com/born-ml/stylize/internal/onnx"
	"github.com/born-ml/stylize/internal/weights"
)

// Backend is the differentiable CPU backend every command runs on.
type Backend = *autodiff.AutodiffBackend[*cpu.CPUBackend]

// acceleratorMinWork is the smallest product (m*k*n multiply-adds) worth
// sending to the GPU.
const acceleratorMinWork = 1 << 20

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// newBackend builds the backend for device. A missing WebGPU device falls
// back to the CPU with a warning. The returned release func frees the GPU.
func newBackend(device string, logger *slog.Logger) (Backend, func(), error) {
	switch device {
	case config.DeviceCPU:
		return autodiff.New(cpu.New()), func() {}, nil
	case config.DeviceWebGPU:
		acc, err := webgpu.New()
		if err != nil {
			if !errors.Is(err, webgpu.ErrUnavailable) {
				return nil, nil, err
			}
			logger.Warn("webgpu unavailable, using cpu", "err", err)
			return autodiff.New(cpu.New()), func() {}, nil
		}
		logger.Info("using accelerator", "name", acc.Name())
		return autodiff.New(cpu.New(cpu.WithAccelerator(acc, acceleratorMinWork))), acc.Release, nil
	default:
		return nil, nil, fmt.Errorf("unknown device %q", device)
	}
}

// loadNetwork builds the configured feature network and its input
// normalization.
func loadNetwork(cfg *config.Config, backend Backend, logger *slog.Logger) (*nn.Sequential[Backend], *nn.Normalization[Backend], error) {
	norm, err := nn.NewNormalization(cfg.Normalization.Mean, cfg.Normalization.Std, backend)
	if err != nil {
		return nil, nil, err
	}

	if cfg.Network.ONNX != "" {
		net, err := onnx.Load(cfg.Network.ONNX, backend)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("imported network", "path", cfg.Network.ONNX, "stages", net.Len())
		return net, norm, nil
	}

	rng := rand.New(rand.NewSource(cfg.Seed)) //nolint:gosec // weight initialization is not security sensitive
	net, err := buildArchitecture(cfg.Network, rng, backend)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Network.Weights == "" {
		logger.Warn("no weights configured, using randomly initialized network", "arch", cfg.Network.Arch)
		return net, norm, nil
	}
	if err := weights.LoadInto(net, cfg.Network.Weights, logger); err != nil {
		return nil, nil, err
	}
	return net, norm, nil
}

// buildArchitecture builds a named architecture, or the custom layer list
// when one is configured.
func buildArchitecture(network config.Network, rng *rand.Rand, backend Backend) (*nn.Sequential[Backend], error) {
	if len(network.Layers) == 0 {
		return features.Build(network.Arch, rng, backend)
	}
	layers, err := features.ParseConfig(network.Layers)
	if err != nil {
		return nil, err
	}
	return features.FromConfig(layers, 3, strings.HasSuffix(network.Arch, "_bn"), rng, backend)
}
