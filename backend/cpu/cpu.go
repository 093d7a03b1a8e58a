// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides the pure Go compute backend.
//
// Kernels are parallelized across goroutines. Convolutions are lowered to
// matrix products, which can be routed to an accelerator such as the
// WebGPU one in backend/webgpu.
package cpu

import (
	internalcpu "github.com/born-ml/stylize/internal/backend/cpu"
	"github.com/born-ml/stylize/internal/tensor"
)

// Backend represents the CPU backend implementation.
type Backend = internalcpu.CPUBackend

// Compile-time check that Backend implements tensor.Backend.
var _ tensor.Backend = (*Backend)(nil)

// Option configures a Backend.
type Option = internalcpu.Option

// MatMulAccelerator offloads dense matrix products to another device.
type MatMulAccelerator = internalcpu.MatMulAccelerator

// New creates a new CPU backend.
//
// Example:
//
//	backend := cpu.New()
//	x := tensor.Zeros(tensor.Shape{2, 3}, backend)
func New(opts ...Option) *Backend {
	return internalcpu.New(opts...)
}

// WithAccelerator routes products with at least minWork multiply-adds to
// acc.
func WithAccelerator(acc MatMulAccelerator, minWork int) Option {
	return internalcpu.WithAccelerator(acc, minWork)
}
