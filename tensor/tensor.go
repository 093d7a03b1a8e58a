// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the public API for the float32 tensors used by
// the style transfer pipeline.
//
// The package defines:
//   - Tensor[B]: a tensor bound to a compute backend
//   - RawTensor: the backend-independent storage with shape and device
//   - Backend: the interface compute implementations satisfy
//   - Shape, Device: core type definitions
//
// Example:
//
//	backend := cpu.New()
//	x := tensor.Zeros(tensor.Shape{1, 3, 64, 64}, backend)
//	y := x.AddScalar(0.5)
package tensor

import (
	"math/rand"

	"github.com/born-ml/stylize/internal/tensor"
)

// Tensor is a float32 tensor bound to a backend.
type Tensor[B Backend] = tensor.Tensor[B]

// RawTensor holds a tensor's data, shape and device.
type RawTensor = tensor.RawTensor

// Backend is implemented by compute backends.
type Backend = tensor.Backend

// Shape represents the dimensions of a tensor.
type Shape = tensor.Shape

// Device identifies where a tensor's data lives.
type Device = tensor.Device

// Supported devices.
const (
	CPU    = tensor.CPU
	WebGPU = tensor.WebGPU
)

// FromSlice creates a tensor from data, which must match shape.
func FromSlice[B Backend](data []float32, shape Shape, backend B) (*Tensor[B], error) {
	return tensor.FromSlice(data, shape, backend)
}

// Zeros creates a tensor filled with zeros.
func Zeros[B Backend](shape Shape, backend B) *Tensor[B] {
	return tensor.Zeros(shape, backend)
}

// Ones creates a tensor filled with ones.
func Ones[B Backend](shape Shape, backend B) *Tensor[B] {
	return tensor.Ones(shape, backend)
}

// Full creates a tensor filled with value.
func Full[B Backend](shape Shape, value float32, backend B) *Tensor[B] {
	return tensor.Full(shape, value, backend)
}

// Randn creates a tensor of standard normal values drawn from rng.
func Randn[B Backend](shape Shape, rng *rand.Rand, backend B) *Tensor[B] {
	return tensor.Randn(shape, rng, backend)
}

// Rand creates a tensor of values drawn uniformly from [0, 1).
func Rand[B Backend](shape Shape, rng *rand.Rand, backend B) *Tensor[B] {
	return tensor.Rand(shape, rng, backend)
}

// RawFromSlice creates raw storage from data, which must match shape.
func RawFromSlice(data []float32, shape Shape, device Device) (*RawTensor, error) {
	return tensor.RawFromSlice(data, shape, device)
}
