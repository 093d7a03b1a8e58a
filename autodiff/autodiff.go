// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package autodiff provides reverse-mode automatic differentiation.
//
// A Backend wraps any compute backend and records operations on tensors
// that require gradients while its tape is recording.
//
// Example:
//
//	backend := autodiff.New(cpu.New())
//	x := tensor.Zeros(tensor.Shape{2, 3}, backend).RequireGrad()
//	backend.Tape().StartRecording()
//	y := x.Mul(x).Sum()
//	grads := autodiff.Backward(y, backend)
package autodiff

import (
	"github.com/born-ml/stylize/internal/autodiff"
	"github.com/born-ml/stylize/internal/tensor"
)

// Backend is the autodiff-enabled backend.
type Backend[B tensor.Backend] = autodiff.AutodiffBackend[B]

// New creates a new autodiff backend wrapping the given backend.
func New[B tensor.Backend](backend B) *Backend[B] {
	return autodiff.New(backend)
}

// GradientTape records operations for automatic differentiation.
type GradientTape = autodiff.GradientTape

// BackwardCapable interface for backends that support backpropagation.
type BackwardCapable = autodiff.BackwardCapable

// Backward computes gradients of t with respect to every tracked input.
func Backward[B BackwardCapable](t *tensor.Tensor[B], backend B) map[*tensor.RawTensor]*tensor.RawTensor {
	return autodiff.Backward(t, backend)
}

// NoGrad runs fn with recording suspended.
func NoGrad[B BackwardCapable](backend B, fn func()) {
	autodiff.NoGrad(backend, fn)
}
