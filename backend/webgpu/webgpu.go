// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package webgpu exposes the WebGPU matrix multiplication accelerator.
//
// Example:
//
//	acc, err := webgpu.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer acc.Release()
//	backend := cpu.New(cpu.WithAccelerator(acc, 1<<20))
package webgpu

import (
	internalwebgpu "github.com/born-ml/stylize/internal/backend/webgpu"
)

// Accelerator multiplies float32 matrices on a WebGPU device.
type Accelerator = internalwebgpu.Accelerator

// ErrUnavailable is returned when WebGPU cannot be used on this machine.
var ErrUnavailable = internalwebgpu.ErrUnavailable

// New acquires a device and compiles the matmul pipeline.
func New() (*Accelerator, error) {
	return internalwebgpu.New()
}
