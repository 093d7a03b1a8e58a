// Package webgpu offloads dense matrix products to the GPU.
// Uses go-webgpu (github.com/go-webgpu/webgpu) for zero-CGO WebGPU bindings;
// the device is only reachable on Windows builds.
package webgpu

import "errors"

// ErrUnavailable is returned when no WebGPU adapter or native library can
// be used on this machine.
var ErrUnavailable = errors.New("webgpu: not available")
