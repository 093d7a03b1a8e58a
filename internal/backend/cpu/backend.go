// Package cpu implements the pure Go compute backend.
package cpu

import (
	"sync/atomic"

	"github.com/born-ml/stylize/internal/parallel"
	"github.com/born-ml/stylize/internal/tensor"
)

// MatMulAccelerator offloads dense matrix products to another device.
// It multiplies a row-major (m, k) matrix by a row-major (k, n) matrix.
type MatMulAccelerator interface {
	MatMul(a, b []float32, m, k, n int) ([]float32, error)
	Name() string
}

// Option configures a CPUBackend.
type Option func(*CPUBackend)

// WithParallel sets how kernel loops are split across goroutines.
func WithParallel(cfg parallel.Config) Option {
	return func(cpu *CPUBackend) {
		cpu.par = cfg
	}
}

// WithAccelerator routes products with at least minWork multiply-adds
// (m*k*n) to acc. Products the accelerator rejects fall back to the CPU.
func WithAccelerator(acc MatMulAccelerator, minWork int) Option {
	return func(cpu *CPUBackend) {
		cpu.accel = acc
		cpu.accelMinWork = minWork
	}
}

// CPUBackend implements tensor operations in pure Go.
// Convolutions are lowered to matrix products, so an attached accelerator
// serves both MatMul and Conv2D.
type CPUBackend struct {
	par          parallel.Config
	accel        MatMulAccelerator
	accelMinWork int
	accelFailed  atomic.Int64
}

// New creates a new CPU backend.
func New(opts ...Option) *CPUBackend {
	cpu := &CPUBackend{
		par: parallel.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(cpu)
	}
	return cpu
}

// Name returns the backend name.
func (cpu *CPUBackend) Name() string {
	if cpu.accel != nil {
		return "CPU+" + cpu.accel.Name()
	}
	return "CPU"
}

// Device returns the compute device. A backend with an accelerator reports
// WebGPU; tensor memory always stays on the host.
func (cpu *CPUBackend) Device() tensor.Device {
	if cpu.accel != nil {
		return tensor.WebGPU
	}
	return tensor.CPU
}

// AcceleratorFallbacks reports how many products the accelerator rejected.
func (cpu *CPUBackend) AcceleratorFallbacks() int {
	return int(cpu.accelFailed.Load())
}

func (cpu *CPUBackend) alloc(shape tensor.Shape) *tensor.RawTensor {
	return tensor.MustRaw(shape, cpu.Device())
}
