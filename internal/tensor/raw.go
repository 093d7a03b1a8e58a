package tensor

import (
	"fmt"
	"math"
)

// Device represents the compute device for tensor operations.
type Device int

// Supported compute devices.
const (
	CPU Device = iota
	WebGPU
)

// String returns a human-readable device name.
func (d Device) String() string {
	switch d {
	case CPU:
		return "CPU"
	case WebGPU:
		return "WebGPU"
	default:
		return "Unknown"
	}
}

// ParseDevice converts a configuration value ("cpu", "webgpu") to a Device.
func ParseDevice(name string) (Device, error) {
	switch name {
	case "", "cpu", "CPU":
		return CPU, nil
	case "webgpu", "WebGPU", "gpu":
		return WebGPU, nil
	default:
		return CPU, fmt.Errorf("unknown device %q (want cpu or webgpu)", name)
	}
}

// RawTensor is the low-level tensor representation: a dense, row-major
// float32 buffer plus its shape.
//
// Every backend operation allocates a fresh RawTensor. Buffers are never
// shared between two RawTensors, so autodiff can key gradients by pointer
// and a recorded input is never overwritten by a later stage.
type RawTensor struct {
	data   []float32
	shape  Shape
	stride []int
	device Device
}

// NewRaw creates a new zero-filled RawTensor with the given shape.
func NewRaw(shape Shape, device Device) (*RawTensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}

	return &RawTensor{
		data:   make([]float32, shape.NumElements()),
		shape:  shape.Clone(),
		stride: shape.ComputeStrides(),
		device: device,
	}, nil
}

// MustRaw is NewRaw for shapes that are known to be valid.
// Backends use it for result tensors whose shape they computed themselves.
func MustRaw(shape Shape, device Device) *RawTensor {
	r, err := NewRaw(shape, device)
	if err != nil {
		panic(err)
	}
	return r
}

// RawFromSlice creates a RawTensor holding a copy of data.
func RawFromSlice(data []float32, shape Shape, device Device) (*RawTensor, error) {
	if shape.NumElements() != len(data) {
		return nil, fmt.Errorf("shape %v requires %d elements, but got %d", shape, shape.NumElements(), len(data))
	}
	r, err := NewRaw(shape, device)
	if err != nil {
		return nil, err
	}
	copy(r.data, data)
	return r, nil
}

// Shape returns the tensor's shape.
func (r *RawTensor) Shape() Shape {
	return r.shape
}

// Strides returns the tensor's memory strides.
func (r *RawTensor) Strides() []int {
	return r.stride
}

// Device returns the tensor's compute device.
func (r *RawTensor) Device() Device {
	return r.device
}

// NumElements returns the total number of elements.
func (r *RawTensor) NumElements() int {
	return len(r.data)
}

// Data returns the underlying buffer.
// WARNING: Direct access to underlying memory. Writes are visible to every
// holder of this RawTensor.
func (r *RawTensor) Data() []float32 {
	return r.data
}

// Clone creates a deep copy with its own buffer.
func (r *RawTensor) Clone() *RawTensor {
	data := make([]float32, len(r.data))
	copy(data, r.data)
	return &RawTensor{
		data:   data,
		shape:  r.shape.Clone(),
		stride: append([]int(nil), r.stride...),
		device: r.device,
	}
}

// Clamp limits every element to [lo, hi] in place.
// It bypasses any backend, so it is never recorded for autodiff.
func (r *RawTensor) Clamp(lo, hi float32) {
	for i, v := range r.data {
		switch {
		case v < lo:
			r.data[i] = lo
		case v > hi:
			r.data[i] = hi
		}
	}
}

// IsFinite reports whether no element is NaN or ±Inf.
func (r *RawTensor) IsFinite() bool {
	for _, v := range r.data {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}
