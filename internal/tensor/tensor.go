package tensor

import "fmt"

// Tensor is a float32 tensor bound to a computation backend B.
//
// Example:
//
//	backend := cpu.New()
//	t := tensor.Zeros(Shape{1, 3, 8, 8}, backend)
//	y := t.Add(t)
type Tensor[B Backend] struct {
	raw     *RawTensor
	backend B
}

// New creates a Tensor from a RawTensor and backend.
func New[B Backend](raw *RawTensor, b B) *Tensor[B] {
	return &Tensor[B]{
		raw:     raw,
		backend: b,
	}
}

// FromSlice creates a tensor from a Go slice.
// The slice is copied into the tensor's memory.
func FromSlice[B Backend](data []float32, shape Shape, b B) (*Tensor[B], error) {
	raw, err := RawFromSlice(data, shape, b.Device())
	if err != nil {
		return nil, err
	}
	return New(raw, b), nil
}

// Shape returns the tensor's shape.
func (t *Tensor[B]) Shape() Shape {
	return t.raw.Shape()
}

// Device returns the tensor's compute device.
func (t *Tensor[B]) Device() Device {
	return t.raw.Device()
}

// NumElements returns the total number of elements.
func (t *Tensor[B]) NumElements() int {
	return t.raw.NumElements()
}

// Raw returns the underlying RawTensor.
// Used by backend implementations for low-level operations.
func (t *Tensor[B]) Raw() *RawTensor {
	return t.raw
}

// Backend returns the computation backend.
func (t *Tensor[B]) Backend() B {
	return t.backend
}

// Data returns the underlying buffer.
func (t *Tensor[B]) Data() []float32 {
	return t.raw.Data()
}

// Item returns the single value of a one-element tensor.
func (t *Tensor[B]) Item() float32 {
	if t.NumElements() != 1 {
		panic(fmt.Sprintf("Item: tensor has %d elements, want 1", t.NumElements()))
	}
	return t.raw.Data()[0]
}

// Detach returns a copy of the tensor that no operation history can reach.
//
// The copy owns a new buffer, so the autodiff tape never sees it as the
// output of a recorded operation and gradients stop here. Loss targets are
// always detached.
func (t *Tensor[B]) Detach() *Tensor[B] {
	return New(t.raw.Clone(), t.backend)
}

// Clone creates a deep copy of the tensor.
func (t *Tensor[B]) Clone() *Tensor[B] {
	return New(t.raw.Clone(), t.backend)
}

// RequireGrad marks the tensor as a differentiation leaf on backends that
// record gradients. It is a no-op on plain backends.
func (t *Tensor[B]) RequireGrad() *Tensor[B] {
	if tracker, ok := any(t.backend).(GradTracker); ok {
		tracker.Watch(t.raw)
	}
	return t
}

// String returns a short description of the tensor.
func (t *Tensor[B]) String() string {
	return fmt.Sprintf("Tensor(shape=%v, device=%s)", t.Shape(), t.Device())
}
