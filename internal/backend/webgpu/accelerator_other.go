//go:build !windows

package webgpu

// Accelerator is unavailable on this platform.
type Accelerator struct{}

// New always fails with ErrUnavailable on this platform.
func New() (*Accelerator, error) {
	return nil, ErrUnavailable
}

// Name returns the accelerator name.
func (a *Accelerator) Name() string {
	return "WebGPU"
}

// MatMul always fails with ErrUnavailable on this platform.
func (a *Accelerator) MatMul(_, _ []float32, _, _, _ int) ([]float32, error) {
	return nil, ErrUnavailable
}

// Release is a no-op on this platform.
func (a *Accelerator) Release() {}
