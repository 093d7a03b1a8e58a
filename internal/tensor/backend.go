package tensor

// Backend defines the interface that all compute backends must implement.
// Backends handle the actual computation for tensor operations and always
// return newly allocated results.
//
// Implementations:
//   - cpu.CPUBackend: pure Go, optionally offloading MatMul to WebGPU
//   - autodiff.AutodiffBackend: decorator that records operations on a tape
type Backend interface {
	// Element-wise binary operations (NumPy broadcasting)
	Add(a, b *RawTensor) *RawTensor
	Sub(a, b *RawTensor) *RawTensor
	Mul(a, b *RawTensor) *RawTensor
	Div(a, b *RawTensor) *RawTensor

	// Scalar operations
	MulScalar(x *RawTensor, scalar float32) *RawTensor
	AddScalar(x *RawTensor, scalar float32) *RawTensor

	// Matrix operations (2D only)
	MatMul(a, b *RawTensor) *RawTensor

	// Shape operations
	Reshape(t *RawTensor, newShape Shape) *RawTensor
	Transpose(t *RawTensor, axes ...int) *RawTensor

	// Reductions
	Sum(x *RawTensor) *RawTensor // total sum (scalar result)

	// Activations
	ReLU(x *RawTensor) *RawTensor

	// Convolutional operations
	Conv2D(input, kernel *RawTensor, stride, padding int) *RawTensor
	Conv2DInputBackward(input, kernel, grad *RawTensor, stride, padding int) *RawTensor
	Conv2DKernelBackward(input, kernel, grad *RawTensor, stride, padding int) *RawTensor
	MaxPool2D(input *RawTensor, kernelSize, stride int) *RawTensor
	MaxPool2DBackward(input, grad *RawTensor, kernelSize, stride int) *RawTensor

	// Metadata
	Name() string
	Device() Device
}

// GradTracker is implemented by backends that record operations for
// automatic differentiation. Watch marks a leaf tensor whose gradient is
// wanted; operations whose inputs do not depend on a watched tensor are not
// recorded.
type GradTracker interface {
	Watch(raw *RawTensor)
}
