//go:build windows

package webgpu

import (
	"encoding/binary"
	"fmt"
	"sync"
	"unsafe"

	"github.com/go-webgpu/webgpu/wgpu"
)

// Accelerator multiplies float32 matrices on a WebGPU device.
// It satisfies cpu.MatMulAccelerator; calls are serialized.
type Accelerator struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue

	shader   *wgpu.ShaderModule
	pipeline *wgpu.ComputePipeline

	mu sync.Mutex
}

// New acquires a high-performance adapter and compiles the matmul pipeline.
// Returns an error wrapping ErrUnavailable if WebGPU cannot be used.
func New() (acc *Accelerator, err error) {
	// Recover from panic if wgpu_native library is not found.
	defer func() {
		if r := recover(); r != nil {
			acc = nil
			err = fmt.Errorf("%w: native library: %v", ErrUnavailable, r)
		}
	}()

	instance := wgpu.CreateInstance(nil)
	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		instance.Release()
		return nil, fmt.Errorf("%w: request adapter: %v", ErrUnavailable, err)
	}

	device, err := adapter.RequestDevice(nil)
	if err != nil {
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("%w: request device: %v", ErrUnavailable, err)
	}

	queue := device.GetQueue()
	if queue == nil {
		device.Release()
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("%w: no queue", ErrUnavailable)
	}

	shader := device.CreateShaderModuleWGSL(matmulShader)
	pipeline := device.CreateComputePipelineSimple(nil, shader, "main")

	return &Accelerator{
		instance: instance,
		adapter:  adapter,
		device:   device,
		queue:    queue,
		shader:   shader,
		pipeline: pipeline,
	}, nil
}

// Name returns the accelerator name.
func (a *Accelerator) Name() string {
	return "WebGPU"
}

// MatMul computes the row-major (m, n) product of a (m, k) and b (k, n).
func (a *Accelerator) MatMul(lhs, rhs []float32, m, k, n int) (out []float32, err error) {
	if len(lhs) != m*k || len(rhs) != k*n {
		return nil, fmt.Errorf("webgpu: matmul operands %d and %d do not match [%d,%d] @ [%d,%d]",
			len(lhs), len(rhs), m, k, k, n)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.device == nil {
		return nil, fmt.Errorf("%w: released", ErrUnavailable)
	}

	// A lost device panics inside the bindings.
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("webgpu: matmul: %v", r)
		}
	}()

	bufferA := a.upload(floatBytes(lhs))
	defer bufferA.Release()
	bufferB := a.upload(floatBytes(rhs))
	defer bufferB.Release()

	resultSize := uint64(m * n * 4) //nolint:gosec // G115: dimensions are positive
	bufferResult := a.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst,
		Size:  resultSize,
	})
	defer bufferResult.Release()

	// Params struct (M, K, N: u32 each), padded to 16 bytes.
	params := make([]byte, 16)
	binary.LittleEndian.PutUint32(params[0:4], uint32(m))  //nolint:gosec // G115
	binary.LittleEndian.PutUint32(params[4:8], uint32(k))  //nolint:gosec // G115
	binary.LittleEndian.PutUint32(params[8:12], uint32(n)) //nolint:gosec // G115
	bufferParams := a.uploadUniform(params)
	defer bufferParams.Release()

	bindGroup := a.device.CreateBindGroupSimple(a.pipeline.GetBindGroupLayout(0), []wgpu.BindGroupEntry{
		wgpu.BufferBindingEntry(0, bufferA, 0, uint64(len(lhs)*4)), //nolint:gosec // G115
		wgpu.BufferBindingEntry(1, bufferB, 0, uint64(len(rhs)*4)), //nolint:gosec // G115
		wgpu.BufferBindingEntry(2, bufferResult, 0, resultSize),
		wgpu.BufferBindingEntry(3, bufferParams, 0, 16),
	})
	defer bindGroup.Release()

	encoder := a.device.CreateCommandEncoder(nil)
	pass := encoder.BeginComputePass(nil)
	pass.SetPipeline(a.pipeline)
	pass.SetBindGroup(0, bindGroup, nil)
	pass.DispatchWorkgroups(
		uint32((n+workgroupTile-1)/workgroupTile), //nolint:gosec // G115
		uint32((m+workgroupTile-1)/workgroupTile), //nolint:gosec // G115
		1)
	pass.End()
	a.queue.Submit(encoder.Finish(nil))

	raw, err := a.download(bufferResult, resultSize)
	if err != nil {
		return nil, err
	}
	out = make([]float32, m*n)
	copy(floatBytes(out), raw)
	return out, nil
}

// Release frees all GPU objects. The accelerator rejects later calls.
func (a *Accelerator) Release() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.pipeline != nil {
		a.pipeline.Release()
		a.pipeline = nil
	}
	if a.shader != nil {
		a.shader.Release()
		a.shader = nil
	}
	if a.queue != nil {
		a.queue.Release()
		a.queue = nil
	}
	if a.device != nil {
		a.device.Release()
		a.device = nil
	}
	if a.adapter != nil {
		a.adapter.Release()
		a.adapter = nil
	}
	if a.instance != nil {
		a.instance.Release()
		a.instance = nil
	}
}

// upload creates a storage buffer initialized with data.
func (a *Accelerator) upload(data []byte) *wgpu.Buffer {
	size := uint64(len(data))
	buffer := a.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc,
		Size:             size,
		MappedAtCreation: wgpu.True,
	})
	mapped := unsafe.Slice((*byte)(buffer.GetMappedRange(0, size)), size) //nolint:gosec // mapped GPU memory
	copy(mapped, data)
	buffer.Unmap()
	return buffer
}

// uploadUniform creates a 16-byte aligned uniform buffer.
func (a *Accelerator) uploadUniform(data []byte) *wgpu.Buffer {
	size := (uint64(len(data)) + 15) &^ 15
	buffer := a.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
		Size:             size,
		MappedAtCreation: wgpu.True,
	})
	mapped := unsafe.Slice((*byte)(buffer.GetMappedRange(0, size)), size) //nolint:gosec // mapped GPU memory
	copy(mapped, data)
	buffer.Unmap()
	return buffer
}

// download copies a storage buffer back to host memory through a staging
// buffer, since storage buffers can't be mapped directly.
func (a *Accelerator) download(src *wgpu.Buffer, size uint64) ([]byte, error) {
	staging := a.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
		Size:  size,
	})
	defer staging.Release()

	encoder := a.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(src, 0, staging, 0, size)
	a.queue.Submit(encoder.Finish(nil))

	if err := staging.MapAsync(a.device, wgpu.MapModeRead, 0, size); err != nil {
		return nil, fmt.Errorf("webgpu: map staging buffer: %w", err)
	}
	mapped := unsafe.Slice((*byte)(staging.GetMappedRange(0, size)), size) //nolint:gosec // mapped GPU memory
	out := make([]byte, size)
	copy(out, mapped)
	staging.Unmap()
	return out, nil
}

// floatBytes views a float32 slice as its little-endian bytes.
func floatBytes(f []float32) []byte {
	if len(f) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&f[0])), len(f)*4) //nolint:gosec // same backing array
}
