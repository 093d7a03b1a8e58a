package cpu

import (
	"github.com/born-ml/stylize/internal/tensor"
)

// Conv2DInputBackward computes the gradient with respect to the input.
//
// Per image: dCol = Kᵀ @ dOut, where K is the kernel viewed as
// [C_out, C_in*K_h*K_w] and dOut is [C_out, H_out*W_out]; dCol is then
// folded back onto the input grid (col2im), summing overlapping taps.
func (cpu *CPUBackend) Conv2DInputBackward(input, kernel, grad *tensor.RawTensor, stride, padding int) *tensor.RawTensor {
	g := newConvGeometry(input.Shape(), kernel.Shape(), stride, padding)

	inputGrad := cpu.alloc(input.Shape())
	dst := inputGrad.Data()
	gradData := grad.Data()

	kernelT := make([]float32, g.patch*g.cOut)
	transpose2D(kernelT, kernel.Data(), g.cOut, g.patch)
	dCol := make([]float32, g.patch*g.outPerImage)

	imgSize := g.cIn * g.h * g.w
	outSize := g.cOut * g.outPerImage
	for b := 0; b < g.n; b++ {
		cpu.gemm(dCol, kernelT, gradData[b*outSize:(b+1)*outSize], g.patch, g.cOut, g.outPerImage)
		cpu.col2im(dst[b*imgSize:(b+1)*imgSize], dCol, g)
	}
	return inputGrad
}

// Conv2DKernelBackward computes the gradient with respect to the kernel.
//
// dK = Σ_images dOut @ colᵀ, with col the im2col matrix of each image.
func (cpu *CPUBackend) Conv2DKernelBackward(input, kernel, grad *tensor.RawTensor, stride, padding int) *tensor.RawTensor {
	g := newConvGeometry(input.Shape(), kernel.Shape(), stride, padding)

	kernelGrad := cpu.alloc(kernel.Shape())
	dst := kernelGrad.Data()
	in := input.Data()
	gradData := grad.Data()

	col := make([]float32, g.patch*g.outPerImage)
	colT := make([]float32, g.outPerImage*g.patch)
	partial := make([]float32, g.cOut*g.patch)

	imgSize := g.cIn * g.h * g.w
	outSize := g.cOut * g.outPerImage
	for b := 0; b < g.n; b++ {
		cpu.im2col(col, in[b*imgSize:(b+1)*imgSize], g)
		transpose2D(colT, col, g.patch, g.outPerImage)
		cpu.gemm(partial, gradData[b*outSize:(b+1)*outSize], colT, g.cOut, g.outPerImage, g.patch)
		for i, v := range partial {
			dst[i] += v
		}
	}
	return kernelGrad
}
