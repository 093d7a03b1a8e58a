package cpu

import (
	"fmt"

	"github.com/born-ml/stylize/internal/parallel"
	"github.com/born-ml/stylize/internal/tensor"
)

// MaxPool2D applies 2D max pooling over an NCHW input.
//
// Output spatial size is floor((H - kernel) / stride) + 1; trailing rows
// and columns that do not fill a window are dropped, as in PyTorch with
// ceil_mode=false.
func (cpu *CPUBackend) MaxPool2D(input *tensor.RawTensor, kernelSize, stride int) *tensor.RawTensor {
	n, c, h, w, hOut, wOut := poolGeometry(input.Shape(), kernelSize, stride)

	output := cpu.alloc(tensor.Shape{n, c, hOut, wOut})
	in, out := input.Data(), output.Data()

	parallel.For(n*c, cpu.par, func(p int) {
		plane := in[p*h*w : (p+1)*h*w]
		dst := out[p*hOut*wOut : (p+1)*hOut*wOut]
		for oh := 0; oh < hOut; oh++ {
			for ow := 0; ow < wOut; ow++ {
				dst[oh*wOut+ow] = plane[argmaxWindow(plane, w, oh*stride, ow*stride, kernelSize)]
			}
		}
	})
	return output
}

// MaxPool2DBackward routes each output gradient to the input position that
// won its window. Ties go to the first maximum in row-major order;
// overlapping windows accumulate.
func (cpu *CPUBackend) MaxPool2DBackward(input, grad *tensor.RawTensor, kernelSize, stride int) *tensor.RawTensor {
	n, c, h, w, hOut, wOut := poolGeometry(input.Shape(), kernelSize, stride)
	if !grad.Shape().Equal(tensor.Shape{n, c, hOut, wOut}) {
		panic(fmt.Sprintf("maxpool2d backward: grad shape %v, want %v", grad.Shape(), tensor.Shape{n, c, hOut, wOut}))
	}

	inputGrad := cpu.alloc(input.Shape())
	in, g, dst := input.Data(), grad.Data(), inputGrad.Data()

	parallel.For(n*c, cpu.par, func(p int) {
		plane := in[p*h*w : (p+1)*h*w]
		gradPlane := g[p*hOut*wOut : (p+1)*hOut*wOut]
		dstPlane := dst[p*h*w : (p+1)*h*w]
		for oh := 0; oh < hOut; oh++ {
			for ow := 0; ow < wOut; ow++ {
				dstPlane[argmaxWindow(plane, w, oh*stride, ow*stride, kernelSize)] += gradPlane[oh*wOut+ow]
			}
		}
	})
	return inputGrad
}

func poolGeometry(shape tensor.Shape, kernelSize, stride int) (n, c, h, w, hOut, wOut int) {
	if len(shape) != 4 {
		panic(fmt.Sprintf("maxpool2d: input must be 4D [N,C,H,W], got %dD", len(shape)))
	}
	if kernelSize <= 0 || stride <= 0 {
		panic(fmt.Sprintf("maxpool2d: kernel %d and stride %d must be positive", kernelSize, stride))
	}
	n, c, h, w = shape[0], shape[1], shape[2], shape[3]
	hOut = (h-kernelSize)/stride + 1
	wOut = (w-kernelSize)/stride + 1
	if h < kernelSize || w < kernelSize {
		panic(fmt.Sprintf("maxpool2d: input %dx%d smaller than kernel %d", h, w, kernelSize))
	}
	return n, c, h, w, hOut, wOut
}

// argmaxWindow returns the plane offset of the largest value in the
// kernel×kernel window whose top-left corner is (top, left).
func argmaxWindow(plane []float32, w, top, left, kernel int) int {
	best := top*w + left
	for kh := 0; kh < kernel; kh++ {
		row := (top + kh) * w
		for kw := 0; kw < kernel; kw++ {
			if plane[row+left+kw] > plane[best] {
				best = row + left + kw
			}
		}
	}
	return best
}
