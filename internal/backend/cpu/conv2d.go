package cpu

import (
	"fmt"

	"github.com/born-ml/stylize/internal/parallel"
	"github.com/born-ml/stylize/internal/tensor"
)

// convGeometry holds the dimensions of one Conv2D call.
type convGeometry struct {
	n, cIn, h, w       int
	cOut, kH, kW       int
	hOut, wOut         int
	stride, padding    int
	patch, outPerImage int // cIn*kH*kW and hOut*wOut
}

func newConvGeometry(input, kernel tensor.Shape, stride, padding int) convGeometry {
	if len(input) != 4 {
		panic(fmt.Sprintf("conv2d: input must be 4D [N,C,H,W], got %dD", len(input)))
	}
	if len(kernel) != 4 {
		panic(fmt.Sprintf("conv2d: kernel must be 4D [C_out,C_in,K_h,K_w], got %dD", len(kernel)))
	}
	if input[1] != kernel[1] {
		panic(fmt.Sprintf("conv2d: input channels %d != kernel channels %d", input[1], kernel[1]))
	}
	if stride <= 0 {
		panic(fmt.Sprintf("conv2d: stride must be positive, got %d", stride))
	}

	g := convGeometry{
		n: input[0], cIn: input[1], h: input[2], w: input[3],
		cOut: kernel[0], kH: kernel[2], kW: kernel[3],
		stride: stride, padding: padding,
	}
	g.hOut = (g.h+2*padding-g.kH)/stride + 1
	g.wOut = (g.w+2*padding-g.kW)/stride + 1
	if g.hOut <= 0 || g.wOut <= 0 {
		panic(fmt.Sprintf("conv2d: invalid output dimensions: out_h=%d, out_w=%d (check stride/padding)", g.hOut, g.wOut))
	}
	g.patch = g.cIn * g.kH * g.kW
	g.outPerImage = g.hOut * g.wOut
	return g
}

// Conv2D performs 2D convolution using the im2col algorithm.
//
// Input shape: [batch, in_channels, height, width]
// Kernel shape: [out_channels, in_channels, kernel_h, kernel_w]
// Output shape: [batch, out_channels, out_h, out_w]
//
// For every image the input patches are unfolded into a column matrix
// [C_in*K_h*K_w, H_out*W_out]; the kernel, viewed as [C_out, C_in*K_h*K_w],
// multiplies it to produce the image's output planes directly.
func (cpu *CPUBackend) Conv2D(input, kernel *tensor.RawTensor, stride, padding int) *tensor.RawTensor {
	g := newConvGeometry(input.Shape(), kernel.Shape(), stride, padding)

	output := cpu.alloc(tensor.Shape{g.n, g.cOut, g.hOut, g.wOut})
	out := output.Data()
	in := input.Data()
	col := make([]float32, g.patch*g.outPerImage)

	for b := 0; b < g.n; b++ {
		cpu.im2col(col, in[b*g.cIn*g.h*g.w:(b+1)*g.cIn*g.h*g.w], g)
		cpu.gemm(out[b*g.cOut*g.outPerImage:(b+1)*g.cOut*g.outPerImage], kernel.Data(), col,
			g.cOut, g.patch, g.outPerImage)
	}
	return output
}

// im2col unfolds one image [C, H, W] into col [C*K_h*K_w, H_out*W_out].
// Out-of-bounds taps read zero padding.
func (cpu *CPUBackend) im2col(col, img []float32, g convGeometry) {
	parallel.Range(g.patch, cpu.par, func(lo, hi int) {
		for row := lo; row < hi; row++ {
			c := row / (g.kH * g.kW)
			kh := (row / g.kW) % g.kH
			kw := row % g.kW
			dst := col[row*g.outPerImage : (row+1)*g.outPerImage]
			plane := img[c*g.h*g.w : (c+1)*g.h*g.w]
			for oh := 0; oh < g.hOut; oh++ {
				ih := oh*g.stride - g.padding + kh
				for ow := 0; ow < g.wOut; ow++ {
					iw := ow*g.stride - g.padding + kw
					v := float32(0)
					if ih >= 0 && ih < g.h && iw >= 0 && iw < g.w {
						v = plane[ih*g.w+iw]
					}
					dst[oh*g.wOut+ow] = v
				}
			}
		}
	})
}

// col2im folds col [C*K_h*K_w, H_out*W_out] back into img [C, H, W],
// accumulating overlapping taps. Each channel is owned by one worker.
func (cpu *CPUBackend) col2im(img, col []float32, g convGeometry) {
	taps := g.kH * g.kW
	parallel.Range(g.cIn, cpu.par, func(lo, hi int) {
		for c := lo; c < hi; c++ {
			plane := img[c*g.h*g.w : (c+1)*g.h*g.w]
			for t := 0; t < taps; t++ {
				kh, kw := t/g.kW, t%g.kW
				src := col[(c*taps+t)*g.outPerImage : (c*taps+t+1)*g.outPerImage]
				for oh := 0; oh < g.hOut; oh++ {
					ih := oh*g.stride - g.padding + kh
					if ih < 0 || ih >= g.h {
						continue
					}
					for ow := 0; ow < g.wOut; ow++ {
						iw := ow*g.stride - g.padding + kw
						if iw < 0 || iw >= g.w {
							continue
						}
						plane[ih*g.w+iw] += src[oh*g.wOut+ow]
					}
				}
			}
		}
	})
}
