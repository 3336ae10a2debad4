package cpu

import (
	"fmt"

	"github.com/born-ml/stylize/internal/parallel"
	"github.com/born-ml/stylize/internal/tensor"
)

// convGeometry holds the dimensions shared by the forward and backward kernels.
type convGeometry struct {
	N, CIn, H, W     int
	COut, KH, KW     int
	HOut, WOut       int
	stride, padding  int
	colRows, colCols int // im2col matrix: [CIn*KH*KW, HOut*WOut]
}

func newConvGeometry(op string, input, kernel *tensor.RawTensor, stride, padding int) convGeometry {
	inputShape := input.Shape()
	kernelShape := kernel.Shape()

	if len(inputShape) != 4 {
		panic(fmt.Sprintf("%s: input must be 4D [N,C,H,W], got %dD", op, len(inputShape)))
	}
	if len(kernelShape) != 4 {
		panic(fmt.Sprintf("%s: kernel must be 4D [C_out,C_in,K_h,K_w], got %dD", op, len(kernelShape)))
	}
	if stride <= 0 || padding < 0 {
		panic(fmt.Sprintf("%s: invalid stride %d / padding %d", op, stride, padding))
	}

	g := convGeometry{
		N: inputShape[0], CIn: inputShape[1], H: inputShape[2], W: inputShape[3],
		COut: kernelShape[0], KH: kernelShape[2], KW: kernelShape[3],
		stride: stride, padding: padding,
	}
	if g.CIn != kernelShape[1] {
		panic(fmt.Sprintf("%s: input channels %d != kernel channels %d", op, g.CIn, kernelShape[1]))
	}

	// out = (in + 2*padding - k) / stride + 1
	g.HOut = (g.H+2*padding-g.KH)/stride + 1
	g.WOut = (g.W+2*padding-g.KW)/stride + 1
	if g.HOut <= 0 || g.WOut <= 0 {
		panic(fmt.Sprintf("%s: invalid output dimensions: out_h=%d, out_w=%d (check stride/padding)", op, g.HOut, g.WOut))
	}

	g.colRows = g.CIn * g.KH * g.KW
	g.colCols = g.HOut * g.WOut
	return g
}

// Conv2D performs 2D convolution using the im2col algorithm.
//
// Input shape: [batch, in_channels, height, width]
// Kernel shape: [out_channels, in_channels, kernel_h, kernel_w]
// Output shape: [batch, out_channels, out_h, out_w]
//
// Algorithm, per batch item:
//  1. Unfold input patches into a column matrix [C_in*K_h*K_w, H_out*W_out]
//  2. Multiply the kernel matrix [C_out, C_in*K_h*K_w] by it
//  3. The product is already laid out as [C_out, H_out, W_out]
//
// Output channels are split across workers.
//
// Reference: "High Performance Convolutional Neural Networks for Document Processing"
// (Chellapilla et al., 2006).
func (cpu *CPUBackend) Conv2D(input, kernel *tensor.RawTensor, stride, padding int) *tensor.RawTensor {
	dtype := sameDType("conv2d", input, kernel)
	g := newConvGeometry("conv2d", input, kernel, stride, padding)

	output := cpu.alloc("conv2d", tensor.Shape{g.N, g.COut, g.HOut, g.WOut}, dtype)
	dispatch("conv2d", dtype,
		func() { conv2dKernel[float32](output, input, kernel, g, cpu.par) },
		func() { conv2dKernel[float64](output, input, kernel, g, cpu.par) })
	return output
}

func conv2dKernel[T tensor.DType](output, input, kernel *tensor.RawTensor, g convGeometry, par parallel.Config) {
	inputData := tensor.Values[T](input)
	kernelData := tensor.Values[T](kernel)
	outputData := tensor.Values[T](output)

	col := make([]T, g.colRows*g.colCols)
	sampleIn := g.CIn * g.H * g.W
	sampleOut := g.COut * g.colCols

	for n := 0; n < g.N; n++ {
		im2col(col, inputData[n*sampleIn:(n+1)*sampleIn], g, par)
		out := outputData[n*sampleOut : (n+1)*sampleOut]

		parallel.For(g.COut, func(co int) {
			row := out[co*g.colCols : (co+1)*g.colCols]
			weights := kernelData[co*g.colRows : (co+1)*g.colRows]
			for k, w := range weights {
				if w == 0 {
					continue
				}
				src := col[k*g.colCols : (k+1)*g.colCols]
				for p, v := range src {
					row[p] += w * v
				}
			}
		}, par)
	}
}

// im2col unfolds one sample [C, H, W] into col [C*KH*KW, HOut*WOut].
// Padded positions are written as zero. Rows are split across workers.
func im2col[T tensor.DType](col, sample []T, g convGeometry, par parallel.Config) {
	parallel.For(g.colRows, func(k int) {
		c := k / (g.KH * g.KW)
		kh := (k / g.KW) % g.KH
		kw := k % g.KW
		row := col[k*g.colCols : (k+1)*g.colCols]
		plane := sample[c*g.H*g.W : (c+1)*g.H*g.W]

		p := 0
		for oh := 0; oh < g.HOut; oh++ {
			h := oh*g.stride - g.padding + kh
			for ow := 0; ow < g.WOut; ow++ {
				w := ow*g.stride - g.padding + kw
				if h < 0 || h >= g.H || w < 0 || w >= g.W {
					row[p] = 0
				} else {
					row[p] = plane[h*g.W+w]
				}
				p++
			}
		}
	}, par)
}

// col2im folds col [C*KH*KW, HOut*WOut] back into one sample [C, H, W],
// accumulating overlapping patches. Channels are split across workers; each
// channel owns the KH*KW rows that write into its plane.
func col2im[T tensor.DType](sample, col []T, g convGeometry, par parallel.Config) {
	parallel.For(g.CIn, func(c int) {
		plane := sample[c*g.H*g.W : (c+1)*g.H*g.W]
		for kh := 0; kh < g.KH; kh++ {
			for kw := 0; kw < g.KW; kw++ {
				k := (c*g.KH+kh)*g.KW + kw
				row := col[k*g.colCols : (k+1)*g.colCols]
				p := 0
				for oh := 0; oh < g.HOut; oh++ {
					h := oh*g.stride - g.padding + kh
					for ow := 0; ow < g.WOut; ow++ {
						w := ow*g.stride - g.padding + kw
						if h >= 0 && h < g.H && w >= 0 && w < g.W {
							plane[h*g.W+w] += row[p]
						}
						p++
					}
				}
			}
		}
	}, par)
}
