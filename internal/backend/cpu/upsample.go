package cpu

import (
	"fmt"

	"github.com/born-ml/stylize/internal/parallel"
	"github.com/born-ml/stylize/internal/tensor"
)

// Upsample2D performs nearest-neighbour upsampling by an integer factor.
//
// Input shape: [N, C, H, W]
// Output shape: [N, C, H*scale, W*scale]
//
//	out[n, c, h, w] = in[n, c, h/scale, w/scale]
func (cpu *CPUBackend) Upsample2D(input *tensor.RawTensor, scale int) *tensor.RawTensor {
	shape := input.Shape()
	if len(shape) != 4 {
		panic(fmt.Sprintf("upsample2d: input must be 4D [N,C,H,W], got %dD", len(shape)))
	}
	if scale <= 0 {
		panic(fmt.Sprintf("upsample2d: invalid scale %d", scale))
	}
	N, C, H, W := shape[0], shape[1], shape[2], shape[3]

	output := cpu.alloc("upsample2d", tensor.Shape{N, C, H * scale, W * scale}, input.DType())
	dispatch("upsample2d", input.DType(),
		func() { upsampleKernel[float32](output, input, N*C, H, W, scale, cpu.par) },
		func() { upsampleKernel[float64](output, input, N*C, H, W, scale, cpu.par) })
	return output
}

// Upsample2DBackward sums each scale×scale block of grad back into one
// input position.
//
// Grad shape: [N, C, H*scale, W*scale]
// Output shape: [N, C, H, W]
func (cpu *CPUBackend) Upsample2DBackward(grad *tensor.RawTensor, scale int) *tensor.RawTensor {
	shape := grad.Shape()
	if len(shape) != 4 {
		panic(fmt.Sprintf("upsample2d_backward: grad must be 4D [N,C,H,W], got %dD", len(shape)))
	}
	if scale <= 0 || shape[2]%scale != 0 || shape[3]%scale != 0 {
		panic(fmt.Sprintf("upsample2d_backward: grad %v not divisible by scale %d", shape, scale))
	}
	N, C, H, W := shape[0], shape[1], shape[2]/scale, shape[3]/scale

	output := cpu.alloc("upsample2d_backward", tensor.Shape{N, C, H, W}, grad.DType())
	dispatch("upsample2d_backward", grad.DType(),
		func() { upsampleBackwardKernel[float32](output, grad, N*C, H, W, scale, cpu.par) },
		func() { upsampleBackwardKernel[float64](output, grad, N*C, H, W, scale, cpu.par) })
	return output
}

func upsampleKernel[T tensor.DType](output, input *tensor.RawTensor, planes, H, W, scale int, par parallel.Config) {
	inputData := tensor.Values[T](input)
	outputData := tensor.Values[T](output)
	HOut, WOut := H*scale, W*scale

	parallel.For(planes, func(pc int) {
		in := inputData[pc*H*W : (pc+1)*H*W]
		out := outputData[pc*HOut*WOut : (pc+1)*HOut*WOut]
		for oh := 0; oh < HOut; oh++ {
			src := in[(oh/scale)*W : (oh/scale+1)*W]
			dst := out[oh*WOut : (oh+1)*WOut]
			for ow := range dst {
				dst[ow] = src[ow/scale]
			}
		}
	}, par)
}

func upsampleBackwardKernel[T tensor.DType](output, grad *tensor.RawTensor, planes, H, W, scale int, par parallel.Config) {
	gradData := tensor.Values[T](grad)
	outputData := tensor.Values[T](output)
	HIn, WIn := H*scale, W*scale

	parallel.For(planes, func(pc int) {
		g := gradData[pc*HIn*WIn : (pc+1)*HIn*WIn]
		out := outputData[pc*H*W : (pc+1)*H*W]
		for gh := 0; gh < HIn; gh++ {
			row := g[gh*WIn : (gh+1)*WIn]
			dst := out[(gh/scale)*W : (gh/scale+1)*W]
			for gw, v := range row {
				dst[gw/scale] += v
			}
		}
	}, par)
}
