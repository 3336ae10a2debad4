package cpu

import (
	"fmt"

	"github.com/born-ml/stylize/internal/parallel"
	"github.com/born-ml/stylize/internal/tensor"
)

// MaxPool2D performs 2D max pooling over square windows.
//
// Input shape: [N, C, H, W]
// Output shape: [N, C, H_out, W_out] with out = (in - kernelSize) / stride + 1
// (floor, no padding, matching the VGG pooling layers).
func (cpu *CPUBackend) MaxPool2D(input *tensor.RawTensor, kernelSize, stride int) *tensor.RawTensor {
	N, C, H, W, HOut, WOut := poolGeometry("maxpool2d", input.Shape(), kernelSize, stride)

	output := cpu.alloc("maxpool2d", tensor.Shape{N, C, HOut, WOut}, input.DType())
	dispatch("maxpool2d", input.DType(),
		func() { maxPool2DKernel[float32](output, input, N*C, H, W, HOut, WOut, kernelSize, stride, cpu.par) },
		func() { maxPool2DKernel[float64](output, input, N*C, H, W, HOut, WOut, kernelSize, stride, cpu.par) })
	return output
}

// MaxPool2DBackward routes each output gradient to the input position that
// held the window maximum. maxIndices are flat input offsets, one per output
// element, computed from the forward input.
func (cpu *CPUBackend) MaxPool2DBackward(input, grad *tensor.RawTensor, maxIndices []int, kernelSize, stride int) *tensor.RawTensor {
	sameDType("maxpool2d_backward", input, grad)
	if len(maxIndices) != grad.NumElements() {
		panic(fmt.Sprintf("maxpool2d_backward: %d max indices for %d gradients", len(maxIndices), grad.NumElements()))
	}

	inputGrad := cpu.alloc("maxpool2d_backward", input.Shape(), input.DType())
	dispatch("maxpool2d_backward", input.DType(),
		func() { scatterAdd[float32](inputGrad, grad, maxIndices) },
		func() { scatterAdd[float64](inputGrad, grad, maxIndices) })
	return inputGrad
}

func poolGeometry(op string, shape tensor.Shape, kernelSize, stride int) (N, C, H, W, HOut, WOut int) {
	if len(shape) != 4 {
		panic(fmt.Sprintf("%s: input must be 4D [N,C,H,W], got %dD", op, len(shape)))
	}
	if kernelSize <= 0 || stride <= 0 {
		panic(fmt.Sprintf("%s: invalid kernel size %d / stride %d", op, kernelSize, stride))
	}
	N, C, H, W = shape[0], shape[1], shape[2], shape[3]
	HOut = (H-kernelSize)/stride + 1
	WOut = (W-kernelSize)/stride + 1
	if H < kernelSize || W < kernelSize {
		panic(fmt.Sprintf("%s: input %dx%d smaller than kernel %d", op, H, W, kernelSize))
	}
	return N, C, H, W, HOut, WOut
}

func maxPool2DKernel[T tensor.DType](output, input *tensor.RawTensor, planes, H, W, HOut, WOut, kernelSize, stride int, par parallel.Config) {
	inputData := tensor.Values[T](input)
	outputData := tensor.Values[T](output)

	parallel.For(planes, func(pc int) {
		in := inputData[pc*H*W : (pc+1)*H*W]
		out := outputData[pc*HOut*WOut : (pc+1)*HOut*WOut]
		for oh := 0; oh < HOut; oh++ {
			for ow := 0; ow < WOut; ow++ {
				h0, w0 := oh*stride, ow*stride
				best := in[h0*W+w0]
				for kh := 0; kh < kernelSize; kh++ {
					for kw := 0; kw < kernelSize; kw++ {
						if v := in[(h0+kh)*W+w0+kw]; v > best {
							best = v
						}
					}
				}
				out[oh*WOut+ow] = best
			}
		}
	}, par)
}

// scatterAdd accumulates grad[i] into out[indices[i]]. Windows may overlap
// when stride < kernelSize, so this stays sequential.
func scatterAdd[T tensor.DType](out, grad *tensor.RawTensor, indices []int) {
	od := tensor.Values[T](out)
	for i, g := range tensor.Values[T](grad) {
		od[indices[i]] += g
	}
}
