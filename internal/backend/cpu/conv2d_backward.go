package cpu

import (
	"fmt"

	"github.com/born-ml/stylize/internal/parallel"
	"github.com/born-ml/stylize/internal/tensor"
)

// Conv2DInputBackward computes the gradient of Conv2D with respect to its input.
//
// For each batch item the column gradient is W^T · dOut, shape
// [C_in*K_h*K_w, H_out*W_out], which col2im folds back into [C_in, H, W].
//
// Parameters:
//   - input: forward input [N, C_in, H, W] (only its shape is used)
//   - kernel: forward kernel [C_out, C_in, K_h, K_w]
//   - grad: output gradient [N, C_out, H_out, W_out]
func (cpu *CPUBackend) Conv2DInputBackward(input, kernel, grad *tensor.RawTensor, stride, padding int) *tensor.RawTensor {
	dtype := sameDType("conv2d_input_backward", input, kernel, grad)
	g := newConvGeometry("conv2d_input_backward", input, kernel, stride, padding)
	checkConvGrad("conv2d_input_backward", grad, g)

	inputGrad := cpu.alloc("conv2d_input_backward", input.Shape(), dtype)
	dispatch("conv2d_input_backward", dtype,
		func() { conv2dInputBackwardKernel[float32](inputGrad, kernel, grad, g, cpu.par) },
		func() { conv2dInputBackwardKernel[float64](inputGrad, kernel, grad, g, cpu.par) })
	return inputGrad
}

// Conv2DKernelBackward computes the gradient of Conv2D with respect to its kernel.
//
// dW[co, k] = Σ_n Σ_p dOut[n, co, p] · col_n[k, p], where col_n is the im2col
// unfolding of batch item n.
func (cpu *CPUBackend) Conv2DKernelBackward(input, kernel, grad *tensor.RawTensor, stride, padding int) *tensor.RawTensor {
	dtype := sameDType("conv2d_kernel_backward", input, kernel, grad)
	g := newConvGeometry("conv2d_kernel_backward", input, kernel, stride, padding)
	checkConvGrad("conv2d_kernel_backward", grad, g)

	kernelGrad := cpu.alloc("conv2d_kernel_backward", kernel.Shape(), dtype)
	dispatch("conv2d_kernel_backward", dtype,
		func() { conv2dKernelBackwardKernel[float32](kernelGrad, input, grad, g, cpu.par) },
		func() { conv2dKernelBackwardKernel[float64](kernelGrad, input, grad, g, cpu.par) })
	return kernelGrad
}

func checkConvGrad(op string, grad *tensor.RawTensor, g convGeometry) {
	want := tensor.Shape{g.N, g.COut, g.HOut, g.WOut}
	if !grad.Shape().Equal(want) {
		panic(fmt.Sprintf("%s: grad shape %v, expected %v", op, grad.Shape(), want))
	}
}

func conv2dInputBackwardKernel[T tensor.DType](inputGrad, kernel, grad *tensor.RawTensor, g convGeometry, par parallel.Config) {
	kernelData := tensor.Values[T](kernel)
	gradData := tensor.Values[T](grad)
	inputGradData := tensor.Values[T](inputGrad)

	colGrad := make([]T, g.colRows*g.colCols)
	sampleIn := g.CIn * g.H * g.W
	sampleOut := g.COut * g.colCols

	for n := 0; n < g.N; n++ {
		gOut := gradData[n*sampleOut : (n+1)*sampleOut]

		parallel.For(g.colRows, func(k int) {
			row := colGrad[k*g.colCols : (k+1)*g.colCols]
			clear(row)
			for co := 0; co < g.COut; co++ {
				w := kernelData[co*g.colRows+k]
				if w == 0 {
					continue
				}
				src := gOut[co*g.colCols : (co+1)*g.colCols]
				for p, v := range src {
					row[p] += w * v
				}
			}
		}, par)

		col2im(inputGradData[n*sampleIn:(n+1)*sampleIn], colGrad, g, par)
	}
}

func conv2dKernelBackwardKernel[T tensor.DType](kernelGrad, input, grad *tensor.RawTensor, g convGeometry, par parallel.Config) {
	inputData := tensor.Values[T](input)
	gradData := tensor.Values[T](grad)
	kernelGradData := tensor.Values[T](kernelGrad)

	col := make([]T, g.colRows*g.colCols)
	sampleIn := g.CIn * g.H * g.W
	sampleOut := g.COut * g.colCols

	for n := 0; n < g.N; n++ {
		im2col(col, inputData[n*sampleIn:(n+1)*sampleIn], g, par)
		gOut := gradData[n*sampleOut : (n+1)*sampleOut]

		parallel.For(g.COut, func(co int) {
			gRow := gOut[co*g.colCols : (co+1)*g.colCols]
			dst := kernelGradData[co*g.colRows : (co+1)*g.colRows]
			for k := range dst {
				src := col[k*g.colCols : (k+1)*g.colCols]
				var acc T
				for p, v := range gRow {
					acc += v * src[p]
				}
				dst[k] += acc
			}
		}, par)
	}
}
