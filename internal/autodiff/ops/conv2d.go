package ops

import "github.com/born-ml/stylize/internal/tensor"

// Conv2DOp records a 2D convolution for autodiff.
//
// Forward:
//
//	output = conv2d(input, kernel, stride, padding)
//
// Backward:
//   - Input gradient: transposed convolution of outputGrad with the kernel
//   - Kernel gradient: correlation of the input with outputGrad
//
// When the kernel is frozen (a pretrained extractor weight) its gradient is
// not computed at all; only the input gradient flows.
type Conv2DOp struct {
	input      *tensor.RawTensor
	kernel     *tensor.RawTensor
	output     *tensor.RawTensor
	stride     int
	padding    int
	skipKernel bool
}

// NewConv2DOp creates a new Conv2DOp.
func NewConv2DOp(input, kernel, output *tensor.RawTensor, stride, padding int, skipKernel bool) *Conv2DOp {
	return &Conv2DOp{
		input:      input,
		kernel:     kernel,
		output:     output,
		stride:     stride,
		padding:    padding,
		skipKernel: skipKernel,
	}
}

// Inputs returns [input, kernel].
func (op *Conv2DOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input, op.kernel}
}

// Output returns the convolution output.
func (op *Conv2DOp) Output() *tensor.RawTensor {
	return op.output
}

// Backward computes [grad_input, grad_kernel]. grad_kernel is nil for frozen kernels.
//
// This is pure orchestration; the backend owns the kernels.
func (op *Conv2DOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	inputGrad := backend.Conv2DInputBackward(op.input, op.kernel, outputGrad, op.stride, op.padding)

	var kernelGrad *tensor.RawTensor
	if !op.skipKernel {
		kernelGrad = backend.Conv2DKernelBackward(op.input, op.kernel, outputGrad, op.stride, op.padding)
	}

	return []*tensor.RawTensor{inputGrad, kernelGrad}
}
