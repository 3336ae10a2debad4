package ops

import (
	"fmt"

	"github.com/born-ml/stylize/internal/tensor"
)

// MaxPool2DOp records a max pooling operation for autodiff.
//
// Forward:
//
//	output[n,c,h,w] = max(input[n,c,h*stride+kh,w*stride+kw] for kh,kw in kernel)
//
// Backward:
//   - Gradients flow only to positions that had the max value
//   - For each output position, exactly one input position receives gradient
//
// Example (2x2 pool, stride=2):
//
//	Input:  [[1, 2],  Output: [4]  Input Grad: [[0, 0],
//	         [3, 4]]                             [0, grad]]
type MaxPool2DOp struct {
	input      *tensor.RawTensor
	output     *tensor.RawTensor
	maxIndices []int // Flat input offsets of the max positions
	kernelSize int
	stride     int
}

// NewMaxPool2DOp creates a new MaxPool2D operation.
//
// Max indices are computed here, from the forward input, so backward can
// route gradients without re-reading the window.
func NewMaxPool2DOp(input, output *tensor.RawTensor, kernelSize, stride int) *MaxPool2DOp {
	var maxIndices []int
	switch input.DType() {
	case tensor.Float32:
		maxIndices = computeMaxIndices[float32](input, output, kernelSize, stride)
	case tensor.Float64:
		maxIndices = computeMaxIndices[float64](input, output, kernelSize, stride)
	default:
		panic(fmt.Sprintf("maxpool2d: unsupported dtype %s", input.DType()))
	}

	return &MaxPool2DOp{
		input:      input,
		output:     output,
		maxIndices: maxIndices,
		kernelSize: kernelSize,
		stride:     stride,
	}
}

// computeMaxIndices finds which input position had the max value for each
// output position. Ties resolve to the first position in row-major order.
func computeMaxIndices[T tensor.DType](input, output *tensor.RawTensor, kernelSize, stride int) []int {
	in := tensor.Values[T](input)
	is, os := input.Shape(), output.Shape()
	planes, H, W := is[0]*is[1], is[2], is[3]
	HOut, WOut := os[2], os[3]

	maxIndices := make([]int, output.NumElements())
	outIdx := 0
	for pc := 0; pc < planes; pc++ {
		base := pc * H * W
		for oh := 0; oh < HOut; oh++ {
			for ow := 0; ow < WOut; ow++ {
				h0, w0 := oh*stride, ow*stride
				maxPos := base + h0*W + w0
				for kh := 0; kh < kernelSize; kh++ {
					for kw := 0; kw < kernelSize; kw++ {
						pos := base + (h0+kh)*W + w0 + kw
						if in[pos] > in[maxPos] {
							maxPos = pos
						}
					}
				}
				maxIndices[outIdx] = maxPos
				outIdx++
			}
		}
	}
	return maxIndices
}

// Inputs returns the input tensor.
func (op *MaxPool2DOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input}
}

// Output returns the pooled tensor.
func (op *MaxPool2DOp) Output() *tensor.RawTensor {
	return op.output
}

// Backward routes each output gradient to its argmax input position.
func (op *MaxPool2DOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	inputGrad := backend.MaxPool2DBackward(op.input, outputGrad, op.maxIndices, op.kernelSize, op.stride)
	return []*tensor.RawTensor{inputGrad}
}

// Upsample2DOp records a nearest-neighbour upsampling for autodiff.
//
// Backward: each input position collects the sum of the scale×scale block of
// output gradients it was copied into.
type Upsample2DOp struct {
	unaryOp
	scale int
}

// NewUpsample2DOp creates a new Upsample2DOp.
func NewUpsample2DOp(input, output *tensor.RawTensor, scale int) *Upsample2DOp {
	return &Upsample2DOp{unaryOp: unaryOp{input: input, output: output}, scale: scale}
}

// Backward computes the input gradient for upsampling.
func (op *Upsample2DOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{backend.Upsample2DBackward(outputGrad, op.scale)}
}
