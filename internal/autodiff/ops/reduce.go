package ops

import "github.com/born-ml/stylize/internal/tensor"

// SumOp represents a full reduction: output = Σ x (scalar).
//
// Backward pass: every element receives the scalar output gradient.
type SumOp struct{ unaryOp }

// NewSumOp creates a new SumOp.
func NewSumOp(x, output *tensor.RawTensor) *SumOp {
	return &SumOp{unaryOp{input: x, output: output}}
}

// Backward broadcasts the scalar gradient back to the input shape.
func (op *SumOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{backend.Expand(outputGrad, op.input.Shape())}
}

// SumDimOp represents a sum along one dimension.
//
// Backward pass: the gradient is broadcast back along the reduced dimension.
type SumDimOp struct {
	unaryOp
	dim     int
	keepDim bool
}

// NewSumDimOp creates a new SumDimOp.
func NewSumDimOp(x, output *tensor.RawTensor, dim int, keepDim bool) *SumDimOp {
	return &SumDimOp{
		unaryOp: unaryOp{input: x, output: output},
		dim:     normalizeDim(dim, len(x.Shape())),
		keepDim: keepDim,
	}
}

// Backward computes input gradient for SumDim.
func (op *SumDimOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{expandReduced(outputGrad, op.input.Shape(), op.dim, op.keepDim, backend)}
}

// MeanDimOp represents a mean along one dimension.
//
// Backward pass: the gradient is broadcast back along the reduced dimension
// and divided by its size.
type MeanDimOp struct {
	unaryOp
	dim     int
	keepDim bool
}

// NewMeanDimOp creates a new MeanDimOp.
func NewMeanDimOp(x, output *tensor.RawTensor, dim int, keepDim bool) *MeanDimOp {
	return &MeanDimOp{
		unaryOp: unaryOp{input: x, output: output},
		dim:     normalizeDim(dim, len(x.Shape())),
		keepDim: keepDim,
	}
}

// Backward computes input gradient for MeanDim.
func (op *MeanDimOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	size := op.input.Shape()[op.dim]
	grad := expandReduced(outputGrad, op.input.Shape(), op.dim, op.keepDim, backend)
	return []*tensor.RawTensor{backend.MulScalar(grad, 1/float64(size))}
}

// expandReduced restores a reduced dimension and broadcasts grad to inputShape.
func expandReduced(grad *tensor.RawTensor, inputShape tensor.Shape, dim int, keepDim bool, backend tensor.Backend) *tensor.RawTensor {
	if !keepDim {
		grad = backend.Reshape(grad, keepDimShape(inputShape, dim))
	}
	return backend.Expand(grad, inputShape)
}
