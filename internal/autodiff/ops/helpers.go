package ops

import "github.com/born-ml/stylize/internal/tensor"

// reduceBroadcast reduces a gradient tensor to match the target shape.
// This is necessary when broadcasting was used in the forward pass.
//
// Example:
//
//	Forward: x[2,8,4,4] - mean[2,8,1,1] -> y[2,8,4,4]  (mean broadcast over H, W)
//	Backward: grad_y[2,8,4,4] -> grad_mean[2,8,1,1] (sum along dims 2 and 3)
func reduceBroadcast(grad *tensor.RawTensor, targetShape tensor.Shape, backend tensor.Backend) *tensor.RawTensor {
	if grad.Shape().Equal(targetShape) {
		return grad
	}

	// NumPy broadcasting aligns shapes from the right, so extra leading
	// dimensions of grad are summed away first.
	result := grad
	for len(result.Shape()) > len(targetShape) {
		result = backend.SumDim(result, 0, false)
	}

	// Now sum along dimensions where target is 1.
	for i, dim := range targetShape {
		if dim == 1 && result.Shape()[i] > 1 {
			result = backend.SumDim(result, i, true)
		}
	}

	if !result.Shape().Equal(targetShape) {
		result = backend.Reshape(result, targetShape)
	}
	return result
}

// keepDimShape returns shape with dim replaced by 1.
func keepDimShape(shape tensor.Shape, dim int) tensor.Shape {
	out := shape.Clone()
	out[dim] = 1
	return out
}

// normalizeDim maps a negative dimension index onto [0, rank).
func normalizeDim(dim, rank int) int {
	if dim < 0 {
		return dim + rank
	}
	return dim
}
