package adain

import (
	"fmt"

	"github.com/born-ml/stylize/internal/tensor"
)

// DefaultEpsilon is added to the variance before the square root.
const DefaultEpsilon = 1e-5

// Stats holds per-channel spatial statistics, each shaped [N, C, 1, 1].
type Stats[B tensor.Backend] struct {
	Mean *tensor.Tensor[float32, B]
	Std  *tensor.Tensor[float32, B]
}

// SpatialStats reduces an activation [N, C, H, W] over H and W only.
//
// Std is the unbiased estimate sqrt(Σ(x-mean)²/(H*W-1) + eps); a 1x1 map
// divides by 1. The reduction is built from recorded ops, so gradients flow
// through it when the tape is recording.
func SpatialStats[B tensor.Backend](x *tensor.Tensor[float32, B], eps float32) Stats[B] {
	shape := x.Shape()
	if len(shape) != 4 {
		panic(fmt.Sprintf("adain: spatial stats need [N,C,H,W], got %v", shape))
	}

	n := shape[2] * shape[3]
	denom := n - 1
	if denom < 1 {
		denom = 1
	}

	mean := x.MeanDim(3, true).MeanDim(2, true)
	centered := x.Sub(mean)
	variance := centered.Mul(centered).SumDim(3, true).SumDim(2, true).MulScalar(1 / float32(denom))
	return Stats[B]{
		Mean: mean,
		Std:  variance.AddScalar(eps).Sqrt(),
	}
}
