package adain

import (
	"fmt"
	"math"

	"github.com/born-ml/stylize/internal/tensor"
)

// Align transfers the spatial statistics of style onto content:
//
//	aligned = std(s) * (c - mean(c)) / std(c) + mean(s)
//	result  = alpha*aligned + (1-alpha)*c
//
// Both inputs are activations [N, C, H, W] from the same depth. The style
// batch must equal the content batch or be 1, in which case one style is
// applied to every content item. Spatial sizes may differ.
//
// alpha == 0 returns content itself. The result is differentiable with
// respect to both inputs when the tape is recording.
func Align[B tensor.Backend](content, style *tensor.Tensor[float32, B], alpha, eps float32) (*tensor.Tensor[float32, B], error) {
	if math.IsNaN(float64(alpha)) || alpha < 0 || alpha > 1 {
		return nil, &ConfigurationError{Field: "alpha", Reason: fmt.Sprintf("got %v", alpha), Err: ErrInvalidAlpha}
	}
	if err := alignable(content.Shape(), style.Shape()); err != nil {
		return nil, err
	}
	if alpha == 0 {
		return content, nil
	}

	c := SpatialStats(content, eps)
	s := SpatialStats(style, eps)
	aligned := content.Sub(c.Mean).Div(c.Std).Mul(s.Std).Add(s.Mean)
	if alpha < 1 {
		aligned = aligned.MulScalar(alpha).Add(content.MulScalar(1 - alpha))
	}

	if !aligned.IsFinite() {
		return nil, fmt.Errorf("%w: aligned features (eps=%g)", ErrNumericDegeneracy, eps)
	}
	return aligned, nil
}

func alignable(content, style tensor.Shape) error {
	if len(content) != 4 || len(style) != 4 {
		return &ConfigurationError{
			Field:  "features",
			Reason: fmt.Sprintf("need [N,C,H,W] activations, got %v and %v", content, style),
			Err:    ErrShapeMismatch,
		}
	}
	if content[1] != style[1] {
		return &ConfigurationError{
			Field:  "features",
			Reason: fmt.Sprintf("content has %d channels, style has %d", content[1], style[1]),
			Err:    ErrShapeMismatch,
		}
	}
	if style[0] != content[0] && style[0] != 1 {
		return &ConfigurationError{
			Field:  "features",
			Reason: fmt.Sprintf("style batch %d must be 1 or match content batch %d", style[0], content[0]),
			Err:    ErrShapeMismatch,
		}
	}
	return nil
}
