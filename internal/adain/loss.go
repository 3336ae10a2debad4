package adain

import (
	"fmt"
	"math"

	"github.com/born-ml/stylize/internal/autodiff"
	"github.com/born-ml/stylize/internal/nn"
	"github.com/born-ml/stylize/internal/tensor"
)

// ContentDistance selects the content loss.
type ContentDistance string

// Content distances.
const (
	DistanceSquared ContentDistance = "squared" // Σ(g - t)²
	DistanceL2      ContentDistance = "l2"      // sqrt(Σ(g - t)² + eps)
)

// LossConfig weights the two loss terms.
type LossConfig struct {
	StyleWeight     float32
	ContentWeight   float32
	ContentDistance ContentDistance
	Epsilon         float32 // Added under the square root of DistanceL2
}

// DefaultLossConfig returns style weight 1000, content weight 1 and the
// squared content distance.
func DefaultLossConfig() LossConfig {
	return LossConfig{
		StyleWeight:     1000,
		ContentWeight:   1,
		ContentDistance: DistanceSquared,
		Epsilon:         1e-8,
	}
}

// Validate checks the weights and the distance name.
func (c LossConfig) Validate() error {
	if c.StyleWeight < 0 || math.IsNaN(float64(c.StyleWeight)) {
		return configErr("style weight", "got %v", c.StyleWeight)
	}
	if c.ContentWeight < 0 || math.IsNaN(float64(c.ContentWeight)) {
		return configErr("content weight", "got %v", c.ContentWeight)
	}
	switch c.ContentDistance {
	case DistanceSquared, DistanceL2:
	default:
		return configErr("content distance", "%q is not %q or %q", c.ContentDistance, DistanceSquared, DistanceL2)
	}
	if c.Epsilon < 0 {
		return configErr("epsilon", "got %v", c.Epsilon)
	}
	return nil
}

// Losses holds the two scalar loss tensors.
type Losses[B tensor.Backend] struct {
	Style   *tensor.Tensor[float32, B]
	Content *tensor.Tensor[float32, B]
}

// LossEngine computes the style and content losses of a generated image.
type LossEngine[B autodiff.BackwardCapable] struct {
	extractor *FeatureExtractor[B]
	cfg       LossConfig
	mse       *nn.MSELoss[B]
}

// NewLossEngine binds the loss to the extractor that defines the taps.
func NewLossEngine[B autodiff.BackwardCapable](extractor *FeatureExtractor[B], cfg LossConfig) (*LossEngine[B], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &LossEngine[B]{extractor: extractor, cfg: cfg, mse: nn.NewMSELoss[B]()}, nil
}

// Config returns the loss configuration.
func (l *LossEngine[B]) Config() LossConfig {
	return l.cfg
}

// Compute returns the style and content losses.
//
// The style image is encoded with recording paused and acts as a constant
// target; the generated image is encoded on the tape so gradients reach the
// decoder. The style loss sums MSE(mean) + MSE(std) over the tap depths in
// ascending order. The content loss compares the generated bottleneck with
// blended, the features the decoder was asked to invert.
func (l *LossEngine[B]) Compute(generated, style, blended *tensor.Tensor[float32, B]) (Losses[B], error) {
	var (
		target *Encoding[B]
		err    error
	)
	autodiff.NoGrad(l.extractor.Backend(), func() {
		target, err = l.extractor.Encode(style)
	})
	if err != nil {
		return Losses[B]{}, fmt.Errorf("encode style: %w", err)
	}

	gen, err := l.extractor.Encode(generated)
	if err != nil {
		return Losses[B]{}, fmt.Errorf("encode generated: %w", err)
	}
	if !gen.Features.Shape().Equal(blended.Shape()) {
		return Losses[B]{}, fmt.Errorf("%w: generated features %v, blended %v",
			ErrShapeMismatch, gen.Features.Shape(), blended.Shape())
	}

	var styleLoss *tensor.Tensor[float32, B]
	for _, d := range l.extractor.TapDepths() {
		s, err := broadcastStats(target.Taps[d], gen.Taps[d].Mean.Shape())
		if err != nil {
			return Losses[B]{}, fmt.Errorf("tap %d: %w", d, err)
		}
		g := gen.Taps[d]
		term := l.mse.Forward(g.Mean, s.Mean).Add(l.mse.Forward(g.Std, s.Std))
		if styleLoss == nil {
			styleLoss = term
		} else {
			styleLoss = styleLoss.Add(term)
		}
	}

	var contentLoss *tensor.Tensor[float32, B]
	if l.cfg.ContentDistance == DistanceL2 {
		contentLoss = nn.EuclideanDistance(gen.Features, blended, l.cfg.Epsilon)
	} else {
		contentLoss = nn.SquaredDistance(gen.Features, blended)
	}

	return Losses[B]{Style: styleLoss, Content: contentLoss}, nil
}

// Objective returns StyleWeight*style + ContentWeight*content.
func (l *LossEngine[B]) Objective(losses Losses[B]) *tensor.Tensor[float32, B] {
	return losses.Style.MulScalar(l.cfg.StyleWeight).Add(losses.Content.MulScalar(l.cfg.ContentWeight))
}

// broadcastStats expands single-image style statistics to the generated
// batch.
func broadcastStats[B tensor.Backend](s Stats[B], shape tensor.Shape) (Stats[B], error) {
	have := s.Mean.Shape()
	if have.Equal(shape) {
		return s, nil
	}
	if have[0] != 1 || have[1] != shape[1] {
		return Stats[B]{}, fmt.Errorf("%w: style statistics %v, generated %v", ErrShapeMismatch, have, shape)
	}
	return Stats[B]{Mean: s.Mean.Expand(shape), Std: s.Std.Expand(shape)}, nil
}
