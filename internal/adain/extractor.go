package adain

import (
	"fmt"
	"math"
	"slices"

	"github.com/born-ml/stylize/internal/autodiff"
	"github.com/born-ml/stylize/internal/nn"
	"github.com/born-ml/stylize/internal/tensor"
)

// Normalization is the fixed per-channel preprocessing applied to every
// image before the first backbone stage.
type Normalization struct {
	Mean [3]float32
	Std  [3]float32
}

// ImageNet returns the normalization the torchvision backbones were trained
// with.
func ImageNet() Normalization {
	return Normalization{
		Mean: [3]float32{0.485, 0.456, 0.406},
		Std:  [3]float32{0.229, 0.224, 0.225},
	}
}

// ExtractorConfig configures a FeatureExtractor.
type ExtractorConfig struct {
	Depth         int   // Number of convolution stages kept
	TapDepths     []int // 1-based conv indices whose ReLU output is tapped
	Normalization Normalization
	Epsilon       float32 // Variance epsilon for tap statistics
}

// DefaultExtractorConfig returns depth 4 with taps after every ReLU.
func DefaultExtractorConfig() ExtractorConfig {
	return ExtractorConfig{
		Depth:         4,
		TapDepths:     []int{1, 2, 3, 4},
		Normalization: ImageNet(),
		Epsilon:       DefaultEpsilon,
	}
}

// Encoding is the result of one pass through the extractor.
type Encoding[B tensor.Backend] struct {
	Features *tensor.Tensor[float32, B] // Bottleneck activation
	Taps     map[int]Stats[B]           // Statistics per tap depth
}

// FeatureExtractor is a frozen backbone truncated to a fixed depth.
//
// The extractor is immutable after construction. Its weights are frozen on
// the backend's tape: gradients flow through it to its input but are never
// accumulated for its own tensors.
type FeatureExtractor[B autodiff.BackwardCapable] struct {
	topology []Stage
	layers   []nn.Module[B] // One per topology stage
	taps     map[int]int    // Topology index of a tapped ReLU -> depth
	depths   []int          // Sorted tap depths
	mean     *tensor.Tensor[float32, B]
	std      *tensor.Tensor[float32, B]
	eps      float32
	backend  B
}

// NewFeatureExtractor truncates backbone to cfg.Depth and attaches taps.
//
// It fails with a *ConfigurationError when the depth exceeds the backbone,
// when a tap depth lies outside 1..Depth or has no activation, or when the
// backbone weights do not fit the topology.
func NewFeatureExtractor[B autodiff.BackwardCapable](backbone *Backbone[B], cfg ExtractorConfig, backend B) (*FeatureExtractor[B], error) {
	if backbone == nil {
		return nil, configErr("backbone", "nil")
	}
	if err := validateTopology(backbone.Topology); err != nil {
		return nil, err
	}
	topology, err := Truncate(backbone.Topology, cfg.Depth)
	if err != nil {
		return nil, err
	}
	if err := backbone.checkWeights(topology); err != nil {
		return nil, err
	}
	if len(cfg.TapDepths) == 0 {
		return nil, configErr("tap depths", "at least one tap is required")
	}
	if cfg.Epsilon < 0 || math.IsNaN(float64(cfg.Epsilon)) {
		return nil, configErr("epsilon", "got %v", cfg.Epsilon)
	}
	for c := 0; c < 3; c++ {
		if !(cfg.Normalization.Std[c] > 0) {
			return nil, configErr("normalization", "std[%d] is %v", c, cfg.Normalization.Std[c])
		}
	}

	fe := &FeatureExtractor[B]{
		topology: topology,
		layers:   make([]nn.Module[B], len(topology)),
		taps:     make(map[int]int, len(cfg.TapDepths)),
		eps:      cfg.Epsilon,
		backend:  backend,
	}

	for _, d := range cfg.TapDepths {
		if d < 1 || d > cfg.Depth {
			return nil, configErr("tap depths", "depth %d is outside 1..%d", d, cfg.Depth)
		}
		idx := activationIndex(topology, d)
		if idx < 0 {
			return nil, configErr("tap depths", "conv %d is not followed by an activation", d)
		}
		if _, dup := fe.taps[idx]; dup {
			return nil, configErr("tap depths", "depth %d requested twice", d)
		}
		fe.taps[idx] = d
		fe.depths = append(fe.depths, d)
	}
	slices.Sort(fe.depths)

	tape := backend.GetTape()
	for i, s := range topology {
		switch s.Kind {
		case Conv:
			cw := backbone.Weights[i]
			fe.layers[i] = nn.NewConv2DFromTensors(cw.Weight, cw.Bias, 1, 1)
			tape.Freeze(cw.Weight.Raw(), cw.Bias.Raw())
		case Activation:
			fe.layers[i] = nn.NewReLU[B]()
		case Pool:
			fe.layers[i] = nn.NewMaxPool2D[B](2, 2)
		}
	}

	norm := cfg.Normalization
	fe.mean, err = tensor.FromSlice(norm.Mean[:], tensor.Shape{1, 3, 1, 1}, backend)
	if err != nil {
		return nil, err
	}
	fe.std, err = tensor.FromSlice(norm.Std[:], tensor.Shape{1, 3, 1, 1}, backend)
	if err != nil {
		return nil, err
	}
	tape.Freeze(fe.mean.Raw(), fe.std.Raw())

	return fe, nil
}

// Encode normalizes image [N, 3, H, W] in pixel space and runs it through
// every kept stage. It returns the bottleneck activation together with the
// statistics of every tapped activation.
//
// Encode is deterministic: the same input always yields bit-identical
// output.
func (fe *FeatureExtractor[B]) Encode(image *tensor.Tensor[float32, B]) (*Encoding[B], error) {
	if err := fe.checkInput(image.Shape()); err != nil {
		return nil, err
	}

	x := image.Sub(fe.mean).Div(fe.std)
	taps := make(map[int]Stats[B], len(fe.taps))
	for i, layer := range fe.layers {
		x = layer.Forward(x)
		if d, ok := fe.taps[i]; ok {
			taps[d] = SpatialStats(x, fe.eps)
		}
	}
	return &Encoding[B]{Features: x, Taps: taps}, nil
}

func (fe *FeatureExtractor[B]) checkInput(shape tensor.Shape) error {
	if len(shape) != 4 || shape[1] != 3 {
		return fmt.Errorf("%w: extractor input must be [N,3,H,W], got %v", ErrShapeMismatch, shape)
	}
	if f := Downsampling(fe.topology); shape[2] < f || shape[3] < f {
		return fmt.Errorf("%w: %dx%d image is smaller than the %dx downsampling of depth %d",
			ErrShapeMismatch, shape[2], shape[3], f, ConvCount(fe.topology))
	}
	return nil
}

// checkDecodable rejects content whose sides the downsampling factor does
// not divide: pooling floors odd sides, so the decoder could not restore
// the input size.
func (fe *FeatureExtractor[B]) checkDecodable(shape tensor.Shape) error {
	if err := fe.checkInput(shape); err != nil {
		return err
	}
	if f := Downsampling(fe.topology); shape[2]%f != 0 || shape[3]%f != 0 {
		return fmt.Errorf("%w: content %dx%d is not a multiple of the %dx downsampling of depth %d",
			ErrShapeMismatch, shape[2], shape[3], f, ConvCount(fe.topology))
	}
	return nil
}

// Topology returns a copy of the truncated topology.
func (fe *FeatureExtractor[B]) Topology() []Stage {
	return slices.Clone(fe.topology)
}

// Depth returns the number of convolution stages kept.
func (fe *FeatureExtractor[B]) Depth() int {
	return ConvCount(fe.topology)
}

// TapDepths returns the tapped depths in ascending order.
func (fe *FeatureExtractor[B]) TapDepths() []int {
	return slices.Clone(fe.depths)
}

// Channels returns the channel count of the bottleneck activation.
func (fe *FeatureExtractor[B]) Channels() int {
	return OutChannels(fe.topology)
}

// Epsilon returns the variance epsilon used by the taps.
func (fe *FeatureExtractor[B]) Epsilon() float32 {
	return fe.eps
}

// Backend returns the backend the extractor computes on.
func (fe *FeatureExtractor[B]) Backend() B {
	return fe.backend
}
