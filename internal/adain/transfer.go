package adain

import (
	"fmt"

	"github.com/born-ml/stylize/internal/autodiff"
	"github.com/born-ml/stylize/internal/tensor"
)

// Blend encodes content and style and aligns the bottleneck features. It
// always runs with recording paused: the result is a constant target for
// the decoder. Content sides must be multiples of the extractor's
// downsampling factor; style may have any size the extractor accepts.
func Blend[B autodiff.BackwardCapable](fe *FeatureExtractor[B], content, style *tensor.Tensor[float32, B], alpha float32) (*tensor.Tensor[float32, B], error) {
	if err := fe.checkDecodable(content.Shape()); err != nil {
		return nil, fmt.Errorf("encode content: %w", err)
	}
	var (
		blended *tensor.Tensor[float32, B]
		err     error
	)
	autodiff.NoGrad(fe.Backend(), func() {
		var c, s *Encoding[B]
		if c, err = fe.Encode(content); err != nil {
			err = fmt.Errorf("encode content: %w", err)
			return
		}
		if s, err = fe.Encode(style); err != nil {
			err = fmt.Errorf("encode style: %w", err)
			return
		}
		blended, err = Align(c.Features, s.Features, alpha, fe.Epsilon())
	})
	return blended, err
}

// Transfer stylizes content [N, 3, H, W] with style ([N or 1, 3, H', W'])
// and returns the decoded image in pixel space. Nothing is recorded.
func Transfer[B autodiff.BackwardCapable](fe *FeatureExtractor[B], dec *Decoder[B], content, style *tensor.Tensor[float32, B], alpha float32) (*tensor.Tensor[float32, B], error) {
	if err := checkPair(fe, dec); err != nil {
		return nil, err
	}
	blended, err := Blend(fe, content, style, alpha)
	if err != nil {
		return nil, err
	}
	var out *tensor.Tensor[float32, B]
	autodiff.NoGrad(fe.Backend(), func() {
		out = dec.Forward(blended)
	})
	return out, nil
}

func checkPair[B autodiff.BackwardCapable](fe *FeatureExtractor[B], dec *Decoder[B]) error {
	if want := Signature(fe.topology); dec.Architecture() != want {
		return configErr("decoder", "mirrors %q, extractor is %q", dec.Architecture(), want)
	}
	return nil
}
