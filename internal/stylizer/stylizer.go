// Package stylizer runs a trained decoder on images.
package stylizer

import (
	"errors"
	"fmt"
	"image"
	"math/rand"

	"github.com/born-ml/stylize/internal/adain"
	"github.com/born-ml/stylize/internal/autodiff"
	"github.com/born-ml/stylize/internal/imageio"
)

// Options configures a Session.
type Options struct {
	Decoder      string // Decoder checkpoint written by training
	Backbone     string // VGG19 SafeTensors weights; random when empty
	BackboneSeed int64  // Must match training when Backbone is empty
	Size         int    // Shorter side images are resized to; 0 keeps them
}

// Session pairs a frozen extractor with a restored decoder.
type Session[B autodiff.BackwardCapable] struct {
	extractor *adain.FeatureExtractor[B]
	decoder   *adain.Decoder[B]
	info      adain.CheckpointInfo
	size      int
	factor    int
	backend   B
}

// New restores the decoder and builds the extractor it was trained
// against.
func New[B autodiff.BackwardCapable](opts Options, backend B) (*Session[B], error) {
	if opts.Decoder == "" {
		return nil, errors.New("stylizer: no decoder checkpoint")
	}
	if opts.Size < 0 {
		return nil, fmt.Errorf("stylizer: negative size %d", opts.Size)
	}
	depth, err := adain.CheckpointDepth(opts.Decoder)
	if err != nil {
		return nil, err
	}
	if err := adain.CheckBackbone(opts.Decoder, adain.BackboneID(opts.Backbone, opts.BackboneSeed)); err != nil {
		return nil, err
	}
	backbone, err := adain.VGG19Backbone(opts.Backbone, depth, opts.BackboneSeed, backend)
	if err != nil {
		return nil, err
	}

	cfg := adain.DefaultExtractorConfig()
	cfg.Depth = depth
	cfg.TapDepths = []int{depth}
	extractor, err := adain.NewFeatureExtractor(backbone, cfg, backend)
	if err != nil {
		return nil, err
	}

	decoder := adain.NewDecoder(extractor.Topology(), rand.New(rand.NewSource(0)), backend)
	info, err := decoder.Load(opts.Decoder, nil)
	if err != nil {
		return nil, err
	}
	return &Session[B]{
		extractor: extractor,
		decoder:   decoder,
		info:      info,
		size:      opts.Size,
		factor:    adain.Downsampling(extractor.Topology()),
		backend:   backend,
	}, nil
}

// Checkpoint returns the metadata of the restored decoder.
func (s *Session[B]) Checkpoint() adain.CheckpointInfo {
	return s.info
}

// Architecture returns the decoder signature.
func (s *Session[B]) Architecture() string {
	return s.decoder.Architecture()
}

// Stylize renders content in the style of style. alpha in [0, 1] blends
// between the content features (0) and the fully aligned features (1).
//
// The content image is center cropped so that its sides divide the
// backbone downsampling factor; the output has the cropped size.
func (s *Session[B]) Stylize(content, style image.Image, alpha float32) (*image.NRGBA, error) {
	c, err := s.prepare(content)
	if err != nil {
		return nil, fmt.Errorf("stylizer: content: %w", err)
	}
	c, err = imageio.CropMultiple(c, s.factor)
	if err != nil {
		return nil, fmt.Errorf("stylizer: content: %w", err)
	}
	st, err := s.prepare(style)
	if err != nil {
		return nil, fmt.Errorf("stylizer: style: %w", err)
	}

	ct, err := imageio.ToTensor([]*image.NRGBA{c}, s.backend)
	if err != nil {
		return nil, err
	}
	stt, err := imageio.ToTensor([]*image.NRGBA{st}, s.backend)
	if err != nil {
		return nil, err
	}

	out, err := adain.Transfer(s.extractor, s.decoder, ct, stt, alpha)
	if err != nil {
		return nil, err
	}
	imgs, err := imageio.ToImages(out.Raw())
	if err != nil {
		return nil, err
	}
	return imgs[0], nil
}

func (s *Session[B]) prepare(img image.Image) (*image.NRGBA, error) {
	if img == nil {
		return nil, errors.New("nil image")
	}
	if s.size > 0 {
		return imageio.ResizeShorter(img, s.size), nil
	}
	return imageio.NRGBA(img), nil
}
