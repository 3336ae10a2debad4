package imageio

import (
	"context"
	"fmt"
	"image"
	"math/rand"

	"golang.org/x/sync/errgroup"

	"github.com/born-ml/stylize/internal/tensor"
)

// FolderConfig configures a FolderPairs source.
type FolderConfig struct {
	ContentDir string
	StyleDir   string
	LoadSize   int // Shorter side after resizing
	CropSize   int // Side of the square crop
	BatchSize  int
	Workers    int // Concurrent decoders per batch
	Seed       int64
}

// FolderPairs serves (content, style) batches from two image directories.
//
// Content images are visited in a shuffled order that is redrawn every time
// the directory wraps; each content image is paired with a uniformly drawn
// style image. Training crops are random, the held-out pair is center
// cropped. A FolderPairs is not safe for concurrent use.
type FolderPairs[B tensor.Backend] struct {
	cfg     FolderConfig
	content []string
	style   []string
	order   []int
	cursor  int
	rng     *rand.Rand
	backend B

	sampleContent *tensor.Tensor[float32, B]
	sampleStyle   *tensor.Tensor[float32, B]
}

// NewFolderPairs lists both directories. It needs at least BatchSize
// content images.
func NewFolderPairs[B tensor.Backend](cfg FolderConfig, backend B) (*FolderPairs[B], error) {
	if cfg.BatchSize < 1 || cfg.CropSize < 1 || cfg.LoadSize < cfg.CropSize {
		return nil, fmt.Errorf("imageio: invalid folder config: batch %d, load %d, crop %d",
			cfg.BatchSize, cfg.LoadSize, cfg.CropSize)
	}
	cfg.Workers = max(cfg.Workers, 1)

	content, err := List(cfg.ContentDir)
	if err != nil {
		return nil, err
	}
	style, err := List(cfg.StyleDir)
	if err != nil {
		return nil, err
	}
	if len(content) < cfg.BatchSize {
		return nil, fmt.Errorf("imageio: %d content images for batch size %d", len(content), cfg.BatchSize)
	}

	p := &FolderPairs[B]{
		cfg:     cfg,
		content: content,
		style:   style,
		rng:     rand.New(rand.NewSource(cfg.Seed)),
		backend: backend,
	}
	p.order = p.rng.Perm(len(content))
	return p, nil
}

// BatchesPerEpoch is the number of full batches in the content directory.
func (p *FolderPairs[B]) BatchesPerEpoch() int {
	return len(p.content) / p.cfg.BatchSize
}

// Next decodes the next batch. A partial batch at the end of the shuffled
// order is dropped.
func (p *FolderPairs[B]) Next(ctx context.Context) (content, style *tensor.Tensor[float32, B], err error) {
	if p.cursor+p.cfg.BatchSize > len(p.order) {
		p.order = p.rng.Perm(len(p.content))
		p.cursor = 0
	}

	n := p.cfg.BatchSize
	jobs := make([]job, 0, 2*n)
	for i := 0; i < n; i++ {
		jobs = append(jobs,
			job{path: p.content[p.order[p.cursor+i]], fx: p.rng.Float64(), fy: p.rng.Float64()},
			job{path: p.style[p.rng.Intn(len(p.style))], fx: p.rng.Float64(), fy: p.rng.Float64()},
		)
	}
	p.cursor += n

	imgs, err := p.decode(ctx, jobs)
	if err != nil {
		return nil, nil, err
	}
	contentImgs := make([]*image.NRGBA, n)
	styleImgs := make([]*image.NRGBA, n)
	for i := 0; i < n; i++ {
		contentImgs[i], styleImgs[i] = imgs[2*i], imgs[2*i+1]
	}
	if content, err = ToTensor(contentImgs, p.backend); err != nil {
		return nil, nil, err
	}
	if style, err = ToTensor(styleImgs, p.backend); err != nil {
		return nil, nil, err
	}
	return content, style, nil
}

// Sample returns the first content and first style image, center cropped.
// The pair is decoded once and reused.
func (p *FolderPairs[B]) Sample() (content, style *tensor.Tensor[float32, B], err error) {
	if p.sampleContent != nil {
		return p.sampleContent, p.sampleStyle, nil
	}
	imgs, err := p.decode(context.Background(), []job{
		{path: p.content[0], fx: 0.5, fy: 0.5},
		{path: p.style[0], fx: 0.5, fy: 0.5},
	})
	if err != nil {
		return nil, nil, err
	}
	if content, err = ToTensor(imgs[:1], p.backend); err != nil {
		return nil, nil, err
	}
	if style, err = ToTensor(imgs[1:], p.backend); err != nil {
		return nil, nil, err
	}
	p.sampleContent, p.sampleStyle = content, style
	return content, style, nil
}

type job struct {
	path   string
	fx, fy float64
}

func (p *FolderPairs[B]) decode(ctx context.Context, jobs []job) ([]*image.NRGBA, error) {
	out := make([]*image.NRGBA, len(jobs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Workers)
	for i, j := range jobs {
		i, j := i, j
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			img, err := Load(j.path)
			if err != nil {
				return err
			}
			out[i], err = Prepare(img, p.cfg.LoadSize, p.cfg.CropSize, j.fx, j.fy)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
