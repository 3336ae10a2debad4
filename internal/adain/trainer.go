package adain

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/born-ml/stylize/internal/autodiff"
	"github.com/born-ml/stylize/internal/optim"
	"github.com/born-ml/stylize/internal/tensor"
)

// TrainConfig configures a training run.
type TrainConfig struct {
	Epochs         int
	LearningRate   float64 // lr0 of the inverse time decay
	LRDecay        float64 // lr(epoch) = lr0 / (1 + LRDecay*epoch)
	Alpha          float32 // AdaIN blend factor used for training pairs
	Loss           LossConfig
	CheckpointPath string // Decoder written here at the end when non-empty
	ResumeFrom     string // Decoder and optimizer state loaded before training
	RunID          string // Generated when empty
	Backbone       string // BackboneID recorded in checkpoints
}

// DefaultTrainConfig returns lr0 1e-4, decay 5e-5 and alpha 1.
func DefaultTrainConfig() TrainConfig {
	return TrainConfig{
		Epochs:       5,
		LearningRate: 1e-4,
		LRDecay:      5e-5,
		Alpha:        1,
		Loss:         DefaultLossConfig(),
	}
}

// Validate checks the run settings.
func (c TrainConfig) Validate() error {
	if c.Epochs < 1 {
		return configErr("epochs", "got %d", c.Epochs)
	}
	if !(c.LearningRate > 0) {
		return configErr("learning rate", "got %v", c.LearningRate)
	}
	if c.LRDecay < 0 || math.IsNaN(c.LRDecay) {
		return configErr("lr decay", "got %v", c.LRDecay)
	}
	if math.IsNaN(float64(c.Alpha)) || c.Alpha < 0 || c.Alpha > 1 {
		return &ConfigurationError{Field: "alpha", Reason: fmt.Sprintf("got %v", c.Alpha), Err: ErrInvalidAlpha}
	}
	return c.Loss.Validate()
}

// PairSource supplies (content, style) image batches [N, 3, H, W] in pixel
// space. Next blocks until a batch is available.
type PairSource[B tensor.Backend] interface {
	Next(ctx context.Context) (content, style *tensor.Tensor[float32, B], err error)

	// BatchesPerEpoch is the number of Next calls that make up an epoch.
	BatchesPerEpoch() int

	// Sample returns the held-out pair evaluated at every report. It must
	// return the same pair for the whole run.
	Sample() (content, style *tensor.Tensor[float32, B], err error)
}

// Report is emitted once per epoch, after the first batch.
type Report struct {
	RunID       string
	Epoch       int
	Batch       int
	Step        int64
	LR          float32
	StyleLoss   float64 // Unweighted, on the held-out pair
	ContentLoss float64
	Total       float64 // Weighted objective
	Sample      *tensor.RawTensor // Decoded held-out pair
	Content     *tensor.RawTensor // Held-out inputs
	Style       *tensor.RawTensor
	Time        time.Time
}

// Reporter receives training reports. A reporter error aborts the run.
type Reporter interface {
	Report(ctx context.Context, r Report) error
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(ctx context.Context, r Report) error

// Report calls f.
func (f ReporterFunc) Report(ctx context.Context, r Report) error {
	return f(ctx, r)
}

// StepResult holds the scalar losses of one forward pass.
type StepResult[B tensor.Backend] struct {
	Style     float64
	Content   float64
	Total     float64
	Generated *tensor.Tensor[float32, B]
}

// Summary describes a finished run.
type Summary struct {
	RunID      string
	Epochs     int
	Steps      int64
	Loss       float64 // Objective of the last training step
	Checkpoint string
}

// Trainer trains a Decoder against a frozen FeatureExtractor.
//
// Adam updates the decoder parameters only. The learning rate follows an
// inverse time decay applied once at the start of every epoch, or stays
// fixed when LRDecay is zero.
type Trainer[B autodiff.BackwardCapable] struct {
	extractor *FeatureExtractor[B]
	decoder   *Decoder[B]
	losses    *LossEngine[B]
	optimizer *optim.Adam[B]
	schedule  optim.Scheduler
	reporters []Reporter
	cfg       TrainConfig
	runID     string
	steps     int64
	backend   B
}

// NewTrainer wires a trainer. The decoder must mirror the extractor.
func NewTrainer[B autodiff.BackwardCapable](
	extractor *FeatureExtractor[B],
	decoder *Decoder[B],
	cfg TrainConfig,
	reporters ...Reporter,
) (*Trainer[B], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := checkPair(extractor, decoder); err != nil {
		return nil, err
	}
	losses, err := NewLossEngine(extractor, cfg.Loss)
	if err != nil {
		return nil, err
	}

	runID := cfg.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	var schedule optim.Scheduler = optim.InverseTimeDecay{InitialLR: cfg.LearningRate, Decay: cfg.LRDecay}
	if cfg.LRDecay == 0 {
		schedule = optim.Constant(cfg.LearningRate)
	}

	backend := extractor.Backend()
	return &Trainer[B]{
		extractor: extractor,
		decoder:   decoder,
		losses:    losses,
		optimizer: optim.NewAdam(decoder.Parameters(), optim.AdamConfig{LR: float32(cfg.LearningRate)}, backend),
		schedule:  schedule,
		reporters: reporters,
		cfg:       cfg,
		runID:     runID,
		backend:   backend,
	}, nil
}

// RunID returns the identifier stamped into reports and checkpoints.
func (t *Trainer[B]) RunID() string {
	return t.runID
}

// Optimizer returns the decoder optimizer.
func (t *Trainer[B]) Optimizer() *optim.Adam[B] {
	return t.optimizer
}

// Steps returns the number of optimizer steps taken, including resumed ones.
func (t *Trainer[B]) Steps() int64 {
	return t.steps
}

// Step runs one training iteration: zero gradients, blend, decode, compute
// the losses, backpropagate into the decoder and update it. Kernel panics
// are returned as errors.
func (t *Trainer[B]) Step(content, style *tensor.Tensor[float32, B]) (res StepResult[B], err error) {
	tape := t.backend.GetTape()
	defer tape.Clear()
	defer guard(&err)

	t.optimizer.ZeroGrad()
	blended, err := Blend(t.extractor, content, style, t.cfg.Alpha)
	if err != nil {
		return res, err
	}

	tape.StartRecording()
	defer tape.StopRecording()

	generated := t.decoder.Forward(blended)
	losses, err := t.losses.Compute(generated, style, blended)
	if err != nil {
		return res, err
	}
	total := t.losses.Objective(losses)
	res = result(losses, total, generated)
	if !total.IsFinite() {
		return res, fmt.Errorf("%w: objective %v", ErrNumericDegeneracy, res.Total)
	}

	grads := autodiff.Backward(total, t.backend)
	t.optimizer.Step(grads)
	t.steps++
	return res, nil
}

// Evaluate runs the forward pass and the losses without recording.
func (t *Trainer[B]) Evaluate(content, style *tensor.Tensor[float32, B]) (res StepResult[B], err error) {
	defer guard(&err)

	blended, err := Blend(t.extractor, content, style, t.cfg.Alpha)
	if err != nil {
		return res, err
	}

	autodiff.NoGrad(t.backend, func() {
		generated := t.decoder.Forward(blended)
		var losses Losses[B]
		if losses, err = t.losses.Compute(generated, style, blended); err == nil {
			res = result(losses, t.losses.Objective(losses), generated)
		}
	})
	return res, err
}

// Run trains for cfg.Epochs epochs of source.BatchesPerEpoch() batches.
//
// At batch 0 of every epoch the held-out pair is evaluated and reported.
// The decoder is saved to cfg.CheckpointPath when training completes. Any
// error aborts the run with a *TrainingFailure; nothing is retried.
func (t *Trainer[B]) Run(ctx context.Context, source PairSource[B]) (Summary, error) {
	summary := Summary{RunID: t.runID}

	start := 0
	if t.cfg.ResumeFrom != "" {
		info, err := t.decoder.Load(t.cfg.ResumeFrom, t.optimizer)
		if err == nil && info.Backbone != "" && t.cfg.Backbone != "" && info.Backbone != t.cfg.Backbone {
			err = configErr("backbone", "%s was trained with %s, extractor uses %s", t.cfg.ResumeFrom, info.Backbone, t.cfg.Backbone)
		}
		if err != nil {
			return summary, &TrainingFailure{Epoch: 0, Batch: -1, Err: err}
		}
		start = info.Epoch + 1
		t.steps = info.Step
	}

	batches := source.BatchesPerEpoch()
	if batches < 1 {
		return summary, &TrainingFailure{Epoch: start, Batch: -1, Err: configErr("pair source", "%d batches per epoch", batches)}
	}
	sampleContent, sampleStyle, err := source.Sample()
	if err != nil {
		return summary, &TrainingFailure{Epoch: start, Batch: -1, Err: fmt.Errorf("held-out pair: %w", err)}
	}

	last := start + t.cfg.Epochs - 1
	for epoch := start; epoch <= last; epoch++ {
		lr := optim.ApplySchedule(t.optimizer, t.schedule, epoch)
		for batch := 0; batch < batches; batch++ {
			if err := ctx.Err(); err != nil {
				return summary, &TrainingFailure{Epoch: epoch, Batch: batch, Err: err}
			}
			content, style, err := source.Next(ctx)
			if err != nil {
				return summary, &TrainingFailure{Epoch: epoch, Batch: batch, Err: fmt.Errorf("next pair: %w", err)}
			}
			res, err := t.Step(content, style)
			if err != nil {
				return summary, &TrainingFailure{Epoch: epoch, Batch: batch, Err: err}
			}
			summary.Steps++
			summary.Loss = res.Total

			if batch == 0 {
				if err := t.report(ctx, epoch, batch, lr, sampleContent, sampleStyle); err != nil {
					return summary, &TrainingFailure{Epoch: epoch, Batch: batch, Err: err}
				}
			}
		}
		summary.Epochs++
	}

	if t.cfg.CheckpointPath != "" {
		err := t.decoder.Save(t.cfg.CheckpointPath, CheckpointInfo{
			RunID:     t.runID,
			Epoch:     last,
			Step:      t.steps,
			Loss:      summary.Loss,
			Backbone:  t.cfg.Backbone,
			Optimizer: t.optimizer,
		})
		if err != nil {
			return summary, &TrainingFailure{Epoch: last, Batch: -1, Err: err}
		}
		summary.Checkpoint = t.cfg.CheckpointPath
	}
	return summary, nil
}

func (t *Trainer[B]) report(ctx context.Context, epoch, batch int, lr float32, content, style *tensor.Tensor[float32, B]) error {
	res, err := t.Evaluate(content, style)
	if err != nil {
		return fmt.Errorf("evaluate held-out pair: %w", err)
	}
	r := Report{
		RunID:       t.runID,
		Epoch:       epoch,
		Batch:       batch,
		Step:        t.steps,
		LR:          lr,
		StyleLoss:   res.Style,
		ContentLoss: res.Content,
		Total:       res.Total,
		Sample:      res.Generated.Raw(),
		Content:     content.Raw(),
		Style:       style.Raw(),
		Time:        time.Now(),
	}
	var errs []error
	for _, rep := range t.reporters {
		if err := rep.Report(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	return nil
}

func result[B tensor.Backend](losses Losses[B], total, generated *tensor.Tensor[float32, B]) StepResult[B] {
	return StepResult[B]{
		Style:     float64(losses.Style.Item()),
		Content:   float64(losses.Content.Item()),
		Total:     float64(total.Item()),
		Generated: generated,
	}
}

// guard converts a panic raised by a kernel into an error.
func guard(err *error) {
	r := recover()
	if r == nil {
		return
	}
	if e, ok := r.(error); ok {
		*err = fmt.Errorf("panic: %w", e)
		return
	}
	*err = fmt.Errorf("panic: %v", r)
}
