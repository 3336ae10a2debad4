// Package config assembles the run settings of the stylize CLI.
//
// A Config starts from Default, is optionally overlaid by a YAML file and is
// then converted into the explicit configuration structs of package adain.
// Unknown YAML keys are rejected.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/born-ml/stylize/internal/adain"
)

// Config is the complete run configuration.
type Config struct {
	Model  ModelConfig  `yaml:"model"`
	Train  TrainConfig  `yaml:"train"`
	Data   DataConfig   `yaml:"data"`
	Output OutputConfig `yaml:"output"`
}

// ModelConfig selects the backbone and its truncation.
type ModelConfig struct {
	Backbone     string  `yaml:"backbone"`      // SafeTensors file; random weights when empty
	BackboneSeed int64   `yaml:"backbone_seed"` // Seed for random weights
	Depth        int     `yaml:"depth"`
	TapDepths    []int   `yaml:"tap_depths"`
	Epsilon      float32 `yaml:"epsilon"`
}

// TrainConfig holds the optimizer and loss settings.
type TrainConfig struct {
	Epochs          int     `yaml:"epochs"`
	LearningRate    float64 `yaml:"learning_rate"`
	LRDecay         float64 `yaml:"lr_decay"`
	Alpha           float32 `yaml:"alpha"`
	StyleWeight     float32 `yaml:"style_weight"`
	ContentWeight   float32 `yaml:"content_weight"`
	ContentDistance string  `yaml:"content_distance"`
	Seed            int64   `yaml:"seed"`
	ResumeFrom      string  `yaml:"resume_from"`
	RunID           string  `yaml:"run_id"`
}

// DataConfig points at the image folders.
type DataConfig struct {
	ContentDir string `yaml:"content_dir"`
	StyleDir   string `yaml:"style_dir"`
	LoadSize   int    `yaml:"load_size"` // Shorter side after resizing
	CropSize   int    `yaml:"crop_size"` // Square crop fed to the network
	BatchSize  int    `yaml:"batch_size"`
	Workers    int    `yaml:"workers"` // Concurrent image decoders
}

// OutputConfig lists where a run writes its artifacts.
type OutputConfig struct {
	Checkpoint string `yaml:"checkpoint"`
	History    string `yaml:"history"`   // CSV loss history, skipped when empty
	Snapshots  string `yaml:"snapshots"` // PNG directory, skipped when empty
}

// Default returns the settings of the reference training run.
func Default() Config {
	extractor := adain.DefaultExtractorConfig()
	train := adain.DefaultTrainConfig()
	return Config{
		Model: ModelConfig{
			Depth:     extractor.Depth,
			TapDepths: extractor.TapDepths,
			Epsilon:   extractor.Epsilon,
		},
		Train: TrainConfig{
			Epochs:          train.Epochs,
			LearningRate:    train.LearningRate,
			LRDecay:         train.LRDecay,
			Alpha:           train.Alpha,
			StyleWeight:     train.Loss.StyleWeight,
			ContentWeight:   train.Loss.ContentWeight,
			ContentDistance: string(train.Loss.ContentDistance),
			Seed:            1,
		},
		Data: DataConfig{
			LoadSize:  256,
			CropSize:  224,
			BatchSize: 4,
			Workers:   4,
		},
		Output: OutputConfig{
			Checkpoint: "decoder.born",
		},
	}
}

// Load reads a YAML file over Default.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over Default. An empty document yields Default.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the fields that no adain constructor checks itself and
// then runs the adain validations.
func (c Config) Validate() error {
	switch {
	case c.Model.Depth < 1:
		return invalid("model.depth", "got %d", c.Model.Depth)
	case len(c.Model.TapDepths) == 0:
		return invalid("model.tap_depths", "empty")
	case !(c.Model.Epsilon > 0):
		return invalid("model.epsilon", "got %v", c.Model.Epsilon)
	case c.Data.CropSize < 1:
		return invalid("data.crop_size", "got %d", c.Data.CropSize)
	case c.Data.LoadSize < c.Data.CropSize:
		return invalid("data.load_size", "%d is smaller than crop size %d", c.Data.LoadSize, c.Data.CropSize)
	case c.Data.BatchSize < 1:
		return invalid("data.batch_size", "got %d", c.Data.BatchSize)
	case c.Data.Workers < 1:
		return invalid("data.workers", "got %d", c.Data.Workers)
	}
	for _, d := range c.Model.TapDepths {
		if d < 1 || d > c.Model.Depth {
			return invalid("model.tap_depths", "%d outside 1..%d", d, c.Model.Depth)
		}
	}
	vgg := adain.VGG19()
	topology, err := adain.Truncate(vgg, c.Model.Depth)
	if err != nil {
		return invalid("model.depth", "%d outside 1..%d", c.Model.Depth, adain.ConvCount(vgg))
	}
	if f := adain.Downsampling(topology); c.Data.CropSize%f != 0 {
		return invalid("data.crop_size", "%d is not a multiple of %d, the downsampling of depth %d",
			c.Data.CropSize, f, c.Model.Depth)
	}
	return c.Training().Validate()
}

// Extractor converts the model section.
func (c Config) Extractor() adain.ExtractorConfig {
	cfg := adain.DefaultExtractorConfig()
	cfg.Depth = c.Model.Depth
	cfg.TapDepths = append([]int(nil), c.Model.TapDepths...)
	cfg.Epsilon = c.Model.Epsilon
	return cfg
}

// Loss converts the loss settings.
func (c Config) Loss() adain.LossConfig {
	cfg := adain.DefaultLossConfig()
	cfg.StyleWeight = c.Train.StyleWeight
	cfg.ContentWeight = c.Train.ContentWeight
	cfg.ContentDistance = adain.ContentDistance(c.Train.ContentDistance)
	return cfg
}

// Training converts the train and output sections.
func (c Config) Training() adain.TrainConfig {
	return adain.TrainConfig{
		Epochs:         c.Train.Epochs,
		LearningRate:   c.Train.LearningRate,
		LRDecay:        c.Train.LRDecay,
		Alpha:          c.Train.Alpha,
		Loss:           c.Loss(),
		CheckpointPath: c.Output.Checkpoint,
		ResumeFrom:     c.Train.ResumeFrom,
		RunID:          c.Train.RunID,
		Backbone:       adain.BackboneID(c.Model.Backbone, c.Model.BackboneSeed),
	}
}

// Marshal renders c as YAML.
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

func invalid(field, format string, args ...any) error {
	return &adain.ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
