package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/stylize/internal/adain"
	"github.com/born-ml/stylize/internal/config"
)

func TestDefault_MatchesReferenceRun(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, adain.DefaultExtractorConfig(), cfg.Extractor())
	assert.Equal(t, adain.DefaultLossConfig(), cfg.Loss())

	train := cfg.Training()
	assert.Equal(t, 1e-4, train.LearningRate)
	assert.Equal(t, 5e-5, train.LRDecay)
	assert.Equal(t, float32(1), train.Alpha)
	assert.Equal(t, "decoder.born", train.CheckpointPath)
	assert.Equal(t, "random:0", train.Backbone)
	assert.Equal(t, 4, cfg.Data.BatchSize)
}

func TestParse_OverlaysDefaults(t *testing.T) {
	cfg, err := config.Parse([]byte(`
model:
  depth: 3
  tap_depths: [1, 3]
train:
  epochs: 2
  style_weight: 10
  content_distance: l2
data:
  content_dir: /data/coco
output:
  history: loss.csv
`))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	ext := cfg.Extractor()
	assert.Equal(t, 3, ext.Depth)
	assert.Equal(t, []int{1, 3}, ext.TapDepths)
	assert.Equal(t, float32(adain.DefaultEpsilon), ext.Epsilon)

	loss := cfg.Loss()
	assert.Equal(t, float32(10), loss.StyleWeight)
	assert.Equal(t, float32(1), loss.ContentWeight)
	assert.Equal(t, adain.DistanceL2, loss.ContentDistance)

	assert.Equal(t, 2, cfg.Training().Epochs)
	assert.Equal(t, "/data/coco", cfg.Data.ContentDir)
	assert.Equal(t, 224, cfg.Data.CropSize)
	assert.Equal(t, "loss.csv", cfg.Output.History)
}

func TestParse_Empty(t *testing.T) {
	cfg, err := config.Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestParse_RejectsUnknownKeys(t *testing.T) {
	_, err := config.Parse([]byte("train:\n  epoch: 3\n"))
	assert.ErrorContains(t, err, "epoch")
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	data, err := config.Default().Marshal()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)

	_, err = config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		field  string
	}{
		{"depth", func(c *config.Config) { c.Model.Depth = 0 }, "model.depth"},
		{"no taps", func(c *config.Config) { c.Model.TapDepths = nil }, "model.tap_depths"},
		{"tap too deep", func(c *config.Config) { c.Model.TapDepths = []int{5} }, "model.tap_depths"},
		{"epsilon", func(c *config.Config) { c.Model.Epsilon = 0 }, "model.epsilon"},
		{"crop", func(c *config.Config) { c.Data.CropSize = 0 }, "data.crop_size"},
		{"odd crop", func(c *config.Config) { c.Data.CropSize = 223 }, "data.crop_size"},
		{"crop not multiple of 8", func(c *config.Config) {
			c.Model.Depth = 10
			c.Data.CropSize = 228
		}, "data.crop_size"},
		{"depth beyond vgg19", func(c *config.Config) { c.Model.Depth = 17 }, "model.depth"},
		{"load below crop", func(c *config.Config) { c.Data.LoadSize = 100 }, "data.load_size"},
		{"batch", func(c *config.Config) { c.Data.BatchSize = 0 }, "data.batch_size"},
		{"workers", func(c *config.Config) { c.Data.Workers = 0 }, "data.workers"},
		{"epochs", func(c *config.Config) { c.Train.Epochs = 0 }, "epochs"},
		{"alpha", func(c *config.Config) { c.Train.Alpha = 1.5 }, "alpha"},
		{"distance", func(c *config.Config) { c.Train.ContentDistance = "cosine" }, "content distance"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)

			err := cfg.Validate()
			require.ErrorIs(t, err, adain.ErrConfiguration)
			var cfgErr *adain.ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}
