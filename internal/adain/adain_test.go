package adain_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/born-ml/stylize/internal/adain"
	"github.com/born-ml/stylize/internal/autodiff"
	"github.com/born-ml/stylize/internal/backend/cpu"
	"github.com/born-ml/stylize/internal/tensor"
)

type Backend = *autodiff.AutodiffBackend[*cpu.CPUBackend]

type T32 = tensor.Tensor[float32, Backend]

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newBackend() Backend {
	return autodiff.New(cpu.New())
}

// tinyTopology is a VGG-shaped stack with few channels, small enough for
// training tests.
func tinyTopology() []adain.Stage {
	return []adain.Stage{
		{Kind: adain.Conv, In: 3, Out: 4}, {Kind: adain.Activation},
		{Kind: adain.Conv, In: 4, Out: 4}, {Kind: adain.Activation},
		{Kind: adain.Pool},
		{Kind: adain.Conv, In: 4, Out: 6}, {Kind: adain.Activation},
		{Kind: adain.Conv, In: 6, Out: 6}, {Kind: adain.Activation},
		{Kind: adain.Pool},
		{Kind: adain.Conv, In: 6, Out: 8}, {Kind: adain.Activation},
	}
}

func tinyExtractor(t *testing.T, b Backend) *adain.FeatureExtractor[Backend] {
	t.Helper()
	fe, err := adain.NewFeatureExtractor(adain.RandomBackbone(tinyTopology(), 7, b), adain.DefaultExtractorConfig(), b)
	require.NoError(t, err)
	return fe
}

// image returns a pixel-space image with values in [0, 1).
func image(rng *rand.Rand, b Backend, shape ...int) *T32 {
	return tensor.Uniform[float32](tensor.Shape(shape), 0, 1, rng, b)
}

func randn(rng *rand.Rand, b Backend, shape ...int) *T32 {
	return tensor.Randn[float32](tensor.Shape(shape), rng, b)
}

func requireClose(t *testing.T, want, got []float32, delta float64) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		require.InDelta(t, want[i], got[i], delta, "element %d", i)
	}
}
