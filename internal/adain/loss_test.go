package adain_test

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/stylize/internal/adain"
	"github.com/born-ml/stylize/internal/autodiff"
)

func TestLoss_ZeroWhenGeneratedIsStyle(t *testing.T) {
	b := newBackend()
	fe := tinyExtractor(t, b)
	engine, err := adain.NewLossEngine(fe, adain.DefaultLossConfig())
	require.NoError(t, err)

	style := image(rand.New(rand.NewSource(1)), b, 2, 3, 8, 8)
	enc, err := fe.Encode(style)
	require.NoError(t, err)

	losses, err := engine.Compute(style, style, enc.Features)
	require.NoError(t, err)
	assert.InDelta(t, 0, losses.Style.Item(), 1e-10)
	assert.InDelta(t, 0, losses.Content.Item(), 1e-10)
}

func TestLoss_PositiveForDifferentImages(t *testing.T) {
	b := newBackend()
	fe := tinyExtractor(t, b)
	engine, err := adain.NewLossEngine(fe, adain.DefaultLossConfig())
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(2))
	generated := image(rng, b, 1, 3, 8, 8)
	style := image(rng, b, 1, 3, 8, 8).MulScalar(0.2)
	target := randn(rng, b, 1, 6, 4, 4)

	losses, err := engine.Compute(generated, style, target)
	require.NoError(t, err)
	assert.Greater(t, losses.Style.Item(), float32(0))
	assert.Greater(t, losses.Content.Item(), float32(0))

	want := 1000*losses.Style.Item() + losses.Content.Item()
	assert.InDelta(t, want, engine.Objective(losses).Item(), 1e-3*float64(want))
}

// TestLoss_StyleSumsTapTerms recomputes the style loss from the taps.
func TestLoss_StyleSumsTapTerms(t *testing.T) {
	b := newBackend()
	fe := tinyExtractor(t, b)
	engine, err := adain.NewLossEngine(fe, adain.DefaultLossConfig())
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(3))
	generated := image(rng, b, 1, 3, 8, 8)
	style := image(rng, b, 1, 3, 8, 8)
	ge, err := fe.Encode(generated)
	require.NoError(t, err)
	se, err := fe.Encode(style)
	require.NoError(t, err)

	var want float64
	for _, d := range fe.TapDepths() {
		want += mse(ge.Taps[d].Mean.Data(), se.Taps[d].Mean.Data())
		want += mse(ge.Taps[d].Std.Data(), se.Taps[d].Std.Data())
	}

	losses, err := engine.Compute(generated, style, ge.Features)
	require.NoError(t, err)
	assert.InDelta(t, want, losses.Style.Item(), 1e-5*(1+want))
	assert.InDelta(t, 0, losses.Content.Item(), 1e-10)
}

func mse(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i] - b[i])
		sum += d * d
	}
	return sum / float64(len(a))
}

func TestLoss_ContentDistances(t *testing.T) {
	b := newBackend()
	fe := tinyExtractor(t, b)
	rng := rand.New(rand.NewSource(4))
	generated := image(rng, b, 1, 3, 8, 8)
	target := randn(rng, b, 1, 6, 4, 4)

	squared, err := adain.NewLossEngine(fe, adain.DefaultLossConfig())
	require.NoError(t, err)
	cfg := adain.DefaultLossConfig()
	cfg.ContentDistance = adain.DistanceL2
	l2, err := adain.NewLossEngine(fe, cfg)
	require.NoError(t, err)

	sq, err := squared.Compute(generated, generated, target)
	require.NoError(t, err)
	norm, err := l2.Compute(generated, generated, target)
	require.NoError(t, err)

	assert.InDelta(t, math.Sqrt(float64(sq.Content.Item())), norm.Content.Item(), 1e-3)
}

func TestLoss_GradientReachesGeneratedOnly(t *testing.T) {
	b := newBackend()
	fe := tinyExtractor(t, b)
	engine, err := adain.NewLossEngine(fe, adain.DefaultLossConfig())
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(5))
	generated := image(rng, b, 1, 3, 8, 8)
	style := image(rng, b, 1, 3, 8, 8)
	target := randn(rng, b, 1, 6, 4, 4)

	tape := b.Tape()
	tape.StartRecording()
	defer tape.Clear()

	losses, err := engine.Compute(generated, style, target)
	require.NoError(t, err)
	grads := autodiff.Backward(engine.Objective(losses), b)

	assert.Contains(t, grads, generated.Raw())
	assert.NotContains(t, grads, style.Raw(), "the style image is a constant target")
}

func TestLoss_BroadcastsSingleStyle(t *testing.T) {
	b := newBackend()
	fe := tinyExtractor(t, b)
	engine, err := adain.NewLossEngine(fe, adain.DefaultLossConfig())
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(6))
	style := image(rng, b, 1, 3, 8, 8)
	generated := image(rng, b, 3, 3, 8, 8)
	target := randn(rng, b, 3, 6, 4, 4)

	losses, err := engine.Compute(generated, style, target)
	require.NoError(t, err)
	assert.True(t, losses.Style.IsFinite())

	_, err = engine.Compute(generated, image(rng, b, 2, 3, 8, 8), target)
	assert.ErrorIs(t, err, adain.ErrShapeMismatch)
}

func TestLoss_ShapeMismatch(t *testing.T) {
	b := newBackend()
	fe := tinyExtractor(t, b)
	engine, err := adain.NewLossEngine(fe, adain.DefaultLossConfig())
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(7))
	img := image(rng, b, 1, 3, 8, 8)
	_, err = engine.Compute(img, img, randn(rng, b, 1, 6, 2, 2))
	assert.ErrorIs(t, err, adain.ErrShapeMismatch)
}

func TestLossConfig_Validate(t *testing.T) {
	base := adain.DefaultLossConfig()
	require.NoError(t, base.Validate())

	broken := []func(*adain.LossConfig){
		func(c *adain.LossConfig) { c.StyleWeight = -1 },
		func(c *adain.LossConfig) { c.ContentWeight = float32(math.NaN()) },
		func(c *adain.LossConfig) { c.ContentDistance = "cosine" },
		func(c *adain.LossConfig) { c.Epsilon = -1e-3 },
	}
	for i, mutate := range broken {
		cfg := base
		mutate(&cfg)
		err := cfg.Validate()
		assert.True(t, errors.Is(err, adain.ErrConfiguration), "case %d: %v", i, err)
	}
}
