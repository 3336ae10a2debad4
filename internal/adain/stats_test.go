package adain_test

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"
	"pgregory.net/rapid"

	"github.com/born-ml/stylize/internal/adain"
	"github.com/born-ml/stylize/internal/tensor"
)

func TestSpatialStats_Shape(t *testing.T) {
	b := newBackend()
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 3).Draw(rt, "n")
		c := rapid.IntRange(1, 5).Draw(rt, "c")
		h := rapid.IntRange(1, 6).Draw(rt, "h")
		w := rapid.IntRange(1, 6).Draw(rt, "w")
		seed := rapid.Int64().Draw(rt, "seed")

		x := randn(rand.New(rand.NewSource(seed)), b, n, c, h, w)
		s := adain.SpatialStats(x, adain.DefaultEpsilon)

		want := tensor.Shape{n, c, 1, 1}
		if !s.Mean.Shape().Equal(want) || !s.Std.Shape().Equal(want) {
			rt.Fatalf("stats shapes %v, %v; want %v", s.Mean.Shape(), s.Std.Shape(), want)
		}
	})
}

// TestSpatialStats_MatchesGonum checks every (item, channel) plane against
// gonum's unbiased mean and standard deviation.
func TestSpatialStats_MatchesGonum(t *testing.T) {
	b := newBackend()
	rng := rand.New(rand.NewSource(11))
	const n, c, h, w = 2, 3, 4, 5
	const eps = 1e-5
	x := randn(rng, b, n, c, h, w)
	s := adain.SpatialStats(x, eps)

	data := x.Data()
	plane := make([]float64, h*w)
	for i := 0; i < n; i++ {
		for ch := 0; ch < c; ch++ {
			base := (i*c + ch) * h * w
			for k := range plane {
				plane[k] = float64(data[base+k])
			}
			mean, std := stat.MeanStdDev(plane, nil)
			wantStd := math.Sqrt(std*std + eps)

			assert.InDelta(t, mean, s.Mean.At(i, ch, 0, 0), 1e-5, "mean[%d,%d]", i, ch)
			assert.InDelta(t, wantStd, s.Std.At(i, ch, 0, 0), 1e-5, "std[%d,%d]", i, ch)
		}
	}
}

func TestSpatialStats_SinglePixel(t *testing.T) {
	b := newBackend()
	x, err := tensor.FromSlice([]float32{3, -2}, tensor.Shape{1, 2, 1, 1}, b)
	require.NoError(t, err)

	s := adain.SpatialStats(x, 1e-4)
	assert.Equal(t, []float32{3, -2}, s.Mean.Data())
	requireClose(t, []float32{0.01, 0.01}, s.Std.Data(), 1e-6)
}

func TestSpatialStats_ReducesSpatialOnly(t *testing.T) {
	b := newBackend()
	// Item 0 channel 0 is constant, item 1 channel 0 is not: a batch or
	// channel reduction would mix them.
	x, err := tensor.FromSlice([]float32{
		1, 1, 1, 1, // n0 c0
		0, 2, 4, 6, // n0 c1
		5, 5, 9, 9, // n1 c0
		7, 7, 7, 7, // n1 c1
	}, tensor.Shape{2, 2, 2, 2}, b)
	require.NoError(t, err)

	s := adain.SpatialStats(x, 0)
	assert.Equal(t, []float32{1, 3, 7, 7}, s.Mean.Data())
	requireClose(t, []float32{0, float32(math.Sqrt(20.0 / 3)), float32(math.Sqrt(16.0 / 3)), 0}, s.Std.Data(), 1e-5)
}

func TestSpatialStats_PanicsOnNon4D(t *testing.T) {
	b := newBackend()
	assert.Panics(t, func() {
		adain.SpatialStats(tensor.Ones[float32](tensor.Shape{2, 3}, b), 0)
	})
}
