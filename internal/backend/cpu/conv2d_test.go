package cpu

import (
	"math"
	"math/rand"
	"testing"

	"github.com/born-ml/stylize/internal/parallel"
	"github.com/born-ml/stylize/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestConv2D_BasicForward tests basic Conv2D forward pass.
func TestConv2D_BasicForward(t *testing.T) {
	backend := New()

	// Input: [1, 1, 3, 3]
	// 1 2 3
	// 4 5 6
	// 7 8 9
	input, _ := tensor.NewRaw(tensor.Shape{1, 1, 3, 3}, tensor.Float32, tensor.CPU)
	inputData := input.AsFloat32()
	for i := 0; i < 9; i++ {
		inputData[i] = float32(i + 1)
	}

	// Kernel: [1, 1, 2, 2] diagonal
	kernel, _ := tensor.NewRaw(tensor.Shape{1, 1, 2, 2}, tensor.Float32, tensor.CPU)
	copy(kernel.AsFloat32(), []float32{1, 0, 0, 1})

	output := backend.Conv2D(input, kernel, 1, 0)

	expectedShape := tensor.Shape{1, 1, 2, 2}
	if !output.Shape().Equal(expectedShape) {
		t.Fatalf("Expected shape %v, got %v", expectedShape, output.Shape())
	}

	// Each output is the diagonal sum of its 2x2 patch.
	expected := []float32{6, 8, 12, 14}
	outputData := output.AsFloat32()
	for i, exp := range expected {
		if outputData[i] != exp {
			t.Errorf("Output[%d]: expected %.1f, got %.1f", i, exp, outputData[i])
		}
	}
}

// TestConv2D_WithPadding tests Conv2D with zero padding.
func TestConv2D_WithPadding(t *testing.T) {
	backend := New()

	input := tensor.MustNewRaw(tensor.Shape{1, 1, 3, 3}, tensor.Float32, tensor.CPU)
	kernel := tensor.MustNewRaw(tensor.Shape{1, 1, 3, 3}, tensor.Float32, tensor.CPU)
	for i := 0; i < 9; i++ {
		input.AsFloat32()[i] = 1
		kernel.AsFloat32()[i] = 1
	}

	output := backend.Conv2D(input, kernel, 1, 1)
	if !output.Shape().Equal(tensor.Shape{1, 1, 3, 3}) {
		t.Fatalf("Expected shape [1 1 3 3], got %v", output.Shape())
	}

	// Each output counts the valid elements in its 3x3 window.
	expected := []float32{
		4, 6, 4,
		6, 9, 6,
		4, 6, 4,
	}
	for i, exp := range expected {
		if output.AsFloat32()[i] != exp {
			t.Errorf("Output[%d]: expected %.1f, got %.1f", i, exp, output.AsFloat32()[i])
		}
	}
}

func TestConv2D_WithStride(t *testing.T) {
	backend := New()

	input := tensor.MustNewRaw(tensor.Shape{1, 1, 4, 4}, tensor.Float32, tensor.CPU)
	for i := range input.AsFloat32() {
		input.AsFloat32()[i] = float32(i)
	}
	kernel := tensor.MustNewRaw(tensor.Shape{1, 1, 2, 2}, tensor.Float32, tensor.CPU)
	copy(kernel.AsFloat32(), []float32{1, 1, 1, 1})

	output := backend.Conv2D(input, kernel, 2, 0)
	require.Equal(t, tensor.Shape{1, 1, 2, 2}, output.Shape())
	// Patch sums: [0,1,4,5]=10, [2,3,6,7]=18, [8,9,12,13]=42, [10,11,14,15]=50
	assert.Equal(t, []float32{10, 18, 42, 50}, output.AsFloat32())
}

func TestConv2D_MultiChannelBatch(t *testing.T) {
	backend := New(WithParallel(parallel.Config{Enabled: true, NumWorkers: 3, MinChunkSize: 1}))
	rng := rand.New(rand.NewSource(1))

	input := randomRaw(rng, tensor.Shape{2, 3, 5, 4})
	kernel := randomRaw(rng, tensor.Shape{4, 3, 3, 3})

	got := backend.Conv2D(input, kernel, 1, 1)
	want := naiveConv2D(input, kernel, 1, 1)

	require.Equal(t, tensor.Shape{2, 4, 5, 4}, got.Shape())
	assert.InDeltaSlice(t, want, got.AsFloat64(), 1e-9)
}

func TestConv2D_ChannelMismatchPanics(t *testing.T) {
	backend := New()
	input := tensor.MustNewRaw(tensor.Shape{1, 3, 4, 4}, tensor.Float32, tensor.CPU)
	kernel := tensor.MustNewRaw(tensor.Shape{2, 2, 3, 3}, tensor.Float32, tensor.CPU)

	assert.Panics(t, func() { backend.Conv2D(input, kernel, 1, 1) })
}

// The backward kernels are checked against central differences of
// L = Σ conv(x, w) ⊙ R for a fixed random R.
func TestConv2DBackward_MatchesNumericalGradient(t *testing.T) {
	backend := New(WithParallel(parallel.Sequential()))
	rng := rand.New(rand.NewSource(7))

	for _, tc := range []struct {
		name            string
		stride, padding int
	}{
		{"stride1_pad1", 1, 1},
		{"stride2_pad0", 2, 0},
		{"stride2_pad1", 2, 1},
	} {
		t.Run(tc.name, func(t *testing.T) {
			input := randomRaw(rng, tensor.Shape{2, 2, 5, 5})
			kernel := randomRaw(rng, tensor.Shape{3, 2, 3, 3})
			out := backend.Conv2D(input, kernel, tc.stride, tc.padding)
			weights := randomRaw(rng, out.Shape())

			loss := func() float64 {
				o := backend.Conv2D(input, kernel, tc.stride, tc.padding)
				var s float64
				for i, v := range o.AsFloat64() {
					s += v * weights.AsFloat64()[i]
				}
				return s
			}

			inputGrad := backend.Conv2DInputBackward(input, kernel, weights, tc.stride, tc.padding)
			kernelGrad := backend.Conv2DKernelBackward(input, kernel, weights, tc.stride, tc.padding)

			assert.InDeltaSlice(t, numericalGrad(input, loss), inputGrad.AsFloat64(), 1e-6)
			assert.InDeltaSlice(t, numericalGrad(kernel, loss), kernelGrad.AsFloat64(), 1e-6)
		})
	}
}

func randomRaw(rng *rand.Rand, shape tensor.Shape) *tensor.RawTensor {
	raw := tensor.MustNewRaw(shape, tensor.Float64, tensor.CPU)
	for i := range raw.AsFloat64() {
		raw.AsFloat64()[i] = rng.NormFloat64()
	}
	return raw
}

func numericalGrad(param *tensor.RawTensor, loss func() float64) []float64 {
	const h = 1e-6
	data := param.AsFloat64()
	grad := make([]float64, len(data))
	for i := range data {
		orig := data[i]
		data[i] = orig + h
		plus := loss()
		data[i] = orig - h
		minus := loss()
		data[i] = orig
		grad[i] = (plus - minus) / (2 * h)
	}
	return grad
}

func naiveConv2D(input, kernel *tensor.RawTensor, stride, padding int) []float64 {
	is, ks := input.Shape(), kernel.Shape()
	N, C, H, W := is[0], is[1], is[2], is[3]
	CO, KH, KW := ks[0], ks[2], ks[3]
	HO := (H+2*padding-KH)/stride + 1
	WO := (W+2*padding-KW)/stride + 1
	in, k := input.AsFloat64(), kernel.AsFloat64()

	out := make([]float64, N*CO*HO*WO)
	for n := 0; n < N; n++ {
		for co := 0; co < CO; co++ {
			for oh := 0; oh < HO; oh++ {
				for ow := 0; ow < WO; ow++ {
					var s float64
					for c := 0; c < C; c++ {
						for kh := 0; kh < KH; kh++ {
							for kw := 0; kw < KW; kw++ {
								h := oh*stride - padding + kh
								w := ow*stride - padding + kw
								if h < 0 || h >= H || w < 0 || w >= W {
									continue
								}
								s += in[((n*C+c)*H+h)*W+w] * k[((co*C+c)*KH+kh)*KW+kw]
							}
						}
					}
					out[((n*CO+co)*HO+oh)*WO+ow] = s
				}
			}
		}
	}
	return out
}

func TestIm2ColCol2ImAdjoint(t *testing.T) {
	// <im2col(x), y> == <x, col2im(y)> for any x, y.
	rng := rand.New(rand.NewSource(3))
	input := tensor.MustNewRaw(tensor.Shape{1, 2, 4, 5}, tensor.Float64, tensor.CPU)
	kernel := tensor.MustNewRaw(tensor.Shape{1, 2, 3, 3}, tensor.Float64, tensor.CPU)
	g := newConvGeometry("test", input, kernel, 2, 1)

	x := make([]float64, g.CIn*g.H*g.W)
	y := make([]float64, g.colRows*g.colCols)
	for i := range x {
		x[i] = rng.NormFloat64()
	}
	for i := range y {
		y[i] = rng.NormFloat64()
	}

	col := make([]float64, len(y))
	im2col(col, x, g, parallel.Sequential())
	folded := make([]float64, len(x))
	col2im(folded, y, g, parallel.Sequential())

	var lhs, rhs float64
	for i := range y {
		lhs += col[i] * y[i]
	}
	for i := range x {
		rhs += x[i] * folded[i]
	}
	assert.InDelta(t, lhs, rhs, 1e-9*math.Max(1, math.Abs(lhs)))
}
