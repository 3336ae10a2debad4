package nn_test

import (
	"errors"
	"math"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/born-ml/stylize/internal/autodiff"
	"github.com/born-ml/stylize/internal/backend/cpu"
	"github.com/born-ml/stylize/internal/nn"
	"github.com/born-ml/stylize/internal/tensor"
)

type Backend = *autodiff.AutodiffBackend[*cpu.CPUBackend]

func newBackend() Backend {
	return autodiff.New(cpu.New())
}

// Helper to check if values are approximately equal.
func floatEqual(a, b, epsilon float32) bool {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff < epsilon
}

func TestParameter(t *testing.T) {
	backend := newBackend()

	data, _ := tensor.FromSlice([]float32{1, 2, 3}, tensor.Shape{3}, backend)
	param := nn.NewParameter("test_param", data)

	if param.Name() != "test_param" {
		t.Errorf("Name() = %s, want test_param", param.Name())
	}
	if param.Tensor() != data {
		t.Error("Tensor() should return the original tensor")
	}
	if param.Grad() != nil {
		t.Error("Grad() should initially be nil")
	}

	grad, _ := tensor.FromSlice([]float32{0.1, 0.2, 0.3}, tensor.Shape{3}, backend)
	param.SetGrad(grad)
	if param.Grad() != grad {
		t.Error("SetGrad() should set the gradient")
	}
	param.ZeroGrad()
	if param.Grad() != nil {
		t.Error("ZeroGrad() should clear the gradient")
	}
}

func TestParameterLoad(t *testing.T) {
	backend := newBackend()
	param := nn.NewParameter("w", tensor.Zeros[float32](tensor.Shape{2}, backend))

	src := tensor.MustNewRaw(tensor.Shape{2}, tensor.Float64, tensor.CPU)
	copy(src.AsFloat64(), []float64{1.5, -2})
	if err := param.Load(src); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got := param.Tensor().Data(); got[0] != 1.5 || got[1] != -2 {
		t.Errorf("Load() copied %v, want [1.5 -2]", got)
	}

	wrong := tensor.MustNewRaw(tensor.Shape{3}, tensor.Float32, tensor.CPU)
	err := param.Load(wrong)
	var shapeErr *nn.ShapeMismatchError
	if !errors.As(err, &shapeErr) || !errors.Is(err, nn.ErrStateDict) {
		t.Errorf("Load() with wrong shape: got %v, want ShapeMismatchError", err)
	}
}

func TestConv2DForwardValues(t *testing.T) {
	backend := newBackend()

	// 1 -> 1 channel, 2x2 kernel of ones, bias 0.5.
	weight, _ := tensor.FromSlice([]float32{1, 1, 1, 1}, tensor.Shape{1, 1, 2, 2}, backend)
	bias, _ := tensor.FromSlice([]float32{0.5}, tensor.Shape{1}, backend)
	conv := nn.NewConv2DFromTensors(weight, bias, 1, 0)

	input, _ := tensor.FromSlice([]float32{
		1, 2, 3,
		4, 5, 6,
		7, 8, 9,
	}, tensor.Shape{1, 1, 3, 3}, backend)

	output := conv.Forward(input)
	want := []float32{12.5, 16.5, 24.5, 28.5}
	if !output.Shape().Equal(tensor.Shape{1, 1, 2, 2}) {
		t.Fatalf("output shape = %v, want [1 1 2 2]", output.Shape())
	}
	for i, v := range output.Data() {
		if !floatEqual(v, want[i], 1e-5) {
			t.Errorf("output[%d] = %f, want %f", i, v, want[i])
		}
	}
}

func TestConv2DSamePaddingKeepsSize(t *testing.T) {
	backend := newBackend()
	rng := rand.New(rand.NewSource(1))
	conv := nn.NewConv2D(3, 8, 3, 1, 1, rng, backend)

	input := tensor.Randn[float32](tensor.Shape{2, 3, 7, 5}, rng, backend)
	output := conv.Forward(input)
	if !output.Shape().Equal(tensor.Shape{2, 8, 7, 5}) {
		t.Errorf("output shape = %v, want [2 8 7 5]", output.Shape())
	}
	if got := conv.ComputeOutputSize(7, 5); got != [2]int{7, 5} {
		t.Errorf("ComputeOutputSize = %v, want [7 5]", got)
	}
	if len(conv.Parameters()) != 2 {
		t.Errorf("expected 2 parameters, got %d", len(conv.Parameters()))
	}
}

func TestConv2DXavierBound(t *testing.T) {
	backend := newBackend()
	conv := nn.NewConv2D(4, 6, 3, 1, 1, rand.New(rand.NewSource(7)), backend)

	bound := float32(math.Sqrt(6.0 / float64(4*9+6*9)))
	for _, v := range conv.Weight().Tensor().Data() {
		if v < -bound || v > bound {
			t.Fatalf("weight %f outside Xavier bound %f", v, bound)
		}
	}
	for _, v := range conv.Bias().Tensor().Data() {
		if v != 0 {
			t.Fatalf("bias should start at zero, got %f", v)
		}
	}
}

func TestConv2DPanicsOnChannelMismatch(t *testing.T) {
	backend := newBackend()
	conv := nn.NewConv2D(3, 4, 3, 1, 1, rand.New(rand.NewSource(1)), backend)

	defer func() {
		if recover() == nil {
			t.Error("expected panic for channel mismatch")
		}
	}()
	conv.Forward(tensor.Zeros[float32](tensor.Shape{1, 2, 4, 4}, backend))
}

func TestPoolUpsampleReLU(t *testing.T) {
	backend := newBackend()
	input, _ := tensor.FromSlice([]float32{
		1, -2, 3, 0,
		-5, 6, -7, 8,
		9, 10, -11, 12,
		13, -14, 15, 16,
		99, 99, 99, 99, // odd row dropped by floor pooling
	}, tensor.Shape{1, 1, 5, 4}, backend)

	pooled := nn.NewMaxPool2D[Backend](2, 2).Forward(input)
	wantPooled := []float32{6, 8, 13, 16}
	if !pooled.Shape().Equal(tensor.Shape{1, 1, 2, 2}) {
		t.Fatalf("pooled shape = %v, want [1 1 2 2]", pooled.Shape())
	}
	for i, v := range pooled.Data() {
		if v != wantPooled[i] {
			t.Errorf("pooled[%d] = %f, want %f", i, v, wantPooled[i])
		}
	}

	up := nn.NewUpsample[Backend](2).Forward(pooled)
	if !up.Shape().Equal(tensor.Shape{1, 1, 4, 4}) {
		t.Fatalf("upsampled shape = %v, want [1 1 4 4]", up.Shape())
	}
	if up.At(0, 0, 1, 1) != 6 || up.At(0, 0, 3, 2) != 16 {
		t.Errorf("nearest upsampling copied the wrong values: %v", up.Data())
	}

	relu := nn.NewReLU[Backend]().Forward(input)
	for i, v := range relu.Data() {
		if v < 0 {
			t.Errorf("relu[%d] = %f is negative", i, v)
		}
	}
}

func buildStack(seed int64, backend Backend) *nn.Sequential[Backend] {
	rng := rand.New(rand.NewSource(seed))
	return nn.NewSequential[Backend](
		nn.NewConv2D(2, 4, 3, 1, 1, rng, backend),
		nn.NewReLU[Backend](),
		nn.NewUpsample[Backend](2),
		nn.NewConv2D(4, 2, 3, 1, 1, rng, backend),
	)
}

func TestSequentialStateDictRoundTrip(t *testing.T) {
	backend := newBackend()
	a := buildStack(1, backend)
	b := buildStack(2, backend)

	sd := a.StateDict()
	for _, key := range []string{"0.weight", "0.bias", "3.weight", "3.bias"} {
		if _, ok := sd[key]; !ok {
			t.Errorf("state dict missing %q", key)
		}
	}
	if len(sd) != 4 {
		t.Errorf("state dict has %d entries, want 4", len(sd))
	}

	if err := b.LoadStateDict(sd); err != nil {
		t.Fatalf("LoadStateDict() error: %v", err)
	}
	input := tensor.Randn[float32](tensor.Shape{1, 2, 3, 3}, rand.New(rand.NewSource(3)), backend)
	outA, outB := a.Forward(input).Data(), b.Forward(input).Data()
	for i := range outA {
		if outA[i] != outB[i] {
			t.Fatalf("outputs differ at %d after loading: %f vs %f", i, outA[i], outB[i])
		}
	}
}

func TestSequentialLoadStateDictErrors(t *testing.T) {
	backend := newBackend()
	s := buildStack(1, backend)

	sd := s.StateDict()
	delete(sd, "3.bias")
	var missing *nn.MissingParameterError
	if err := s.LoadStateDict(sd); !errors.As(err, &missing) || missing.Name != "bias" {
		t.Errorf("expected missing 3.bias, got %v", err)
	}

	sd = s.StateDict()
	sd["1.weight"] = sd["0.weight"]
	var unexpected *nn.UnexpectedParameterError
	if err := s.LoadStateDict(sd); !errors.As(err, &unexpected) {
		t.Errorf("expected unexpected parameter for ReLU slot, got %v", err)
	}

	sd = s.StateDict()
	sd["9.weight"] = sd["0.weight"]
	if err := s.LoadStateDict(sd); !errors.Is(err, nn.ErrStateDict) {
		t.Errorf("expected error for out-of-range module, got %v", err)
	}
}

func TestLosses(t *testing.T) {
	backend := newBackend()
	a, _ := tensor.FromSlice([]float32{1, 2, 3, 4}, tensor.Shape{2, 2}, backend)
	b, _ := tensor.FromSlice([]float32{0, 2, 5, 4}, tensor.Shape{2, 2}, backend)

	if got := nn.NewMSELoss[Backend]().Forward(a, b).Item(); !floatEqual(got, 1.25, 1e-6) {
		t.Errorf("MSE = %f, want 1.25", got)
	}
	if got := nn.SquaredDistance(a, b).Item(); !floatEqual(got, 5, 1e-6) {
		t.Errorf("SquaredDistance = %f, want 5", got)
	}
	if got := nn.EuclideanDistance(a, b, 0).Item(); !floatEqual(got, float32(math.Sqrt(5)), 1e-6) {
		t.Errorf("EuclideanDistance = %f, want sqrt(5)", got)
	}
}

func TestMSELossGradient(t *testing.T) {
	backend := newBackend()
	backend.Tape().StartRecording()

	pred, _ := tensor.FromSlice([]float32{1, 2, 3, 4}, tensor.Shape{4}, backend)
	target, _ := tensor.FromSlice([]float32{0, 0, 0, 0}, tensor.Shape{4}, backend)
	loss := nn.NewMSELoss[Backend]().Forward(pred, target)

	grads := autodiff.Backward(loss, backend)
	// d/dp mean(p²) = 2p/n
	want := []float32{0.5, 1, 1.5, 2}
	for i, g := range grads[pred.Raw()].AsFloat32() {
		if !floatEqual(g, want[i], 1e-6) {
			t.Errorf("grad[%d] = %f, want %f", i, g, want[i])
		}
	}
}

func TestEuclideanDistanceFiniteAtZero(t *testing.T) {
	backend := newBackend()
	backend.Tape().StartRecording()

	a, _ := tensor.FromSlice([]float32{1, 2}, tensor.Shape{2}, backend)
	loss := nn.EuclideanDistance(a, a.Clone(), 1e-8)
	grads := autodiff.Backward(loss, backend)
	if !grads[a.Raw()].IsFinite() {
		t.Error("gradient of EuclideanDistance at a == b must be finite")
	}
}

type fakeOptimizer struct {
	state  map[string]*tensor.RawTensor
	loaded map[string]*tensor.RawTensor
}

func (f *fakeOptimizer) StateDict() map[string]*tensor.RawTensor { return f.state }
func (f *fakeOptimizer) LoadStateDict(sd map[string]*tensor.RawTensor) error {
	f.loaded = sd
	return nil
}
func (f *fakeOptimizer) GetLR() float32 { return 1e-4 }
func (f *fakeOptimizer) Name() string   { return "Fake" }

func TestCheckpointRoundTrip(t *testing.T) {
	backend := newBackend()
	path := filepath.Join(t.TempDir(), "ckpt.born")

	step := tensor.MustNewRaw(tensor.Shape{1}, tensor.Float32, tensor.CPU)
	step.AsFloat32()[0] = 42
	opt := &fakeOptimizer{state: map[string]*tensor.RawTensor{"step": step}}

	src := buildStack(1, backend)
	ckpt := &nn.Checkpoint[Backend]{
		Model:     src,
		Optimizer: opt,
		Epoch:     7,
		Step:      700,
		Loss:      0.5,
		ModelType: "test.Stack",
		Metadata:  map[string]string{"depth": "2"},
	}
	if err := ckpt.Save(path); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	dst := buildStack(2, backend)
	restored := &fakeOptimizer{}
	loaded, err := nn.LoadCheckpoint[Backend](path, dst, restored)
	if err != nil {
		t.Fatalf("LoadCheckpoint() error: %v", err)
	}

	if loaded.Epoch != 7 || loaded.Step != 700 || loaded.Loss != 0.5 {
		t.Errorf("metadata = (%d, %d, %f), want (7, 700, 0.5)", loaded.Epoch, loaded.Step, loaded.Loss)
	}
	if loaded.ModelType != "test.Stack" || loaded.Metadata["depth"] != "2" {
		t.Errorf("header not restored: %q %v", loaded.ModelType, loaded.Metadata)
	}
	if got := restored.loaded["step"]; got == nil || got.AsFloat32()[0] != 42 {
		t.Errorf("optimizer state not restored: %v", restored.loaded)
	}

	srcW := src.StateDict()["3.weight"].AsFloat32()
	dstW := dst.StateDict()["3.weight"].AsFloat32()
	for i := range srcW {
		if srcW[i] != dstW[i] {
			t.Fatalf("weight %d differs after load", i)
		}
	}
}
