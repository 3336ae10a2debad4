package adain_test

import (
	"errors"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/stylize/internal/adain"
	"github.com/born-ml/stylize/internal/autodiff"
	"github.com/born-ml/stylize/internal/optim"
	"github.com/born-ml/stylize/internal/tensor"
)

func TestDecoder_MirrorsVGG19DepthFour(t *testing.T) {
	b := newBackend()
	topology, err := adain.Truncate(adain.VGG19(), 4)
	require.NoError(t, err)
	dec := adain.NewDecoder(topology, rand.New(rand.NewSource(1)), b)

	params := dec.Parameters()
	require.Len(t, params, 8)
	assert.Equal(t, tensor.Shape{128, 128, 3, 3}, params[0].Shape())
	assert.Equal(t, tensor.Shape{64, 128, 3, 3}, params[2].Shape())
	assert.Equal(t, tensor.Shape{64, 64, 3, 3}, params[4].Shape())
	assert.Equal(t, tensor.Shape{3, 64, 3, 3}, params[6].Shape())

	// conv relu conv relu upsample conv relu conv relu
	sd := dec.StateDict()
	for _, key := range []string{"0.weight", "2.weight", "5.weight", "7.weight", "7.bias"} {
		assert.Contains(t, sd, key)
	}
	assert.Len(t, sd, 8)

	features := randn(rand.New(rand.NewSource(2)), b, 1, 128, 4, 4)
	assert.Equal(t, tensor.Shape{1, 3, 8, 8}, dec.Forward(features).Shape())
}

func TestDecoder_OutputIsNonNegativePixels(t *testing.T) {
	b := newBackend()
	topology, err := adain.Truncate(tinyTopology(), 4)
	require.NoError(t, err)
	dec := adain.NewDecoder(topology, rand.New(rand.NewSource(3)), b)

	out := dec.Forward(randn(rand.New(rand.NewSource(4)), b, 2, 6, 4, 4))
	assert.Equal(t, tensor.Shape{2, 3, 8, 8}, out.Shape())
	for _, v := range out.Data() {
		require.GreaterOrEqual(t, v, float32(0))
	}
}

func TestDecoder_CheckpointRoundTrip(t *testing.T) {
	b := newBackend()
	topology, err := adain.Truncate(tinyTopology(), 4)
	require.NoError(t, err)
	input := randn(rand.New(rand.NewSource(5)), b, 1, 6, 4, 4)

	dec := adain.NewDecoder(topology, rand.New(rand.NewSource(6)), b)
	want := dec.Forward(input).Data()

	path := filepath.Join(t.TempDir(), "decoder.born")
	require.NoError(t, dec.Save(path, adain.CheckpointInfo{RunID: "run-1", Epoch: 3, Step: 40, Loss: 1.5}))

	fresh := adain.NewDecoder(topology, rand.New(rand.NewSource(99)), b)
	require.NotEqual(t, want, fresh.Forward(input).Data())

	info, err := fresh.Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, want, fresh.Forward(input).Data())
	assert.Equal(t, "run-1", info.RunID)
	assert.Equal(t, 3, info.Epoch)
	assert.Equal(t, int64(40), info.Step)
	assert.InDelta(t, 1.5, info.Loss, 1e-12)

	header, err := adain.ReadCheckpointHeader(path)
	require.NoError(t, err)
	assert.Equal(t, adain.DecoderModelType, header.ModelType)
	assert.Equal(t, dec.Architecture(), header.Metadata["architecture"])
	assert.Equal(t, "4", header.Metadata["depth"])

	depth, err := adain.CheckpointDepth(path)
	require.NoError(t, err)
	assert.Equal(t, 4, depth)
}

func TestDecoder_CheckpointWithOptimizer(t *testing.T) {
	b := newBackend()
	topology, err := adain.Truncate(tinyTopology(), 2)
	require.NoError(t, err)
	rng := rand.New(rand.NewSource(7))
	dec := adain.NewDecoder(topology, rng, b)
	adam := optim.NewAdam(dec.Parameters(), optim.AdamConfig{LR: 1e-3}, b)

	tape := b.Tape()
	tape.StartRecording()
	loss := dec.Forward(randn(rng, b, 1, 4, 4, 4)).Sum()
	adam.Step(autodiff.Backward(loss, b))
	tape.StopRecording()
	tape.Clear()

	path := filepath.Join(t.TempDir(), "decoder.born")
	require.NoError(t, dec.Save(path, adain.CheckpointInfo{Optimizer: adam}))

	fresh := adain.NewDecoder(topology, rand.New(rand.NewSource(8)), b)
	freshAdam := optim.NewAdam(fresh.Parameters(), optim.AdamConfig{LR: 1e-3}, b)
	_, err = fresh.Load(path, freshAdam)
	require.NoError(t, err)
	assert.Equal(t, 1, freshAdam.GetTimestep())
}

func TestDecoder_LoadRejectsOtherArchitecture(t *testing.T) {
	b := newBackend()
	deep, err := adain.Truncate(tinyTopology(), 4)
	require.NoError(t, err)
	shallow, err := adain.Truncate(tinyTopology(), 2)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "decoder.born")
	require.NoError(t, adain.NewDecoder(deep, rand.New(rand.NewSource(1)), b).Save(path, adain.CheckpointInfo{}))

	other := adain.NewDecoder(shallow, rand.New(rand.NewSource(2)), b)
	before := other.Parameters()[0].Tensor().Clone().Data()

	_, err = other.Load(path, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, adain.ErrConfiguration))
	assert.Equal(t, before, other.Parameters()[0].Tensor().Data(), "weights must be untouched")
}

func TestDecoder_LoadMissingFile(t *testing.T) {
	b := newBackend()
	topology, err := adain.Truncate(tinyTopology(), 2)
	require.NoError(t, err)
	dec := adain.NewDecoder(topology, rand.New(rand.NewSource(1)), b)

	_, err = dec.Load(filepath.Join(t.TempDir(), "missing.born"), nil)
	assert.Error(t, err)
}
