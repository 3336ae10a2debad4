package adain_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/stylize/internal/adain"
)

func kinds(stages []adain.Stage) []adain.StageKind {
	out := make([]adain.StageKind, len(stages))
	for i, s := range stages {
		out[i] = s.Kind
	}
	return out
}

func TestVGG19_MatchesTorchvisionLayout(t *testing.T) {
	vgg := adain.VGG19()

	require.Len(t, vgg, 37)
	assert.Equal(t, 16, adain.ConvCount(vgg))
	assert.Equal(t, adain.Stage{Kind: adain.Conv, In: 3, Out: 64}, vgg[0])
	assert.Equal(t, adain.Stage{Kind: adain.Conv, In: 64, Out: 64}, vgg[2])
	assert.Equal(t, adain.Pool, vgg[4].Kind)
	assert.Equal(t, adain.Stage{Kind: adain.Conv, In: 64, Out: 128}, vgg[5])
	assert.Equal(t, adain.Stage{Kind: adain.Conv, In: 128, Out: 256}, vgg[10])
	assert.Equal(t, adain.Stage{Kind: adain.Conv, In: 512, Out: 512}, vgg[34])
	assert.Equal(t, adain.Pool, vgg[36].Kind)
	assert.Equal(t, 512, adain.OutChannels(vgg))
	assert.Equal(t, 32, adain.Downsampling(vgg))
}

func TestTruncate_DepthFour(t *testing.T) {
	vgg := adain.VGG19()
	got, err := adain.Truncate(vgg, 4)
	require.NoError(t, err)

	// c1 r c2 r pool c3 r c4 r: the pool after c2 precedes c4 and is kept,
	// the pool after c4 and c5 onward are dropped.
	assert.Equal(t, []adain.StageKind{
		adain.Conv, adain.Activation,
		adain.Conv, adain.Activation,
		adain.Pool,
		adain.Conv, adain.Activation,
		adain.Conv, adain.Activation,
	}, kinds(got))
	assert.Equal(t, 4, adain.ConvCount(got))
	assert.Equal(t, vgg[:9], got)
	assert.Equal(t, 128, adain.OutChannels(got))
	assert.Equal(t, 2, adain.Downsampling(got))
}

func TestTruncate_PoolingBoundaries(t *testing.T) {
	vgg := adain.VGG19()
	tests := []struct {
		depth int
		len   int
		last  adain.StageKind
	}{
		{depth: 1, len: 2, last: adain.Activation},
		{depth: 2, len: 4, last: adain.Activation}, // pool after c2 excluded
		{depth: 3, len: 7, last: adain.Activation}, // pool after c2 included
		{depth: 5, len: 12, last: adain.Activation},
		{depth: 16, len: 36, last: adain.Activation}, // final pool excluded
	}
	for _, tt := range tests {
		got, err := adain.Truncate(vgg, tt.depth)
		require.NoError(t, err, "depth %d", tt.depth)
		assert.Len(t, got, tt.len, "depth %d", tt.depth)
		assert.Equal(t, tt.last, got[len(got)-1].Kind, "depth %d", tt.depth)
		assert.Equal(t, tt.depth, adain.ConvCount(got), "depth %d", tt.depth)
	}
}

func TestTruncate_InvalidDepth(t *testing.T) {
	for _, depth := range []int{0, -1, 17} {
		_, err := adain.Truncate(adain.VGG19(), depth)
		require.Error(t, err, "depth %d", depth)
		assert.True(t, errors.Is(err, adain.ErrConfiguration))

		var cfgErr *adain.ConfigurationError
		require.ErrorAs(t, err, &cfgErr)
		assert.Equal(t, "depth", cfgErr.Field)
	}
}

func TestTruncate_DoesNotAlias(t *testing.T) {
	vgg := adain.VGG19()
	got, err := adain.Truncate(vgg, 2)
	require.NoError(t, err)

	got[0].Out = 1
	assert.Equal(t, 64, vgg[0].Out)
}

func TestSignature(t *testing.T) {
	got, err := adain.Truncate(tinyTopology(), 2)
	require.NoError(t, err)
	assert.Equal(t, "c3-4,r,c4-4,r", adain.Signature(got))
	assert.Equal(t, "pool", adain.Pool.String())
}
