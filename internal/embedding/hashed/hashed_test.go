package hashed

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbed_DeterministicFixedLength(t *testing.T) {
	p := New(64)
	ctx := context.Background()

	a, err := p.Embed(ctx, "Intro to Machine Learning", p.ModelName())
	require.NoError(t, err)
	b, err := p.Embed(ctx, "Intro to Machine Learning", "")
	require.NoError(t, err)
	c, err := p.Embed(ctx, "Pottery Studio: wheel throwing and glazing", "")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
	assert.Len(t, c, 64)
}

func TestEmbed_UnitLength(t *testing.T) {
	p := New(32)
	v, err := p.Embed(context.Background(), "linear algebra matrices vectors", "")
	require.NoError(t, err)
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-6)
}

func TestEmbed_StopwordsIgnored(t *testing.T) {
	p := New(32)
	a, err := p.Embed(context.Background(), "the statistics of the data", "")
	require.NoError(t, err)
	b, err := p.Embed(context.Background(), "statistics data", "")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestEmbed_Errors(t *testing.T) {
	p := New(0)
	assert.Equal(t, DefaultDimension, p.Dimension())

	_, err := p.Embed(context.Background(), "x", "text-embedding-ada-002")
	assert.Error(t, err)
}

func TestEmbed_StopwordsOnlyIsZeroVector(t *testing.T) {
	p := New(16)
	vec, err := p.Embed(context.Background(), "the of and", "")
	require.NoError(t, err)
	assert.Len(t, vec, 16)
	for _, v := range vec {
		assert.Zero(t, v)
	}
}
