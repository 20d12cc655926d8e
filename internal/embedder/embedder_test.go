package embedder

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultsToFakeBackend(t *testing.T) {
	t.Parallel()

	e, err := New(Config{})
	require.NoError(t, err)
	defer e.Close()

	assert.Equal(t, defaultDimension, e.Dimension())
}

func TestNewUnknownBackendType(t *testing.T) {
	t.Parallel()

	_, err := New(Config{BackendType: "not-a-backend"})
	assert.Error(t, err)
}

// TestNewFailsFastOnUnreachableBackend exercises the component design's
// fail-fast-at-startup contract: a real backend that cannot be reached at
// construction time fails New outright, with no silent fallback to fake.
func TestNewFailsFastOnUnreachableBackend(t *testing.T) {
	t.Parallel()

	_, err := New(Config{
		BackendType: BackendTypeOllama,
		BaseURL:     "http://127.0.0.1:1", // nothing listens here
	})
	assert.Error(t, err)
}

func TestEmbedIsUnitNorm(t *testing.T) {
	t.Parallel()

	e, err := New(Config{Dimension: 16})
	require.NoError(t, err)
	defer e.Close()

	vec, err := e.Embed("search the web for cats")
	require.NoError(t, err)
	require.Len(t, vec, 16)

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)
}

func TestEmbedIsDeterministic(t *testing.T) {
	t.Parallel()

	e, err := New(Config{Dimension: 16})
	require.NoError(t, err)
	defer e.Close()

	v1, err := e.Embed("fetch a URL")
	require.NoError(t, err)
	v2, err := e.Embed("fetch a URL")
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
}

func TestEmbedDistinctTextsDiffer(t *testing.T) {
	t.Parallel()

	e, err := New(Config{Dimension: 16})
	require.NoError(t, err)
	defer e.Close()

	v1, err := e.Embed("search the web")
	require.NoError(t, err)
	v2, err := e.Embed("delete a file")
	require.NoError(t, err)

	assert.NotEqual(t, v1, v2)
}

func TestEmbedBatchMatchesIndividualEmbed(t *testing.T) {
	t.Parallel()

	e, err := New(Config{Dimension: 16})
	require.NoError(t, err)
	defer e.Close()

	texts := []string{"alpha tool", "beta tool", "gamma tool"}
	batch, err := e.EmbedBatch(texts)
	require.NoError(t, err)
	require.Len(t, batch, 3)

	for i, text := range texts {
		single, err := e.Embed(text)
		require.NoError(t, err)
		assert.Equal(t, single, batch[i])
	}
}

func TestFakeBackendDimension(t *testing.T) {
	t.Parallel()

	b := NewFakeBackend(8)
	assert.Equal(t, 8, b.Dimension())
	assert.NoError(t, b.Close())
}
