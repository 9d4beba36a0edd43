package embedding

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ire/internal/core"
)

// stubBackend is a test double that counts calls and returns a fixed
// vector, mirroring the mock embedder pattern used across the corpus.
type stubBackend struct {
	calls  atomic.Int64
	vector []float32
	err    error
}

func newStubBackend(dims int) *stubBackend {
	vec := make([]float32, dims)
	vec[0] = 1.0
	return &stubBackend{vector: vec}
}

func (s *stubBackend) Embed(ctx context.Context, model, text string) ([]float32, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return s.vector, nil
}

func TestEmbedIsUnitNorm(t *testing.T) {
	backend := newStubBackend(8)
	c := New(backend, "m")

	vec, err := c.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	assert.True(t, vec.IsUnit())
}

func TestEmbedCachesByText(t *testing.T) {
	backend := newStubBackend(4)
	c := New(backend, "m")

	_, err := c.Embed(context.Background(), "same text")
	require.NoError(t, err)
	_, err = c.Embed(context.Background(), "same text")
	require.NoError(t, err)

	assert.EqualValues(t, 1, backend.calls.Load())
}

func TestEmbedTruncatesAndStripsColons(t *testing.T) {
	backend := newStubBackend(4)
	c := New(backend, "m")

	long := make([]byte, maxEmbedChars+500)
	for i := range long {
		long[i] = 'a'
	}
	_, err := c.Embed(context.Background(), string(long)+":rest")
	require.NoError(t, err)
	assert.EqualValues(t, 1, backend.calls.Load())
	assert.Equal(t, string(long[:maxEmbedChars]), prepare(string(long)+":rest"))
	assert.Equal(t, "a - b", prepare("a:b"))
}

func TestEmbedNilOnProviderFailureIsTolerated(t *testing.T) {
	backend := newStubBackend(4)
	backend.vector = nil
	c := New(backend, "m")

	vec, err := c.Embed(context.Background(), "text")
	require.NoError(t, err)
	assert.Nil(t, vec)
}

func TestEmbedTransformedCachesByTransformID(t *testing.T) {
	backend := newStubBackend(4)
	c := New(backend, "m")

	identity := func(e core.Embedding) core.Embedding { return e }

	v1, err := c.EmbedTransformed(context.Background(), "text", "cycle-1", identity)
	require.NoError(t, err)
	v2, err := c.EmbedTransformed(context.Background(), "text", "cycle-1", identity)
	require.NoError(t, err)

	assert.EqualValues(t, 1, backend.calls.Load())
	assert.Equal(t, v1, v2)
}

func TestEmbedTransformedDistinctPerTransformID(t *testing.T) {
	backend := newStubBackend(4)
	c := New(backend, "m")

	flip := func(e core.Embedding) core.Embedding {
		out := make(core.Embedding, len(e))
		for i, v := range e {
			out[i] = -v
		}
		return out
	}

	_, err := c.EmbedTransformed(context.Background(), "text", "cycle-1", flip)
	require.NoError(t, err)
	_, err = c.EmbedTransformed(context.Background(), "text", "cycle-2", flip)
	require.NoError(t, err)

	assert.EqualValues(t, 1, backend.calls.Load())
}

func TestBatchEmbedReturnsParallelSlice(t *testing.T) {
	backend := newStubBackend(4)
	c := New(backend, "m")

	vecs, err := c.BatchEmbed(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Len(t, vecs, 3)
}
