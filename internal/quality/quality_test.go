package quality

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ire/internal/core"
	"ire/internal/llm"
)

type stubBackend struct {
	answer string
	err    error
	calls  int
}

func (s *stubBackend) Complete(ctx context.Context, model string, messages []llm.ChatMessage, temperature float32) (string, error) {
	s.calls++
	return s.answer, s.err
}

func TestKeepSkipsLLMWhenAboveThreshold(t *testing.T) {
	backend := &stubBackend{answer: "no"}
	f := New(backend, "model", 0.5)

	keep, err := f.Keep(context.Background(), "query", core.SearchResult{Similarity: 0.9})
	require.NoError(t, err)
	assert.True(t, keep)
	assert.Equal(t, 0, backend.calls)
}

func TestKeepUsesLLMWhenBelowThreshold(t *testing.T) {
	backend := &stubBackend{answer: "Yes, this is relevant."}
	f := New(backend, "model", 0.5)

	keep, err := f.Keep(context.Background(), "query", core.SearchResult{Similarity: 0.1, Snippet: "content"})
	require.NoError(t, err)
	assert.True(t, keep)
	assert.Equal(t, 1, backend.calls)
}

func TestKeepRejectsOnNegativeAnswer(t *testing.T) {
	backend := &stubBackend{answer: "no, unrelated"}
	f := New(backend, "model", 0.5)

	keep, err := f.Keep(context.Background(), "query", core.SearchResult{Similarity: 0.1})
	require.NoError(t, err)
	assert.False(t, keep)
}

func TestKeepPropagatesBackendError(t *testing.T) {
	backend := &stubBackend{err: errors.New("boom")}
	f := New(backend, "model", 0.5)

	_, err := f.Keep(context.Background(), "query", core.SearchResult{Similarity: 0.1})
	assert.Error(t, err)
}

func TestFilterAllPreservesOrderAndDropsRejected(t *testing.T) {
	backend := &stubBackend{answer: "no"}
	f := New(backend, "model", 0.5)

	results := []core.SearchResult{
		{URL: "a", Similarity: 0.9},
		{URL: "b", Similarity: 0.1},
		{URL: "c", Similarity: 0.95},
	}
	kept, err := f.FilterAll(context.Background(), "query", results)
	require.NoError(t, err)
	require.Len(t, kept, 2)
	assert.Equal(t, "a", kept[0].URL)
	assert.Equal(t, "c", kept[1].URL)
}

func TestFilterAllSkipsEntryOnBackendFailureWithoutAbortingBatch(t *testing.T) {
	backend := &stubBackend{err: errors.New("boom")}
	f := New(backend, "model", 0.5)

	results := []core.SearchResult{
		{URL: "a", Similarity: 0.1},
		{URL: "b", Similarity: 0.9},
	}
	kept, err := f.FilterAll(context.Background(), "query", results)
	require.NoError(t, err)
	require.Len(t, kept, 1)
	assert.Equal(t, "b", kept[0].URL)
}

func TestIsAffirmative(t *testing.T) {
	assert.True(t, isAffirmative("yes"))
	assert.True(t, isAffirmative("  Yes.  "))
	assert.False(t, isAffirmative("no"))
	assert.False(t, isAffirmative(""))
}
