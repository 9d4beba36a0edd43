package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ire/internal/core"
)

type stubStore struct {
	local  []core.SearchResult
	added  []core.SearchResult
}

func (s *stubStore) Search(ctx context.Context, query string, n int, minSimilarity float64) ([]core.SearchResult, error) {
	return s.local, nil
}

func (s *stubStore) Add(ctx context.Context, results []core.SearchResult, query, sessionID string) error {
	s.added = append(s.added, results...)
	return nil
}

type stubEmbedder struct{}

func (stubEmbedder) Embed(ctx context.Context, text string) (core.Embedding, error) {
	if text == "" {
		return nil, nil
	}
	return core.Embedding{1, 0, 0}.Normalized(), nil
}

func TestSearchUsesLocalWhenAboveMinSources(t *testing.T) {
	store := &stubStore{local: []core.SearchResult{
		{Title: "a", URL: "https://a.com", Snippet: "x"},
		{Title: "b", URL: "https://b.com", Snippet: "y"},
	}}
	o := New(store, stubEmbedder{})

	out, err := o.Search(context.Background(), "q", core.Embedding{1, 0, 0}, Options{MinLocalSources: 2, BaseResults: 5})
	require.NoError(t, err)
	assert.Len(t, out, 2)
	assert.Empty(t, store.added)
}

func TestSearchFallsBackToProvidersBelowMinSources(t *testing.T) {
	store := &stubStore{}
	provider := &MockProvider{ProviderName: "mock", Results: []Result{
		{Title: "a", URL: "https://a.com", Snippet: "x", Domain: "a.com"},
	}}
	o := New(store, stubEmbedder{}, provider)

	out, err := o.Search(context.Background(), "q", core.Embedding{1, 0, 0}, Options{MinLocalSources: 2, BaseResults: 5})
	require.NoError(t, err)
	assert.Len(t, out, 1)
	assert.Len(t, store.added, 1)
}

func TestSimilarityClampedTo099(t *testing.T) {
	o := New(&stubStore{}, stubEmbedder{})
	candidates := []core.SearchResult{{URL: "https://a.com", Snippet: "x", Domain: "a.com"}}
	opts := Options{PriorityDomains: []string{"a.com"}, DomainPriorityMultiplier: 10}
	ranked, err := o.rank(context.Background(), candidates, core.Embedding{1, 0, 0}, opts)
	require.NoError(t, err)
	require.Len(t, ranked, 1)
	assert.LessOrEqual(t, ranked[0].Similarity, 0.99)
}

func TestRepeatedURLPenaltyFloorsAtHalf(t *testing.T) {
	assert.Equal(t, 0.5, repeatedURLPenalty(10))
	assert.Equal(t, 1.0, repeatedURLPenalty(0))
}

func TestKeywordMultiplierCapped(t *testing.T) {
	m := keywordMultiplier("alpha beta gamma", []string{"alpha", "beta", "gamma"}, 1.05, 1.1)
	assert.LessOrEqual(t, m, 1.1)
}

func TestDedupesByURL(t *testing.T) {
	store := &stubStore{local: []core.SearchResult{
		{Title: "a", URL: "https://a.com", Snippet: "x"},
		{Title: "a dup", URL: "https://a.com", Snippet: "x"},
	}}
	o := New(store, stubEmbedder{})

	out, err := o.Search(context.Background(), "q", core.Embedding{1, 0, 0}, Options{MinLocalSources: 1, BaseResults: 5})
	require.NoError(t, err)
	assert.Len(t, out, 1)
}
