package knowledge

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ire/internal/core"
)

type stubEmbedder struct {
	vectors map[string]core.Embedding
	calls   int
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) (core.Embedding, error) {
	s.calls++
	if v, ok := s.vectors[text]; ok {
		return v, nil
	}
	return core.Embedding{0.1, 0.1, 0.1}, nil
}

func longContent(seed string) string {
	return strings.Repeat(seed+" ", 20)
}

func TestAddSkipsContentBelowMinLength(t *testing.T) {
	store, err := Open(t.TempDir(), "test", &stubEmbedder{})
	require.NoError(t, err)
	defer store.Close()

	err = store.Add(context.Background(), []core.SearchResult{
		{URL: "https://short.example", Title: "Short", Snippet: "too short"},
	}, "query", "session")
	require.NoError(t, err)

	found, err := store.Search(context.Background(), "query", 5, 0)
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestAddDedupesByURL(t *testing.T) {
	embedder := &stubEmbedder{}
	store, err := Open(t.TempDir(), "test", embedder)
	require.NoError(t, err)
	defer store.Close()

	result := core.SearchResult{URL: "https://dup.example", Title: "Dup", Snippet: longContent("dup content")}
	err = store.Add(context.Background(), []core.SearchResult{result}, "q1", "s1")
	require.NoError(t, err)
	err = store.Add(context.Background(), []core.SearchResult{result}, "q2", "s1")
	require.NoError(t, err)

	assert.Equal(t, 1, embedder.calls)
}

func TestSearchReturnsNearestByCosineDistance(t *testing.T) {
	embedder := &stubEmbedder{vectors: map[string]core.Embedding{
		"about apples":  {1, 0, 0},
		"about bananas": {0, 1, 0},
		"apples":        {1, 0, 0},
	}}
	store, err := Open(t.TempDir(), "test", embedder)
	require.NoError(t, err)
	defer store.Close()

	err = store.Add(context.Background(), []core.SearchResult{
		{URL: "https://apples.example", Title: "Apples", Snippet: longContent("about apples")},
		{URL: "https://bananas.example", Title: "Bananas", Snippet: longContent("about bananas")},
	}, "fruit", "s1")
	require.NoError(t, err)

	found, err := store.Search(context.Background(), "apples", 5, 0)
	require.NoError(t, err)
	require.NotEmpty(t, found)
	assert.Equal(t, "https://apples.example", found[0].URL)
}

func TestSearchFiltersByMinSimilarity(t *testing.T) {
	embedder := &stubEmbedder{vectors: map[string]core.Embedding{
		"topic a": {1, 0, 0},
		"topic b": {0, 1, 0},
		"probe":   {1, 0, 0},
	}}
	store, err := Open(t.TempDir(), "test", embedder)
	require.NoError(t, err)
	defer store.Close()

	err = store.Add(context.Background(), []core.SearchResult{
		{URL: "https://a.example", Title: "A", Snippet: longContent("topic a")},
		{URL: "https://b.example", Title: "B", Snippet: longContent("topic b")},
	}, "q", "s1")
	require.NoError(t, err)

	found, err := store.Search(context.Background(), "probe", 5, 0.9)
	require.NoError(t, err)
	for _, f := range found {
		assert.Equal(t, "https://a.example", f.URL)
	}
}

func TestSearchOnEmptyStoreReturnsNil(t *testing.T) {
	store, err := Open(t.TempDir(), "test", &stubEmbedder{})
	require.NoError(t, err)
	defer store.Close()

	found, err := store.Search(context.Background(), "anything", 5, 0)
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestCleanupRemovesOldEntries(t *testing.T) {
	store, err := Open(t.TempDir(), "test", &stubEmbedder{})
	require.NoError(t, err)
	defer store.Close()

	err = store.Add(context.Background(), []core.SearchResult{
		{URL: "https://old.example", Title: "Old", Snippet: longContent("old content")},
	}, "q", "s1")
	require.NoError(t, err)

	_, err = store.db.Exec(`UPDATE sources SET added_at = ? WHERE id = ?`, time.Now().AddDate(0, 0, -30), sourceID("https://old.example", "Old"))
	require.NoError(t, err)

	removed, err := store.Cleanup(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	found, err := store.Search(context.Background(), "old content", 5, 0)
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestReopenRebuildsIndexFromDisk(t *testing.T) {
	dir := t.TempDir()
	embedder := &stubEmbedder{vectors: map[string]core.Embedding{"persisted content": {1, 0, 0}, "persisted": {1, 0, 0}}}

	store, err := Open(dir, "kb", embedder)
	require.NoError(t, err)
	err = store.Add(context.Background(), []core.SearchResult{
		{URL: "https://persist.example", Title: "Persisted", Snippet: longContent("persisted content")},
	}, "q", "s1")
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := Open(dir, "kb", embedder)
	require.NoError(t, err)
	defer reopened.Close()

	found, err := reopened.Search(context.Background(), "persisted", 5, 0)
	require.NoError(t, err)
	require.NotEmpty(t, found)
	assert.Equal(t, "https://persist.example", found[0].URL)
}

func TestListCollectionsDiscoversKnowledgeDirs(t *testing.T) {
	base := t.TempDir()
	store, err := Open(base, "alpha", &stubEmbedder{})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store2, err := Open(base, "beta", &stubEmbedder{})
	require.NoError(t, err)
	require.NoError(t, store2.Close())

	names, err := ListCollections(base)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, names)
}

func TestListCollectionsOnMissingDirReturnsEmpty(t *testing.T) {
	names, err := ListCollections("/nonexistent/path/for/ire/tests")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestSourceIDStableAcrossCalls(t *testing.T) {
	assert.Equal(t, sourceID("https://x.example", "X"), sourceID("https://x.example", "X"))
	assert.NotEqual(t, sourceID("https://x.example", "X"), sourceID("https://y.example", "Y"))
}

func TestSerializeDeserializeEmbeddingRoundTrips(t *testing.T) {
	original := core.Embedding{0.25, -0.5, 1.0, 0.0}
	blob, err := serializeEmbedding(original)
	require.NoError(t, err)

	restored, err := deserializeEmbedding(blob)
	require.NoError(t, err)
	require.Len(t, restored, len(original))
	for i := range original {
		assert.InDelta(t, original[i], restored[i], 1e-6)
	}
}
