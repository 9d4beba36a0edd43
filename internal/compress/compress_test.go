package compress

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ire/internal/core"
)

type stubEmbedder struct{ dim int }

func (s stubEmbedder) Embed(ctx context.Context, text string) (core.Embedding, error) {
	vec := make(core.Embedding, s.dim)
	for i, r := range text {
		vec[i%s.dim] += float32(r % 7)
	}
	return vec.Normalized(), nil
}

type stubCounter struct{}

func (stubCounter) Count(ctx context.Context, text string) int {
	return len(strings.Fields(text))
}

func longText() string {
	var b strings.Builder
	for i := 0; i < 30; i++ {
		b.WriteString("Paragraph number ")
		b.WriteString(strings.Repeat("filler word ", 10))
		b.WriteString(".\n\n")
	}
	return b.String()
}

func TestCompressBelowTrivialThresholdIsUnchanged(t *testing.T) {
	c := New(stubEmbedder{dim: 8}, stubCounter{})
	text := "short text"
	out, err := c.Compress(context.Background(), Request{Text: text, QueryEmbedding: core.Embedding{1, 0}})
	require.NoError(t, err)
	assert.Equal(t, text, out)
}

func TestCompressReducesLength(t *testing.T) {
	c := New(stubEmbedder{dim: 8}, stubCounter{})
	text := longText()
	query, _ := stubEmbedder{dim: 8}.Embed(context.Background(), "query")

	out, err := c.Compress(context.Background(), Request{
		Text:           text,
		QueryEmbedding: query,
		Ratio:          0.3,
		ChunkLevel:     3,
	})
	require.NoError(t, err)
	assert.Less(t, len(out), len(text))
}

func TestCompressMonotonicByRatio(t *testing.T) {
	c := New(stubEmbedder{dim: 8}, stubCounter{})
	text := longText()
	query, _ := stubEmbedder{dim: 8}.Embed(context.Background(), "query")

	small, err := c.Compress(context.Background(), Request{Text: text, QueryEmbedding: query, Ratio: 0.2, ChunkLevel: 3})
	require.NoError(t, err)
	large, err := c.Compress(context.Background(), Request{Text: text, QueryEmbedding: query, Ratio: 0.6, ChunkLevel: 3})
	require.NoError(t, err)

	assert.LessOrEqual(t, len(strings.Fields(small)), len(strings.Fields(large)))
}

func TestLocalInfluenceFallbackUsed(t *testing.T) {
	c := New(stubEmbedder{dim: 8}, stubCounter{})
	embeddings := []core.Embedding{
		{1, 0, 0, 0, 0, 0, 0, 0},
		{0, 1, 0, 0, 0, 0, 0, 0},
		{0, 0, 1, 0, 0, 0, 0, 0},
	}
	scores := c.localInfluenceScores(embeddings, Request{QueryEmbedding: core.Embedding{1, 0, 0, 0, 0, 0, 0, 0}})
	assert.Len(t, scores, 3)
}

func TestCharRatioFallback(t *testing.T) {
	out := charRatioFallback("0123456789", 0.3)
	assert.Equal(t, "012", out)
}

func TestKeepCountAtLeastOne(t *testing.T) {
	assert.Equal(t, 1, keepCount(5, 0.01))
}
