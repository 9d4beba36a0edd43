package feedback

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ire/internal/llm"
)

type stubBackend struct {
	reply string
	err   error
}

func (s *stubBackend) Complete(ctx context.Context, model string, messages []llm.ChatMessage, temperature float32) (string, error) {
	return s.reply, s.err
}

func TestProcessKeepCommandKeepsNamedTopics(t *testing.T) {
	topics := []string{"history", "economics", "culture"}
	dec, err := Process(context.Background(), nil, "", "/k history, culture", topics)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"history", "culture"}, dec.Kept)
	assert.ElementsMatch(t, []string{"economics"}, dec.Removed)
}

func TestProcessRemoveCommandRemovesNamedTopics(t *testing.T) {
	topics := []string{"history", "economics", "culture"}
	dec, err := Process(context.Background(), nil, "", "/r economics", topics)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"history", "culture"}, dec.Kept)
	assert.ElementsMatch(t, []string{"economics"}, dec.Removed)
}

func TestProcessReplacementCountIsCeilOfPoint8TimesRemoved(t *testing.T) {
	topics := []string{"a", "b", "c", "d", "e"}
	dec, err := Process(context.Background(), nil, "", "/r a,b,c", topics)
	require.NoError(t, err)
	require.Len(t, dec.Removed, 3)
	assert.Equal(t, 3, dec.ReplacementCount) // ceil(0.8*3) = ceil(2.4) = 3
}

func TestProcessNaturalLanguageUsesBackend(t *testing.T) {
	topics := []string{"history", "economics"}
	backend := &stubBackend{reply: "history: keep\neconomics: remove\n"}
	dec, err := Process(context.Background(), backend, "gpt", "drop the economics angle", topics)
	require.NoError(t, err)
	assert.Equal(t, []string{"history"}, dec.Kept)
	assert.Equal(t, []string{"economics"}, dec.Removed)
}

func TestProcessNaturalLanguageDefaultsToKeepOnMissingLine(t *testing.T) {
	topics := []string{"history", "economics"}
	backend := &stubBackend{reply: "history: remove\n"}
	dec, err := Process(context.Background(), backend, "gpt", "drop history", topics)
	require.NoError(t, err)
	assert.Equal(t, []string{"economics"}, dec.Kept)
	assert.Equal(t, []string{"history"}, dec.Removed)
}

func TestProcessNaturalLanguagePropagatesBackendError(t *testing.T) {
	topics := []string{"history"}
	backend := &stubBackend{err: errors.New("boom")}
	dec, err := Process(context.Background(), backend, "gpt", "anything", topics)
	require.Error(t, err)
	assert.Equal(t, topics, dec.Kept)
	assert.Empty(t, dec.Removed)
}

func TestMatchTopicExactAndSubstring(t *testing.T) {
	topics := []string{"history of science"}
	assert.Equal(t, "history of science", matchTopic("History Of Science", topics))
	assert.Equal(t, "history of science", matchTopic("science", topics))
	assert.Equal(t, "", matchTopic("unrelated", topics))
}

func TestComplementExcludesSubset(t *testing.T) {
	out := complement([]string{"a", "b", "c"}, []string{"b"})
	assert.Equal(t, []string{"a", "c"}, out)
}
