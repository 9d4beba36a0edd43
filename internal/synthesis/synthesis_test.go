package synthesis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ire/internal/core"
	"ire/internal/llm"
)

type stubBackend struct {
	reply string
	err   error
}

func (s *stubBackend) Complete(ctx context.Context, model string, messages []llm.ChatMessage, temperature float32) (string, error) {
	return s.reply, s.err
}

type stubEmbedder struct{}

func (stubEmbedder) Embed(ctx context.Context, text string) (core.Embedding, error) {
	return core.Embedding{1, 0, 0}, nil
}

func TestResultsPerSubtopicFloorsAtThree(t *testing.T) {
	e := New(nil, nil, "", 0)
	assert.Equal(t, 3, e.resultsPerSubtopic())
}

func TestResultsPerSubtopicScalesWithMaxCycles(t *testing.T) {
	e := New(nil, nil, "", 10)
	assert.Equal(t, 8, e.resultsPerSubtopic()) // ceil(0.5*10+3) = 8
}

func TestUsedLocalIDsParsesSingleAndCombined(t *testing.T) {
	ids := usedLocalIDs("claim one [1]. claim two [2,3]. unrelated text.")
	assert.True(t, ids[1])
	assert.True(t, ids[2])
	assert.True(t, ids[3])
	assert.False(t, ids[4])
}

func TestCitationsPreservedDetectsDroppedCitation(t *testing.T) {
	original := "fact a [1]. fact b [2]."
	assert.True(t, citationsPreserved(original, "fact b [2]. fact a [1]."))
	assert.False(t, citationsPreserved(original, "fact a. fact b [2]."))
}

func TestSmoothRejectsOutputMissingACitation(t *testing.T) {
	e := New(&stubBackend{reply: "smoothed but no citations at all"}, stubEmbedder{}, "model", 4)
	out, err := e.smooth(context.Background(), "topic", "fact [1].")
	require.NoError(t, err)
	assert.Equal(t, "fact [1].", out)
}

func TestSmoothAcceptsOutputPreservingCitations(t *testing.T) {
	e := New(&stubBackend{reply: "fact [1], restated smoothly."}, stubEmbedder{}, "model", 4)
	out, err := e.smooth(context.Background(), "topic", "fact [1].")
	require.NoError(t, err)
	assert.Equal(t, "fact [1], restated smoothly.", out)
}

func TestSynthesizeRelocalizesSharedURLToSameGlobalID(t *testing.T) {
	backend := &stubBackend{reply: "claim [1]."}
	e := New(backend, stubEmbedder{}, "model", 4)

	outline := core.Outline{Nodes: []core.OutlineNode{
		{Topic: "intro", Subtopics: []string{"background"}},
	}}
	results := []core.SearchResult{
		{Title: "Alpha", URL: "https://a.example", Snippet: "alpha content", Similarity: 0.9},
	}

	report, err := e.Synthesize(context.Background(), "question", outline, results, nil)
	require.NoError(t, err)
	require.Len(t, report.Bibliography, 1)
	assert.Equal(t, 1, report.Bibliography[0].GlobalID)
	assert.Equal(t, "https://a.example", report.Bibliography[0].URL)
	assert.Contains(t, report.Sections[0].Body, "[1]")
}

func TestSynthesizeDropsUnusedCitationFromBibliography(t *testing.T) {
	backend := &stubBackend{reply: "no citations used here"}
	e := New(backend, stubEmbedder{}, "model", 4)

	outline := core.Outline{Nodes: []core.OutlineNode{{Topic: "intro"}}}
	results := []core.SearchResult{
		{Title: "Alpha", URL: "https://a.example", Snippet: "alpha content"},
	}

	report, err := e.Synthesize(context.Background(), "question", outline, results, nil)
	require.NoError(t, err)
	assert.Empty(t, report.Bibliography)
}

func TestRelocalizeAssignsDistinctGlobalIDsAcrossSubtopics(t *testing.T) {
	sections := []Section{
		{
			Topic: "sec",
			Subtopics: []Subtopic{
				{Topic: "sub1", Body: "a [1].", Citations: []localCitation{{LocalID: 1, URL: "https://x.example", Title: "X"}}},
				{Topic: "sub2", Body: "b [1].", Citations: []localCitation{{LocalID: 1, URL: "https://y.example", Title: "Y"}}},
			},
		},
	}
	nextID := 1
	assigned := map[string]int{}
	assign := func(url string) int {
		if id, ok := assigned[url]; ok {
			return id
		}
		id := nextID
		assigned[url] = id
		nextID++
		return id
	}
	bibliography := relocalize(sections, assign)
	require.Len(t, bibliography, 2)
	assert.NotEqual(t, bibliography[0].URL, bibliography[1].URL)
	assert.Contains(t, sections[0].Subtopics[0].Body, "[1]")
	assert.Contains(t, sections[0].Subtopics[1].Body, "[2]")
}

func TestDeterministicSubtopicBodyWithNoCitations(t *testing.T) {
	body := deterministicSubtopicBody("topic", nil)
	assert.Contains(t, body, "No sourced findings")
}
