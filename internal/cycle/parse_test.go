package cycle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLinesStripsMarkersAndCaps(t *testing.T) {
	reply := "1. first query\n2) second query\n- third query\n\nfourth query\nfifth"
	lines := parseLines(reply, 3)
	require.Len(t, lines, 3)
	assert.Equal(t, "first query", lines[0])
	assert.Equal(t, "second query", lines[1])
	assert.Equal(t, "third query", lines[2])
}

func TestDeterministicQueriesRespectsCount(t *testing.T) {
	qs := deterministicQueries("topic", 3)
	assert.Len(t, qs, 3)
	assert.Equal(t, "topic", qs[0])
}

func TestParseOutlineBuildsTopicsAndSubtopics(t *testing.T) {
	reply := "TOPIC: History\n  - origins\n  - key events\nTOPIC: Impact\n  - economic\n"
	outline := parseOutline(reply)
	require.Len(t, outline.Nodes, 2)
	assert.Equal(t, "History", outline.Nodes[0].Topic)
	assert.Equal(t, []string{"origins", "key events"}, outline.Nodes[0].Subtopics)
	assert.Equal(t, "Impact", outline.Nodes[1].Topic)
	assert.Equal(t, []string{"economic"}, outline.Nodes[1].Subtopics)
}

func TestDeterministicOutlineHasFallbackSubtopics(t *testing.T) {
	outline := deterministicOutline("what is X")
	require.Len(t, outline.Nodes, 1)
	assert.Equal(t, "what is X", outline.Nodes[0].Topic)
	assert.NotEmpty(t, outline.Nodes[0].Subtopics)
}

func TestParseClassificationDefaultsToPartial(t *testing.T) {
	active := []string{"topic a", "topic b"}
	result := parseClassification("", active)
	require.Len(t, result, 2)
	for _, topic := range active {
		assert.EqualValues(t, "partial", result[topic])
	}
}

func TestParseClassificationParsesStatuses(t *testing.T) {
	active := []string{"history of X", "economic impact"}
	reply := "history of X: completed\neconomic impact: irrelevant\n"
	result := parseClassification(reply, active)
	assert.EqualValues(t, "completed", result["history of X"])
	assert.EqualValues(t, "irrelevant", result["economic impact"])
}

func TestDeterministicReplacementTopicsCyclesThroughKept(t *testing.T) {
	out := deterministicReplacementTopics([]string{"a", "b"}, 3)
	require.Len(t, out, 3)
	assert.Equal(t, "a in depth", out[0])
	assert.Equal(t, "b counterarguments", out[1])
	assert.Equal(t, "a recent developments", out[2])
}

func TestDeterministicReplacementTopicsEmptyWithNoKept(t *testing.T) {
	assert.Nil(t, deterministicReplacementTopics(nil, 3))
}

func TestMatchTopicFindsPartialMatch(t *testing.T) {
	active := []string{"history of X"}
	assert.Equal(t, "history of X", matchTopic("the history of X topic", active))
	assert.Equal(t, "", matchTopic("completely unrelated", active))
}
