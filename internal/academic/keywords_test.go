package academic

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractDetectsCompoundTerm(t *testing.T) {
	e := NewKeywordExtractor()
	out := e.Extract("What factors allow self-diagnosis of mental health issues in young adults?")
	assert.Contains(t, out, "self-diagnosis")
	assert.Contains(t, out, "mental-health")
}

func TestExtractFallsBackWhenNoContentWords(t *testing.T) {
	e := NewKeywordExtractor()
	out := e.Extract("is are was")
	assert.Empty(t, out)
}

func TestExtractCapsAtMaxKeywords(t *testing.T) {
	e := NewKeywordExtractor()
	out := e.Extract("alpha beta gamma delta epsilon zeta eta theta iota kappa")
	words := splitNonEmpty(out)
	assert.LessOrEqual(t, len(words), e.maxKeywords)
}

func TestExtractIsDeterministic(t *testing.T) {
	e := NewKeywordExtractor()
	q := "How does climate change affect agricultural productivity in coastal regions?"
	first := e.Extract(q)
	second := e.Extract(q)
	assert.Equal(t, first, second)
}

func TestFallbackPreservesOrderAndDedups(t *testing.T) {
	e := NewKeywordExtractor()
	out := e.fallback("ocean ocean current current pattern")
	assert.Equal(t, "ocean current pattern", out)
}

func splitNonEmpty(s string) []string {
	var out []string
	cur := ""
	for _, r := range s {
		if r == ' ' {
			if cur != "" {
				out = append(out, cur)
				cur = ""
			}
			continue
		}
		cur += string(r)
	}
	if cur != "" {
		out = append(out, cur)
	}
	return out
}
