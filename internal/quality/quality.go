// Package quality implements the engine's relevance gate: results whose
// embedding similarity to the query falls below a configured threshold are
// escalated to an LLM yes/no relevance check rather than dropped outright,
// the way the teacher's digest evaluator escalates borderline summaries to
// a secondary heuristic pass (internal/quality/evaluator.go) instead of a
// single hard cutoff.
package quality

import (
	"context"
	"fmt"
	"strings"

	"ire/internal/core"
	"ire/internal/ireerr"
	"ire/internal/llm"
)

// Backend is the subset of the chat-completion client the filter needs.
type Backend interface {
	Complete(ctx context.Context, model string, messages []llm.ChatMessage, temperature float32) (string, error)
}

// Filter gates borderline search results through an LLM relevance check.
type Filter struct {
	backend   Backend
	model     string
	threshold float64
}

// New builds a Filter. Results at or above threshold are accepted without
// a model call; only borderline results pay the LLM round trip.
func New(backend Backend, model string, threshold float64) *Filter {
	return &Filter{backend: backend, model: model, threshold: threshold}
}

// Keep decides whether a result should survive filtering. query is the
// original research question or subtopic the result was fetched for.
func (f *Filter) Keep(ctx context.Context, query string, result core.SearchResult) (bool, error) {
	if result.Similarity >= f.threshold {
		return true, nil
	}

	prompt := fmt.Sprintf(
		"Research question: %s\n\nCandidate source snippet:\n%s\n\nDoes this source snippet contain information relevant to the research question? Answer with exactly one word: yes or no.",
		query, result.Snippet,
	)

	answer, err := f.backend.Complete(ctx, f.model, []llm.ChatMessage{
		{Role: "user", Content: prompt},
	}, 0)
	if err != nil {
		return false, ireerr.Model("relevance check failed", err)
	}

	return isAffirmative(answer), nil
}

// FilterAll applies Keep across a result set, preserving order.
func (f *Filter) FilterAll(ctx context.Context, query string, results []core.SearchResult) ([]core.SearchResult, error) {
	out := make([]core.SearchResult, 0, len(results))
	for _, r := range results {
		keep, err := f.Keep(ctx, query, r)
		if err != nil {
			// A relevance-check failure is not fatal to the batch; the
			// candidate is dropped and processing continues.
			continue
		}
		if keep {
			out = append(out, r)
		}
	}
	return out, nil
}

func isAffirmative(answer string) bool {
	trimmed := strings.ToLower(strings.TrimSpace(answer))
	return strings.HasPrefix(trimmed, "yes")
}
