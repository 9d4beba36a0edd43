// Package search dispatches research queries to the engine's knowledge
// store and web search providers, then re-ranks and merges their
// results into a single ordered candidate list (spec §4.L, §6).
package search

import "context"

// Provider is a source of web search results: the host-injected and
// HTTP providers and the academic providers implement this. The
// knowledge store is consulted separately through KnowledgeStore.
type Provider interface {
	Search(ctx context.Context, query string) ([]Result, error)
	Name() string
}

// Result is a single candidate returned by a Provider before
// similarity re-ranking.
type Result struct {
	Title   string
	URL     string
	Snippet string
	Domain  string
}
