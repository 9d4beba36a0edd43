package search

import (
	"context"
	"math"
	"sort"
	"strings"

	"ire/internal/core"
)

// Embedder is the subset of internal/embedding.Client the orchestrator
// depends on for snippet re-ranking.
type Embedder interface {
	Embed(ctx context.Context, text string) (core.Embedding, error)
}

// KnowledgeStore is the subset of internal/knowledge.Store the
// orchestrator consults before falling back to web providers.
type KnowledgeStore interface {
	Search(ctx context.Context, query string, n int, minSimilarity float64) ([]core.SearchResult, error)
	Add(ctx context.Context, results []core.SearchResult, query, sessionID string) error
}

// Options tunes the orchestrator's ranking multipliers, mirroring
// internal/config's IRE section.
type Options struct {
	MinLocalSources           int
	PriorityDomains           []string
	DomainPriorityMultiplier  float64
	KeywordMultiplierPerMatch float64
	MaxKeywordMultiplier      float64
	Keywords                  []string
	BaseResults               int
	SessionID                 string
	TimesSelected             map[string]int // url -> times previously selected
}

// Orchestrator dispatches a query to the knowledge store first, then to
// web providers, and returns a single similarity-ranked result list
// (spec §4.L).
type Orchestrator struct {
	store     KnowledgeStore
	providers []Provider
	embedder  Embedder
}

// New creates an Orchestrator backed by a knowledge store and a set of
// web search providers. Every provider is queried in order and their
// results are merged; a provider that returns an error is skipped.
func New(store KnowledgeStore, embedder Embedder, providers ...Provider) *Orchestrator {
	return &Orchestrator{store: store, embedder: embedder, providers: providers}
}

// Search runs the full local-first, re-ranked search for query.
// queryEmbedding should already reflect the current cycle's semantic
// transform, if any.
func (o *Orchestrator) Search(ctx context.Context, query string, queryEmbedding core.Embedding, opts Options) ([]core.SearchResult, error) {
	local, err := o.store.Search(ctx, query, opts.BaseResults, 0)
	if err != nil {
		return nil, err
	}

	var candidates []core.SearchResult
	if len(local) >= opts.MinLocalSources {
		candidates = local
	} else {
		web, err := o.searchProviders(ctx, query)
		if err != nil {
			return nil, err
		}
		if len(web) > 0 {
			_ = o.store.Add(ctx, web, query, opts.SessionID)
		}
		candidates = append(candidates, local...)
		candidates = append(candidates, web...)
	}

	ranked, err := o.rank(ctx, candidates, queryEmbedding, opts)
	if err != nil {
		return nil, err
	}

	n := opts.BaseResults + additionalFromRepeats(opts.TimesSelected)
	if n <= 0 || n > len(ranked) {
		n = len(ranked)
	}
	return ranked[:n], nil
}

// additionalFromRepeats is the "additional_based_on_repeats" term of
// spec §4.L's result count: the total number of prior selections across
// every URL seen so far this session, on the theory that a session
// revisiting sources heavily needs a wider result page to keep finding
// fresh candidates rather than cycling the same few repeatedly.
func additionalFromRepeats(timesSelected map[string]int) int {
	total := 0
	for _, n := range timesSelected {
		total += n
	}
	return total
}

func (o *Orchestrator) searchProviders(ctx context.Context, query string) ([]core.SearchResult, error) {
	var out []core.SearchResult
	for _, p := range o.providers {
		results, err := p.Search(ctx, query)
		if err != nil {
			continue
		}
		for _, r := range results {
			out = append(out, core.SearchResult{
				Title:   r.Title,
				URL:     r.URL,
				Snippet: r.Snippet,
				Domain:  r.Domain,
			})
		}
	}
	return out, nil
}

func (o *Orchestrator) rank(ctx context.Context, candidates []core.SearchResult, queryEmbedding core.Embedding, opts Options) ([]core.SearchResult, error) {
	seen := map[string]bool{}
	var unique []core.SearchResult
	for _, c := range candidates {
		if seen[c.URL] {
			continue
		}
		seen[c.URL] = true
		unique = append(unique, c)
	}

	for i := range unique {
		sim, err := o.similarity(ctx, unique[i].Snippet, queryEmbedding)
		if err != nil {
			return nil, err
		}
		sim *= domainMultiplier(unique[i].Domain, opts.PriorityDomains, opts.DomainPriorityMultiplier)
		sim *= keywordMultiplier(unique[i].Snippet, opts.Keywords, opts.KeywordMultiplierPerMatch, opts.MaxKeywordMultiplier)
		sim *= repeatedURLPenalty(opts.TimesSelected[unique[i].URL])
		if sim > 0.99 {
			sim = 0.99
		}
		unique[i].Similarity = sim
	}

	sort.Slice(unique, func(a, b int) bool { return unique[a].Similarity > unique[b].Similarity })
	return unique, nil
}

func (o *Orchestrator) similarity(ctx context.Context, snippet string, queryEmbedding core.Embedding) (float64, error) {
	if snippet == "" || len(queryEmbedding) == 0 {
		return 0, nil
	}
	e, err := o.embedder.Embed(ctx, snippet)
	if err != nil {
		return 0, err
	}
	if len(e) == 0 {
		return 0, nil
	}
	return e.CosineSimilarity(queryEmbedding), nil
}

func domainMultiplier(domain string, priorities []string, multiplier float64) float64 {
	if multiplier <= 0 {
		multiplier = 1.0
	}
	for _, p := range priorities {
		if p != "" && strings.Contains(domain, p) {
			return multiplier
		}
	}
	return 1.0
}

func keywordMultiplier(text string, keywords []string, perMatch, max float64) float64 {
	if perMatch <= 0 {
		perMatch = 1.0
	}
	lower := strings.ToLower(text)
	matches := 0
	for _, kw := range keywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			matches++
		}
	}
	m := math.Pow(perMatch, float64(matches))
	if max > 0 && m > max {
		m = max
	}
	return m
}

func repeatedURLPenalty(timesSelected int) float64 {
	penalty := 1.0 - 0.1*float64(timesSelected)
	if penalty < 0.5 {
		return 0.5
	}
	return penalty
}
