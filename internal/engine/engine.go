// Package engine wires together every component package into a single
// research session, the way the teacher's command handlers construct a
// store, an LLM client, and a service object inline before running a
// command (cmd/handlers/research.go: handleTopicResearch).
package engine

import (
	"fmt"

	"ire/internal/academic"
	"ire/internal/citations"
	"ire/internal/compress"
	"ire/internal/config"
	"ire/internal/cycle"
	"ire/internal/embedding"
	"ire/internal/fetch"
	"ire/internal/knowledge"
	"ire/internal/llm"
	"ire/internal/quality"
	"ire/internal/search"
	"ire/internal/sourcetable"
	"ire/internal/synthesis"
	"ire/internal/tokencount"
)

// relevanceThreshold is the similarity floor below which a search result
// is escalated to an LLM relevance check rather than accepted outright
// (spec §4.M). Not exposed as a tuned constant in spec.md, so it follows
// the teacher CLI's own default quality threshold (cmd/handlers/root.go).
const relevanceThreshold = 0.6

// Runtime bundles every wired component a single research conversation
// needs: the cycle controller plus the knowledge store a caller must
// close when done.
type Runtime struct {
	Controller *cycle.Controller
	Knowledge  *knowledge.Store
}

// Close releases the knowledge store's database handle.
func (r *Runtime) Close() error {
	if r.Knowledge == nil {
		return nil
	}
	return r.Knowledge.Close()
}

// Build constructs every component package from cfg and wires a
// Controller around sources, the same source table the caller's
// cycle.Session registers fetched content into (per spec §4.E's
// per-conversation source registry) — the citation verifier's lookups
// must resolve against that exact table, not a disconnected copy.
// interactive controls whether Init pauses at AWAITING_FEEDBACK (chat)
// or runs straight through (research).
func Build(cfg *config.Config, sources *sourcetable.Table, interactive bool) (*Runtime, error) {
	timeout := config.ModelTimeout()
	llmClient := llm.NewClient(cfg.Model.BaseURL, timeout)
	embedder := embedding.New(llmClient, cfg.Model.EmbeddingModel)
	counter := tokencount.New(llmClient, cfg.Model.ResearchModel)
	fetcher := fetch.New(timeout, cfg.IRE.MaxResultTokens)
	compressor := compress.New(embedder, counter)

	kb, err := knowledge.Open(cfg.Knowledge.RootDir, cfg.Knowledge.DefaultName, embedder)
	if err != nil {
		return nil, fmt.Errorf("open knowledge store: %w", err)
	}

	providers := []search.Provider{search.NewHTTPProvider(cfg.Search.SearchURL, config.SearchTimeout())}
	providers = append(providers, academic.Enabled(cfg.Academic.Enabled, config.AcademicTimeout())...)

	orchestrator := search.New(kb, embedder, providers...)
	filter := quality.New(llmClient, cfg.Model.ResearchModel, relevanceThreshold)
	synthesizer := synthesis.New(llmClient, embedder, cfg.Model.SynthesisModel, cfg.IRE.MaxCycles)

	verifier := citations.New(llmClient, cfg.Model.SynthesisModel, sources, fetcher)

	controller := cycle.New(
		llmClient, embedder, counter, fetcher, compressor,
		orchestrator, filter, synthesizer, verifier,
		cfg.IRE, cfg.Model.ResearchModel, interactive,
	)

	return &Runtime{Controller: controller, Knowledge: kb}, nil
}
