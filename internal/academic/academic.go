// Package academic implements the engine's academic-database search
// providers (spec SPEC_FULL.md §C, grounded on original_source's
// academia.py): PubMed, HAL, arXiv, Crossref, and four French
// repositories scraped over HTML (Pépite, theses.fr, Cairn,
// OpenEdition). Each provider satisfies internal/search.Provider so
// the orchestrator can dispatch to them uniformly, wrapped in the
// phase's hard 30s-per-provider timeout (spec §5).
package academic

import (
	"context"
	"time"

	"ire/internal/search"
)

// ProviderTimeout is the hard per-provider timeout academic calls are
// wrapped in (spec §5).
const ProviderTimeout = 30 * time.Second

// WithTimeout wraps a provider's Search call with ProviderTimeout,
// returning an empty result set (not an error) on timeout so one slow
// academic source never blocks the rest of the phase budget.
func WithTimeout(ctx context.Context, p search.Provider, query string) ([]search.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, ProviderTimeout)
	defer cancel()

	type outcome struct {
		results []search.Result
		err     error
	}
	ch := make(chan outcome, 1)
	go func() {
		r, err := p.Search(ctx, query)
		ch <- outcome{results: r, err: err}
	}()

	select {
	case o := <-ch:
		return o.results, o.err
	case <-ctx.Done():
		return nil, nil
	}
}

// Enabled resolves the configured provider name list into Provider
// instances, ignoring unknown names.
func Enabled(names []string, httpTimeout time.Duration) []search.Provider {
	var out []search.Provider
	for _, name := range names {
		switch name {
		case "pubmed":
			out = append(out, NewPubMed(httpTimeout))
		case "hal":
			out = append(out, NewHAL(httpTimeout))
		case "arxiv":
			out = append(out, NewArxiv(httpTimeout))
		case "crossref":
			out = append(out, NewCrossref(httpTimeout))
		case "pepite":
			out = append(out, newKeywordProvider(newHTMLProvider("pepite", "https://pepite-depot.univ-lille.fr/search?q=", httpTimeout)))
		case "theses":
			out = append(out, newKeywordProvider(newHTMLProvider("theses", "https://www.theses.fr/?q=", httpTimeout)))
		case "cairn":
			out = append(out, newHTMLProvider("cairn", "https://www.cairn.info/resultats_recherche.php?searchTerm=", httpTimeout))
		case "openedition":
			out = append(out, newHTMLProvider("openedition", "https://search.openedition.org/index.php?q=", httpTimeout))
		}
	}
	return out
}
