package academic

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ire/internal/ireerr"
	"ire/internal/search"
)

// Arxiv searches arXiv's Atom export API (grounded on academia.py's
// search_arxiv / parse_arxiv_xml).
type Arxiv struct {
	client *http.Client
}

func NewArxiv(timeout time.Duration) *Arxiv {
	return &Arxiv{client: &http.Client{Timeout: timeout}}
}

func (a *Arxiv) Name() string { return "arxiv" }

type atomFeed struct {
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	Title   string `xml:"title"`
	Summary string `xml:"summary"`
	ID      string `xml:"id"`
}

func (a *Arxiv) Search(ctx context.Context, query string) ([]search.Result, error) {
	target := fmt.Sprintf("http://export.arxiv.org/api/query?search_query=all:%s&start=0&max_results=5", url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, ireerr.Transport("build arxiv request", err)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, ireerr.Transport("arxiv query", err)
	}
	defer resp.Body.Close()

	var feed atomFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, ireerr.Parse("decode arxiv atom feed", err)
	}

	out := make([]search.Result, 0, len(feed.Entries))
	for _, e := range feed.Entries {
		out = append(out, search.Result{
			Title:   strings.TrimSpace(e.Title),
			URL:     strings.TrimSpace(e.ID),
			Snippet: strings.TrimSpace(e.Summary),
			Domain:  "arxiv.org",
		})
	}
	return out, nil
}
