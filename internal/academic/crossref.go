package academic

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ire/internal/ireerr"
	"ire/internal/search"
)

// Crossref searches the Crossref works API (grounded on academia.py's
// search_crossref / parse_crossref_response).
type Crossref struct {
	client *http.Client
}

func NewCrossref(timeout time.Duration) *Crossref {
	return &Crossref{client: &http.Client{Timeout: timeout}}
}

func (c *Crossref) Name() string { return "crossref" }

type crossrefResponse struct {
	Message struct {
		Items []crossrefItem `json:"items"`
	} `json:"message"`
}

type crossrefItem struct {
	Title           []string `json:"title"`
	Abstract        string   `json:"abstract"`
	URL             string   `json:"URL"`
	DOI             string   `json:"DOI"`
	ContainerTitle  []string `json:"container-title"`
}

func (c *Crossref) Search(ctx context.Context, query string) ([]search.Result, error) {
	target := fmt.Sprintf("https://api.crossref.org/works?rows=5&query=%s&select=title,abstract,URL,container-title,DOI", url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, ireerr.Transport("build crossref request", err)
	}
	req.Header.Set("User-Agent", "research-engine (mailto:research@example.com)")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, ireerr.Transport("crossref query", err)
	}
	defer resp.Body.Close()

	var parsed crossrefResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, ireerr.Parse("decode crossref response", err)
	}

	out := make([]search.Result, 0, len(parsed.Message.Items))
	for _, item := range parsed.Message.Items {
		title := ""
		if len(item.Title) > 0 {
			title = item.Title[0]
		}
		resultURL := item.URL
		if resultURL == "" && item.DOI != "" {
			resultURL = "https://doi.org/" + item.DOI
		}
		if resultURL == "" {
			continue
		}
		journal := ""
		if len(item.ContainerTitle) > 0 {
			journal = item.ContainerTitle[0]
		}
		out = append(out, search.Result{
			Title:   title,
			URL:     resultURL,
			Snippet: strings.TrimSpace(item.Abstract),
			Domain:  journal,
		})
	}
	return out, nil
}
