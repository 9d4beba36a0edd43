package academic

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"ire/internal/ireerr"
	"ire/internal/search"
)

// HAL searches the French academic repository HAL (grounded on
// academia.py's search_hal / parse_hal_response).
type HAL struct {
	client *http.Client
}

func NewHAL(timeout time.Duration) *HAL {
	return &HAL{client: &http.Client{Timeout: timeout}}
}

func (h *HAL) Name() string { return "hal" }

type halResponse struct {
	Response struct {
		Docs []halDoc `json:"docs"`
	} `json:"response"`
}

type halDoc struct {
	TitleS        []string `json:"title_s"`
	AbstractS     []string `json:"abstract_s"`
	URIS          []string `json:"uri_s"`
	JournalTitleS []string `json:"journalTitle_s"`
}

func (h *HAL) Search(ctx context.Context, query string) ([]search.Result, error) {
	fields := "title_s,abstract_s,uri_s,journalTitle_s"
	target := fmt.Sprintf("https://api.archives-ouvertes.fr/search/?q=%s&rows=5&wt=json&fl=%s", url.QueryEscape(query), fields)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, ireerr.Transport("build hal request", err)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, ireerr.Transport("hal query", err)
	}
	defer resp.Body.Close()

	var parsed halResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, ireerr.Parse("decode hal response", err)
	}

	out := make([]search.Result, 0, len(parsed.Response.Docs))
	for _, doc := range parsed.Response.Docs {
		resultURL := first(doc.URIS)
		if resultURL == "" {
			continue
		}
		out = append(out, search.Result{
			Title:   first(doc.TitleS),
			URL:     resultURL,
			Snippet: first(doc.AbstractS),
			Domain:  "hal.science",
		})
	}
	return out, nil
}

func first(items []string) string {
	if len(items) == 0 {
		return ""
	}
	return items[0]
}
