package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"ire/internal/ireerr"
)

// HTTPProvider issues GET {searchURL}{encoded query} and accepts either
// an HTML results page or a JSON payload (spec §6).
type HTTPProvider struct {
	searchURL string
	client    *http.Client
}

// NewHTTPProvider creates an HTTPProvider against the configured search
// endpoint base.
func NewHTTPProvider(searchURL string, timeout time.Duration) *HTTPProvider {
	return &HTTPProvider{
		searchURL: searchURL,
		client:    &http.Client{Timeout: timeout},
	}
}

func (p *HTTPProvider) Name() string { return "http-search" }

func (p *HTTPProvider) Search(ctx context.Context, query string) ([]Result, error) {
	target := p.searchURL + url.QueryEscape(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, ireerr.Transport("build search request", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, ireerr.Transport(fmt.Sprintf("GET %s", target), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, ireerr.Transport(fmt.Sprintf("search endpoint returned status %d", resp.StatusCode), nil)
	}

	contentType := resp.Header.Get("Content-Type")
	if strings.Contains(contentType, "application/json") {
		return parseJSONResults(resp.Body)
	}
	return parseHTMLResults(resp.Body)
}

type jsonResultsWrapper struct {
	Results []jsonResult `json:"results"`
}

type jsonResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

func parseJSONResults(body interface{ Read([]byte) (int, error) }) ([]Result, error) {
	decoder := json.NewDecoder(body)
	var raw json.RawMessage
	if err := decoder.Decode(&raw); err != nil {
		return nil, ireerr.Parse("decode search response", err)
	}

	var wrapped jsonResultsWrapper
	if err := json.Unmarshal(raw, &wrapped); err == nil && len(wrapped.Results) > 0 {
		return toResults(wrapped.Results), nil
	}

	var bare []jsonResult
	if err := json.Unmarshal(raw, &bare); err == nil {
		return toResults(bare), nil
	}

	return nil, ireerr.Parse("search response had neither results[] nor a bare array", nil)
}

func toResults(items []jsonResult) []Result {
	out := make([]Result, 0, len(items))
	for _, item := range items {
		out = append(out, Result{
			Title:   item.Title,
			URL:     item.URL,
			Snippet: item.Snippet,
			Domain:  domainOf(item.URL),
		})
	}
	return out
}

func parseHTMLResults(body interface{ Read([]byte) (int, error) }) ([]Result, error) {
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, ireerr.Parse("parse search HTML", err)
	}

	var out []Result
	doc.Find("article, .result, .web-result").Each(func(_ int, s *goquery.Selection) {
		link := s.Find("a").First()
		href, _ := link.Attr("href")
		if href == "" {
			return
		}
		out = append(out, Result{
			Title:   strings.TrimSpace(link.Text()),
			URL:     href,
			Snippet: strings.TrimSpace(s.Find("p, .snippet").First().Text()),
			Domain:  domainOf(href),
		})
	})
	return out, nil
}

func domainOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
