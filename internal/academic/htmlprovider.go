package academic

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"ire/internal/ireerr"
	"ire/internal/search"
)

// htmlProvider scrapes a search-results page for academic repositories
// that expose no structured API: Pépite, theses.fr, Cairn, and
// OpenEdition (spec SPEC_FULL.md §C). It reuses the teacher's
// goquery result-extraction approach from internal/fetch, taking every
// anchor on the page (with an href and a title of at least 8
// characters) as a candidate result link, up to five per query.
type htmlProvider struct {
	name      string
	searchURL string
	client    *http.Client
}

func newHTMLProvider(name, searchURL string, timeout time.Duration) *htmlProvider {
	return &htmlProvider{
		name:      name,
		searchURL: searchURL,
		client:    &http.Client{Timeout: timeout},
	}
}

func (p *htmlProvider) Name() string { return p.name }

func (p *htmlProvider) Search(ctx context.Context, query string) ([]search.Result, error) {
	target := p.searchURL + url.QueryEscape(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, ireerr.Transport("build "+p.name+" request", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; research-engine/1.0)")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, ireerr.Transport(p.name+" query", err)
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, ireerr.Parse("parse "+p.name+" results page", err)
	}

	var out []search.Result
	doc.Find("a").Each(func(_ int, s *goquery.Selection) {
		if len(out) >= 5 {
			return
		}
		href, ok := s.Attr("href")
		if !ok || href == "" {
			return
		}
		title := strings.TrimSpace(s.Text())
		if title == "" || len(title) < 8 {
			return
		}
		resolved := resolveURL(p.searchURL, href)
		out = append(out, search.Result{
			Title:  title,
			URL:    resolved,
			Domain: domainOf(resolved),
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

func resolveURL(base, href string) string {
	baseURL, err := url.Parse(base)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return baseURL.ResolveReference(ref).String()
}
