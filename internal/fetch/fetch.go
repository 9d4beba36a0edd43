// Package fetch retrieves source content from the web with polite,
// per-domain rate limiting and an archive.org fallback on block
// responses (spec §4.D), grounded on the teacher's goquery-based HTML
// extraction (internal/fetch/fetch.go) and extended with a
// ledongthuc/pdf extraction path for PDF sources.
package fetch

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"ire/internal/core"
	"ire/internal/ireerr"
)

const (
	minDomainInterval = 2 * time.Second
	jitterFloor       = 100 * time.Millisecond
	jitterCeil        = 1000 * time.Millisecond

	archiveLookupFmt = "https://web.archive.org/web/2/%s"

	defaultCacheEntries   = 512
	approxCharsPerToken   = 4
)

// Result is the outcome of a successful fetch.
type Result struct {
	Text        string
	ContentKind core.ContentKind
}

// Fetcher performs rate-limited HTTP GETs, dispatching to an HTML or PDF
// extractor based on content kind, with an archive.org fallback when a
// domain blocks the request.
type Fetcher struct {
	client  *http.Client
	limiter *domainLimiter
	cache   *lru.Cache[string, Result]

	maxCachedChars int
}

// New creates a Fetcher with a shared cookie jar and the given request
// timeout. maxResultTokens bounds cached content to 3x that many tokens
// (approximated at 4 characters per token), per spec §4.D.
func New(timeout time.Duration, maxResultTokens int) *Fetcher {
	jar, _ := cookiejar.New(nil)
	cache, _ := lru.New[string, Result](defaultCacheEntries)
	return &Fetcher{
		client: &http.Client{
			Timeout: timeout,
			Jar:     jar,
		},
		limiter:        newDomainLimiter(),
		cache:          cache,
		maxCachedChars: 3 * maxResultTokens * approxCharsPerToken,
	}
}

// Fetch retrieves and extracts the content at rawURL, respecting the
// per-domain rate limit and falling back to archive.org on a 403 or 271
// response. Non-200 responses outside that pair are never retried.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (Result, error) {
	if cached, ok := f.cache.Get(rawURL); ok {
		return cached, nil
	}

	domain, err := domainOf(rawURL)
	if err != nil {
		return Result{}, ireerr.Parse("parse fetch URL", err)
	}
	if err := f.limiter.wait(ctx, domain); err != nil {
		return Result{}, ireerr.Transport("rate limit wait", err)
	}

	result, err := f.fetchOnce(ctx, rawURL)
	if err != nil {
		if isBlocked(err) {
			archived, archErr := f.fetchOnce(ctx, fmt.Sprintf(archiveLookupFmt, rawURL))
			if archErr != nil {
				return Result{}, ireerr.Transport(fmt.Sprintf("fetch %s blocked and archive fallback failed", rawURL), archErr)
			}
			result = archived
			result.ContentKind = core.ContentArchived
		} else {
			return Result{}, err
		}
	}

	result.Text = capText(result.Text, f.maxCachedChars)
	f.cache.Add(rawURL, result)
	return result, nil
}

type blockedError struct{ status int }

func (b blockedError) Error() string { return fmt.Sprintf("blocked with status %d", b.status) }

func isBlocked(err error) bool {
	var b blockedError
	ire, ok := err.(*ireerr.Error)
	if !ok || ire.Cause == nil {
		return false
	}
	if bb, ok := ire.Cause.(blockedError); ok {
		b = bb
		return b.status == http.StatusForbidden || b.status == 271
	}
	return false
}

func (f *Fetcher) fetchOnce(ctx context.Context, target string) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Result{}, ireerr.Transport("build fetch request", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; research-engine/1.0)")

	resp, err := f.client.Do(req)
	if err != nil {
		return Result{}, ireerr.Transport(fmt.Sprintf("GET %s", target), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == 271 {
		return Result{}, ireerr.Transport("blocked", blockedError{status: resp.StatusCode})
	}
	if resp.StatusCode != http.StatusOK {
		return Result{}, ireerr.Transport(fmt.Sprintf("%s returned status %d", target, resp.StatusCode), nil)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, ireerr.Transport("read response body", err)
	}

	if isPDF(resp.Header.Get("Content-Type"), target) {
		text, err := extractPDF(body)
		if err != nil {
			return Result{}, ireerr.Parse("extract pdf", err)
		}
		return Result{Text: text, ContentKind: core.ContentPDF}, nil
	}

	text := extractHTML(string(body))
	return Result{Text: text, ContentKind: core.ContentWeb}, nil
}

func isPDF(contentType, target string) bool {
	if strings.Contains(contentType, "application/pdf") {
		return true
	}
	u, err := url.Parse(target)
	if err != nil {
		return strings.HasSuffix(strings.ToLower(target), ".pdf")
	}
	return strings.HasSuffix(strings.ToLower(u.Path), ".pdf")
}

func capText(text string, maxChars int) string {
	if maxChars <= 0 || len(text) <= maxChars {
		return text
	}
	return text[:maxChars]
}

func domainOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	return u.Hostname(), nil
}

// domainLimiter enforces a minimum spacing of minDomainInterval between
// requests to the same domain using a per-domain token-bucket rate
// limiter (burst 1, refill every minDomainInterval), plus uniform
// jitter in [0.1s, 1.0s] layered on top of each wait so requests don't
// all land on the same tick.
type domainLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newDomainLimiter() *domainLimiter {
	return &domainLimiter{limiters: map[string]*rate.Limiter{}}
}

func (d *domainLimiter) limiterFor(domain string) *rate.Limiter {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.limiters[domain]
	if !ok {
		l = rate.NewLimiter(rate.Every(minDomainInterval), 1)
		d.limiters[domain] = l
	}
	return l
}

func (d *domainLimiter) wait(ctx context.Context, domain string) error {
	if err := d.limiterFor(domain).Wait(ctx); err != nil {
		return err
	}

	jitter := jitterFloor + time.Duration(rand.Float64()*float64(jitterCeil-jitterFloor))
	timer := time.NewTimer(jitter)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}
	return nil
}

func extractHTML(htmlContent string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return ""
	}
	doc.Find("script, style, nav, footer, header, aside, form, iframe, noscript").Remove()

	var b strings.Builder
	doc.Find("article, main, p, h1, h2, h3, h4, li, blockquote").Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if text == "" {
			return
		}
		b.WriteString(text)
		b.WriteString("\n\n")
	})

	if b.Len() == 0 {
		return strings.TrimSpace(doc.Find("body").Text())
	}
	return strings.TrimSpace(b.String())
}
