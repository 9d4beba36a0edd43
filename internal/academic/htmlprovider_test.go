package academic

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTMLProviderExtractsLinksAboveTitleLength(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>
			<a href="/thesis/1">A sufficiently long thesis title</a>
			<a href="/x">short</a>
		</body></html>`))
	}))
	defer server.Close()

	p := newHTMLProvider("fixture", server.URL+"/search?q=", time.Second)
	results, err := p.Search(context.Background(), "query")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "A sufficiently long thesis title", results[0].Title)
	assert.Contains(t, results[0].URL, "/thesis/1")
}

func TestHTMLProviderCapsAtFiveResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := ""
		for i := 0; i < 10; i++ {
			body += `<a href="/item">A sufficiently long result title here</a>`
		}
		w.Write([]byte(body))
	}))
	defer server.Close()

	p := newHTMLProvider("fixture", server.URL+"/search?q=", time.Second)
	results, err := p.Search(context.Background(), "query")
	require.NoError(t, err)
	assert.LessOrEqual(t, len(results), 5)
}

func TestDomainOfExtractsHostname(t *testing.T) {
	assert.Equal(t, "example.com", domainOf("https://example.com/path?q=1"))
	assert.Equal(t, "", domainOf("not a url\x7f"))
}

func TestResolveURLHandlesRelativePaths(t *testing.T) {
	resolved := resolveURL("https://example.com/search?q=", "/thesis/1")
	assert.Equal(t, "https://example.com/thesis/1", resolved)
}

func TestKeywordProviderDelegatesWithExtractedQuery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<a href="/result">A sufficiently long result title</a>`))
	}))
	defer server.Close()

	inner := newHTMLProvider("fixture", server.URL+"/search?q=", time.Second)
	wrapped := newKeywordProvider(inner)

	results, err := wrapped.Search(context.Background(), "What factors allow self-diagnosis of mental health issues?")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "fixture", wrapped.Name())
}
