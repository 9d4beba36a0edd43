package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ire/internal/core"
)

func TestFetchHTMLExtractsText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body><article><p>Hello world.</p></article></body></html>`))
	}))
	defer srv.Close()

	f := New(2*time.Second, 2000)
	result, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, core.ContentWeb, result.ContentKind)
	assert.Contains(t, result.Text, "Hello world.")
}

func TestFetchDetectsPDFByContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("not a real pdf"))
	}))
	defer srv.Close()

	f := New(2*time.Second, 2000)
	_, err := f.Fetch(context.Background(), srv.URL)
	require.Error(t, err) // malformed PDF bytes fail to parse, which is expected here
}

func TestFetchNon200NonBlockedNeverRetries(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := New(2*time.Second, 2000)
	_, err := f.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestFetchCachesResult(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_, _ = w.Write([]byte(`<p>cached content</p>`))
	}))
	defer srv.Close()

	f := New(2*time.Second, 2000)
	_, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	_, err = f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
}

func TestCapTextTruncates(t *testing.T) {
	text := "0123456789"
	assert.Equal(t, "01234", capText(text, 5))
	assert.Equal(t, text, capText(text, 0))
	assert.Equal(t, text, capText(text, 100))
}

func TestIsPDFBySuffix(t *testing.T) {
	assert.True(t, isPDF("", "https://example.com/paper.pdf"))
	assert.True(t, isPDF("application/pdf", "https://example.com/x"))
	assert.False(t, isPDF("text/html", "https://example.com/x"))
}

func TestDomainLimiterEnforcesSpacing(t *testing.T) {
	limiter := newDomainLimiter()
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, limiter.wait(ctx, "example.com"))
	require.NoError(t, limiter.wait(ctx, "example.com"))
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, minDomainInterval)
}

func TestDomainLimiterIndependentAcrossDomains(t *testing.T) {
	limiter := newDomainLimiter()
	ctx := context.Background()

	require.NoError(t, limiter.wait(ctx, "a.com"))
	start := time.Now()
	require.NoError(t, limiter.wait(ctx, "b.com"))
	assert.Less(t, time.Since(start), minDomainInterval)
}
