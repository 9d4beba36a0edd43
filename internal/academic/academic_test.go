package academic

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ire/internal/search"
)

type slowProvider struct {
	delay time.Duration
}

func (s slowProvider) Name() string { return "slow" }

func (s slowProvider) Search(ctx context.Context, query string) ([]search.Result, error) {
	select {
	case <-time.After(s.delay):
		return []search.Result{{Title: "done"}}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type failingProvider struct{}

func (failingProvider) Name() string { return "failing" }

func (failingProvider) Search(ctx context.Context, query string) ([]search.Result, error) {
	return nil, errors.New("boom")
}

func TestWithTimeoutReturnsResultsWithinBudget(t *testing.T) {
	p := slowProvider{delay: 10 * time.Millisecond}
	results, err := withTimeoutFor(p, 100*time.Millisecond)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestWithTimeoutExpiresWithoutError(t *testing.T) {
	p := slowProvider{delay: 200 * time.Millisecond}
	results, err := withTimeoutFor(p, 20*time.Millisecond)
	assert.NoError(t, err)
	assert.Nil(t, results)
}

func TestWithTimeoutPropagatesProviderError(t *testing.T) {
	results, err := withTimeoutFor(failingProvider{}, 100*time.Millisecond)
	assert.Error(t, err)
	assert.Nil(t, results)
}

// withTimeoutFor is a test helper mirroring WithTimeout but with a
// caller-supplied budget instead of the fixed ProviderTimeout.
func withTimeoutFor(p search.Provider, budget time.Duration) ([]search.Result, error) {
	ctx, cancel := context.WithTimeout(context.Background(), budget)
	defer cancel()
	return WithTimeout(ctx, p, "query")
}

func TestEnabledResolvesKnownNames(t *testing.T) {
	providers := Enabled([]string{"pubmed", "arxiv", "unknown-provider", "hal"}, time.Second)
	require.Len(t, providers, 3)
	names := map[string]bool{}
	for _, p := range providers {
		names[p.Name()] = true
	}
	assert.True(t, names["pubmed"])
	assert.True(t, names["arxiv"])
	assert.True(t, names["hal"])
}

func TestEnabledWrapsPepiteAndThesesWithKeywordExtraction(t *testing.T) {
	providers := Enabled([]string{"pepite", "theses"}, time.Second)
	require.Len(t, providers, 2)
	assert.Equal(t, "pepite", providers[0].Name())
	assert.Equal(t, "theses", providers[1].Name())
}

func TestEnabledEmptyOnNoMatches(t *testing.T) {
	providers := Enabled([]string{"not-a-provider"}, time.Second)
	assert.Empty(t, providers)
}
