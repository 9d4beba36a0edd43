// Package tokencount counts tokens for strings the engine sends to a
// model, preferring the provider's own tokenizer endpoint and falling
// back to a local tiktoken-go estimate when that endpoint is unavailable
// (spec §4.B/§6), grounded on the tiktoken wrapper pattern in
// Tangerg-lynx/ai/core/tokenizer/tiktoken.go.
package tokencount

import (
	"context"
	"math"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	lru "github.com/hashicorp/golang-lru/v2"
)

// fallbackWordsPerToken is the multiplier applied to a whitespace word
// count when neither the provider endpoint nor the local tokenizer is
// available (spec §4.B).
const fallbackWordsPerToken = 1.3

const defaultCacheSize = 2048

// Backend is the subset of internal/llm.Client this package depends on.
type Backend interface {
	Tokenize(ctx context.Context, model, prompt string) (int, error)
}

// Counter counts tokens for arbitrary text, caching by (model, text).
type Counter struct {
	backend Backend
	model   string

	local    *tiktoken.Tiktoken
	localErr error
	once     sync.Once

	cache *lru.Cache[string, int]
}

// New creates a Counter against backend using model for the remote
// endpoint, lazily loading a cl100k_base local tokenizer for fallback
// estimation.
func New(backend Backend, model string) *Counter {
	cache, _ := lru.New[string, int](defaultCacheSize)
	return &Counter{backend: backend, model: model, cache: cache}
}

func (c *Counter) ensureLocal() {
	c.once.Do(func() {
		c.local, c.localErr = tiktoken.GetEncoding("cl100k_base")
	})
}

// Count returns the token count for text. It tries the provider's
// tokenizer endpoint first, falls back to a local tiktoken-go encoding,
// and as a last resort estimates ceil(words * 1.3).
func (c *Counter) Count(ctx context.Context, text string) int {
	if text == "" {
		return 0
	}
	if n, ok := c.cache.Get(text); ok {
		return n
	}

	if c.backend != nil {
		if n, err := c.backend.Tokenize(ctx, c.model, text); err == nil && n > 0 {
			c.cache.Add(text, n)
			return n
		}
	}

	c.ensureLocal()
	if c.localErr == nil && c.local != nil {
		n := len(c.local.Encode(text, nil, nil))
		c.cache.Add(text, n)
		return n
	}

	n := EstimateFromWords(text)
	c.cache.Add(text, n)
	return n
}

// EstimateFromWords returns ceil(wordCount * 1.3), the engine's
// last-resort token estimate when no tokenizer is reachable.
func EstimateFromWords(text string) int {
	words := countWords(text)
	return int(math.Ceil(float64(words) * fallbackWordsPerToken))
}

func countWords(text string) int {
	count := 0
	inWord := false
	for _, r := range text {
		isSpace := r == ' ' || r == '\t' || r == '\n' || r == '\r'
		if isSpace {
			inWord = false
			continue
		}
		if !inWord {
			count++
			inWord = true
		}
	}
	return count
}
