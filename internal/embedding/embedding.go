// Package embedding wraps the model client's Embed call with two LRU
// caches, grounded on the cached-embedder pattern in the example corpus
// (Aman-CERP-amanmcp's internal/embed/cached.go): one cache keyed on raw
// text, one keyed on (text, transform id) for embeddings that have been
// rotated into a cycle's semantic transform space (spec §4.A/§4.I).
package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"ire/internal/core"
	"ire/internal/ireerr"
)

const (
	// maxEmbedChars is the truncation point applied before hashing and
	// sending text to the embedding endpoint (spec §4.A).
	maxEmbedChars = 2000

	defaultRawCacheSize         = 4096
	defaultTransformedCacheSize = 4096
)

// Backend is the subset of internal/llm.Client that Client depends on.
type Backend interface {
	Embed(ctx context.Context, model, text string) ([]float32, error)
}

// Client produces unit-norm embeddings for arbitrary text, caching both
// raw and transform-rotated results.
type Client struct {
	backend Backend
	model   string

	raw         *lru.Cache[string, core.Embedding]
	transformed *lru.Cache[string, core.Embedding]
}

// New creates an embedding client against backend using model, with
// default-sized LRU caches.
func New(backend Backend, model string) *Client {
	raw, _ := lru.New[string, core.Embedding](defaultRawCacheSize)
	transformed, _ := lru.New[string, core.Embedding](defaultTransformedCacheSize)
	return &Client{
		backend:     backend,
		model:       model,
		raw:         raw,
		transformed: transformed,
	}
}

// prepare truncates text to the endpoint's input limit and replaces
// colons with " - ", matching the wire format the provider expects
// (spec §4.A).
func prepare(text string) string {
	if len(text) > maxEmbedChars {
		text = text[:maxEmbedChars]
	}
	return strings.ReplaceAll(text, ":", " - ")
}

func hashKey(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Embed returns a unit-norm embedding for text, served from cache when
// available. A provider failure yields a nil embedding and no error, so
// callers must check for a zero-length result (spec §4.A).
func (c *Client) Embed(ctx context.Context, text string) (core.Embedding, error) {
	prepared := prepare(text)
	key := hashKey(c.model, prepared)

	if vec, ok := c.raw.Get(key); ok {
		return vec, nil
	}

	raw, err := c.backend.Embed(ctx, c.model, prepared)
	if err != nil {
		return nil, ireerr.Model("embed text", err)
	}
	if len(raw) == 0 {
		return nil, nil
	}

	vec := core.Embedding(raw).Normalized()
	if vec == nil {
		return nil, nil
	}
	c.raw.Add(key, vec)
	return vec, nil
}

// TransformFunc rotates a raw embedding into a cycle's semantic transform
// space (spec §4.I). It must return a vector of the same dimension.
type TransformFunc func(core.Embedding) core.Embedding

// EmbedTransformed returns text's embedding after applying transform,
// caching the rotated result under (text, transformID) so repeated
// lookups against the same cycle's transform skip both the network call
// and the matrix multiply.
func (c *Client) EmbedTransformed(ctx context.Context, text, transformID string, transform TransformFunc) (core.Embedding, error) {
	prepared := prepare(text)
	tKey := hashKey(c.model, prepared, transformID)

	if vec, ok := c.transformed.Get(tKey); ok {
		return vec, nil
	}

	base, err := c.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(base) == 0 {
		return nil, nil
	}

	rotated := transform(base).Normalized()
	if rotated == nil {
		return nil, nil
	}
	c.transformed.Add(tKey, rotated)
	return rotated, nil
}

// BatchEmbed embeds each text independently, returning a parallel slice
// of embeddings. A per-item failure leaves that slot nil rather than
// aborting the batch.
func (c *Client) BatchEmbed(ctx context.Context, texts []string) ([]core.Embedding, error) {
	out := make([]core.Embedding, len(texts))
	for i, t := range texts {
		vec, err := c.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}
