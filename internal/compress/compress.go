// Package compress implements eigendecomposition-ranked chunk selection
// for shrinking source content toward a token budget while favoring
// chunks that are both locally coherent and relevant to the active
// query (spec §4.J). It falls back to a raw-similarity ranking when
// decomposition fails, and to plain character-ratio truncation as a
// last resort.
package compress

import (
	"context"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"ire/internal/chunk"
	"ire/internal/core"
)

// trivialChars is the content length below which compression is a
// no-op (spec §4.J).
const trivialChars = 200

// Embedder is the subset of internal/embedding.Client this package
// depends on.
type Embedder interface {
	Embed(ctx context.Context, text string) (core.Embedding, error)
}

// TokenCounter is the subset of internal/tokencount.Counter this
// package depends on.
type TokenCounter interface {
	Count(ctx context.Context, text string) int
}

// Request bundles the inputs to a single compression call.
type Request struct {
	Text              string
	QueryEmbedding    core.Embedding
	SummaryEmbedding  core.Embedding // optional, nil if absent
	PDV               core.Embedding // optional
	PDVImpact         float64
	Ratio             float64 // 0 means "use default 0.5"
	TokenCap          int     // 0 means "no cap"
	ChunkLevel        int
	FromPDF           bool
	LocalInfluenceRad int
}

// Compressor ranks and selects chunks from source content.
type Compressor struct {
	embedder Embedder
	counter  TokenCounter
}

// New creates a Compressor backed by embedder and counter.
func New(embedder Embedder, counter TokenCounter) *Compressor {
	return &Compressor{embedder: embedder, counter: counter}
}

// Compress reduces req.Text toward the requested ratio/token cap,
// returning the compressed text.
func (c *Compressor) Compress(ctx context.Context, req Request) (string, error) {
	if len(req.Text) <= trivialChars {
		return req.Text, nil
	}
	if req.TokenCap > 0 && c.counter.Count(ctx, req.Text) <= req.TokenCap {
		return req.Text, nil
	}

	ratio := req.Ratio
	if ratio <= 0 {
		ratio = 0.5
	}

	out, err := c.compressAtRatio(ctx, req, ratio)
	if err != nil {
		return charRatioFallback(req.Text, ratio), nil
	}

	if req.TokenCap > 0 {
		tokens := c.counter.Count(ctx, out)
		if tokens > req.TokenCap && tokens > 0 {
			nextRatio := float64(req.TokenCap) / float64(tokens) * ratio
			if nextRatio > 0 && nextRatio < ratio {
				return c.Compress(ctx, Request{
					Text:              req.Text,
					QueryEmbedding:    req.QueryEmbedding,
					SummaryEmbedding:  req.SummaryEmbedding,
					PDV:               req.PDV,
					PDVImpact:         req.PDVImpact,
					Ratio:             nextRatio,
					TokenCap:          req.TokenCap,
					ChunkLevel:        req.ChunkLevel,
					FromPDF:           req.FromPDF,
					LocalInfluenceRad: req.LocalInfluenceRad,
				})
			}
		}
	}

	return out, nil
}

func (c *Compressor) compressAtRatio(ctx context.Context, req Request, ratio float64) (string, error) {
	level := req.ChunkLevel
	if level == 0 {
		level = 3
	}
	chunks := chunk.Split(req.Text, level, chunk.Options{FromPDF: req.FromPDF})
	if len(chunks) == 0 {
		return req.Text, nil
	}

	embeddings := make([]core.Embedding, len(chunks))
	for i, ch := range chunks {
		e, err := c.embedder.Embed(ctx, ch)
		if err != nil {
			return "", err
		}
		embeddings[i] = e
	}

	scores, err := c.eigenScores(embeddings, req)
	if err != nil {
		scores = c.localInfluenceScores(embeddings, req)
	}

	keep := keepCount(len(chunks), ratio)
	order := rankIndices(scores)
	selected := make(map[int]struct{}, keep)
	for i := 0; i < keep && i < len(order); i++ {
		selected[order[i]] = struct{}{}
	}

	var kept []string
	for i, ch := range chunks {
		if _, ok := selected[i]; ok {
			kept = append(kept, ch)
		}
	}
	return chunk.Join(kept, level), nil
}

// eigenScores computes per-chunk scores via eigendecomposition of the
// centered chunk-embedding matrix, keeping components until cumulative
// explained variance reaches 0.8, bounded to [3, 10] components.
func (c *Compressor) eigenScores(embeddings []core.Embedding, req Request) ([]float64, error) {
	n := len(embeddings)
	if n == 0 || len(embeddings[0]) == 0 {
		return nil, errEmptyEmbeddings
	}
	dim := len(embeddings[0])

	mean := make([]float64, dim)
	for _, e := range embeddings {
		for j, v := range e {
			mean[j] += float64(v)
		}
	}
	for j := range mean {
		mean[j] /= float64(n)
	}

	centered := mat.NewDense(n, dim, nil)
	for i, e := range embeddings {
		for j, v := range e {
			centered.Set(i, j, float64(v)-mean[j])
		}
	}

	covDim := dim
	cov := mat.NewSymDense(covDim, nil)
	denom := float64(n - 1)
	if denom < 1 {
		denom = 1
	}
	for a := 0; a < covDim; a++ {
		for b := a; b < covDim; b++ {
			var s float64
			for i := 0; i < n; i++ {
				s += centered.At(i, a) * centered.At(i, b)
			}
			cov.SetSym(a, b, s/denom)
		}
	}

	var eig mat.EigenSym
	if !eig.Factorize(cov, true) {
		return nil, errDecompositionFailed
	}
	values := eig.Values(nil)
	var vectors mat.Dense
	eig.VectorsTo(&vectors)

	type comp struct {
		value float64
		vec   []float64
	}
	comps := make([]comp, dim)
	for j := 0; j < dim; j++ {
		v := make([]float64, dim)
		for i := 0; i < dim; i++ {
			v[i] = vectors.At(i, j)
		}
		comps[j] = comp{value: values[j], vec: v}
	}
	sort.Slice(comps, func(i, j int) bool { return comps[i].value > comps[j].value })

	var total float64
	for _, cm := range comps {
		if cm.value > 0 {
			total += cm.value
		}
	}
	if total <= 0 {
		return nil, errDecompositionFailed
	}

	k := 0
	cumulative := 0.0
	for k < len(comps) {
		cumulative += math.Max(comps[k].value, 0) / total
		k++
		if cumulative >= 0.8 && k >= 3 {
			break
		}
		if k >= 10 {
			break
		}
	}
	if k < 3 {
		k = minInt(3, len(comps))
	}

	projected := make([][]float64, n)
	for i := 0; i < n; i++ {
		proj := make([]float64, k)
		for c2 := 0; c2 < k; c2++ {
			var dot float64
			for j := 0; j < dim; j++ {
				dot += centered.At(i, j) * comps[c2].vec[j]
			}
			proj[c2] = dot
		}
		projected[i] = proj
	}

	scores := make([]float64, n)
	for i := range embeddings {
		coherence := projectedCoherence(projected, i)
		relevance := embeddings[i].CosineSimilarity(req.QueryEmbedding)
		score := 0.4*coherence + 0.6*relevance

		if req.PDV != nil && req.PDVImpact > 0.1 {
			shift := req.PDVImpact / 2
			alignment := embeddings[i].CosineSimilarity(req.PDV)
			score = score - shift*0.4 - shift*0.6 + alignment*math.Min(0.3, req.PDVImpact)
		}
		scores[i] = score
	}
	return scores, nil
}

func projectedCoherence(projected [][]float64, i int) float64 {
	if len(projected) < 2 {
		return 1.0
	}
	var sum float64
	count := 0
	for j := range projected {
		if j == i {
			continue
		}
		sum += cosine(projected[i], projected[j])
		count++
	}
	if count == 0 {
		return 1.0
	}
	return sum / float64(count)
}

func cosine(a, b []float64) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na <= 0 || nb <= 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// localInfluenceScores is the fallback ranking used when eigendecomposition
// fails: raw chunk-to-chunk similarity within a local neighborhood radius,
// combined with query relevance using the same weighting as the eigen path.
func (c *Compressor) localInfluenceScores(embeddings []core.Embedding, req Request) []float64 {
	radius := req.LocalInfluenceRad
	if radius <= 0 {
		radius = 2
	}
	n := len(embeddings)
	scores := make([]float64, n)
	for i := 0; i < n; i++ {
		var sum float64
		count := 0
		for d := -radius; d <= radius; d++ {
			j := i + d
			if d == 0 || j < 0 || j >= n {
				continue
			}
			sum += embeddings[i].CosineSimilarity(embeddings[j])
			count++
		}
		coherence := 1.0
		if count > 0 {
			coherence = sum / float64(count)
		}
		relevance := embeddings[i].CosineSimilarity(req.QueryEmbedding)
		scores[i] = 0.4*coherence + 0.6*relevance
	}
	return scores
}

func rankIndices(scores []float64) []int {
	idx := make([]int, len(scores))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return scores[idx[a]] > scores[idx[b]] })
	return idx
}

func keepCount(n int, ratio float64) int {
	k := int(math.Floor(float64(n) * ratio))
	if k < 1 {
		k = 1
	}
	return k
}

func charRatioFallback(text string, ratio float64) string {
	n := int(float64(len(text)) * ratio)
	if n <= 0 {
		n = 1
	}
	if n >= len(text) {
		return text
	}
	return text[:n]
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

type compressError string

func (e compressError) Error() string { return string(e) }

const (
	errEmptyEmbeddings     = compressError("no chunk embeddings to decompose")
	errDecompositionFailed = compressError("eigendecomposition failed")
)
