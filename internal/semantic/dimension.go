// Package semantic holds the four pieces of per-conversation semantic
// state the cycle controller updates every iteration (spec §4.F-I): the
// dimension tracker, trajectory accumulator, preference direction
// vector engine, and the transformer that combines them into a single
// rotation matrix. Eigendecomposition and matrix algebra are done with
// gonum.org/v1/gonum/mat, the numerical library used across the example
// corpus's data-processing repos.
package semantic

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"ire/internal/core"
)

// DimensionTracker holds a fixed PCA basis over a conversation's outline
// embeddings plus a running per-dimension coverage accumulator.
type DimensionTracker struct {
	eigenvectors []core.Embedding // k vectors, each len == embedding dim
	variance     []float64        // explained variance ratio per eigenvector
	coverage     []float64        // raw accumulator, not yet capped/normalized
}

// NewDimensionTracker runs PCA over outline embeddings, keeping
// k = min(10, n) principal components, and initializes a zeroed
// coverage vector of length k (spec §4.F).
func NewDimensionTracker(embeddings []core.Embedding) *DimensionTracker {
	n := len(embeddings)
	if n == 0 {
		return &DimensionTracker{}
	}
	dim := len(embeddings[0])
	k := n
	if k > 10 {
		k = 10
	}

	data := mat.NewDense(n, dim, nil)
	for i, e := range embeddings {
		for j := 0; j < dim; j++ {
			data.Set(i, j, float64(e[j]))
		}
	}

	mean := make([]float64, dim)
	for j := 0; j < dim; j++ {
		var sum float64
		for i := 0; i < n; i++ {
			sum += data.At(i, j)
		}
		mean[j] = sum / float64(n)
	}
	centered := mat.NewDense(n, dim, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < dim; j++ {
			centered.Set(i, j, data.At(i, j)-mean[j])
		}
	}

	// Covariance = (1/(n-1)) * centeredᵀ * centered.
	covDim := dim
	covMat := mat.NewSymDense(covDim, nil)
	for a := 0; a < covDim; a++ {
		for b := a; b < covDim; b++ {
			var s float64
			for i := 0; i < n; i++ {
				s += centered.At(i, a) * centered.At(i, b)
			}
			denom := float64(n - 1)
			if denom < 1 {
				denom = 1
			}
			covMat.SetSym(a, b, s/denom)
		}
	}

	var eig mat.EigenSym
	ok := eig.Factorize(covMat, true)
	if !ok {
		return &DimensionTracker{coverage: make([]float64, 0)}
	}

	values := eig.Values(nil)
	var vectors mat.Dense
	eig.VectorsTo(&vectors)

	type component struct {
		value  float64
		vector []float64
	}
	components := make([]component, dim)
	for j := 0; j < dim; j++ {
		col := make([]float64, dim)
		for i := 0; i < dim; i++ {
			col[i] = vectors.At(i, j)
		}
		components[j] = component{value: values[j], vector: col}
	}
	sort.Slice(components, func(i, j int) bool { return components[i].value > components[j].value })

	var totalVariance float64
	for _, c := range components {
		if c.value > 0 {
			totalVariance += c.value
		}
	}
	if totalVariance <= 0 {
		totalVariance = 1
	}

	eigenvectors := make([]core.Embedding, 0, k)
	variance := make([]float64, 0, k)
	for i := 0; i < k && i < len(components); i++ {
		v := make(core.Embedding, dim)
		for j := 0; j < dim; j++ {
			v[j] = float32(components[i].vector[j])
		}
		eigenvectors = append(eigenvectors, v.Normalized())
		variance = append(variance, math.Max(components[i].value, 0)/totalVariance)
	}

	return &DimensionTracker{
		eigenvectors: eigenvectors,
		variance:     variance,
		coverage:     make([]float64, len(eigenvectors)),
	}
}

// Eigenvectors returns the tracker's PCA basis.
func (d *DimensionTracker) Eigenvectors() []core.Embedding { return d.eigenvectors }

// Variance returns each eigenvector's explained-variance ratio.
func (d *DimensionTracker) Variance() []float64 { return d.variance }

// Update projects a newly accepted chunk embedding onto the basis and
// accumulates coverage, weighted by a quality score in [0.5, 1.0]
// (spec §4.F). quality is clamped into range.
func (d *DimensionTracker) Update(chunkEmbedding core.Embedding, quality float64) {
	if quality < 0.5 {
		quality = 0.5
	}
	if quality > 1.0 {
		quality = 1.0
	}
	for i, e := range d.eigenvectors {
		proj := math.Abs(chunkEmbedding.Dot(e))
		d.coverage[i] += proj * quality * (1 - d.coverage[i]/2)
	}
}

// Coverage returns the normalized [0,1] coverage vector: each raw
// accumulator value capped at 3.0 and divided by 3. This specific
// cap-and-divide rule is preserved numerically from the source behavior
// without an independently derived justification.
func (d *DimensionTracker) Coverage() []float64 {
	out := make([]float64, len(d.coverage))
	for i, v := range d.coverage {
		if v > 3.0 {
			v = 3.0
		}
		out[i] = v / 3.0
	}
	return out
}

// Labels assigns each dimension a natural-language label by taking the
// top-3 vocabulary words by dot-product with that dimension's
// eigenvector (spec §4.F). Computed once per decomposition; callers
// should cache the result.
func (d *DimensionTracker) Labels(vocabulary map[string]core.Embedding) [][]string {
	words := make([]string, 0, len(vocabulary))
	for w := range vocabulary {
		words = append(words, w)
	}
	sort.Strings(words)

	labels := make([][]string, len(d.eigenvectors))
	for i, e := range d.eigenvectors {
		type scored struct {
			word  string
			score float64
		}
		scores := make([]scored, 0, len(words))
		for _, w := range words {
			scores = append(scores, scored{word: w, score: e.Dot(vocabulary[w])})
		}
		sort.Slice(scores, func(a, b int) bool { return scores[a].score > scores[b].score })
		n := 3
		if n > len(scores) {
			n = len(scores)
		}
		top := make([]string, n)
		for j := 0; j < n; j++ {
			top[j] = scores[j].word
		}
		labels[i] = top
	}
	return labels
}
