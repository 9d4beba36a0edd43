package semantic

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"ire/internal/core"
)

// TransformerConfig holds the tunable constants governing how fast PDV
// and gap-exploration weights fade out over a conversation's cycles
// (spec §4.I), mirrored from internal/config's IRE section.
type TransformerConfig struct {
	PDVFadeFraction      float64
	GapFadeFraction      float64
	TrajectoryMomentum   float64
	GapExplorationWeight float64
	WeightCap            float64
}

// Transformer applies a d×d rotation built from the conversation's
// current semantic state: the PCA basis, the preference direction
// vector, the trajectory, and an exploration "gap" vector.
type Transformer struct {
	matrix *mat.Dense
	dim    int
}

// BuildTransformer assembles the transformation matrix for the given
// cycle. trajectory and gap may be nil; pdv may be nil if no feedback
// round has occurred yet.
func BuildTransformer(
	dim int,
	eigenvectors []core.Embedding,
	variance []float64,
	pdv core.Embedding,
	pdvStrength, pdvImpact float64,
	trajectory core.Embedding,
	gap core.Embedding,
	cycleIndex, maxCycles int,
	cfg TransformerConfig,
) *Transformer {
	m := mat.NewDense(dim, dim, nil)
	for i := 0; i < dim; i++ {
		m.Set(i, i, 1.0)
	}

	for i, e := range eigenvectors {
		if i >= len(variance) {
			break
		}
		addOuterProduct(m, e, variance[i]*2)
	}

	pdvWeight := 0.0
	if pdv != nil {
		pdvWeight = fade(pdvStrength*pdvImpact, cycleIndex, maxCycles, cfg.PDVFadeFraction)
	}
	trajWeight := 0.0
	if trajectory != nil {
		trajWeight = cfg.TrajectoryMomentum
	}
	gapWeight := 0.0
	if gap != nil {
		gapWeight = fade(cfg.GapExplorationWeight, cycleIndex, maxCycles, cfg.GapFadeFraction)
	}

	cap := cfg.WeightCap
	if cap <= 0 {
		cap = 0.8
	}
	if sum := pdvWeight + trajWeight + gapWeight; sum > cap {
		scale := cap / sum
		pdvWeight *= scale
		trajWeight *= scale
		gapWeight *= scale
	}

	if pdv != nil && pdvWeight > 0 {
		addOuterProduct(m, pdv, pdvWeight)
	}
	if trajectory != nil && trajWeight > 0 {
		addOuterProduct(m, trajectory, trajWeight)
	}
	if gap != nil && gapWeight > 0 {
		addOuterProduct(m, gap, gapWeight)
	}

	return &Transformer{matrix: m, dim: dim}
}

func addOuterProduct(m *mat.Dense, v core.Embedding, weight float64) {
	dim, _ := m.Dims()
	for i := 0; i < dim && i < len(v); i++ {
		for j := 0; j < dim && j < len(v); j++ {
			m.Set(i, j, m.At(i, j)+weight*float64(v[i])*float64(v[j]))
		}
	}
}

// Fade linearly reduces weight to zero once cycleIndex passes
// fadeFraction*maxCycles, reaching zero at the final cycle. Exported so
// internal/topics can apply the same adaptive-weight schedule described
// in spec §4.I to its own factor weights (spec §4.N).
func Fade(weight float64, cycleIndex, maxCycles int, fadeFraction float64) float64 {
	return fade(weight, cycleIndex, maxCycles, fadeFraction)
}

// fade linearly reduces weight to zero once cycleIndex passes
// fadeFraction*maxCycles, reaching zero at the final cycle.
func fade(weight float64, cycleIndex, maxCycles int, fadeFraction float64) float64 {
	if maxCycles <= 0 {
		return weight
	}
	fadeStart := fadeFraction * float64(maxCycles)
	if float64(cycleIndex) <= fadeStart {
		return weight
	}
	remaining := float64(maxCycles) - fadeStart
	if remaining <= 0 {
		return 0
	}
	progress := (float64(cycleIndex) - fadeStart) / remaining
	if progress >= 1 {
		return 0
	}
	return weight * (1 - progress)
}

// Apply rotates v by the transform and renormalizes to unit length. If
// the result is degenerate (NaN, Inf, or near-zero norm), v is returned
// unchanged.
func (t *Transformer) Apply(v core.Embedding) core.Embedding {
	if len(v) != t.dim {
		return v
	}
	vec := mat.NewVecDense(t.dim, nil)
	for i, x := range v {
		vec.SetVec(i, float64(x))
	}
	var out mat.VecDense
	out.MulVec(t.matrix.T(), vec)

	result := make(core.Embedding, t.dim)
	for i := 0; i < t.dim; i++ {
		result[i] = float32(out.AtVec(i))
	}

	for _, x := range result {
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return v
		}
	}
	normalized := result.Normalized()
	if normalized == nil {
		return v
	}
	return normalized
}
