package semantic

import "ire/internal/core"

// PDVResult is the output of computing a Preference Direction Vector
// over a round of user feedback (spec §4.H).
type PDVResult struct {
	PDV      core.Embedding // nil if either input set is empty
	Strength float64
	Impact   float64
}

// ComputePDV derives the preference direction vector from the kept and
// removed topic embeddings, given the total number of outline items the
// feedback round was drawn from. If either set is empty, PDV is nil and
// impact is 0.
func ComputePDV(kept, removed []core.Embedding, totalTopics int) PDVResult {
	if len(kept) == 0 || len(removed) == 0 {
		return PDVResult{}
	}

	dim := len(kept[0])
	muK := centroid(kept, dim)
	muR := centroid(removed, dim)
	if muK == nil || muR == nil {
		return PDVResult{}
	}

	diff := make(core.Embedding, dim)
	for i := 0; i < dim; i++ {
		diff[i] = float32(muK[i] - muR[i])
	}
	strength := diff.Norm()

	impact := 0.0
	if totalTopics > 0 {
		impact = float64(len(removed)) / float64(totalTopics)
	}

	return PDVResult{
		PDV:      diff.Normalized(),
		Strength: strength,
		Impact:   impact,
	}
}
