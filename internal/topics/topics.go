// Package topics implements the engine's topic prioritization: ranking
// active outline topics by how well they align with the conversation's
// semantic trajectory, preference direction, and unexplored gaps, the
// same weighted-factor-plus-adaptive-fade approach internal/semantic's
// Transformer uses to build its cycle transform (spec §4.I/§4.N).
package topics

import (
	"math"
	"sort"

	"ire/internal/core"
	"ire/internal/semantic"
)

// Weights controls how the four alignment factors are combined, and how
// fast the PDV and gap-exploration components fade out over the
// conversation's cycles. Mirrors semantic.TransformerConfig so both
// components move through the same schedule.
type Weights struct {
	TrajectoryWeight float64
	PDVWeight        float64
	GapWeight        float64
	NoveltyWeight    float64
	InfoNeedWeight   float64

	PDVFadeFraction float64
	GapFadeFraction float64
}

// DefaultWeights mirrors the equal-factor baseline a fresh conversation
// starts from before any fade has taken effect.
func DefaultWeights() Weights {
	return Weights{
		TrajectoryWeight: 1.0,
		PDVWeight:        1.0,
		GapWeight:        1.0,
		NoveltyWeight:    1.0,
		InfoNeedWeight:   1.0,
		PDVFadeFraction:  0.5,
		GapFadeFraction:  0.7,
	}
}

// Input bundles the per-topic semantic data the prioritizer needs. Topic
// embeddings are assumed precomputed and unit-norm.
type Input struct {
	TopicEmbeddings map[string]core.Embedding
	CompletedTopics map[string]struct{}
	RecentResults   []core.SearchResult
	TopicUsageCount map[string]int
	// TopicResultSimilarity is the best similarity a topic's own search
	// results have achieved so far, used to derive the usage dampener.
	TopicResultSimilarity map[string]float64

	Trajectory core.Embedding
	PDV        core.Embedding
	PDVImpact  float64
	Gap        core.Embedding

	CycleIndex int
	MaxCycles  int
}

// Scored pairs a topic with its computed priority score.
type Scored struct {
	Topic string
	Score float64
}

// Rank scores every active topic and returns them sorted high to low.
func Rank(active []string, in Input, w Weights) []Scored {
	trajWeight := w.TrajectoryWeight
	pdvWeight := semantic.Fade(w.PDVWeight, in.CycleIndex, in.MaxCycles, w.PDVFadeFraction)
	gapWeight := semantic.Fade(w.GapWeight, in.CycleIndex, in.MaxCycles, w.GapFadeFraction)

	scored := make([]Scored, 0, len(active))
	for _, topic := range active {
		emb := in.TopicEmbeddings[topic]
		if emb == nil {
			scored = append(scored, Scored{Topic: topic, Score: 0})
			continue
		}

		trajAlign := 0.0
		if in.Trajectory != nil {
			trajAlign = emb.CosineSimilarity(in.Trajectory)
		}
		pdvAlign := 0.0
		if in.PDV != nil {
			pdvAlign = emb.CosineSimilarity(in.PDV) * in.PDVImpact
		}
		gapAlign := 0.0
		if in.Gap != nil {
			gapAlign = emb.CosineSimilarity(in.Gap)
		}
		novelty := noveltyScore(emb, in.CompletedTopics, in.TopicEmbeddings)
		infoNeed := infoNeedScore(emb, in.RecentResults)

		score := trajWeight*trajAlign +
			pdvWeight*pdvAlign +
			gapWeight*gapAlign +
			w.NoveltyWeight*novelty +
			w.InfoNeedWeight*infoNeed

		dampener := usageDampener(in.TopicResultSimilarity[topic], in.TopicUsageCount[topic])
		score *= dampener

		scored = append(scored, Scored{Topic: topic, Score: score})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	return scored
}

// usageDampener implements the multiplier from spec §4.N: 1.0 for a topic
// that has produced high-similarity results, 0.5 for one that has only
// produced low-similarity results, and 0.9^usage_count otherwise (a topic
// that has not yet produced any results).
func usageDampener(bestSimilarity float64, usageCount int) float64 {
	const highSimilarity = 0.75
	const lowSimilarityFloor = 0.3

	switch {
	case bestSimilarity >= highSimilarity:
		return 1.0
	case bestSimilarity > 0 && bestSimilarity < lowSimilarityFloor:
		return 0.5
	default:
		return math.Pow(0.9, float64(usageCount))
	}
}

// noveltyScore rewards topics that are semantically distant from
// everything already completed, so the engine doesn't keep re-deriving
// the same subtopic under a new name.
func noveltyScore(emb core.Embedding, completed map[string]struct{}, embeddings map[string]core.Embedding) float64 {
	if len(completed) == 0 {
		return 1.0
	}
	maxSim := 0.0
	for topic := range completed {
		other := embeddings[topic]
		if other == nil {
			continue
		}
		if sim := emb.CosineSimilarity(other); sim > maxSim {
			maxSim = sim
		}
	}
	return 1.0 - maxSim
}

// infoNeedScore rewards cycles where the most recent results were
// weakly matched overall, signalling the current query strategy is
// running dry and every remaining topic deserves a fresh push. emb is
// accepted for symmetry with the other factor functions even though the
// result set carries no per-item embedding to compare against directly.
func infoNeedScore(emb core.Embedding, recent []core.SearchResult) float64 {
	if len(recent) == 0 {
		return 1.0
	}
	window := recent
	if len(window) > 10 {
		window = window[len(window)-10:]
	}
	var sum float64
	for _, r := range window {
		sum += r.Similarity
	}
	avg := sum / float64(len(window))
	return 1.0 - avg
}
