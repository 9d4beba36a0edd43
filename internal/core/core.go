// Package core holds the shared domain types for the research engine:
// embeddings, sources, outline trees, citation candidates, and the
// per-conversation research state they are assembled into.
package core

import (
	"math"
	"time"
)

// Embedding is a fixed-dimension, L2-normalized vector of 32-bit floats.
// Any stored Embedding must have a norm within 1e-6 of 1.0.
type Embedding []float32

// Norm returns the L2 norm of the embedding.
func (e Embedding) Norm() float64 {
	var sum float64
	for _, v := range e {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

// IsUnit reports whether the embedding's norm is within 1e-6 of 1.0.
func (e Embedding) IsUnit() bool {
	if len(e) == 0 {
		return false
	}
	n := e.Norm()
	return n > 1.0-1e-6 && n < 1.0+1e-6
}

// Normalized returns a unit-norm copy of e, or a zero-length Embedding if
// e has near-zero norm.
func (e Embedding) Normalized() Embedding {
	n := e.Norm()
	if n < 1e-10 {
		return nil
	}
	out := make(Embedding, len(e))
	for i, v := range e {
		out[i] = float32(float64(v) / n)
	}
	return out
}

// Dot returns the dot product of e and o.
func (e Embedding) Dot(o Embedding) float64 {
	n := len(e)
	if len(o) < n {
		n = len(o)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(e[i]) * float64(o[i])
	}
	return sum
}

// CosineSimilarity returns the cosine similarity between e and o, assuming
// both are unit-norm (in which case it reduces to the dot product).
func (e Embedding) CosineSimilarity(o Embedding) float64 {
	na, nb := e.Norm(), o.Norm()
	if na < 1e-10 || nb < 1e-10 {
		return 0
	}
	return e.Dot(o) / (na * nb)
}

// ContentKind identifies how a fetched source was extracted.
type ContentKind string

const (
	ContentWeb      ContentKind = "web"
	ContentPDF      ContentKind = "pdf"
	ContentArchived ContentKind = "archived"
)

// ChunkedContent is an ordered sequence of text chunks with a parallel
// sequence of embeddings; entry i in Embeddings corresponds to Chunks[i].
type ChunkedContent struct {
	Chunks     []string
	Embeddings []Embedding
}

// Len returns the number of chunks. It does not check that Embeddings
// has the same length as Chunks.
func (c ChunkedContent) Len() int { return len(c.Chunks) }

// SourceRecord is the canonical record for a unique fetched URL.
type SourceRecord struct {
	GlobalID        int // assigned on first citation use, not first fetch
	Title           string
	URL             string
	ContentType     ContentKind
	Content         string
	FirstSeenAt     time.Time
	CitedInSections map[string]struct{}
	TotalTokens     int
	TimesSelected   int
	TimesConsidered int
}

// OutlineNode is a single topic with its ordered subtopics.
type OutlineNode struct {
	Topic      string
	Subtopics  []string
}

// FlatItems returns (topic, subtopics...) in document order.
func (n OutlineNode) FlatItems() []string {
	return append([]string{n.Topic}, n.Subtopics...)
}

// Outline is the ordered tree of research topics.
type Outline struct {
	Nodes []OutlineNode
}

// Flat returns the concatenation of every node's FlatItems, in document order.
func (o Outline) Flat() []string {
	var out []string
	for _, n := range o.Nodes {
		out = append(out, n.FlatItems()...)
	}
	return out
}

// TopicStatus is one of the four LLM-assigned classifications of an
// outline item after a cycle's analysis.
type TopicStatus string

const (
	TopicActive     TopicStatus = "active"
	TopicCompleted  TopicStatus = "completed"
	TopicPartial    TopicStatus = "partial"
	TopicIrrelevant TopicStatus = "irrelevant"
	TopicNew        TopicStatus = "new"
)

// CitationCandidate is a local-ID citation produced during subtopic
// synthesis, valid only within the subtopic that produced it until it is
// relocalized to a global bibliography ID.
type CitationCandidate struct {
	LocalID            int
	RawText            string
	ContainingSentence string
	URL                string
	SectionID          string
	SubtopicID         string
	Verified           bool
	Flagged            bool
}

// LocalCitationKey uniquely identifies a local citation id within the
// subtopic it was generated in, per DESIGN NOTES §9 (prefer explicit tuple
// keys over a bare local_id or a per-URL "original_ids" map).
type LocalCitationKey struct {
	SectionID  string
	SubtopicID string
	LocalID    int
}

// SearchResult is a single item returned by a SearchProvider or the
// knowledge store (spec §6).
type SearchResult struct {
	Title      string
	URL        string
	Snippet    string
	Domain     string
	Similarity float64
}

// CycleAnalysis summarizes one completed cycle's classification pass.
type CycleAnalysis struct {
	CycleIndex int
	Completed  []string
	Partial    []string
	Irrelevant []string
	New        []string
	Notes      string
}

// ResearchStatus is the lifecycle phase of a ResearchState, mirroring the
// CycleController's state machine (spec §4.O).
type ResearchStatus string

const (
	StatusInit             ResearchStatus = "init"
	StatusAwaitingFeedback ResearchStatus = "awaiting_feedback"
	StatusCycling          ResearchStatus = "cycling"
	StatusCompressing      ResearchStatus = "compressing"
	StatusSynthesizing     ResearchStatus = "synthesizing"
	StatusDone             ResearchStatus = "done"
)

// MemoryStats tracks tokens accounted for per report section.
type MemoryStats struct {
	TokensPerSection map[string]int
}

// ResearchState is the complete mutable state of one research
// conversation (spec §3). There is exactly one ResearchState per
// (UserID, FirstMessageID) pair.
type ResearchState struct {
	UserID        string
	FirstMessageID string

	OriginalQuestion string
	Outline          Outline
	OutlineEmbedding Embedding

	ResultHistory []SearchResult
	SearchHistory []string

	Completed  map[string]struct{}
	Partial    map[string]struct{}
	Irrelevant map[string]struct{}

	TopicUsageCount map[string]int
	Analyses        []CycleAnalysis

	GlobalCitationMap map[string]int // URL -> global citation ID
	NextGlobalID      int

	MemoryStats MemoryStats
	Status      ResearchStatus

	ResearchCompleted bool
}

// NewResearchState creates a freshly initialized ResearchState for a
// conversation.
func NewResearchState(userID, firstMessageID, question string) *ResearchState {
	return &ResearchState{
		UserID:            userID,
		FirstMessageID:    firstMessageID,
		OriginalQuestion:  question,
		Completed:         map[string]struct{}{},
		Partial:           map[string]struct{}{},
		Irrelevant:        map[string]struct{}{},
		TopicUsageCount:   map[string]int{},
		GlobalCitationMap: map[string]int{},
		NextGlobalID:      1,
		MemoryStats:       MemoryStats{TokensPerSection: map[string]int{}},
		Status:            StatusInit,
	}
}

// ActiveTopics returns the flat outline items not yet classified as
// completed or irrelevant.
func (s *ResearchState) ActiveTopics() []string {
	var out []string
	for _, item := range s.Outline.Flat() {
		if _, done := s.Completed[item]; done {
			continue
		}
		if _, irr := s.Irrelevant[item]; irr {
			continue
		}
		out = append(out, item)
	}
	return out
}

// ValidateTopicSets checks the spec §8 invariant that completed and
// irrelevant sets are disjoint, and that every topic is accounted for.
func (s *ResearchState) ValidateTopicSets() bool {
	for item := range s.Completed {
		if _, irr := s.Irrelevant[item]; irr {
			return false
		}
	}
	all := map[string]struct{}{}
	for _, item := range s.Outline.Flat() {
		all[item] = struct{}{}
	}
	accounted := map[string]struct{}{}
	for item := range s.Completed {
		accounted[item] = struct{}{}
	}
	for item := range s.Partial {
		accounted[item] = struct{}{}
	}
	for item := range s.Irrelevant {
		accounted[item] = struct{}{}
	}
	for _, item := range s.ActiveTopics() {
		accounted[item] = struct{}{}
	}
	for item := range all {
		if _, ok := accounted[item]; !ok {
			return false
		}
	}
	return true
}

// AssignGlobalID returns the existing global citation ID for url, or
// assigns and records a new one. Global IDs are assigned monotonically on
// first citation use, keeping bibliography IDs dense in the final report.
func (s *ResearchState) AssignGlobalID(url string) int {
	if id, ok := s.GlobalCitationMap[url]; ok {
		return id
	}
	id := s.NextGlobalID
	s.GlobalCitationMap[url] = id
	s.NextGlobalID++
	return id
}
