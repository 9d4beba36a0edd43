// Package synthesis turns a finished research conversation into a
// report: per-subtopic content generation with local citation IDs, a
// smoothing pass over each subtopic that may not drop a citation, and a
// final relocalization sweep from local to global bibliography IDs
// (spec §4.Q).
package synthesis

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"ire/internal/core"
	"ire/internal/llm"
)

// Backend is the chat-completion dependency used for content generation
// and smoothing.
type Backend interface {
	Complete(ctx context.Context, model string, messages []llm.ChatMessage, temperature float32) (string, error)
}

// Embedder is the embedding dependency used to rank candidate results
// per subtopic.
type Embedder interface {
	Embed(ctx context.Context, text string) (core.Embedding, error)
}

// Engine generates the final report body from a ResearchState's result
// history and outline.
type Engine struct {
	backend   Backend
	embedder  Embedder
	model     string
	maxCycles int
}

// New wires an Engine. maxCycles feeds the per-subtopic result-count
// formula ⌈0.5·MAX_CYCLES + 3⌉ (spec §4.Q step 1).
func New(backend Backend, embedder Embedder, model string, maxCycles int) *Engine {
	return &Engine{backend: backend, embedder: embedder, model: model, maxCycles: maxCycles}
}

// resultsPerSubtopic is k in "select top k results by similarity",
// floored at 3.
func (e *Engine) resultsPerSubtopic() int {
	k := int(math.Ceil(0.5*float64(e.maxCycles) + 3))
	if k < 3 {
		k = 3
	}
	return k
}

// localCitation is one candidate source assigned a per-subtopic local
// ID, in the order the synthesis body cites it.
type localCitation struct {
	LocalID int
	URL     string
	Title   string
}

// Subtopic is one generated subtopic's body plus the local citation
// table it was generated against.
type Subtopic struct {
	Topic     string
	Body      string
	Citations []localCitation
}

// Section is one top-level outline node's synthesized subtopics, merged
// into a single smoothed body.
type Section struct {
	Topic     string
	Body      string
	Subtopics []Subtopic
}

// Report is the final synthesized document before citation
// verification: sections in outline order plus the bibliography built
// from globally-referenced source URLs.
type Report struct {
	Sections      []Section
	Bibliography  []BibliographyEntry
}

// BibliographyEntry is one globally-numbered, globally-referenced
// source.
type BibliographyEntry struct {
	GlobalID int
	URL      string
	Title    string
}

var citationPattern = regexp.MustCompile(`\[(\d+(?:\s*,\s*\d+)*)\]`)

// Synthesize runs the full per-subtopic generation, per-section
// smoothing, and global relocalization pipeline described in spec §4.Q.
// assignGlobalID resolves a URL to its dense, report-wide global
// citation ID; pass a ResearchState's AssignGlobalID so bibliography
// numbering stays consistent with the rest of the conversation's
// citation map. A nil assigner falls back to a report-local counter.
func (e *Engine) Synthesize(ctx context.Context, question string, outline core.Outline, results []core.SearchResult, assignGlobalID func(url string) int) (Report, error) {
	sections := make([]Section, 0, len(outline.Nodes))
	for _, node := range outline.Nodes {
		sec, err := e.synthesizeSection(ctx, question, node, results)
		if err != nil {
			return Report{}, err
		}
		sections = append(sections, sec)
	}

	if assignGlobalID == nil {
		nextID := 1
		assigned := map[string]int{}
		assignGlobalID = func(url string) int {
			if id, ok := assigned[url]; ok {
				return id
			}
			id := nextID
			assigned[url] = id
			nextID++
			return id
		}
	}

	bibliography := relocalize(sections, assignGlobalID)
	for i := range sections {
		sections[i].Body = mergeSubtopics(sections[i].Subtopics)
	}
	return Report{Sections: sections, Bibliography: bibliography}, nil
}

// synthesizeSection generates and smooths each subtopic independently,
// then joins them into the section body. Smoothing operates per
// subtopic rather than on the concatenation of all of a section's
// subtopics: local citation IDs restart at 1 in every subtopic, so
// merging first would make identical bracket numbers refer to
// different URLs depending on which subtopic they came from.
func (e *Engine) synthesizeSection(ctx context.Context, question string, node core.OutlineNode, results []core.SearchResult) (Section, error) {
	items := node.FlatItems()
	subtopics := make([]Subtopic, 0, len(items))
	for _, item := range items {
		sub, err := e.synthesizeSubtopic(ctx, question, item, results)
		if err != nil {
			return Section{}, err
		}
		smoothed, err := e.smooth(ctx, item, sub.Body)
		if err == nil {
			sub.Body = smoothed
		}
		subtopics = append(subtopics, sub)
	}

	return Section{Topic: node.Topic, Body: mergeSubtopics(subtopics), Subtopics: subtopics}, nil
}

// synthesizeSubtopic implements spec §4.Q steps 1-4: rank results by
// similarity to (query ⊕ subtopic), assign local IDs sorted by title,
// call the model under a strict [n]-citation contract, and extract the
// citations it actually used.
func (e *Engine) synthesizeSubtopic(ctx context.Context, question, subtopic string, results []core.SearchResult) (Subtopic, error) {
	top := e.topKForSubtopic(ctx, question, subtopic, results)

	sort.SliceStable(top, func(i, j int) bool { return top[i].Title < top[j].Title })
	citations := make([]localCitation, len(top))
	for i, r := range top {
		citations[i] = localCitation{LocalID: i + 1, URL: r.URL, Title: r.Title}
	}

	prompt := buildSubtopicPrompt(question, subtopic, top)
	body, err := e.backend.Complete(ctx, e.model, []llm.ChatMessage{{Role: "user", Content: prompt}}, 0.4)
	if err != nil {
		body = deterministicSubtopicBody(subtopic, citations)
	}

	used := usedLocalIDs(body)
	kept := make([]localCitation, 0, len(citations))
	for _, c := range citations {
		if used[c.LocalID] {
			kept = append(kept, c)
		}
	}
	return Subtopic{Topic: subtopic, Body: body, Citations: kept}, nil
}

func (e *Engine) topKForSubtopic(ctx context.Context, question, subtopic string, results []core.SearchResult) []core.SearchResult {
	k := e.resultsPerSubtopic()
	if len(results) <= k {
		out := make([]core.SearchResult, len(results))
		copy(out, results)
		return out
	}

	queryEmb, err := e.embedder.Embed(ctx, question+" "+subtopic)
	if err != nil || queryEmb == nil {
		out := make([]core.SearchResult, k)
		copy(out, results[:k])
		return out
	}

	type scored struct {
		result core.SearchResult
		score  float64
	}
	candidates := make([]scored, 0, len(results))
	for _, r := range results {
		resultEmb, err := e.embedder.Embed(ctx, r.Snippet)
		score := r.Similarity
		if err == nil && resultEmb != nil {
			score = queryEmb.CosineSimilarity(resultEmb)
		}
		candidates = append(candidates, scored{result: r, score: score})
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })

	out := make([]core.SearchResult, 0, k)
	for i := 0; i < k && i < len(candidates); i++ {
		out = append(out, candidates[i].result)
	}
	return out
}

func buildSubtopicPrompt(question, subtopic string, sources []core.SearchResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Research question: %s\nSubtopic: %s\n\nSources (cite by number in brackets, e.g. [1] or [1,2]):\n", question, subtopic)
	for i, r := range sources {
		fmt.Fprintf(&b, "[%d] %s: %s\n", i+1, r.Title, r.Snippet)
	}
	b.WriteString("\nWrite 2-4 sentences covering this subtopic using only the sources above. Every factual claim must end with a bracketed citation referring to the source number(s) it came from. Do not invent a numbering scheme of your own.")
	return b.String()
}

func deterministicSubtopicBody(subtopic string, citations []localCitation) string {
	if len(citations) == 0 {
		return fmt.Sprintf("No sourced findings are available yet for %s.", subtopic)
	}
	return fmt.Sprintf("Findings on %s are summarized from the available sources [%d].", subtopic, citations[0].LocalID)
}

// usedLocalIDs extracts every local ID referenced by a [n] or [n,m,...]
// citation in text.
func usedLocalIDs(text string) map[int]bool {
	out := map[int]bool{}
	for _, match := range citationPattern.FindAllStringSubmatch(text, -1) {
		for _, part := range strings.Split(match[1], ",") {
			if id, err := strconv.Atoi(strings.TrimSpace(part)); err == nil {
				out[id] = true
			}
		}
	}
	return out
}

// MergeSubtopics joins a section's subtopic bodies into a single section
// body, in subtopic order. Exported so callers that mutate Subtopics
// after Synthesize returns (citation verification's strikethroughs) can
// re-derive Section.Body without duplicating the join logic.
func MergeSubtopics(subtopics []Subtopic) string {
	return mergeSubtopics(subtopics)
}

func mergeSubtopics(subtopics []Subtopic) string {
	var b strings.Builder
	for i, s := range subtopics {
		if i > 0 {
			b.WriteString(" ")
		}
		b.WriteString(s.Body)
	}
	return b.String()
}

// smooth invokes the smoothing pass on one subtopic body (spec §4.Q): it
// may reorder sentences but must preserve every [n]/[n,m] citation and
// every ~~strikethrough~~ span. If the model output drops a citation that
// appeared in the input, the smoothing is rejected and the unsmoothed
// body is used instead.
func (e *Engine) smooth(ctx context.Context, sectionTopic, merged string) (string, error) {
	if strings.TrimSpace(merged) == "" {
		return merged, nil
	}
	prompt := fmt.Sprintf(
		"Section: %s\n\nSmooth the transitions between these sentences into flowing prose. You may reorder sentences but MUST NOT change, remove, or renumber any bracketed citation like [2] or [1,3], and MUST NOT alter any ~~struck through~~ text.\n\n%s",
		sectionTopic, merged,
	)
	smoothed, err := e.backend.Complete(ctx, e.model, []llm.ChatMessage{{Role: "user", Content: prompt}}, 0.2)
	if err != nil {
		return merged, err
	}
	if !citationsPreserved(merged, smoothed) {
		return merged, nil
	}
	return smoothed, nil
}

// citationsPreserved reports whether every citation marker present in
// original also appears, verbatim, in candidate (order may differ).
func citationsPreserved(original, candidate string) bool {
	originalCounts := map[string]int{}
	for _, m := range citationPattern.FindAllString(original, -1) {
		originalCounts[m]++
	}
	candidateCounts := map[string]int{}
	for _, m := range citationPattern.FindAllString(candidate, -1) {
		candidateCounts[m]++
	}
	for marker, n := range originalCounts {
		if candidateCounts[marker] < n {
			return false
		}
	}
	return true
}

// relocalize sweeps every section's subtopics, rewriting each local [n]
// citation to a dense global bibliography ID, assigning a fresh global
// ID the first time a URL is seen. Citations never used in the final
// text do not get a global ID or bibliography entry (spec §4.Q).
func relocalize(sections []Section, assignGlobalID func(url string) int) []BibliographyEntry {
	urlByGlobalID := map[int]string{}
	titleByURL := map[string]string{}
	referenced := map[int]bool{}

	for si := range sections {
		for ti := range sections[si].Subtopics {
			sub := &sections[si].Subtopics[ti]
			localToURL := make(map[int]string, len(sub.Citations))
			for _, c := range sub.Citations {
				localToURL[c.LocalID] = c.URL
				if _, ok := titleByURL[c.URL]; !ok {
					titleByURL[c.URL] = c.Title
				}
			}

			sub.Body = citationPattern.ReplaceAllStringFunc(sub.Body, func(match string) string {
				inner := match[1 : len(match)-1]
				parts := strings.Split(inner, ",")
				globalParts := make([]string, 0, len(parts))
				for _, p := range parts {
					localID, err := strconv.Atoi(strings.TrimSpace(p))
					if err != nil {
						continue
					}
					url, ok := localToURL[localID]
					if !ok {
						continue
					}
					gid := assignGlobalID(url)
					urlByGlobalID[gid] = url
					referenced[gid] = true
					globalParts = append(globalParts, strconv.Itoa(gid))
				}
				if len(globalParts) == 0 {
					return ""
				}
				return "[" + strings.Join(globalParts, ",") + "]"
			})
		}
	}

	bibliography := make([]BibliographyEntry, 0, len(urlByGlobalID))
	for gid, url := range urlByGlobalID {
		if !referenced[gid] {
			continue
		}
		bibliography = append(bibliography, BibliographyEntry{GlobalID: gid, URL: url, Title: titleByURL[url]})
	}
	sort.Slice(bibliography, func(i, j int) bool { return bibliography[i].GlobalID < bibliography[j].GlobalID })
	return bibliography
}
