// Package citations implements the report's final quality gate: batch
// verification of each cited sentence against the source it claims to
// come from, striking through sentences that don't check out while
// leaving their citation numeral intact for traceability (spec §4.R).
package citations

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"ire/internal/core"
	"ire/internal/fetch"
	"ire/internal/llm"
	"ire/internal/synthesis"
)

const maxBatchSize = 5

// Backend is the chat-completion dependency used for yes/no citation
// checks.
type Backend interface {
	Complete(ctx context.Context, model string, messages []llm.ChatMessage, temperature float32) (string, error)
}

// SourceLookup resolves a URL to its already-fetched content, if any.
type SourceLookup interface {
	Lookup(url string) (*core.SourceRecord, bool)
}

// Verifier batch-checks cited sentences against their source content.
type Verifier struct {
	backend Backend
	model   string
	sources SourceLookup
	fetcher *fetch.Fetcher
}

// New wires a Verifier. sources is consulted first so an already-fetched
// page isn't fetched twice; fetcher is the fallback for sources not
// retained past the research cycle that produced them.
func New(backend Backend, model string, sources SourceLookup, fetcher *fetch.Fetcher) *Verifier {
	return &Verifier{backend: backend, model: model, sources: sources, fetcher: fetcher}
}

var citationPattern = regexp.MustCompile(`\[(\d+(?:\s*,\s*\d+)*)\]`)

type citedSentence struct {
	sectionIdx  int
	subtopicIdx int
	sentence    string
	url         string
}

// Verify checks every cited sentence across sections against the source
// its citation numeral resolves to (via bibliography), mutating section
// bodies in place. A sentence whose source doesn't support it is wrapped
// in ~~strikethrough~~; its citation numeral is left untouched.
func (v *Verifier) Verify(ctx context.Context, sections []synthesis.Section, bibliography []synthesis.BibliographyEntry) error {
	urlByGlobalID := make(map[int]string, len(bibliography))
	for _, b := range bibliography {
		urlByGlobalID[b.GlobalID] = b.URL
	}

	candidates := extractCitedSentences(sections, urlByGlobalID)
	byURL := groupByURL(candidates)

	for url, group := range byURL {
		content, ok := v.resolveContent(ctx, url)
		if !ok {
			continue // unreachable: unverified but not flagged
		}
		for start := 0; start < len(group); start += maxBatchSize {
			end := start + maxBatchSize
			if end > len(group) {
				end = len(group)
			}
			v.verifyBatch(ctx, content, group[start:end], sections)
		}
	}

	for si := range sections {
		sections[si].Body = synthesis.MergeSubtopics(sections[si].Subtopics)
	}
	return nil
}

func (v *Verifier) resolveContent(ctx context.Context, url string) (string, bool) {
	if v.sources != nil {
		if rec, ok := v.sources.Lookup(url); ok && rec.Content != "" {
			return rec.Content, true
		}
	}
	if v.fetcher == nil {
		return "", false
	}
	result, err := v.fetcher.Fetch(ctx, url)
	if err != nil || result.Text == "" {
		return "", false
	}
	return result.Text, true
}

func (v *Verifier) verifyBatch(ctx context.Context, content string, batch []citedSentence, sections []synthesis.Section) {
	prompt := buildVerificationPrompt(content, batch)
	reply, err := v.backend.Complete(ctx, v.model, []llm.ChatMessage{{Role: "user", Content: prompt}}, 0.0)
	if err != nil {
		return // unreachable verification: leave sentences unflagged
	}

	verdicts := parseVerdicts(reply, len(batch))
	for i, cs := range batch {
		if verdicts[i] {
			continue
		}
		strikethroughSentence(sections, cs)
	}
}

func buildVerificationPrompt(content string, batch []citedSentence) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Source content:\n%s\n\nFor each numbered sentence below, answer yes if the source content supports it and no if it doesn't. Reply with one line per sentence, in the form \"N: yes\" or \"N: no\".\n\n", truncate(content, 4000))
	for i, cs := range batch {
		fmt.Fprintf(&b, "%d: %s\n", i+1, cs.sentence)
	}
	return b.String()
}

var verdictLine = regexp.MustCompile(`(?i)^\s*(\d+)\s*[:.)]\s*(yes|no)`)

func parseVerdicts(reply string, n int) []bool {
	out := make([]bool, n)
	for i := range out {
		out[i] = true // default to verified; an unparsed line shouldn't flag
	}
	for _, line := range strings.Split(reply, "\n") {
		m := verdictLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		idx, err := strconv.Atoi(m[1])
		if err != nil || idx < 1 || idx > n {
			continue
		}
		out[idx-1] = strings.EqualFold(m[2], "yes")
	}
	return out
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

// extractCitedSentences splits every subtopic body into sentences and
// keeps the ones carrying at least one citation, resolving each to the
// URL its (possibly combined) citation numerals map to. A sentence with
// citations to more than one URL is checked against the first; the
// others are left unverified rather than invented a multi-source check.
func extractCitedSentences(sections []synthesis.Section, urlByGlobalID map[int]string) []citedSentence {
	var out []citedSentence
	for si, sec := range sections {
		for ti, sub := range sec.Subtopics {
			for _, sentence := range splitSentences(sub.Body) {
				matches := citationPattern.FindStringSubmatch(sentence)
				if matches == nil {
					continue
				}
				ids := strings.Split(matches[1], ",")
				firstID, err := strconv.Atoi(strings.TrimSpace(ids[0]))
				if err != nil {
					continue
				}
				url, ok := urlByGlobalID[firstID]
				if !ok {
					continue
				}
				out = append(out, citedSentence{sectionIdx: si, subtopicIdx: ti, sentence: sentence, url: url})
			}
		}
	}
	return out
}

// splitSentences breaks body at the first '.', '!', or '?' after each
// run of text, keeping the terminator attached to its sentence. This is
// a simple heuristic (it doesn't special-case abbreviations) but is
// sufficient for citation sentences, which end in punctuation and
// rarely contain embedded periods outside their bracketed citation.
func splitSentences(body string) []string {
	var out []string
	var current strings.Builder
	for _, r := range body {
		current.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			if s := strings.TrimSpace(current.String()); s != "" {
				out = append(out, s)
			}
			current.Reset()
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		out = append(out, s)
	}
	return out
}

func groupByURL(candidates []citedSentence) map[string][]citedSentence {
	out := map[string][]citedSentence{}
	for _, c := range candidates {
		out[c.url] = append(out[c.url], c)
	}
	return out
}

// strikethroughSentence wraps the failed sentence in ~~...~~ within its
// owning subtopic body, preserving the citation numeral inside the
// strikethrough span so the reader can still trace it.
func strikethroughSentence(sections []synthesis.Section, cs citedSentence) {
	sub := &sections[cs.sectionIdx].Subtopics[cs.subtopicIdx]
	if strings.Contains(sub.Body, "~~"+cs.sentence+"~~") {
		return
	}
	sub.Body = strings.Replace(sub.Body, cs.sentence, "~~"+cs.sentence+"~~", 1)
}
