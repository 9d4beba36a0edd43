// Package chunk splits source text into ordered pieces at one of ten
// deterministic granularity levels (spec §4.C): phrase and sentence
// splits at levels 1-2, paragraph splits at level 3, and increasingly
// coarse paragraph groupings at levels 4-10.
package chunk

import (
	"regexp"
	"strings"
)

// MinLevel and MaxLevel bound the granularity argument accepted by Split.
const (
	MinLevel = 1
	MaxLevel = 10
)

var (
	phraseBoundary   = regexp.MustCompile(`(?s)([,;:])\s+`)
	sentenceBoundary = regexp.MustCompile(`(?s)([.!?])\s+`)
	paragraphBreak   = regexp.MustCompile(`\n{2,}`)
)

// Options controls source-specific splitting behavior.
type Options struct {
	// FromPDF suppresses newline-based sentence splitting at level 2,
	// since PDF extraction inserts hard line breaks at page boundaries
	// rather than at sentence ends (spec §4.C).
	FromPDF bool
}

// Split divides text into chunks at the given granularity level (1-10).
// Levels 1 and 2 split on punctuation boundaries, and level 2 also
// splits at single newlines unless opts.FromPDF is set; level 3 splits
// paragraphs; levels 4-10 concatenate (level-2) paragraphs per chunk.
// Empty chunks are never emitted.
func Split(text string, level int, opts Options) []string {
	if level < MinLevel {
		level = MinLevel
	}
	if level > MaxLevel {
		level = MaxLevel
	}

	switch {
	case level == 1:
		return splitClean(phraseBoundary, text)
	case level == 2:
		return splitLevel2(text, opts)
	case level == 3:
		return splitParagraphs(text)
	default:
		return groupParagraphs(text, level-2)
	}
}

// Separator returns the string that, when used to Join chunks produced
// at level, reproduces the original text up to whitespace normalization.
func Separator(level int) string {
	switch {
	case level <= 2:
		return " "
	default:
		return "\n\n"
	}
}

// Join reassembles chunks produced at level back into a single string.
func Join(chunks []string, level int) string {
	return strings.Join(chunks, Separator(level))
}

func splitLevel2(text string, opts Options) []string {
	if opts.FromPDF {
		collapsed := strings.Join(strings.Fields(text), " ")
		return splitClean(sentenceBoundary, collapsed)
	}
	var out []string
	for _, sentence := range splitClean(sentenceBoundary, text) {
		out = append(out, nonEmpty(strings.Split(sentence, "\n"))...)
	}
	return out
}

func splitClean(boundary *regexp.Regexp, text string) []string {
	marked := boundary.ReplaceAllString(text, "$1\x00")
	parts := strings.Split(marked, "\x00")
	return nonEmpty(parts)
}

func splitParagraphs(text string) []string {
	parts := paragraphBreak.Split(text, -1)
	return nonEmpty(parts)
}

// groupParagraphs splits into paragraphs, then concatenates n
// paragraphs per output chunk (n = level - 2).
func groupParagraphs(text string, n int) []string {
	paras := splitParagraphs(text)
	if n < 1 {
		n = 1
	}
	var out []string
	for i := 0; i < len(paras); i += n {
		end := i + n
		if end > len(paras) {
			end = len(paras)
		}
		group := strings.Join(paras[i:end], "\n\n")
		if strings.TrimSpace(group) != "" {
			out = append(out, group)
		}
	}
	return out
}

func nonEmpty(parts []string) []string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// NormalizeWhitespace collapses all whitespace runs to a single space,
// for round-trip comparison between original and rejoined text.
func NormalizeWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
