package academic

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"ire/internal/search"
)

// keywordProvider reduces a query to a short keyword string before
// delegating, for repositories whose search forms expect compact
// terms rather than natural-language questions (Pépite, theses.fr).
type keywordProvider struct {
	inner     search.Provider
	extractor *KeywordExtractor
}

func newKeywordProvider(inner search.Provider) *keywordProvider {
	return &keywordProvider{inner: inner, extractor: NewKeywordExtractor()}
}

func (k *keywordProvider) Name() string { return k.inner.Name() }

func (k *keywordProvider) Search(ctx context.Context, query string) ([]search.Result, error) {
	keywords := k.extractor.Extract(query)
	if strings.TrimSpace(keywords) == "" {
		keywords = query
	}
	return k.inner.Search(ctx, keywords)
}

// KeywordExtractor turns a free-form research query into a short,
// compact search string for academic repositories that reject long
// natural-language queries (Pépite, theses.fr). Ported from
// academia.py's AdvancedKeywordExtractor: the original leans on a
// spaCy NLP pipeline for named-entity and part-of-speech tagging,
// which has no Go equivalent in the corpus, so this keeps the parts
// that survive without it: stopword-filtered tokenization, compound
// term detection and frequency/length weighting.
type KeywordExtractor struct {
	maxKeywords int
}

func NewKeywordExtractor() *KeywordExtractor {
	return &KeywordExtractor{maxKeywords: 6}
}

var stopWords = map[string]bool{
	"what": true, "how": true, "why": true, "when": true, "where": true,
	"who": true, "which": true, "allow": true, "allows": true, "certain": true,
	"person": true, "persons": true, "people": true, "some": true, "many": true,
	"is": true, "are": true, "was": true, "were": true, "can": true, "could": true,
	"should": true, "would": true, "may": true, "might": true, "will": true,
	"shall": true, "must": true, "the": true, "and": true, "for": true, "with": true,
	"que": true, "qui": true, "quoi": true, "comment": true, "pourquoi": true,
	"quand": true, "permet": true, "permettent": true, "certaines": true,
	"personnes": true, "est": true, "sont": true, "peut": true, "pourrait": true,
	"devrait": true, "doit": true,
}

var wordPattern = regexp.MustCompile(`\b[a-zA-ZÀ-ÿ]{3,}\b`)

type compoundPattern struct {
	re          *regexp.Regexp
	replacement string
}

// compoundPatterns is a representative subset of academia.py's
// mental-health and general-academic compound vocabulary, not the
// full domain-specific list, since a general-purpose research engine
// should not hardcode one study's taxonomy.
var compoundPatterns = []compoundPattern{
	{regexp.MustCompile(`(?i)self[\s-]?diagnos\w*`), "self-diagnosis"},
	{regexp.MustCompile(`(?i)mental[\s-]?health`), "mental-health"},
	{regexp.MustCompile(`(?i)santé[\s-]?mentale`), "santé-mentale"},
	{regexp.MustCompile(`(?i)mental[\s-]?disorder\w*`), "mental-disorders"},
	{regexp.MustCompile(`(?i)anxiety[\s-]?disorder\w*`), "anxiety-disorders"},
	{regexp.MustCompile(`(?i)mood[\s-]?disorder\w*`), "mood-disorders"},
	{regexp.MustCompile(`(?i)post[\s-]?traumatic[\s-]?stress`), "post-traumatic-stress"},
	{regexp.MustCompile(`(?i)personality[\s-]?disorder\w*`), "personality-disorders"},
	{regexp.MustCompile(`(?i)eating[\s-]?disorder\w*`), "eating-disorders"},
	{regexp.MustCompile(`(?i)substance[\s-]?use[\s-]?disorder\w*`), "substance-use-disorders"},
	{regexp.MustCompile(`(?i)attention[\s-]?deficit`), "attention-deficit"},
	{regexp.MustCompile(`(?i)sleep[\s-]?disorder\w*`), "sleep-disorders"},
	{regexp.MustCompile(`(?i)cognitive[\s-]?behavioral[\s-]?therapy`), "cognitive-behavioral-therapy"},
	{regexp.MustCompile(`(?i)machine[\s-]?learning`), "machine-learning"},
	{regexp.MustCompile(`(?i)artificial[\s-]?intelligence`), "artificial-intelligence"},
	{regexp.MustCompile(`(?i)deep[\s-]?learning`), "deep-learning"},
	{regexp.MustCompile(`(?i)data[\s-]?science`), "data-science"},
	{regexp.MustCompile(`(?i)climate[\s-]?change`), "climate-change"},
}

// Extract produces a space-joined keyword string capped at
// maxKeywords, favoring compound terms and longer, hyphenated words.
func (k *KeywordExtractor) Extract(query string) string {
	lower := strings.ToLower(query)

	var found []string
	remaining := lower
	for _, cp := range compoundPatterns {
		if cp.re.MatchString(lower) {
			found = append(found, cp.replacement)
			for _, part := range strings.Split(cp.replacement, "-") {
				remaining = strings.ReplaceAll(remaining, part, " ")
			}
		}
	}

	words := wordPattern.FindAllString(remaining, -1)
	counts := make(map[string]int)
	for _, w := range words {
		if stopWords[w] || len(w) <= 2 {
			continue
		}
		counts[w]++
	}

	type weighted struct {
		term   string
		weight int
	}
	var candidates []weighted
	for _, term := range found {
		candidates = append(candidates, weighted{term, 1000})
	}
	terms := make([]string, 0, len(counts))
	for term := range counts {
		terms = append(terms, term)
	}
	sort.Strings(terms)
	for _, term := range terms {
		count := counts[term]
		weight := count
		if len(term) > 6 {
			weight++
		}
		if strings.Contains(term, "-") {
			weight++
		}
		candidates = append(candidates, weighted{term, weight})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].weight > candidates[j].weight
	})

	if len(candidates) == 0 {
		return k.fallback(query)
	}

	limit := k.maxKeywords
	if limit > len(candidates) {
		limit = len(candidates)
	}
	out := make([]string, limit)
	for i := 0; i < limit; i++ {
		out[i] = candidates[i].term
	}
	return strings.Join(out, " ")
}

var fallbackStopPattern = regexp.MustCompile(`(?i)\b(what|how|why|when|where|who|which|allows?|certain|persons?|people|some|many|que|qui|quoi|comment|pourquoi|quand|où|permet|permettent|certaines?|personnes?|is|are|was|were|can|could|should|would|may|might|will|shall|must|est|sont|était|étaient|peut|pourrait|devrait|voudrait|pourra|doit)\b`)

// fallback extracts up to six distinct meaningful words in order of
// appearance, used when pattern matching yields nothing at all.
func (k *KeywordExtractor) fallback(query string) string {
	cleaned := fallbackStopPattern.ReplaceAllString(strings.ToLower(query), " ")
	words := wordPattern.FindAllString(cleaned, -1)

	seen := make(map[string]bool)
	var unique []string
	for _, w := range words {
		if seen[w] {
			continue
		}
		seen[w] = true
		unique = append(unique, w)
		if len(unique) == k.maxKeywords {
			break
		}
	}
	return strings.Join(unique, " ")
}
