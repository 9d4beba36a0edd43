// Package repeatwindow manages the sliding content window applied when
// the same URL is selected again within a research conversation
// (spec §4.K). Each repeat offsets further into the source so later
// cycles see progressively fresh material instead of the same opening
// paragraphs; once a full pass through the content has been made the
// window itself shrinks, and once content fits entirely within the
// window it re-centers on the most query-relevant chunk instead of
// sliding further.
package repeatwindow

import (
	"context"
	"strings"

	"ire/internal/chunk"
	"ire/internal/core"
)

// Embedder is the embedding dependency used to re-center the window on
// the chunk most similar to the query once content already fits.
type Embedder interface {
	Embed(ctx context.Context, text string) (core.Embedding, error)
}

// shrinkFactor and floorChars implement the "after one full pass,
// shrink by 0.7 per completed cycle, floor 200 tokens" rule; floorChars
// is expressed in the caller's chars-per-token convention (4 chars/token
// matches internal/cycle's conversion) so 200 tokens becomes 800 chars.
const (
	shrinkFactor = 0.7
	floorChars   = 200 * 4
)

type urlState struct {
	count  int
	passes int
}

// Manager tracks how many times each URL has been selected, how many
// full passes through each URL's content have completed, and computes
// the window to apply on the next selection.
type Manager struct {
	states       map[string]*urlState
	windowFactor float64
}

// New creates a Manager with the configured repeat-window shrink factor.
func New(windowFactor float64) *Manager {
	return &Manager{
		states:       map[string]*urlState{},
		windowFactor: windowFactor,
	}
}

func (m *Manager) state(url string) *urlState {
	s, ok := m.states[url]
	if !ok {
		s = &urlState{}
		m.states[url] = s
	}
	return s
}

// windowSize returns maxResultChars, shrunk by shrinkFactor for each
// completed pass and floored at floorChars. Before any pass completes
// (passes == 0) the configured size is used unshrunk, even if it is
// smaller than floorChars; the floor only bounds how far shrinking can
// go, it never inflates an unshrunk window.
func windowSize(maxResultChars, passes int) int {
	if passes == 0 {
		return maxResultChars
	}
	size := float64(maxResultChars)
	for i := 0; i < passes; i++ {
		size *= shrinkFactor
	}
	if int(size) < floorChars {
		return floorChars
	}
	return int(size)
}

// Offset returns the character offset into content that should be used
// for this selection of url, and records the selection. The first
// selection always returns offset 0.
func (m *Manager) Offset(url string, maxResultChars int) int {
	s := m.state(url)
	n := s.count
	s.count++
	if n == 0 {
		return 0
	}
	size := windowSize(maxResultChars, s.passes)
	return int(float64(n) * m.windowFactor * float64(size))
}

// Window returns the slice of content to use for this selection of url.
// If the offset has swept past the end of content, a full pass has
// completed and the window shrinks for subsequent selections. If the
// (possibly shrunk) window is at least as large as content, it
// re-centers on the chunk most similar to query instead of returning
// from the start, using embedder when non-nil; embedder may be nil to
// skip re-centering and simply return content as-is.
func (m *Manager) Window(ctx context.Context, embedder Embedder, url, query, content string, maxResultChars int) string {
	s := m.state(url)
	offset := m.Offset(url, maxResultChars)
	size := windowSize(maxResultChars, s.passes)

	if offset >= len(content) && len(content) > 0 {
		s.passes++
		size = windowSize(maxResultChars, s.passes)
		offset = 0
	}

	if len(content) <= size {
		if embedder != nil && strings.TrimSpace(query) != "" {
			if recentered, ok := recenterBySimilarity(ctx, embedder, query, content, size); ok {
				return recentered
			}
		}
		return content
	}

	end := offset + size
	if end > len(content) {
		end = len(content)
		offset = end - size
		if offset < 0 {
			offset = 0
		}
	}
	return content[offset:end]
}

// TimesSeen returns how many times url has been windowed so far.
func (m *Manager) TimesSeen(url string) int {
	s, ok := m.states[url]
	if !ok {
		return 0
	}
	return s.count
}

// recenterBySimilarity splits content into paragraph chunks, embeds
// query and each chunk, and returns up to size chars centered on the
// chunk with highest cosine similarity to query, roughly half the
// window on either side.
func recenterBySimilarity(ctx context.Context, embedder Embedder, query, content string, size int) (string, bool) {
	chunks := chunk.Split(content, 3, chunk.Options{})
	if len(chunks) == 0 {
		return "", false
	}
	queryEmb, err := embedder.Embed(ctx, query)
	if err != nil || queryEmb == nil {
		return "", false
	}

	bestIdx := -1
	bestScore := -2.0
	offsets := make([]int, len(chunks))
	pos := 0
	for i, c := range chunks {
		if idx := strings.Index(content[pos:], c); idx >= 0 {
			pos += idx
		}
		offsets[i] = pos
		pos += len(c)

		emb, err := embedder.Embed(ctx, c)
		if err != nil || emb == nil {
			continue
		}
		score := queryEmb.CosineSimilarity(emb)
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	if bestIdx < 0 {
		return "", false
	}

	center := offsets[bestIdx] + len(chunks[bestIdx])/2
	start := center - size/2
	if start < 0 {
		start = 0
	}
	end := start + size
	if end > len(content) {
		end = len(content)
		start = end - size
		if start < 0 {
			start = 0
		}
	}
	return content[start:end], true
}
