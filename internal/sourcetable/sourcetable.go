// Package sourcetable is the canonical URL registry backing a research
// conversation's bibliography (spec §4.E, §3 SourceRecord). Global
// citation IDs are assigned densely, in the order sources are first
// cited rather than the order they were fetched.
package sourcetable

import (
	"sync"
	"time"

	"ire/internal/core"
)

// Table maps canonicalized URLs to SourceRecords and owns global
// citation ID assignment.
type Table struct {
	mu      sync.Mutex
	records map[string]*core.SourceRecord
	nextID  int
}

// New creates an empty source table.
func New() *Table {
	return &Table{
		records: map[string]*core.SourceRecord{},
		nextID:  1,
	}
}

// Register adds or updates the record for url, incrementing
// TimesConsidered. It does not assign a global ID; call Cite for that.
func (t *Table) Register(url, title string, kind core.ContentKind, content string, tokens int) *core.SourceRecord {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[url]
	if !ok {
		rec = &core.SourceRecord{
			URL:             url,
			Title:           title,
			ContentType:     kind,
			Content:         content,
			FirstSeenAt:     time.Now(),
			CitedInSections: map[string]struct{}{},
			TotalTokens:     tokens,
		}
		t.records[url] = rec
	}
	rec.TimesConsidered++
	return rec
}

// Cite marks url as selected within sectionID and assigns it a global
// citation ID on first use, keeping bibliography IDs dense.
func (t *Table) Cite(url, sectionID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[url]
	if !ok {
		return 0
	}
	rec.TimesSelected++
	rec.CitedInSections[sectionID] = struct{}{}
	if rec.GlobalID == 0 {
		rec.GlobalID = t.nextID
		t.nextID++
	}
	return rec.GlobalID
}

// Lookup returns the record for url, if registered.
func (t *Table) Lookup(url string) (*core.SourceRecord, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.records[url]
	return rec, ok
}

// Bibliography returns every cited record (GlobalID != 0), ordered by
// global ID.
func (t *Table) Bibliography() []*core.SourceRecord {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]*core.SourceRecord, 0, t.nextID-1)
	for _, rec := range t.records {
		if rec.GlobalID != 0 {
			out = append(out, rec)
		}
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1].GlobalID > out[j].GlobalID; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

// Len returns the number of distinct URLs ever registered.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.records)
}
