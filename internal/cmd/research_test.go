package cmd

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"ire/internal/synthesis"
)

func TestSanitizeFilenameReplacesUnsafeCharacters(t *testing.T) {
	assert.Equal(t, "a-b-c", sanitizeFilename("a/b:c"))
}

func TestSanitizeFilenameCollapsesRepeatedHyphens(t *testing.T) {
	assert.Equal(t, "a-b", sanitizeFilename("a   b"))
}

func TestSanitizeFilenameTrimsAndCapsLength(t *testing.T) {
	long := strings.Repeat("x", 80)
	out := sanitizeFilename(long)
	assert.Len(t, out, 50)
}

func TestRenderReportIncludesSectionsAndBibliography(t *testing.T) {
	report := synthesis.Report{
		Sections: []synthesis.Section{
			{Topic: "background", Body: "some body text [1]"},
		},
		Bibliography: []synthesis.BibliographyEntry{
			{GlobalID: 1, URL: "https://example.com", Title: "Example"},
		},
	}

	out := renderReport("what is x", report)
	assert.Contains(t, out, "Research Report: what is x")
	assert.Contains(t, out, "background")
	assert.Contains(t, out, "some body text [1]")
	assert.Contains(t, out, "[1] Example — https://example.com")
}
