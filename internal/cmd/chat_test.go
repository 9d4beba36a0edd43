package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"ire/internal/core"
)

func TestBulletOutlineListsTopicsAndSubtopics(t *testing.T) {
	outline := core.Outline{Nodes: []core.OutlineNode{
		{Topic: "background", Subtopics: []string{"history", "motivation"}},
		{Topic: "tradeoffs"},
	}}

	out := bulletOutline(outline)
	assert.Contains(t, out, "- background\n")
	assert.Contains(t, out, "  - history\n")
	assert.Contains(t, out, "  - motivation\n")
	assert.Contains(t, out, "- tradeoffs\n")
}
