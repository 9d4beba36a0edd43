package cycle

import (
	"strings"

	"ire/internal/core"
)

// parseLines extracts up to max non-empty lines from an LLM reply,
// stripping common list markers ("1.", "-", "*").
func parseLines(reply string, max int) []string {
	var out []string
	for _, line := range strings.Split(reply, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "0123456789.-*) ")
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out = append(out, line)
		if len(out) >= max {
			break
		}
	}
	return out
}

// deterministicQueries is the fallback used when the LLM is unreachable:
// a handful of angle-qualified variants of the original question.
func deterministicQueries(question string, n int) []string {
	angles := []string{
		question,
		question + " overview",
		question + " recent developments",
		question + " statistics",
		question + " criticism",
		question + " case study",
		question + " history",
		question + " future outlook",
	}
	if n > len(angles) {
		n = len(angles)
	}
	return angles[:n]
}

// deterministicReplacementTopics is the fallback used when replacement-
// topic generation fails: a deeper-angle variant of each kept topic,
// cycling through the kept list if more replacements are needed than
// there are kept topics.
func deterministicReplacementTopics(kept []string, n int) []string {
	if len(kept) == 0 {
		return nil
	}
	angles := []string{"in depth", "counterarguments", "recent developments", "practical implications"}
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		base := kept[i%len(kept)]
		angle := angles[i%len(angles)]
		out = append(out, base+" "+angle)
	}
	return out
}

// parseOutline parses the LLM's "TOPIC: name" / "  - subtopic" format
// into an Outline, tolerating minor formatting drift.
func parseOutline(reply string) core.Outline {
	var outline core.Outline
	var current *core.OutlineNode

	for _, raw := range strings.Split(reply, "\n") {
		line := strings.TrimRight(raw, " \t")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		if strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t") || strings.HasPrefix(trimmed, "-") {
			sub := strings.TrimSpace(strings.TrimPrefix(trimmed, "-"))
			sub = strings.TrimSpace(sub)
			if sub != "" && current != nil {
				current.Subtopics = append(current.Subtopics, sub)
			}
			continue
		}

		topic := trimmed
		if idx := strings.Index(strings.ToUpper(topic), "TOPIC:"); idx == 0 {
			topic = strings.TrimSpace(topic[len("TOPIC:"):])
		}
		node := core.OutlineNode{Topic: topic}
		outline.Nodes = append(outline.Nodes, node)
		current = &outline.Nodes[len(outline.Nodes)-1]
	}
	return outline
}

// deterministicOutline is the fallback used when outline generation
// fails entirely: a single top-level node covering the raw question.
func deterministicOutline(question string) core.Outline {
	return core.Outline{Nodes: []core.OutlineNode{
		{Topic: question, Subtopics: []string{"background", "current state", "open questions"}},
	}}
}

// parseClassification parses "topic: status" lines into a status map,
// defaulting unrecognized or missing topics to partial so they remain
// active rather than being silently dropped.
func parseClassification(reply string, active []string) map[string]core.TopicStatus {
	out := make(map[string]core.TopicStatus, len(active))
	for _, topic := range active {
		out[topic] = core.TopicPartial
	}

	for _, line := range strings.Split(reply, "\n") {
		line = strings.TrimSpace(line)
		idx := strings.LastIndex(line, ":")
		if idx < 0 {
			continue
		}
		topicPart := strings.TrimSpace(line[:idx])
		statusPart := strings.ToLower(strings.TrimSpace(line[idx+1:]))

		matched := matchTopic(topicPart, active)
		if matched == "" {
			continue
		}

		switch {
		case strings.Contains(statusPart, "complete"):
			out[matched] = core.TopicCompleted
		case strings.Contains(statusPart, "irrelevant"):
			out[matched] = core.TopicIrrelevant
		case strings.Contains(statusPart, "partial"):
			out[matched] = core.TopicPartial
		}
	}
	return out
}

// matchTopic finds the active topic whose text best matches a
// (possibly truncated or reformatted) LLM-produced label.
func matchTopic(label string, active []string) string {
	lowerLabel := strings.ToLower(label)
	for _, topic := range active {
		if strings.EqualFold(topic, label) {
			return topic
		}
	}
	for _, topic := range active {
		lowerTopic := strings.ToLower(topic)
		if strings.Contains(lowerLabel, lowerTopic) || strings.Contains(lowerTopic, lowerLabel) {
			return topic
		}
	}
	return ""
}
