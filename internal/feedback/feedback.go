// Package feedback parses the user's AWAITING_FEEDBACK turn: explicit
// `/k`/`/r` slash commands naming topics to keep or remove, or a
// natural-language message the engine classifies the same way via an
// LLM call, mirroring the classifyTopics LLM-classification pattern
// internal/cycle uses for its own topic analysis.
package feedback

import (
	"context"
	"fmt"
	"math"
	"strings"

	"ire/internal/llm"
)

// Backend is the subset of the chat-completion client used for
// natural-language feedback classification.
type Backend interface {
	Complete(ctx context.Context, model string, messages []llm.ChatMessage, temperature float32) (string, error)
}

// Decision is the parsed result of one feedback turn.
type Decision struct {
	Kept             []string
	Removed          []string
	ReplacementCount int
}

// Process parses message against the current outline topics. Messages
// starting with "/k" or "/r" are treated as explicit comma-separated
// topic lists; anything else is classified by the LLM backend.
func Process(ctx context.Context, backend Backend, model string, message string, topics []string) (Decision, error) {
	trimmed := strings.TrimSpace(message)

	switch {
	case strings.HasPrefix(trimmed, "/k"):
		kept := parseTopicList(strings.TrimPrefix(trimmed, "/k"), topics)
		removed := complement(topics, kept)
		return finalize(kept, removed), nil
	case strings.HasPrefix(trimmed, "/r"):
		removed := parseTopicList(strings.TrimPrefix(trimmed, "/r"), topics)
		kept := complement(topics, removed)
		return finalize(kept, removed), nil
	default:
		return classifyNaturalLanguage(ctx, backend, model, trimmed, topics)
	}
}

// parseTopicList splits a comma-separated fragment and matches each
// piece against the known topic list, tolerating partial matches.
func parseTopicList(fragment string, topics []string) []string {
	var out []string
	for _, piece := range strings.Split(fragment, ",") {
		piece = strings.TrimSpace(piece)
		if piece == "" {
			continue
		}
		if match := matchTopic(piece, topics); match != "" {
			out = append(out, match)
		}
	}
	return out
}

func matchTopic(label string, topics []string) string {
	lowerLabel := strings.ToLower(label)
	for _, t := range topics {
		if strings.EqualFold(t, label) {
			return t
		}
	}
	for _, t := range topics {
		lowerTopic := strings.ToLower(t)
		if strings.Contains(lowerLabel, lowerTopic) || strings.Contains(lowerTopic, lowerLabel) {
			return t
		}
	}
	return ""
}

func complement(all, subset []string) []string {
	excluded := make(map[string]bool, len(subset))
	for _, s := range subset {
		excluded[s] = true
	}
	var out []string
	for _, t := range all {
		if !excluded[t] {
			out = append(out, t)
		}
	}
	return out
}

func classifyNaturalLanguage(ctx context.Context, backend Backend, model, message string, topics []string) (Decision, error) {
	prompt := fmt.Sprintf(
		"Current research topics:\n%s\n\nUser feedback: %q\n\nFor each topic, decide whether the user wants to keep it or remove it based on their feedback. If the feedback doesn't mention a topic, keep it. Reply with one line per topic: \"topic name: keep\" or \"topic name: remove\".",
		bulletList(topics), message,
	)
	reply, err := backend.Complete(ctx, model, []llm.ChatMessage{{Role: "user", Content: prompt}}, 0.1)
	if err != nil {
		return finalize(topics, nil), err
	}

	decisions := parseKeepRemove(reply, topics)
	var kept, removed []string
	for _, t := range topics {
		if decisions[t] == "remove" {
			removed = append(removed, t)
		} else {
			kept = append(kept, t)
		}
	}
	return finalize(kept, removed), nil
}

func parseKeepRemove(reply string, topics []string) map[string]string {
	out := make(map[string]string, len(topics))
	for _, line := range strings.Split(reply, "\n") {
		line = strings.TrimSpace(line)
		idx := strings.LastIndex(line, ":")
		if idx < 0 {
			continue
		}
		label := strings.TrimSpace(line[:idx])
		verdict := strings.ToLower(strings.TrimSpace(line[idx+1:]))
		if match := matchTopic(label, topics); match != "" {
			if strings.Contains(verdict, "remove") {
				out[match] = "remove"
			} else {
				out[match] = "keep"
			}
		}
	}
	return out
}

func bulletList(items []string) string {
	var b strings.Builder
	for _, item := range items {
		fmt.Fprintf(&b, "- %s\n", item)
	}
	return b.String()
}

// finalize computes the replacement-topic count: ceil(0.8 * len(removed)),
// the number of fresh topics the controller should search for in the
// grouped refinement pass that follows feedback (spec §4.O).
func finalize(kept, removed []string) Decision {
	count := int(math.Ceil(0.8 * float64(len(removed))))
	return Decision{Kept: kept, Removed: removed, ReplacementCount: count}
}
