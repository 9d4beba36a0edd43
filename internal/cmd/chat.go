package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"ire/internal/chattui"
	"ire/internal/config"
	"ire/internal/core"
	"ire/internal/cycle"
	"ire/internal/engine"
)

// NewChatCmd builds the interactive chat subcommand: it runs the same
// conversation as research, but pauses at AWAITING_FEEDBACK to let the
// user keep/remove outline topics before resuming (spec §4.O).
func NewChatCmd() *cobra.Command {
	chatCmd := &cobra.Command{
		Use:   "chat [question]",
		Short: "Run an interactive research conversation with outline feedback",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(strings.Join(args, " "))
		},
	}
	return chatCmd
}

func runChat(question string) error {
	cfg := config.Get()
	cfg.Knowledge.DefaultName = knowledgeName(cfg)

	sess := cycle.NewSession(uuid.NewString(), uuid.NewString(), question, cfg.IRE.RepeatWindowFactor)

	rt, err := engine.Build(cfg, sess.Sources, true)
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer rt.Close()

	ctx := context.Background()

	for {
		if err := rt.Controller.Run(ctx, sess); err != nil {
			return fmt.Errorf("run research cycles: %w", err)
		}

		switch sess.State.Status {
		case core.StatusAwaitingFeedback:
			feedback, ok, err := chattui.ReviewOutline(bulletOutline(sess.State.Outline))
			if err != nil {
				return fmt.Errorf("collect feedback: %w", err)
			}
			if !ok {
				fmt.Fprintln(os.Stderr, "cancelled")
				return nil
			}
			if strings.TrimSpace(feedback) == "" {
				sess.State.Status = core.StatusCycling
				continue
			}
			if err := rt.Controller.ApplyFeedback(ctx, sess, feedback); err != nil {
				return fmt.Errorf("apply feedback: %w", err)
			}
		case core.StatusCompressing:
			if err := rt.Controller.Compress(ctx, sess, nominalCompressionRatio); err != nil {
				return fmt.Errorf("compress results: %w", err)
			}
			report, err := rt.Controller.Synthesize(ctx, sess)
			if err != nil {
				return fmt.Errorf("synthesize report: %w", err)
			}
			fmt.Println(renderReport(question, report))
			return nil
		default:
			return fmt.Errorf("unexpected research status: %s", sess.State.Status)
		}
	}
}

func bulletOutline(outline core.Outline) string {
	var b strings.Builder
	for _, node := range outline.Nodes {
		fmt.Fprintf(&b, "- %s\n", node.Topic)
		for _, sub := range node.Subtopics {
			fmt.Fprintf(&b, "  - %s\n", sub)
		}
	}
	return b.String()
}
