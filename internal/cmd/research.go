package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"ire/internal/config"
	"ire/internal/core"
	"ire/internal/cycle"
	"ire/internal/engine"
	"ire/internal/synthesis"
)

// nominalCompressionRatio is the stepped-compression baseline applied to
// the older half of a conversation's result history (spec §4.O); the
// newer half compresses one level more aggressively. Unset (0) falls
// through to internal/compress's own 0.5 default, so this just names
// that default explicitly for the CLI's sake.
const nominalCompressionRatio = 0.5

// NewResearchCmd builds the non-interactive research subcommand: it
// runs a conversation start to finish and prints the synthesized
// report, grounded on the teacher's handleTopicResearch (always
// completing in one shot, no feedback pause).
func NewResearchCmd() *cobra.Command {
	var outputDir string

	researchCmd := &cobra.Command{
		Use:   "research [question]",
		Short: "Run a research conversation to completion and print the report",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResearch(strings.Join(args, " "), outputDir)
		},
	}
	researchCmd.Flags().StringVar(&outputDir, "output", "", "directory to write the report to (default: print to stdout)")
	return researchCmd
}

func runResearch(question, outputDir string) error {
	cfg := config.Get()
	cfg.Knowledge.DefaultName = knowledgeName(cfg)

	sess := cycle.NewSession(uuid.NewString(), uuid.NewString(), question, cfg.IRE.RepeatWindowFactor)

	rt, err := engine.Build(cfg, sess.Sources, false)
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer rt.Close()

	ctx := context.Background()

	fmt.Fprintf(os.Stderr, "researching: %s\n", question)
	if err := rt.Controller.Run(ctx, sess); err != nil {
		return fmt.Errorf("run research cycles: %w", err)
	}

	if sess.State.Status == core.StatusCompressing {
		if err := rt.Controller.Compress(ctx, sess, nominalCompressionRatio); err != nil {
			return fmt.Errorf("compress results: %w", err)
		}
	}

	report, err := rt.Controller.Synthesize(ctx, sess)
	if err != nil {
		return fmt.Errorf("synthesize report: %w", err)
	}

	rendered := renderReport(question, report)

	if outputDir == "" {
		fmt.Println(rendered)
		return nil
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	name := fmt.Sprintf("research-%s-%s.md", sanitizeFilename(question), time.Now().Format("2006-01-02-15-04"))
	path := filepath.Join(outputDir, name)
	if err := os.WriteFile(path, []byte(rendered), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	fmt.Fprintf(os.Stderr, "report saved to: %s\n", path)
	return nil
}

// renderReport builds the markdown document for a synthesized report,
// grounded on the teacher's generateResearchReport string-builder.
func renderReport(question string, report synthesis.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Research Report: %s\n\n", question)
	fmt.Fprintf(&b, "**Generated:** %s\n\n", time.Now().Format("2006-01-02 15:04 MST"))

	for _, section := range report.Sections {
		fmt.Fprintf(&b, "## %s\n\n%s\n\n", section.Topic, section.Body)
	}

	b.WriteString("## Bibliography\n\n")
	for _, entry := range report.Bibliography {
		fmt.Fprintf(&b, "[%d] %s — %s\n", entry.GlobalID, entry.Title, entry.URL)
	}
	return b.String()
}

// sanitizeFilename strips characters unsafe for filenames, collapses
// repeated hyphens, and caps the result at 50 characters.
func sanitizeFilename(name string) string {
	unsafe := []string{"/", "\\", ":", "*", "?", "\"", "<", ">", "|", " "}
	clean := name
	for _, ch := range unsafe {
		clean = strings.ReplaceAll(clean, ch, "-")
	}
	for strings.Contains(clean, "--") {
		clean = strings.ReplaceAll(clean, "--", "-")
	}
	clean = strings.Trim(clean, "-")
	if len(clean) > 50 {
		clean = clean[:50]
	}
	return clean
}
