// Package cmd implements the engine's command-line surface: the
// research (non-interactive) and chat (interactive) entry points plus
// the knowledge-base discovery flags named in spec §6, built on cobra
// the way the teacher's cmd/handlers package wires its root command.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"ire/internal/config"
	"ire/internal/knowledge"
)

var (
	cfgFile string
	knName  string
	knList  bool
)

// NewRootCmd builds the root command and attaches every subcommand.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ire",
		Short: "Iterative research engine",
		Long: `ire runs a closed-loop research conversation: it drafts an
outline from an opening question, repeatedly searches and compresses
results to fill gaps in that outline, and synthesizes a cited report
once the topics are covered.

Examples:
  ire research "how do vector databases handle updates"
  ire chat "compare raft and paxos for leader election"
  ire --kn-list`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if knList {
				return listKnowledgeBases()
			}
			return cmd.Help()
		},
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: env vars and built-in defaults)")
	rootCmd.PersistentFlags().StringVar(&knName, "kn", "", "knowledge base collection name (default: config default_name)")
	rootCmd.Flags().BoolVar(&knList, "kn-list", false, "list known knowledge base collections and exit")

	rootCmd.AddCommand(NewResearchCmd())
	rootCmd.AddCommand(NewChatCmd())

	return rootCmd
}

// Execute runs the root command, exiting the process with status 1 on
// any returned error (spec §6's CLI exit-code surface).
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initConfig() {
	if _, err := config.Load(cfgFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}
}

// knowledgeName resolves the active collection name: the --kn flag if
// given, otherwise the configured default.
func knowledgeName(cfg *config.Config) string {
	if knName != "" {
		return knName
	}
	return cfg.Knowledge.DefaultName
}

func listKnowledgeBases() error {
	cfg := config.Get()
	names, err := knowledge.ListCollections(cfg.Knowledge.RootDir)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		fmt.Println("(no knowledge bases found)")
		return nil
	}
	for _, n := range names {
		fmt.Println(n)
	}
	return nil
}
