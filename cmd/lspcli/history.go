package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/amondnet/claude-lsp-cli-sub001/internal/diagnostics"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Manage stored diagnostic history",
}

var historyCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete history rows past the retention window",
	Run:   runHistoryCleanup,
}

func init() {
	historyCmd.AddCommand(historyCleanupCmd)
	rootCmd.AddCommand(historyCmd)
}

func runHistoryCleanup(cmd *cobra.Command, args []string) {
	env, err := openEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer env.close()

	projectRoot, err := resolveProjectRoot()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	engine := diagnostics.NewEngine(env.db, env.cfg, env.logger)
	removed, err := engine.Cleanup(projectRoot)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Removed %d expired history row(s).\n", removed)
}
