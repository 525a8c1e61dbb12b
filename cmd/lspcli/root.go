package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/amondnet/claude-lsp-cli-sub001/internal/version"
)

var (
	// projectFlag is the CLI --project flag value
	projectFlag string
)

var rootCmd = &cobra.Command{
	Use:   "lspcli",
	Short: "lspcli - analysis-server diagnostics for coding agents",
	Long: `lspcli tracks per-project analysis servers, collects their diagnostics,
and deduplicates the results so that a calling agent only sees findings
it has not already been told about.`,
	Version: version.Version,
}

func init() {
	rootCmd.SetVersionTemplate("lspcli version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&projectFlag, "project", "",
		"Project root directory (default: current directory)")
}

// resolveProjectRoot returns the absolute project root from the --project
// flag, falling back to the working directory.
func resolveProjectRoot() (string, error) {
	root := projectFlag
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("failed to determine working directory: %w", err)
		}
		root = wd
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("failed to resolve project root: %w", err)
	}
	return abs, nil
}
