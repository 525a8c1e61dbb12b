package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/amondnet/claude-lsp-cli-sub001/internal/export"
)

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the project's diagnostic state as a compressed bundle",
	Long: `Export the project's diagnostic history and last-report record as a
zstd-compressed JSON bundle for troubleshooting.

Example:
  lspcli export --out lspcli-bundle.json.zst`,
	Run: runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "lspcli-bundle.json.zst", "Output file path")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) {
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

	f, err := os.Create(exportOut)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating output file: %v\n", err)
		os.Exit(1)
	}

	if err := export.WriteBundle(env.db, projectRoot, f); err != nil {
		f.Close()
		fmt.Fprintf(os.Stderr, "Error writing bundle: %v\n", err)
		os.Exit(1)
	}
	if err := f.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing bundle: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Bundle written to %s\n", exportOut)
}
