package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/amondnet/claude-lsp-cli-sub001/internal/coordinator"
	"github.com/amondnet/claude-lsp-cli-sub001/internal/diagnostics"
	"github.com/amondnet/claude-lsp-cli-sub001/internal/paths"
	"github.com/amondnet/claude-lsp-cli-sub001/internal/registry"
)

var (
	diagnosticsSession string
	diagnosticsWait    time.Duration
)

var diagnosticsCmd = &cobra.Command{
	Use:   "diagnostics",
	Short: "Collect and deduplicate project diagnostics",
	Long: `Collect diagnostics from the project's analysis server, deduplicate them
against recent history, and print the current set as JSON on stdout.

Concurrent invocations for the same project share a single collection:
a caller arriving while another collection is young attaches to it
instead of triggering a second round-trip to the server.

Example:
  lspcli diagnostics --project /path/to/repo
  lspcli diagnostics --session my-session-id`,
	Run: runDiagnostics,
}

func init() {
	diagnosticsCmd.Flags().StringVar(&diagnosticsSession, "session", "",
		"Session identifier recorded with the results (default: generated)")
	diagnosticsCmd.Flags().DurationVar(&diagnosticsWait, "wait", 0,
		"Overall deadline for the request (default: the configured request max age)")
	rootCmd.AddCommand(diagnosticsCmd)
}

// diagnosticsOutput is the stdout payload consumed by calling tools
type diagnosticsOutput struct {
	Project     string                   `json:"project"`
	SessionID   string                   `json:"sessionId"`
	Count       int                      `json:"count"`
	Diagnostics []diagnostics.Diagnostic `json:"diagnostics"`
}

func runDiagnostics(cmd *cobra.Command, args []string) {
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

	sessionID := diagnosticsSession
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	reg := registry.New(env.db, env.cfg, env.logger)
	engine := diagnostics.NewEngine(env.db, env.cfg, env.logger)
	collector := coordinator.NewServerCollector(reg, env.logger)

	coord := coordinator.New(engine, collector, env.cfg, env.logger)
	defer coord.Close()

	wait := diagnosticsWait
	if wait <= 0 {
		wait = env.cfg.RequestMaxAge()
	}
	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()

	diags, err := coord.RequestDiagnostics(ctx, paths.ProjectHash(projectRoot), projectRoot, sessionID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	out := diagnosticsOutput{
		Project:     projectRoot,
		SessionID:   sessionID,
		Count:       len(diags),
		Diagnostics: diags,
	}
	if out.Diagnostics == nil {
		out.Diagnostics = []diagnostics.Diagnostic{}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding output: %v\n", err)
		os.Exit(1)
	}
}
