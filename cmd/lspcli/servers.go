package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/amondnet/claude-lsp-cli-sub001/internal/checkers"
	"github.com/amondnet/claude-lsp-cli-sub001/internal/paths"
	"github.com/amondnet/claude-lsp-cli-sub001/internal/registry"
)

var serversCmd = &cobra.Command{
	Use:   "servers",
	Short: "Inspect and manage tracked analysis servers",
}

var startLanguages []string

var serversStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Launch and register an analysis server for a project",
	Long: `Launch the configured analysis server for the project and register it.
The server command comes from checkers.yaml in the state directory (or the
built-in defaults); it is told its socket path and project root through the
LSPCLI_SOCKET and LSPCLI_PROJECT environment variables. Starting a server
may evict the oldest running servers if the count limit is exceeded.`,
	Run: runServersStart,
}

var serversListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active analysis servers",
	Run:   runServersList,
}

var serversStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate server statistics",
	Run:   runServersStats,
}

var serversStopCmd = &cobra.Command{
	Use:   "stop [project-hash]",
	Short: "Stop the analysis server for a project",
	Args:  cobra.MaximumNArgs(1),
	Run:   runServersStop,
}

var serversCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Reconcile server records against live processes",
	Long: `Probe every active server record: records whose process has exited are
marked stopped, and records whose process is alive but silent past the
heartbeat limit are marked unhealthy. The server-count limit is enforced
afterwards by terminating the oldest servers over the cap.`,
	Run: runServersCleanup,
}

func init() {
	serversStartCmd.Flags().StringSliceVar(&startLanguages, "language", nil,
		"Languages the server covers (default: all enabled checkers)")
	serversCmd.AddCommand(serversStartCmd)
	serversCmd.AddCommand(serversListCmd)
	serversCmd.AddCommand(serversStatsCmd)
	serversCmd.AddCommand(serversStopCmd)
	serversCmd.AddCommand(serversCleanupCmd)
	rootCmd.AddCommand(serversCmd)
}

func runServersStart(cmd *cobra.Command, args []string) {
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

	defs, err := checkers.Load(filepath.Join(env.stateDir, "checkers.yaml"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	languages := startLanguages
	if len(languages) == 0 {
		languages = defs.Languages()
	}
	if len(languages) == 0 {
		fmt.Fprintln(os.Stderr, "Error: no enabled checkers")
		os.Exit(1)
	}

	chk, ok := defs.Checkers[languages[0]]
	if !ok || chk.Disabled {
		fmt.Fprintf(os.Stderr, "Error: no enabled checker for language %q\n", languages[0])
		os.Exit(1)
	}

	projectHash := paths.ProjectHash(projectRoot)
	socketPath := paths.SocketPath(env.stateDir, projectHash)
	os.Remove(socketPath) // stale socket from a previous run

	proc := exec.Command(chk.Command, chk.Args...)
	proc.Dir = projectRoot
	proc.Env = append(os.Environ(),
		"LSPCLI_SOCKET="+socketPath,
		"LSPCLI_PROJECT="+projectRoot,
	)
	if err := proc.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Error starting %s: %v\n", chk.Command, err)
		os.Exit(1)
	}

	pid := proc.Process.Pid
	pidFile := paths.PIDFilePath(env.stateDir, projectHash)
	if err := os.WriteFile(pidFile, []byte(strconv.Itoa(pid)+"\n"), 0644); err != nil {
		env.logger.Warn("Failed to write PID file", map[string]interface{}{
			"path":  pidFile,
			"error": err.Error(),
		})
	}
	proc.Process.Release()

	reg := registry.New(env.db, env.cfg, env.logger)
	if _, err := reg.RegisterServer(projectRoot, languages, pid, socketPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if _, err := reg.EnforceServerLimit(env.cfg.Registry.MaxServers); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Started %s (pid %d) for %s\n", chk.Command, pid, projectRoot)
}

func runServersList(cmd *cobra.Command, args []string) {
	env, err := openEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer env.close()

	reg := registry.New(env.db, env.cfg, env.logger)
	servers, err := reg.GetAllActiveServers()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if len(servers) == 0 {
		fmt.Println("No active servers.")
		return
	}

	for _, s := range servers {
		age := time.Since(time.UnixMilli(s.StartTime)).Round(time.Second)
		fmt.Printf("%-10s  pid=%-7d  up=%-10s  %s\n", s.Status, s.PID, age, s.ProjectRoot)
	}
}

func runServersStats(cmd *cobra.Command, args []string) {
	env, err := openEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer env.close()

	reg := registry.New(env.db, env.cfg, env.logger)
	stats, err := reg.GetStatistics()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(stats); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding output: %v\n", err)
		os.Exit(1)
	}
}

func runServersStop(cmd *cobra.Command, args []string) {
	env, err := openEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer env.close()

	var projectHash, label string
	if len(args) == 1 {
		projectHash = args[0]
		label = projectHash
	} else {
		projectRoot, err := resolveProjectRoot()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		projectHash = paths.ProjectHash(projectRoot)
		label = projectRoot
	}

	reg := registry.New(env.db, env.cfg, env.logger)
	if err := reg.StopServer(projectHash); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Stopped server for %s\n", label)
}

func runServersCleanup(cmd *cobra.Command, args []string) {
	env, err := openEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer env.close()

	reg := registry.New(env.db, env.cfg, env.logger)

	cleaned, err := reg.CleanupDeadServers()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	evicted, err := reg.EnforceServerLimit(env.cfg.Registry.MaxServers)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Marked %d dead server(s) stopped, evicted %d over the limit.\n", cleaned, evicted)
}
