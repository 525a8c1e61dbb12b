// Package paths derives the stable, filesystem-level identity of a project:
// its hash, its state files, and the canonical form of diagnostic paths.
package paths

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// ProjectHash returns the stable identity of a project root. Every table in
// the store and every per-project artifact (socket, PID file) is keyed by it.
// The hash is computed over the cleaned absolute path so that trailing
// slashes and relative invocations map to the same project.
func ProjectHash(projectRoot string) string {
	abs, err := filepath.Abs(projectRoot)
	if err != nil {
		abs = projectRoot
	}
	sum := blake2b.Sum256([]byte(filepath.Clean(abs)))
	return hex.EncodeToString(sum[:16])
}

// StateDir returns the directory holding the database, sockets, and PID
// files. Honors XDG_STATE_HOME, falls back to ~/.local/state/lspcli.
func StateDir() (string, error) {
	if dir := os.Getenv("LSPCLI_STATE_DIR"); dir != "" {
		return dir, nil
	}
	if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
		return filepath.Join(xdg, "lspcli"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".local", "state", "lspcli"), nil
}

// EnsureStateDir creates the state directory if needed and returns it
func EnsureStateDir() (string, error) {
	dir, err := StateDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create state directory: %w", err)
	}
	return dir, nil
}

// SocketPath returns the deterministic socket path for a project's
// analysis server.
func SocketPath(stateDir, projectHash string) string {
	return filepath.Join(stateDir, fmt.Sprintf("server-%s.sock", projectHash))
}

// PIDFilePath returns the deterministic PID file path for a project's
// analysis server.
func PIDFilePath(stateDir, projectHash string) string {
	return filepath.Join(stateDir, fmt.Sprintf("server-%s.pid", projectHash))
}

// CanonicalizePath converts a diagnostic's file path into its canonical
// form for identity hashing:
//   - paths inside the project root become root-relative with forward slashes
//   - paths outside the project root keep their absolute form
func CanonicalizePath(path string, projectRoot string) string {
	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(projectRoot, path)
	}
	abs = filepath.Clean(abs)

	root, err := filepath.Abs(projectRoot)
	if err != nil {
		root = projectRoot
	}

	rel, err := filepath.Rel(filepath.Clean(root), abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(abs)
	}
	return filepath.ToSlash(rel)
}
