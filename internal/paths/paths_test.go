package paths

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestProjectHashStability(t *testing.T) {
	h1 := ProjectHash("/home/dev/project")
	h2 := ProjectHash("/home/dev/project/")
	h3 := ProjectHash("/home/dev/project/../project")

	if h1 != h2 {
		t.Errorf("Trailing slash changed hash: %s vs %s", h1, h2)
	}
	if h1 != h3 {
		t.Errorf("Unclean path changed hash: %s vs %s", h1, h3)
	}

	if len(h1) != 32 {
		t.Errorf("Expected 32 hex chars, got %d", len(h1))
	}

	other := ProjectHash("/home/dev/other")
	if h1 == other {
		t.Error("Distinct roots produced the same hash")
	}
}

func TestSocketAndPIDPaths(t *testing.T) {
	hash := ProjectHash("/home/dev/project")

	sock := SocketPath("/tmp/state", hash)
	pid := PIDFilePath("/tmp/state", hash)

	if !strings.HasSuffix(sock, ".sock") {
		t.Errorf("Expected .sock suffix, got %s", sock)
	}
	if !strings.HasSuffix(pid, ".pid") {
		t.Errorf("Expected .pid suffix, got %s", pid)
	}
	if !strings.Contains(sock, hash) || !strings.Contains(pid, hash) {
		t.Error("Expected project hash in derived paths")
	}
}

func TestStateDirOverride(t *testing.T) {
	t.Setenv("LSPCLI_STATE_DIR", "/tmp/custom-state")

	dir, err := StateDir()
	if err != nil {
		t.Fatalf("StateDir failed: %v", err)
	}
	if dir != "/tmp/custom-state" {
		t.Errorf("Expected override dir, got %s", dir)
	}
}

func TestStateDirXDG(t *testing.T) {
	t.Setenv("LSPCLI_STATE_DIR", "")
	t.Setenv("XDG_STATE_HOME", "/tmp/xdg-state")

	dir, err := StateDir()
	if err != nil {
		t.Fatalf("StateDir failed: %v", err)
	}
	if dir != filepath.Join("/tmp/xdg-state", "lspcli") {
		t.Errorf("Expected XDG-based dir, got %s", dir)
	}
}

func TestCanonicalizePathInsideRoot(t *testing.T) {
	got := CanonicalizePath("/home/dev/project/src/app.ts", "/home/dev/project")
	if got != "src/app.ts" {
		t.Errorf("Expected root-relative path, got %s", got)
	}

	// Relative inputs resolve against the root.
	got = CanonicalizePath("src/app.ts", "/home/dev/project")
	if got != "src/app.ts" {
		t.Errorf("Expected root-relative path for relative input, got %s", got)
	}
}

func TestCanonicalizePathOutsideRoot(t *testing.T) {
	got := CanonicalizePath("/usr/lib/node_modules/typescript/lib/lib.d.ts", "/home/dev/project")
	if got != "/usr/lib/node_modules/typescript/lib/lib.d.ts" {
		t.Errorf("Expected absolute path preserved, got %s", got)
	}
}
