package export

import (
	"bytes"
	"testing"

	"github.com/amondnet/claude-lsp-cli-sub001/internal/config"
	"github.com/amondnet/claude-lsp-cli-sub001/internal/diagnostics"
	"github.com/amondnet/claude-lsp-cli-sub001/internal/logging"
	"github.com/amondnet/claude-lsp-cli-sub001/internal/paths"
	"github.com/amondnet/claude-lsp-cli-sub001/internal/storage"
)

func TestWriteAndReadBundle(t *testing.T) {
	db, err := storage.Open(t.TempDir(), logging.Discard())
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	root := "/proj/demo"
	engine := diagnostics.NewEngine(db, config.DefaultConfig(), logging.Discard())
	diags := []diagnostics.Diagnostic{
		{File: "a.ts", Line: 1, Column: 1, Severity: diagnostics.SeverityError, Message: "X", Source: "tsc"},
		{File: "b.ts", Line: 3, Column: 7, Severity: diagnostics.SeverityWarning, Message: "Y"},
	}
	if _, err := engine.ProcessDiagnostics(root, diags, "session-1"); err != nil {
		t.Fatalf("ProcessDiagnostics failed: %v", err)
	}

	var buf bytes.Buffer
	if err := WriteBundle(db, root, &buf); err != nil {
		t.Fatalf("WriteBundle failed: %v", err)
	}

	bundle, err := ReadBundle(&buf)
	if err != nil {
		t.Fatalf("ReadBundle failed: %v", err)
	}

	if bundle.ProjectHash != paths.ProjectHash(root) {
		t.Errorf("Expected project hash %s, got %s", paths.ProjectHash(root), bundle.ProjectHash)
	}
	if len(bundle.History) != 2 {
		t.Fatalf("Expected 2 history entries, got %d", len(bundle.History))
	}
	if bundle.LastReport == nil {
		t.Fatal("Expected last-report entry")
	}
	if bundle.LastReport.Count != 2 {
		t.Errorf("Expected report count 2, got %d", bundle.LastReport.Count)
	}
}

func TestBundleForUnknownProject(t *testing.T) {
	db, err := storage.Open(t.TempDir(), logging.Discard())
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	var buf bytes.Buffer
	if err := WriteBundle(db, "/proj/never-seen", &buf); err != nil {
		t.Fatalf("WriteBundle failed: %v", err)
	}

	bundle, err := ReadBundle(&buf)
	if err != nil {
		t.Fatalf("ReadBundle failed: %v", err)
	}
	if len(bundle.History) != 0 || bundle.LastReport != nil {
		t.Error("Expected empty bundle for unknown project")
	}
}
