package transport

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/amondnet/claude-lsp-cli-sub001/internal/diagnostics"
	"github.com/amondnet/claude-lsp-cli-sub001/internal/logging"
)

// startTestServer serves the given handler on a unix socket and returns the
// socket path.
func startTestServer(t *testing.T, handler http.Handler) string {
	t.Helper()

	socketPath := filepath.Join(t.TempDir(), "server.sock")
	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		t.Fatalf("Failed to listen on unix socket: %v", err)
	}

	srv := &http.Server{Handler: handler}
	go func() { _ = srv.Serve(listener) }()
	t.Cleanup(func() { _ = srv.Close() })

	return socketPath
}

func TestHealth(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(HealthStatus{Status: "ok", Type: "typescript"})
	})
	socketPath := startTestServer(t, mux)

	client := NewClient(socketPath, logging.Discard())
	health := client.Health(context.Background())

	if health == nil {
		t.Fatal("Expected health status, got nil")
	}
	if health.Status != "ok" || health.Type != "typescript" {
		t.Errorf("Unexpected health payload: %+v", health)
	}
}

func TestHealthMissingSocket(t *testing.T) {
	client := NewClient(filepath.Join(t.TempDir(), "no-such.sock"), logging.Discard())

	if client.Health(context.Background()) != nil {
		t.Error("Expected nil for unreachable server")
	}
}

func TestHealthNonOKStatus(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "starting up", http.StatusServiceUnavailable)
	})
	socketPath := startTestServer(t, mux)

	client := NewClient(socketPath, logging.Discard())
	if client.Health(context.Background()) != nil {
		t.Error("Expected nil for non-200 health response")
	}
}

func TestDiagnostics(t *testing.T) {
	want := []diagnostics.Diagnostic{
		{File: "a.ts", Line: 1, Column: 1, Severity: diagnostics.SeverityError, Message: "X"},
		{File: "b.ts", Line: 2, Column: 3, Severity: diagnostics.SeverityWarning, Message: "Y"},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/diagnostics", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(want)
	})
	socketPath := startTestServer(t, mux)

	client := NewClient(socketPath, logging.Discard())
	got := client.Diagnostics(context.Background(), "")

	if len(got) != 2 {
		t.Fatalf("Expected 2 diagnostics, got %d", len(got))
	}
	if got[0].Message != "X" || got[1].Severity != diagnostics.SeverityWarning {
		t.Errorf("Unexpected diagnostics payload: %+v", got)
	}
}

func TestDiagnosticsFileFilter(t *testing.T) {
	var gotFile string
	mux := http.NewServeMux()
	mux.HandleFunc("/diagnostics", func(w http.ResponseWriter, r *http.Request) {
		gotFile = r.URL.Query().Get("file")
		_ = json.NewEncoder(w).Encode([]diagnostics.Diagnostic{})
	})
	socketPath := startTestServer(t, mux)

	client := NewClient(socketPath, logging.Discard())
	client.Diagnostics(context.Background(), "src/app.ts")

	if gotFile != "src/app.ts" {
		t.Errorf("Expected file query parameter, got %q", gotFile)
	}
}

func TestDiagnosticsUnreachable(t *testing.T) {
	client := NewClient(filepath.Join(t.TempDir(), "no-such.sock"), logging.Discard())

	if client.Diagnostics(context.Background(), "") != nil {
		t.Error("Expected nil for unreachable server")
	}
}
