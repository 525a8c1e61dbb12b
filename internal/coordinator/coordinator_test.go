package coordinator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/amondnet/claude-lsp-cli-sub001/internal/config"
	"github.com/amondnet/claude-lsp-cli-sub001/internal/diagnostics"
	"github.com/amondnet/claude-lsp-cli-sub001/internal/logging"
	"github.com/amondnet/claude-lsp-cli-sub001/internal/paths"
	"github.com/amondnet/claude-lsp-cli-sub001/internal/storage"
)

// testConfig shrinks every window so the suite runs in milliseconds while
// preserving the required ordering join < collect < memory < retention.
func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Coordinator.JoinThresholdMs = 200
	cfg.Coordinator.CollectWindowMs = 400
	cfg.Coordinator.CompletionGraceMs = 500
	cfg.Coordinator.RequestMaxAgeMs = 2000
	return cfg
}

func setupCoordinator(t *testing.T, collector Collector) *Coordinator {
	t.Helper()

	db, err := storage.Open(t.TempDir(), logging.Discard())
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := testConfig()
	engine := diagnostics.NewEngine(db, cfg, logging.Discard())

	coord := New(engine, collector, cfg, logging.Discard())
	t.Cleanup(coord.Close)

	return coord
}

func TestRequestReturnsCollectedDiagnostics(t *testing.T) {
	collector := CollectorFunc(func(ctx context.Context, projectRoot string) ([]diagnostics.Diagnostic, error) {
		return []diagnostics.Diagnostic{
			{File: "a.ts", Line: 1, Column: 1, Severity: diagnostics.SeverityError, Message: "X"},
		}, nil
	})
	coord := setupCoordinator(t, collector)

	root := "/proj/demo"
	diags, err := coord.RequestDiagnostics(context.Background(), paths.ProjectHash(root), root, "s1")
	if err != nil {
		t.Fatalf("RequestDiagnostics failed: %v", err)
	}

	if len(diags) != 1 || diags[0].Message != "X" {
		t.Errorf("Expected collected diagnostic, got %v", diags)
	}
}

func TestConcurrentCallersJoinOneWorker(t *testing.T) {
	var collects int32
	collector := CollectorFunc(func(ctx context.Context, projectRoot string) ([]diagnostics.Diagnostic, error) {
		atomic.AddInt32(&collects, 1)
		time.Sleep(50 * time.Millisecond)
		return []diagnostics.Diagnostic{
			{File: "a.ts", Line: 1, Column: 1, Severity: diagnostics.SeverityError, Message: "X"},
		}, nil
	})
	coord := setupCoordinator(t, collector)

	root := "/proj/demo"
	hash := paths.ProjectHash(root)

	var wg sync.WaitGroup
	results := make([][]diagnostics.Diagnostic, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			diags, err := coord.RequestDiagnostics(context.Background(), hash, root, "s1")
			if err != nil {
				t.Errorf("RequestDiagnostics failed: %v", err)
				return
			}
			results[i] = diags
		}(i)
	}
	wg.Wait()

	if got := atomic.LoadInt32(&collects); got != 1 {
		t.Errorf("Expected exactly 1 worker spawn for joined callers, got %d", got)
	}

	for i, diags := range results {
		if len(diags) != 1 {
			t.Errorf("Caller %d expected 1 diagnostic, got %d", i, len(diags))
		}
	}
}

func TestWorkerErrorDegradesToStoredResults(t *testing.T) {
	collector := CollectorFunc(func(ctx context.Context, projectRoot string) ([]diagnostics.Diagnostic, error) {
		return nil, fmt.Errorf("checker crashed")
	})
	coord := setupCoordinator(t, collector)

	root := "/proj/demo"
	diags, err := coord.RequestDiagnostics(context.Background(), paths.ProjectHash(root), root, "s1")
	if err != nil {
		t.Fatalf("Worker failure must not surface as an error: %v", err)
	}
	if len(diags) != 0 {
		t.Errorf("Expected no diagnostics from failed collection, got %v", diags)
	}
}

func TestStaleCompletionIgnored(t *testing.T) {
	collector := CollectorFunc(func(ctx context.Context, projectRoot string) ([]diagnostics.Diagnostic, error) {
		return nil, nil
	})
	coord := setupCoordinator(t, collector)

	hash := "deadbeef"
	req := &inFlight{
		requestTime: 2000,
		startedAt:   time.Now(),
		status:      statusCollecting,
		cancel:      func() {},
		done:        make(chan struct{}),
	}
	coord.mu.Lock()
	coord.requests[hash] = req
	coord.mu.Unlock()

	// A completion from a superseded worker carries an older request time.
	coord.handleMessage(WorkerMessage{
		Kind:        MessageComplete,
		ProjectHash: hash,
		RequestTime: 1000,
	})

	coord.mu.Lock()
	defer coord.mu.Unlock()
	if coord.requests[hash].status != statusCollecting {
		t.Error("Stale completion must not change the tracked record")
	}
	select {
	case <-req.done:
		t.Error("Stale completion must not close the done channel")
	default:
	}
}

func TestMatchingCompletionFinishesRecord(t *testing.T) {
	collector := CollectorFunc(func(ctx context.Context, projectRoot string) ([]diagnostics.Diagnostic, error) {
		return nil, nil
	})
	coord := setupCoordinator(t, collector)

	hash := "deadbeef"
	req := &inFlight{
		requestTime: 2000,
		startedAt:   time.Now(),
		status:      statusCollecting,
		cancel:      func() {},
		done:        make(chan struct{}),
	}
	coord.mu.Lock()
	coord.requests[hash] = req
	coord.mu.Unlock()

	coord.handleMessage(WorkerMessage{
		Kind:        MessageComplete,
		ProjectHash: hash,
		RequestTime: 2000,
		Count:       3,
	})

	coord.mu.Lock()
	status := coord.requests[hash].status
	coord.mu.Unlock()
	if status != statusComplete {
		t.Errorf("Expected complete status, got %s", status)
	}

	// The record survives the grace period for closely-spaced joiners.
	if coord.InFlightCount() != 1 {
		t.Error("Expected finished record to remain during the grace period")
	}

	// And is removed afterwards.
	deadline := time.Now().Add(2 * time.Second)
	for coord.InFlightCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if coord.InFlightCount() != 0 {
		t.Error("Expected finished record removed after the grace period")
	}
}

func TestCleanupOldRequests(t *testing.T) {
	started := make(chan struct{})
	cancelled := make(chan struct{})
	collector := CollectorFunc(func(ctx context.Context, projectRoot string) ([]diagnostics.Diagnostic, error) {
		close(started)
		<-ctx.Done()
		close(cancelled)
		return nil, ctx.Err()
	})
	coord := setupCoordinator(t, collector)

	root := "/proj/stuck"
	go func() {
		_, _ = coord.RequestDiagnostics(context.Background(), paths.ProjectHash(root), root, "s1")
	}()
	<-started

	// Nothing is old enough yet.
	if dropped := coord.CleanupOldRequests(time.Minute); dropped != 0 {
		t.Errorf("Expected no drops below max age, got %d", dropped)
	}

	time.Sleep(50 * time.Millisecond)
	dropped := coord.CleanupOldRequests(10 * time.Millisecond)
	if dropped != 1 {
		t.Fatalf("Expected 1 abandoned request dropped, got %d", dropped)
	}

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Error("Expected the abandoned worker to be cancelled")
	}

	if coord.InFlightCount() != 0 {
		t.Error("Expected in-flight map to be empty after sweep")
	}
}

func TestStaleInFlightSupersededByNewWorker(t *testing.T) {
	var collects int32
	release := make(chan struct{})
	collector := CollectorFunc(func(ctx context.Context, projectRoot string) ([]diagnostics.Diagnostic, error) {
		n := atomic.AddInt32(&collects, 1)
		if n == 1 {
			// First worker hangs past the join threshold.
			select {
			case <-release:
			case <-ctx.Done():
			}
			return nil, ctx.Err()
		}
		return nil, nil
	})
	coord := setupCoordinator(t, collector)
	defer close(release)

	root := "/proj/demo"
	hash := paths.ProjectHash(root)

	go func() {
		_, _ = coord.RequestDiagnostics(context.Background(), hash, root, "s1")
	}()

	// Wait past the join threshold so the record counts as stuck.
	time.Sleep(300 * time.Millisecond)

	if _, err := coord.RequestDiagnostics(context.Background(), hash, root, "s2"); err != nil {
		t.Fatalf("RequestDiagnostics failed: %v", err)
	}

	if got := atomic.LoadInt32(&collects); got != 2 {
		t.Errorf("Expected a second worker for the stale collection, got %d", got)
	}
}
