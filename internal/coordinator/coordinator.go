// Package coordinator joins overlapping diagnostic requests for the same
// project into a single background collection pass and returns whatever the
// deduplication engine has accumulated by a fixed deadline. Partial results
// by policy: a full-project checker can run far longer than any CLI hook
// budget, so the store is the hand-off point between a worker that may still
// be running and a caller that must return promptly.
package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/amondnet/claude-lsp-cli-sub001/internal/config"
	"github.com/amondnet/claude-lsp-cli-sub001/internal/diagnostics"
	"github.com/amondnet/claude-lsp-cli-sub001/internal/logging"
)

// Collector performs the actual diagnostic collection for a project.
// Implementations talk to analysis servers or invoke checkers directly.
type Collector interface {
	Collect(ctx context.Context, projectRoot string) ([]diagnostics.Diagnostic, error)
}

// CollectorFunc adapts a function to the Collector interface
type CollectorFunc func(ctx context.Context, projectRoot string) ([]diagnostics.Diagnostic, error)

// Collect implements Collector
func (f CollectorFunc) Collect(ctx context.Context, projectRoot string) ([]diagnostics.Diagnostic, error) {
	return f(ctx, projectRoot)
}

type requestStatus string

const (
	statusCollecting requestStatus = "collecting"
	statusComplete   requestStatus = "complete"
	statusError      requestStatus = "error"
)

// inFlight tracks one background collection for one project
type inFlight struct {
	requestTime int64
	startedAt   time.Time
	status      requestStatus
	cancel      context.CancelFunc
	done        chan struct{} // closed on complete or error
}

// Coordinator owns the in-flight map for the current process. State never
// survives a restart; the durable hand-off lives in the engine's store.
type Coordinator struct {
	engine    *diagnostics.Engine
	collector Collector
	logger    *logging.Logger

	joinThreshold   time.Duration
	collectWindow   time.Duration
	completionGrace time.Duration

	mu       sync.Mutex
	requests map[string]*inFlight
	messages chan WorkerMessage
	quit     chan struct{}
}

// New creates a coordinator and starts its message dispatch loop
func New(engine *diagnostics.Engine, collector Collector, cfg *config.Config, logger *logging.Logger) *Coordinator {
	c := &Coordinator{
		engine:          engine,
		collector:       collector,
		logger:          logger,
		joinThreshold:   cfg.JoinThreshold(),
		collectWindow:   cfg.CollectWindow(),
		completionGrace: cfg.CompletionGrace(),
		requests:        make(map[string]*inFlight),
		messages:        make(chan WorkerMessage, 16),
		quit:            make(chan struct{}),
	}

	go c.dispatch()

	return c
}

// Close cancels all in-flight workers and stops the dispatch loop
func (c *Coordinator) Close() {
	c.mu.Lock()
	for hash, req := range c.requests {
		req.cancel()
		delete(c.requests, hash)
	}
	c.mu.Unlock()

	close(c.quit)
}

// RequestDiagnostics is the entry point for callers. If a collection
// younger than the join threshold is already in flight for the project, the
// caller attaches to it instead of starting new work. Either way the caller
// waits at most the fixed collection window from its own call time, then
// reads back whatever the engine has stored at or after its logical request
// timestamp.
func (c *Coordinator) RequestDiagnostics(ctx context.Context, projectHash, projectRoot, sessionID string) ([]diagnostics.Diagnostic, error) {
	requestTime := time.Now().UnixMilli()

	c.mu.Lock()
	req := c.requests[projectHash]
	joined := req != nil && time.Since(req.startedAt) < c.joinThreshold
	if !joined {
		if req != nil {
			// Stale collection, treated as stuck: supersede it.
			req.cancel()
		}

		workerCtx, cancel := context.WithCancel(context.Background())
		req = &inFlight{
			requestTime: requestTime,
			startedAt:   time.Now(),
			status:      statusCollecting,
			cancel:      cancel,
			done:        make(chan struct{}),
		}
		c.requests[projectHash] = req

		go c.runWorker(workerCtx, projectHash, projectRoot, sessionID, requestTime)
	}
	c.mu.Unlock()

	c.logger.Debug("Diagnostic request", map[string]interface{}{
		"project": projectHash,
		"joined":  joined,
	})

	// Bounded wait: the full window, an early completion, or caller cancel.
	timer := time.NewTimer(c.collectWindow)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-req.done:
	case <-ctx.Done():
	}

	// Read back from the collection's logical timestamp: a joiner must see
	// rows the worker wrote before the joiner arrived.
	return c.engine.DiagnosticsSince(projectRoot, req.requestTime)
}

// CleanupOldRequests forcibly drops in-flight records older than maxAge,
// cancelling their workers. This is the only cancellation mechanism; there
// is no per-caller cancel. Returns the number of records dropped.
func (c *Coordinator) CleanupOldRequests(maxAge time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	dropped := 0
	for hash, req := range c.requests {
		if time.Since(req.startedAt) > maxAge {
			req.cancel()
			delete(c.requests, hash)
			dropped++

			c.logger.Warn("Dropped abandoned collection", map[string]interface{}{
				"project": hash,
				"age":     time.Since(req.startedAt).String(),
			})
		}
	}
	return dropped
}

// InFlightCount reports the number of tracked collections (for status output)
func (c *Coordinator) InFlightCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}

// runWorker performs one isolated collection pass and reports the outcome
// back over the message channel. Worker failures are converted into a
// Failed message, never a crash: callers degrade to whatever is already
// stored.
func (c *Coordinator) runWorker(ctx context.Context, projectHash, projectRoot, sessionID string, requestTime int64) {
	c.send(ctx, WorkerMessage{Kind: MessageStarted, ProjectHash: projectHash, RequestTime: requestTime})

	diags, err := c.collector.Collect(ctx, projectRoot)
	if err != nil {
		c.send(ctx, WorkerMessage{Kind: MessageFailed, ProjectHash: projectHash, RequestTime: requestTime, Reason: err.Error()})
		return
	}

	if _, err := c.engine.ProcessDiagnostics(projectRoot, diags, sessionID); err != nil {
		c.send(ctx, WorkerMessage{Kind: MessageFailed, ProjectHash: projectHash, RequestTime: requestTime, Reason: err.Error()})
		return
	}

	c.send(ctx, WorkerMessage{Kind: MessageComplete, ProjectHash: projectHash, RequestTime: requestTime, Count: len(diags)})
}

// send delivers a worker message unless the worker has been cancelled
func (c *Coordinator) send(ctx context.Context, msg WorkerMessage) {
	select {
	case c.messages <- msg:
	case <-ctx.Done():
	}
}

// dispatch applies worker messages to the in-flight map
func (c *Coordinator) dispatch() {
	for {
		select {
		case msg := <-c.messages:
			c.handleMessage(msg)
		case <-c.quit:
			return
		}
	}
}

// handleMessage honors a message only if its RequestTime matches the record
// currently tracked for the project; completions from superseded workers
// are ignored.
func (c *Coordinator) handleMessage(msg WorkerMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	req := c.requests[msg.ProjectHash]
	if req == nil || req.requestTime != msg.RequestTime {
		c.logger.Debug("Ignoring stale worker message", map[string]interface{}{
			"project": msg.ProjectHash,
			"kind":    string(msg.Kind),
		})
		return
	}

	switch msg.Kind {
	case MessageStarted, MessageProgress:
		// Informational only.

	case MessageComplete:
		req.status = statusComplete
		close(req.done)
		c.scheduleRemoval(msg.ProjectHash, req)

		c.logger.Debug("Collection complete", map[string]interface{}{
			"project": msg.ProjectHash,
			"count":   msg.Count,
		})

	case MessageFailed:
		req.status = statusError
		close(req.done)
		c.scheduleRemoval(msg.ProjectHash, req)

		c.logger.Warn("Collection failed", map[string]interface{}{
			"project": msg.ProjectHash,
			"reason":  msg.Reason,
		})
	}
}

// scheduleRemoval drops a finished record after the grace period, so
// closely-spaced joiners still see it as in flight. Caller holds the lock.
func (c *Coordinator) scheduleRemoval(projectHash string, req *inFlight) {
	time.AfterFunc(c.completionGrace, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.requests[projectHash] == req {
			delete(c.requests, projectHash)
		}
	})
}
