package coordinator

import (
	"context"

	"github.com/amondnet/claude-lsp-cli-sub001/internal/diagnostics"
	"github.com/amondnet/claude-lsp-cli-sub001/internal/errors"
	"github.com/amondnet/claude-lsp-cli-sub001/internal/logging"
	"github.com/amondnet/claude-lsp-cli-sub001/internal/registry"
	"github.com/amondnet/claude-lsp-cli-sub001/internal/transport"
)

// ServerCollector collects diagnostics from the project's registered
// analysis server over its local socket. It is the default Collector.
type ServerCollector struct {
	registry *registry.Registry
	logger   *logging.Logger
}

// NewServerCollector creates a collector backed by the server registry
func NewServerCollector(reg *registry.Registry, logger *logging.Logger) *ServerCollector {
	return &ServerCollector{
		registry: reg,
		logger:   logger,
	}
}

// Collect resolves the project's server and fetches its diagnostics. A
// missing or unreachable server is an error here; the coordinator converts
// it into a Failed message and the caller degrades to stored results.
func (s *ServerCollector) Collect(ctx context.Context, projectRoot string) ([]diagnostics.Diagnostic, error) {
	srv, err := s.registry.GetServerByPath(projectRoot)
	if err != nil {
		return nil, err
	}
	if srv == nil || srv.Status == registry.StatusStopped {
		return nil, errors.New(errors.ServerNotFound, "no running analysis server for project", nil)
	}

	client := transport.NewClient(srv.SocketPath, s.logger)

	if health := client.Health(ctx); health == nil {
		return nil, errors.New(errors.ServerUnavailable, "analysis server did not respond to health probe", nil)
	}

	// The server answered; that counts as a heartbeat.
	if err := s.registry.UpdateHeartbeat(srv.ProjectHash); err != nil {
		s.logger.Warn("Failed to record heartbeat", map[string]interface{}{
			"project": srv.ProjectHash,
			"error":   err.Error(),
		})
	}

	return client.Diagnostics(ctx, ""), nil
}
