// Package transport speaks to a running analysis server over its local
// socket. Any connection failure or non-OK response means "not running" or
// "no results" — never a fatal error — because a missing server is a normal
// state for this system.
package transport

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/amondnet/claude-lsp-cli-sub001/internal/diagnostics"
	"github.com/amondnet/claude-lsp-cli-sub001/internal/logging"
)

// HealthStatus is the payload of GET /health
type HealthStatus struct {
	Status string `json:"status"`
	Type   string `json:"type"`
}

// Client is an HTTP client bound to one server's unix socket
type Client struct {
	http       *resty.Client
	socketPath string
	logger     *logging.Logger
}

// NewClient creates a client for the server listening on socketPath
func NewClient(socketPath string, logger *logging.Logger) *Client {
	transport := &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socketPath)
		},
	}

	httpClient := resty.New().
		SetTransport(transport).
		SetBaseURL("http://localhost").
		SetTimeout(3 * time.Second)

	return &Client{
		http:       httpClient,
		socketPath: socketPath,
		logger:     logger,
	}
}

// Health calls GET /health. Returns nil if the server is not reachable or
// responds with anything but 200.
func (c *Client) Health(ctx context.Context) *HealthStatus {
	resp, err := c.http.R().SetContext(ctx).Get("/health")
	if err != nil {
		c.logger.Debug("Health probe failed", map[string]interface{}{
			"socket": c.socketPath,
			"error":  err.Error(),
		})
		return nil
	}
	if resp.StatusCode() != http.StatusOK {
		return nil
	}

	var health HealthStatus
	if err := json.Unmarshal(resp.Body(), &health); err != nil {
		c.logger.Debug("Health response unparseable", map[string]interface{}{
			"socket": c.socketPath,
			"error":  err.Error(),
		})
		return nil
	}
	return &health
}

// Diagnostics calls GET /diagnostics, optionally scoped to one file.
// Returns nil on any failure; partial availability is normal.
func (c *Client) Diagnostics(ctx context.Context, file string) []diagnostics.Diagnostic {
	req := c.http.R().SetContext(ctx)
	if file != "" {
		req.SetQueryParam("file", file)
	}

	resp, err := req.Get("/diagnostics")
	if err != nil {
		c.logger.Debug("Diagnostics fetch failed", map[string]interface{}{
			"socket": c.socketPath,
			"error":  err.Error(),
		})
		return nil
	}
	if resp.StatusCode() != http.StatusOK {
		return nil
	}

	var diags []diagnostics.Diagnostic
	if err := json.Unmarshal(resp.Body(), &diags); err != nil {
		c.logger.Debug("Diagnostics response unparseable", map[string]interface{}{
			"socket": c.socketPath,
			"error":  err.Error(),
		})
		return nil
	}
	return diags
}
