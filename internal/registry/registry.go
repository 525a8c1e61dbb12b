// Package registry tracks analysis-server processes: one durable record per
// project, health state driven by heartbeats and liveness probes, and a hard
// cap on concurrently live servers.
package registry

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/amondnet/claude-lsp-cli-sub001/internal/config"
	"github.com/amondnet/claude-lsp-cli-sub001/internal/logging"
	"github.com/amondnet/claude-lsp-cli-sub001/internal/paths"
	"github.com/amondnet/claude-lsp-cli-sub001/internal/storage"
)

// Status is the lifecycle state of a server record
type Status string

const (
	// StatusStarting for a server that was spawned but has not responded yet
	StatusStarting Status = "starting"
	// StatusHealthy for a server with a recent heartbeat
	StatusHealthy Status = "healthy"
	// StatusUnhealthy for a server that is alive but silent past the limit
	StatusUnhealthy Status = "unhealthy"
	// StatusStopped for a dead or terminated server; rows are retained as
	// an audit trail rather than deleted
	StatusStopped Status = "stopped"
)

// ServerRecord describes one analysis-server process for one project
type ServerRecord struct {
	ProjectHash  string   `json:"projectHash"`
	ProjectRoot  string   `json:"projectRoot"`
	Languages    []string `json:"languages"`
	PID          int      `json:"pid"`
	SocketPath   string   `json:"socketPath"`
	StartTime    int64    `json:"startTime"`    // epoch millis
	LastResponse int64    `json:"lastResponse"` // epoch millis
	Status       Status   `json:"status"`
}

// Statistics aggregates the active-server population
type Statistics struct {
	ActiveServers int            `json:"activeServers"`
	ByLanguage    map[string]int `json:"byLanguage"`
}

// Registry provides server lifecycle tracking over the shared store
type Registry struct {
	db             *storage.DB
	logger         *logging.Logger
	heartbeatStale time.Duration
	termGrace      time.Duration
}

// New creates a registry over an open store
func New(db *storage.DB, cfg *config.Config, logger *logging.Logger) *Registry {
	return &Registry{
		db:             db,
		logger:         logger,
		heartbeatStale: cfg.HeartbeatStale(),
		termGrace:      cfg.TerminateGrace(),
	}
}

// RegisterServer upserts a record for a freshly spawned server process and
// returns the project hash it is keyed by. Status starts at "starting".
func (r *Registry) RegisterServer(projectRoot string, languages []string, pid int, socketPath string) (string, error) {
	projectHash := paths.ProjectHash(projectRoot)
	now := time.Now().UnixMilli()

	langJSON, err := json.Marshal(languages)
	if err != nil {
		return "", fmt.Errorf("failed to encode languages: %w", err)
	}

	_, err = r.db.Exec(`
		INSERT INTO servers (project_hash, project_root, languages, pid, socket_path, start_time, last_response, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_hash) DO UPDATE SET
			project_root = excluded.project_root,
			languages = excluded.languages,
			pid = excluded.pid,
			socket_path = excluded.socket_path,
			start_time = excluded.start_time,
			last_response = excluded.last_response,
			status = excluded.status
	`, projectHash, projectRoot, string(langJSON), pid, socketPath, now, now, string(StatusStarting))
	if err != nil {
		return "", fmt.Errorf("failed to register server: %w", err)
	}

	r.logger.Info("Registered analysis server", map[string]interface{}{
		"project": projectHash,
		"pid":     pid,
	})

	return projectHash, nil
}

// UpdateServerStatus sets the status of a server record
func (r *Registry) UpdateServerStatus(projectHash string, status Status) error {
	_, err := r.db.Exec(
		"UPDATE servers SET status = ? WHERE project_hash = ?",
		string(status), projectHash,
	)
	if err != nil {
		return fmt.Errorf("failed to update server status: %w", err)
	}
	return nil
}

// UpdateHeartbeat marks the server healthy and refreshes last_response
func (r *Registry) UpdateHeartbeat(projectHash string) error {
	_, err := r.db.Exec(
		"UPDATE servers SET status = ?, last_response = ? WHERE project_hash = ?",
		string(StatusHealthy), time.Now().UnixMilli(), projectHash,
	)
	if err != nil {
		return fmt.Errorf("failed to update heartbeat: %w", err)
	}
	return nil
}

// GetServer returns the record for a project hash, or nil if none exists
func (r *Registry) GetServer(projectHash string) (*ServerRecord, error) {
	return r.queryOne("SELECT project_hash, project_root, languages, pid, socket_path, start_time, last_response, status FROM servers WHERE project_hash = ?", projectHash)
}

// GetServerByPath returns the record for a project root, or nil if none exists
func (r *Registry) GetServerByPath(projectRoot string) (*ServerRecord, error) {
	return r.GetServer(paths.ProjectHash(projectRoot))
}

// GetAllActiveServers returns every non-stopped record, newest first
func (r *Registry) GetAllActiveServers() ([]ServerRecord, error) {
	return r.queryMany(`
		SELECT project_hash, project_root, languages, pid, socket_path, start_time, last_response, status
		FROM servers
		WHERE status IN ('starting', 'healthy', 'unhealthy')
		ORDER BY start_time DESC
	`)
}

// CleanupDeadServers probes every active record's process. Dead processes
// are marked stopped; alive processes whose last response is older than the
// staleness limit are marked unhealthy (a hung-but-alive process is a
// distinct state from a dead one). Returns the number marked stopped.
func (r *Registry) CleanupDeadServers() (int, error) {
	servers, err := r.GetAllActiveServers()
	if err != nil {
		return 0, err
	}

	staleBefore := time.Now().Add(-r.heartbeatStale).UnixMilli()
	stopped := 0

	for _, srv := range servers {
		if !processAlive(srv.PID) {
			if err := r.UpdateServerStatus(srv.ProjectHash, StatusStopped); err != nil {
				return stopped, err
			}
			stopped++
			r.logger.Info("Marked dead server stopped", map[string]interface{}{
				"project": srv.ProjectHash,
				"pid":     srv.PID,
			})
			continue
		}

		if srv.LastResponse < staleBefore && srv.Status != StatusUnhealthy {
			if err := r.UpdateServerStatus(srv.ProjectHash, StatusUnhealthy); err != nil {
				return stopped, err
			}
			r.logger.Warn("Marked silent server unhealthy", map[string]interface{}{
				"project": srv.ProjectHash,
				"pid":     srv.PID,
			})
		}
	}

	return stopped, nil
}

// EnforceServerLimit terminates the oldest servers in excess of maxServers
// and returns how many were killed. Records are marked stopped as soon as
// termination is requested; the registry reflects intent, not confirmed OS
// state, so the caller never blocks on slow process teardown. StartTime is
// the eviction key: recently started servers approximate recently used
// projects.
func (r *Registry) EnforceServerLimit(maxServers int) (int, error) {
	servers, err := r.GetAllActiveServers()
	if err != nil {
		return 0, err
	}

	excess := len(servers) - maxServers
	if excess <= 0 {
		return 0, nil
	}

	// GetAllActiveServers is newest-first; the victims are the oldest.
	victims := servers[len(servers)-excess:]

	for _, srv := range victims {
		if err := r.UpdateServerStatus(srv.ProjectHash, StatusStopped); err != nil {
			return 0, err
		}

		r.logger.Info("Terminating server over limit", map[string]interface{}{
			"project":   srv.ProjectHash,
			"pid":       srv.PID,
			"startTime": srv.StartTime,
		})

		r.terminate(srv.PID)
	}

	return excess, nil
}

// terminate delivers SIGTERM before returning, so the signal is out even
// when the caller is a short-lived CLI process that exits right after; only
// the SIGKILL escalation runs in the background and is best-effort there.
func (r *Registry) terminate(pid int) {
	if signalTerm(pid) {
		go escalateAfterGrace(pid, r.termGrace)
	}
}

// StopServer marks one server stopped and requests its termination
func (r *Registry) StopServer(projectHash string) error {
	srv, err := r.GetServer(projectHash)
	if err != nil {
		return err
	}
	if srv == nil || srv.Status == StatusStopped {
		return nil
	}

	if err := r.UpdateServerStatus(projectHash, StatusStopped); err != nil {
		return err
	}

	r.terminate(srv.PID)
	return nil
}

// GetStatistics returns the active-server count and a per-language
// breakdown. A server serving multiple languages contributes to each.
func (r *Registry) GetStatistics() (*Statistics, error) {
	servers, err := r.GetAllActiveServers()
	if err != nil {
		return nil, err
	}

	stats := &Statistics{
		ActiveServers: len(servers),
		ByLanguage:    make(map[string]int),
	}
	for _, srv := range servers {
		for _, lang := range srv.Languages {
			stats.ByLanguage[lang]++
		}
	}

	return stats, nil
}

func (r *Registry) queryOne(query string, args ...interface{}) (*ServerRecord, error) {
	var rec ServerRecord
	var langJSON, status string

	err := r.db.QueryRow(query, args...).Scan(
		&rec.ProjectHash, &rec.ProjectRoot, &langJSON, &rec.PID,
		&rec.SocketPath, &rec.StartTime, &rec.LastResponse, &status,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query server record: %w", err)
	}

	if err := json.Unmarshal([]byte(langJSON), &rec.Languages); err != nil {
		return nil, fmt.Errorf("failed to decode languages: %w", err)
	}
	rec.Status = Status(status)

	return &rec, nil
}

func (r *Registry) queryMany(query string, args ...interface{}) ([]ServerRecord, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query server records: %w", err)
	}
	defer rows.Close()

	var result []ServerRecord
	for rows.Next() {
		var rec ServerRecord
		var langJSON, status string

		if err := rows.Scan(&rec.ProjectHash, &rec.ProjectRoot, &langJSON, &rec.PID,
			&rec.SocketPath, &rec.StartTime, &rec.LastResponse, &status); err != nil {
			return nil, fmt.Errorf("failed to scan server record: %w", err)
		}

		if err := json.Unmarshal([]byte(langJSON), &rec.Languages); err != nil {
			return nil, fmt.Errorf("failed to decode languages: %w", err)
		}
		rec.Status = Status(status)

		result = append(result, rec)
	}

	return result, rows.Err()
}
