// Package export produces a compressed troubleshooting bundle of one
// project's diagnostic state.
package export

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"runtime"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/amondnet/claude-lsp-cli-sub001/internal/diagnostics"
	"github.com/amondnet/claude-lsp-cli-sub001/internal/paths"
	"github.com/amondnet/claude-lsp-cli-sub001/internal/storage"
	"github.com/amondnet/claude-lsp-cli-sub001/internal/version"
)

// HistoryEntry is one exported history row
type HistoryEntry struct {
	Diagnostic diagnostics.Diagnostic `json:"diagnostic"`
	Key        string                 `json:"key"`
	FirstSeen  int64                  `json:"firstSeen"`
	LastSeen   int64                  `json:"lastSeen"`
	SessionID  string                 `json:"sessionId,omitempty"`
}

// ReportEntry is the exported last-report record
type ReportEntry struct {
	Hash       string `json:"hash"`
	ReportedAt int64  `json:"reportedAt"`
	Count      int    `json:"count"`
}

// Bundle is the exported payload
type Bundle struct {
	GeneratedAt string         `json:"generatedAt"`
	Version     string         `json:"version"`
	OS          string         `json:"os"`
	ProjectHash string         `json:"projectHash"`
	History     []HistoryEntry `json:"history"`
	LastReport  *ReportEntry   `json:"lastReport,omitempty"`
}

// WriteBundle writes a zstd-compressed JSON bundle of the project's
// diagnostic history and report record to w.
func WriteBundle(db *storage.DB, projectRoot string, w io.Writer) error {
	projectHash := paths.ProjectHash(projectRoot)

	bundle := &Bundle{
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Version:     version.Version,
		OS:          runtime.GOOS,
		ProjectHash: projectHash,
	}

	if err := collectHistory(db, projectHash, bundle); err != nil {
		return err
	}
	if err := collectReport(db, projectHash, bundle); err != nil {
		return err
	}

	enc, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("failed to create compressor: %w", err)
	}

	if err := json.NewEncoder(enc).Encode(bundle); err != nil {
		enc.Close()
		return fmt.Errorf("failed to encode bundle: %w", err)
	}

	return enc.Close()
}

// ReadBundle decompresses and decodes a bundle written by WriteBundle
func ReadBundle(r io.Reader) (*Bundle, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create decompressor: %w", err)
	}
	defer dec.Close()

	var bundle Bundle
	if err := json.NewDecoder(dec.IOReadCloser()).Decode(&bundle); err != nil {
		return nil, fmt.Errorf("failed to decode bundle: %w", err)
	}
	return &bundle, nil
}

func collectHistory(db *storage.DB, projectHash string, bundle *Bundle) error {
	rows, err := db.Query(`
		SELECT diagnostic_key, file, line, column, severity, message, source, rule_id, first_seen, last_seen, session_id
		FROM diagnostic_history
		WHERE project_hash = ?
		ORDER BY last_seen DESC
	`, projectHash)
	if err != nil {
		return fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var entry HistoryEntry
		var source, ruleID, sessionID sql.NullString
		if err := rows.Scan(&entry.Key, &entry.Diagnostic.File, &entry.Diagnostic.Line,
			&entry.Diagnostic.Column, &entry.Diagnostic.Severity, &entry.Diagnostic.Message,
			&source, &ruleID, &entry.FirstSeen, &entry.LastSeen, &sessionID); err != nil {
			return fmt.Errorf("failed to scan history row: %w", err)
		}
		entry.Diagnostic.Source = source.String
		entry.Diagnostic.RuleID = ruleID.String
		entry.SessionID = sessionID.String
		bundle.History = append(bundle.History, entry)
	}
	return rows.Err()
}

func collectReport(db *storage.DB, projectHash string, bundle *Bundle) error {
	var entry ReportEntry
	err := db.QueryRow(`
		SELECT report_hash, reported_at, diagnostic_count
		FROM diagnostic_reports
		WHERE project_hash = ?
	`, projectHash).Scan(&entry.Hash, &entry.ReportedAt, &entry.Count)

	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to query report record: %w", err)
	}

	bundle.LastReport = &entry
	return nil
}
