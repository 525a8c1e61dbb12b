package diagnostics

import (
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/amondnet/claude-lsp-cli-sub001/internal/config"
	"github.com/amondnet/claude-lsp-cli-sub001/internal/logging"
	"github.com/amondnet/claude-lsp-cli-sub001/internal/paths"
	"github.com/amondnet/claude-lsp-cli-sub001/internal/storage"
)

// Engine computes the novel subset of each collected diagnostic list and
// decides whether a report is due. It is the only writer of a project's
// diagnostic_history and diagnostic_reports rows.
type Engine struct {
	db           *storage.DB
	logger       *logging.Logger
	memoryWindow time.Duration
	retention    time.Duration
}

// NewEngine creates a deduplication engine over an open store
func NewEngine(db *storage.DB, cfg *config.Config, logger *logging.Logger) *Engine {
	return &Engine{
		db:           db,
		logger:       logger,
		memoryWindow: cfg.MemoryWindow(),
		retention:    cfg.Retention(),
	}
}

// historyRow is one windowed history record with its precomputed key
type historyRow struct {
	key  string
	diag Diagnostic
}

// ProcessDiagnostics diffs the full current diagnostic list for a project
// against history seen within the memory window, upserts every current
// finding, and decides whether the change is worth reporting. The input is
// the complete set as observed right now, not an increment.
//
// Every current diagnostic is recorded regardless of whether a report is
// due, so the memory window always reflects the latest observation time.
func (e *Engine) ProcessDiagnostics(projectRoot string, current []Diagnostic, sessionID string) (*Result, error) {
	projectHash := paths.ProjectHash(projectRoot)
	now := time.Now().UnixMilli()
	windowStart := now - e.memoryWindow.Milliseconds()

	result := &Result{}

	err := e.db.WithTx(func(tx *sql.Tx) error {
		windowed, err := loadWindowedHistory(tx, projectHash, windowStart)
		if err != nil {
			return err
		}

		currentKeys := make(map[string]Diagnostic, len(current))
		for _, d := range current {
			d = d.normalize()
			currentKeys[Key(d, projectRoot)] = d
		}

		historyKeys := make(map[string]Diagnostic, len(windowed))
		for _, row := range windowed {
			historyKeys[row.key] = row.diag
		}

		for key, d := range currentKeys {
			if _, seen := historyKeys[key]; seen {
				result.Diff.Unchanged = append(result.Diff.Unchanged, d)
			} else {
				result.Diff.Added = append(result.Diff.Added, d)
			}
		}
		for key, d := range historyKeys {
			if _, stillPresent := currentKeys[key]; !stillPresent {
				result.Diff.Resolved = append(result.Diff.Resolved, d)
			}
		}

		sortDiagnostics(result.Diff.Added)
		sortDiagnostics(result.Diff.Resolved)
		sortDiagnostics(result.Diff.Unchanged)

		for key, d := range currentKeys {
			if err := upsertHistory(tx, projectHash, key, d, now, sessionID); err != nil {
				return err
			}
		}

		reportHash := ReportHash(current, projectRoot)
		prevHash, prevExists, err := loadReportHash(tx, projectHash)
		if err != nil {
			return err
		}

		result.ShouldReport = (!prevExists && len(current) > 0) ||
			len(result.Diff.Added) > 0 ||
			len(result.Diff.Resolved) > 0 ||
			(reportHash != prevHash && (len(current) > 0 || prevExists))

		if result.ShouldReport {
			if err := upsertReport(tx, projectHash, reportHash, now, len(current)); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Debug("Processed diagnostics", map[string]interface{}{
		"project":      projectHash,
		"current":      len(current),
		"added":        len(result.Diff.Added),
		"resolved":     len(result.Diff.Resolved),
		"shouldReport": result.ShouldReport,
	})

	return result, nil
}

// IsFirstRun reports whether the project has never emitted a report
func (e *Engine) IsFirstRun(projectRoot string) (bool, error) {
	projectHash := paths.ProjectHash(projectRoot)

	var exists int
	err := e.db.QueryRow(
		"SELECT 1 FROM diagnostic_reports WHERE project_hash = ?", projectHash,
	).Scan(&exists)

	if err == sql.ErrNoRows {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query report record: %w", err)
	}
	return false, nil
}

// Cleanup deletes history rows not seen within the retention window.
// Safe to call concurrently with ProcessDiagnostics: the cutoff is a plain
// wall-clock comparison on last_seen, so a row upserted by a logically
// concurrent call carries a fresh timestamp and survives.
func (e *Engine) Cleanup(projectRoot string) (int64, error) {
	projectHash := paths.ProjectHash(projectRoot)
	cutoff := time.Now().UnixMilli() - e.retention.Milliseconds()

	res, err := e.db.Exec(
		"DELETE FROM diagnostic_history WHERE project_hash = ? AND last_seen < ?",
		projectHash, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up history: %w", err)
	}

	removed, _ := res.RowsAffected()
	if removed > 0 {
		e.logger.Debug("Cleaned up diagnostic history", map[string]interface{}{
			"project": projectHash,
			"removed": removed,
		})
	}
	return removed, nil
}

// DiagnosticsSince returns every history row observed at or after the given
// epoch-millisecond timestamp. The coordinator uses this to read back what a
// collection pass has accumulated for a caller's logical request time.
func (e *Engine) DiagnosticsSince(projectRoot string, since int64) ([]Diagnostic, error) {
	projectHash := paths.ProjectHash(projectRoot)

	rows, err := e.db.Query(`
		SELECT file, line, column, severity, message, source, rule_id
		FROM diagnostic_history
		WHERE project_hash = ? AND last_seen >= ?
		ORDER BY file, line, column
	`, projectHash, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent diagnostics: %w", err)
	}
	defer rows.Close()

	var diags []Diagnostic
	for rows.Next() {
		var d Diagnostic
		var source, ruleID sql.NullString
		if err := rows.Scan(&d.File, &d.Line, &d.Column, &d.Severity, &d.Message, &source, &ruleID); err != nil {
			return nil, fmt.Errorf("failed to scan diagnostic: %w", err)
		}
		d.Source = source.String
		d.RuleID = ruleID.String
		diags = append(diags, d)
	}
	return diags, rows.Err()
}

func loadWindowedHistory(tx *sql.Tx, projectHash string, windowStart int64) ([]historyRow, error) {
	rows, err := tx.Query(`
		SELECT diagnostic_key, file, line, column, severity, message, source, rule_id
		FROM diagnostic_history
		WHERE project_hash = ? AND last_seen >= ?
	`, projectHash, windowStart)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var result []historyRow
	for rows.Next() {
		var row historyRow
		var source, ruleID sql.NullString
		if err := rows.Scan(&row.key, &row.diag.File, &row.diag.Line, &row.diag.Column,
			&row.diag.Severity, &row.diag.Message, &source, &ruleID); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		row.diag.Source = source.String
		row.diag.RuleID = ruleID.String
		result = append(result, row)
	}
	return result, rows.Err()
}

func upsertHistory(tx *sql.Tx, projectHash, key string, d Diagnostic, now int64, sessionID string) error {
	_, err := tx.Exec(`
		INSERT INTO diagnostic_history
			(project_hash, diagnostic_key, file, line, column, severity, message, source, rule_id, first_seen, last_seen, session_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_hash, diagnostic_key) DO UPDATE SET
			severity = excluded.severity,
			source = excluded.source,
			rule_id = excluded.rule_id,
			last_seen = excluded.last_seen,
			session_id = excluded.session_id
	`, projectHash, key, d.File, d.Line, d.Column, string(d.Severity), d.Message,
		nullable(d.Source), nullable(d.RuleID), now, now, nullable(sessionID))
	if err != nil {
		return fmt.Errorf("failed to upsert history row: %w", err)
	}
	return nil
}

func loadReportHash(tx *sql.Tx, projectHash string) (string, bool, error) {
	var hash string
	err := tx.QueryRow(
		"SELECT report_hash FROM diagnostic_reports WHERE project_hash = ?", projectHash,
	).Scan(&hash)

	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to query report record: %w", err)
	}
	return hash, true, nil
}

func upsertReport(tx *sql.Tx, projectHash, reportHash string, now int64, count int) error {
	_, err := tx.Exec(`
		INSERT INTO diagnostic_reports (project_hash, report_hash, reported_at, diagnostic_count)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(project_hash) DO UPDATE SET
			report_hash = excluded.report_hash,
			reported_at = excluded.reported_at,
			diagnostic_count = excluded.diagnostic_count
	`, projectHash, reportHash, now, count)
	if err != nil {
		return fmt.Errorf("failed to upsert report record: %w", err)
	}
	return nil
}

func sortDiagnostics(diags []Diagnostic) {
	sort.Slice(diags, func(i, j int) bool {
		if diags[i].File != diags[j].File {
			return diags[i].File < diags[j].File
		}
		if diags[i].Line != diags[j].Line {
			return diags[i].Line < diags[j].Line
		}
		if diags[i].Column != diags[j].Column {
			return diags[i].Column < diags[j].Column
		}
		return diags[i].Message < diags[j].Message
	})
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
