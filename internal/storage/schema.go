package storage

import (
	"database/sql"
	"fmt"

	"github.com/amondnet/claude-lsp-cli-sub001/internal/errors"
)

// Schema version tracking. The on-disk schema is a versioned contract: a
// file written by a newer build is refused rather than guessed at.
const currentSchemaVersion = 1

// initializeSchema creates all tables for a new database
func (db *DB) initializeSchema() error {
	return db.WithTx(func(tx *sql.Tx) error {
		if err := createSchemaVersionTable(tx); err != nil {
			return err
		}

		if err := createDiagnosticHistoryTable(tx); err != nil {
			return err
		}
		if err := createDiagnosticReportsTable(tx); err != nil {
			return err
		}
		if err := createServersTable(tx); err != nil {
			return err
		}

		if err := setSchemaVersion(tx, currentSchemaVersion); err != nil {
			return err
		}

		db.logger.Info("Database schema initialized", map[string]interface{}{
			"version": currentSchemaVersion,
		})

		return nil
	})
}

// runMigrations brings an existing database up to the current schema version
func (db *DB) runMigrations() error {
	version, err := db.getSchemaVersion()
	if err != nil {
		return err
	}

	if version > currentSchemaVersion {
		return errors.New(errors.SchemaMismatch,
			fmt.Sprintf("database schema version %d is newer than supported version %d", version, currentSchemaVersion), nil)
	}

	if version == currentSchemaVersion {
		db.logger.Debug("Database schema is up to date", map[string]interface{}{
			"version": version,
		})
		return nil
	}

	db.logger.Info("Running database migrations", map[string]interface{}{
		"from_version": version,
		"to_version":   currentSchemaVersion,
	})

	// Version 0 means the file predates version tracking (or is empty):
	// re-run the idempotent schema creation and stamp it.
	if version == 0 {
		if err := db.initializeSchema(); err != nil {
			return err
		}
	}

	// Add migration functions here as schema evolves.

	return nil
}

// getSchemaVersion gets the current schema version
func (db *DB) getSchemaVersion() (int, error) {
	var tableName string
	err := db.QueryRow(`
		SELECT name FROM sqlite_master
		WHERE type='table' AND name='schema_version'
	`).Scan(&tableName)

	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	var version int
	err = db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	return version, nil
}

// setSchemaVersion sets the schema version
func setSchemaVersion(tx *sql.Tx, version int) error {
	_, err := tx.Exec("DELETE FROM schema_version")
	if err != nil {
		return err
	}
	_, err = tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version)
	return err
}

// createSchemaVersionTable creates the schema_version tracking table
func createSchemaVersionTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER NOT NULL
		)
	`)
	return err
}

// createDiagnosticHistoryTable creates the diagnostic_history table.
// One row per (project, finding identity); timestamps are epoch millis.
func createDiagnosticHistoryTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS diagnostic_history (
			project_hash TEXT NOT NULL,
			diagnostic_key TEXT NOT NULL,
			file TEXT NOT NULL,
			line INTEGER NOT NULL CHECK(line >= 1),
			column INTEGER NOT NULL CHECK(column >= 1),
			severity TEXT NOT NULL CHECK(severity IN ('error', 'warning', 'info', 'hint')),
			message TEXT NOT NULL,
			source TEXT,
			rule_id TEXT,
			first_seen INTEGER NOT NULL,
			last_seen INTEGER NOT NULL,
			session_id TEXT,

			PRIMARY KEY (project_hash, diagnostic_key)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create diagnostic_history table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_diagnostic_history_last_seen ON diagnostic_history(project_hash, last_seen)",
	}

	for _, indexSQL := range indexes {
		if _, err := tx.Exec(indexSQL); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}

// createDiagnosticReportsTable creates the diagnostic_reports table.
// One row per project, replaced only when a report is actually emitted.
func createDiagnosticReportsTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS diagnostic_reports (
			project_hash TEXT PRIMARY KEY,
			report_hash TEXT NOT NULL,
			reported_at INTEGER NOT NULL,
			diagnostic_count INTEGER NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create diagnostic_reports table: %w", err)
	}
	return nil
}

// createServersTable creates the servers table. Stopped rows are retained
// as an audit trail rather than deleted.
func createServersTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS servers (
			project_hash TEXT PRIMARY KEY,
			project_root TEXT NOT NULL,
			languages TEXT NOT NULL,
			pid INTEGER NOT NULL,
			socket_path TEXT NOT NULL,
			start_time INTEGER NOT NULL,
			last_response INTEGER NOT NULL,
			status TEXT NOT NULL CHECK(status IN ('starting', 'healthy', 'unhealthy', 'stopped'))
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create servers table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_servers_status ON servers(status)",
		"CREATE INDEX IF NOT EXISTS idx_servers_start_time ON servers(start_time)",
	}

	for _, indexSQL := range indexes {
		if _, err := tx.Exec(indexSQL); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}
