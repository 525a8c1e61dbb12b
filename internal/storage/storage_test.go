package storage

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/amondnet/claude-lsp-cli-sub001/internal/logging"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	tmpDir := t.TempDir()
	db, err := Open(tmpDir, logging.Discard())
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("Failed to close database: %v", err)
		}
	})

	return db
}

func TestDatabaseInitialization(t *testing.T) {
	tmpDir := t.TempDir()
	db, err := Open(tmpDir, logging.Discard())
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(filepath.Join(tmpDir, "lspcli.db")); os.IsNotExist(err) {
		t.Fatal("Database file was not created")
	}

	version, err := db.getSchemaVersion()
	if err != nil {
		t.Fatalf("Failed to get schema version: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("Expected schema version %d, got %d", currentSchemaVersion, version)
	}
}

func TestReopenExistingDatabase(t *testing.T) {
	tmpDir := t.TempDir()

	db, err := Open(tmpDir, logging.Discard())
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Failed to close database: %v", err)
	}

	// Second open must find the schema intact and up to date.
	db, err = Open(tmpDir, logging.Discard())
	if err != nil {
		t.Fatalf("Failed to reopen database: %v", err)
	}
	defer db.Close()

	var count int
	err = db.QueryRow(`
		SELECT COUNT(*) FROM sqlite_master
		WHERE type='table' AND name IN ('diagnostic_history', 'diagnostic_reports', 'servers')
	`).Scan(&count)
	if err != nil {
		t.Fatalf("Failed to query tables: %v", err)
	}
	if count != 3 {
		t.Errorf("Expected 3 application tables, got %d", count)
	}
}

func TestNewerSchemaVersionRefused(t *testing.T) {
	tmpDir := t.TempDir()

	db, err := Open(tmpDir, logging.Discard())
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}

	if _, err := db.Exec("UPDATE schema_version SET version = ?", currentSchemaVersion+10); err != nil {
		t.Fatalf("Failed to bump schema version: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Failed to close database: %v", err)
	}

	if _, err := Open(tmpDir, logging.Discard()); err == nil {
		t.Fatal("Expected open to refuse a newer schema version")
	}
}

func TestWithTxRollsBackOnError(t *testing.T) {
	db := setupTestDB(t)

	insertErr := db.WithTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO diagnostic_reports (project_hash, report_hash, reported_at, diagnostic_count)
			VALUES ('abc', 'h1', 1000, 3)
		`)
		if err != nil {
			return err
		}
		return os.ErrInvalid // force rollback
	})
	if insertErr == nil {
		t.Fatal("Expected error from transaction function")
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM diagnostic_reports").Scan(&count); err != nil {
		t.Fatalf("Failed to count rows: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected rollback to discard the insert, found %d rows", count)
	}
}

func TestSeverityConstraint(t *testing.T) {
	db := setupTestDB(t)

	_, err := db.Exec(`
		INSERT INTO diagnostic_history
			(project_hash, diagnostic_key, file, line, column, severity, message, first_seen, last_seen)
		VALUES ('abc', 'key1', 'a.ts', 1, 1, 'catastrophic', 'X', 1000, 1000)
	`)
	if err == nil {
		t.Fatal("Expected severity CHECK constraint to reject unknown value")
	}
}
