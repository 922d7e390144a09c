package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hpungsan/keep/internal/config"
	_ "modernc.org/sqlite"
)

// CurrentSchemaVersion is the latest schema version.
// Bump this when adding migrations.
const CurrentSchemaVersion = 1

// Init initializes the SQLite database at storeDir/keep.db.
// The storeDir parameter allows tests to use t.TempDir() instead of ~/.keep.
func Init(storeDir string) (*sql.DB, error) {
	// Create store directory with restricted permissions
	if err := os.MkdirAll(storeDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	// Explicit chmod (best-effort, may not work on all platforms)
	_ = os.Chmod(storeDir, 0700)

	// Open database with pragmas in connection string (applies to all connections)
	dbPath := filepath.Join(storeDir, "keep.db")
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Verify WAL mode is active
	if err := verifyWALMode(db); err != nil {
		db.Close()
		return nil, err
	}

	// Run migrations (this creates the file if it doesn't exist)
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	// Set file permissions after file exists (best-effort)
	_ = os.Chmod(dbPath, 0600)

	return db, nil
}

// ConfigurePool applies connection pool settings from config.
// Only sets limits if explicitly configured (non-zero values).
// Call after Init if you need to tune pool behavior for contention.
func ConfigurePool(db *sql.DB, cfg *config.Config) {
	if cfg == nil {
		return
	}
	if cfg.DBMaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	}
	if cfg.DBMaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	}
}

// migrate applies schema migrations based on user_version.
func migrate(db *sql.DB) error {
	version, err := GetUserVersion(db)
	if err != nil {
		return err
	}

	// Migration 0 -> 1: Initial schema (v1)
	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS documents (
		  id           TEXT NOT NULL,
		  collection   TEXT NOT NULL,
		  summary      TEXT NOT NULL,
		  tags_json    TEXT NOT NULL DEFAULT '{}',
		  content_hash TEXT NOT NULL DEFAULT '',
		  created_at   TEXT NOT NULL,
		  updated_at   TEXT NOT NULL,
		  accessed_at  TEXT NOT NULL,
		  PRIMARY KEY (id, collection)
		);

		CREATE INDEX IF NOT EXISTS idx_documents_collection_updated
		ON documents(collection, updated_at DESC);

		CREATE INDEX IF NOT EXISTS idx_documents_collection_accessed
		ON documents(collection, accessed_at DESC);

		CREATE TABLE IF NOT EXISTS document_versions (
		  id           TEXT NOT NULL,
		  collection   TEXT NOT NULL,
		  version      INTEGER NOT NULL,
		  summary      TEXT NOT NULL,
		  tags_json    TEXT NOT NULL DEFAULT '{}',
		  content_hash TEXT NOT NULL DEFAULT '',
		  created_at   TEXT NOT NULL,
		  PRIMARY KEY (id, collection, version)
		);

		CREATE TABLE IF NOT EXISTS tag_index (
		  collection TEXT NOT NULL,
		  key        TEXT NOT NULL,
		  value      TEXT NOT NULL,
		  id         TEXT NOT NULL,
		  PRIMARY KEY (collection, key, value, id)
		);

		CREATE INDEX IF NOT EXISTS idx_tag_index_id
		ON tag_index(collection, id);

		CREATE TABLE IF NOT EXISTS pending_summaries (
		  job_id     TEXT PRIMARY KEY,
		  id         TEXT NOT NULL,
		  collection TEXT NOT NULL,
		  content    TEXT NOT NULL,
		  attempts   INTEGER NOT NULL DEFAULT 0,
		  created_at TEXT NOT NULL
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_pending_doc
		ON pending_summaries(collection, id);
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if err := SetUserVersion(db, 1); err != nil {
			return err
		}
	}

	// Future migrations go here:
	// if version < 2 { ... }

	return nil
}

// verifyWALMode checks that WAL mode is active (set via connection string).
func verifyWALMode(db *sql.DB) error {
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		return fmt.Errorf("failed to verify journal mode: %w", err)
	}
	if journalMode != "wal" {
		return fmt.Errorf("expected WAL mode, got %s", journalMode)
	}
	return nil
}

// GetUserVersion returns the current schema version (user_version pragma).
func GetUserVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get user_version: %w", err)
	}
	return version, nil
}

// SetUserVersion sets the schema version (user_version pragma).
func SetUserVersion(db *sql.DB, version int) error {
	_, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", version))
	if err != nil {
		return fmt.Errorf("failed to set user_version: %w", err)
	}
	return nil
}
