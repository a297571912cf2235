package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
)

const currentSchemaVersion = 2

// Schema definitions
const schemaVersionTable = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY
);
`

const filesTable = `
CREATE TABLE IF NOT EXISTS files (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	project_root TEXT NOT NULL,
	relative_path TEXT NOT NULL,
	indexed_at TEXT NOT NULL DEFAULT (datetime('now')),
	UNIQUE(project_root, relative_path)
);

CREATE INDEX IF NOT EXISTS idx_files_project_root ON files(project_root);
`

const chunksTable = `
CREATE TABLE IF NOT EXISTS chunks (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	file_id INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
	chunk_index INTEGER NOT NULL,
	content TEXT NOT NULL,
	UNIQUE(file_id, chunk_index)
);

CREATE INDEX IF NOT EXISTS idx_chunks_file_id ON chunks(file_id);
`

// Vectors are little-endian float32 blobs, the format sqlite-vec's scalar
// functions accept directly.
const embeddingsTable = `
CREATE TABLE IF NOT EXISTS embeddings (
	chunk_id INTEGER PRIMARY KEY REFERENCES chunks(id) ON DELETE CASCADE,
	vector BLOB NOT NULL,
	dimensions INTEGER NOT NULL
);
`

const contentHashColumn = `
ALTER TABLE files ADD COLUMN content_hash TEXT NOT NULL DEFAULT '';
`

const indexRunsTable = `
CREATE TABLE IF NOT EXISTS index_runs (
	project_root TEXT PRIMARY KEY,
	run_id TEXT NOT NULL,
	indexed_at TEXT NOT NULL,
	file_count INTEGER NOT NULL,
	chunk_count INTEGER NOT NULL
);
`

type migration struct {
	version    int
	statements []string
}

var migrations = []migration{
	{version: 1, statements: []string{filesTable, chunksTable, embeddingsTable}},
	{version: 2, statements: []string{contentHashColumn, indexRunsTable}},
}

// initSchema brings the database up to currentSchemaVersion. Each migration
// runs in its own transaction, so a failed step leaves the previous version.
func initSchema(db *sql.DB) error {
	if _, err := db.Exec(schemaVersionTable); err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	var version int
	err := db.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		version = 0
	} else if err != nil {
		return fmt.Errorf("failed to check schema version: %w", err)
	}

	if version >= currentSchemaVersion {
		log.Debug("Schema is up to date", "version", version)
		return nil
	}

	log.Debug("Migrating schema", "from", version, "to", currentSchemaVersion)

	for _, m := range migrations {
		if m.version <= version {
			continue
		}
		if err := applyMigration(db, m); err != nil {
			return fmt.Errorf("failed to migrate to v%d: %w", m.version, err)
		}
	}

	return nil
}

func applyMigration(db *sql.DB, m migration) error {
	log.Debug("Applying migration", "version", m.version)

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range m.statements {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}

	if _, err := tx.Exec("INSERT OR REPLACE INTO schema_version (version) VALUES (?)", m.version); err != nil {
		return fmt.Errorf("failed to update schema version: %w", err)
	}

	return tx.Commit()
}

// schemaVersion reports the applied schema version.
func schemaVersion(db *sql.DB) (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	return version, err
}
