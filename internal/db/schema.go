package db

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const SchemaSQL = `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    kind TEXT NOT NULL,
    dataset TEXT,
    created_at TEXT NOT NULL,
    config_json TEXT,
    documents INTEGER NOT NULL,
    processed INTEGER NOT NULL,
    skipped INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS tournament_rows (
    id INTEGER PRIMARY KEY,
    run_id TEXT NOT NULL REFERENCES runs(id),
    filename TEXT NOT NULL,
    window_id INTEGER NOT NULL,
    label TEXT,
    delta_h REAL,
    burstiness REAL NOT NULL,
    mean_human REAL NOT NULL,
    mean_synthetic REAL
);

CREATE TABLE IF NOT EXISTS diagnostic_rows (
    id INTEGER PRIMARY KEY,
    run_id TEXT NOT NULL REFERENCES runs(id),
    filename TEXT NOT NULL,
    window_id INTEGER NOT NULL,
    label TEXT,
    mode TEXT NOT NULL,
    mean_entropy REAL NOT NULL,
    entropy_variance REAL NOT NULL,
    compression_ratio REAL NOT NULL,
    unique_ratio REAL NOT NULL,
    log_base REAL NOT NULL,
    compression TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS skipped_documents (
    id INTEGER PRIMARY KEY,
    run_id TEXT NOT NULL REFERENCES runs(id),
    path TEXT NOT NULL,
    label TEXT,
    stage TEXT NOT NULL,
    error TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tournament_rows_run ON tournament_rows(run_id);
CREATE INDEX IF NOT EXISTS idx_diagnostic_rows_run ON diagnostic_rows(run_id);
`

var tables = map[string]bool{
	"runs":              true,
	"tournament_rows":   true,
	"diagnostic_rows":   true,
	"skipped_documents": true,
}

func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(SchemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return db, nil
}
