package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"maxwell/internal/aidetect"
)

type Run struct {
	ID         string
	Kind       string
	Dataset    string
	CreatedAt  time.Time
	ConfigJSON string
	Documents  int
	Processed  int
	Skipped    int
}

func NewRunID() string { return uuid.NewString() }

func newRun(run Run, kind string, documents, processed, skipped int) Run {
	if run.ID == "" {
		run.ID = NewRunID()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	run.Kind = kind
	run.Documents = documents
	run.Processed = processed
	run.Skipped = skipped
	return run
}

// PersistTournament stores one tournament run with its rows and skipped
// documents in a single transaction.
func PersistTournament(dbPath string, run Run, res *aidetect.TournamentResult) (Run, error) {
	run = newRun(run, "tournament", res.Documents, res.Processed, len(res.Skipped))
	err := withTx(dbPath, func(tx *sql.Tx) error {
		if err := insertRun(tx, run); err != nil {
			return err
		}
		stmt, err := tx.Prepare(`INSERT INTO tournament_rows(run_id, filename, window_id, label, delta_h, burstiness, mean_human, mean_synthetic) VALUES(?,?,?,?,?,?,?,?)`)
		if err != nil {
			return fmt.Errorf("prepare tournament rows: %w", err)
		}
		defer stmt.Close()
		for _, r := range res.Rows {
			var delta, synth any
			if !res.SingleReference {
				delta, synth = r.DeltaH, r.MeanSynthetic
			}
			if _, err := stmt.Exec(run.ID, r.Filename, r.WindowID, nullable(string(r.Label)), delta, r.BurstinessHuman, r.MeanHuman, synth); err != nil {
				return fmt.Errorf("insert tournament row: %w", err)
			}
		}
		return insertSkipped(tx, run.ID, res.Skipped)
	})
	return run, err
}

func PersistDiagnostic(dbPath string, run Run, res *aidetect.DiagnosticResult) (Run, error) {
	run = newRun(run, "diagnostic", res.Documents, res.Processed, len(res.Skipped))
	err := withTx(dbPath, func(tx *sql.Tx) error {
		if err := insertRun(tx, run); err != nil {
			return err
		}
		stmt, err := tx.Prepare(`INSERT INTO diagnostic_rows(run_id, filename, window_id, label, mode, mean_entropy, entropy_variance, compression_ratio, unique_ratio, log_base, compression) VALUES(?,?,?,?,?,?,?,?,?,?,?)`)
		if err != nil {
			return fmt.Errorf("prepare diagnostic rows: %w", err)
		}
		defer stmt.Close()
		for _, r := range res.Rows {
			if _, err := stmt.Exec(run.ID, r.Filename, r.WindowID, nullable(string(r.Label)), string(r.Mode),
				r.MeanEntropy, r.EntropyVariance, r.CompressionRatio, r.UniqueRatio, r.LogBase, string(r.Compression)); err != nil {
				return fmt.Errorf("insert diagnostic row: %w", err)
			}
		}
		return insertSkipped(tx, run.ID, res.Skipped)
	})
	return run, err
}

func withTx(dbPath string, fn func(tx *sql.Tx) error) error {
	conn, err := Open(dbPath)
	if err != nil {
		return err
	}
	defer conn.Close()

	tx, err := conn.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func insertRun(tx *sql.Tx, run Run) error {
	_, err := tx.Exec(
		`INSERT INTO runs(id, kind, dataset, created_at, config_json, documents, processed, skipped) VALUES(?,?,?,?,?,?,?,?)`,
		run.ID,
		run.Kind,
		run.Dataset,
		run.CreatedAt.Format(time.RFC3339Nano),
		run.ConfigJSON,
		run.Documents,
		run.Processed,
		run.Skipped,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func insertSkipped(tx *sql.Tx, runID string, skipped []aidetect.Skip) error {
	for _, s := range skipped {
		if _, err := tx.Exec(
			`INSERT INTO skipped_documents(run_id, path, label, stage, error) VALUES(?,?,?,?,?)`,
			runID, s.Path, nullable(string(s.Label)), string(s.Stage), s.Err.Error(),
		); err != nil {
			return fmt.Errorf("insert skipped document: %w", err)
		}
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func ListRuns(dbPath string) ([]Run, error) {
	conn, err := Open(dbPath)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	rows, err := conn.Query(`SELECT id, kind, COALESCE(dataset, ''), created_at, COALESCE(config_json, ''), documents, processed, skipped FROM runs ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var created string
		if err := rows.Scan(&r.ID, &r.Kind, &r.Dataset, &created, &r.ConfigJSON, &r.Documents, &r.Processed, &r.Skipped); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.CreatedAt, err = time.Parse(time.RFC3339Nano, created)
		if err != nil {
			return nil, fmt.Errorf("parse run time: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func CountRows(dbPath, table string) (int, error) {
	conn, err := Open(dbPath)
	if err != nil {
		return 0, err
	}
	defer conn.Close()
	return countRowsConn(conn, table, "")
}

// CountRunRows counts the rows a single run wrote to table.
func CountRunRows(dbPath, table, runID string) (int, error) {
	conn, err := Open(dbPath)
	if err != nil {
		return 0, err
	}
	defer conn.Close()
	return countRowsConn(conn, table, runID)
}

func countRowsConn(conn *sql.DB, table, runID string) (int, error) {
	if !tables[table] {
		return 0, fmt.Errorf("unknown table %q", table)
	}
	var row *sql.Row
	switch {
	case runID == "":
		row = conn.QueryRow(`SELECT COUNT(*) FROM ` + table)
	case table == "runs":
		row = conn.QueryRow(`SELECT COUNT(*) FROM runs WHERE id = ?`, runID)
	default:
		row = conn.QueryRow(`SELECT COUNT(*) FROM `+table+` WHERE run_id = ?`, runID)
	}
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("scan count: %w", err)
	}
	return count, nil
}
