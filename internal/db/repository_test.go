package db

import (
	"path/filepath"
	"testing"

	"maxwell/internal/aidetect"
	"maxwell/internal/compress"
	"maxwell/internal/ingest"
	"maxwell/internal/surprisal"
)

func TestPersistTournament(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "scores.db")
	res := &aidetect.TournamentResult{
		Documents: 3,
		Processed: 2,
		Rows: []aidetect.TournamentRow{
			{Filename: "a.txt", WindowID: 0, Label: aidetect.LabelHuman, DeltaH: -0.4, MeanHuman: 5, MeanSynthetic: 5.4, BurstinessHuman: 2},
			{Filename: "a.txt", WindowID: 1, Label: aidetect.LabelHuman, DeltaH: -0.1, MeanHuman: 5, MeanSynthetic: 5.1, BurstinessHuman: 3},
			{Filename: "b.txt", WindowID: 0, Label: aidetect.LabelAI, DeltaH: 0.3, MeanHuman: 6, MeanSynthetic: 5.7, BurstinessHuman: 1},
		},
		Skipped: []aidetect.Skip{{Path: "c.txt", Label: aidetect.LabelAI, Stage: aidetect.StageLoad, Err: ingest.ErrNotFound}},
	}

	run, err := PersistTournament(dbPath, Run{Dataset: "news"}, res)
	if err != nil {
		t.Fatalf("persist tournament: %v", err)
	}
	if run.ID == "" || run.Kind != "tournament" {
		t.Fatalf("expected generated run id and kind, got %+v", run)
	}

	rows, err := CountRunRows(dbPath, "tournament_rows", run.ID)
	if err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if rows != 3 {
		t.Fatalf("expected 3 rows, got %d", rows)
	}
	skipped, err := CountRows(dbPath, "skipped_documents")
	if err != nil {
		t.Fatalf("count skipped: %v", err)
	}
	if skipped != 1 {
		t.Fatalf("expected 1 skipped document, got %d", skipped)
	}

	second, err := PersistTournament(dbPath, Run{}, res)
	if err != nil {
		t.Fatalf("persist second run: %v", err)
	}
	if second.ID == run.ID {
		t.Fatal("expected distinct run ids")
	}
	total, err := CountRows(dbPath, "tournament_rows")
	if err != nil {
		t.Fatalf("count total: %v", err)
	}
	if total != 6 {
		t.Fatalf("expected 6 rows across runs, got %d", total)
	}

	runs, err := ListRuns(dbPath)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 2 || runs[0].Processed+runs[0].Skipped != runs[0].Documents {
		t.Fatalf("expected two reconciled runs, got %+v", runs)
	}
}

func TestPersistDiagnostic(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "scores.db")
	res := &aidetect.DiagnosticResult{
		Mode:      surprisal.ModeRaw,
		Documents: 1,
		Processed: 1,
		Rows: []aidetect.DiagnosticRow{
			{Filename: "x.txt", WindowID: 0, MeanEntropy: 3, EntropyVariance: 1, CompressionRatio: 0.6, UniqueRatio: 0.8, Mode: surprisal.ModeRaw, LogBase: 2, Compression: compress.LZMA},
		},
	}
	run, err := PersistDiagnostic(dbPath, Run{ID: "fixed-id"}, res)
	if err != nil {
		t.Fatalf("persist diagnostic: %v", err)
	}
	if run.ID != "fixed-id" {
		t.Fatalf("expected caller run id to be kept, got %s", run.ID)
	}
	n, err := CountRunRows(dbPath, "diagnostic_rows", "fixed-id")
	if err != nil || n != 1 {
		t.Fatalf("expected 1 diagnostic row, got %d (%v)", n, err)
	}
	if _, err := PersistDiagnostic(dbPath, Run{ID: "fixed-id"}, res); err == nil {
		t.Fatal("expected duplicate run id to fail")
	}
	n, err = CountRows(dbPath, "diagnostic_rows")
	if err != nil || n != 1 {
		t.Fatalf("expected failed transaction to leave 1 row, got %d (%v)", n, err)
	}
}

func TestCountRowsRejectsUnknownTable(t *testing.T) {
	_, err := CountRows(filepath.Join(t.TempDir(), "x.db"), "sqlite_master; DROP TABLE runs")
	if err == nil {
		t.Fatal("expected unknown table error")
	}
}
