// Package table reads and writes the CSV score tables.
package table

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"maxwell/internal/aidetect"
)

var (
	TournamentColumns      = []string{"filename", "window_id", "label", "delta_h", "burstiness_paisa"}
	SingleReferenceColumns = []string{"filename", "window_id", "label", "mean_human", "burstiness_paisa"}
	DiagnosticColumns      = []string{"filename", "window_id", "mean_entropy", "entropy_variance", "compression_ratio", "unique_ratio", "mode", "label", "log_base", "compression"}
	ErrMissingColumn       = errors.New("missing column")
)

// FormatFloat uses the shortest representation that parses back to v.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func WriteTournament(w io.Writer, res *aidetect.TournamentResult) error {
	cw := csv.NewWriter(w)
	header := TournamentColumns
	if res.SingleReference {
		header = SingleReferenceColumns
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range res.Rows {
		score := r.DeltaH
		if res.SingleReference {
			score = r.MeanHuman
		}
		rec := []string{r.Filename, strconv.Itoa(r.WindowID), string(r.Label), FormatFloat(score), FormatFloat(r.BurstinessHuman)}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func WriteDiagnostic(w io.Writer, rows []aidetect.DiagnosticRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(DiagnosticColumns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range rows {
		rec := []string{
			r.Filename,
			strconv.Itoa(r.WindowID),
			FormatFloat(r.MeanEntropy),
			FormatFloat(r.EntropyVariance),
			FormatFloat(r.CompressionRatio),
			FormatFloat(r.UniqueRatio),
			string(r.Mode),
			string(r.Label),
			FormatFloat(r.LogBase),
			string(r.Compression),
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFile creates parent directories and writes through fn.
func WriteFile(path string, fn func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(path), err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := fn(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}
