package cli

import (
	"encoding/json"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"maxwell/internal/aidetect"
	"maxwell/internal/config"
	"maxwell/internal/db"
	"maxwell/internal/fault"
	"maxwell/internal/ingest"
	"maxwell/internal/refdict"
	"maxwell/internal/tokenize"
	"maxwell/internal/workspace"
)

// scoringFlags are per-command overrides applied on top of the config file
// and environment. Only flags the user actually set take effect.
type scoringFlags struct {
	window      int
	step        int
	logBase     float64
	compression string
	workers     int
	method      string
}

func (f *scoringFlags) bind(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.window, "window", 50, "Window size in tokens")
	cmd.Flags().IntVar(&f.step, "step", 10, "Window step in tokens")
	cmd.Flags().Float64Var(&f.logBase, "log-base", 0, "Logarithm base for surprisal (default e)")
	cmd.Flags().StringVar(&f.compression, "compression", "lzma", "Compression codec: lzma, gzip, bz2, zlib")
	cmd.Flags().IntVar(&f.workers, "workers", 0, "Concurrent documents (0 = number of CPUs)")
	cmd.Flags().StringVar(&f.method, "tokenization", "", "Tokenization method: subword or legacy")
}

func (f *scoringFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	changed := cmd.Flags().Changed
	if changed("window") {
		cfg.Analysis.Window = f.window
	}
	if changed("step") {
		cfg.Analysis.Step = f.step
	}
	if changed("log-base") {
		cfg.Analysis.LogBase = f.logBase
	}
	if changed("compression") {
		cfg.Compression.Algorithm = f.compression
	}
	if changed("workers") {
		cfg.Analysis.Workers = f.workers
	}
	if changed("tokenization") {
		cfg.Tokenization.Method = tokenize.Method(f.method)
	}
}

func (c *CLI) loadConfig() (config.Config, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return cfg, err
	}
	cfg.ApplyEnvOverrides()
	return cfg, nil
}

func loadReference(path string, s config.Scoring) (*refdict.Dictionary, error) {
	d, err := refdict.Load(path, refdict.LoadOptions{UnknownProbability: s.UnknownProbability})
	if err != nil {
		return nil, err
	}
	slog.Debug("reference loaded", "path", path, "tokens", d.Len(), "unknown", d.Unknown())
	return d, nil
}

func collectDocuments(paths []string, label aidetect.Label) ([]aidetect.Document, error) {
	files, err := ingest.CollectAll(paths)
	if err != nil {
		return nil, fault.AsResource("collect", err)
	}
	docs := make([]aidetect.Document, len(files))
	for i, f := range files {
		docs[i] = aidetect.Document{Path: f, Label: label}
	}
	return docs, nil
}

func outputPath(explicit string, cfg config.Config, inputs []string, filename string) (string, string) {
	dataset := workspace.InferDatasetName(inputs)
	if explicit != "" {
		return explicit, dataset
	}
	return filepath.Join(workspace.ResolveTemplate(cfg.Output.DataDir, dataset), filename), dataset
}

type runRecord struct {
	id        string
	kind      string
	dataset   string
	cfg       config.Config
	documents int
	processed int
	rows      int
	short     []aidetect.ShortDocument
	skipped   []aidetect.Skip
	artifacts map[string]string
	degraded  bool
}

func (r runRecord) manifest() workspace.Manifest {
	m := workspace.Manifest{
		RunID:     r.id,
		Kind:      r.kind,
		Dataset:   r.dataset,
		CreatedAt: time.Now().UTC(),
		Config:    r.cfg,
		Documents: r.documents,
		Processed: r.processed,
		Rows:      r.rows,
		Artifacts: r.artifacts,
		Degraded:  r.degraded,
	}
	for _, s := range r.short {
		m.Short = append(m.Short, s.Path)
	}
	for _, s := range r.skipped {
		e := s.Entry()
		m.Skipped = append(m.Skipped, workspace.SkippedDocument{
			Path:  s.Path,
			Label: string(s.Label),
			Stage: e.Stage,
			Type:  e.Type,
			Error: e.Message,
		})
	}
	return m
}

func (r runRecord) dbRun() db.Run {
	raw, err := json.Marshal(r.cfg)
	if err != nil {
		slog.Warn("could not encode config for run record", "error", err)
	}
	return db.Run{ID: r.id, Dataset: r.dataset, ConfigJSON: string(raw)}
}

func writeManifest(csvPath string, r runRecord) error {
	path := workspace.Sibling(csvPath, ".manifest.json")
	if err := workspace.WriteManifest(path, r.manifest()); err != nil {
		return fault.AsResource("manifest", err)
	}
	slog.Debug("manifest written", "path", path)
	return nil
}
