package workspace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

type SkippedDocument struct {
	Path  string `json:"path"`
	Label string `json:"label,omitempty"`
	Stage string `json:"stage"`
	Type  string `json:"type"`
	Error string `json:"error"`
}

// Manifest records what a run consumed and produced so that its row count
// can be reconciled against its inputs later.
type Manifest struct {
	RunID     string            `json:"run_id"`
	Kind      string            `json:"kind"`
	Dataset   string            `json:"dataset"`
	CreatedAt time.Time         `json:"created_at"`
	Config    any               `json:"config,omitempty"`
	Documents int               `json:"documents"`
	Processed int               `json:"processed"`
	Rows      int               `json:"rows"`
	Short     []string          `json:"short_documents"`
	Skipped   []SkippedDocument `json:"skipped_documents"`
	Artifacts map[string]string `json:"artifacts"`
	Degraded  bool              `json:"tokenizer_degraded,omitempty"`
}

func WriteManifest(path string, m Manifest) error {
	if m.Short == nil {
		m.Short = []string{}
	}
	if m.Skipped == nil {
		m.Skipped = []SkippedDocument{}
	}
	if m.Artifacts == nil {
		m.Artifacts = map[string]string{}
	}
	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

func ReadManifest(path string) (*Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return &m, nil
}
