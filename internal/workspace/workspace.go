package workspace

import (
	"fmt"
	"os"
	"path/filepath"
)

// Layout is the on-disk tree used by calibration and scoring runs.
type Layout struct {
	Root      string
	Reference string
	Raw       string
	Results   string
}

func LayoutAt(base string) Layout {
	return Layout{
		Root:      base,
		Reference: filepath.Join(base, "data", "reference"),
		Raw:       filepath.Join(base, "data", "raw"),
		Results:   filepath.Join(base, "results"),
	}
}

func EnsureAt(base string) (Layout, error) {
	l := LayoutAt(base)
	for _, p := range []string{l.Reference, l.Raw, l.Results} {
		if err := os.MkdirAll(p, 0o755); err != nil {
			return Layout{}, fmt.Errorf("mkdir %s: %w", p, err)
		}
	}
	return l, nil
}
