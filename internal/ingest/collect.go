package ingest

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var supported = map[string]bool{".txt": true, ".md": true, ".docx": true, ".pdf": true}

func Supported(path string) bool {
	return supported[strings.ToLower(filepath.Ext(path))]
}

// Collect expands a file or directory into a sorted list of documents.
// A single file is returned as given, whatever its extension, so that the
// caller sees the parse error for it.
func Collect(path string) ([]string, error) {
	return collect(path, Supported)
}

func collect(path string, accept func(string) bool) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var out []string
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			if p != path && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if accept(p) {
			out = append(out, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", path, err)
	}
	sort.Strings(out)
	return out, nil
}

func CollectAll(paths []string) ([]string, error) {
	var out []string
	for _, p := range paths {
		files, err := Collect(p)
		if err != nil {
			return nil, err
		}
		out = append(out, files...)
	}
	return out, nil
}
