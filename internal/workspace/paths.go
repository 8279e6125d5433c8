package workspace

import (
	"path/filepath"
	"regexp"
	"strings"
)

const DefaultDataset = "default"

var (
	unsafeName   = regexp.MustCompile(`[^a-z0-9_-]+`)
	genericNames = map[string]bool{"": true, ".": true, "data": true, "results": true, "plot": true, "plots": true, "human": true, "ai": true}
)

func SanitizeName(value string) string {
	cleaned := unsafeName.ReplaceAllString(strings.ToLower(strings.TrimSpace(value)), "-")
	cleaned = strings.Trim(cleaned, "-")
	if cleaned == "" {
		return DefaultDataset
	}
	return cleaned
}

func candidate(path string) string {
	parts := strings.Split(filepath.ToSlash(filepath.Clean(path)), "/")
	for _, marker := range []string{"results", "data"} {
		for i, p := range parts {
			if p == marker {
				if i+1 < len(parts) {
					return parts[i+1]
				}
				break
			}
		}
	}
	if filepath.Ext(path) != "" {
		return filepath.Base(filepath.Dir(path))
	}
	return filepath.Base(path)
}

// InferDatasetName picks the most common non-generic dataset name among the
// input paths. Ties go to the name seen first.
func InferDatasetName(paths []string) string {
	counts := map[string]int{}
	var order []string
	for _, p := range paths {
		name := SanitizeName(candidate(p))
		if genericNames[name] {
			continue
		}
		if counts[name] == 0 {
			order = append(order, name)
		}
		counts[name]++
	}
	best := DefaultDataset
	bestN := 0
	for _, name := range order {
		if counts[name] > bestN {
			best, bestN = name, counts[name]
		}
	}
	return best
}

func ResolveTemplate(template, dataset string) string {
	return strings.ReplaceAll(template, "{dataset}", dataset)
}

func slug(value string) string {
	return strings.ReplaceAll(SanitizeName(value), "-", "_")
}

func SingleOutputFilename(mode, reference string, humanOnly bool) string {
	if humanOnly {
		return "single_human_only_paisa.csv"
	}
	if mode == "diff" && reference != "" {
		return "single_diff_" + slug(reference) + ".csv"
	}
	return "single_" + slug(mode) + ".csv"
}

const (
	TournamentFilename = "final_delta.csv"
	ReportFilename     = "final_report.md"
	AggregateFilename  = "document_level.csv"
)

// Sibling replaces the extension of path, keeping its directory and stem.
func Sibling(path, ext string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ext
}
