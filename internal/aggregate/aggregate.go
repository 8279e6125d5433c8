// Package aggregate rolls window-level score tables up to one row per
// document.
package aggregate

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/montanaflynn/stats"

	"maxwell/internal/table"
)

var (
	DefaultGroupBy = []string{"filename", "label", "mode", "reference"}
	KnownMetrics   = []string{"mean_entropy", "entropy_variance", "compression_ratio", "unique_ratio", "delta_h", "burstiness_paisa", "mean_human"}
	DefaultStats   = []string{"mean", "median", "std", "min", "max", "p10", "p25", "p75", "p90"}

	ErrNoInput          = errors.New("no csv files found")
	ErrNoGroupColumns   = errors.New("no valid group-by columns and no filename column")
	ErrNoMetrics        = errors.New("no numeric metrics available for aggregation")
	ErrUnsupportedStats = errors.New("unsupported stats")
)

var quantiles = map[string]float64{"p10": 0.10, "p25": 0.25, "p75": 0.75, "p90": 0.90}

type Options struct {
	GroupBy []string
	Metrics []string
	Stats   []string
	SortBy  []string
	Logger  *slog.Logger
}

func DefaultOptions() Options {
	return Options{GroupBy: DefaultGroupBy, Stats: DefaultStats}
}

// SplitList parses a comma-separated flag value.
func SplitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// CollectCSVs returns path itself for a .csv file, or every .csv beneath a
// directory in sorted order.
func CollectCSVs(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("input path: %w", err)
	}
	if !info.IsDir() {
		if strings.EqualFold(filepath.Ext(path), ".csv") {
			return []string{path}, nil
		}
		return nil, fmt.Errorf("%w: %s is not a csv file", ErrNoInput, path)
	}
	var out []string
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(p), ".csv") {
			out = append(out, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", path, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: under %s", ErrNoInput, path)
	}
	sort.Strings(out)
	return out, nil
}

type group struct {
	key    []string
	values map[string][]float64
	n      int
}

// Aggregate groups rows by the resolved group columns and emits n_windows
// plus one <metric>__<stat> column per requested pair.
func Aggregate(f *table.Frame, opts Options) (*table.Frame, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	groupCols := resolveGroups(f, opts.GroupBy, logger)
	if len(groupCols) == 0 {
		return nil, ErrNoGroupColumns
	}
	metrics, err := resolveMetrics(f, opts.Metrics, logger)
	if err != nil {
		return nil, err
	}
	statNames, err := resolveStats(opts.Stats)
	if err != nil {
		return nil, err
	}

	var order []*group
	byKey := map[string]*group{}
	for r := range f.Rows {
		key := make([]string, len(groupCols))
		for i, c := range groupCols {
			key[i] = f.Value(r, c)
		}
		id := strings.Join(key, "\x00")
		g, ok := byKey[id]
		if !ok {
			g = &group{key: key, values: map[string][]float64{}}
			byKey[id] = g
			order = append(order, g)
		}
		g.n++
		for _, m := range metrics {
			if v, ok := f.Float(r, m); ok {
				g.values[m] = append(g.values[m], v)
			}
		}
	}

	columns := append(append([]string{}, groupCols...), "n_windows")
	for _, m := range metrics {
		for _, s := range statNames {
			columns = append(columns, m+"__"+s)
		}
	}
	out := table.NewFrame(columns)
	for _, g := range order {
		rec := append(append([]string{}, g.key...), strconv.Itoa(g.n))
		for _, m := range metrics {
			for _, s := range statNames {
				rec = append(rec, formatCell(compute(g.values[m], s)))
			}
		}
		out.Rows = append(out.Rows, rec)
	}

	sortFrame(out, resolveSort(out, opts.SortBy, logger))
	return out, nil
}

func resolveGroups(f *table.Frame, requested []string, logger *slog.Logger) []string {
	if len(requested) == 0 {
		requested = DefaultGroupBy
	}
	var cols, missing []string
	for _, c := range requested {
		if f.Has(c) {
			cols = append(cols, c)
		} else {
			missing = append(missing, c)
		}
	}
	warnIgnored(logger, "group columns", missing)
	if len(cols) == 0 && f.Has("filename") {
		cols = []string{"filename"}
	}
	return cols
}

func resolveMetrics(f *table.Frame, requested []string, logger *slog.Logger) ([]string, error) {
	var candidates, missing []string
	if len(requested) > 0 {
		for _, m := range requested {
			if f.Has(m) {
				candidates = append(candidates, m)
			} else {
				missing = append(missing, m)
			}
		}
		warnIgnored(logger, "metrics", missing)
	} else {
		for _, m := range KnownMetrics {
			if f.Has(m) {
				candidates = append(candidates, m)
			}
		}
	}

	var numeric, nonNumeric []string
	for _, m := range candidates {
		if isNumeric(f, m) {
			numeric = append(numeric, m)
		} else {
			nonNumeric = append(nonNumeric, m)
		}
	}
	warnIgnored(logger, "non-numeric metrics", nonNumeric)
	if len(numeric) == 0 {
		return nil, ErrNoMetrics
	}
	return numeric, nil
}

func isNumeric(f *table.Frame, column string) bool {
	for r := range f.Rows {
		if strings.TrimSpace(f.Value(r, column)) == "" {
			continue
		}
		if _, ok := f.Float(r, column); !ok {
			return false
		}
	}
	return true
}

func resolveStats(requested []string) ([]string, error) {
	if len(requested) == 0 {
		return DefaultStats, nil
	}
	var unknown []string
	for _, s := range requested {
		if !supportedStat(s) {
			unknown = append(unknown, s)
		}
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedStats, strings.Join(unknown, ", "))
	}
	return requested, nil
}

func supportedStat(s string) bool {
	switch s {
	case "mean", "median", "std", "min", "max":
		return true
	}
	_, ok := quantiles[s]
	return ok
}

func resolveSort(f *table.Frame, requested []string, logger *slog.Logger) []string {
	if len(requested) == 0 {
		if f.Has("filename") {
			return []string{"filename"}
		}
		return nil
	}
	var cols, missing []string
	for _, c := range requested {
		if f.Has(c) {
			cols = append(cols, c)
		} else {
			missing = append(missing, c)
		}
	}
	warnIgnored(logger, "sort columns", missing)
	return cols
}

func sortFrame(f *table.Frame, cols []string) {
	if len(cols) == 0 {
		return
	}
	idx := make([]int, len(f.Rows))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		for _, c := range cols {
			va, vb := f.Value(idx[a], c), f.Value(idx[b], c)
			if va == vb {
				continue
			}
			fa, okA := f.Float(idx[a], c)
			fb, okB := f.Float(idx[b], c)
			if okA && okB {
				return fa < fb
			}
			return va < vb
		}
		return false
	})
	rows := make([][]string, len(idx))
	for i, j := range idx {
		rows[i] = f.Rows[j]
	}
	f.Rows = rows
}

func warnIgnored(logger *slog.Logger, kind string, items []string) {
	if len(items) > 0 {
		logger.Warn("ignoring missing "+kind, "items", strings.Join(items, ", "))
	}
}

// compute returns NaN where the statistic is undefined, such as the sample
// standard deviation of a single value.
func compute(values []float64, name string) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	data := stats.Float64Data(values)
	var (
		v   float64
		err error
	)
	switch name {
	case "mean":
		v, err = stats.Mean(data)
	case "median":
		v, err = stats.Median(data)
	case "std":
		if len(values) < 2 {
			return math.NaN()
		}
		v, err = stats.StandardDeviationSample(data)
	case "min":
		v, err = stats.Min(data)
	case "max":
		v, err = stats.Max(data)
	default:
		v, err = Quantile(values, quantiles[name])
	}
	if err != nil {
		return math.NaN()
	}
	return v
}

// Quantile interpolates linearly between closest ranks at position
// q*(n-1), the same definition pandas uses by default.
func Quantile(values []float64, q float64) (float64, error) {
	if len(values) == 0 {
		return math.NaN(), stats.ErrEmptyInput
	}
	if q < 0 || q > 1 {
		return math.NaN(), stats.ErrBounds
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac, nil
}

func formatCell(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return table.FormatFloat(v)
}
