package table

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Frame is a loosely typed CSV table, used by tools that post-process score
// tables written by earlier runs.
type Frame struct {
	Columns []string
	Rows    [][]string
	index   map[string]int
}

func NewFrame(columns []string) *Frame {
	f := &Frame{Columns: append([]string(nil), columns...)}
	f.reindex()
	return f
}

func (f *Frame) reindex() {
	f.index = make(map[string]int, len(f.Columns))
	for i, c := range f.Columns {
		f.index[c] = i
	}
}

func (f *Frame) Has(column string) bool {
	_, ok := f.index[column]
	return ok
}

func (f *Frame) Value(row int, column string) string {
	i, ok := f.index[column]
	if !ok || i >= len(f.Rows[row]) {
		return ""
	}
	return f.Rows[row][i]
}

// Float parses a numeric cell. Empty and unparsable cells report false.
func (f *Frame) Float(row int, column string) (float64, bool) {
	raw := strings.TrimSpace(f.Value(row, column))
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func (f *Frame) Require(columns ...string) error {
	for _, c := range columns {
		if !f.Has(c) {
			return fmt.Errorf("%w: %s", ErrMissingColumn, c)
		}
	}
	return nil
}

// Append adds rows from other, widening the column set as needed. Cells of
// columns a source does not have stay empty.
func (f *Frame) Append(other *Frame) {
	for _, c := range other.Columns {
		if !f.Has(c) {
			f.Columns = append(f.Columns, c)
			f.index[c] = len(f.Columns) - 1
		}
	}
	for r := range other.Rows {
		rec := make([]string, len(f.Columns))
		for _, c := range other.Columns {
			rec[f.index[c]] = other.Value(r, c)
		}
		f.Rows = append(f.Rows, rec)
	}
}

func (f *Frame) Write(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(f.Columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := cw.WriteAll(f.Rows); err != nil {
		return fmt.Errorf("write rows: %w", err)
	}
	return nil
}

func ReadFrame(r io.Reader) (*Frame, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("read csv: no header")
	}
	f := NewFrame(records[0])
	f.Rows = records[1:]
	return f, nil
}

func ReadFrameFile(path string) (*Frame, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer fh.Close()
	f, err := ReadFrame(fh)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// ReadFrames concatenates several CSV files into one frame.
func ReadFrames(paths []string) (*Frame, error) {
	var out *Frame
	for _, p := range paths {
		f, err := ReadFrameFile(p)
		if err != nil {
			return nil, err
		}
		if out == nil {
			out = NewFrame(f.Columns)
		}
		out.Append(f)
	}
	if out == nil {
		return nil, fmt.Errorf("no csv inputs")
	}
	return out, nil
}
