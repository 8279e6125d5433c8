package chunk

import (
	"errors"
	"fmt"
	"strings"

	"gonum.org/v1/gonum/stat"

	"maxwell/internal/fault"
)

var ErrInvalidWindow = errors.New("window size and step must be positive")

type Window struct {
	Index int
	Start int
	End   int
}

type Segment struct {
	Index      int
	StartToken int
	EndToken   int
	Text       string
}

type Status string

const (
	StatusOK       Status = "ok"
	StatusEmpty    Status = "empty"
	StatusTooShort Status = "too_short"
)

type Coverage struct {
	Windows     int
	Tokens      int
	DroppedTail int
	Status      Status
}

type Stats struct {
	WindowID    int
	Mean        float64
	Variance    float64
	UniqueRatio float64
}

func validate(size, step int) error {
	if size <= 0 || step <= 0 {
		return fault.AsConfig("chunk", fmt.Errorf("%w: size=%d step=%d", ErrInvalidWindow, size, step))
	}
	return nil
}

// Count is floor((n-size)/step)+1 when n >= size and zero otherwise.
func Count(n, size, step int) int {
	if size <= 0 || step <= 0 || n < size {
		return 0
	}
	return (n-size)/step + 1
}

// Windows yields [i*step, i*step+size) for every window that fits entirely in
// n tokens. A trailing remainder shorter than size is never emitted.
func Windows(n, size, step int) ([]Window, error) {
	if err := validate(size, step); err != nil {
		return nil, err
	}
	out := make([]Window, 0, Count(n, size, step))
	for start := 0; start+size <= n; start += step {
		out = append(out, Window{Index: len(out), Start: start, End: start + size})
	}
	return out, nil
}

func CoverageOf(n, size, step int) Coverage {
	c := Coverage{Tokens: n, Windows: Count(n, size, step)}
	switch {
	case n == 0:
		c.Status = StatusEmpty
	case c.Windows == 0:
		c.Status = StatusTooShort
		c.DroppedTail = n
	default:
		c.Status = StatusOK
		lastEnd := (c.Windows-1)*step + size
		c.DroppedTail = n - lastEnd
	}
	return c
}

// Summarize computes population statistics over one window's values.
func Summarize(id int, values []float64, tokens []string) Stats {
	s := Stats{WindowID: id}
	if len(values) > 0 {
		s.Mean, s.Variance = stat.PopMeanVariance(values, nil)
	}
	s.UniqueRatio = UniqueRatio(tokens)
	return s
}

func UniqueRatio(tokens []string) float64 {
	if len(tokens) == 0 {
		return 0
	}
	seen := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		seen[t] = struct{}{}
	}
	return float64(len(seen)) / float64(len(tokens))
}

// Join renders window tokens the way the compression meter measures them.
func Join(tokens []string) string {
	return strings.Join(tokens, " ")
}

// Segments materializes the strict windows over tokens with their joined text.
func Segments(tokens []string, size, step int) ([]Segment, error) {
	windows, err := Windows(len(tokens), size, step)
	if err != nil {
		return nil, err
	}
	segments := make([]Segment, 0, len(windows))
	for _, w := range windows {
		segments = append(segments, Segment{
			Index:      w.Index,
			StartToken: w.Start,
			EndToken:   w.End,
			Text:       Join(tokens[w.Start:w.End]),
		})
	}
	return segments, nil
}
