package refdict

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"maxwell/internal/fault"
	"maxwell/internal/tokenize"
)

// Counter accumulates token frequencies. It is not safe for concurrent use;
// CountCorpus gives each file its own Counter and merges them.
type Counter struct {
	counts map[string]int64
}

func NewCounter() *Counter {
	return &Counter{counts: map[string]int64{}}
}

func (c *Counter) Add(tokens []string) {
	for _, t := range tokens {
		c.counts[t]++
	}
}

func (c *Counter) AddCount(token string, n int64) {
	c.counts[token] += n
}

func (c *Counter) Merge(other *Counter) {
	for t, n := range other.counts {
		c.counts[t] += n
	}
}

func (c *Counter) Counts() map[string]int64 { return c.counts }

func (c *Counter) Total() int64 {
	var total int64
	for _, n := range c.counts {
		total += n
	}
	return total
}

// ParseFrequencyList reads "token count" lines. Blank lines and lines that
// start with '#' are ignored.
func ParseFrequencyList(r io.Reader) (*Counter, error) {
	c := NewCounter()
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		raw := strings.TrimSpace(sc.Text())
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		fields := strings.Fields(raw)
		if len(fields) != 2 {
			return nil, fault.AsResource("refdict.ParseFrequencyList",
				fmt.Errorf("%w: line %d: expected token and count", ErrMalformedFrequency, line))
		}
		n, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil || n < 0 {
			return nil, fault.AsResource("refdict.ParseFrequencyList",
				fmt.Errorf("%w: line %d: bad count %q", ErrMalformedFrequency, line, fields[1]))
		}
		c.AddCount(fields[0], n)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read frequency list: %w", err)
	}
	return c, nil
}

// CountFrequencyList parses a frequency list and passes every entry through
// tok, crediting the entry's count to each token it yields. Only the legacy
// policy is accepted: a subword encoder splits a word differently in running
// text than on its own, so list entries would never match scored tokens.
func CountFrequencyList(r io.Reader, tok PolicyTokenizer) (*Counter, error) {
	if p := tok.Policy(); p.Method != tokenize.MethodLegacy {
		return nil, fault.AsConfig("refdict.CountFrequencyList",
			fmt.Errorf("%w: configured %s", ErrFrequencyPolicy, p.Fingerprint()))
	}
	entries, err := ParseFrequencyList(r)
	if err != nil {
		return nil, err
	}
	c := NewCounter()
	for entry, n := range entries.counts {
		for _, t := range tok.Tokenize(entry) {
			c.AddCount(t, n)
		}
	}
	return c, nil
}

// LineSource streams the lines of one corpus file to fn.
type LineSource func(path string, fn func(line string)) error

type Tokenizer interface {
	Tokenize(text string) []string
}

type PolicyTokenizer interface {
	Tokenizer
	Policy() tokenize.Policy
}

// CorpusSkip is a corpus file left out of a count because it could not be read.
type CorpusSkip struct {
	Path string
	Err  error
}

// CountCorpus tokenizes every path line by line, concurrently, and merges the
// counts. The merged result does not depend on completion order. Unreadable
// files are skipped and reported; the count fails only when none is readable
// or ctx is cancelled.
func CountCorpus(ctx context.Context, paths []string, lines LineSource, tok Tokenizer, workers int, logger *slog.Logger) (*Counter, []CorpusSkip, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if logger == nil {
		logger = slog.Default()
	}
	partial := make([]*Counter, len(paths))
	failed := make([]error, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, p := range paths {
		i, p := i, p
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			c := NewCounter()
			if err := lines(p, func(line string) { c.Add(tok.Tokenize(line)) }); err != nil {
				failed[i] = err
				return nil
			}
			partial[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	merged := NewCounter()
	var skipped []CorpusSkip
	for i, c := range partial {
		if failed[i] != nil {
			logger.Warn("corpus file skipped", "path", paths[i], "error", failed[i])
			skipped = append(skipped, CorpusSkip{Path: paths[i], Err: failed[i]})
			continue
		}
		merged.Merge(c)
	}
	if len(paths) > 0 && len(skipped) == len(paths) {
		return nil, skipped, fault.AsResource("refdict.CountCorpus",
			fmt.Errorf("%w: none of %d corpus files could be read", ErrEmptyCorpus, len(paths)))
	}
	return merged, skipped, nil
}
