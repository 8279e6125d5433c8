package aidetect

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"maxwell/internal/chunk"
	"maxwell/internal/ingest"
	"maxwell/internal/surprisal"
	"maxwell/internal/tokenize"
)

type TextReader func(path string) (string, error)

type Tokenizer interface {
	Tokenize(text string) []string
	Policy() tokenize.Policy
}

type Option func(*options)

type options struct {
	read   TextReader
	logger *slog.Logger
}

func WithReader(r TextReader) Option {
	return func(o *options) { o.read = r }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func buildOptions(opts []Option) options {
	o := options{read: ingest.ReadText}
	for _, fn := range opts {
		fn(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

// ShortDocument is a document that loaded and tokenized but produced no
// window. Status tells an empty document apart from one that is too short.
type ShortDocument struct {
	Path     string         `json:"path"`
	Label    Label          `json:"label"`
	Coverage chunk.Coverage `json:"coverage"`
}

type prepared struct {
	doc      Document
	filename string
	tokens   []string
	windows  []chunk.Window
	coverage chunk.Coverage
}

// prepare runs LOAD and TOKENIZE and computes window boundaries once.
func prepare(tr *docTrace, doc Document, cfg Config, o options, tok Tokenizer) (*prepared, error) {
	p := &prepared{doc: doc, filename: filepath.Base(doc.Path)}

	var text string
	if err := tr.withSpan(StageLoad, func() error {
		var err error
		text, err = o.read(doc.Path)
		return err
	}); err != nil {
		return nil, err
	}

	if err := tr.withSpan(StageTokenize, func() error {
		var err error
		p.tokens, err = tokenizeSafely(tok, text)
		return err
	}); err != nil {
		return nil, err
	}

	p.coverage = chunk.CoverageOf(len(p.tokens), cfg.Window, cfg.Step)
	windows, err := chunk.Windows(len(p.tokens), cfg.Window, cfg.Step)
	if err != nil {
		return nil, err
	}
	p.windows = windows
	if p.coverage.DroppedTail > 0 {
		o.logger.Debug("trailing tokens not covered by any window",
			"path", doc.Path, "tokens", p.coverage.Tokens, "dropped", p.coverage.DroppedTail, "status", p.coverage.Status)
	}
	return p, nil
}

func (p *prepared) short() *ShortDocument {
	if len(p.windows) > 0 {
		return nil
	}
	return &ShortDocument{Path: p.doc.Path, Label: p.doc.Label, Coverage: p.coverage}
}

func tokenizeSafely(tok Tokenizer, text string) (tokens []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tokenizer failed: %v", r)
		}
	}()
	return tok.Tokenize(text), nil
}

// windowStats slices one surprisal series along shared window boundaries.
func windowStats(series []float64, tokens []string, windows []chunk.Window) []chunk.Stats {
	out := make([]chunk.Stats, len(windows))
	for i, w := range windows {
		out[i] = chunk.Summarize(w.Index, series[w.Start:w.End], tokens[w.Start:w.End])
	}
	return out
}

// rawWindowStats scores each window against its own distribution: the mean
// is the window entropy and the variance is over per-token self-surprisal.
func rawWindowStats(tokens []string, windows []chunk.Window, base float64) ([]chunk.Stats, error) {
	out := make([]chunk.Stats, len(windows))
	for i, w := range windows {
		span := tokens[w.Start:w.End]
		self, err := surprisal.SelfSeries(span, base)
		if err != nil {
			return nil, err
		}
		s := chunk.Summarize(w.Index, self, span)
		h, err := surprisal.Entropy(span, base)
		if err != nil {
			return nil, err
		}
		s.Mean = h
		out[i] = s
	}
	return out, nil
}
