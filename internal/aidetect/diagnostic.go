package aidetect

import (
	"context"
	"fmt"
	"sort"

	"maxwell/internal/chunk"
	"maxwell/internal/compress"
	"maxwell/internal/fault"
	"maxwell/internal/pipeline"
	"maxwell/internal/refdict"
	"maxwell/internal/surprisal"
)

type DiagnosticConfig struct {
	Mode surprisal.Mode
	// Reference is required in diff mode and ignored in raw mode.
	Reference     *refdict.Dictionary
	ReferenceName string
}

type DiagnosticRow struct {
	Filename         string         `json:"filename"`
	WindowID         int            `json:"window_id"`
	MeanEntropy      float64        `json:"mean_entropy"`
	EntropyVariance  float64        `json:"entropy_variance"`
	CompressionRatio float64        `json:"compression_ratio"`
	UniqueRatio      float64        `json:"unique_ratio"`
	Mode             surprisal.Mode `json:"mode"`
	Label            Label          `json:"label"`
	LogBase          float64        `json:"log_base"`
	Compression      compress.Codec `json:"compression"`
}

type DiagnosticResult struct {
	Mode          surprisal.Mode  `json:"mode"`
	ReferenceName string          `json:"reference,omitempty"`
	Documents     int             `json:"documents"`
	Processed     int             `json:"processed"`
	Rows          []DiagnosticRow `json:"rows"`
	Skipped       []Skip          `json:"skipped"`
	Short         []ShortDocument `json:"short"`
	Traces        []SpanTrace     `json:"traces"`
}

func (r *DiagnosticResult) Reconciled() bool {
	return r.Processed+len(r.Skipped) == r.Documents
}

type Diagnostic struct {
	cfg  Config
	dcfg DiagnosticConfig
	tok  Tokenizer
	opts options
}

func NewDiagnostic(cfg Config, dcfg DiagnosticConfig, tok Tokenizer, opts ...Option) (*Diagnostic, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	mode, err := surprisal.ParseMode(string(dcfg.Mode))
	if err != nil {
		return nil, err
	}
	dcfg.Mode = mode
	if mode == surprisal.ModeDiff {
		if dcfg.Reference == nil {
			return nil, fault.AsConfig("diagnostic", fmt.Errorf("%w: diff mode needs one", ErrMissingReference))
		}
		if err := refdict.CheckPolicy(dcfg.Reference, tok.Policy()); err != nil {
			return nil, err
		}
	} else {
		dcfg.Reference = nil
		dcfg.ReferenceName = ""
	}
	return &Diagnostic{cfg: cfg, dcfg: dcfg, tok: tok, opts: buildOptions(opts)}, nil
}

type diagOutcome struct {
	rows   []DiagnosticRow
	skip   *Skip
	short  *ShortDocument
	traces []SpanTrace
}

func (d *Diagnostic) Run(ctx context.Context, docs []Document) (*DiagnosticResult, error) {
	outcomes := make([]diagOutcome, len(docs))
	errs := pipeline.Run(ctx, len(docs), d.cfg.Workers, func(ctx context.Context, i int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		outcomes[i] = d.runDocument(docs[i])
		return nil
	})
	if err := pipeline.FirstError(errs); err != nil {
		return nil, err
	}

	res := &DiagnosticResult{
		Mode:          d.dcfg.Mode,
		ReferenceName: d.dcfg.ReferenceName,
		Documents:     len(docs),
		Rows:          []DiagnosticRow{},
		Skipped:       []Skip{},
		Short:         []ShortDocument{},
	}
	for _, o := range outcomes {
		res.Traces = append(res.Traces, o.traces...)
		if o.skip != nil {
			res.Skipped = append(res.Skipped, *o.skip)
			d.opts.logger.Warn("document skipped",
				"path", o.skip.Path, "label", o.skip.Label, "stage", o.skip.Stage, "error", o.skip.Err)
			continue
		}
		res.Processed++
		if o.short != nil {
			res.Short = append(res.Short, *o.short)
		}
		res.Rows = append(res.Rows, o.rows...)
	}
	sort.SliceStable(res.Rows, func(i, j int) bool {
		a, b := res.Rows[i], res.Rows[j]
		return rowLess(a.Label, a.Filename, a.WindowID, b.Label, b.Filename, b.WindowID)
	})

	d.opts.logger.Info("diagnostic finished",
		"mode", res.Mode, "reference", res.ReferenceName, "documents", res.Documents,
		"processed", res.Processed, "skipped", len(res.Skipped), "rows", len(res.Rows))
	if len(res.Rows) == 0 {
		return res, fault.AsResource("diagnostic", ErrNoUsableData)
	}
	return res, nil
}

func (d *Diagnostic) runDocument(doc Document) diagOutcome {
	tr := &docTrace{doc: doc}
	out := diagOutcome{}

	p, err := prepare(tr, doc, d.cfg, d.opts, d.tok)
	if err != nil {
		s := skipFrom(doc, err)
		out.skip = &s
		out.traces = tr.traces
		return out
	}
	if s := p.short(); s != nil {
		out.short = s
		out.traces = tr.traces
		return out
	}

	var stats []chunk.Stats
	ratios := make([]float64, len(p.windows))
	if err := tr.withSpan(StageScore, func() error {
		var err error
		if d.dcfg.Mode == surprisal.ModeDiff {
			var series []float64
			series, err = surprisal.Series(p.tokens, d.dcfg.Reference, d.cfg.LogBase)
			if err != nil {
				return err
			}
			stats = windowStats(series, p.tokens, p.windows)
		} else {
			stats, err = rawWindowStats(p.tokens, p.windows, d.cfg.LogBase)
			if err != nil {
				return err
			}
		}
		for i, w := range p.windows {
			ratios[i], err = compress.RatioString(chunk.Join(p.tokens[w.Start:w.End]), d.cfg.Compression)
			if err != nil {
				return fmt.Errorf("window %d: %w", w.Index, err)
			}
		}
		return nil
	}); err != nil {
		s := skipFrom(doc, err)
		out.skip = &s
		out.traces = tr.traces
		return out
	}

	_ = tr.withSpan(StageEmit, func() error {
		out.rows = make([]DiagnosticRow, len(stats))
		for i, s := range stats {
			out.rows[i] = DiagnosticRow{
				Filename:         p.filename,
				WindowID:         s.WindowID,
				MeanEntropy:      s.Mean,
				EntropyVariance:  s.Variance,
				CompressionRatio: ratios[i],
				UniqueRatio:      s.UniqueRatio,
				Mode:             d.dcfg.Mode,
				Label:            doc.Label,
				LogBase:          d.cfg.LogBase,
				Compression:      d.cfg.Compression,
			}
		}
		return nil
	})
	out.traces = tr.traces
	return out
}
