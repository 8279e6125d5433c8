package aidetect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"maxwell/internal/chunk"
	"maxwell/internal/fault"
	"maxwell/internal/ingest"
	"maxwell/internal/pipeline"
	"maxwell/internal/refdict"
	"maxwell/internal/surprisal"
)

var ErrMissingReference = errors.New("reference dictionary is required")

type TournamentRow struct {
	Filename        string  `json:"filename"`
	WindowID        int     `json:"window_id"`
	Label           Label   `json:"label"`
	DeltaH          float64 `json:"delta_h"`
	MeanHuman       float64 `json:"mean_human"`
	MeanSynthetic   float64 `json:"mean_synthetic"`
	BurstinessHuman float64 `json:"burstiness_paisa"`
}

type Pair struct {
	Stem  string `json:"stem"`
	Human string `json:"human"`
	AI    string `json:"ai"`
}

type TournamentResult struct {
	// SingleReference is set when no synthetic dictionary took part; DeltaH
	// and MeanSynthetic are then meaningless.
	SingleReference bool            `json:"single_reference"`
	Documents       int             `json:"documents"`
	Processed       int             `json:"processed"`
	Rows            []TournamentRow `json:"rows"`
	Skipped         []Skip          `json:"skipped"`
	Short           []ShortDocument `json:"short"`
	Pairs           []Pair          `json:"pairs"`
	Unpaired        []Document      `json:"unpaired"`
	Traces          []SpanTrace     `json:"traces"`
}

// Reconciled reports whether every input document is accounted for as
// either processed or skipped.
func (r *TournamentResult) Reconciled() bool {
	return r.Processed+len(r.Skipped) == r.Documents
}

type Tournament struct {
	cfg       Config
	tok       Tokenizer
	human     *refdict.Dictionary
	synthetic *refdict.Dictionary
	opts      options
}

// NewTournament validates the configuration and both references before any
// document is touched. synthetic may be nil for the single-reference path.
func NewTournament(cfg Config, tok Tokenizer, human, synthetic *refdict.Dictionary, opts ...Option) (*Tournament, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if human == nil {
		return nil, fault.AsConfig("tournament", fmt.Errorf("%w: human", ErrMissingReference))
	}
	policy := tok.Policy()
	if err := refdict.CheckPolicy(human, policy); err != nil {
		return nil, fmt.Errorf("human reference: %w", err)
	}
	if err := refdict.CheckPolicy(synthetic, policy); err != nil {
		return nil, fmt.Errorf("synthetic reference: %w", err)
	}
	return &Tournament{cfg: cfg, tok: tok, human: human, synthetic: synthetic, opts: buildOptions(opts)}, nil
}

type docOutcome struct {
	rows   []TournamentRow
	skip   *Skip
	short  *ShortDocument
	traces []SpanTrace
}

func (t *Tournament) Run(ctx context.Context, docs []Document) (*TournamentResult, error) {
	outcomes := make([]docOutcome, len(docs))
	errs := pipeline.Run(ctx, len(docs), t.cfg.Workers, func(ctx context.Context, i int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		outcomes[i] = t.runDocument(docs[i])
		return nil
	})
	if err := pipeline.FirstError(errs); err != nil {
		return nil, err
	}

	res := &TournamentResult{
		SingleReference: t.synthetic == nil,
		Documents:       len(docs),
		Rows:            []TournamentRow{},
		Skipped:         []Skip{},
		Short:           []ShortDocument{},
	}
	for _, o := range outcomes {
		res.Traces = append(res.Traces, o.traces...)
		if o.skip != nil {
			res.Skipped = append(res.Skipped, *o.skip)
			t.opts.logger.Warn("document skipped",
				"path", o.skip.Path, "label", o.skip.Label, "stage", o.skip.Stage, "error", o.skip.Err)
			continue
		}
		res.Processed++
		if o.short != nil {
			res.Short = append(res.Short, *o.short)
		}
		res.Rows = append(res.Rows, o.rows...)
	}
	sortTournamentRows(res.Rows)
	res.Pairs, res.Unpaired = PairByStem(docs)
	if len(res.Unpaired) > 0 {
		t.opts.logger.Warn("documents without a same-stem partner", "count", len(res.Unpaired))
	}

	t.opts.logger.Info("tournament finished",
		"documents", res.Documents, "processed", res.Processed, "skipped", len(res.Skipped),
		"short", len(res.Short), "rows", len(res.Rows), "single_reference", res.SingleReference)
	if len(res.Rows) == 0 {
		return res, fault.AsResource("tournament", ErrNoUsableData)
	}
	return res, nil
}

func (t *Tournament) runDocument(doc Document) docOutcome {
	tr := &docTrace{doc: doc}
	out := docOutcome{}

	p, err := prepare(tr, doc, t.cfg, t.opts, t.tok)
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

	var humanSeries, synthSeries []float64
	if err := tr.withSpan(StageScore, func() error {
		var err error
		humanSeries, err = surprisal.Series(p.tokens, t.human, t.cfg.LogBase)
		if err != nil {
			return err
		}
		if t.synthetic != nil {
			synthSeries, err = surprisal.Series(p.tokens, t.synthetic, t.cfg.LogBase)
		}
		return err
	}); err != nil {
		s := skipFrom(doc, err)
		out.skip = &s
		out.traces = tr.traces
		return out
	}

	var humanStats, synthStats []chunk.Stats
	_ = tr.withSpan(StageAlign, func() error {
		humanStats = windowStats(humanSeries, p.tokens, p.windows)
		if synthSeries != nil {
			synthStats = windowStats(synthSeries, p.tokens, p.windows)
		}
		return nil
	})

	_ = tr.withSpan(StageEmit, func() error {
		out.rows = make([]TournamentRow, len(humanStats))
		for i, h := range humanStats {
			row := TournamentRow{
				Filename:        p.filename,
				WindowID:        h.WindowID,
				Label:           doc.Label,
				MeanHuman:       h.Mean,
				BurstinessHuman: h.Variance,
			}
			if synthStats != nil {
				row.MeanSynthetic = synthStats[i].Mean
				row.DeltaH = h.Mean - synthStats[i].Mean
			}
			out.rows[i] = row
		}
		return nil
	})
	out.traces = tr.traces
	return out
}

func sortTournamentRows(rows []TournamentRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		return rowLess(a.Label, a.Filename, a.WindowID, b.Label, b.Filename, b.WindowID)
	})
}

// PairByStem matches human and ai documents that share a file stem. Pairing
// is bookkeeping only; windows are never aligned across documents.
func PairByStem(docs []Document) ([]Pair, []Document) {
	human := map[string]string{}
	ai := map[string]string{}
	for _, d := range docs {
		switch d.Label {
		case LabelHuman:
			human[ingest.Stem(d.Path)] = d.Path
		case LabelAI:
			ai[ingest.Stem(d.Path)] = d.Path
		}
	}
	pairs := []Pair{}
	unpaired := []Document{}
	for stem, hp := range human {
		if ap, ok := ai[stem]; ok {
			pairs = append(pairs, Pair{Stem: stem, Human: hp, AI: ap})
		}
	}
	for _, d := range docs {
		stem := ingest.Stem(d.Path)
		switch d.Label {
		case LabelHuman:
			if _, ok := ai[stem]; !ok {
				unpaired = append(unpaired, d)
			}
		case LabelAI:
			if _, ok := human[stem]; !ok {
				unpaired = append(unpaired, d)
			}
		}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Stem < pairs[j].Stem })
	return pairs, unpaired
}

// LogValue keeps log lines small; rows and traces are left out.
func (r *TournamentResult) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("documents", r.Documents),
		slog.Int("processed", r.Processed),
		slog.Int("skipped", len(r.Skipped)),
		slog.Int("rows", len(r.Rows)),
	)
}
