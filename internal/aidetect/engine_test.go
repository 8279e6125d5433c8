package aidetect

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"os"
	"testing"

	"maxwell/internal/chunk"
	"maxwell/internal/compress"
	"maxwell/internal/fault"
	"maxwell/internal/ingest"
	"maxwell/internal/refdict"
	"maxwell/internal/surprisal"
	"maxwell/internal/tokenize"
)

const humanCorpus = `the old fisherman walked down to the harbor every morning before dawn
and the gulls followed him along the wet stones while he muttered about the weather
his boat was small and blue and the paint had cracked in the salt wind
he mended the nets by hand and sang songs his father had taught him long ago`

const synthCorpus = `in conclusion it is important to note that leveraging robust solutions
can significantly enhance overall efficiency and furthermore it is essential to consider
the multifaceted implications of innovative strategies in today's dynamic landscape
additionally stakeholders should prioritize seamless integration of scalable frameworks`

type memReader map[string]string

func (m memReader) read(path string) (string, error) {
	text, ok := m[path]
	if !ok {
		return "", ingest.ErrNotFound
	}
	if text == "\xff" {
		return "", ingest.ErrUnreadableEncoding
	}
	return text, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func legacyTokenizer(t *testing.T) *tokenize.Tokenizer {
	t.Helper()
	tok, err := tokenize.New(tokenize.LegacyPolicy())
	if err != nil {
		t.Fatalf("new tokenizer: %v", err)
	}
	return tok
}

func buildRef(t *testing.T, corpus string) *refdict.Dictionary {
	t.Helper()
	d, err := refdict.Build(tokenize.Legacy(corpus), refdict.BuildOptions{SmoothingK: 1, Policy: tokenize.LegacyPolicy()})
	if err != nil {
		t.Fatalf("build reference: %v", err)
	}
	return d
}

func smallConfig() Config {
	cfg := DefaultConfig()
	cfg.Window = 8
	cfg.Step = 4
	cfg.Workers = 3
	return cfg
}

func TestTournamentEndToEnd(t *testing.T) {
	reader := memReader{
		"human/story.txt": humanCorpus,
		"ai/story.txt":    synthCorpus,
		"ai/tiny.txt":     "too short",
		"ai/empty.txt":    "",
		"ai/latin1.txt":   "\xff",
	}
	docs := []Document{
		{Path: "ai/story.txt", Label: LabelAI},
		{Path: "human/story.txt", Label: LabelHuman},
		{Path: "human/missing.txt", Label: LabelHuman},
		{Path: "ai/tiny.txt", Label: LabelAI},
		{Path: "ai/empty.txt", Label: LabelAI},
		{Path: "ai/latin1.txt", Label: LabelAI},
	}
	engine, err := NewTournament(smallConfig(), legacyTokenizer(t), buildRef(t, humanCorpus), buildRef(t, synthCorpus),
		WithReader(reader.read), WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("new tournament: %v", err)
	}

	res, err := engine.Run(context.Background(), docs)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !res.Reconciled() {
		t.Fatalf("expected reconciled counts, got processed=%d skipped=%d documents=%d", res.Processed, len(res.Skipped), res.Documents)
	}
	if res.Processed != 4 || len(res.Skipped) != 2 {
		t.Fatalf("expected 4 processed and 2 skipped, got %d and %d", res.Processed, len(res.Skipped))
	}
	for _, s := range res.Skipped {
		if s.Stage != StageLoad {
			t.Fatalf("expected load-stage skip, got %+v", s)
		}
	}
	if len(res.Short) != 2 {
		t.Fatalf("expected 2 short documents, got %d", len(res.Short))
	}
	statuses := map[chunk.Status]bool{}
	for _, s := range res.Short {
		statuses[s.Coverage.Status] = true
	}
	if !statuses[chunk.StatusEmpty] || !statuses[chunk.StatusTooShort] {
		t.Fatalf("expected both empty and too-short documents, got %+v", res.Short)
	}

	humanTokens := len(tokenize.Legacy(humanCorpus))
	synthTokens := len(tokenize.Legacy(synthCorpus))
	wantRows := chunk.Count(humanTokens, 8, 4) + chunk.Count(synthTokens, 8, 4)
	if len(res.Rows) != wantRows {
		t.Fatalf("expected %d rows, got %d", wantRows, len(res.Rows))
	}
	if res.Rows[0].Label != LabelHuman || res.Rows[len(res.Rows)-1].Label != LabelAI {
		t.Fatal("expected human rows before ai rows")
	}
	for i := 1; i < len(res.Rows); i++ {
		a, b := res.Rows[i-1], res.Rows[i]
		if a.Label == b.Label && a.Filename == b.Filename && a.WindowID >= b.WindowID {
			t.Fatalf("expected ascending window ids, got %d then %d", a.WindowID, b.WindowID)
		}
	}

	humanBelow, humanRows := 0, 0
	for _, r := range res.Rows {
		if math.Abs(r.DeltaH-(r.MeanHuman-r.MeanSynthetic)) > 1e-12 {
			t.Fatalf("expected delta_h to equal mean difference, got %+v", r)
		}
		if r.Label == LabelHuman {
			humanRows++
			if r.DeltaH < 0 {
				humanBelow++
			}
		}
	}
	if humanBelow*2 <= humanRows {
		t.Fatalf("expected most human windows to be less surprising under the human reference, got %d of %d", humanBelow, humanRows)
	}

	if len(res.Pairs) != 1 || res.Pairs[0].Stem != "story" {
		t.Fatalf("expected one story pair, got %+v", res.Pairs)
	}
	if len(res.Traces) == 0 {
		t.Fatal("expected stage traces")
	}
}

func TestTournamentDeterministicOrder(t *testing.T) {
	reader := memReader{}
	var docs []Document
	for _, name := range []string{"c", "a", "b", "e", "d"} {
		reader["human/"+name+".txt"] = humanCorpus
		reader["ai/"+name+".txt"] = synthCorpus
		docs = append(docs, Document{Path: "ai/" + name + ".txt", Label: LabelAI}, Document{Path: "human/" + name + ".txt", Label: LabelHuman})
	}
	run := func(workers int) []TournamentRow {
		cfg := smallConfig()
		cfg.Workers = workers
		engine, err := NewTournament(cfg, legacyTokenizer(t), buildRef(t, humanCorpus), buildRef(t, synthCorpus),
			WithReader(reader.read), WithLogger(quietLogger()))
		if err != nil {
			t.Fatalf("new tournament: %v", err)
		}
		res, err := engine.Run(context.Background(), docs)
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		return res.Rows
	}
	serial, parallel := run(1), run(8)
	if len(serial) != len(parallel) {
		t.Fatalf("expected equal row counts, got %d vs %d", len(serial), len(parallel))
	}
	for i := range serial {
		if serial[i] != parallel[i] {
			t.Fatalf("row %d differs between worker counts: %+v vs %+v", i, serial[i], parallel[i])
		}
	}
}

func TestTournamentSingleReference(t *testing.T) {
	reader := memReader{"human/story.txt": humanCorpus}
	engine, err := NewTournament(smallConfig(), legacyTokenizer(t), buildRef(t, humanCorpus), nil,
		WithReader(reader.read), WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("new tournament: %v", err)
	}
	res, err := engine.Run(context.Background(), []Document{{Path: "human/story.txt", Label: LabelHuman}})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !res.SingleReference {
		t.Fatal("expected single-reference result")
	}
	for _, r := range res.Rows {
		if r.DeltaH != 0 || r.MeanSynthetic != 0 {
			t.Fatalf("expected no synthetic scores, got %+v", r)
		}
		if r.MeanHuman <= 0 || r.BurstinessHuman < 0 {
			t.Fatalf("expected human scores, got %+v", r)
		}
	}
}

func TestTournamentNoUsableData(t *testing.T) {
	reader := memReader{"ai/tiny.txt": "two words"}
	engine, err := NewTournament(smallConfig(), legacyTokenizer(t), buildRef(t, humanCorpus), buildRef(t, synthCorpus),
		WithReader(reader.read), WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("new tournament: %v", err)
	}
	res, err := engine.Run(context.Background(), []Document{
		{Path: "ai/tiny.txt", Label: LabelAI},
		{Path: "ai/gone.txt", Label: LabelAI},
	})
	if !errors.Is(err, ErrNoUsableData) {
		t.Fatalf("expected ErrNoUsableData, got %v", err)
	}
	if res == nil || !res.Reconciled() {
		t.Fatal("expected a reconciled partial result alongside the error")
	}
}

func TestNewTournamentConfigurationErrors(t *testing.T) {
	tok := legacyTokenizer(t)
	human := buildRef(t, humanCorpus)

	bad := smallConfig()
	bad.LogBase = 1
	if _, err := NewTournament(bad, tok, human, nil); !errors.Is(err, surprisal.ErrInvalidLogBase) {
		t.Fatalf("expected ErrInvalidLogBase, got %v", err)
	}
	bad = smallConfig()
	bad.Step = 0
	if _, err := NewTournament(bad, tok, human, nil); !errors.Is(err, chunk.ErrInvalidWindow) {
		t.Fatalf("expected ErrInvalidWindow, got %v", err)
	}
	bad = smallConfig()
	bad.Compression = "brotli"
	if _, err := NewTournament(bad, tok, human, nil); !errors.Is(err, compress.ErrUnknownCodec) {
		t.Fatalf("expected ErrUnknownCodec, got %v", err)
	}
	if _, err := NewTournament(smallConfig(), tok, nil, nil); !errors.Is(err, ErrMissingReference) {
		t.Fatalf("expected ErrMissingReference, got %v", err)
	}

	subwordRef, err := refdict.Build([]string{"x"}, refdict.BuildOptions{SmoothingK: 1, Policy: tokenize.DefaultPolicy()})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	_, err = NewTournament(smallConfig(), tok, subwordRef, nil)
	if !errors.Is(err, refdict.ErrPolicyMismatch) || fault.KindOf(err) != fault.Configuration {
		t.Fatalf("expected configuration policy mismatch, got %v", err)
	}
}

func TestDiagnosticRawMode(t *testing.T) {
	reader := memReader{"essay.txt": humanCorpus, "short.txt": "a b"}
	diag, err := NewDiagnostic(smallConfig(), DiagnosticConfig{Mode: surprisal.ModeRaw}, legacyTokenizer(t),
		WithReader(reader.read), WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("new diagnostic: %v", err)
	}
	res, err := diag.Run(context.Background(), []Document{{Path: "essay.txt"}, {Path: "short.txt"}, {Path: "nope.txt"}})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !res.Reconciled() || res.Processed != 2 || len(res.Skipped) != 1 || len(res.Short) != 1 {
		t.Fatalf("unexpected accounting: %+v", res)
	}
	tokens := tokenize.Legacy(humanCorpus)
	if len(res.Rows) != chunk.Count(len(tokens), 8, 4) {
		t.Fatalf("expected %d rows, got %d", chunk.Count(len(tokens), 8, 4), len(res.Rows))
	}
	first := res.Rows[0]
	want, _ := surprisal.Entropy(tokens[:8], math.E)
	if math.Abs(first.MeanEntropy-want) > 1e-12 {
		t.Fatalf("expected window entropy %v, got %v", want, first.MeanEntropy)
	}
	if first.Mode != surprisal.ModeRaw || first.Compression != compress.LZMA || first.LogBase != math.E {
		t.Fatalf("unexpected row metadata %+v", first)
	}
	if first.UniqueRatio <= 0 || first.UniqueRatio > 1 || first.CompressionRatio <= 0 {
		t.Fatalf("unexpected ratios %+v", first)
	}
}

func TestDiagnosticDiffMode(t *testing.T) {
	ref := buildRef(t, humanCorpus)
	if _, err := NewDiagnostic(smallConfig(), DiagnosticConfig{Mode: surprisal.ModeDiff}, legacyTokenizer(t)); !errors.Is(err, ErrMissingReference) {
		t.Fatalf("expected ErrMissingReference, got %v", err)
	}
	if _, err := NewDiagnostic(smallConfig(), DiagnosticConfig{Mode: "both"}, legacyTokenizer(t)); !errors.Is(err, surprisal.ErrUnknownMode) {
		t.Fatalf("expected ErrUnknownMode, got %v", err)
	}

	reader := memReader{"essay.txt": humanCorpus}
	cfg := smallConfig()
	cfg.Compression = compress.BZ2
	cfg.LogBase = 2
	diag, err := NewDiagnostic(cfg, DiagnosticConfig{Mode: surprisal.ModeDiff, Reference: ref, ReferenceName: "human"},
		legacyTokenizer(t), WithReader(reader.read), WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("new diagnostic: %v", err)
	}
	res, err := diag.Run(context.Background(), []Document{{Path: "essay.txt", Label: LabelHuman}})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	tokens := tokenize.Legacy(humanCorpus)
	series, err := surprisal.Series(tokens[4:12], ref, 2)
	if err != nil {
		t.Fatalf("series: %v", err)
	}
	want := chunk.Summarize(1, series, tokens[4:12])
	got := res.Rows[1]
	if math.Abs(got.MeanEntropy-want.Mean) > 1e-12 || math.Abs(got.EntropyVariance-want.Variance) > 1e-12 {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
	if got.Label != LabelHuman || got.Compression != compress.BZ2 || res.ReferenceName != "human" {
		t.Fatalf("unexpected metadata %+v", got)
	}
}

func TestTokenizerPanicSkipsDocument(t *testing.T) {
	reader := memReader{"a.txt": humanCorpus, "b.txt": humanCorpus}
	diag, err := NewDiagnostic(smallConfig(), DiagnosticConfig{Mode: surprisal.ModeRaw}, panicky{legacyTokenizer(t)},
		WithReader(reader.read), WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("new diagnostic: %v", err)
	}
	_, err = diag.Run(context.Background(), []Document{{Path: "a.txt"}, {Path: "b.txt"}})
	if !errors.Is(err, ErrNoUsableData) {
		t.Fatalf("expected ErrNoUsableData once every document fails, got %v", err)
	}
}

type panicky struct{ *tokenize.Tokenizer }

func (panicky) Tokenize(string) []string { panic("boom") }

func TestDefaultReaderMissingFile(t *testing.T) {
	diag, err := NewDiagnostic(smallConfig(), DiagnosticConfig{Mode: surprisal.ModeRaw}, legacyTokenizer(t), WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("new diagnostic: %v", err)
	}
	path := t.TempDir() + string(os.PathSeparator) + "absent.txt"
	res, err := diag.Run(context.Background(), []Document{{Path: path}})
	if !errors.Is(err, ErrNoUsableData) {
		t.Fatalf("expected ErrNoUsableData, got %v", err)
	}
	if len(res.Skipped) != 1 || !errors.Is(res.Skipped[0].Err, ingest.ErrNotFound) {
		t.Fatalf("expected not-found skip, got %+v", res.Skipped)
	}
	if res.Skipped[0].Entry().Type != "not_found" {
		t.Fatalf("expected not_found entry type, got %q", res.Skipped[0].Entry().Type)
	}
}

func TestPairByStem(t *testing.T) {
	pairs, unpaired := PairByStem([]Document{
		{Path: "h/one.txt", Label: LabelHuman},
		{Path: "a/one.md", Label: LabelAI},
		{Path: "h/two.txt", Label: LabelHuman},
		{Path: "x/three.txt"},
	})
	if len(pairs) != 1 || pairs[0].Human != "h/one.txt" || pairs[0].AI != "a/one.md" {
		t.Fatalf("unexpected pairs %+v", pairs)
	}
	if len(unpaired) != 1 || unpaired[0].Path != "h/two.txt" {
		t.Fatalf("unexpected unpaired %+v", unpaired)
	}
}

func TestLabelParse(t *testing.T) {
	for _, raw := range []string{"human", "ai", ""} {
		if _, err := ParseLabel(raw); err != nil {
			t.Fatalf("ParseLabel(%q): %v", raw, err)
		}
	}
	if _, err := ParseLabel("robot"); err == nil {
		t.Fatal("expected error for unknown label")
	}
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	reader := memReader{"essay.txt": humanCorpus}
	docs := []Document{{Path: "essay.txt", Label: LabelHuman}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	engine, err := NewTournament(smallConfig(), legacyTokenizer(t), buildRef(t, humanCorpus), buildRef(t, synthCorpus),
		WithReader(reader.read), WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("new tournament: %v", err)
	}
	if _, err := engine.Run(ctx, docs); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled from tournament, got %v", err)
	}

	diag, err := NewDiagnostic(smallConfig(), DiagnosticConfig{Mode: surprisal.ModeRaw}, legacyTokenizer(t),
		WithReader(reader.read), WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("new diagnostic: %v", err)
	}
	if _, err := diag.Run(ctx, docs); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled from diagnostic, got %v", err)
	}
}
