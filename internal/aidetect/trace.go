package aidetect

import (
	"errors"
	"fmt"
	"time"

	"maxwell/internal/fault"
	"maxwell/internal/ingest"
)

type Stage string

const (
	StageLoad     Stage = "load"
	StageTokenize Stage = "tokenize"
	StageScore    Stage = "score_references"
	StageAlign    Stage = "align_windows"
	StageEmit     Stage = "emit_rows"
)

type ErrorEntry struct {
	Stage     string `json:"stage"`
	Message   string `json:"message"`
	Type      string `json:"type"`
	Retryable bool   `json:"retryable"`
}

type SpanTrace struct {
	Document   string `json:"document"`
	Name       string `json:"name"`
	DurationMs int64  `json:"duration_ms"`
	Status     string `json:"status"`
}

// Skip records a document excluded from the output table and why.
type Skip struct {
	Path  string `json:"path"`
	Label Label  `json:"label"`
	Stage Stage  `json:"stage"`
	Err   error  `json:"-"`
}

func (s Skip) Entry() ErrorEntry {
	return ErrorEntry{
		Stage:     string(s.Stage),
		Message:   s.Err.Error(),
		Type:      errorType(s.Err),
		Retryable: false,
	}
}

func errorType(err error) string {
	switch {
	case errors.Is(err, ingest.ErrNotFound):
		return "not_found"
	case errors.Is(err, ingest.ErrUnreadableEncoding):
		return "unreadable_encoding"
	case errors.Is(err, ingest.ErrUnsupportedType):
		return "unsupported_type"
	}
	if k := fault.KindOf(err); k != fault.Unknown {
		return k.String()
	}
	return "exception"
}

type docTrace struct {
	doc    Document
	traces []SpanTrace
}

// withSpan runs one state of the per-document machine and records its
// timing. A failing state stops the machine for that document.
func (t *docTrace) withSpan(stage Stage, fn func() error) error {
	start := time.Now()
	status := "ok"
	err := fn()
	if err != nil {
		status = "error"
		err = &stageError{stage: stage, err: err}
	}
	t.traces = append(t.traces, SpanTrace{
		Document:   t.doc.Path,
		Name:       string(stage),
		DurationMs: time.Since(start).Milliseconds(),
		Status:     status,
	})
	return err
}

type stageError struct {
	stage Stage
	err   error
}

func (e *stageError) Error() string { return fmt.Sprintf("%s: %v", e.stage, e.err) }
func (e *stageError) Unwrap() error { return e.err }

func skipFrom(doc Document, err error) Skip {
	var se *stageError
	if errors.As(err, &se) {
		return Skip{Path: doc.Path, Label: doc.Label, Stage: se.stage, Err: se.err}
	}
	return Skip{Path: doc.Path, Label: doc.Label, Err: err}
}
