package aidetect

import (
	"errors"
	"fmt"
	"math"

	"maxwell/internal/chunk"
	"maxwell/internal/compress"
	"maxwell/internal/surprisal"
)

var ErrNoUsableData = errors.New("no document produced any scored window")

type Label string

const (
	LabelHuman Label = "human"
	LabelAI    Label = "ai"
	LabelNone  Label = ""
)

func ParseLabel(raw string) (Label, error) {
	switch Label(raw) {
	case LabelHuman, LabelAI, LabelNone:
		return Label(raw), nil
	}
	return "", fmt.Errorf("unknown label %q (expected human, ai or empty)", raw)
}

// rank orders label groups in output tables: human, ai, then unlabeled.
func (l Label) rank() int {
	switch l {
	case LabelHuman:
		return 0
	case LabelAI:
		return 1
	default:
		return 2
	}
}

// rowLess is the deterministic table order: label group, filename, window.
func rowLess(al Label, af string, aw int, bl Label, bf string, bw int) bool {
	if al.rank() != bl.rank() {
		return al.rank() < bl.rank()
	}
	if af != bf {
		return af < bf
	}
	return aw < bw
}

type Document struct {
	Path  string
	Label Label
}

// Config is the scoring surface shared by both engines. Engines copy it at
// construction and never consult ambient configuration.
type Config struct {
	Window      int
	Step        int
	LogBase     float64
	Compression compress.Codec
	Workers     int
}

func DefaultConfig() Config {
	return Config{
		Window:      50,
		Step:        10,
		LogBase:     math.E,
		Compression: compress.Default,
	}
}

func (c Config) Validate() error {
	if _, err := chunk.Windows(0, c.Window, c.Step); err != nil {
		return err
	}
	if err := surprisal.ValidateLogBase(c.LogBase); err != nil {
		return err
	}
	if _, err := compress.ParseCodec(string(c.Compression)); err != nil {
		return err
	}
	return nil
}
