// Package report renders a Markdown summary of a tournament score table.
package report

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/montanaflynn/stats"

	"maxwell/internal/table"
)

var ErrNoDelta = errors.New("input table must contain a delta_h column")

// Rule decides which sign of delta_h is classified as human.
type Rule string

const (
	// RuleNegativeHuman: lower surprisal under the human reference than under
	// the synthetic one.
	RuleNegativeHuman Rule = "negative"
	RulePositiveHuman Rule = "positive"
)

func ParseRule(raw string) (Rule, error) {
	switch Rule(strings.ToLower(strings.TrimSpace(raw))) {
	case "", RuleNegativeHuman:
		return RuleNegativeHuman, nil
	case RulePositiveHuman:
		return RulePositiveHuman, nil
	}
	return "", fmt.Errorf("unknown classification rule %q (expected negative or positive)", raw)
}

func (r Rule) predictsHuman(delta float64) bool {
	if r == RulePositiveHuman {
		return delta > 0
	}
	return delta < 0
}

func (r Rule) String() string {
	if r == RulePositiveHuman {
		return "delta_h > 0 is Human"
	}
	return "delta_h < 0 is Human"
}

type LabelStats struct {
	Label  string
	Count  int
	Mean   float64
	Median float64
	Std    float64
	Min    float64
	Max    float64
}

type Metrics struct {
	Accuracy       float64
	PrecisionHuman float64
	RecallHuman    float64
	F1Human        float64
	TP, TN, FP, FN int
	N              int
}

type Summary struct {
	Rule    Rule
	Labels  []LabelStats
	Metrics *Metrics
}

func Summarize(f *table.Frame, rule Rule) (*Summary, error) {
	if !f.Has("delta_h") {
		return nil, ErrNoDelta
	}
	s := &Summary{Rule: rule}

	groups := map[string][]float64{}
	hasLabel := f.Has("label")
	for r := range f.Rows {
		v, ok := f.Float(r, "delta_h")
		if !ok {
			continue
		}
		key := "all"
		if hasLabel {
			key = f.Value(r, "label")
		}
		groups[key] = append(groups[key], v)
	}
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		s.Labels = append(s.Labels, describe(k, groups[k]))
	}

	if hasLabel {
		s.Metrics = classify(f, rule)
	}
	return s, nil
}

func describe(label string, values []float64) LabelStats {
	ls := LabelStats{Label: label, Count: len(values), Std: math.NaN()}
	data := stats.Float64Data(values)
	ls.Mean, _ = stats.Mean(data)
	ls.Median, _ = stats.Median(data)
	ls.Min, _ = stats.Min(data)
	ls.Max, _ = stats.Max(data)
	if len(values) > 1 {
		ls.Std, _ = stats.StandardDeviationSample(data)
	}
	return ls
}

func classify(f *table.Frame, rule Rule) *Metrics {
	m := &Metrics{}
	for r := range f.Rows {
		label := strings.ToLower(strings.TrimSpace(f.Value(r, "label")))
		if label != "human" && label != "ai" {
			continue
		}
		v, ok := f.Float(r, "delta_h")
		if !ok {
			continue
		}
		truth := label == "human"
		pred := rule.predictsHuman(v)
		switch {
		case pred && truth:
			m.TP++
		case !pred && !truth:
			m.TN++
		case pred && !truth:
			m.FP++
		default:
			m.FN++
		}
	}
	m.N = m.TP + m.TN + m.FP + m.FN
	if m.N == 0 {
		return nil
	}
	m.Accuracy = ratio(m.TP+m.TN, m.N)
	m.PrecisionHuman = ratio(m.TP, m.TP+m.FP)
	m.RecallHuman = ratio(m.TP, m.TP+m.FN)
	if d := m.PrecisionHuman + m.RecallHuman; d > 0 {
		m.F1Human = 2 * m.PrecisionHuman * m.RecallHuman / d
	}
	return m
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

func Markdown(s *Summary) string {
	var b strings.Builder
	b.WriteString("# Maxwell-Demon Tournament Report\n\n")
	b.WriteString("## Descriptive Statistics\n")
	if len(s.Labels) == 0 {
		b.WriteString("_No data available._\n")
	} else {
		b.WriteString("| label | count | mean | median | std | min | max |\n")
		b.WriteString("| --- | --- | --- | --- | --- | --- | --- |\n")
		for _, l := range s.Labels {
			fmt.Fprintf(&b, "| %s | %d | %s | %s | %s | %s | %s |\n",
				l.Label, l.Count, f6(l.Mean), f6(l.Median), f6(l.Std), f6(l.Min), f6(l.Max))
		}
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "## Classification Metrics (Rule: %s)\n", s.Rule)
	m := s.Metrics
	if m == nil {
		b.WriteString("_Unavailable: missing or invalid `label` values (`human`/`ai`)._\n")
		return b.String()
	}
	fmt.Fprintf(&b, "- **Samples evaluated**: %d\n", m.N)
	fmt.Fprintf(&b, "- **Accuracy**: %s\n", f6(m.Accuracy))
	fmt.Fprintf(&b, "- **Precision (Human)**: %s\n", f6(m.PrecisionHuman))
	fmt.Fprintf(&b, "- **Recall (Human)**: %s\n", f6(m.RecallHuman))
	fmt.Fprintf(&b, "- **F1-Score (Human)**: %s\n\n", f6(m.F1Human))
	b.WriteString("### Confusion Matrix (Human as Positive)\n")
	fmt.Fprintf(&b, "- **TP**: %d\n- **TN**: %d\n- **FP**: %d\n- **FN**: %d\n", m.TP, m.TN, m.FP, m.FN)
	return b.String()
}

func f6(v float64) string {
	if math.IsNaN(v) {
		return "nan"
	}
	return fmt.Sprintf("%.6f", v)
}

// HTML renders the Markdown report as a standalone page.
func HTML(md string) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	doc := p.Parse([]byte(md))
	r := html.NewRenderer(html.RendererOptions{
		Flags: html.CommonFlags | html.CompletePage,
		Title: "Maxwell-Demon Tournament Report",
	})
	return bytes.TrimSpace(markdown.Render(doc, r))
}
