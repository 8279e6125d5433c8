package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"maxwell/internal/chunk"
	"maxwell/internal/fault"
	"maxwell/internal/ingest"
	"maxwell/internal/refdict"
	"maxwell/internal/tokenize"
)

func (c *CLI) newInspectCommand() *cobra.Command {
	var limit, showWindows int
	var refPath string
	var flags scoringFlags

	cmd := &cobra.Command{
		Use:   "inspect <file>",
		Short: "Show the tokens and window coverage of one document",
		Args:  cobra.ExactArgs(1),
		Example: `  maxwell inspect essay.txt --limit 40
  maxwell inspect essay.txt --tokenization legacy --window 20 --step 5 --windows 3
  maxwell inspect essay.txt --ref-dict reference_data/human_ref.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			flags.apply(cmd, &cfg)
			scoring, err := cfg.Scoring()
			if err != nil {
				return err
			}
			tok, err := tokenize.New(scoring.Policy)
			if err != nil {
				return err
			}
			text, err := ingest.ReadText(args[0])
			if err != nil {
				return fault.AsResource("inspect", err)
			}
			tokens := tok.Tokenize(text)
			cov := chunk.CoverageOf(len(tokens), scoring.WindowSize, scoring.Step)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "file: %s\n", args[0])
			fmt.Fprintf(out, "tokenization: %s", tok.Policy().Fingerprint())
			if tok.Degraded() {
				fmt.Fprint(out, " (fallback)")
			}
			fmt.Fprintln(out)
			fmt.Fprintf(out, "tokens: %d unique_ratio: %.4f\n", len(tokens), chunk.UniqueRatio(tokens))
			fmt.Fprintf(out, "windows: %d status: %s dropped_tail: %d (window=%d step=%d)\n",
				cov.Windows, cov.Status, cov.DroppedTail, scoring.WindowSize, scoring.Step)

			shown := tokens
			if limit >= 0 && len(shown) > limit {
				shown = shown[:limit]
			}
			quoted := make([]string, len(shown))
			for i, t := range shown {
				quoted[i] = fmt.Sprintf("%q", t)
			}
			fmt.Fprintf(out, "first %d tokens: [%s]\n", len(shown), strings.Join(quoted, " "))

			if showWindows > 0 && cov.Windows > 0 {
				segments, err := chunk.Segments(tokens, scoring.WindowSize, scoring.Step)
				if err != nil {
					return fault.AsConfig("inspect", err)
				}
				for _, seg := range segments[:min(showWindows, len(segments))] {
					fmt.Fprintf(out, "window %d [%d:%d]: %s\n", seg.Index, seg.StartToken, seg.EndToken, seg.Text)
				}
			}

			if refPath != "" {
				d, err := loadReference(refPath, scoring)
				if err != nil {
					return err
				}
				known := 0
				for _, t := range tokens {
					if d.Known(t) {
						known++
					}
				}
				recorded := "unrecorded"
				if d.HasPolicy() {
					recorded = d.Policy().Fingerprint()
				}
				check := "ok"
				if err := refdict.CheckPolicy(d, tok.Policy()); err != nil {
					check = "mismatch"
				}
				ratio := 0.0
				if len(tokens) > 0 {
					ratio = float64(known) / float64(len(tokens))
				}
				fmt.Fprintf(out, "reference: %s policy: %s check: %s known: %d/%d (%.4f)\n",
					refPath, recorded, check, known, len(tokens), ratio)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "Number of tokens to print (-1 for all)")
	cmd.Flags().IntVar(&showWindows, "windows", 0, "Number of leading windows to print")
	cmd.Flags().StringVar(&refPath, "ref-dict", "", "Report how much of the document this reference dictionary knows")
	flags.bind(cmd)
	return cmd
}
