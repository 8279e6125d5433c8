package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"maxwell/internal/aidetect"
	"maxwell/internal/config"
	"maxwell/internal/db"
	"maxwell/internal/fault"
	"maxwell/internal/refdict"
	"maxwell/internal/surprisal"
	"maxwell/internal/table"
	"maxwell/internal/tokenize"
	"maxwell/internal/workspace"
)

func (c *CLI) newAnalyzeCommand() *cobra.Command {
	var inputs []string
	var mode, reference, refDict, label, output, dbPath string
	var humanOnly bool
	var flags scoringFlags

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Per-window entropy, compression and lexical diversity against one reference",
		Example: `  maxwell analyze --input essays/ --mode raw
  maxwell analyze --input essays/ --mode diff --reference synthetic
  maxwell analyze --input essays/ --human-only --label human`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(inputs) == 0 {
				return fault.AsConfig("analyze", fmt.Errorf("--input is required"))
			}
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			flags.apply(cmd, &cfg)
			if cmd.Flags().Changed("mode") {
				cfg.Analysis.Mode = mode
			}
			if cmd.Flags().Changed("db") {
				cfg.Output.DBPath = dbPath
			}
			lbl, err := aidetect.ParseLabel(label)
			if err != nil {
				return fault.AsConfig("analyze", err)
			}
			docs, err := collectDocuments(inputs, lbl)
			if err != nil {
				return err
			}

			if humanOnly {
				if refDict != "" {
					cfg.Reference.HumanPath = refDict
				}
				out, dataset := outputPath(output, cfg, inputs, workspace.SingleOutputFilename("", "", true))
				return runTournament(cmd.Context(), cmd.OutOrStdout(), tournamentJob{
					cfg:     cfg,
					docs:    docs,
					output:  out,
					dataset: dataset,
				})
			}

			m, err := surprisal.ParseMode(cfg.Analysis.Mode)
			if err != nil {
				return err
			}
			refName := ""
			if m == surprisal.ModeDiff {
				switch reference {
				case "human":
					if refDict == "" {
						refDict = cfg.Reference.HumanPath
					}
				case "synthetic":
					if refDict == "" {
						refDict = cfg.Reference.SyntheticPath
					}
				default:
					return fault.AsConfig("analyze", fmt.Errorf("unknown reference %q (expected human or synthetic)", reference))
				}
				refName = reference
			}
			out, dataset := outputPath(output, cfg, inputs, workspace.SingleOutputFilename(string(m), refName, false))
			return runDiagnostic(cmd.Context(), cmd.OutOrStdout(), diagnosticJob{
				cfg:     cfg,
				mode:    m,
				refName: refName,
				refPath: refDict,
				docs:    docs,
				output:  out,
				dataset: dataset,
			})
		},
	}

	cmd.Flags().StringSliceVar(&inputs, "input", nil, "Files or directories to analyze")
	cmd.Flags().StringVar(&mode, "mode", "raw", "Entropy mode: raw or diff")
	cmd.Flags().StringVar(&reference, "reference", "human", "Reference for diff mode: human or synthetic")
	cmd.Flags().StringVar(&refDict, "ref-dict", "", "Reference dictionary path (overrides --reference)")
	cmd.Flags().BoolVar(&humanOnly, "human-only", false, "Score against the human reference only, tournament style")
	cmd.Flags().StringVar(&label, "label", "", "Label attached to every row: human, ai or empty")
	cmd.Flags().StringVar(&output, "output", "", "Output CSV (default derived from mode and dataset)")
	cmd.Flags().StringVar(&dbPath, "db", "", "Also store the run in this SQLite database")
	flags.bind(cmd)
	return cmd
}

type diagnosticJob struct {
	cfg     config.Config
	mode    surprisal.Mode
	refName string
	refPath string
	docs    []aidetect.Document
	output  string
	dataset string
}

func runDiagnostic(ctx context.Context, stdout io.Writer, job diagnosticJob) error {
	scoring, err := job.cfg.Scoring()
	if err != nil {
		return err
	}
	tok, err := tokenize.New(scoring.Policy)
	if err != nil {
		return err
	}
	dcfg := aidetect.DiagnosticConfig{Mode: job.mode, ReferenceName: job.refName}
	if job.mode == surprisal.ModeDiff {
		var ref *refdict.Dictionary
		ref, err = loadReference(job.refPath, scoring)
		if err != nil {
			return err
		}
		dcfg.Reference = ref
	}

	engine, err := aidetect.NewDiagnostic(scoring.Engine(), dcfg, tok)
	if err != nil {
		return err
	}
	res, runErr := engine.Run(ctx, job.docs)
	if res == nil {
		return runErr
	}

	if err := table.WriteFile(job.output, func(w io.Writer) error {
		return table.WriteDiagnostic(w, res.Rows)
	}); err != nil {
		return fault.AsResource("analyze", err)
	}
	slog.Info("scores written", "path", job.output, "rows", len(res.Rows))

	rec := runRecord{
		id:        db.NewRunID(),
		kind:      "diagnostic_" + string(job.mode),
		dataset:   job.dataset,
		cfg:       job.cfg,
		documents: res.Documents,
		processed: res.Processed,
		rows:      len(res.Rows),
		short:     res.Short,
		skipped:   res.Skipped,
		artifacts: map[string]string{"scores": job.output},
		degraded:  tok.Degraded(),
	}
	if job.cfg.Output.DBPath != "" {
		if _, err := db.PersistDiagnostic(job.cfg.Output.DBPath, rec.dbRun(), res); err != nil {
			return fault.AsResource("analyze", err)
		}
		rec.artifacts["db"] = job.cfg.Output.DBPath
	}
	if err := writeManifest(job.output, rec); err != nil {
		return err
	}

	fmt.Fprintf(stdout, "documents=%d processed=%d skipped=%d short=%d rows=%d output=%s\n",
		res.Documents, res.Processed, len(res.Skipped), len(res.Short), len(res.Rows), job.output)
	return runErr
}
