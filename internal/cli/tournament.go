package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"maxwell/internal/aidetect"
	"maxwell/internal/config"
	"maxwell/internal/db"
	"maxwell/internal/fault"
	"maxwell/internal/refdict"
	"maxwell/internal/report"
	"maxwell/internal/table"
	"maxwell/internal/tokenize"
	"maxwell/internal/workspace"
)

func (c *CLI) newTournamentCommand() *cobra.Command {
	var humanInputs, aiInputs []string
	var output, dbPath, humanRef, synthRef, rule string
	var noReport, html bool
	var flags scoringFlags

	cmd := &cobra.Command{
		Use:   "tournament",
		Short: "Score documents against both references and write delta_h per window",
		Example: `  maxwell tournament --human-input data/news/human --ai-input data/news/ai
  maxwell tournament --human-input a.txt --ai-input b.txt --output out.csv --db runs.db`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(humanInputs) == 0 && len(aiInputs) == 0 {
				return fault.AsConfig("tournament", fmt.Errorf("at least one of --human-input or --ai-input is required"))
			}
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			flags.apply(cmd, &cfg)
			if cmd.Flags().Changed("db") {
				cfg.Output.DBPath = dbPath
			}
			if cmd.Flags().Changed("no-report") {
				cfg.Output.Report = !noReport
			}
			if humanRef != "" {
				cfg.Reference.HumanPath = humanRef
			}
			if synthRef != "" {
				cfg.Reference.SyntheticPath = synthRef
			}
			parsedRule, err := report.ParseRule(rule)
			if err != nil {
				return fault.AsConfig("tournament", err)
			}

			var docs []aidetect.Document
			human, err := collectDocuments(humanInputs, aidetect.LabelHuman)
			if err != nil {
				return err
			}
			ai, err := collectDocuments(aiInputs, aidetect.LabelAI)
			if err != nil {
				return err
			}
			docs = append(append(docs, human...), ai...)

			inputs := append(append([]string{}, humanInputs...), aiInputs...)
			out, dataset := outputPath(output, cfg, inputs, workspace.TournamentFilename)
			return runTournament(cmd.Context(), cmd.OutOrStdout(), tournamentJob{
				cfg:     cfg,
				docs:    docs,
				output:  out,
				dataset: dataset,
				dual:    true,
				rule:    parsedRule,
				html:    html,
			})
		},
	}

	cmd.Flags().StringSliceVar(&humanInputs, "human-input", nil, "Human-labelled files or directories")
	cmd.Flags().StringSliceVar(&aiInputs, "ai-input", nil, "AI-labelled files or directories")
	cmd.Flags().StringVar(&output, "output", "", "Output CSV (default <data_dir>/final_delta.csv)")
	cmd.Flags().StringVar(&dbPath, "db", "", "Also store the run in this SQLite database")
	cmd.Flags().StringVar(&humanRef, "human-ref", "", "Human reference dictionary")
	cmd.Flags().StringVar(&synthRef, "synthetic-ref", "", "Synthetic reference dictionary")
	cmd.Flags().BoolVar(&noReport, "no-report", false, "Skip the Markdown report")
	cmd.Flags().BoolVar(&html, "html", false, "Also render the report as HTML")
	cmd.Flags().StringVar(&rule, "rule", string(report.RuleNegativeHuman), "Report classification rule: negative or positive")
	flags.bind(cmd)
	return cmd
}

type tournamentJob struct {
	cfg     config.Config
	docs    []aidetect.Document
	output  string
	dataset string
	// dual is false for the human-only path, which loads no synthetic reference.
	dual bool
	rule report.Rule
	html bool
}

func runTournament(ctx context.Context, stdout io.Writer, job tournamentJob) error {
	if ctx == nil {
		ctx = context.Background()
	}
	scoring, err := job.cfg.Scoring()
	if err != nil {
		return err
	}
	tok, err := tokenize.New(scoring.Policy)
	if err != nil {
		return err
	}
	human, err := loadReference(job.cfg.Reference.HumanPath, scoring)
	if err != nil {
		return err
	}
	var synthetic *refdict.Dictionary
	if job.dual {
		synthetic, err = loadReference(job.cfg.Reference.SyntheticPath, scoring)
		if err != nil {
			return err
		}
	}

	engine, err := aidetect.NewTournament(scoring.Engine(), tok, human, synthetic)
	if err != nil {
		return err
	}
	res, runErr := engine.Run(ctx, job.docs)
	if res == nil {
		return runErr
	}

	if err := table.WriteFile(job.output, func(w io.Writer) error {
		return table.WriteTournament(w, res)
	}); err != nil {
		return fault.AsResource("tournament", err)
	}
	slog.Info("scores written", "path", job.output, "rows", len(res.Rows))
	slog.Debug("tournament result", "result", res)

	rec := runRecord{
		id:        db.NewRunID(),
		kind:      "tournament",
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
	if !job.dual {
		rec.kind = "single_human_only"
	}

	if runErr == nil && job.dual && job.cfg.Output.Report {
		reportPath, err := writeReport(job.output, filepath.Join(filepath.Dir(job.output), workspace.ReportFilename), job.rule, job.html)
		if err != nil {
			return err
		}
		rec.artifacts["report"] = reportPath
	}
	if job.cfg.Output.DBPath != "" {
		if _, err := db.PersistTournament(job.cfg.Output.DBPath, rec.dbRun(), res); err != nil {
			return fault.AsResource("tournament", err)
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

func writeReport(csvPath, mdPath string, rule report.Rule, html bool) (string, error) {
	frame, err := table.ReadFrameFile(csvPath)
	if err != nil {
		return "", fault.AsResource("report", err)
	}
	summary, err := report.Summarize(frame, rule)
	if err != nil {
		return "", fault.AsResource("report", err)
	}
	md := report.Markdown(summary)
	if err := table.WriteFile(mdPath, func(w io.Writer) error {
		_, err := io.WriteString(w, md)
		return err
	}); err != nil {
		return "", fault.AsResource("report", err)
	}
	slog.Info("report written", "path", mdPath)
	if html {
		htmlPath := workspace.Sibling(mdPath, ".html")
		if err := os.WriteFile(htmlPath, report.HTML(md), 0o644); err != nil {
			return "", fault.AsResource("report", err)
		}
		slog.Info("html report written", "path", htmlPath)
	}
	return mdPath, nil
}
