package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"maxwell/internal/fault"
	"maxwell/internal/report"
	"maxwell/internal/workspace"
)

func (c *CLI) newReportCommand() *cobra.Command {
	var input, output, rule string
	var html bool

	cmd := &cobra.Command{
		Use:     "report",
		Short:   "Summarize a tournament CSV as Markdown",
		Example: `  maxwell report --input results/news/data/final_delta.csv --html`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if input == "" {
				return fault.AsConfig("report", fmt.Errorf("--input is required"))
			}
			r, err := report.ParseRule(rule)
			if err != nil {
				return fault.AsConfig("report", err)
			}
			if output == "" {
				output = filepath.Join(filepath.Dir(input), workspace.ReportFilename)
			}
			path, err := writeReport(input, output, r, html)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "report=%s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVar(&input, "input", "", "Tournament CSV with delta_h and label columns")
	cmd.Flags().StringVar(&output, "output", "", "Markdown output (default final_report.md next to the input)")
	cmd.Flags().StringVar(&rule, "rule", string(report.RuleNegativeHuman), "Classification rule: negative or positive")
	cmd.Flags().BoolVar(&html, "html", false, "Also render the report as HTML")
	return cmd
}
