package cli

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"slices"

	"github.com/spf13/cobra"

	"maxwell/internal/aggregate"
	"maxwell/internal/fault"
	"maxwell/internal/table"
	"maxwell/internal/workspace"
)

func (c *CLI) newAggregateCommand() *cobra.Command {
	var input, output, metrics, statsList, groupBy, sortBy string

	cmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Roll window-level CSVs up to one row per document",
		Example: `  maxwell aggregate --input results/news/data
  maxwell aggregate --input final_delta.csv --metrics delta_h --stats mean,std`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if input == "" {
				return fault.AsConfig("aggregate", fmt.Errorf("--input is required"))
			}
			opts := aggregate.DefaultOptions()
			opts.Logger = slog.Default()
			if groupBy != "" {
				opts.GroupBy = aggregate.SplitList(groupBy)
			}
			if metrics != "" {
				opts.Metrics = aggregate.SplitList(metrics)
			}
			if statsList != "" {
				opts.Stats = aggregate.SplitList(statsList)
			}
			opts.SortBy = aggregate.SplitList(sortBy)

			files, err := aggregate.CollectCSVs(input)
			if err != nil {
				return fault.AsResource("aggregate", err)
			}
			files = slices.DeleteFunc(files, func(p string) bool {
				return filepath.Base(p) == workspace.AggregateFilename
			})
			if len(files) == 0 {
				return fault.AsResource("aggregate", aggregate.ErrNoInput)
			}
			frame, err := table.ReadFrames(files)
			if err != nil {
				return fault.AsResource("aggregate", err)
			}
			out, err := aggregate.Aggregate(frame, opts)
			if err != nil {
				return fault.AsConfig("aggregate", err)
			}

			if output == "" {
				dir := input
				if filepath.Ext(input) != "" {
					dir = filepath.Dir(input)
				}
				output = filepath.Join(dir, workspace.AggregateFilename)
			}
			if err := table.WriteFile(output, func(w io.Writer) error { return out.Write(w) }); err != nil {
				return fault.AsResource("aggregate", err)
			}
			slog.Info("aggregate written", "path", output, "inputs", len(files), "documents", len(out.Rows))
			fmt.Fprintf(cmd.OutOrStdout(), "documents=%d output=%s\n", len(out.Rows), output)
			return nil
		},
	}

	cmd.Flags().StringVar(&input, "input", "", "CSV file or directory of CSV files")
	cmd.Flags().StringVar(&output, "output", "", "Output CSV (default <input dir>/document_level.csv)")
	cmd.Flags().StringVar(&metrics, "metrics", "", "Comma-separated metric columns (default: all known numeric metrics)")
	cmd.Flags().StringVar(&statsList, "stats", "", "Comma-separated stats (default: mean,median,std,min,max,p10,p25,p75,p90)")
	cmd.Flags().StringVar(&groupBy, "group-by", "", "Comma-separated group columns (default: filename,label,mode,reference)")
	cmd.Flags().StringVar(&sortBy, "sort-by", "", "Comma-separated sort columns")
	return cmd
}
