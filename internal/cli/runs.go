package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/spf13/cobra"

	"maxwell/internal/db"
	"maxwell/internal/fault"
)

var rowTables = map[string]string{
	"tournament": "tournament_rows",
	"diagnostic": "diagnostic_rows",
}

func (c *CLI) newRunsCommand() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:     "runs",
		Short:   "List the runs stored in a SQLite database",
		Example: `  maxwell runs --db results/runs.db`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dbPath == "" {
				return fault.AsConfig("runs", fmt.Errorf("--db is required"))
			}
			if _, err := os.Stat(dbPath); errors.Is(err, fs.ErrNotExist) {
				return fault.AsResource("runs", fmt.Errorf("database not found: %s", dbPath))
			}
			runs, err := db.ListRuns(dbPath)
			if err != nil {
				return fault.AsResource("runs", err)
			}

			out := cmd.OutOrStdout()
			for _, r := range runs {
				rows, err := db.CountRunRows(dbPath, rowTables[r.Kind], r.ID)
				if err != nil {
					return fault.AsResource("runs", err)
				}
				fmt.Fprintf(out, "%s kind=%s dataset=%s created=%s documents=%d processed=%d skipped=%d rows=%d\n",
					r.ID, r.Kind, r.Dataset, r.CreatedAt.Format(time.RFC3339), r.Documents, r.Processed, r.Skipped, rows)
			}

			fmt.Fprintf(out, "total runs=%d", len(runs))
			for _, table := range []string{"tournament_rows", "diagnostic_rows", "skipped_documents"} {
				n, err := db.CountRows(dbPath, table)
				if err != nil {
					return fault.AsResource("runs", err)
				}
				fmt.Fprintf(out, " %s=%d", table, n)
			}
			fmt.Fprintln(out)
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database written by tournament or analyze --db")
	return cmd
}
