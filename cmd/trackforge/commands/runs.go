package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/trackforge/trackforge/pkg/engine"
	"github.com/trackforge/trackforge/pkg/errdefs"
	"github.com/trackforge/trackforge/pkg/stores"
)

func newRunsCommand() *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "runs [id]",
		Short: "Show recorded batch runs",
		Long: `Show the batch runs recorded by a SQLite store, newest first, or a
single run by ID.`,
		Example: `  trackforge runs --db tracks.db --limit 10`,
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			w := cmd.OutOrStdout()

			s, err := openStore(ctx, w, stores.Config{})
			if err != nil {
				return err
			}
			defer s.Close()

			ps, ok := s.(*stores.PersistentStore)
			if !ok {
				return errdefs.NewConfigurationError("run history needs a persistent store (--db)", nil).
					WithCode(errdefs.CodeInvalidParameter)
			}
			backend, ok := ps.Backend().(*stores.SQLiteBackend)
			if !ok {
				return errdefs.NewConfigurationError("run history is only recorded by the sqlite store", nil).
					WithCode(errdefs.CodeInvalidParameter)
			}

			var runs []*engine.BatchRecord
			if len(args) == 1 {
				rec, err := backend.GetRun(ctx, args[0])
				if err != nil {
					return err
				}
				runs = append(runs, rec)
			} else if runs, err = backend.ListRuns(ctx, limit, offset); err != nil {
				return err
			}

			if jsonOutput {
				if runs == nil {
					runs = []*engine.BatchRecord{}
				}
				return writeJSON(w, runs)
			}
			if len(runs) == 0 {
				infoLine(w, "no runs recorded")
				return nil
			}

			data := pterm.TableData{{"ID", "OPERATION", "SOURCES", "TARGET", "STATUS", "DONE", "STARTED", "ERROR"}}
			for _, r := range runs {
				data = append(data, []string{
					r.ID,
					r.Operation,
					strings.Join(r.Sources, ", "),
					r.Target,
					string(r.Status),
					fmt.Sprintf("%d/%d", r.Completed, r.Total),
					r.StartedAt.Local().Format(time.DateTime),
					r.Error,
				})
			}
			table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
			if err != nil {
				return err
			}
			fmt.Fprintln(w, table)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs")
	cmd.Flags().IntVar(&offset, "offset", 0, "runs to skip")

	return cmd
}
