package commands

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/trackforge/trackforge/pkg/stores"
	"github.com/trackforge/trackforge/pkg/track"
)

func newListCommand() *cobra.Command {
	var kind string

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List stored objects",
		Example: `  # List everything
  trackforge list --db tracks.db

  # List region datasets only
  trackforge list --db tracks.db --kind region`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			w := cmd.OutOrStdout()

			if kind != "" {
				if err := track.Kind(kind).Validate(); err != nil {
					return err
				}
			}

			s, err := openStore(ctx, w, stores.Config{})
			if err != nil {
				return err
			}
			defer s.Close()

			infos := make([]stores.ObjectInfo, 0)
			for _, name := range s.Names() {
				obj, ok := s.Lookup(name)
				if !ok || (kind != "" && obj.Kind() != track.Kind(kind)) {
					continue
				}
				infos = append(infos, stores.Describe(obj))
			}

			if jsonOutput {
				return writeJSON(w, infos)
			}
			if len(infos) == 0 {
				infoLine(w, "no objects")
				return nil
			}

			data := pterm.TableData{{"NAME", "KIND", "SEQUENCES", "DERIVED"}}
			for _, info := range infos {
				data = append(data, []string{info.Name, string(info.Kind), fmt.Sprint(info.Sequences), fmt.Sprint(info.Derived)})
			}
			table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
			if err != nil {
				return err
			}
			fmt.Fprintln(w, table)
			return nil
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "only list objects of this kind")

	return cmd
}
