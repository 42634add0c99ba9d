package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/trackforge/trackforge/pkg/errdefs"
	"github.com/trackforge/trackforge/pkg/stores"
)

func newRemoveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "remove <name>...",
		Aliases: []string{"rm"},
		Short:   "Remove stored objects",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			w := cmd.OutOrStdout()

			s, err := openStore(ctx, w, stores.Config{})
			if err != nil {
				return err
			}
			defer s.Close()

			for _, name := range args {
				if !s.Exists(name) {
					return errdefs.NewConfigurationError(fmt.Sprintf("object not found: %s", name), nil).
						WithCode(errdefs.CodeNotFound)
				}
				if err := s.Remove(ctx, name); err != nil {
					return err
				}
				if !jsonOutput {
					okLine(w, "removed %s", name)
				}
			}
			if jsonOutput {
				return writeJSON(w, map[string]any{"removed": args})
			}
			return nil
		},
	}

	return cmd
}
