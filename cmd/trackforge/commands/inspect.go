package commands

import (
	"fmt"

	"github.com/sanity-io/litter"
	"github.com/spf13/cobra"

	"github.com/trackforge/trackforge/pkg/errdefs"
	"github.com/trackforge/trackforge/pkg/stores"
	"github.com/trackforge/trackforge/pkg/track"
)

func newInspectCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <name>",
		Short: "Dump a stored object",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			w := cmd.OutOrStdout()

			s, err := openStore(ctx, w, stores.Config{})
			if err != nil {
				return err
			}
			defer s.Close()

			obj, ok := s.Lookup(args[0])
			if !ok {
				return errdefs.NewConfigurationError(fmt.Sprintf("object not found: %s", args[0]), nil).
					WithCode(errdefs.CodeNotFound)
			}

			if jsonOutput {
				data, err := track.Marshal(obj)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(w, string(data))
				return err
			}

			info := stores.Describe(obj)
			infoLine(w, "%s: %s, %d sequences", info.Name, info.Kind, info.Sequences)
			fmt.Fprintln(w, litter.Options{HidePrivateFields: false, StripPackageNames: true}.Sdump(obj))
			return nil
		},
	}

	return cmd
}
