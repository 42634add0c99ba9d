package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/trackforge/trackforge/pkg/errdefs"
	"github.com/trackforge/trackforge/pkg/stores"
	"github.com/trackforge/trackforge/pkg/track"
)

func newExportCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export <name>",
		Short: "Export a stored object",
		Long:  `Write a stored object in the format 'trackforge import' reads.`,
		Example: `  # Export to stdout
  trackforge export --db tracks.db scaled

  # Export to a file
  trackforge export --db tracks.db scaled -o scaled.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			w := cmd.OutOrStdout()

			s, err := openStore(ctx, cmd.ErrOrStderr(), stores.Config{})
			if err != nil {
				return err
			}
			defer s.Close()

			obj, ok := s.Lookup(args[0])
			if !ok {
				return errdefs.NewConfigurationError(fmt.Sprintf("object not found: %s", args[0]), nil).
					WithCode(errdefs.CodeNotFound)
			}
			data, err := track.Marshal(obj)
			if err != nil {
				return err
			}

			if output == "" {
				_, err = fmt.Fprintln(w, string(data))
				return err
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", output, err)
			}
			if !jsonOutput {
				okLine(w, "%s -> %s", args[0], output)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write to file instead of stdout")

	return cmd
}
