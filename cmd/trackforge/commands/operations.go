package commands

import (
	"github.com/spf13/cobra"

	"github.com/trackforge/trackforge/pkg/transforms"
)

func newOperationsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "operations",
		Short: "List the operations protocols can use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			names := transforms.Names()
			if jsonOutput {
				return writeJSON(w, names)
			}
			for _, name := range names {
				infoLine(w, "%s", name)
			}
			return nil
		},
	}
}
