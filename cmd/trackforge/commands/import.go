package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/trackforge/trackforge/pkg/errdefs"
	"github.com/trackforge/trackforge/pkg/stores"
	"github.com/trackforge/trackforge/pkg/track"
)

func newImportCommand() *cobra.Command {
	var vars map[string]string

	cmd := &cobra.Command{
		Use:   "import [file]...",
		Short: "Import tracks and variables into the store",
		Long: `Import objects written by 'trackforge export' and publish them under
their own names, replacing any object of the same name.`,
		Example: `  # Import a genome and a signal track
  trackforge import --db tracks.db genome.json signal.json

  # Publish numeric variables
  trackforge import --db tracks.db --var threshold=2.5 --var window=10`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && len(vars) == 0 {
				return fmt.Errorf("nothing to import: pass files or --var")
			}
			return importObjects(cmd.Context(), cmd.OutOrStdout(), args, vars)
		},
	}

	cmd.Flags().StringToStringVar(&vars, "var", nil, "publish a numeric variable (name=value)")

	return cmd
}

func importObjects(ctx context.Context, w io.Writer, files []string, vars map[string]string) error {
	objs := make([]track.Object, 0, len(files)+len(vars))
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return errdefs.NewConfigurationError(fmt.Sprintf("failed to read %s", file), err).WithCode(errdefs.CodeNotFound)
		}
		obj, err := track.Unmarshal(data)
		if err != nil {
			return errdefs.NewConfigurationError(fmt.Sprintf("failed to decode %s", file), err).WithCode(errdefs.CodeInvalidParameter)
		}
		objs = append(objs, obj)
	}

	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		value, err := strconv.ParseFloat(vars[name], 64)
		if err != nil {
			return errdefs.NewConfigurationError(fmt.Sprintf("variable %s: %q is not a number", name, vars[name]), err).
				WithCode(errdefs.CodeMalformedNumber)
		}
		objs = append(objs, track.NewNumericVariable(name, value))
	}

	s, err := openStore(ctx, w, stores.Config{})
	if err != nil {
		return err
	}
	defer s.Close()

	infos := make([]stores.ObjectInfo, 0, len(objs))
	for _, obj := range objs {
		if err := s.Publish(ctx, obj); err != nil {
			return err
		}
		info := stores.Describe(obj)
		infos = append(infos, info)
		if !jsonOutput {
			okLine(w, "%s (%s)", info.Name, info.Kind)
		}
	}

	if jsonOutput {
		return writeJSON(w, infos)
	}
	return nil
}
