package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/trackforge/trackforge/pkg/config"
	"github.com/trackforge/trackforge/pkg/errdefs"
	"github.com/trackforge/trackforge/pkg/stores"
)

var (
	// Global flags
	verbose    bool
	jsonOutput bool
	storeOpts  storeFlags
)

// storeFlags override the store section of a protocol.
type storeFlags struct {
	driver   string
	path     string
	dsn      string
	bucket   string
	prefix   string
	region   string
	endpoint string
}

func (f storeFlags) apply(cfg stores.Config) stores.Config {
	if f.driver != "" {
		cfg.Driver = stores.Driver(f.driver)
	}
	if f.path != "" {
		cfg.Path = f.path
		if f.driver == "" {
			cfg.Driver = stores.DriverSQLite
		}
	}
	if f.dsn != "" {
		cfg.DSN = f.dsn
	}
	if f.bucket != "" {
		cfg.Bucket = f.bucket
	}
	if f.prefix != "" {
		cfg.Prefix = f.prefix
	}
	if f.region != "" {
		cfg.Region = f.region
	}
	if f.endpoint != "" {
		cfg.Endpoint = f.endpoint
		cfg.PathStyle = true
	}
	return cfg
}

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "trackforge",
		Short: "Trackforge - genomic track transformation engine",
		Long: `Trackforge applies transform protocols to genomic tracks: numeric
signals and annotated regions laid out over the sequences of a collection.

Features:
  - Protocols in CUE, YAML, JSON or HCL
  - Parallel per-sequence execution with all-or-nothing commits
  - Condition trees gating positions and regions (numeric, overlap, glob,
    Starlark and Rego leaves)
  - Memory, SQLite, Postgres and S3 backed stores`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose && zerolog.GlobalLevel() > zerolog.DebugLevel {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().StringVar(&storeOpts.driver, "store", "", "store driver (memory, sqlite, postgres, s3)")
	rootCmd.PersistentFlags().StringVar(&storeOpts.path, "db", "", "SQLite database path (implies --store sqlite)")
	rootCmd.PersistentFlags().StringVar(&storeOpts.dsn, "dsn", "", "Postgres connection string")
	rootCmd.PersistentFlags().StringVar(&storeOpts.bucket, "bucket", "", "S3 bucket")
	rootCmd.PersistentFlags().StringVar(&storeOpts.prefix, "prefix", "", "S3 key prefix")
	rootCmd.PersistentFlags().StringVar(&storeOpts.region, "region", "", "S3 region")
	rootCmd.PersistentFlags().StringVar(&storeOpts.endpoint, "endpoint", "", "S3 endpoint (path-style addressing)")

	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newImportCommand())
	rootCmd.AddCommand(newExportCommand())
	rootCmd.AddCommand(newListCommand())
	rootCmd.AddCommand(newInspectCommand())
	rootCmd.AddCommand(newRemoveCommand())
	rootCmd.AddCommand(newRunsCommand())
	rootCmd.AddCommand(newOperationsCommand())

	return rootCmd
}

// openStore opens the store of base with the global flags applied.
func openStore(ctx context.Context, w io.Writer, base stores.Config) (stores.Store, error) {
	cfg := storeOpts.apply(base)
	s, err := stores.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if verbose {
		driver := cfg.Driver
		if driver == "" {
			driver = stores.DriverMemory
		}
		infoLine(w, "%s store opened (%d objects)", driver, len(s.Names()))
	}
	return s, nil
}

// zerologLevel maps the global log level to a telemetry level name.
func zerologLevel() string {
	switch lvl := zerolog.GlobalLevel(); lvl {
	case zerolog.NoLevel, zerolog.Disabled, zerolog.PanicLevel:
		return "info"
	default:
		return lvl.String()
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func infoLine(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "%s %s\n", color.CyanString("•"), fmt.Sprintf(format, args...))
}

func okLine(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "%s %s\n", color.GreenString("✓"), fmt.Sprintf(format, args...))
}

func failLine(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "%s %s\n", color.RedString("✗"), fmt.Sprintf(format, args...))
}

func asValidationErrors(err error) (config.ValidationErrors, bool) {
	var verrs config.ValidationErrors
	ok := errors.As(err, &verrs)
	return verrs, ok
}

// reportError prints err, expanding protocol validation problems one per line.
func reportError(w io.Writer, err error) {
	if verrs, ok := asValidationErrors(err); ok {
		if e, ok := errdefs.As(err); ok {
			failLine(w, "%s", e.Message)
		}
		for _, v := range verrs {
			fmt.Fprintf(w, "    %s\n", color.YellowString(v.String()))
		}
		return
	}
	failLine(w, "%v", err)
}
