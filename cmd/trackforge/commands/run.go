package commands

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/trackforge/trackforge/pkg/config"
	"github.com/trackforge/trackforge/pkg/engine"
	"github.com/trackforge/trackforge/pkg/policy"
	"github.com/trackforge/trackforge/pkg/stores"
	"github.com/trackforge/trackforge/pkg/telemetry"
)

type runOptions struct {
	parallelism int
	watch       bool
	dryRun      bool
	noProgress  bool
	metricsAddr string
	trace       string
	otlp        string
	production  bool
}

func newRunCommand() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run <protocol>",
		Short: "Run a transform protocol",
		Long: `Run the steps of a protocol in order against the configured store.

Each step runs its operation over every sequence of the step's collection in
parallel and publishes the target only when every sequence succeeded. The run
stops at the first failing step; targets of earlier steps stay published.

An interrupt cancels the running step; nothing of it is committed.`,
		Example: `  # Run a protocol against the store it declares
  trackforge run smooth.yaml

  # Run against a SQLite store with 4 workers per step
  trackforge run --db tracks.db --parallelism 4 smooth.cue

  # Check references and print the plan without running anything
  trackforge run --dry-run smooth.hcl

  # Re-run whenever the protocol changes
  trackforge run --watch smooth.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProtocol(cmd.Context(), cmd.OutOrStdout(), args[0], opts)
		},
	}

	cmd.Flags().IntVarP(&opts.parallelism, "parallelism", "p", 0, "workers per step (overrides the protocol)")
	cmd.Flags().BoolVarP(&opts.watch, "watch", "w", false, "re-run when the protocol file changes")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "check references and print the plan only")
	cmd.Flags().BoolVar(&opts.noProgress, "no-progress", false, "disable progress bars")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	cmd.Flags().StringVar(&opts.trace, "trace", "none", "trace exporter (none, stdout, otlp)")
	cmd.Flags().StringVar(&opts.otlp, "otlp-endpoint", "", "OTLP collector endpoint for --trace otlp")
	cmd.Flags().BoolVar(&opts.production, "production", false, "JSON logs and sampled OTLP tracing when --otlp-endpoint is set")

	return cmd
}

func telemetryConfig(opts runOptions) *telemetry.Config {
	cfg := telemetry.DefaultConfig()
	if opts.production {
		cfg = telemetry.ProductionConfig()
		if opts.trace == "none" && opts.otlp != "" {
			opts.trace = "otlp"
		}
	}
	cfg.Logging.Level = zerologLevel()
	cfg.Metrics.ListenAddress = opts.metricsAddr
	cfg.Tracing.Exporter = opts.trace
	cfg.Tracing.Endpoint = opts.otlp
	cfg.Tracing.Enabled = opts.trace != "" && opts.trace != "none"
	return cfg
}

func newTelemetry(opts runOptions) (*telemetry.Telemetry, error) {
	return telemetry.NewTelemetry(telemetryConfig(opts))
}

func runProtocol(ctx context.Context, w io.Writer, path string, opts runOptions) error {
	tel, err := newTelemetry(opts)
	if err != nil {
		return fmt.Errorf("failed to set up telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Telemetry shutdown failed")
		}
	}()
	ctx = tel.WithContext(ctx)
	if opts.metricsAddr != "" {
		errCh := tel.StartMetricsServer()
		go func() {
			if err := <-errCh; err != nil {
				log.Error().Err(err).Msg("Metrics server failed")
			}
		}()
	}

	proto, err := config.Load(ctx, path)
	if err != nil {
		reportError(w, err)
		return err
	}

	s, err := openStore(ctx, w, proto.Store)
	if err != nil {
		return err
	}
	defer s.Close()

	if opts.dryRun {
		return printPlan(ctx, w, proto, s)
	}

	err = executeProtocol(ctx, w, proto, s, opts)
	if !opts.watch {
		return err
	}

	logger := tel.Logger.NewComponentLogger("watcher")
	watcher := config.NewWatcher(nil, logger.Zerolog())
	return watcher.Watch(ctx, path, func(p *config.Protocol, err error) {
		if err != nil {
			reportError(w, err)
			return
		}
		if err := executeProtocol(ctx, w, p, s, opts); err != nil {
			logger.WithError(err).Warnf("re-run of %s failed", p.Name)
		}
		// spans of this run are exported before the next change arrives
		if err := tel.Flush(ctx); err != nil {
			logger.WithError(err).Warn("failed to flush spans")
		}
	})
}

func executeProtocol(ctx context.Context, w io.Writer, proto *config.Protocol, s stores.Store, opts runOptions) error {
	parallelism := proto.Parallelism
	if opts.parallelism > 0 {
		parallelism = opts.parallelism
	}

	x := &config.Executor{
		Engine: engine.NewTransformEngine(s, engine.WithParallelism(parallelism)),
	}
	var sink *progressSink
	if !opts.noProgress && !jsonOutput {
		sink = newProgressSink()
		x.Sink = sink
		defer sink.finish()
	}
	x.OnTask = func(ps config.PlannedStep, task *engine.Task) {
		// an interrupt trips the task's own token
		context.AfterFunc(ctx, task.Cancel.Cancel)
		if sink != nil {
			sink.begin(fmt.Sprintf("step %d: %s", ps.Index+1, ps.Transform.Name()))
		}
	}

	started := time.Now()
	results, err := x.Execute(ctx, proto)

	if jsonOutput {
		out := map[string]any{"protocol": proto.Name, "steps": results}
		if err != nil {
			out["error"] = err.Error()
		}
		if encErr := writeJSON(w, out); encErr != nil {
			return encErr
		}
		return err
	}

	for _, r := range results {
		okLine(w, "step %d %-16s -> %s (%s)", r.Index+1, r.Operation, r.Target, r.Duration.Round(time.Millisecond))
	}
	if err != nil {
		reportError(w, err)
		return err
	}
	okLine(w, "%s: %d steps in %s", proto.Name, len(results), time.Since(started).Round(time.Millisecond))
	return nil
}

// printPlan checks the protocol's references against s and prints its steps.
func printPlan(ctx context.Context, w io.Writer, proto *config.Protocol, s stores.Store) error {
	in, err := policy.NewInput(proto)
	if err != nil {
		reportError(w, err)
		return err
	}
	if err := proto.CheckReferences(ctx, s); err != nil {
		reportError(w, err)
		return err
	}

	if jsonOutput {
		return writeJSON(w, in)
	}

	data := pterm.TableData{{"STEP", "LINE", "OPERATION", "SOURCES", "TARGET", "WHERE", "WITHIN"}}
	for _, st := range in.Steps {
		data = append(data, []string{
			fmt.Sprint(st.Step),
			fmt.Sprint(st.Line),
			st.Operation,
			strings.Join(st.Sources, ", "),
			st.Target,
			paramText(st.Params, engine.ParamWhere),
			paramText(st.Params, engine.ParamWithin),
		})
	}
	table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return err
	}
	fmt.Fprintln(w, table)
	okLine(w, "%s: %d steps, all references resolve", proto.Name, len(in.Steps))
	return nil
}

func paramText(params map[string]any, key string) string {
	v, ok := params[key]
	if !ok || v == nil {
		return "-"
	}
	return fmt.Sprint(v)
}
