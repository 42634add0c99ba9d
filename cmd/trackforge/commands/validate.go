package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/trackforge/trackforge/pkg/config"
	"github.com/trackforge/trackforge/pkg/errdefs"
	"github.com/trackforge/trackforge/pkg/policy"
)

type validateOptions struct {
	checkRefs  bool
	policies   []string
	noBuiltins bool
}

// validateResult is the JSON report of one protocol.
type validateResult struct {
	Path       string                   `json:"path"`
	Valid      bool                     `json:"valid"`
	Steps      int                      `json:"steps"`
	Errors     []config.ValidationError `json:"errors,omitempty"`
	Error      string                   `json:"error,omitempty"`
	Violations []policy.Violation       `json:"violations,omitempty"`
}

func newValidateCommand() *cobra.Command {
	var opts validateOptions

	cmd := &cobra.Command{
		Use:   "validate <protocol>...",
		Short: "Validate transform protocols",
		Long: `Validate transform protocols without running them.

This command checks:
  - Syntax of CUE, YAML, JSON and HCL protocols
  - Schema conformance and condition trees
  - Operation names
  - Rego policies (built-in and --policy)
  - With --check-refs, that every referenced object exists in the store`,
		Example: `  # Validate one protocol
  trackforge validate smooth.yaml

  # Validate a CUE package and resolve references against a database
  trackforge validate --check-refs --db tracks.db ./protocols/smooth

  # Apply site policies
  trackforge validate --policy ./policies *.yaml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateProtocols(cmd.Context(), cmd.OutOrStdout(), args, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.checkRefs, "check-refs", false, "resolve references against the store")
	cmd.Flags().StringSliceVar(&opts.policies, "policy", nil, "Rego policy files or directories")
	cmd.Flags().BoolVar(&opts.noBuiltins, "no-builtin-policies", false, "disable the built-in policies")

	return cmd
}

func validateProtocols(ctx context.Context, w io.Writer, paths []string, opts validateOptions) error {
	eng, err := policy.NewEngine(ctx, log.Logger)
	if err != nil {
		return err
	}
	if opts.noBuiltins {
		for _, p := range policy.BuiltinPolicies() {
			if err := eng.DisablePolicy(p.Name); err != nil {
				return err
			}
		}
	}
	if len(opts.policies) > 0 {
		if err := eng.LoadPolicies(ctx, opts.policies); err != nil {
			return err
		}
	}

	failed := 0
	results := make([]validateResult, 0, len(paths))
	for _, path := range paths {
		res := validateOne(ctx, w, eng, path, opts)
		if !res.Valid {
			failed++
		}
		results = append(results, res)
	}

	if jsonOutput {
		if err := writeJSON(w, results); err != nil {
			return err
		}
	}
	if failed > 0 {
		return errdefs.NewConfigurationError(fmt.Sprintf("%d of %d protocols failed validation", failed, len(paths)), nil).
			WithCode(errdefs.CodeInvalidParameter)
	}
	return nil
}

func validateOne(ctx context.Context, w io.Writer, eng *policy.Engine, path string, opts validateOptions) validateResult {
	res := validateResult{Path: path}
	fail := func(err error) validateResult {
		res.Error = err.Error()
		if verrs, ok := asValidationErrors(err); ok {
			res.Errors = verrs
		}
		if !jsonOutput {
			failLine(w, "%s", path)
			reportError(w, err)
		}
		return res
	}

	proto, err := config.Load(ctx, path)
	if err != nil {
		return fail(err)
	}
	res.Steps = len(proto.Steps)

	in, err := policy.NewInput(proto)
	if err != nil {
		return fail(err)
	}

	if opts.checkRefs {
		s, err := openStore(ctx, w, proto.Store)
		if err != nil {
			return fail(err)
		}
		err = proto.CheckReferences(ctx, s)
		s.Close()
		if err != nil {
			return fail(err)
		}
	}

	pr, err := eng.Evaluate(ctx, in)
	if err != nil {
		return fail(err)
	}
	res.Violations = pr.Violations
	res.Valid = pr.Allowed

	if jsonOutput {
		return res
	}
	if res.Valid {
		okLine(w, "%s (%d steps)", path, res.Steps)
	} else {
		failLine(w, "%s", path)
	}
	for _, v := range pr.Violations {
		printViolation(w, proto.Source, v)
	}
	for _, warning := range pr.Warnings {
		infoLine(w, "%s", warning)
	}
	return res
}

func printViolation(w io.Writer, source string, v policy.Violation) {
	where := source
	if v.Line > 0 {
		where = fmt.Sprintf("%s:%d", source, v.Line)
	}
	text := fmt.Sprintf("%s: [%s] %s", where, v.Policy, v.Message)
	if v.Severity.Blocking() {
		fmt.Fprintf(w, "    %s\n", color.RedString(text))
		return
	}
	fmt.Fprintf(w, "    %s\n", color.YellowString(text))
}
