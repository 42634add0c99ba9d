package policy

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/rs/zerolog"

	"github.com/trackforge/trackforge/pkg/errdefs"
)

// Engine compiles Rego policies and evaluates their deny sets against protocols.
type Engine struct {
	mu       sync.RWMutex
	policies map[string]*compiledPolicy
	logger   zerolog.Logger
}

// compiledPolicy represents a compiled Rego policy.
type compiledPolicy struct {
	policy *Policy
	query  rego.PreparedEvalQuery
}

// NewEngine creates a policy engine with the built-in policies loaded.
func NewEngine(ctx context.Context, logger zerolog.Logger) (*Engine, error) {
	e := &Engine{
		policies: make(map[string]*compiledPolicy),
		logger:   logger.With().Str("component", "policy-engine").Logger(),
	}

	for _, p := range BuiltinPolicies() {
		if err := e.Add(ctx, p); err != nil {
			return nil, fmt.Errorf("failed to compile built-in policy %s: %w", p.Name, err)
		}
	}
	return e, nil
}

// Add compiles p and registers it, replacing a policy of the same name.
func (e *Engine) Add(ctx context.Context, p Policy) error {
	module, err := ast.ParseModule(p.Name+".rego", p.Rego)
	if err != nil {
		return errdefs.NewConfigurationError(fmt.Sprintf("failed to parse policy %s", p.Name), err).
			WithCode(errdefs.CodeInvalidParameter)
	}

	query, err := rego.New(
		rego.ParsedModule(module),
		rego.Query(module.Package.Path.String()+".deny"),
	).PrepareForEval(ctx)
	if err != nil {
		return errdefs.NewConfigurationError(fmt.Sprintf("failed to prepare policy %s", p.Name), err).
			WithCode(errdefs.CodeInvalidParameter)
	}
	if p.Severity == "" {
		p.Severity = SeverityWarning
	}

	e.mu.Lock()
	e.policies[p.Name] = &compiledPolicy{policy: &p, query: query}
	e.mu.Unlock()

	e.logger.Debug().
		Str("policy", p.Name).
		Str("source", p.Source).
		Msg("Policy compiled")
	return nil
}

// LoadPolicies loads and compiles every policy found under paths.
func (e *Engine) LoadPolicies(ctx context.Context, paths []string) error {
	policies, err := NewLoader(e.logger).LoadFromPaths(ctx, paths)
	if err != nil {
		return err
	}
	for _, p := range policies {
		if err := e.Add(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// Evaluate runs every enabled policy against in. A policy that fails to
// evaluate is reported as a warning and does not block.
func (e *Engine) Evaluate(ctx context.Context, in *Input) (*Result, error) {
	started := time.Now()
	e.mu.RLock()
	defer e.mu.RUnlock()

	res := &Result{Allowed: true}
	for _, name := range e.namesLocked() {
		cp := e.policies[name]
		if !cp.policy.Enabled {
			continue
		}
		res.EvaluatedPolicies = append(res.EvaluatedPolicies, name)

		violations, err := e.evaluatePolicy(ctx, cp, in)
		if err != nil {
			if ctx.Err() != nil {
				return nil, errdefs.NewCancellationError("policy evaluation cancelled", ctx.Err())
			}
			e.logger.Error().Err(err).Str("policy", name).Msg("Policy evaluation failed")
			res.Warnings = append(res.Warnings, fmt.Sprintf("policy %s evaluation failed: %v", name, err))
			continue
		}
		for _, v := range violations {
			if v.Severity.Blocking() {
				res.Allowed = false
			}
		}
		res.Violations = append(res.Violations, violations...)
	}

	sort.SliceStable(res.Violations, func(i, j int) bool {
		return res.Violations[i].Step < res.Violations[j].Step
	})
	res.Duration = time.Since(started)
	return res, nil
}

func (e *Engine) evaluatePolicy(ctx context.Context, cp *compiledPolicy, in *Input) ([]Violation, error) {
	results, err := cp.query.Eval(ctx, rego.EvalInput(in))
	if err != nil {
		return nil, err
	}

	var violations []Violation
	for _, result := range results {
		if len(result.Expressions) == 0 {
			continue
		}
		denySet, ok := result.Expressions[0].Value.([]interface{})
		if !ok {
			continue
		}
		for _, d := range denySet {
			violations = append(violations, newViolation(cp.policy, d, in))
		}
	}
	return violations, nil
}

// newViolation reads a deny entry: a plain message or an object with
// message, severity and step keys.
func newViolation(p *Policy, entry interface{}, in *Input) Violation {
	v := Violation{Policy: p.Name, Severity: p.Severity}

	switch d := entry.(type) {
	case string:
		v.Message = d
	case map[string]interface{}:
		if msg, ok := d["message"].(string); ok {
			v.Message = msg
		}
		if sev, ok := d["severity"].(string); ok {
			v.Severity = Severity(sev)
		}
		v.Step = stepNumber(d["step"])
	default:
		v.Message = fmt.Sprintf("%v", entry)
	}

	if v.Step > 0 && v.Step <= len(in.Steps) {
		v.Line = in.Steps[v.Step-1].Line
	}
	return v
}

// stepNumber accepts the number types rego results decode into.
func stepNumber(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	case interface{ Int64() (int64, error) }:
		i, err := n.Int64()
		if err != nil {
			return 0
		}
		return int(i)
	}
	return 0
}

// Policy returns a registered policy by name.
func (e *Engine) Policy(name string) (*Policy, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	cp, ok := e.policies[name]
	if !ok {
		return nil, errdefs.NewConfigurationError(fmt.Sprintf("policy not found: %s", name), nil).
			WithCode(errdefs.CodeNotFound)
	}
	p := *cp.policy
	return &p, nil
}

// ListPolicies returns every registered policy, ordered by name.
func (e *Engine) ListPolicies() []Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]Policy, 0, len(e.policies))
	for _, name := range e.namesLocked() {
		out = append(out, *e.policies[name].policy)
	}
	return out
}

// DisablePolicy stops a policy from being evaluated.
func (e *Engine) DisablePolicy(name string) error {
	return e.setEnabled(name, false)
}

// EnablePolicy re-enables a disabled policy.
func (e *Engine) EnablePolicy(name string) error {
	return e.setEnabled(name, true)
}

func (e *Engine) setEnabled(name string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	cp, ok := e.policies[name]
	if !ok {
		return errdefs.NewConfigurationError(fmt.Sprintf("policy not found: %s", name), nil).
			WithCode(errdefs.CodeNotFound)
	}
	cp.policy.Enabled = enabled

	e.logger.Info().
		Str("policy", name).
		Bool("enabled", enabled).
		Msg("Policy state changed")
	return nil
}

func (e *Engine) namesLocked() []string {
	names := make([]string, 0, len(e.policies))
	for name := range e.policies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
