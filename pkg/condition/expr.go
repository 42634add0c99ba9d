package condition

import (
	"context"
	"fmt"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/trackforge/trackforge/pkg/errdefs"
)

const exprMaxSteps = 1_000_000

// Expr is a Starlark boolean expression over the evaluation point. The
// expression sees sequence, start, end, position (None for spans) and region
// (None for positions, otherwise a struct with type, start, end, score,
// orientation and properties).
type Expr struct {
	Source string
}

// Resolve compiles the expression once.
func (e *Expr) Resolve(_ context.Context, _ Env) (Resolved, error) {
	if e.Source == "" {
		return nil, errdefs.NewConfigurationError("empty expression", nil).WithCode(errdefs.CodeInvalidParameter)
	}

	script := fmt.Sprintf("def _cond(sequence, start, end, position, region):\n    return (%s)\n", e.Source)
	thread := &starlark.Thread{Name: "condition", Print: func(*starlark.Thread, string) {}}
	predeclared := starlark.StringDict{"struct": starlark.NewBuiltin("struct", starlarkstruct.Make)}

	globals, err := starlark.ExecFile(thread, "condition.star", script, predeclared)
	if err != nil {
		return nil, errdefs.NewConfigurationError(fmt.Sprintf("invalid expression %q", e.Source), err).
			WithCode(errdefs.CodeInvalidParameter)
	}
	globals.Freeze()

	fn, ok := globals["_cond"].(*starlark.Function)
	if !ok {
		return nil, errdefs.NewConsistencyError("compiled expression has no entry point", nil)
	}
	return &resolvedExpr{source: e.Source, fn: fn}, nil
}

// Clone implements Condition.
func (e *Expr) Clone() Condition { cp := *e; return &cp }

// ImportFrom implements Condition.
func (e *Expr) ImportFrom(other Condition) error { return importLeaf(e, other) }

// Size implements Condition.
func (e *Expr) Size() int { return 1 }

func (e *Expr) String() string { return fmt.Sprintf("expr(%s)", e.Source) }

type resolvedExpr struct {
	source string
	fn     *starlark.Function
}

func (r *resolvedExpr) Satisfied(ctx context.Context, p Point) (bool, error) {
	thread := &starlark.Thread{Name: "condition", Print: func(*starlark.Thread, string) {}}
	thread.SetMaxExecutionSteps(exprMaxSteps)
	if ctx.Err() != nil {
		return false, errdefs.NewCancellationError("expression evaluation cancelled", ctx.Err())
	}

	var position starlark.Value = starlark.None
	if p.IsPosition() {
		position = starlark.MakeInt(p.Start)
	}
	region, err := regionValue(p)
	if err != nil {
		return false, errdefs.NewComputationError("failed to convert region", err).WithCode(errdefs.CodeEvaluationFailed)
	}

	args := starlark.Tuple{
		starlark.String(p.Sequence),
		starlark.MakeInt(p.Start),
		starlark.MakeInt(p.End),
		position,
		region,
	}
	v, err := starlark.Call(thread, r.fn, args, nil)
	if err != nil {
		return false, errdefs.NewComputationError(fmt.Sprintf("expression %q failed", r.source), err).
			WithCode(errdefs.CodeEvaluationFailed)
	}
	return bool(v.Truth()), nil
}

func regionValue(p Point) (starlark.Value, error) {
	if p.Region == nil {
		return starlark.None, nil
	}
	props := starlark.NewDict(len(p.Region.Properties))
	for k, v := range p.Region.Properties {
		sv, err := toStarlark(v)
		if err != nil {
			return nil, fmt.Errorf("property %s: %w", k, err)
		}
		if err := props.SetKey(starlark.String(k), sv); err != nil {
			return nil, err
		}
	}
	return starlarkstruct.FromStringDict(starlarkstruct.Default, starlark.StringDict{
		"type":        starlark.String(p.Region.Type),
		"start":       starlark.MakeInt(p.Region.Start),
		"end":         starlark.MakeInt(p.Region.End),
		"score":       starlark.Float(p.Region.Score),
		"orientation": starlark.String(p.Region.Orientation.String()),
		"properties":  props,
	}), nil
}

func toStarlark(v any) (starlark.Value, error) {
	switch t := v.(type) {
	case nil:
		return starlark.None, nil
	case bool:
		return starlark.Bool(t), nil
	case int:
		return starlark.MakeInt(t), nil
	case int64:
		return starlark.MakeInt64(t), nil
	case float64:
		return starlark.Float(t), nil
	case string:
		return starlark.String(t), nil
	case []string:
		list := make([]starlark.Value, len(t))
		for i, s := range t {
			list[i] = starlark.String(s)
		}
		return starlark.NewList(list), nil
	case []any:
		list := make([]starlark.Value, len(t))
		for i, e := range t {
			sv, err := toStarlark(e)
			if err != nil {
				return nil, err
			}
			list[i] = sv
		}
		return starlark.NewList(list), nil
	default:
		return nil, fmt.Errorf("unsupported type %T", v)
	}
}
