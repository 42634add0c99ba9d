package condition

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/v1/rego"

	"github.com/trackforge/trackforge/pkg/errdefs"
)

// DefaultRegoQuery is evaluated when a Rego leaf names no query.
const DefaultRegoQuery = "data.trackforge.allow"

// Rego evaluates a Rego module against the point. The query input is
// {sequence, start, end, region} where region is null for positions and
// otherwise carries type, start, end, score, orientation and properties.
// The condition is satisfied when the query yields true.
type Rego struct {
	Module string
	Query  string
}

// Resolve compiles and prepares the query.
func (g *Rego) Resolve(ctx context.Context, _ Env) (Resolved, error) {
	if g.Module == "" {
		return nil, errdefs.NewConfigurationError("empty rego module", nil).WithCode(errdefs.CodeInvalidParameter)
	}
	query := g.Query
	if query == "" {
		query = DefaultRegoQuery
	}

	prepared, err := rego.New(
		rego.Module("condition.rego", g.Module),
		rego.Query(query),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, errdefs.NewConfigurationError("failed to prepare rego condition", err).
			WithCode(errdefs.CodeInvalidParameter)
	}
	return &resolvedRego{query: prepared}, nil
}

// Clone implements Condition.
func (g *Rego) Clone() Condition { cp := *g; return &cp }

// ImportFrom implements Condition.
func (g *Rego) ImportFrom(other Condition) error { return importLeaf(g, other) }

// Size implements Condition.
func (g *Rego) Size() int { return 1 }

func (g *Rego) String() string {
	query := g.Query
	if query == "" {
		query = DefaultRegoQuery
	}
	return fmt.Sprintf("rego(%s)", query)
}

type resolvedRego struct {
	query rego.PreparedEvalQuery
}

func (r *resolvedRego) Satisfied(ctx context.Context, p Point) (bool, error) {
	input := map[string]interface{}{
		"sequence": p.Sequence,
		"start":    p.Start,
		"end":      p.End,
		"region":   nil,
	}
	if p.Region != nil {
		input["region"] = map[string]interface{}{
			"type":        p.Region.Type,
			"start":       p.Region.Start,
			"end":         p.Region.End,
			"score":       p.Region.Score,
			"orientation": p.Region.Orientation.String(),
			"properties":  p.Region.Properties,
		}
	}

	results, err := r.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		if ctx.Err() != nil {
			return false, errdefs.NewCancellationError("rego evaluation cancelled", ctx.Err())
		}
		return false, errdefs.NewComputationError("rego evaluation failed", err).WithCode(errdefs.CodeEvaluationFailed)
	}
	return results.Allowed(), nil
}
