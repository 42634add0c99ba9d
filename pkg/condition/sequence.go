package condition

import (
	"context"
	"fmt"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/trackforge/trackforge/pkg/errdefs"
	"github.com/trackforge/trackforge/pkg/track"
)

// SequenceGlob is satisfied for sequences whose name matches a glob pattern.
type SequenceGlob struct {
	Pattern string
}

// Resolve implements Condition.
func (g *SequenceGlob) Resolve(_ context.Context, _ Env) (Resolved, error) {
	if g.Pattern == "" || !doublestar.ValidatePattern(g.Pattern) {
		return nil, errdefs.NewConfigurationError(fmt.Sprintf("invalid sequence pattern %q", g.Pattern), nil).
			WithCode(errdefs.CodeInvalidParameter)
	}
	return resolvedGlob(g.Pattern), nil
}

// Clone implements Condition.
func (g *SequenceGlob) Clone() Condition { cp := *g; return &cp }

// ImportFrom implements Condition.
func (g *SequenceGlob) ImportFrom(other Condition) error { return importLeaf(g, other) }

// Size implements Condition.
func (g *SequenceGlob) Size() int { return 1 }

func (g *SequenceGlob) String() string { return fmt.Sprintf("sequence ~ %q", g.Pattern) }

type resolvedGlob string

func (r resolvedGlob) Satisfied(_ context.Context, p Point) (bool, error) {
	ok, err := doublestar.Match(string(r), p.Sequence)
	if err != nil {
		return false, errdefs.NewComputationError("glob match failed", err).WithCode(errdefs.CodeEvaluationFailed)
	}
	return ok, nil
}

// InCollection is satisfied for sequences that belong to a named collection.
type InCollection struct {
	Collection string
}

// Resolve implements Condition.
func (c *InCollection) Resolve(_ context.Context, env Env) (Resolved, error) {
	coll, err := lookup[*track.SequenceCollection](env, c.Collection, track.KindSequenceCollection)
	if err != nil {
		return nil, err
	}
	return &resolvedCollection{coll: coll}, nil
}

// Clone implements Condition.
func (c *InCollection) Clone() Condition { cp := *c; return &cp }

// ImportFrom implements Condition.
func (c *InCollection) ImportFrom(other Condition) error { return importLeaf(c, other) }

// Size implements Condition.
func (c *InCollection) Size() int { return 1 }

func (c *InCollection) String() string { return fmt.Sprintf("sequence in %s", c.Collection) }

type resolvedCollection struct {
	coll *track.SequenceCollection
}

func (r *resolvedCollection) Satisfied(_ context.Context, p Point) (bool, error) {
	return r.coll.Contains(p.Sequence), nil
}
