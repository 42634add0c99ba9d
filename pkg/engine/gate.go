package engine

import (
	"context"

	"github.com/trackforge/trackforge/pkg/condition"
	"github.com/trackforge/trackforge/pkg/track"
)

// Gate decides which positions and regions a transform may touch. A nil Gate
// and a Gate without conditions admit everything.
type Gate struct {
	where  condition.Resolved
	within condition.Resolved
}

// NewGate creates a gate from resolved where and within conditions, either of
// which may be nil.
func NewGate(where, within condition.Resolved) *Gate {
	return &Gate{where: where, within: within}
}

// HasWhere reports whether a where condition is set.
func (g *Gate) HasWhere() bool { return g != nil && g.where != nil }

// HasWithin reports whether a within condition is set.
func (g *Gate) HasWithin() bool { return g != nil && g.within != nil }

// PositionSatisfies reports whether position pos of sequence may be written.
func (g *Gate) PositionSatisfies(ctx context.Context, sequence string, pos int) (bool, error) {
	return g.satisfies(ctx, condition.At(sequence, pos))
}

// RegionSatisfies reports whether region r of sequence may be written.
func (g *Gate) RegionSatisfies(ctx context.Context, sequence string, r *track.Region) (bool, error) {
	return g.satisfies(ctx, condition.Span(sequence, r))
}

// Within evaluates only the within condition.
func (g *Gate) Within(ctx context.Context, p condition.Point) (bool, error) {
	if !g.HasWithin() {
		return true, nil
	}
	return g.within.Satisfied(ctx, p)
}

func (g *Gate) satisfies(ctx context.Context, p condition.Point) (bool, error) {
	if g == nil {
		return true, nil
	}
	if g.within != nil {
		ok, err := g.within.Satisfied(ctx, p)
		if err != nil || !ok {
			return false, err
		}
	}
	if g.where == nil {
		return true, nil
	}
	return g.where.Satisfied(ctx, p)
}

// hasQualifyingWindow reports whether any position of seq satisfies within.
func (g *Gate) hasQualifyingWindow(ctx context.Context, seq *track.Sequence) (bool, error) {
	if !g.HasWithin() {
		return true, nil
	}
	for pos := seq.Start; pos <= seq.End; pos++ {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		ok, err := g.within.Satisfied(ctx, condition.At(seq.Name, pos))
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}
