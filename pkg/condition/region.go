package condition

import (
	"context"
	"fmt"
	"strings"

	"github.com/trackforge/trackforge/pkg/errdefs"
	"github.com/trackforge/trackforge/pkg/track"
)

// Overlap modes for RegionOverlap.
const (
	// ModeOverlaps: a region shares at least one position with the point.
	ModeOverlaps = "overlaps"
	// ModeInside: the point lies entirely inside a region.
	ModeInside = "inside"
	// ModeCovers: the point spans a whole region.
	ModeCovers = "covers"
)

// RegionOverlap relates the point to the regions of a region track in the
// same sequence. An optional Type restricts the regions considered.
type RegionOverlap struct {
	Track string
	Mode  string
	Type  string
}

// Resolve implements Condition.
func (o *RegionOverlap) Resolve(_ context.Context, env Env) (Resolved, error) {
	mode := strings.ToLower(o.Mode)
	if mode == "" {
		mode = ModeOverlaps
	}
	switch mode {
	case ModeOverlaps, ModeInside, ModeCovers:
	default:
		return nil, errdefs.NewConfigurationError(fmt.Sprintf("unknown overlap mode %q", o.Mode), nil).
			WithCode(errdefs.CodeInvalidParameter)
	}
	data, err := lookup[*track.RegionDataset](env, o.Track, track.KindRegion)
	if err != nil {
		return nil, err
	}
	return &resolvedOverlap{track: data, mode: mode, typ: o.Type}, nil
}

// Clone implements Condition.
func (o *RegionOverlap) Clone() Condition { cp := *o; return &cp }

// ImportFrom implements Condition.
func (o *RegionOverlap) ImportFrom(other Condition) error { return importLeaf(o, other) }

// Size implements Condition.
func (o *RegionOverlap) Size() int { return 1 }

func (o *RegionOverlap) String() string {
	mode := o.Mode
	if mode == "" {
		mode = ModeOverlaps
	}
	if o.Type != "" {
		return fmt.Sprintf("%s %s[%s]", mode, o.Track, o.Type)
	}
	return fmt.Sprintf("%s %s", mode, o.Track)
}

type resolvedOverlap struct {
	track *track.RegionDataset
	mode  string
	typ   string
}

func (r *resolvedOverlap) Satisfied(_ context.Context, p Point) (bool, error) {
	s, ok := r.track.Sequence(p.Sequence)
	if !ok {
		return false, nil
	}
	for _, reg := range s.Regions {
		if r.typ != "" && reg.Type != r.typ {
			continue
		}
		var hit bool
		switch r.mode {
		case ModeOverlaps:
			hit = reg.Overlaps(p.Start, p.End)
		case ModeInside:
			hit = reg.Covers(p.Start, p.End)
		case ModeCovers:
			hit = reg.Inside(p.Start, p.End)
		}
		if hit {
			return true, nil
		}
	}
	return false, nil
}

// RegionProperty compares a property of the region being evaluated. Values
// that parse as numbers on both sides compare numerically, anything else
// compares as text. Plain positions never satisfy it.
type RegionProperty struct {
	Property string
	Operator string
	Value    string
}

// Resolve implements Condition.
func (rp *RegionProperty) Resolve(_ context.Context, _ Env) (Resolved, error) {
	if rp.Property == "" {
		return nil, errdefs.NewConfigurationError("region property name is required", nil).
			WithCode(errdefs.CodeInvalidParameter)
	}
	op, err := ParseCompareOp(rp.Operator)
	if err != nil {
		return nil, err
	}
	out := &resolvedProperty{name: rp.Property, op: op, value: rp.Value}
	out.number, out.numeric = asFloat(rp.Value)
	return out, nil
}

// Clone implements Condition.
func (rp *RegionProperty) Clone() Condition { cp := *rp; return &cp }

// ImportFrom implements Condition.
func (rp *RegionProperty) ImportFrom(other Condition) error { return importLeaf(rp, other) }

// Size implements Condition.
func (rp *RegionProperty) Size() int { return 1 }

func (rp *RegionProperty) String() string {
	return fmt.Sprintf("region.%s %s %s", rp.Property, rp.Operator, rp.Value)
}

type resolvedProperty struct {
	name    string
	op      CompareOp
	value   string
	number  float64
	numeric bool
}

func (r *resolvedProperty) Satisfied(_ context.Context, p Point) (bool, error) {
	if p.Region == nil {
		return false, nil
	}
	v, ok := p.Region.Property(r.name)
	if !ok {
		return false, nil
	}
	if r.numeric && r.op != CmpIn {
		if f, ok := asFloat(v); ok {
			return r.op.compareFloat(f, r.number, r.number), nil
		}
	}
	if list, ok := v.([]string); ok && (r.op == CmpEq || r.op == CmpNe) {
		found := false
		for _, tok := range list {
			if tok == r.value {
				found = true
				break
			}
		}
		return found == (r.op == CmpEq), nil
	}
	return r.op.compareText(fmt.Sprint(v), r.value), nil
}
