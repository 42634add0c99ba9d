package condition

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/trackforge/trackforge/pkg/errdefs"
	"github.com/trackforge/trackforge/pkg/track"
)

// Operand is a numeric parameter bound to a literal, a numeric variable or a
// numeric track.
type Operand struct {
	raw   string
	value float64
	track *track.NumericDataset
}

// ResolveOperand binds raw as a numeric literal or, failing that, as the name
// of a numeric variable or numeric track.
func ResolveOperand(env Env, raw string) (Operand, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Operand{}, errdefs.NewConfigurationError("missing numeric operand", nil).
			WithCode(errdefs.CodeInvalidParameter)
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return Operand{raw: raw, value: f}, nil
	}
	if env == nil {
		return Operand{}, errdefs.NewConfigurationError(fmt.Sprintf("cannot resolve %q without a data store", raw), nil).
			WithCode(errdefs.CodeUnresolved)
	}
	obj, ok := env.Lookup(raw)
	if !ok {
		return Operand{}, errdefs.NewConfigurationError(
			fmt.Sprintf("%q is neither a number nor a known object", raw), nil).
			WithCode(errdefs.CodeNotFound)
	}
	switch o := obj.(type) {
	case *track.NumericVariable:
		return Operand{raw: raw, value: o.Value}, nil
	case *track.NumericDataset:
		return Operand{raw: raw, track: o}, nil
	default:
		return Operand{}, errdefs.NewConfigurationError(
			fmt.Sprintf("object %q is %s, expected a numeric variable or numeric track", raw, obj.Kind()), nil).
			WithCode(errdefs.CodeWrongKind)
	}
}

// Scalar returns the bound value when the operand is not a track.
func (o Operand) Scalar() (float64, bool) {
	if o.track != nil {
		return 0, false
	}
	return o.value, true
}

// IsTrack reports whether the operand varies by position.
func (o Operand) IsTrack() bool { return o.track != nil }

// At returns the operand value over [start, end] of a sequence. For a track
// this is the value at a position or the mean over a span.
func (o Operand) At(sequence string, start, end int) (float64, bool) {
	if o.track == nil {
		return o.value, true
	}
	return sample(o.track, sequence, start, end)
}

// String returns the operand as written.
func (o Operand) String() string { return o.raw }

func sample(d *track.NumericDataset, sequence string, start, end int) (float64, bool) {
	s, ok := d.Sequence(sequence)
	if !ok {
		return 0, false
	}
	if start == end {
		return s.ValueAt(start)
	}
	return s.Mean(start, end)
}

// NumericCompare compares a numeric track against a numeric operand. At a
// position the track value is used, over a span the track mean. A point the
// track has no value for does not satisfy the condition.
type NumericCompare struct {
	Track    string
	Operator string
	Value    string
	// Value2 is the upper bound for the "in" operator.
	Value2 string
}

// Resolve implements Condition.
func (n *NumericCompare) Resolve(_ context.Context, env Env) (Resolved, error) {
	op, err := ParseCompareOp(n.Operator)
	if err != nil {
		return nil, err
	}
	data, err := lookup[*track.NumericDataset](env, n.Track, track.KindNumeric)
	if err != nil {
		return nil, err
	}
	lo, err := ResolveOperand(env, n.Value)
	if err != nil {
		return nil, err
	}
	r := &resolvedNumeric{track: data, op: op, lo: lo, hi: lo}
	if op == CmpIn {
		if r.hi, err = ResolveOperand(env, n.Value2); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Clone implements Condition.
func (n *NumericCompare) Clone() Condition { cp := *n; return &cp }

// ImportFrom implements Condition.
func (n *NumericCompare) ImportFrom(other Condition) error { return importLeaf(n, other) }

// Size implements Condition.
func (n *NumericCompare) Size() int { return 1 }

func (n *NumericCompare) String() string {
	if strings.EqualFold(n.Operator, string(CmpIn)) {
		return fmt.Sprintf("%s in [%s,%s]", n.Track, n.Value, n.Value2)
	}
	return fmt.Sprintf("%s %s %s", n.Track, n.Operator, n.Value)
}

type resolvedNumeric struct {
	track  *track.NumericDataset
	op     CompareOp
	lo, hi Operand
}

func (r *resolvedNumeric) Satisfied(_ context.Context, p Point) (bool, error) {
	v, ok := sample(r.track, p.Sequence, p.Start, p.End)
	if !ok {
		return false, nil
	}
	lo, ok := r.lo.At(p.Sequence, p.Start, p.End)
	if !ok {
		return false, nil
	}
	hi, ok := r.hi.At(p.Sequence, p.Start, p.End)
	if !ok {
		return false, nil
	}
	return r.op.compareFloat(v, lo, hi), nil
}
