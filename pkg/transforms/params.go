package transforms

import (
	"fmt"
	"math"
	"strings"

	"github.com/trackforge/trackforge/pkg/condition"
	"github.com/trackforge/trackforge/pkg/engine"
	"github.com/trackforge/trackforge/pkg/errdefs"
	"github.com/trackforge/trackforge/pkg/track"
)

func paramError(format string, args ...any) *errdefs.Error {
	return errdefs.NewConfigurationError(fmt.Sprintf(format, args...), nil).
		WithCode(errdefs.CodeInvalidParameter)
}

// operand resolves a numeric-or-reference parameter.
func operand(env condition.Env, p engine.Params, key string) (condition.Operand, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return condition.Operand{}, paramError("missing parameter %q", key)
	}
	op, err := condition.ResolveOperand(env, fmt.Sprint(v))
	if err != nil {
		if e, ok := errdefs.As(err); ok {
			return op, e.WithDetail("parameter", key)
		}
		return op, err
	}
	return op, nil
}

// scalarInt resolves a numeric-or-variable parameter to an integer >= min.
// An absent parameter yields def.
func scalarInt(env condition.Env, p engine.Params, key string, def, min int) (int, error) {
	if !p.Has(key) {
		return def, nil
	}
	op, err := operand(env, p, key)
	if err != nil {
		return 0, err
	}
	f, ok := op.Scalar()
	if !ok {
		return 0, paramError("parameter %q must be a number or a numeric variable, not track %q", key, op)
	}
	if math.IsNaN(f) || f != math.Trunc(f) || int(f) < min {
		return 0, paramError("parameter %q must be an integer >= %d, got %v", key, min, f)
	}
	return int(f), nil
}

// choice reads an enumerated string parameter.
func choice(p engine.Params, key, def string, allowed ...string) (string, error) {
	v := strings.ToLower(p.StringOr(key, def))
	for _, a := range allowed {
		if v == a {
			return v, nil
		}
	}
	return "", paramError("parameter %q must be one of %s, got %q", key, strings.Join(allowed, ", "), v)
}

func numericPair(src, dst track.SequenceData) (*track.NumericSequence, *track.NumericSequence, error) {
	in, ok1 := src.(*track.NumericSequence)
	out, ok2 := dst.(*track.NumericSequence)
	if !ok1 || !ok2 {
		return nil, nil, entryKindError(src, dst, track.KindNumeric)
	}
	return in, out, nil
}

func regionPair(src, dst track.SequenceData) (*track.RegionSequence, *track.RegionSequence, error) {
	in, ok1 := src.(*track.RegionSequence)
	out, ok2 := dst.(*track.RegionSequence)
	if !ok1 || !ok2 {
		return nil, nil, entryKindError(src, dst, track.KindRegion)
	}
	if len(in.Regions) != len(out.Regions) {
		return nil, nil, errdefs.NewConsistencyError(
			fmt.Sprintf("target entry %s has %d regions, source has %d", out.Name, len(out.Regions), len(in.Regions)), nil)
	}
	return in, out, nil
}

func entryKindError(src, dst track.SequenceData, want track.Kind) error {
	return errdefs.NewConsistencyError(fmt.Sprintf("expected %s entries, got %T and %T", want, src, dst), nil)
}
