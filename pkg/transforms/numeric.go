package transforms

import (
	"context"
	"math"

	"github.com/trackforge/trackforge/pkg/combine"
	"github.com/trackforge/trackforge/pkg/condition"
	"github.com/trackforge/trackforge/pkg/engine"
	"github.com/trackforge/trackforge/pkg/errdefs"
	"github.com/trackforge/trackforge/pkg/track"
)

// Arithmetic combines every gated position of a numeric track with an
// argument: a literal, a numeric variable or another numeric track.
type Arithmetic struct {
	method   combine.Method
	argument condition.Operand
}

func (a *Arithmetic) Name() string              { return "arithmetic" }
func (a *Arithmetic) SourceKinds() []track.Kind { return []track.Kind{track.KindNumeric} }
func (a *Arithmetic) SupportsSubrange() bool    { return true }

// Validate checks the parameters that do not need the data store.
func (a *Arithmetic) Validate(p engine.Params) error {
	if _, err := combine.ParseMethod(p.StringOr(engine.ParamMethod, "")); err != nil {
		return err
	}
	if !p.Has(engine.ParamArgument) {
		return paramError("missing parameter %q", engine.ParamArgument)
	}
	return nil
}

func (a *Arithmetic) ResolveParameters(_ context.Context, task *engine.Task, env engine.DataStore) error {
	var err error
	if a.method, err = combine.ParseMethod(task.Params.StringOr(engine.ParamMethod, "")); err != nil {
		return err
	}
	a.argument, err = operand(env, task.Params, engine.ParamArgument)
	return err
}

func (a *Arithmetic) TransformSequence(ctx context.Context, src, dst track.SequenceData, gate *engine.Gate, _ *engine.Task) error {
	in, out, err := numericPair(src, dst)
	if err != nil {
		return err
	}
	for pos := in.Start; pos <= in.End; pos++ {
		ok, err := gate.PositionSatisfies(ctx, in.Name, pos)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		arg, ok := a.argument.At(in.Name, pos, pos)
		if !ok {
			continue
		}
		old, _ := in.ValueAt(pos)
		v, err := combine.Float(a.method, old, arg)
		if err != nil {
			if e, ok := errdefs.As(err); ok {
				return e.WithDetail("position", pos)
			}
			return err
		}
		out.SetValueAt(pos, v)
	}
	return nil
}

// Interpolation methods.
const (
	ZeroOrder = "zero_order"
	Linear    = "linear"
)

// Interpolate rebuilds a numeric track from anchors taken every period
// positions. Gated positions between two anchors are filled from them; gaps
// wider than maxDistance are left as they are.
type Interpolate struct {
	method      string
	period      int
	maxDistance int
}

func (i *Interpolate) Name() string              { return "interpolate" }
func (i *Interpolate) SourceKinds() []track.Kind { return []track.Kind{track.KindNumeric} }
func (i *Interpolate) SupportsSubrange() bool    { return true }

// Validate checks the parameters that do not need the data store.
func (i *Interpolate) Validate(p engine.Params) error {
	_, err := choice(p, engine.ParamMethod, Linear, ZeroOrder, Linear)
	return err
}

func (i *Interpolate) ResolveParameters(_ context.Context, task *engine.Task, env engine.DataStore) error {
	var err error
	if i.method, err = choice(task.Params, engine.ParamMethod, Linear, ZeroOrder, Linear); err != nil {
		return err
	}
	if !task.Params.Has(engine.ParamPeriod) {
		return paramError("missing parameter %q", engine.ParamPeriod)
	}
	if i.period, err = scalarInt(env, task.Params, engine.ParamPeriod, 1, 1); err != nil {
		return err
	}
	i.maxDistance, err = scalarInt(env, task.Params, engine.ParamMaxDistance, 0, 0)
	return err
}

func (i *Interpolate) TransformSequence(ctx context.Context, src, dst track.SequenceData, gate *engine.Gate, _ *engine.Task) error {
	in, out, err := numericPair(src, dst)
	if err != nil {
		return err
	}

	var anchors []int
	for pos := in.Start; pos <= in.End; pos += i.period {
		anchors = append(anchors, pos)
	}
	if len(anchors) > 0 && anchors[len(anchors)-1] != in.End {
		anchors = append(anchors, in.End)
	}

	for k := 0; k+1 < len(anchors); k++ {
		a, b := anchors[k], anchors[k+1]
		if i.maxDistance > 0 && b-a > i.maxDistance {
			continue
		}
		va, _ := in.ValueAt(a)
		vb, _ := in.ValueAt(b)
		if math.IsNaN(va) || math.IsNaN(vb) {
			continue
		}
		for pos := a + 1; pos < b; pos++ {
			ok, err := gate.PositionSatisfies(ctx, in.Name, pos)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			v := va
			if i.method == Linear {
				v = va + (vb-va)*float64(pos-a)/float64(b-a)
			}
			out.SetValueAt(pos, v)
		}
	}
	return nil
}
