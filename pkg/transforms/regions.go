package transforms

import (
	"context"
	"fmt"
	"math"

	"github.com/trackforge/trackforge/pkg/combine"
	"github.com/trackforge/trackforge/pkg/engine"
	"github.com/trackforge/trackforge/pkg/errdefs"
	"github.com/trackforge/trackforge/pkg/track"
)

var regionKinds = []track.Kind{track.KindRegion}

// UpdateRegions combines one property of every gated region with an argument.
type UpdateRegions struct {
	property string
	method   combine.Method
	argument any
}

func (u *UpdateRegions) Name() string              { return "update_regions" }
func (u *UpdateRegions) SourceKinds() []track.Kind { return regionKinds }

// Validate checks the parameters that do not need the data store.
func (u *UpdateRegions) Validate(p engine.Params) error {
	prop, err := p.String(engine.ParamProperty)
	if err != nil {
		return err
	}
	switch prop {
	case track.PropertyStart, track.PropertyEnd, track.PropertyLength:
		return paramError("property %q is read-only", prop)
	}
	_, err = combine.ParseMethod(p.StringOr(engine.ParamMethod, string(combine.Set)))
	return err
}

func (u *UpdateRegions) ResolveParameters(_ context.Context, task *engine.Task, env engine.DataStore) error {
	if err := u.Validate(task.Params); err != nil {
		return err
	}
	u.property, _ = task.Params.String(engine.ParamProperty)
	u.method, _ = combine.ParseMethod(task.Params.StringOr(engine.ParamMethod, string(combine.Set)))
	u.argument = task.Params[engine.ParamArgument]

	// A bare name of a numeric variable stands for its value.
	if name, ok := u.argument.(string); ok {
		if obj, ok := env.Lookup(name); ok {
			if v, ok := obj.(*track.NumericVariable); ok {
				u.argument = v.Value
			}
		}
	}
	return nil
}

func (u *UpdateRegions) TransformSequence(ctx context.Context, src, dst track.SequenceData, gate *engine.Gate, _ *engine.Task) error {
	in, out, err := regionPair(src, dst)
	if err != nil {
		return err
	}
	for i, r := range in.Regions {
		ok, err := gate.RegionSatisfies(ctx, in.Name, r)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		old, _ := r.Property(u.property)
		v, err := combine.Value(u.method, old, u.regionArgument(r))
		if err != nil {
			return regionError(err, r)
		}
		if err := out.Regions[i].SetProperty(u.property, v); err != nil {
			return regionError(errdefs.NewComputationError(err.Error(), err).
				WithCode(errdefs.CodeMalformedNumber), r)
		}
	}
	return nil
}

// regionArgument returns the value of the property named by a string
// argument, or the argument itself when r has no such property.
func (u *UpdateRegions) regionArgument(r *track.Region) any {
	name, ok := u.argument.(string)
	if !ok {
		return u.argument
	}
	if v, ok := r.Property(name); ok {
		return v
	}
	return u.argument
}

func regionError(err error, r *track.Region) error {
	e, ok := errdefs.As(err)
	if !ok {
		return err
	}
	return e.WithDetail("region", fmt.Sprintf("%s:%d-%d", r.Type, r.Start, r.End))
}

// Filter modes.
const (
	FilterRemove = "remove"
	FilterKeep   = "keep"
)

// FilterRegions removes the gated regions, or keeps only them.
type FilterRegions struct {
	keep bool
}

func (f *FilterRegions) Name() string              { return "filter_regions" }
func (f *FilterRegions) SourceKinds() []track.Kind { return regionKinds }

// Validate checks the parameters that do not need the data store.
func (f *FilterRegions) Validate(p engine.Params) error {
	_, err := choice(p, engine.ParamMode, FilterRemove, FilterRemove, FilterKeep)
	return err
}

func (f *FilterRegions) ResolveParameters(_ context.Context, task *engine.Task, _ engine.DataStore) error {
	mode, err := choice(task.Params, engine.ParamMode, FilterRemove, FilterRemove, FilterKeep)
	f.keep = mode == FilterKeep
	return err
}

func (f *FilterRegions) TransformSequence(ctx context.Context, src, dst track.SequenceData, gate *engine.Gate, _ *engine.Task) error {
	in, out, err := regionPair(src, dst)
	if err != nil {
		return err
	}
	kept := out.Regions[:0:0]
	for i, r := range in.Regions {
		ok, err := gate.RegionSatisfies(ctx, in.Name, r)
		if err != nil {
			return err
		}
		if ok == f.keep {
			kept = append(kept, out.Regions[i])
		}
	}
	out.Regions = kept
	return nil
}

// MergeRegions joins gated regions of the same type that overlap or lie at
// most maxDistance positions apart. A merged region takes the highest score,
// the properties of its first member and an orientation only when all members
// agree on it.
type MergeRegions struct {
	maxDistance int
}

func (m *MergeRegions) Name() string              { return "merge_regions" }
func (m *MergeRegions) SourceKinds() []track.Kind { return regionKinds }

func (m *MergeRegions) ResolveParameters(_ context.Context, task *engine.Task, env engine.DataStore) error {
	var err error
	m.maxDistance, err = scalarInt(env, task.Params, engine.ParamMaxDistance, 0, 0)
	return err
}

func (m *MergeRegions) TransformSequence(ctx context.Context, src, dst track.SequenceData, gate *engine.Gate, _ *engine.Task) error {
	in, out, err := regionPair(src, dst)
	if err != nil {
		return err
	}

	var result []*track.Region
	candidates := track.RegionSequence{}
	for i, r := range in.Regions {
		ok, err := gate.RegionSatisfies(ctx, in.Name, r)
		if err != nil {
			return err
		}
		if ok {
			candidates.Add(out.Regions[i])
		} else {
			result = append(result, out.Regions[i])
		}
	}
	candidates.Sort()

	// open holds the region currently being extended, per type.
	open := make(map[string]*track.Region)
	var order []*track.Region
	for _, r := range candidates.Regions {
		cur, ok := open[r.Type]
		if ok && r.Start-cur.End-1 <= m.maxDistance {
			cur.End = max(cur.End, r.End)
			cur.Score = math.Max(cur.Score, r.Score)
			if cur.Orientation != r.Orientation {
				cur.Orientation = track.Undetermined
			}
			continue
		}
		cur = r.Clone()
		open[r.Type] = cur
		order = append(order, cur)
	}

	out.Regions = append(result, order...)
	out.Sort()
	return nil
}
