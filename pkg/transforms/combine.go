package transforms

import (
	"context"
	"fmt"
	"math"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/trackforge/trackforge/pkg/engine"
	"github.com/trackforge/trackforge/pkg/track"
)

// CombineRegions unions the gated regions of several region tracks. Regions
// with the same type, span and orientation are kept once, first source wins.
type CombineRegions struct{}

func (c *CombineRegions) Name() string              { return "combine_regions" }
func (c *CombineRegions) SourceKinds() []track.Kind { return regionKinds }

func (c *CombineRegions) ResolveParameters(context.Context, *engine.Task, engine.DataStore) error {
	return nil
}

func (c *CombineRegions) TransformSequences(ctx context.Context, srcs []track.SequenceData, dst track.SequenceData, gate *engine.Gate, _ *engine.Task) error {
	out, ok := dst.(*track.RegionSequence)
	if !ok {
		return entryKindError(dst, dst, track.KindRegion)
	}

	seen := mapset.NewThreadUnsafeSet[string]()
	var merged []*track.Region
	for _, s := range srcs {
		in, ok := s.(*track.RegionSequence)
		if !ok {
			return entryKindError(s, dst, track.KindRegion)
		}
		for _, r := range in.Regions {
			ok, err := gate.RegionSatisfies(ctx, in.Name, r)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			key := fmt.Sprintf("%s|%d|%d|%d", r.Type, r.Start, r.End, r.Orientation)
			if !seen.Add(key) {
				continue
			}
			merged = append(merged, r.Clone())
		}
	}
	out.Regions = merged
	out.Sort()
	return nil
}

// Numeric combine methods.
const (
	CombineSum  = "sum"
	CombineMean = "mean"
	CombineMin  = "min"
	CombineMax  = "max"
)

// CombineNumeric folds several numeric tracks position by position. Gated
// positions get the fold of the sources that have a value there; other
// positions keep the value of the first source.
type CombineNumeric struct {
	method string
}

func (c *CombineNumeric) Name() string              { return "combine_numeric" }
func (c *CombineNumeric) SourceKinds() []track.Kind { return []track.Kind{track.KindNumeric} }

// Validate checks the parameters that do not need the data store.
func (c *CombineNumeric) Validate(p engine.Params) error {
	_, err := choice(p, engine.ParamMethod, CombineSum, CombineSum, CombineMean, CombineMin, CombineMax)
	return err
}

func (c *CombineNumeric) ResolveParameters(_ context.Context, task *engine.Task, _ engine.DataStore) error {
	var err error
	c.method, err = choice(task.Params, engine.ParamMethod, CombineSum, CombineSum, CombineMean, CombineMin, CombineMax)
	return err
}

func (c *CombineNumeric) TransformSequences(ctx context.Context, srcs []track.SequenceData, dst track.SequenceData, gate *engine.Gate, _ *engine.Task) error {
	out, ok := dst.(*track.NumericSequence)
	if !ok {
		return entryKindError(dst, dst, track.KindNumeric)
	}
	ins := make([]*track.NumericSequence, 0, len(srcs))
	for _, s := range srcs {
		in, ok := s.(*track.NumericSequence)
		if !ok {
			return entryKindError(s, dst, track.KindNumeric)
		}
		ins = append(ins, in)
	}

	for pos := out.Start; pos <= out.End; pos++ {
		ok, err := gate.PositionSatisfies(ctx, out.Name, pos)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if v, ok := c.fold(ins, pos); ok {
			out.SetValueAt(pos, v)
		}
	}
	return nil
}

func (c *CombineNumeric) fold(ins []*track.NumericSequence, pos int) (float64, bool) {
	var acc float64
	n := 0
	for _, in := range ins {
		v, ok := in.ValueAt(pos)
		if !ok || math.IsNaN(v) {
			continue
		}
		switch {
		case n == 0:
			acc = v
		case c.method == CombineMin:
			acc = math.Min(acc, v)
		case c.method == CombineMax:
			acc = math.Max(acc, v)
		default:
			acc += v
		}
		n++
	}
	if n == 0 {
		return 0, false
	}
	if c.method == CombineMean {
		acc /= float64(n)
	}
	return acc, true
}
