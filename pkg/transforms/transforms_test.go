package transforms

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trackforge/trackforge/pkg/condition"
	"github.com/trackforge/trackforge/pkg/engine"
	"github.com/trackforge/trackforge/pkg/errdefs"
	"github.com/trackforge/trackforge/pkg/stores"
	"github.com/trackforge/trackforge/pkg/track"
)

var genome = []*track.Sequence{
	{Name: "chr1", Start: 1, End: 10, Strand: track.Direct},
	{Name: "chr2", Start: 1, End: 10, Strand: track.Reverse},
}

func numeric(name string, value func(seq, pos int) float64) *track.NumericDataset {
	ds := track.NewNumericDataset(name)
	for i, seq := range genome {
		ns := track.NewNumericSequence(seq)
		for p := seq.Start; p <= seq.End; p++ {
			ns.SetValueAt(p, value(i, p))
		}
		ds.Put(ns)
	}
	ds.Finalize()
	return ds
}

func regions(name string, bySeq map[string][]*track.Region) *track.RegionDataset {
	ds := track.NewRegionDataset(name)
	for _, seq := range genome {
		rs := track.NewRegionSequence(seq)
		for _, r := range bySeq[seq.Name] {
			rs.Add(r)
		}
		ds.Put(rs)
	}
	ds.Finalize()
	return ds
}

// fixture builds a store with:
//
//	signal  numeric, chr1 value == pos, chr2 value == 2*pos
//	zeros   numeric, all zero
//	offset  numeric variable 10
//	peaks   regions A(1-3) A(5-6) B(8-9) on chr1, A(2-4) on chr2
func fixture(t *testing.T) *stores.MemoryStore {
	t.Helper()
	ctx := context.Background()
	s := stores.NewMemoryStore()
	coll, err := track.NewSequenceCollection("genome", genome...)
	require.NoError(t, err)

	for _, obj := range []track.Object{
		coll,
		numeric("signal", func(seq, pos int) float64 { return float64(pos * (seq + 1)) }),
		numeric("zeros", func(int, int) float64 { return 0 }),
		track.NewNumericVariable("offset", 10),
		regions("peaks", map[string][]*track.Region{
			"chr1": {
				{Type: "A", Start: 1, End: 3, Score: 1, Orientation: track.Direct},
				{Type: "A", Start: 5, End: 6, Score: 4, Orientation: track.Direct},
				{Type: "B", Start: 8, End: 9, Score: 2, Orientation: track.Reverse},
			},
			"chr2": {
				{Type: "A", Start: 2, End: 4, Score: 3, Orientation: track.Reverse},
			},
		}),
	} {
		require.NoError(t, s.Publish(ctx, obj))
	}
	return s
}

func params(source, target string, extra engine.Params) engine.Params {
	p := engine.Params{
		engine.ParamSourceData:         source,
		engine.ParamTargetData:         target,
		engine.ParamSequenceCollection: "genome",
	}
	for k, v := range extra {
		p[k] = v
	}
	return p
}

func run(t *testing.T, s engine.DataStore, name string, p engine.Params) error {
	t.Helper()
	tr, err := New(name, p)
	if err != nil {
		return err
	}
	_, err = tr.Run(context.Background(), engine.NewTransformEngine(s, engine.WithParallelism(2)), engine.NewTask(name, p))
	return err
}

func values(t *testing.T, s engine.DataStore, name, seq string) []float64 {
	t.Helper()
	obj, ok := s.Lookup(name)
	require.True(t, ok, "dataset %s not published", name)
	ns, ok := obj.(*track.NumericDataset).Sequence(seq)
	require.True(t, ok)
	return ns.Values
}

func regionsOf(t *testing.T, s engine.DataStore, name, seq string) []*track.Region {
	t.Helper()
	obj, ok := s.Lookup(name)
	require.True(t, ok, "dataset %s not published", name)
	rs, ok := obj.(*track.RegionDataset).Sequence(seq)
	require.True(t, ok)
	return rs.Regions
}

type span struct {
	Type       string
	Start, End int
	Score      float64
}

func spans(rs []*track.Region) []span {
	out := make([]span, len(rs))
	for i, r := range rs {
		out[i] = span{r.Type, r.Start, r.End, r.Score}
	}
	return out
}

func TestArithmetic(t *testing.T) {
	tests := []struct {
		name     string
		extra    engine.Params
		seq      string
		expected []float64
	}{
		{
			name:     "literal",
			extra:    engine.Params{engine.ParamMethod: "increase", engine.ParamArgument: 1},
			seq:      "chr1",
			expected: []float64{2, 3, 4, 5, 6, 7, 8, 9, 10, 11},
		},
		{
			name:     "variable",
			extra:    engine.Params{engine.ParamMethod: "multiply", engine.ParamArgument: "offset"},
			seq:      "chr2",
			expected: []float64{20, 40, 60, 80, 100, 120, 140, 160, 180, 200},
		},
		{
			name:     "track",
			extra:    engine.Params{engine.ParamMethod: "+", engine.ParamArgument: "signal"},
			seq:      "chr1",
			expected: []float64{2, 4, 6, 8, 10, 12, 14, 16, 18, 20},
		},
		{
			name: "gated",
			extra: engine.Params{
				engine.ParamMethod:   "set",
				engine.ParamArgument: 0,
				engine.ParamWhere:    &condition.NumericCompare{Track: "signal", Operator: ">", Value: "5"},
			},
			seq:      "chr2",
			expected: []float64{2, 4, 0, 0, 0, 0, 0, 0, 0, 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := fixture(t)
			require.NoError(t, run(t, s, "arithmetic", params("signal", "out", tt.extra)))
			assert.Equal(t, tt.expected, values(t, s, "out", tt.seq))
			assert.Equal(t, float64(1), values(t, s, "signal", "chr1")[0], "source must not change")
		})
	}
}

func TestArithmeticDivisionByZero(t *testing.T) {
	s := fixture(t)
	p := params("signal", "out", engine.Params{engine.ParamMethod: "divide", engine.ParamArgument: "zeros"})
	err := run(t, s, "arithmetic", p)
	require.Error(t, err)
	assert.True(t, errdefs.IsComputation(err))
	assert.Equal(t, errdefs.CodeDivisionByZero, errdefs.CodeOf(err))
	assert.False(t, s.Exists("out"))
}

func TestArithmeticParameterErrors(t *testing.T) {
	s := fixture(t)

	err := run(t, s, "arithmetic", params("signal", "out", engine.Params{engine.ParamMethod: "pow", engine.ParamArgument: 1}))
	assert.True(t, errdefs.IsConfiguration(err))

	err = run(t, s, "arithmetic", params("signal", "out", engine.Params{engine.ParamMethod: "set"}))
	assert.True(t, errdefs.IsConfiguration(err))

	err = run(t, s, "arithmetic", params("signal", "out", engine.Params{engine.ParamMethod: "set", engine.ParamArgument: "nothing"}))
	assert.True(t, errdefs.IsConfiguration(err))

	err = run(t, s, "arithmetic", params("peaks", "out", engine.Params{engine.ParamMethod: "set", engine.ParamArgument: 1}))
	assert.True(t, errdefs.IsTypeMismatch(err))
}

func sparse(t *testing.T) *stores.MemoryStore {
	s := fixture(t)
	anchors := map[int]float64{1: 0, 5: 8, 9: 16, 10: 20}
	require.NoError(t, s.Publish(context.Background(), numeric("sparse", func(_, pos int) float64 {
		if v, ok := anchors[pos]; ok {
			return v
		}
		return 100
	})))
	return s
}

func TestInterpolate(t *testing.T) {
	tests := []struct {
		name     string
		extra    engine.Params
		expected []float64
	}{
		{
			name:     "linear",
			extra:    engine.Params{engine.ParamMethod: Linear, engine.ParamPeriod: 4},
			expected: []float64{0, 2, 4, 6, 8, 10, 12, 14, 16, 20},
		},
		{
			name:     "zero order",
			extra:    engine.Params{engine.ParamMethod: ZeroOrder, engine.ParamPeriod: "4"},
			expected: []float64{0, 0, 0, 0, 8, 8, 8, 8, 16, 20},
		},
		{
			name:     "max distance",
			extra:    engine.Params{engine.ParamPeriod: 4, engine.ParamMaxDistance: 3},
			expected: []float64{0, 100, 100, 100, 8, 100, 100, 100, 16, 20},
		},
		{
			name: "within",
			extra: engine.Params{
				engine.ParamPeriod: 4,
				engine.ParamWithin: &condition.RegionOverlap{Track: "peaks", Mode: "overlaps", Type: "A"},
			},
			expected: []float64{0, 2, 4, 100, 8, 10, 100, 100, 16, 20},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := sparse(t)
			require.NoError(t, run(t, s, "interpolate", params("sparse", "out", tt.extra)))
			assert.Equal(t, tt.expected, values(t, s, "out", "chr1"))
		})
	}
}

func TestInterpolatePeriod(t *testing.T) {
	s := sparse(t)
	require.NoError(t, s.Publish(context.Background(), track.NewNumericVariable("step", 4)))
	require.NoError(t, run(t, s, "interpolate", params("sparse", "out", engine.Params{engine.ParamPeriod: "step"})))
	assert.Equal(t, float64(2), values(t, s, "out", "chr1")[1])

	for _, bad := range []engine.Params{
		{},
		{engine.ParamPeriod: 0},
		{engine.ParamPeriod: 2.5},
		{engine.ParamPeriod: "signal"},
		{engine.ParamPeriod: 4, engine.ParamMethod: "cubic"},
	} {
		err := run(t, s, "interpolate", params("sparse", "bad", bad))
		assert.True(t, errdefs.IsConfiguration(err), "%v: %v", bad, err)
	}
	assert.False(t, s.Exists("bad"))
}

func typeIs(v string) *condition.RegionProperty {
	return &condition.RegionProperty{Property: "type", Operator: "=", Value: v}
}

func TestUpdateRegions(t *testing.T) {
	s := fixture(t)
	require.NoError(t, run(t, s, "update_regions", params("peaks", "scored", engine.Params{
		engine.ParamProperty: "score",
		engine.ParamMethod:   "increase",
		engine.ParamArgument: 1,
		engine.ParamWhere:    typeIs("A"),
	})))
	assert.Equal(t, []span{{"A", 1, 3, 2}, {"A", 5, 6, 5}, {"B", 8, 9, 2}}, spans(regionsOf(t, s, "scored", "chr1")))

	require.NoError(t, run(t, s, "update_regions", params("peaks", "labelled", engine.Params{
		engine.ParamProperty: "label",
		engine.ParamArgument: "peak",
		engine.ParamWhere:    typeIs("B"),
	})))
	rs := regionsOf(t, s, "labelled", "chr1")
	v, ok := rs[2].Property("label")
	require.True(t, ok)
	assert.Equal(t, "peak", v)
	_, ok = rs[0].Property("label")
	assert.False(t, ok)

	require.NoError(t, run(t, s, "update_regions", params("peaks", "boosted", engine.Params{
		engine.ParamProperty: "score",
		engine.ParamMethod:   "multiply",
		engine.ParamArgument: "offset",
	})))
	assert.Equal(t, float64(30), regionsOf(t, s, "boosted", "chr2")[0].Score)
}

func TestUpdateRegionsArgumentNamesProperty(t *testing.T) {
	s := fixture(t)
	require.NoError(t, run(t, s, "update_regions", params("peaks", "labelled", engine.Params{
		engine.ParamProperty: "label",
		engine.ParamArgument: "score",
		engine.ParamWhere:    typeIs("A"),
	})))
	rs := regionsOf(t, s, "labelled", "chr1")
	for i, want := range []float64{1, 4} {
		v, ok := rs[i].Property("label")
		require.True(t, ok)
		assert.Equal(t, want, v)
	}
	_, ok := rs[2].Property("label")
	assert.False(t, ok)

	require.NoError(t, run(t, s, "update_regions", params("peaks", "lengthened", engine.Params{
		engine.ParamProperty: "score",
		engine.ParamMethod:   "increase",
		engine.ParamArgument: "length",
	})))
	assert.Equal(t, []span{{"A", 1, 3, 4}, {"A", 5, 6, 6}, {"B", 8, 9, 4}}, spans(regionsOf(t, s, "lengthened", "chr1")))
}

func TestUpdateRegionsRejectsReadOnlyProperty(t *testing.T) {
	_, err := New("update_regions", engine.Params{engine.ParamProperty: "start", engine.ParamArgument: 1})
	require.Error(t, err)
	assert.True(t, errdefs.IsConfiguration(err))
	e, ok := errdefs.As(err)
	require.True(t, ok)
	assert.Equal(t, "update_regions", e.Operation)
}

func TestFilterRegions(t *testing.T) {
	s := fixture(t)
	require.NoError(t, run(t, s, "filter_regions", params("peaks", "removed", engine.Params{engine.ParamWhere: typeIs("A")})))
	require.NoError(t, run(t, s, "filter_regions", params("peaks", "kept", engine.Params{
		engine.ParamWhere: typeIs("A"),
		engine.ParamMode:  FilterKeep,
	})))

	assert.Equal(t, []span{{"B", 8, 9, 2}}, spans(regionsOf(t, s, "removed", "chr1")))
	assert.Empty(t, regionsOf(t, s, "removed", "chr2"))
	assert.Equal(t, []span{{"A", 1, 3, 1}, {"A", 5, 6, 4}}, spans(regionsOf(t, s, "kept", "chr1")))
	assert.Len(t, regionsOf(t, s, "peaks", "chr1"), 3)

	_, err := New("filter_regions", engine.Params{engine.ParamMode: "drop"})
	assert.True(t, errdefs.IsConfiguration(err))
}

func TestMergeRegions(t *testing.T) {
	s := fixture(t)
	require.NoError(t, run(t, s, "merge_regions", params("peaks", "adjacent", nil)))
	require.NoError(t, run(t, s, "merge_regions", params("peaks", "merged", engine.Params{engine.ParamMaxDistance: 1})))

	assert.Len(t, regionsOf(t, s, "adjacent", "chr1"), 3)

	merged := regionsOf(t, s, "merged", "chr1")
	assert.Equal(t, []span{{"A", 1, 6, 4}, {"B", 8, 9, 2}}, spans(merged))
	assert.Equal(t, track.Direct, merged[0].Orientation)
}

func TestMergeRegionsMixedOrientation(t *testing.T) {
	s := fixture(t)
	require.NoError(t, s.Publish(context.Background(), regions("mixed", map[string][]*track.Region{
		"chr1": {
			{Type: "A", Start: 1, End: 4, Orientation: track.Direct},
			{Type: "A", Start: 3, End: 7, Orientation: track.Reverse},
			{Type: "A", Start: 9, End: 9, Orientation: track.Direct},
		},
	})))
	require.NoError(t, run(t, s, "merge_regions", params("mixed", "out", engine.Params{
		engine.ParamWhere: &condition.RegionProperty{Property: "start", Operator: "<", Value: "5"},
	})))

	out := regionsOf(t, s, "out", "chr1")
	require.Len(t, out, 2)
	assert.Equal(t, span{"A", 1, 7, 0}, spans(out)[0])
	assert.Equal(t, track.Undetermined, out[0].Orientation)
	assert.Equal(t, 9, out[1].Start, "ungated regions are kept as they are")
}

func TestCombineRegions(t *testing.T) {
	s := fixture(t)
	require.NoError(t, s.Publish(context.Background(), regions("more", map[string][]*track.Region{
		"chr1": {
			{Type: "A", Start: 1, End: 3, Score: 9, Orientation: track.Direct},
			{Type: "C", Start: 7, End: 7},
		},
	})))

	p := params("", "union", nil)
	p[engine.ParamSourceData] = []string{"peaks", "more"}
	require.NoError(t, run(t, s, "combine_regions", p))
	assert.Equal(t, []span{{"A", 1, 3, 1}, {"A", 5, 6, 4}, {"C", 7, 7, 0}, {"B", 8, 9, 2}}, spans(regionsOf(t, s, "union", "chr1")))

	p = params("", "onlyA", engine.Params{engine.ParamWhere: typeIs("A")})
	p[engine.ParamSourceData] = "peaks, more"
	require.NoError(t, run(t, s, "combine_regions", p))
	assert.Len(t, regionsOf(t, s, "onlyA", "chr1"), 2)
	assert.Len(t, regionsOf(t, s, "onlyA", "chr2"), 1)
}

func TestCombineNumeric(t *testing.T) {
	tests := []struct {
		method   string
		expected float64
	}{
		{CombineSum, 3},
		{CombineMean, 1.5},
		{CombineMin, 0},
		{CombineMax, 3},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			s := fixture(t)
			p := params("", "out", engine.Params{engine.ParamMethod: tt.method})
			p[engine.ParamSourceData] = []any{"signal", "zeros"}
			require.NoError(t, run(t, s, "combine_numeric", p))
			assert.Equal(t, tt.expected, values(t, s, "out", "chr1")[2])
		})
	}
}

func TestCombineValidation(t *testing.T) {
	s := fixture(t)

	err := run(t, s, "combine_numeric", params("signal", "out", nil))
	assert.Equal(t, errdefs.CodeOperandCount, errdefs.CodeOf(err))

	p := params("", "out", nil)
	p[engine.ParamSourceData] = []string{"signal", "peaks"}
	err = run(t, s, "combine_numeric", p)
	assert.True(t, errdefs.IsTypeMismatch(err))

	err = run(t, s, "arithmetic", params("signal, zeros", "out", engine.Params{engine.ParamMethod: "set", engine.ParamArgument: 1}))
	assert.Equal(t, errdefs.CodeOperandCount, errdefs.CodeOf(err))
}

func TestRegistry(t *testing.T) {
	assert.Equal(t, []string{
		"arithmetic", "combine_numeric", "combine_regions", "filter_regions",
		"interpolate", "merge_regions", "update_regions",
	}, Names())

	_, err := New("smooth", nil)
	require.Error(t, err)
	assert.True(t, errdefs.IsConfiguration(err))

	tr, err := New("Combine_Regions", nil)
	require.NoError(t, err)
	assert.True(t, tr.IsCombine())
	assert.Equal(t, "combine_regions", tr.Name())

	tr, err = New("merge_regions", nil)
	require.NoError(t, err)
	assert.False(t, tr.IsCombine())
}

func TestRunStampsSourceLine(t *testing.T) {
	s := fixture(t)
	p := engine.Params{engine.ParamMethod: "set", engine.ParamArgument: 1}
	tr, err := New("arithmetic", p)
	require.NoError(t, err)

	_, err = tr.Run(context.Background(), engine.NewTransformEngine(s), engine.NewTask("arithmetic", p).WithLine(14))
	require.Error(t, err)
	e, ok := errdefs.As(err)
	require.True(t, ok)
	assert.Equal(t, 14, e.Line)
	assert.Equal(t, "arithmetic", e.Operation)
}
