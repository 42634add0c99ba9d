package track

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testNumeric(t *testing.T) *NumericDataset {
	t.Helper()
	d := NewNumericDataset("signal")
	s := NewNumericSequence(&Sequence{Name: "chr1", Start: 10, End: 14, Strand: Direct})
	copy(s.Values, []float64{1, 2, 3, 4, 5})
	d.Put(s)
	return d
}

func TestNumericSequence_ValueAccess(t *testing.T) {
	d := testNumeric(t)
	s, ok := d.Sequence("chr1")
	require.True(t, ok)

	v, ok := s.ValueAt(12)
	assert.True(t, ok)
	assert.Equal(t, 3.0, v)

	_, ok = s.ValueAt(9)
	assert.False(t, ok)
	assert.False(t, s.SetValueAt(15, 1))

	mean, ok := s.Mean(8, 11)
	require.True(t, ok)
	assert.Equal(t, 1.5, mean)

	_, ok = s.Mean(20, 30)
	assert.False(t, ok)
}

func TestNumericDataset_CloneIsIndependent(t *testing.T) {
	d := testNumeric(t)
	cp := d.Clone().(*NumericDataset)
	cp.Rename("copy")
	s, _ := cp.Sequence("chr1")
	s.SetValueAt(10, 100)

	orig, _ := d.Sequence("chr1")
	v, _ := orig.ValueAt(10)
	assert.Equal(t, 1.0, v)
	assert.Equal(t, "signal", d.Name())
	assert.Equal(t, "copy", cp.Name())
}

func TestNumericDataset_Finalize(t *testing.T) {
	d := testNumeric(t)
	d.Finalize()
	lo, hi := d.Range()
	assert.Equal(t, 1.0, lo)
	assert.Equal(t, 5.0, hi)

	empty := NewNumericDataset("empty")
	empty.Finalize()
	lo, hi = empty.Range()
	assert.Zero(t, lo)
	assert.Zero(t, hi)
}

func TestRegion_Properties(t *testing.T) {
	r := &Region{Type: "exon", Start: 5, End: 9, Score: 2}

	v, ok := r.Property(PropertyLength)
	require.True(t, ok)
	assert.Equal(t, 5.0, v)

	require.NoError(t, r.SetProperty(PropertyScore, "3.5"))
	assert.Equal(t, 3.5, r.Score)
	require.NoError(t, r.SetProperty(PropertyOrientation, "-"))
	assert.Equal(t, Reverse, r.Orientation)
	assert.Error(t, r.SetProperty(PropertyStart, 1))

	require.NoError(t, r.SetProperty("gene", "abc"))
	v, ok = r.Property("gene")
	require.True(t, ok)
	assert.Equal(t, "abc", v)

	require.NoError(t, r.SetProperty("gene", nil))
	_, ok = r.Property("gene")
	assert.False(t, ok)
}

func TestRegion_Relations(t *testing.T) {
	r := &Region{Start: 10, End: 20}
	assert.True(t, r.Overlaps(20, 30))
	assert.False(t, r.Overlaps(21, 30))
	assert.True(t, r.Inside(5, 25))
	assert.False(t, r.Inside(12, 25))
	assert.True(t, r.Covers(12, 18))
	assert.False(t, r.Covers(5, 18))
}

func TestRegionDataset_FinalizeSortsAndCollectsTypes(t *testing.T) {
	d := NewRegionDataset("genes")
	s := NewRegionSequence(&Sequence{Name: "chr1", Start: 1, End: 100})
	s.Add(&Region{Type: "intron", Start: 40, End: 50})
	s.Add(&Region{Type: "exon", Start: 1, End: 10})
	s.Add(&Region{Type: "exon", Start: 20, End: 30})
	d.Put(s)

	d.Finalize()

	assert.Equal(t, []string{"exon", "intron"}, d.Types())
	starts := []int{}
	for _, r := range s.Regions {
		starts = append(starts, r.Start)
	}
	assert.Equal(t, []int{1, 20, 40}, starts)
}

func TestRegionDataset_CloneCopiesProperties(t *testing.T) {
	d := NewRegionDataset("genes")
	s := NewRegionSequence(&Sequence{Name: "chr1", Start: 1, End: 100})
	s.Add(&Region{Type: "exon", Start: 1, End: 10, Properties: map[string]any{"tags": []string{"a"}}})
	d.Put(s)

	cp := d.Clone().(*RegionDataset)
	cs, _ := cp.Sequence("chr1")
	cs.Regions[0].Properties["tags"].([]string)[0] = "b"
	cs.Regions[0].Type = "cds"

	assert.Equal(t, "exon", s.Regions[0].Type)
	assert.Equal(t, []string{"a"}, s.Regions[0].Properties["tags"])
}

func TestSequenceCollection(t *testing.T) {
	c, err := NewSequenceCollection("all",
		&Sequence{Name: "chr1", Start: 1, End: 100},
		&Sequence{Name: "chr2", Start: 1, End: 50},
	)
	require.NoError(t, err)
	assert.True(t, c.Contains("chr2"))
	assert.False(t, c.Contains("chr3"))
	assert.Equal(t, []string{"chr1", "chr2"}, c.Names())

	err = c.Add(&Sequence{Name: "chr1", Start: 1, End: 2})
	assert.Error(t, err)

	_, err = NewSequenceCollection("bad", &Sequence{Name: "x", Start: 10, End: 1})
	assert.Error(t, err)
}

func TestCodec_RoundTripIsDeterministic(t *testing.T) {
	c, err := NewSequenceCollection("all", &Sequence{Name: "chr1", Start: 1, End: 5})
	require.NoError(t, err)

	regions := NewRegionDataset("genes")
	rs := NewRegionSequence(&Sequence{Name: "chr1", Start: 1, End: 5})
	rs.Add(&Region{Type: "exon", Start: 2, End: 3, Properties: map[string]any{"b": "2", "a": "1"}})
	regions.Put(rs)
	regions.MarkDerived()

	objects := []Object{testNumeric(t), regions, c, NewNumericVariable("k", 2.5)}
	for _, obj := range objects {
		t.Run(string(obj.Kind()), func(t *testing.T) {
			first, err := Marshal(obj)
			require.NoError(t, err)

			decoded, err := Unmarshal(first)
			require.NoError(t, err)
			assert.Equal(t, obj.Kind(), decoded.Kind())
			assert.Equal(t, obj.Name(), decoded.Name())

			second, err := Marshal(decoded)
			require.NoError(t, err)
			assert.Equal(t, string(first), string(second))
		})
	}
}

func TestCodec_Rejects(t *testing.T) {
	_, err := Unmarshal([]byte(`{"kind":"bogus","data":{}}`))
	assert.Error(t, err)

	_, err = Unmarshal([]byte(`{"kind":"numeric","data":{"sequences":{}}}`))
	assert.Error(t, err)

	_, err = Unmarshal([]byte(`not json`))
	assert.Error(t, err)
}

func TestParseOrientation(t *testing.T) {
	tests := []struct {
		in   string
		want Orientation
		err  bool
	}{
		{"+", Direct, false},
		{"reverse", Reverse, false},
		{".", Undetermined, false},
		{"sideways", Undetermined, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseOrientation(tt.in)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
