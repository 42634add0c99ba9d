package condition

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trackforge/trackforge/pkg/errdefs"
)

// stubLeaf is a fixed-value leaf that counts its evaluations.
type stubLeaf struct {
	value bool
	calls *atomic.Int32
}

func newStub(value bool) *stubLeaf {
	return &stubLeaf{value: value, calls: &atomic.Int32{}}
}

func (s *stubLeaf) Resolve(context.Context, Env) (Resolved, error) { return s, nil }
func (s *stubLeaf) Clone() Condition                              { cp := *s; return &cp }
func (s *stubLeaf) ImportFrom(other Condition) error               { return importLeaf(s, other) }
func (s *stubLeaf) Size() int                                      { return 1 }
func (s *stubLeaf) String() string                                 { return fmt.Sprint(s.value) }

func (s *stubLeaf) Satisfied(context.Context, Point) (bool, error) {
	s.calls.Add(1)
	return s.value, nil
}

func eval(t *testing.T, c Condition) bool {
	t.Helper()
	r, err := c.Resolve(context.Background(), nil)
	require.NoError(t, err)
	ok, err := r.Satisfied(context.Background(), At("chr1", 1))
	require.NoError(t, err)
	return ok
}

// assignments returns every truth assignment for n leaves.
func assignments(n int) [][]bool {
	out := make([][]bool, 0, 1<<n)
	for mask := 0; mask < 1<<n; mask++ {
		row := make([]bool, n)
		for i := range row {
			row[i] = mask&(1<<i) != 0
		}
		out = append(out, row)
	}
	return out
}

func leaves(values []bool) []Condition {
	out := make([]Condition, len(values))
	for i, v := range values {
		out[i] = newStub(v)
	}
	return out
}

func TestCompound_DeMorgan(t *testing.T) {
	for n := 0; n <= 4; n++ {
		for _, row := range assignments(n) {
			name := fmt.Sprintf("n=%d/%v", n, row)
			t.Run(name, func(t *testing.T) {
				negChildren := make([]Condition, n)
				for i, c := range leaves(row) {
					negChildren[i] = Not(c)
				}
				assert.Equal(t, eval(t, Or(negChildren...)), eval(t, Not(And(leaves(row)...))), "NOT AND")

				for i, c := range leaves(row) {
					negChildren[i] = Not(c)
				}
				assert.Equal(t, eval(t, And(negChildren...)), eval(t, Not(Or(leaves(row)...))), "NOT OR")

				all, some := true, false
				for _, v := range row {
					all = all && v
					some = some || v
				}
				assert.Equal(t, all, eval(t, And(leaves(row)...)))
				assert.Equal(t, some, eval(t, Or(leaves(row)...)))
				assert.Equal(t, !all, eval(t, Not(And(leaves(row)...))))
				assert.Equal(t, !some, eval(t, Not(Or(leaves(row)...))))
			})
		}
	}
}

func TestCompound_VacuousTruth(t *testing.T) {
	assert.True(t, eval(t, And()))
	assert.False(t, eval(t, Or()))
	assert.False(t, eval(t, Not(And())))
	assert.True(t, eval(t, Not(Or())))
}

func TestCompound_ShortCircuit(t *testing.T) {
	tests := []struct {
		name      string
		build     func(...Condition) *Compound
		values    []bool
		wantCalls []int32
	}{
		{"and stops at first false", And, []bool{true, false, true, true}, []int32{1, 1, 0, 0}},
		{"or stops at first true", Or, []bool{false, true, false}, []int32{1, 1, 0}},
		{"not and stops at first false", func(c ...Condition) *Compound { return Not(And(c...)) }, []bool{false, true}, []int32{1, 0}},
		{"not or stops at first true", func(c ...Condition) *Compound { return Not(Or(c...)) }, []bool{true, false}, []int32{1, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stubs := make([]*stubLeaf, len(tt.values))
			children := make([]Condition, len(tt.values))
			for i, v := range tt.values {
				stubs[i] = newStub(v)
				children[i] = stubs[i]
			}
			eval(t, tt.build(children...))
			for i, s := range stubs {
				assert.Equal(t, tt.wantCalls[i], s.calls.Load(), "child %d", i)
			}
		})
	}
}

func TestCompound_UnknownOperator(t *testing.T) {
	c := &Compound{Op: Operator(7)}
	r, err := c.Resolve(context.Background(), nil)
	require.NoError(t, err)
	_, err = r.Satisfied(context.Background(), At("chr1", 1))
	require.Error(t, err)
	assert.True(t, errdefs.IsConsistency(err))
}

func TestCompound_CloneIndependence(t *testing.T) {
	a, b := newStub(true), newStub(true)
	orig := And(a, b)
	clone := orig.Clone().(*Compound)

	require.NoError(t, clone.Child(1).ImportFrom(newStub(false)))
	assert.True(t, eval(t, orig))
	assert.False(t, eval(t, clone))

	require.NoError(t, clone.Replace(0, nil))
	assert.Equal(t, 2, orig.Len())
	assert.NotNil(t, orig.Child(0))
}

func TestCompound_ClonePreservesPlaceholders(t *testing.T) {
	c := Or(nil, newStub(false), nil)
	c.Negate = true
	clone := c.Clone().(*Compound)

	assert.Equal(t, 3, clone.Len())
	assert.Nil(t, clone.Child(0))
	assert.NotNil(t, clone.Child(1))
	assert.Nil(t, clone.Child(2))
	assert.True(t, clone.Negate)
	assert.Equal(t, OpOr, clone.Op)
	assert.Equal(t, 1, clone.Size())

	// placeholders do not take part in evaluation
	assert.True(t, eval(t, clone))
	assert.True(t, eval(t, And(nil, nil)))
}

func TestCompound_Editing(t *testing.T) {
	c := And()
	c.Add(newStub(true))
	require.NoError(t, c.Insert(0, newStub(false)))
	assert.Equal(t, 2, c.Len())
	assert.False(t, eval(t, c))

	require.NoError(t, c.Remove(0))
	assert.True(t, eval(t, c))

	assert.Error(t, c.Remove(5))
	assert.Error(t, c.Insert(-1, nil))
	err := c.Replace(3, nil)
	require.Error(t, err)
	assert.True(t, errdefs.IsConfiguration(err))
	assert.Nil(t, c.Child(10))
}

func TestCompound_EditAfterResolve(t *testing.T) {
	c := And(newStub(true))
	r, err := c.Resolve(context.Background(), nil)
	require.NoError(t, err)

	c.Add(newStub(false))

	ok, err := r.Satisfied(context.Background(), At("chr1", 1))
	require.NoError(t, err)
	assert.True(t, ok, "resolved predicate is a snapshot")
	assert.False(t, eval(t, c), "re-resolving picks up the edit")
}

func TestImportFrom(t *testing.T) {
	c := And(newStub(true))
	other := Or(newStub(false), newStub(false))
	other.Negate = true

	require.NoError(t, c.ImportFrom(other))
	assert.Equal(t, OpOr, c.Op)
	assert.True(t, c.Negate)
	assert.Equal(t, 2, c.Len())

	// imported children are copies
	require.NoError(t, other.Replace(0, newStub(true)))
	assert.True(t, eval(t, c))

	err := c.ImportFrom(&SequenceGlob{Pattern: "*"})
	require.Error(t, err)
	assert.True(t, errdefs.IsTypeMismatch(err))

	glob := &SequenceGlob{Pattern: "chr*"}
	err = glob.ImportFrom(And())
	require.Error(t, err)
	assert.True(t, errdefs.IsTypeMismatch(err))
	require.NoError(t, glob.ImportFrom(&SequenceGlob{Pattern: "scaffold_*"}))
	assert.Equal(t, "scaffold_*", glob.Pattern)

	// leaves only import their own kind
	err = glob.ImportFrom(&InCollection{Collection: "genome"})
	assert.True(t, errdefs.IsTypeMismatch(err))
	var nilGlob *SequenceGlob
	assert.True(t, errdefs.IsTypeMismatch(glob.ImportFrom(nilGlob)))
	assert.Equal(t, "scaffold_*", glob.Pattern)
}

func TestCompound_String(t *testing.T) {
	c := Not(Or(&SequenceGlob{Pattern: "chr*"}, nil))
	assert.Equal(t, `NOT (sequence ~ "chr*" OR _)`, c.String())
}
