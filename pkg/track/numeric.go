package track

import (
	"encoding/json"
	"math"
	"sort"
)

// NumericSequence holds one value per genomic position of a sequence.
type NumericSequence struct {
	Name   string      `json:"name"`
	Start  int         `json:"start"`
	End    int         `json:"end"`
	Strand Orientation `json:"strand"`
	Values []float64   `json:"values"`
}

// NewNumericSequence creates a zero-filled numeric entry spanning seq.
func NewNumericSequence(seq *Sequence) *NumericSequence {
	return &NumericSequence{
		Name:   seq.Name,
		Start:  seq.Start,
		End:    seq.End,
		Strand: seq.Strand,
		Values: make([]float64, seq.Length()),
	}
}

// SequenceName implements SequenceData.
func (n *NumericSequence) SequenceName() string { return n.Name }

// ValueAt returns the value at a genomic position.
func (n *NumericSequence) ValueAt(pos int) (float64, bool) {
	i := pos - n.Start
	if i < 0 || i >= len(n.Values) {
		return 0, false
	}
	return n.Values[i], true
}

// SetValueAt sets the value at a genomic position. Out-of-range positions are ignored.
func (n *NumericSequence) SetValueAt(pos int, v float64) bool {
	i := pos - n.Start
	if i < 0 || i >= len(n.Values) {
		return false
	}
	n.Values[i] = v
	return true
}

// Mean returns the average value over [start, end] clipped to the sequence.
func (n *NumericSequence) Mean(start, end int) (float64, bool) {
	if start < n.Start {
		start = n.Start
	}
	if end > n.End {
		end = n.End
	}
	if end < start {
		return 0, false
	}
	var sum float64
	for pos := start; pos <= end; pos++ {
		sum += n.Values[pos-n.Start]
	}
	return sum / float64(end-start+1), true
}

func (n *NumericSequence) clone() *NumericSequence {
	cp := *n
	cp.Values = append([]float64(nil), n.Values...)
	return &cp
}

// NumericDataset is a numeric track over a set of sequences.
type NumericDataset struct {
	name      string
	sequences map[string]*NumericSequence
	min, max  float64
	derived   bool
}

// NewNumericDataset creates an empty numeric dataset.
func NewNumericDataset(name string) *NumericDataset {
	return &NumericDataset{name: name, sequences: make(map[string]*NumericSequence)}
}

// Name implements Object.
func (d *NumericDataset) Name() string { return d.name }

// Kind implements Object.
func (d *NumericDataset) Kind() Kind { return KindNumeric }

// Rename implements Dataset.
func (d *NumericDataset) Rename(name string) { d.name = name }

// Put adds or replaces a sequence entry.
func (d *NumericDataset) Put(seq *NumericSequence) { d.sequences[seq.Name] = seq }

// Sequence returns the typed entry for a sequence.
func (d *NumericDataset) Sequence(name string) (*NumericSequence, bool) {
	s, ok := d.sequences[name]
	return s, ok
}

// SequenceData implements Dataset.
func (d *NumericDataset) SequenceData(name string) (SequenceData, bool) {
	s, ok := d.sequences[name]
	if !ok {
		return nil, false
	}
	return s, true
}

// SequenceNames implements Dataset.
func (d *NumericDataset) SequenceNames() []string {
	names := make([]string, 0, len(d.sequences))
	for name := range d.sequences {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Range returns the aggregate minimum and maximum recorded by the last Finalize.
func (d *NumericDataset) Range() (float64, float64) { return d.min, d.max }

// Finalize recomputes the aggregate min/max over all values.
func (d *NumericDataset) Finalize() {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, s := range d.sequences {
		for _, v := range s.Values {
			if math.IsNaN(v) {
				continue
			}
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}
	if math.IsInf(lo, 1) {
		lo, hi = 0, 0
	}
	d.min, d.max = lo, hi
}

// MarkDerived implements Dataset.
func (d *NumericDataset) MarkDerived() { d.derived = true }

// IsDerived implements Dataset.
func (d *NumericDataset) IsDerived() bool { return d.derived }

// Clone implements Object.
func (d *NumericDataset) Clone() Object {
	out := &NumericDataset{
		name:      d.name,
		sequences: make(map[string]*NumericSequence, len(d.sequences)),
		min:       d.min,
		max:       d.max,
		derived:   d.derived,
	}
	for name, s := range d.sequences {
		out.sequences[name] = s.clone()
	}
	return out
}

type numericJSON struct {
	Name      string                      `json:"name"`
	Min       float64                     `json:"min"`
	Max       float64                     `json:"max"`
	Derived   bool                        `json:"derived,omitempty"`
	Sequences map[string]*NumericSequence `json:"sequences"`
}

// MarshalJSON implements json.Marshaler.
func (d *NumericDataset) MarshalJSON() ([]byte, error) {
	return json.Marshal(numericJSON{
		Name:      d.name,
		Min:       d.min,
		Max:       d.max,
		Derived:   d.derived,
		Sequences: d.sequences,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *NumericDataset) UnmarshalJSON(data []byte) error {
	var wire numericJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	if wire.Sequences == nil {
		wire.Sequences = make(map[string]*NumericSequence)
	}
	for name, s := range wire.Sequences {
		s.Name = name
	}
	*d = NumericDataset{
		name:      wire.Name,
		sequences: wire.Sequences,
		min:       wire.Min,
		max:       wire.Max,
		derived:   wire.Derived,
	}
	return nil
}

// NumericVariable is a named scalar used where a parameter accepts either a
// literal or a reference.
type NumericVariable struct {
	name  string
	Value float64
}

// NewNumericVariable creates a numeric variable.
func NewNumericVariable(name string, value float64) *NumericVariable {
	return &NumericVariable{name: name, Value: value}
}

// Name implements Object.
func (v *NumericVariable) Name() string { return v.name }

// Kind implements Object.
func (v *NumericVariable) Kind() Kind { return KindNumericVariable }

// Clone implements Object.
func (v *NumericVariable) Clone() Object {
	cp := *v
	return &cp
}

type variableJSON struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// MarshalJSON implements json.Marshaler.
func (v *NumericVariable) MarshalJSON() ([]byte, error) {
	return json.Marshal(variableJSON{Name: v.name, Value: v.Value})
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *NumericVariable) UnmarshalJSON(data []byte) error {
	var wire variableJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	v.name, v.Value = wire.Name, wire.Value
	return nil
}
