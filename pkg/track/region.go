package track

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	mapset "github.com/deckarep/golang-set/v2"
)

// Built-in region property names.
const (
	PropertyType        = "type"
	PropertyScore       = "score"
	PropertyOrientation = "orientation"
	PropertyStart       = "start"
	PropertyEnd         = "end"
	PropertyLength      = "length"
)

// Region is an annotated sub-interval of a sequence in genomic coordinates.
type Region struct {
	Type        string         `json:"type"`
	Start       int            `json:"start"`
	End         int            `json:"end"`
	Score       float64        `json:"score"`
	Orientation Orientation    `json:"orientation"`
	Properties  map[string]any `json:"properties,omitempty"`
}

// Length returns the number of positions covered by the region.
func (r *Region) Length() int { return r.End - r.Start + 1 }

// Overlaps reports whether the region shares at least one position with [start, end].
func (r *Region) Overlaps(start, end int) bool {
	return r.Start <= end && r.End >= start
}

// Inside reports whether the region lies entirely within [start, end].
func (r *Region) Inside(start, end int) bool {
	return r.Start >= start && r.End <= end
}

// Covers reports whether the region spans all of [start, end].
func (r *Region) Covers(start, end int) bool {
	return r.Start <= start && r.End >= end
}

// Equal compares every field including custom properties.
func (r *Region) Equal(o *Region) bool {
	if r.Type != o.Type || r.Start != o.Start || r.End != o.End ||
		r.Score != o.Score || r.Orientation != o.Orientation ||
		len(r.Properties) != len(o.Properties) {
		return false
	}
	for k, v := range r.Properties {
		ov, ok := o.Properties[k]
		if !ok || fmt.Sprint(v) != fmt.Sprint(ov) {
			return false
		}
	}
	return true
}

// Property returns a built-in or custom property value.
func (r *Region) Property(name string) (any, bool) {
	switch name {
	case PropertyType:
		return r.Type, true
	case PropertyScore:
		return r.Score, true
	case PropertyOrientation:
		return r.Orientation.String(), true
	case PropertyStart:
		return float64(r.Start), true
	case PropertyEnd:
		return float64(r.End), true
	case PropertyLength:
		return float64(r.Length()), true
	}
	v, ok := r.Properties[name]
	return v, ok
}

// SetProperty writes a built-in or custom property value. Built-in properties
// are converted to their field type.
func (r *Region) SetProperty(name string, value any) error {
	switch name {
	case PropertyType:
		r.Type = fmt.Sprint(value)
		return nil
	case PropertyScore:
		f, err := toFloat(value)
		if err != nil {
			return fmt.Errorf("property %s: %w", name, err)
		}
		r.Score = f
		return nil
	case PropertyOrientation:
		o, err := ParseOrientation(fmt.Sprint(value))
		if err != nil {
			return err
		}
		r.Orientation = o
		return nil
	case PropertyStart, PropertyEnd, PropertyLength:
		return fmt.Errorf("property %s is read-only", name)
	}
	if r.Properties == nil {
		r.Properties = make(map[string]any)
	}
	if value == nil {
		delete(r.Properties, name)
		return nil
	}
	r.Properties[name] = value
	return nil
}

// Clone returns a deep copy of the region.
func (r *Region) Clone() *Region {
	cp := *r
	if r.Properties != nil {
		cp.Properties = make(map[string]any, len(r.Properties))
		for k, v := range r.Properties {
			cp.Properties[k] = cloneValue(v)
		}
	}
	return &cp
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case []string:
		return append([]string(nil), t...)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

func toFloat(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case json.Number:
		return t.Float64()
	case string:
		return strconv.ParseFloat(t, 64)
	default:
		return 0, fmt.Errorf("not a number: %v", v)
	}
}

// RegionSequence is the region entry of one sequence.
type RegionSequence struct {
	Name    string      `json:"name"`
	Start   int         `json:"start"`
	End     int         `json:"end"`
	Strand  Orientation `json:"strand"`
	Regions []*Region   `json:"regions"`
}

// NewRegionSequence creates an empty region entry spanning seq.
func NewRegionSequence(seq *Sequence) *RegionSequence {
	return &RegionSequence{Name: seq.Name, Start: seq.Start, End: seq.End, Strand: seq.Strand}
}

// SequenceName implements SequenceData.
func (s *RegionSequence) SequenceName() string { return s.Name }

// Add appends a region.
func (s *RegionSequence) Add(r *Region) { s.Regions = append(s.Regions, r) }

// Overlapping returns the regions sharing at least one position with [start, end].
func (s *RegionSequence) Overlapping(start, end int) []*Region {
	var out []*Region
	for _, r := range s.Regions {
		if r.Overlaps(start, end) {
			out = append(out, r)
		}
	}
	return out
}

// Sort orders regions by start, end, then type.
func (s *RegionSequence) Sort() {
	sort.SliceStable(s.Regions, func(i, j int) bool {
		a, b := s.Regions[i], s.Regions[j]
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		if a.End != b.End {
			return a.End < b.End
		}
		return a.Type < b.Type
	})
}

func (s *RegionSequence) clone() *RegionSequence {
	cp := *s
	cp.Regions = make([]*Region, len(s.Regions))
	for i, r := range s.Regions {
		cp.Regions[i] = r.Clone()
	}
	return &cp
}

// RegionDataset is a region track over a set of sequences.
type RegionDataset struct {
	name      string
	sequences map[string]*RegionSequence
	types     []string
	derived   bool
}

// NewRegionDataset creates an empty region dataset.
func NewRegionDataset(name string) *RegionDataset {
	return &RegionDataset{name: name, sequences: make(map[string]*RegionSequence)}
}

// Name implements Object.
func (d *RegionDataset) Name() string { return d.name }

// Kind implements Object.
func (d *RegionDataset) Kind() Kind { return KindRegion }

// Rename implements Dataset.
func (d *RegionDataset) Rename(name string) { d.name = name }

// Put adds or replaces a sequence entry.
func (d *RegionDataset) Put(seq *RegionSequence) { d.sequences[seq.Name] = seq }

// Sequence returns the typed entry for a sequence.
func (d *RegionDataset) Sequence(name string) (*RegionSequence, bool) {
	s, ok := d.sequences[name]
	return s, ok
}

// SequenceData implements Dataset.
func (d *RegionDataset) SequenceData(name string) (SequenceData, bool) {
	s, ok := d.sequences[name]
	if !ok {
		return nil, false
	}
	return s, true
}

// SequenceNames implements Dataset.
func (d *RegionDataset) SequenceNames() []string {
	names := make([]string, 0, len(d.sequences))
	for name := range d.sequences {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Types returns the sorted set of region types recorded by the last Finalize.
func (d *RegionDataset) Types() []string { return append([]string(nil), d.types...) }

// Finalize sorts every entry and recomputes the region type set.
func (d *RegionDataset) Finalize() {
	types := mapset.NewThreadUnsafeSet[string]()
	for _, s := range d.sequences {
		s.Sort()
		for _, r := range s.Regions {
			types.Add(r.Type)
		}
	}
	d.types = types.ToSlice()
	sort.Strings(d.types)
}

// MarkDerived implements Dataset.
func (d *RegionDataset) MarkDerived() { d.derived = true }

// IsDerived implements Dataset.
func (d *RegionDataset) IsDerived() bool { return d.derived }

// Clone implements Object.
func (d *RegionDataset) Clone() Object {
	out := &RegionDataset{
		name:      d.name,
		sequences: make(map[string]*RegionSequence, len(d.sequences)),
		types:     append([]string(nil), d.types...),
		derived:   d.derived,
	}
	for name, s := range d.sequences {
		out.sequences[name] = s.clone()
	}
	return out
}

type regionJSON struct {
	Name      string                     `json:"name"`
	Types     []string                   `json:"types,omitempty"`
	Derived   bool                       `json:"derived,omitempty"`
	Sequences map[string]*RegionSequence `json:"sequences"`
}

// MarshalJSON implements json.Marshaler.
func (d *RegionDataset) MarshalJSON() ([]byte, error) {
	return json.Marshal(regionJSON{
		Name:      d.name,
		Types:     d.types,
		Derived:   d.derived,
		Sequences: d.sequences,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *RegionDataset) UnmarshalJSON(data []byte) error {
	var wire regionJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	if wire.Sequences == nil {
		wire.Sequences = make(map[string]*RegionSequence)
	}
	for name, s := range wire.Sequences {
		s.Name = name
	}
	*d = RegionDataset{
		name:      wire.Name,
		sequences: wire.Sequences,
		types:     wire.Types,
		derived:   wire.Derived,
	}
	return nil
}
