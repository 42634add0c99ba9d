package track

import (
	"encoding/json"
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"
)

// Sequence is a named genomic region of interest.
// Coordinates are 1-based and inclusive.
type Sequence struct {
	Name       string      `json:"name"`
	Chromosome string      `json:"chromosome,omitempty"`
	Start      int         `json:"start"`
	End        int         `json:"end"`
	Strand     Orientation `json:"strand"`
}

// Length returns the number of positions in the sequence.
func (s *Sequence) Length() int {
	return s.End - s.Start + 1
}

// Contains reports whether pos lies within the sequence.
func (s *Sequence) Contains(pos int) bool {
	return pos >= s.Start && pos <= s.End
}

// SequenceCollection is a named, ordered set of sequences.
type SequenceCollection struct {
	name      string
	sequences []*Sequence
	index     mapset.Set[string]
}

// NewSequenceCollection creates a collection from the given sequences.
// Duplicate names are rejected.
func NewSequenceCollection(name string, sequences ...*Sequence) (*SequenceCollection, error) {
	c := &SequenceCollection{name: name, index: mapset.NewThreadUnsafeSet[string]()}
	for _, s := range sequences {
		if err := c.Add(s); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Name implements Object.
func (c *SequenceCollection) Name() string { return c.name }

// Kind implements Object.
func (c *SequenceCollection) Kind() Kind { return KindSequenceCollection }

// Add appends a sequence to the collection.
func (c *SequenceCollection) Add(s *Sequence) error {
	if s == nil || s.Name == "" {
		return fmt.Errorf("sequence name is required")
	}
	if s.End < s.Start {
		return fmt.Errorf("sequence %s: end %d before start %d", s.Name, s.End, s.Start)
	}
	if !c.index.Add(s.Name) {
		return fmt.Errorf("duplicate sequence %s in collection %s", s.Name, c.name)
	}
	c.sequences = append(c.sequences, s)
	return nil
}

// Contains reports whether the named sequence is a member.
func (c *SequenceCollection) Contains(name string) bool {
	return c.index.Contains(name)
}

// Len returns the number of sequences.
func (c *SequenceCollection) Len() int { return len(c.sequences) }

// Names returns the member names in collection order.
func (c *SequenceCollection) Names() []string {
	names := make([]string, len(c.sequences))
	for i, s := range c.sequences {
		names[i] = s.Name
	}
	return names
}

// Sequences returns the members in collection order.
func (c *SequenceCollection) Sequences() []*Sequence {
	return append([]*Sequence(nil), c.sequences...)
}

// Sequence returns the named member.
func (c *SequenceCollection) Sequence(name string) (*Sequence, bool) {
	if !c.index.Contains(name) {
		return nil, false
	}
	for _, s := range c.sequences {
		if s.Name == name {
			return s, true
		}
	}
	return nil, false
}

// Clone implements Object.
func (c *SequenceCollection) Clone() Object {
	out := &SequenceCollection{name: c.name, index: c.index.Clone()}
	out.sequences = make([]*Sequence, len(c.sequences))
	for i, s := range c.sequences {
		cp := *s
		out.sequences[i] = &cp
	}
	return out
}

type collectionJSON struct {
	Name      string      `json:"name"`
	Sequences []*Sequence `json:"sequences"`
}

// MarshalJSON implements json.Marshaler.
func (c *SequenceCollection) MarshalJSON() ([]byte, error) {
	return json.Marshal(collectionJSON{Name: c.name, Sequences: c.sequences})
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *SequenceCollection) UnmarshalJSON(data []byte) error {
	var wire collectionJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	fresh, err := NewSequenceCollection(wire.Name, wire.Sequences...)
	if err != nil {
		return err
	}
	*c = *fresh
	return nil
}
