// Package track holds the feature data model: sequences and sequence
// collections, numeric tracks, region tracks and numeric variables.
//
// Every stored object implements Object. Datasets additionally expose their
// per-sequence entries so the transform engine can partition work by sequence
// name, and can be deep-cloned to build a result without touching the source.
package track

import (
	"fmt"
	"strings"
)

// Kind identifies the type of a stored object.
type Kind string

const (
	// KindNumeric is a per-position numeric track.
	KindNumeric Kind = "numeric"

	// KindRegion is an annotated region track.
	KindRegion Kind = "region"

	// KindSequenceCollection is a named, ordered set of sequences.
	KindSequenceCollection Kind = "sequence_collection"

	// KindNumericVariable is a named scalar.
	KindNumericVariable Kind = "numeric_variable"
)

// Validate checks if the kind is known.
func (k Kind) Validate() error {
	switch k {
	case KindNumeric, KindRegion, KindSequenceCollection, KindNumericVariable:
		return nil
	default:
		return fmt.Errorf("invalid object kind: %s", k)
	}
}

// IsDataset returns true for kinds that carry per-sequence feature data.
func (k Kind) IsDataset() bool {
	return k == KindNumeric || k == KindRegion
}

// Orientation is the strand of a sequence or region.
type Orientation int

const (
	// Undetermined orientation.
	Undetermined Orientation = 0
	// Direct is the forward strand.
	Direct Orientation = 1
	// Reverse is the reverse strand.
	Reverse Orientation = -1
)

// String returns the conventional strand symbol.
func (o Orientation) String() string {
	switch o {
	case Direct:
		return "+"
	case Reverse:
		return "-"
	default:
		return "."
	}
}

// ParseOrientation parses "+", "-", ".", "direct", "reverse" and numeric forms.
func ParseOrientation(s string) (Orientation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "+", "1", "+1", "direct":
		return Direct, nil
	case "-", "-1", "reverse":
		return Reverse, nil
	case ".", "0", "", "undetermined":
		return Undetermined, nil
	default:
		return Undetermined, fmt.Errorf("invalid orientation: %q", s)
	}
}

// Object is anything the data store can hold.
type Object interface {
	// Name returns the registry name of the object.
	Name() string

	// Kind returns the object kind.
	Kind() Kind

	// Clone returns a fully independent deep copy.
	Clone() Object
}

// SequenceData is the per-sequence entry of a dataset.
type SequenceData interface {
	// SequenceName returns the name of the sequence this entry belongs to.
	SequenceName() string
}

// Dataset is a named container of per-sequence feature data of one kind.
type Dataset interface {
	Object

	// Rename changes the registry name of the dataset.
	Rename(name string)

	// SequenceNames returns the names of all sequence entries, sorted.
	SequenceNames() []string

	// SequenceData returns the entry for the named sequence.
	SequenceData(name string) (SequenceData, bool)

	// Finalize recomputes dataset-level aggregates after all entries are written.
	Finalize()

	// MarkDerived flags the dataset as the product of an operation.
	MarkDerived()

	// IsDerived reports whether the dataset was produced by an operation.
	IsDerived() bool
}
