// Package condition implements composable predicates that gate which
// sequences, positions and regions take part in a transform.
//
// A Condition is an editable tree: leaves name external data (tracks,
// collections, variables) or carry a small program, compounds combine
// children with AND/OR and an optional negation. A tree cannot be evaluated
// directly. Resolve binds every external reference and returns a Resolved
// predicate; only a Resolved value has Satisfied. Editing a tree after
// resolving it does not affect predicates already produced, so a caller that
// edits must resolve again before the edit takes effect.
//
// Resolved predicates are immutable and safe for concurrent use by the
// transform workers.
package condition

import (
	"context"
	"fmt"

	"github.com/trackforge/trackforge/pkg/errdefs"
	"github.com/trackforge/trackforge/pkg/track"
)

// Env binds object names to stored objects during resolution.
type Env interface {
	Lookup(name string) (track.Object, bool)
}

// Point is the location a predicate is evaluated at: a single position
// (Start == End) or the span of a region.
type Point struct {
	Sequence string
	Start    int
	End      int

	// Region is set when the point is a region being considered by a region operation.
	Region *track.Region
}

// At returns the point for one genomic position.
func At(sequence string, position int) Point {
	return Point{Sequence: sequence, Start: position, End: position}
}

// Span returns the point covering a region.
func Span(sequence string, r *track.Region) Point {
	return Point{Sequence: sequence, Start: r.Start, End: r.End, Region: r}
}

// IsPosition reports whether the point is a single position.
func (p Point) IsPosition() bool {
	return p.Region == nil && p.Start == p.End
}

// Condition is an unresolved, editable condition tree node.
type Condition interface {
	// Resolve binds external references and returns an evaluable predicate.
	Resolve(ctx context.Context, env Env) (Resolved, error)

	// Clone returns a fully independent deep copy.
	Clone() Condition

	// ImportFrom replaces this condition's state with a copy of other's.
	// It fails with a type-mismatch error when other is a different variant.
	ImportFrom(other Condition) error

	// Size returns the number of leaf conditions in the tree.
	Size() int

	fmt.Stringer
}

// Resolved is a bound predicate.
type Resolved interface {
	Satisfied(ctx context.Context, p Point) (bool, error)
}

// ResolveOptional resolves c, treating a nil condition as no restriction.
func ResolveOptional(ctx context.Context, c Condition, env Env) (Resolved, error) {
	if c == nil {
		return nil, nil
	}
	return c.Resolve(ctx, env)
}

// lookup binds name to a stored object of type T.
func lookup[T track.Object](env Env, name string, want track.Kind) (T, error) {
	var zero T
	if name == "" {
		return zero, errdefs.NewConfigurationError(fmt.Sprintf("missing %s reference", want), nil).
			WithCode(errdefs.CodeInvalidParameter)
	}
	if env == nil {
		return zero, errdefs.NewConfigurationError(fmt.Sprintf("cannot resolve %q without a data store", name), nil).
			WithCode(errdefs.CodeUnresolved)
	}
	obj, ok := env.Lookup(name)
	if !ok {
		return zero, errdefs.NewConfigurationError(fmt.Sprintf("unknown object %q", name), nil).
			WithCode(errdefs.CodeNotFound)
	}
	typed, ok := obj.(T)
	if !ok {
		return zero, errdefs.NewConfigurationError(
			fmt.Sprintf("object %q is %s, expected %s", name, obj.Kind(), want), nil).
			WithCode(errdefs.CodeWrongKind)
	}
	return typed, nil
}

// importLeaf implements ImportFrom for value-only leaves.
func importLeaf[T any](dst *T, other Condition) error {
	src, ok := any(other).(*T)
	if !ok || src == nil {
		return errdefs.NewTypeMismatchError(
			fmt.Sprintf("cannot import %T into %T", other, dst), nil)
	}
	*dst = *src
	return nil
}
