package condition

import (
	"context"
	"fmt"
	"strings"

	"github.com/trackforge/trackforge/pkg/errdefs"
)

// Operator combines the children of a compound condition.
type Operator int

const (
	// OpAnd is satisfied when every child is satisfied.
	OpAnd Operator = iota
	// OpOr is satisfied when at least one child is satisfied.
	OpOr
)

// String returns the operator keyword.
func (o Operator) String() string {
	switch o {
	case OpAnd:
		return "AND"
	case OpOr:
		return "OR"
	default:
		return fmt.Sprintf("Operator(%d)", int(o))
	}
}

// Compound is an ordered list of child conditions combined by one operator,
// optionally negated. Children may be nil placeholders; they are kept in
// place by every editing operation and by Clone, and are ignored by Resolve.
type Compound struct {
	Op       Operator
	Negate   bool
	children []Condition
}

// And returns a compound satisfied when all children are satisfied.
func And(children ...Condition) *Compound {
	return &Compound{Op: OpAnd, children: children}
}

// Or returns a compound satisfied when any child is satisfied.
func Or(children ...Condition) *Compound {
	return &Compound{Op: OpOr, children: children}
}

// Not negates a condition. A compound is copied with its negate flag flipped;
// a leaf is wrapped in a negated single-child AND.
func Not(c Condition) *Compound {
	if cc, ok := c.(*Compound); ok {
		out := cc.Clone().(*Compound)
		out.Negate = !out.Negate
		return out
	}
	return &Compound{Op: OpAnd, Negate: true, children: []Condition{c}}
}

// Len returns the number of children, placeholders included.
func (c *Compound) Len() int { return len(c.children) }

// Child returns the child at index i, or nil when out of range.
func (c *Compound) Child(i int) Condition {
	if i < 0 || i >= len(c.children) {
		return nil
	}
	return c.children[i]
}

// Add appends a child.
func (c *Compound) Add(child Condition) {
	c.children = append(c.children, child)
}

// Insert places a child at index i, shifting later children right.
func (c *Compound) Insert(i int, child Condition) error {
	if i < 0 || i > len(c.children) {
		return c.indexError(i)
	}
	c.children = append(c.children, nil)
	copy(c.children[i+1:], c.children[i:])
	c.children[i] = child
	return nil
}

// Remove deletes the child at index i.
func (c *Compound) Remove(i int) error {
	if i < 0 || i >= len(c.children) {
		return c.indexError(i)
	}
	c.children = append(c.children[:i], c.children[i+1:]...)
	return nil
}

// Replace swaps the child at index i.
func (c *Compound) Replace(i int, child Condition) error {
	if i < 0 || i >= len(c.children) {
		return c.indexError(i)
	}
	c.children[i] = child
	return nil
}

func (c *Compound) indexError(i int) error {
	return errdefs.NewConfigurationError(
		fmt.Sprintf("child index %d out of range [0,%d)", i, len(c.children)), nil).
		WithCode(errdefs.CodeInvalidParameter)
}

// Clone implements Condition.
func (c *Compound) Clone() Condition {
	out := &Compound{Op: c.Op, Negate: c.Negate, children: make([]Condition, len(c.children))}
	for i, child := range c.children {
		if child != nil {
			out.children[i] = child.Clone()
		}
	}
	return out
}

// ImportFrom implements Condition.
func (c *Compound) ImportFrom(other Condition) error {
	src, ok := other.(*Compound)
	if !ok || src == nil {
		return errdefs.NewTypeMismatchError(fmt.Sprintf("cannot import %T into compound condition", other), nil)
	}
	*c = *src.Clone().(*Compound)
	return nil
}

// Size implements Condition.
func (c *Compound) Size() int {
	n := 0
	for _, child := range c.children {
		if child != nil {
			n += child.Size()
		}
	}
	return n
}

// String implements Condition.
func (c *Compound) String() string {
	parts := make([]string, 0, len(c.children))
	for _, child := range c.children {
		if child == nil {
			parts = append(parts, "_")
			continue
		}
		parts = append(parts, child.String())
	}
	s := "(" + strings.Join(parts, " "+c.Op.String()+" ") + ")"
	if c.Negate {
		s = "NOT " + s
	}
	return s
}

// Resolve implements Condition.
func (c *Compound) Resolve(ctx context.Context, env Env) (Resolved, error) {
	out := &resolvedCompound{op: c.Op, negate: c.Negate, children: make([]Resolved, 0, len(c.children))}
	for i, child := range c.children {
		if child == nil {
			continue
		}
		r, err := child.Resolve(ctx, env)
		if err != nil {
			return nil, fmt.Errorf("child %d of %s: %w", i, c.Op, err)
		}
		out.children = append(out.children, r)
	}
	return out, nil
}

type resolvedCompound struct {
	op       Operator
	negate   bool
	children []Resolved
}

// Satisfied applies De Morgan's law at the operator level so that a negated
// compound short-circuits exactly like its non-negated dual.
func (r *resolvedCompound) Satisfied(ctx context.Context, p Point) (bool, error) {
	switch r.op {
	case OpAnd:
		// AND: false on first unsatisfied. NOT AND: true on first unsatisfied.
		for _, child := range r.children {
			ok, err := child.Satisfied(ctx, p)
			if err != nil {
				return false, err
			}
			if !ok {
				return r.negate, nil
			}
		}
		return !r.negate, nil
	case OpOr:
		// OR: true on first satisfied. NOT OR: false on first satisfied.
		for _, child := range r.children {
			ok, err := child.Satisfied(ctx, p)
			if err != nil {
				return false, err
			}
			if ok {
				return !r.negate, nil
			}
		}
		return r.negate, nil
	default:
		return false, errdefs.NewConsistencyError(fmt.Sprintf("unknown compound operator %d", int(r.op)), nil).
			WithCode(errdefs.CodeUnknownOperator)
	}
}
