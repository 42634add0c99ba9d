package config

import (
	"fmt"
	"strings"

	"github.com/trackforge/trackforge/pkg/condition"
)

// BuildCondition turns a condition spec into a condition tree. A nil spec
// yields a nil condition.
func BuildCondition(spec *ConditionSpec) (condition.Condition, error) {
	if spec == nil {
		return nil, nil
	}
	set := spec.selectors()
	switch len(set) {
	case 0:
		return nil, fmt.Errorf("empty condition")
	case 1:
	default:
		return nil, fmt.Errorf("condition sets %s; exactly one is allowed", strings.Join(set, ", "))
	}

	switch {
	case spec.All != nil || spec.Any != nil:
		children := spec.All
		if spec.Any != nil {
			children = spec.Any
		}
		if len(children) == 0 {
			return nil, fmt.Errorf("%s needs at least one condition", set[0])
		}
		built := make([]condition.Condition, 0, len(children))
		for i, child := range children {
			c, err := BuildCondition(child)
			if err != nil {
				return nil, fmt.Errorf("%s[%d]: %w", set[0], i, err)
			}
			if c == nil {
				return nil, fmt.Errorf("%s[%d]: empty condition", set[0], i)
			}
			built = append(built, c)
		}
		if spec.Any != nil {
			return condition.Or(built...), nil
		}
		return condition.And(built...), nil

	case spec.Not != nil:
		c, err := BuildCondition(spec.Not)
		if err != nil {
			return nil, fmt.Errorf("not: %w", err)
		}
		return condition.Not(c), nil

	case spec.Numeric != nil:
		n := spec.Numeric
		if _, err := condition.ParseCompareOp(n.Op); err != nil {
			return nil, err
		}
		return &condition.NumericCompare{
			Track:    n.Track,
			Operator: n.Op,
			Value:    string(n.Value),
			Value2:   string(n.Value2),
		}, nil

	case spec.Overlaps != nil:
		return &condition.RegionOverlap{Track: spec.Overlaps.Track, Mode: spec.Overlaps.Mode, Type: spec.Overlaps.Type}, nil

	case spec.Sequences != "":
		return &condition.SequenceGlob{Pattern: spec.Sequences}, nil

	case spec.InCollection != "":
		return &condition.InCollection{Collection: spec.InCollection}, nil

	case spec.Expr != "":
		return &condition.Expr{Source: spec.Expr}, nil

	case spec.Rego != nil:
		return &condition.Rego{Module: spec.Rego.Module, Query: spec.Rego.Query}, nil

	default:
		p := spec.Property
		if _, err := condition.ParseCompareOp(p.Op); err != nil {
			return nil, err
		}
		return &condition.RegionProperty{Property: p.Name, Operator: p.Op, Value: string(p.Value)}, nil
	}
}

func (spec *ConditionSpec) selectors() []string {
	var set []string
	add := func(ok bool, name string) {
		if ok {
			set = append(set, name)
		}
	}
	add(spec.All != nil, "all")
	add(spec.Any != nil, "any")
	add(spec.Not != nil, "not")
	add(spec.Numeric != nil, "numeric")
	add(spec.Overlaps != nil, "overlaps")
	add(spec.Sequences != "", "sequences")
	add(spec.InCollection != "", "in_collection")
	add(spec.Expr != "", "expr")
	add(spec.Rego != nil, "rego")
	add(spec.Property != nil, "property")
	return set
}
