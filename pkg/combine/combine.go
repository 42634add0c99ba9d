// Package combine implements the value-combination policy used by operations
// that merge a scalar or typed value into an existing one.
//
// Numbers combine arithmetically, booleans logically, and text is treated as
// a list of tokens that can be added or removed. An empty argument leaves the
// old value unchanged.
package combine

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/trackforge/trackforge/pkg/errdefs"
)

// Method selects how an argument is merged into an old value.
type Method string

const (
	Set      Method = "set"
	Increase Method = "increase"
	Decrease Method = "decrease"
	Multiply Method = "multiply"
	Divide   Method = "divide"
)

// Methods lists every supported method.
var Methods = []Method{Set, Increase, Decrease, Multiply, Divide}

// ParseMethod parses a method name, accepting a few common aliases.
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "set", "replace", "=":
		return Set, nil
	case "increase", "add", "+":
		return Increase, nil
	case "decrease", "subtract", "-":
		return Decrease, nil
	case "multiply", "*":
		return Multiply, nil
	case "divide", "/":
		return Divide, nil
	default:
		return "", errdefs.NewConfigurationError(fmt.Sprintf("unknown combination method %q", s), nil).
			WithCode(errdefs.CodeInvalidParameter)
	}
}

// Float combines two numbers.
func Float(m Method, old, arg float64) (float64, error) {
	switch m {
	case Set:
		return arg, nil
	case Increase:
		return old + arg, nil
	case Decrease:
		return old - arg, nil
	case Multiply:
		return old * arg, nil
	case Divide:
		if arg == 0 {
			return 0, errdefs.NewComputationError(fmt.Sprintf("division by zero (%g / 0)", old), nil).
				WithCode(errdefs.CodeDivisionByZero)
		}
		return old / arg, nil
	default:
		return 0, unknownMethod(m)
	}
}

// Value combines an argument into an old value of any supported type.
//
//   - empty argument (nil, "", empty list): old is returned unchanged
//   - set: the argument is returned as is
//   - boolean argument: increase is OR, divide is NAND, decrease is AND NOT,
//     multiply is AND; an absent old value counts as false
//   - numeric argument and numeric (or absent) old value: arithmetic
//   - anything else: token list semantics, increase/multiply add the
//     argument's tokens, decrease/divide remove them
func Value(m Method, old, arg any) (any, error) {
	if isEmpty(arg) {
		return old, nil
	}
	if m == Set {
		return arg, nil
	}

	if b, ok := arg.(bool); ok {
		return combineBool(m, old, b)
	}

	if a, ok := asNumber(arg); ok {
		if old == nil {
			return Float(m, 0, a)
		}
		if o, ok := asNumber(old); ok {
			return Float(m, o, a)
		}
	}

	return combineTokens(m, old, arg)
}

func combineBool(m Method, old any, arg bool) (any, error) {
	var o bool
	switch t := old.(type) {
	case nil:
	case bool:
		o = t
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(t))
		if err != nil {
			return nil, errdefs.NewComputationError(fmt.Sprintf("cannot combine boolean with %q", t), err).
				WithCode(errdefs.CodeMalformedNumber)
		}
		o = parsed
	default:
		return nil, errdefs.NewComputationError(fmt.Sprintf("cannot combine boolean with %T", old), nil).
			WithCode(errdefs.CodeMalformedNumber)
	}

	switch m {
	case Increase:
		return o || arg, nil
	case Divide:
		return !(o && arg), nil
	case Decrease:
		return o && !arg, nil
	case Multiply:
		return o && arg, nil
	default:
		return nil, unknownMethod(m)
	}
}

func combineTokens(m Method, old, arg any) (any, error) {
	current := tokens(old)
	delta := tokens(arg)

	var out []string
	switch m {
	case Increase, Multiply:
		seen := mapset.NewThreadUnsafeSet(current...)
		out = append(out, current...)
		for _, tok := range delta {
			if seen.Add(tok) {
				out = append(out, tok)
			}
		}
	case Decrease, Divide:
		drop := mapset.NewThreadUnsafeSet(delta...)
		for _, tok := range current {
			if !drop.Contains(tok) {
				out = append(out, tok)
			}
		}
	default:
		return nil, unknownMethod(m)
	}

	if isList(old) || (old == nil && isList(arg)) {
		if out == nil {
			out = []string{}
		}
		return out, nil
	}
	return strings.Join(out, ","), nil
}

func isList(v any) bool {
	switch v.(type) {
	case []string, []any:
		return true
	default:
		return false
	}
}

func tokens(v any) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		var out []string
		for _, tok := range strings.Split(t, ",") {
			if tok = strings.TrimSpace(tok); tok != "" {
				out = append(out, tok)
			}
		}
		return out
	case []string:
		return append([]string(nil), t...)
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			out = append(out, fmt.Sprint(e))
		}
		return out
	case float64:
		return []string{strconv.FormatFloat(t, 'g', -1, 64)}
	default:
		return []string{fmt.Sprint(t)}
	}
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []string:
		return len(t) == 0
	case []any:
		return len(t) == 0
	default:
		return false
	}
}

func asNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, !math.IsNaN(t)
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	default:
		return 0, false
	}
}

func unknownMethod(m Method) error {
	return errdefs.NewConsistencyError(fmt.Sprintf("unknown combination method %q", m), nil).
		WithCode(errdefs.CodeUnknownOperator)
}
