package condition

import (
	"fmt"
	"strconv"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/trackforge/trackforge/pkg/errdefs"
)

// CompareOp is a comparison operator used by numeric and property leaves.
type CompareOp string

const (
	CmpEq CompareOp = "="
	CmpNe CompareOp = "!="
	CmpLt CompareOp = "<"
	CmpLe CompareOp = "<="
	CmpGt CompareOp = ">"
	CmpGe CompareOp = ">="
	// CmpIn tests membership: an inclusive numeric range for numeric leaves,
	// a comma-separated token list for property leaves.
	CmpIn CompareOp = "in"
)

// ParseCompareOp accepts symbolic and word forms of the comparison operators.
func ParseCompareOp(s string) (CompareOp, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "=", "==", "eq":
		return CmpEq, nil
	case "!=", "<>", "ne":
		return CmpNe, nil
	case "<", "lt":
		return CmpLt, nil
	case "<=", "le":
		return CmpLe, nil
	case ">", "gt":
		return CmpGt, nil
	case ">=", "ge":
		return CmpGe, nil
	case "in", "between":
		return CmpIn, nil
	default:
		return "", errdefs.NewConfigurationError(fmt.Sprintf("unknown comparison operator %q", s), nil).
			WithCode(errdefs.CodeUnknownOperator)
	}
}

func (op CompareOp) compareFloat(a, b, b2 float64) bool {
	switch op {
	case CmpEq:
		return a == b
	case CmpNe:
		return a != b
	case CmpLt:
		return a < b
	case CmpLe:
		return a <= b
	case CmpGt:
		return a > b
	case CmpGe:
		return a >= b
	case CmpIn:
		lo, hi := b, b2
		if lo > hi {
			lo, hi = hi, lo
		}
		return a >= lo && a <= hi
	}
	return false
}

func (op CompareOp) compareText(a, b string) bool {
	switch op {
	case CmpEq:
		return a == b
	case CmpNe:
		return a != b
	case CmpLt:
		return a < b
	case CmpLe:
		return a <= b
	case CmpGt:
		return a > b
	case CmpGe:
		return a >= b
	case CmpIn:
		return tokenSet(b).Contains(a)
	}
	return false
}

func tokenSet(list string) mapset.Set[string] {
	set := mapset.NewThreadUnsafeSet[string]()
	for _, tok := range strings.Split(list, ",") {
		if tok = strings.TrimSpace(tok); tok != "" {
			set.Add(tok)
		}
	}
	return set
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
