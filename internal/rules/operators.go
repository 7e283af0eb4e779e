// internal/rules/operators.go
package rules

import (
	"strconv"
	"strings"

	"github.com/quillform/quillform/internal/types"
)

/*
 * Leaf operator comparison logic.
 *
 * Implements 12 comparison operators over the raw stored response string.
 * Responses are type-erased strings; comparands keep the JSON type they were
 * authored with, and each operator decides how much type mixing it accepts:
 *
 *   - equals/not_equals: identity comparison, string comparands only.
 *     A numeric comparand never equals a stored string, so not_equals of a
 *     numeric comparand is always true for an answered question.
 *   - contains/not_contains: substring test, string comparands only.
 *   - greater_than/less_than/greater_equal/less_equal: both sides must be
 *     numeric strings; anything non-numeric makes the condition false.
 *   - in/not_in: membership against a list comparand with loose scalar
 *     equality (numeric list entries compare numerically against the
 *     stored string).
 *   - empty/not_empty: blankness of the stored value; "" and "0" are blank.
 *   - unknown operator: false.
 *
 * Why function-based: a switch over 12 operators is cleaner than 12
 * single-method implementations with minimal behavior variation.
 */

// compareLeaf applies the leaf's operator to the stored response value.
func compareLeaf(leaf *types.LeafCondition, stored string) bool {
	switch leaf.Operator {
	case types.OpEquals:
		return compareEqual(stored, leaf.Value)
	case types.OpNotEquals:
		return !compareEqual(stored, leaf.Value)
	case types.OpContains:
		return compareContains(stored, leaf.Value)
	case types.OpNotContains:
		if _, ok := leaf.Value.(string); !ok {
			return false
		}
		return !compareContains(stored, leaf.Value)
	case types.OpGreaterThan:
		cmp, ok := compareNumeric(stored, leaf.Value)
		return ok && cmp > 0
	case types.OpLessThan:
		cmp, ok := compareNumeric(stored, leaf.Value)
		return ok && cmp < 0
	case types.OpGreaterEqual:
		cmp, ok := compareNumeric(stored, leaf.Value)
		return ok && cmp >= 0
	case types.OpLessEqual:
		cmp, ok := compareNumeric(stored, leaf.Value)
		return ok && cmp <= 0
	case types.OpIn:
		return leaf.HasList && compareIn(stored, leaf.Values)
	case types.OpNotIn:
		return leaf.HasList && !compareIn(stored, leaf.Values)
	case types.OpEmpty:
		return isBlank(stored)
	case types.OpNotEmpty:
		return !isBlank(stored)
	default:
		return false
	}
}

// compareEqual performs identity comparison against a string comparand.
// Non-string comparands never equal a stored string value.
func compareEqual(stored string, comparand any) bool {
	s, ok := comparand.(string)
	return ok && stored == s
}

// compareContains performs a substring test with a string comparand.
func compareContains(stored string, comparand any) bool {
	s, ok := comparand.(string)
	return ok && strings.Contains(stored, s)
}

// compareNumeric performs three-way numeric comparison of the stored value
// against the comparand. Both sides must be numeric; the bool result is
// false when either side is not.
func compareNumeric(stored string, comparand any) (int, bool) {
	a, ok := parseNumeric(stored)
	if !ok {
		return 0, false
	}

	var b float64
	switch v := comparand.(type) {
	case float64:
		b = v
	case string:
		var ok bool
		b, ok = parseNumeric(v)
		if !ok {
			return 0, false
		}
	default:
		return 0, false
	}

	switch {
	case a < b:
		return -1, true
	case a > b:
		return 1, true
	default:
		return 0, true
	}
}

// compareIn tests membership of the stored value in a list comparand using
// loose scalar equality.
func compareIn(stored string, values []any) bool {
	for _, elem := range values {
		if looseEqual(stored, elem) {
			return true
		}
	}
	return false
}

// looseEqual compares the stored string against a scalar list element.
// Numeric elements compare numerically ("25" matches 25), boolean elements
// compare by blankness, nil matches only the empty string.
func looseEqual(stored string, elem any) bool {
	switch v := elem.(type) {
	case string:
		return stored == v
	case float64:
		n, ok := parseNumeric(stored)
		return ok && n == v
	case bool:
		if v {
			return !isBlank(stored)
		}
		return isBlank(stored)
	case nil:
		return stored == ""
	default:
		return false
	}
}

// parseNumeric reports whether s is a numeric string and its value.
// Surrounding whitespace is tolerated; whitespace-only strings are not
// numbers.
func parseNumeric(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// isBlank reports whether a stored value counts as empty: the empty string
// and the zero-like "0" are blank, everything else is not.
func isBlank(s string) bool {
	return s == "" || s == "0"
}
