// Package condition resolves condition field values and applies comparison
// operators, combining per-condition verdicts with the rule's flat AND/OR
// logic.
package condition

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/Csepi/cal3-sub006/internal/rule"
)

// apply evaluates a single operator against the resolved actual value and the
// stored expected value. Both sides are strings; numeric and boolean
// operators coerce here.
func apply(op rule.Operator, actual, expected string) (bool, error) {
	switch op {
	case rule.OpContains:
		return strings.Contains(lower(actual), lower(expected)), nil
	case rule.OpNotContains:
		return !strings.Contains(lower(actual), lower(expected)), nil
	case rule.OpEquals:
		return strings.EqualFold(strings.TrimSpace(actual), strings.TrimSpace(expected)), nil
	case rule.OpNotEquals:
		return !strings.EqualFold(strings.TrimSpace(actual), strings.TrimSpace(expected)), nil
	case rule.OpStartsWith:
		return strings.HasPrefix(lower(actual), lower(expected)), nil
	case rule.OpEndsWith:
		return strings.HasSuffix(lower(actual), lower(expected)), nil
	case rule.OpMatches:
		re, err := regexp.Compile(expected)
		if err != nil {
			return false, fmt.Errorf("invalid regex %q: %w", expected, err)
		}
		return re.MatchString(actual), nil
	case rule.OpGreaterThan, rule.OpGreaterThanOrEqual, rule.OpLessThan, rule.OpLessThanOrEqual:
		return numericCompare(op, actual, expected)
	case rule.OpIsTrue:
		return truthy(actual), nil
	case rule.OpIsFalse:
		return !truthy(actual), nil
	case rule.OpIsEmpty:
		return strings.TrimSpace(actual) == "", nil
	case rule.OpIsNotEmpty:
		return strings.TrimSpace(actual) != "", nil
	case rule.OpIn:
		return inList(actual, expected), nil
	case rule.OpNotIn:
		return !inList(actual, expected), nil
	default:
		return false, fmt.Errorf("unknown operator %q", op)
	}
}

func lower(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func numericCompare(op rule.Operator, actual, expected string) (bool, error) {
	a, err := strconv.ParseFloat(strings.TrimSpace(actual), 64)
	if err != nil {
		return false, fmt.Errorf("operator %s requires a numeric value, got %q", op, actual)
	}
	e, err := strconv.ParseFloat(strings.TrimSpace(expected), 64)
	if err != nil {
		return false, fmt.Errorf("operator %s requires a numeric comparison value, got %q", op, expected)
	}
	switch op {
	case rule.OpGreaterThan:
		return a > e, nil
	case rule.OpGreaterThanOrEqual:
		return a >= e, nil
	case rule.OpLessThan:
		return a < e, nil
	case rule.OpLessThanOrEqual:
		return a <= e, nil
	}
	return false, nil
}

// truthy follows loose coercion: empty, "false", "0" and "no" are false,
// everything else is true.
func truthy(s string) bool {
	switch lower(s) {
	case "", "false", "0", "no", "off":
		return false
	}
	return true
}

// inList does a comma-split, trimmed, case-insensitive membership test.
func inList(actual, expected string) bool {
	needle := lower(actual)
	for _, item := range strings.Split(expected, ",") {
		if lower(item) == needle {
			return true
		}
	}
	return false
}
