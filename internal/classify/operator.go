package classify

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/inboxkit/kestrel/internal/domain"
)

// knownOperator reports whether op is registered at all, regardless of
// which fields it is legal on.
func knownOperator(op domain.Operator) bool {
	switch op {
	case domain.OpEquals, domain.OpNotEquals,
		domain.OpContains, domain.OpNotContains,
		domain.OpStartsWith, domain.OpEndsWith,
		domain.OpRegexMatch,
		domain.OpGreaterThan, domain.OpLessThan,
		domain.OpIsTrue, domain.OpIsFalse:
		return true
	}
	return false
}

// applyOperator applies one operator to a resolved field value and the
// rule's comparison value. Pure and total: every input maps to a boolean,
// and failures (bad pattern, non-numeric operand) map to false.
//
// String comparisons are case-insensitive throughout, matching the search
// backend's behavior so a rule and its compiled query agree on what matches.
func applyOperator(op domain.Operator, value any, target string) bool {
	switch op {
	case domain.OpEquals:
		return strings.EqualFold(stringValue(value), target)
	case domain.OpNotEquals:
		return !strings.EqualFold(stringValue(value), target)
	case domain.OpContains:
		return strings.Contains(foldValue(value), strings.ToLower(target))
	case domain.OpNotContains:
		return !strings.Contains(foldValue(value), strings.ToLower(target))
	case domain.OpStartsWith:
		return strings.HasPrefix(foldValue(value), strings.ToLower(target))
	case domain.OpEndsWith:
		return strings.HasSuffix(foldValue(value), strings.ToLower(target))
	case domain.OpRegexMatch:
		re, err := regexp.Compile("(?i)" + target)
		if err != nil {
			// Fail closed: a malformed pattern excludes everything rather
			// than crashing classification.
			return false
		}
		return re.MatchString(stringValue(value))
	case domain.OpGreaterThan:
		a, aok := numberValue(value)
		b, bok := numberValue(target)
		return aok && bok && a > b
	case domain.OpLessThan:
		a, aok := numberValue(value)
		b, bok := numberValue(target)
		return aok && bok && a < b
	case domain.OpIsTrue:
		b, ok := value.(bool)
		return ok && b
	case domain.OpIsFalse:
		b, ok := value.(bool)
		return ok && !b
	}
	return false
}

func stringValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case bool:
		if x {
			return "true"
		}
		return "false"
	}
	return ""
}

func foldValue(v any) string {
	return strings.ToLower(stringValue(v))
}

func numberValue(v any) (float64, bool) {
	switch x := v.(type) {
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return n, err == nil
	case float64:
		return x, true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}
