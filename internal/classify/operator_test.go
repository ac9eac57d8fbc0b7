package classify

import (
	"testing"

	"github.com/inboxkit/kestrel/internal/domain"
)

func TestTextOperators(t *testing.T) {
	tests := []struct {
		name   string
		op     domain.Operator
		value  any
		target string
		want   bool
	}{
		{"equals ignores case", domain.OpEquals, "Boss@Acme.com", "boss@acme.com", true},
		{"equals mismatch", domain.OpEquals, "intern@acme.com", "boss@acme.com", false},
		{"contains ignores case", domain.OpContains, "Quarterly Report", "report", true},
		{"contains mismatch", domain.OpContains, "Quarterly Report", "invoice", false},
		{"startsWith", domain.OpStartsWith, "RE: hello", "re:", true},
		{"startsWith mismatch", domain.OpStartsWith, "hello RE:", "re:", false},
		{"endsWith", domain.OpEndsWith, "user@example.com", "Example.COM", true},
		{"endsWith mismatch", domain.OpEndsWith, "user@example.org", "example.com", false},
		{"regex match", domain.OpRegexMatch, "order #1234", `#\d+`, true},
		{"regex case-insensitive", domain.OpRegexMatch, "URGENT notice", "urgent", true},
		{"regex no match", domain.OpRegexMatch, "hello", `#\d+`, false},
		{"invalid regex fails closed", domain.OpRegexMatch, "anything", "([", false},
		{"greaterThan", domain.OpGreaterThan, "10", "5", true},
		{"greaterThan equal", domain.OpGreaterThan, "5", "5", false},
		{"greaterThan non-numeric", domain.OpGreaterThan, "abc", "5", false},
		{"lessThan", domain.OpLessThan, "3", "5", true},
		{"lessThan non-numeric target", domain.OpLessThan, "3", "xyz", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := applyOperator(tt.op, tt.value, tt.target); got != tt.want {
				t.Errorf("applyOperator(%s, %v, %q) = %v, want %v", tt.op, tt.value, tt.target, got, tt.want)
			}
		})
	}
}

// notEquals and notContains must be exact logical negations of their
// positive counterparts on any present value.
func TestNegationOperatorsAreComplements(t *testing.T) {
	pairs := [][2]string{
		{"boss@acme.com", "boss@acme.com"},
		{"boss@acme.com", "intern"},
		{"", ""},
		{"", "x"},
		{"Mixed Case", "mixed case"},
	}

	for _, p := range pairs {
		eq := applyOperator(domain.OpEquals, p[0], p[1])
		ne := applyOperator(domain.OpNotEquals, p[0], p[1])
		if eq == ne {
			t.Errorf("equals/notEquals not complementary for (%q, %q)", p[0], p[1])
		}

		co := applyOperator(domain.OpContains, p[0], p[1])
		nc := applyOperator(domain.OpNotContains, p[0], p[1])
		if co == nc {
			t.Errorf("contains/notContains not complementary for (%q, %q)", p[0], p[1])
		}
	}
}

func TestFlagOperators(t *testing.T) {
	if !applyOperator(domain.OpIsTrue, true, "") {
		t.Error("isTrue should match true")
	}
	if applyOperator(domain.OpIsTrue, false, "") {
		t.Error("isTrue should not match false")
	}
	if applyOperator(domain.OpIsTrue, "true", "") {
		t.Error("isTrue should not match a non-boolean value")
	}
	if !applyOperator(domain.OpIsFalse, false, "") {
		t.Error("isFalse should match false")
	}
	if applyOperator(domain.OpIsFalse, true, "") {
		t.Error("isFalse should not match true")
	}
}

func TestUnknownOperatorFailsClosed(t *testing.T) {
	if applyOperator(domain.Operator("between"), "x", "y") {
		t.Error("unknown operator should evaluate false")
	}
}
