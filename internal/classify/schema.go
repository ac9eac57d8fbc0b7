// Package classify implements the rule evaluation and category matching
// engine. Everything in this package is fail-closed: a malformed rule
// evaluates to false and is reported to a diagnostic sink, never raised.
package classify

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/inboxkit/kestrel/internal/domain"
)

// FieldKind is the value kind a field resolves to.
type FieldKind int

const (
	// KindText fields resolve to a string read directly from the message.
	KindText FieldKind = iota

	// KindBoolean fields resolve to a flag. An absent flag is treated as
	// explicit false, so isFalse matches a message the extractor could not
	// inspect.
	KindBoolean

	// KindDerivedText fields are computed from a source field at evaluation
	// time rather than read from the message.
	KindDerivedText
)

type fieldSpec struct {
	kind      FieldKind
	operators []domain.Operator

	// source is the field a derived field is computed from.
	source domain.Field
}

var textOperators = []domain.Operator{
	domain.OpEquals, domain.OpNotEquals,
	domain.OpContains, domain.OpNotContains,
	domain.OpStartsWith, domain.OpEndsWith,
	domain.OpRegexMatch,
}

var flagOperators = []domain.Operator{domain.OpIsTrue, domain.OpIsFalse}

// fieldSchema declares, per field, its value kind and legal operator set.
// A field/operator combination outside this table is a configuration error:
// rejected at construction time by ValidateRule, evaluated fail-closed at
// runtime for data persisted in an older shape.
var fieldSchema = map[domain.Field]fieldSpec{
	domain.FieldFrom:     {kind: KindText, operators: textOperators},
	domain.FieldFromName: {kind: KindText, operators: textOperators},
	domain.FieldTo: {kind: KindText, operators: []domain.Operator{
		domain.OpEquals, domain.OpNotEquals,
		domain.OpContains, domain.OpNotContains,
		domain.OpRegexMatch,
	}},
	domain.FieldSubject: {kind: KindText, operators: textOperators},
	domain.FieldSnippet: {kind: KindText, operators: textOperators},
	domain.FieldDomain: {kind: KindDerivedText, source: domain.FieldFrom, operators: []domain.Operator{
		domain.OpEquals, domain.OpNotEquals,
		domain.OpContains, domain.OpNotContains,
		domain.OpEndsWith,
	}},
	domain.FieldHasAttachment: {kind: KindBoolean, operators: flagOperators},
	domain.FieldIsUnread:      {kind: KindBoolean, operators: flagOperators},
	domain.FieldIsStarred:     {kind: KindBoolean, operators: flagOperators},
	domain.FieldIsImportant:   {kind: KindBoolean, operators: flagOperators},
}

// Fields returns every field the schema declares.
func Fields() []domain.Field {
	fields := make([]domain.Field, 0, len(fieldSchema))
	for f := range fieldSchema {
		fields = append(fields, f)
	}
	return fields
}

// KindOf returns the declared value kind for a field.
func KindOf(f domain.Field) (FieldKind, bool) {
	spec, ok := fieldSchema[f]
	return spec.kind, ok
}

// Operators returns the legal operator set for a field.
func Operators(f domain.Field) []domain.Operator {
	return fieldSchema[f].operators
}

func (s fieldSpec) allows(op domain.Operator) bool {
	for _, o := range s.operators {
		if o == op {
			return true
		}
	}
	return false
}

// ValidateRule rejects rules the engine would evaluate fail-closed: unknown
// fields, operators illegal for the field's kind, boolean rules carrying a
// comparison value, and regex rules whose pattern does not compile.
func ValidateRule(r domain.Rule) error {
	spec, ok := fieldSchema[r.Field]
	if !ok {
		return fmt.Errorf("unknown field %q", r.Field)
	}
	if !spec.allows(r.Operator) {
		return fmt.Errorf("operator %q is not legal for field %q", r.Operator, r.Field)
	}
	if spec.kind == KindBoolean && r.Value != "" {
		return fmt.Errorf("field %q takes no comparison value", r.Field)
	}
	if r.Operator == domain.OpRegexMatch {
		if _, err := regexp.Compile("(?i)" + r.Value); err != nil {
			return fmt.Errorf("invalid pattern %q: %w", r.Value, err)
		}
	}
	return nil
}

// ValidateCategory checks a category's structural invariants: a non-empty
// name, a known logic value when rules are present, and well-formed rules.
// The CEL expression, if any, is validated separately by the Engine.
func ValidateCategory(c *domain.Category) error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("category name is required")
	}
	if len(c.Rules) > 0 {
		if c.Logic != domain.LogicAnd && c.Logic != domain.LogicOr {
			return fmt.Errorf("category %q: logic must be %q or %q", c.Name, domain.LogicAnd, domain.LogicOr)
		}
	}
	for i, r := range c.Rules {
		if err := ValidateRule(r); err != nil {
			return fmt.Errorf("category %q rule %d: %w", c.Name, i, err)
		}
	}
	return nil
}
