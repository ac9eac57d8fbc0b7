package classify

import (
	"regexp"
	"strings"

	"github.com/inboxkit/kestrel/internal/domain"
)

// resolve returns the effective value of a field on a message and whether
// the field is present. Derived fields are computed here; the domain field
// is the text after the first "@" in the sender address, or the empty
// string when the address carries no "@". A missing or empty sender leaves
// the domain absent.
func resolve(msg *domain.Message, f domain.Field) (any, bool) {
	switch f {
	case domain.FieldFrom:
		return textField(msg.From)
	case domain.FieldFromName:
		return textField(msg.FromName)
	case domain.FieldTo:
		return textField(msg.To)
	case domain.FieldSubject:
		return textField(msg.Subject)
	case domain.FieldSnippet:
		return textField(msg.Snippet)
	case domain.FieldDomain:
		if msg.From == nil || *msg.From == "" {
			return nil, false
		}
		if i := strings.Index(*msg.From, "@"); i >= 0 {
			return (*msg.From)[i+1:], true
		}
		return "", true
	case domain.FieldHasAttachment:
		return flagField(msg.HasAttachment)
	case domain.FieldIsUnread:
		return flagField(msg.IsUnread)
	case domain.FieldIsStarred:
		return flagField(msg.IsStarred)
	case domain.FieldIsImportant:
		return flagField(msg.IsImportant)
	}
	return nil, false
}

func textField(p *string) (any, bool) {
	if p == nil {
		return nil, false
	}
	return *p, true
}

func flagField(p *bool) (any, bool) {
	if p == nil {
		return nil, false
	}
	return *p, true
}

// EvaluateRule evaluates one rule against one message.
//
// An absent field never matches, whatever the operator: missing data cannot
// assert a negative claim, so notEquals and notContains are false too. The
// one exception is boolean fields, where absence resolves to explicit false
// before the operator runs; isFalse therefore matches a message whose flag
// the extractor could not determine, and isTrue does not.
//
// Malformed rules (unknown field, unregistered operator, operator illegal
// for the field) evaluate to false and are reported to sink. EvaluateRule
// never panics.
func EvaluateRule(msg *domain.Message, rule domain.Rule, sink domain.DiagnosticSink) bool {
	spec, ok := fieldSchema[rule.Field]
	if !ok {
		sink.Report(domain.Diagnostic{
			Kind:     domain.DiagMalformedRule,
			Field:    rule.Field,
			Operator: rule.Operator,
			Reason:   "unknown field",
		})
		return false
	}

	if !knownOperator(rule.Operator) {
		sink.Report(domain.Diagnostic{
			Kind:     domain.DiagMalformedRule,
			Field:    rule.Field,
			Operator: rule.Operator,
			Reason:   "unregistered operator",
		})
		return false
	}

	value, present := resolve(msg, rule.Field)
	if spec.kind == KindBoolean && !present {
		// Unknown flag state counts as false.
		value, present = false, true
	}
	if !present {
		return false
	}

	if !spec.allows(rule.Operator) {
		sink.Report(domain.Diagnostic{
			Kind:     domain.DiagMalformedRule,
			Field:    rule.Field,
			Operator: rule.Operator,
			Reason:   "operator not legal for field",
		})
		return false
	}

	// regexMatch compiles here so a pattern that does not compile is
	// reported, not just evaluated fail-closed. ValidateRule rejects bad
	// patterns on new writes; this path covers persisted legacy rules.
	if rule.Operator == domain.OpRegexMatch {
		re, err := regexp.Compile("(?i)" + rule.Value)
		if err != nil {
			sink.Report(domain.Diagnostic{
				Kind:     domain.DiagBadPattern,
				Field:    rule.Field,
				Operator: rule.Operator,
				Reason:   "pattern does not compile: " + err.Error(),
			})
			return false
		}
		return re.MatchString(stringValue(value))
	}

	return applyOperator(rule.Operator, value, rule.Value)
}

// MatchesCategory reports whether a message satisfies a category's rule
// list under its AND/OR logic. Every rule is evaluated; there is no
// short-circuit, so diagnostics surface for all malformed rules, not just
// those before the first decisive one. A category without rules never
// matches here.
func MatchesCategory(msg *domain.Message, cat *domain.Category, sink domain.DiagnosticSink) bool {
	if len(cat.Rules) == 0 {
		return false
	}

	results := make([]bool, len(cat.Rules))
	for i, rule := range cat.Rules {
		results[i] = EvaluateRule(msg, rule, sink)
	}

	switch cat.Logic {
	case domain.LogicAnd:
		for _, r := range results {
			if !r {
				return false
			}
		}
		return true
	case domain.LogicOr, "":
		// OR is the default combinator for persisted categories that
		// predate the explicit logic field.
		for _, r := range results {
			if r {
				return true
			}
		}
		return false
	}

	// Any other persisted logic value fails closed.
	sink.Report(domain.Diagnostic{
		Kind:         domain.DiagMalformedRule,
		CategoryName: cat.Name,
		Reason:       "unknown logic " + string(cat.Logic),
	})
	return false
}

// MatchCategory scans categories in priority order and returns the first
// whose rules match the message, or nil when none do. Order is the sole
// priority mechanism. Categories without rules are skipped; expression
// categories are handled by Engine.Classify, which layers CEL matching on
// top of this scan.
func MatchCategory(msg *domain.Message, cats []*domain.Category, sink domain.DiagnosticSink) *domain.Category {
	for _, cat := range cats {
		if MatchesCategory(msg, cat, sink) {
			return cat
		}
	}
	return nil
}
