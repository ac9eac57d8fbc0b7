// Package query translates category rules into the search expression
// understood by the external mail search backend.
package query

import (
	"strings"

	"github.com/inboxkit/kestrel/internal/domain"
)

// orSeparator joins tokens of an OR-logic category. AND is the backend's
// implicit conjunction, so AND tokens join with a plain space.
const orSeparator = " OR "

// Compile converts a category into a single search expression.
//
// A category's free-text query, when present, is returned verbatim and its
// rules are ignored; they remain usable for passive indicator display only.
// Otherwise each rule maps to a backend token; rules whose field/operator
// pair has no backend equivalent are dropped and reported to sink. When
// nothing compiles the result is "", the defined "no equivalent external
// query" sentinel: the caller decides whether to fall back to direct
// evaluation or report that the category cannot be executed remotely.
func Compile(cat *domain.Category, sink domain.DiagnosticSink) string {
	if cat.Query != "" {
		return cat.Query
	}

	tokens := make([]string, 0, len(cat.Rules))
	for _, rule := range cat.Rules {
		token := ruleToken(rule)
		if token == "" {
			sink.Report(domain.Diagnostic{
				Kind:         domain.DiagCompileGap,
				CategoryName: cat.Name,
				Field:        rule.Field,
				Operator:     rule.Operator,
				Reason:       "no search token for field/operator pair",
			})
			continue
		}
		tokens = append(tokens, token)
	}

	if len(tokens) == 0 {
		return ""
	}

	sep := " "
	if cat.Logic == domain.LogicOr {
		sep = orSeparator
	}
	return strings.Join(tokens, sep)
}

// ruleToken maps one rule to a backend search token, or "" when the pair
// has no equivalent. The backend only matches substrings, so every
// substring-shaped text operator collapses to the same token; negated and
// regex text operators have no counterpart and compile to nothing.
func ruleToken(rule domain.Rule) string {
	switch rule.Field {
	case domain.FieldFrom, domain.FieldFromName:
		if textCompilable(rule.Operator) {
			return "from:" + rule.Value
		}
	case domain.FieldTo:
		if textCompilable(rule.Operator) {
			return "to:" + rule.Value
		}
	case domain.FieldSubject:
		if textCompilable(rule.Operator) {
			return "subject:" + rule.Value
		}
	case domain.FieldSnippet:
		if textCompilable(rule.Operator) {
			return `"` + rule.Value + `"`
		}
	case domain.FieldDomain:
		if textCompilable(rule.Operator) {
			return "from:@" + rule.Value
		}
	case domain.FieldHasAttachment:
		return flagToken(rule.Operator, "has:attachment", "-has:attachment")
	case domain.FieldIsUnread:
		return flagToken(rule.Operator, "is:unread", "is:read")
	case domain.FieldIsStarred:
		return flagToken(rule.Operator, "is:starred", "-is:starred")
	case domain.FieldIsImportant:
		return flagToken(rule.Operator, "is:important", "-is:important")
	}
	return ""
}

func textCompilable(op domain.Operator) bool {
	switch op {
	case domain.OpEquals, domain.OpContains, domain.OpStartsWith, domain.OpEndsWith:
		return true
	}
	return false
}

func flagToken(op domain.Operator, positive, negative string) string {
	switch op {
	case domain.OpIsTrue:
		return positive
	case domain.OpIsFalse:
		return negative
	}
	return ""
}
