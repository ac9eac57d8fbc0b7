package domain

import "time"

// Operator identifies a predicate applied between a message field value and
// a rule's comparison value.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "notEquals"
	OpContains    Operator = "contains"
	OpNotContains Operator = "notContains"
	OpStartsWith  Operator = "startsWith"
	OpEndsWith    Operator = "endsWith"
	OpRegexMatch  Operator = "regexMatch"
	OpGreaterThan Operator = "greaterThan"
	OpLessThan    Operator = "lessThan"
	OpIsTrue      Operator = "isTrue"
	OpIsFalse     Operator = "isFalse"
)

// Logic is the combinator applied across a category's rules.
type Logic string

const (
	LogicAnd Logic = "and"
	LogicOr  Logic = "or"
)

// Rule is a single field/operator/value predicate.
//
// Value is the comparison operand for binary operators. Unary operators
// (isTrue, isFalse) carry the comparison themselves; boolean-field rules
// must leave Value empty. Numeric comparisons coerce Value at evaluation
// time.
type Rule struct {
	Field    Field    `json:"field"`
	Operator Operator `json:"operator"`
	Value    string   `json:"value,omitempty"`
}

// Category is a named, prioritized classification bucket.
//
// A category matches a message through its Rules (combined under Logic) or,
// when it has no rules, through its optional CEL Expression. Query is a raw
// search expression for the external search backend; when present it is used
// verbatim by the query compiler and never participates in classification.
// A category with no rules and no expression is a pure navigation shortcut
// and is skipped by the matcher.
type Category struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`

	Rules []Rule `json:"rules,omitempty"`
	Logic Logic  `json:"logic,omitempty"`

	// Query is the free-text search expression, used verbatim when compiling.
	Query string `json:"query,omitempty"`

	// Expression is an optional CEL expression evaluated against the message.
	Expression string `json:"expression,omitempty"`

	// Position encodes matching priority; lowest position wins.
	Position int  `json:"position"`
	Enabled  bool `json:"enabled"`

	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// Matchable reports whether the category can ever match a message.
func (c *Category) Matchable() bool {
	return len(c.Rules) > 0 || c.Expression != ""
}

// Classification is the persisted outcome of one classify call.
type Classification struct {
	ID        string    `json:"id"`
	AccountID string    `json:"accountId"`
	MessageID string    `json:"messageId"`
	Matched   bool      `json:"matched"`
	// CategoryID and the display fields are empty when no category matched.
	CategoryID   string    `json:"categoryId,omitempty"`
	CategoryName string    `json:"categoryName,omitempty"`
	Color        string    `json:"color,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	ProcessMs    int64     `json:"processMs"`
}

// CategoryMatches is a per-category match count, used for stats reporting.
type CategoryMatches struct {
	CategoryID   string `json:"categoryId"`
	CategoryName string `json:"categoryName"`
	Matches      int64  `json:"matches"`
}
