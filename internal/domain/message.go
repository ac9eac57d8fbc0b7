// Package domain defines the core types and interfaces for Kestrel.
package domain

// Field identifies one attribute of a message that rules can test.
type Field string

const (
	FieldFrom          Field = "from"
	FieldFromName      Field = "fromName"
	FieldTo            Field = "to"
	FieldSubject       Field = "subject"
	FieldSnippet       Field = "snippet"
	FieldDomain        Field = "domain"
	FieldHasAttachment Field = "hasAttachment"
	FieldIsUnread      Field = "isUnread"
	FieldIsStarred     Field = "isStarred"
	FieldIsImportant   Field = "isImportant"
)

// Message is the structural input to classification: a snapshot of one
// inbound mail item as produced by an extractor. Nil pointers mean the
// extractor could not resolve the field; the engine treats those as absent
// rather than empty. A Message is immutable for the duration of one
// classification call and the engine holds no reference to it afterwards.
//
// The "domain" field never appears here. It is derived from From at
// evaluation time.
type Message struct {
	// ID is an opaque message identifier assigned by the caller.
	ID string `json:"id,omitempty"`

	From     *string `json:"from,omitempty"`
	FromName *string `json:"fromName,omitempty"`
	To       *string `json:"to,omitempty"`
	Subject  *string `json:"subject,omitempty"`
	Snippet  *string `json:"snippet,omitempty"`

	HasAttachment *bool `json:"hasAttachment,omitempty"`
	IsUnread      *bool `json:"isUnread,omitempty"`
	IsStarred     *bool `json:"isStarred,omitempty"`
	IsImportant   *bool `json:"isImportant,omitempty"`
}

// String returns a Message text field pointer for literal values.
// Convenience for building messages in callers and tests.
func String(s string) *string { return &s }

// Bool returns a Message flag pointer for literal values.
func Bool(b bool) *bool { return &b }
