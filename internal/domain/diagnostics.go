package domain

import "log/slog"

// Diagnostic describes a non-fatal engine event: a malformed rule that was
// evaluated fail-closed, or a rule that could not be compiled to a search
// token. These are reported, never raised; the worst outcome of any of them
// is "no category matched" or "no query produced".
type Diagnostic struct {
	Kind         DiagnosticKind `json:"kind"`
	CategoryName string         `json:"categoryName,omitempty"`
	Field        Field          `json:"field,omitempty"`
	Operator     Operator       `json:"operator,omitempty"`
	Reason       string         `json:"reason"`
}

// DiagnosticKind classifies a diagnostic event.
type DiagnosticKind string

const (
	// DiagMalformedRule marks a rule or category evaluated as false because
	// its shape is invalid: unknown field, unregistered operator, an operator
	// illegal for the field's kind, or an unrecognized category logic value.
	DiagMalformedRule DiagnosticKind = "malformed_rule"

	// DiagBadPattern marks a regexMatch rule whose pattern does not compile.
	DiagBadPattern DiagnosticKind = "bad_pattern"

	// DiagCompileGap marks a rule dropped during query compilation because
	// its field/operator pair has no search-backend equivalent.
	DiagCompileGap DiagnosticKind = "compile_gap"
)

// DiagnosticSink receives engine diagnostics for external logging.
// Implementations must be safe for concurrent use and must not block.
type DiagnosticSink interface {
	Report(d Diagnostic)
}

type slogSink struct{}

func (slogSink) Report(d Diagnostic) {
	slog.Warn("engine diagnostic",
		"kind", string(d.Kind),
		"category", d.CategoryName,
		"field", string(d.Field),
		"operator", string(d.Operator),
		"reason", d.Reason,
	)
}

// LogSink returns a sink that reports diagnostics through slog.
func LogSink() DiagnosticSink { return slogSink{} }

type nopSink struct{}

func (nopSink) Report(Diagnostic) {}

// NopSink returns a sink that discards diagnostics.
func NopSink() DiagnosticSink { return nopSink{} }
