package classify

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/inboxkit/kestrel/internal/domain"
)

// Engine holds a loaded, ordered category snapshot and the compiled CEL
// programs for expression categories. The rule evaluation itself is the
// stateless code in this package; the engine only adds hot-reloadable
// configuration on top, so Classify is safe to call concurrently with
// Reload.
type Engine struct {
	mu         sync.RWMutex
	env        *cel.Env
	categories []*domain.Category
	programs   map[string]cel.Program
	sink       domain.DiagnosticSink
}

// NewEngine creates an engine with an empty category list.
func NewEngine(sink domain.DiagnosticSink) (*Engine, error) {
	if sink == nil {
		sink = domain.NopSink()
	}

	env, err := cel.NewEnv(
		cel.Variable("from", cel.StringType),
		cel.Variable("from_name", cel.StringType),
		cel.Variable("to", cel.StringType),
		cel.Variable("subject", cel.StringType),
		cel.Variable("snippet", cel.StringType),
		cel.Variable("domain", cel.StringType),
		cel.Variable("has_attachment", cel.BoolType),
		cel.Variable("is_unread", cel.BoolType),
		cel.Variable("is_starred", cel.BoolType),
		cel.Variable("is_important", cel.BoolType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:      env,
		programs: make(map[string]cel.Program),
		sink:     sink,
	}, nil
}

// ValidateExpression compiles an expression without loading it.
func (e *Engine) ValidateExpression(expr string) error {
	_, err := e.compile(expr)
	return err
}

// LoadCategories replaces the loaded snapshot with cats, preserving their
// order, and compiles every expression category. Disabled categories are
// dropped. On a compile error nothing is replaced, so the previous snapshot
// keeps serving.
func (e *Engine) LoadCategories(cats []*domain.Category) error {
	programs := make(map[string]cel.Program)
	loaded := make([]*domain.Category, 0, len(cats))

	for _, cat := range cats {
		if !cat.Enabled {
			continue
		}
		if len(cat.Rules) == 0 && cat.Expression != "" {
			prg, err := e.compile(cat.Expression)
			if err != nil {
				return fmt.Errorf("category %q: %w", cat.Name, err)
			}
			programs[cat.ID] = prg
		}
		loaded = append(loaded, cat)
	}

	e.mu.Lock()
	e.categories = loaded
	e.programs = programs
	e.mu.Unlock()

	return nil
}

// Classify returns the highest-priority category matching msg, or nil.
// Rule categories match through MatchesCategory; expression categories
// through their compiled CEL program. Categories with neither are skipped.
func (e *Engine) Classify(msg *domain.Message) *domain.Category {
	e.mu.RLock()
	cats := e.categories
	programs := e.programs
	e.mu.RUnlock()

	var activation map[string]any

	for _, cat := range cats {
		switch {
		case len(cat.Rules) > 0:
			if MatchesCategory(msg, cat, e.sink) {
				return cat
			}
		case cat.Expression != "":
			if activation == nil {
				activation = celActivation(msg)
			}
			if e.evalProgram(programs[cat.ID], cat, activation) {
				return cat
			}
		}
	}
	return nil
}

// Categories returns the loaded snapshot in priority order.
func (e *Engine) Categories() []*domain.Category {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.categories
}

// Count returns the number of loaded categories.
func (e *Engine) Count() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.categories)
}

func (e *Engine) compile(expr string) (cel.Program, error) {
	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile expression: %w", issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("expression must return bool, got %s", ast.OutputType())
	}
	return e.env.Program(ast)
}

func (e *Engine) evalProgram(prg cel.Program, cat *domain.Category, activation map[string]any) bool {
	if prg == nil {
		return false
	}
	out, _, err := prg.Eval(activation)
	if err != nil {
		e.sink.Report(domain.Diagnostic{
			Kind:         domain.DiagMalformedRule,
			CategoryName: cat.Name,
			Reason:       fmt.Sprintf("expression evaluation: %v", err),
		})
		return false
	}
	b, ok := out.(types.Bool)
	return ok && bool(b)
}

// celActivation flattens a message into CEL variables. Absent text fields
// become the empty string and absent flags false, consistent with the
// unknown-as-false policy for flags.
func celActivation(msg *domain.Message) map[string]any {
	text := func(p *string) string {
		if p == nil {
			return ""
		}
		return *p
	}
	flag := func(p *bool) bool {
		return p != nil && *p
	}

	dom := ""
	if v, ok := resolve(msg, domain.FieldDomain); ok {
		dom, _ = v.(string)
	}

	return map[string]any{
		"from":           text(msg.From),
		"from_name":      text(msg.FromName),
		"to":             text(msg.To),
		"subject":        text(msg.Subject),
		"snippet":        text(msg.Snippet),
		"domain":         dom,
		"has_attachment": flag(msg.HasAttachment),
		"is_unread":      flag(msg.IsUnread),
		"is_starred":     flag(msg.IsStarred),
		"is_important":   flag(msg.IsImportant),
	}
}
