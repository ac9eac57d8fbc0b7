package classify

import (
	"context"
	"fmt"
	"sync"

	"github.com/inboxkit/kestrel/internal/domain"
)

// Registry hands out one Engine per account, loading its categories from
// the repository on first use. Reload refreshes a single account after
// its categories change.
type Registry struct {
	mu      sync.Mutex
	repo    domain.Repository
	sink    domain.DiagnosticSink
	engines map[string]*Engine
}

// NewRegistry creates an engine registry backed by repo.
func NewRegistry(repo domain.Repository, sink domain.DiagnosticSink) *Registry {
	if sink == nil {
		sink = domain.NopSink()
	}
	return &Registry{
		repo:    repo,
		sink:    sink,
		engines: make(map[string]*Engine),
	}
}

// ForAccount returns the engine for accountID, creating and loading it
// if needed.
func (r *Registry) ForAccount(ctx context.Context, accountID string) (*Engine, error) {
	if accountID == "" {
		return nil, fmt.Errorf("accountID is required")
	}

	r.mu.Lock()
	engine, ok := r.engines[accountID]
	r.mu.Unlock()
	if ok {
		return engine, nil
	}

	engine, err := NewEngine(r.sink)
	if err != nil {
		return nil, err
	}

	if r.repo != nil {
		cats, err := r.repo.ListCategories(ctx, accountID)
		if err != nil {
			return nil, fmt.Errorf("failed to load categories: %w", err)
		}
		if err := engine.LoadCategories(cats); err != nil {
			return nil, err
		}
	}

	r.mu.Lock()
	// Another goroutine may have raced us; keep the first one.
	if existing, ok := r.engines[accountID]; ok {
		engine = existing
	} else {
		r.engines[accountID] = engine
	}
	r.mu.Unlock()

	return engine, nil
}

// Reload refreshes an account's engine from the repository.
func (r *Registry) Reload(ctx context.Context, accountID string) error {
	engine, err := r.ForAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if r.repo == nil {
		return nil
	}

	cats, err := r.repo.ListCategories(ctx, accountID)
	if err != nil {
		return fmt.Errorf("failed to load categories: %w", err)
	}
	return engine.LoadCategories(cats)
}
