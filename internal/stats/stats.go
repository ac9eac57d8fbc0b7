// Package stats provides per-category match statistics.
package stats

import (
	"context"
	"fmt"
	"time"

	"github.com/inboxkit/kestrel/internal/domain"
)

// DefaultWindow is the rolling window for live match counters.
const DefaultWindow = time.Hour

// Service tracks how often each category matches.
// Live counters live in the cache; durable counts come from the
// classification log in the repository.
type Service struct {
	repo   domain.Repository
	cache  domain.Cache
	window time.Duration
}

// NewService creates a new stats service.
func NewService(repo domain.Repository, cache domain.Cache) *Service {
	return &Service{
		repo:   repo,
		cache:  cache,
		window: DefaultWindow,
	}
}

// RecordMatch increments the rolling counter for a category and returns
// the current count within the window.
func (s *Service) RecordMatch(ctx context.Context, accountID, categoryID string) (int64, error) {
	if accountID == "" || categoryID == "" {
		return 0, fmt.Errorf("accountID and categoryID are required")
	}
	if s.cache == nil {
		return 0, nil
	}
	return s.cache.IncrementCounter(ctx, accountID, "matches:"+categoryID, s.window)
}

// Snapshot returns per-category match counts since the given time,
// sorted by count descending.
func (s *Service) Snapshot(ctx context.Context, accountID string, since time.Time) ([]domain.CategoryMatches, error) {
	if accountID == "" {
		return nil, fmt.Errorf("accountID is required")
	}
	if s.repo == nil {
		return nil, fmt.Errorf("no data source available")
	}
	return s.repo.CountMatches(ctx, accountID, since)
}
