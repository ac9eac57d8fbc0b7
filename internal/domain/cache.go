package domain

import (
	"context"
	"time"
)

// Cache defines the interface for caching operations.
// Supports two-phase caching: local LRU plus Redis for multi-node setups.
// All methods require accountID for strict per-account isolation.
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, accountID string, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, accountID string, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, accountID string, key string) error

	// GetClassification retrieves a cached classification by message
	// fingerprint. Returns nil, nil on miss.
	GetClassification(ctx context.Context, accountID string, fingerprint string) (*Classification, error)

	// SetClassification caches a classification result so repeated scans of
	// the same message list skip re-evaluation.
	SetClassification(ctx context.Context, accountID string, fingerprint string, cl *Classification, ttl time.Duration) error

	// IncrementCounter atomically increments a counter and returns new value.
	// Used for per-category match counters.
	IncrementCounter(ctx context.Context, accountID string, key string, window time.Duration) (int64, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string

	// Local LRU cache settings
	LocalMaxSize int
	LocalTTL     time.Duration

	// Redis settings
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Two-phase settings
	EnableTwoPhase bool // If true, check local first, then Redis
}
