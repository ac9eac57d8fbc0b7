package domain

import (
	"context"
	"time"
)

// Repository defines the interface for configuration and result persistence.
// All methods require accountID for strict per-account isolation. The engine
// itself never writes; every write here originates from the API surface or
// the async worker.
type Repository interface {
	// Category configuration. ListCategories returns categories ordered by
	// position, lowest first; that order is the matching priority.
	SaveCategory(ctx context.Context, accountID string, cat *Category) error
	GetCategory(ctx context.Context, accountID string, catID string) (*Category, error)
	ListCategories(ctx context.Context, accountID string) ([]*Category, error)
	DeleteCategory(ctx context.Context, accountID string, catID string) error
	ReorderCategories(ctx context.Context, accountID string, orderedIDs []string) error

	// Classification audit trail.
	SaveClassification(ctx context.Context, accountID string, cl *Classification) error
	GetClassification(ctx context.Context, accountID string, clID string) (*Classification, error)
	CountMatches(ctx context.Context, accountID string, since time.Time) ([]CategoryMatches, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
