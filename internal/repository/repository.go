// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/inboxkit/kestrel/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveCategory inserts or updates a category with account isolation.
func (r *SQLRepository) SaveCategory(ctx context.Context, accountID string, cat *domain.Category) error {
	if accountID == "" {
		return fmt.Errorf("%w: accountID is required", ErrInvalidInput)
	}

	rules, err := json.Marshal(cat.Rules)
	if err != nil {
		return fmt.Errorf("failed to encode rules: %w", err)
	}

	enabled := 0
	if cat.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO categories (
			id, account_id, name, color, rules, logic, query, expression,
			position, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, account_id) DO UPDATE SET
			name = excluded.name,
			color = excluded.color,
			rules = excluded.rules,
			logic = excluded.logic,
			query = excluded.query,
			expression = excluded.expression,
			position = excluded.position,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		cat.ID, accountID, cat.Name, cat.Color,
		string(rules), string(cat.Logic), cat.Query, cat.Expression,
		cat.Position, enabled, now, now,
	)
	return err
}

// GetCategory retrieves a category by ID with account isolation.
func (r *SQLRepository) GetCategory(ctx context.Context, accountID string, catID string) (*domain.Category, error) {
	if accountID == "" {
		return nil, fmt.Errorf("%w: accountID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, name, color, rules, logic, query, expression,
		       position, enabled, created_at, updated_at
		FROM categories
		WHERE account_id = ? AND id = ?
	`

	cat, err := scanCategory(r.db.QueryRowContext(ctx, r.rebind(query), accountID, catID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return cat, err
}

// ListCategories retrieves a account's categories ordered by position.
// The returned order is the matching priority.
func (r *SQLRepository) ListCategories(ctx context.Context, accountID string) ([]*domain.Category, error) {
	if accountID == "" {
		return nil, fmt.Errorf("%w: accountID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, name, color, rules, logic, query, expression,
		       position, enabled, created_at, updated_at
		FROM categories
		WHERE account_id = ?
		ORDER BY position, name
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cats []*domain.Category
	for rows.Next() {
		cat, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		cats = append(cats, cat)
	}

	return cats, rows.Err()
}

// DeleteCategory removes a category with account isolation.
func (r *SQLRepository) DeleteCategory(ctx context.Context, accountID string, catID string) error {
	if accountID == "" {
		return fmt.Errorf("%w: accountID is required", ErrInvalidInput)
	}

	query := `DELETE FROM categories WHERE account_id = ? AND id = ?`

	result, err := r.db.ExecContext(ctx, r.rebind(query), accountID, catID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// ReorderCategories rewrites category positions to match orderedIDs.
// IDs missing from the list keep their position, so a partial reorder of
// the visible prefix is safe.
func (r *SQLRepository) ReorderCategories(ctx context.Context, accountID string, orderedIDs []string) error {
	if accountID == "" {
		return fmt.Errorf("%w: accountID is required", ErrInvalidInput)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := r.rebind(`UPDATE categories SET position = ?, updated_at = ? WHERE account_id = ? AND id = ?`)
	now := time.Now().UTC()

	for pos, id := range orderedIDs {
		if _, err := tx.ExecContext(ctx, query, pos, now, accountID, id); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// SaveClassification stores a classification result with account isolation.
func (r *SQLRepository) SaveClassification(ctx context.Context, accountID string, cl *domain.Classification) error {
	if accountID == "" {
		return fmt.Errorf("%w: accountID is required", ErrInvalidInput)
	}

	matched := 0
	if cl.Matched {
		matched = 1
	}

	query := `
		INSERT INTO classifications (
			id, account_id, message_id, matched, category_id, category_name,
			color, timestamp, process_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		cl.ID, accountID, cl.MessageID, matched,
		cl.CategoryID, cl.CategoryName, cl.Color,
		cl.Timestamp, cl.ProcessMs,
	)
	return err
}

// GetClassification retrieves a classification by ID with account isolation.
func (r *SQLRepository) GetClassification(ctx context.Context, accountID string, clID string) (*domain.Classification, error) {
	if accountID == "" {
		return nil, fmt.Errorf("%w: accountID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, account_id, message_id, matched, category_id, category_name,
		       color, timestamp, process_ms
		FROM classifications
		WHERE account_id = ? AND id = ?
	`

	var cl domain.Classification
	var matched int

	err := r.db.QueryRowContext(ctx, r.rebind(query), accountID, clID).Scan(
		&cl.ID, &cl.AccountID, &cl.MessageID, &matched,
		&cl.CategoryID, &cl.CategoryName, &cl.Color,
		&cl.Timestamp, &cl.ProcessMs,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	cl.Matched = matched == 1
	return &cl, nil
}

// CountMatches returns per-category match counts since the given time.
func (r *SQLRepository) CountMatches(ctx context.Context, accountID string, since time.Time) ([]domain.CategoryMatches, error) {
	if accountID == "" {
		return nil, fmt.Errorf("%w: accountID is required", ErrInvalidInput)
	}

	query := `
		SELECT category_id, category_name, COUNT(*)
		FROM classifications
		WHERE account_id = ? AND matched = 1 AND timestamp >= ?
		GROUP BY category_id, category_name
		ORDER BY COUNT(*) DESC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), accountID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []domain.CategoryMatches
	for rows.Next() {
		var cm domain.CategoryMatches
		if err := rows.Scan(&cm.CategoryID, &cm.CategoryName, &cm.Matches); err != nil {
			return nil, err
		}
		stats = append(stats, cm)
	}

	return stats, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// scanner covers *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanCategory(s scanner) (*domain.Category, error) {
	var cat domain.Category
	var rules, logic string
	var enabled int

	err := s.Scan(
		&cat.ID, &cat.Name, &cat.Color, &rules, &logic,
		&cat.Query, &cat.Expression, &cat.Position, &enabled,
		&cat.CreatedAt, &cat.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	cat.Logic = domain.Logic(logic)
	cat.Enabled = enabled == 1
	if err := json.Unmarshal([]byte(rules), &cat.Rules); err != nil {
		return nil, fmt.Errorf("failed to parse category rules: %w", err)
	}

	return &cat, nil
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
