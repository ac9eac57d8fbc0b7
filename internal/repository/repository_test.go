package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/inboxkit/kestrel/internal/domain"
)

func newTestRepo(t *testing.T) domain.Repository {
	t.Helper()

	repo, err := New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "test.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	return repo
}

func testCategory(name string, position int) *domain.Category {
	return &domain.Category{
		ID:       uuid.New().String(),
		Name:     name,
		Color:    "#1a73e8",
		Position: position,
		Enabled:  true,
		Logic:    domain.LogicAnd,
		Rules: []domain.Rule{
			{Field: domain.FieldFrom, Operator: domain.OpContains, Value: "acme.com"},
		},
	}
}

func TestRepositoryPing(t *testing.T) {
	repo := newTestRepo(t)
	if err := repo.Ping(context.Background()); err != nil {
		t.Errorf("ping failed: %v", err)
	}
}

func TestCategoryCRUD(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	cat := testCategory("Work", 0)

	t.Run("Save", func(t *testing.T) {
		if err := repo.SaveCategory(ctx, "acct-1", cat); err != nil {
			t.Fatalf("save failed: %v", err)
		}
	})

	t.Run("Get", func(t *testing.T) {
		got, err := repo.GetCategory(ctx, "acct-1", cat.ID)
		if err != nil {
			t.Fatalf("get failed: %v", err)
		}
		if got.Name != "Work" {
			t.Errorf("expected name Work, got %s", got.Name)
		}
		if len(got.Rules) != 1 || got.Rules[0].Field != domain.FieldFrom {
			t.Errorf("rules did not round-trip: %+v", got.Rules)
		}
		if got.Logic != domain.LogicAnd {
			t.Errorf("expected logic and, got %s", got.Logic)
		}
		if !got.Enabled {
			t.Error("expected category enabled")
		}
	})

	t.Run("Upsert", func(t *testing.T) {
		cat.Name = "Work Updated"
		cat.Enabled = false
		if err := repo.SaveCategory(ctx, "acct-1", cat); err != nil {
			t.Fatalf("upsert failed: %v", err)
		}

		got, err := repo.GetCategory(ctx, "acct-1", cat.ID)
		if err != nil {
			t.Fatalf("get after upsert failed: %v", err)
		}
		if got.Name != "Work Updated" {
			t.Errorf("expected updated name, got %s", got.Name)
		}
		if got.Enabled {
			t.Error("expected category disabled after upsert")
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := repo.DeleteCategory(ctx, "acct-1", cat.ID); err != nil {
			t.Fatalf("delete failed: %v", err)
		}
		if _, err := repo.GetCategory(ctx, "acct-1", cat.ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound after delete, got %v", err)
		}
		if err := repo.DeleteCategory(ctx, "acct-1", cat.ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound on double delete, got %v", err)
		}
	})
}

func TestListCategoriesOrdersByPosition(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	third := testCategory("Third", 2)
	first := testCategory("First", 0)
	second := testCategory("Second", 1)

	for _, cat := range []*domain.Category{third, first, second} {
		if err := repo.SaveCategory(ctx, "acct-1", cat); err != nil {
			t.Fatalf("save failed: %v", err)
		}
	}

	cats, err := repo.ListCategories(ctx, "acct-1")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(cats) != 3 {
		t.Fatalf("expected 3 categories, got %d", len(cats))
	}
	for i, want := range []string{"First", "Second", "Third"} {
		if cats[i].Name != want {
			t.Errorf("position %d: expected %s, got %s", i, want, cats[i].Name)
		}
	}
}

func TestReorderCategories(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	a := testCategory("A", 0)
	b := testCategory("B", 1)
	c := testCategory("C", 2)

	for _, cat := range []*domain.Category{a, b, c} {
		if err := repo.SaveCategory(ctx, "acct-1", cat); err != nil {
			t.Fatalf("save failed: %v", err)
		}
	}

	if err := repo.ReorderCategories(ctx, "acct-1", []string{c.ID, a.ID, b.ID}); err != nil {
		t.Fatalf("reorder failed: %v", err)
	}

	cats, err := repo.ListCategories(ctx, "acct-1")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	for i, want := range []string{"C", "A", "B"} {
		if cats[i].Name != want {
			t.Errorf("position %d: expected %s, got %s", i, want, cats[i].Name)
		}
	}
}

func TestAccountIsolation(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	cat := testCategory("Private", 0)
	if err := repo.SaveCategory(ctx, "acct-1", cat); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	if _, err := repo.GetCategory(ctx, "acct-2", cat.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for other account, got %v", err)
	}

	cats, err := repo.ListCategories(ctx, "acct-2")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(cats) != 0 {
		t.Errorf("expected no categories for other account, got %d", len(cats))
	}

	if err := repo.DeleteCategory(ctx, "acct-2", cat.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected cross-account delete to fail, got %v", err)
	}
}

func TestAccountIDRequired(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if err := repo.SaveCategory(ctx, "", testCategory("x", 0)); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := repo.ListCategories(ctx, ""); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestClassifications(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	cl := &domain.Classification{
		ID:           uuid.New().String(),
		AccountID:    "acct-1",
		MessageID:    "msg-1",
		Matched:      true,
		CategoryID:   "cat-1",
		CategoryName: "Work",
		Color:        "#1a73e8",
		Timestamp:    time.Now().UTC(),
		ProcessMs:    3,
	}

	if err := repo.SaveClassification(ctx, "acct-1", cl); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	got, err := repo.GetClassification(ctx, "acct-1", cl.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !got.Matched || got.CategoryName != "Work" {
		t.Errorf("classification did not round-trip: %+v", got)
	}

	if _, err := repo.GetClassification(ctx, "acct-2", cl.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for other account, got %v", err)
	}
}

func TestCountMatches(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	save := func(catID, catName string, matched bool, ts time.Time) {
		t.Helper()
		cl := &domain.Classification{
			ID:           uuid.New().String(),
			AccountID:    "acct-1",
			MessageID:    uuid.New().String(),
			Matched:      matched,
			CategoryID:   catID,
			CategoryName: catName,
			Timestamp:    ts,
		}
		if err := repo.SaveClassification(ctx, "acct-1", cl); err != nil {
			t.Fatalf("save failed: %v", err)
		}
	}

	save("cat-1", "Work", true, now)
	save("cat-1", "Work", true, now)
	save("cat-2", "Newsletters", true, now)
	save("cat-1", "Work", false, now)
	save("cat-1", "Work", true, now.Add(-48*time.Hour))

	stats, err := repo.CountMatches(ctx, "acct-1", now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if len(stats) != 2 {
		t.Fatalf("expected 2 category buckets, got %d", len(stats))
	}
	if stats[0].CategoryID != "cat-1" || stats[0].Matches != 2 {
		t.Errorf("unexpected top bucket: %+v", stats[0])
	}
	if stats[1].CategoryID != "cat-2" || stats[1].Matches != 1 {
		t.Errorf("unexpected second bucket: %+v", stats[1])
	}
}
