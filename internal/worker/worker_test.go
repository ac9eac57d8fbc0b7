package worker

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/inboxkit/kestrel/internal/bus"
	"github.com/inboxkit/kestrel/internal/classify"
	"github.com/inboxkit/kestrel/internal/domain"
	"github.com/inboxkit/kestrel/internal/repository"
)

func newTestRegistry(t *testing.T, accountID string, cats []*domain.Category) (*classify.Registry, domain.Repository) {
	t.Helper()

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "worker-test.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	ctx := context.Background()
	for _, cat := range cats {
		if err := repo.SaveCategory(ctx, accountID, cat); err != nil {
			t.Fatalf("failed to save category: %v", err)
		}
	}

	return classify.NewRegistry(repo, domain.NopSink()), repo
}

func workCategory() *domain.Category {
	return &domain.Category{
		ID:      "cat-work",
		Name:    "Work",
		Color:   "#1a73e8",
		Enabled: true,
		Logic:   domain.LogicAnd,
		Rules: []domain.Rule{
			{Field: domain.FieldFrom, Operator: domain.OpEndsWith, Value: "@acme.com"},
		},
	}
}

func TestWorker(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	t.Run("StartAndStop", func(t *testing.T) {
		registry, repo := newTestRegistry(t, "acct-001", nil)
		w := NewWorker(eventBus, repo, registry, nil)

		if err := w.Start(Config{AccountIDs: []string{"acct-001"}}); err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		// One ingest and one category-change subscription per account
		stats := w.GetStats()
		if stats.SubscriptionCount != 2 {
			t.Errorf("expected 2 subscriptions, got %d", stats.SubscriptionCount)
		}

		if err := w.Stop(); err != nil {
			t.Errorf("Stop failed: %v", err)
		}

		stats = w.GetStats()
		if stats.SubscriptionCount != 0 {
			t.Errorf("expected 0 subscriptions after stop, got %d", stats.SubscriptionCount)
		}
	})

	t.Run("ClassifiesMessage", func(t *testing.T) {
		accountID := "acct-test"
		registry, repo := newTestRegistry(t, accountID, []*domain.Category{workCategory()})

		w := NewWorker(eventBus, repo, registry, nil)
		w.Start(Config{AccountIDs: []string{accountID}})
		defer w.Stop()

		var resultReceived atomic.Bool
		var resultPayload []byte

		eventBus.Subscribe(context.Background(), accountID, domain.TopicMessageClassified, func(ctx context.Context, event *domain.Event) error {
			resultPayload = event.Payload
			resultReceived.Store(true)
			return nil
		})

		// Allow subscriptions to be active
		time.Sleep(50 * time.Millisecond)

		msg := &domain.Message{
			ID:      "msg-001",
			From:    domain.String("boss@acme.com"),
			Subject: domain.String("Q3 planning"),
		}

		payload, _ := json.Marshal(msg)
		if err := eventBus.Publish(context.Background(), accountID, domain.TopicMessageIngested, payload); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}

		time.Sleep(100 * time.Millisecond)

		if !resultReceived.Load() {
			t.Fatal("expected classification to be published")
		}

		var cl domain.Classification
		if err := json.Unmarshal(resultPayload, &cl); err != nil {
			t.Fatalf("failed to parse classification: %v", err)
		}

		if cl.MessageID != "msg-001" {
			t.Errorf("expected messageID 'msg-001', got '%s'", cl.MessageID)
		}
		if !cl.Matched || cl.CategoryName != "Work" {
			t.Errorf("expected Work match, got %+v", cl)
		}

		// Classification should be persisted
		saved, err := repo.GetClassification(context.Background(), accountID, cl.ID)
		if err != nil {
			t.Fatalf("failed to load saved classification: %v", err)
		}
		if saved.CategoryID != "cat-work" {
			t.Errorf("expected saved categoryID 'cat-work', got '%s'", saved.CategoryID)
		}
	})

	t.Run("NoMatchStillPublishes", func(t *testing.T) {
		accountID := "acct-nomatch"
		registry, repo := newTestRegistry(t, accountID, []*domain.Category{workCategory()})

		w := NewWorker(eventBus, repo, registry, nil)
		w.Start(Config{AccountIDs: []string{accountID}})
		defer w.Stop()

		var resultPayload []byte
		var resultReceived atomic.Bool

		eventBus.Subscribe(context.Background(), accountID, domain.TopicMessageClassified, func(ctx context.Context, event *domain.Event) error {
			resultPayload = event.Payload
			resultReceived.Store(true)
			return nil
		})

		time.Sleep(50 * time.Millisecond)

		msg := &domain.Message{
			ID:   "msg-002",
			From: domain.String("noreply@other.org"),
		}
		payload, _ := json.Marshal(msg)
		eventBus.Publish(context.Background(), accountID, domain.TopicMessageIngested, payload)

		time.Sleep(100 * time.Millisecond)

		if !resultReceived.Load() {
			t.Fatal("expected classification to be published")
		}

		var cl domain.Classification
		if err := json.Unmarshal(resultPayload, &cl); err != nil {
			t.Fatalf("failed to parse classification: %v", err)
		}
		if cl.Matched {
			t.Errorf("expected no match, got %+v", cl)
		}
	})

	t.Run("CategoryUpdateReloadsEngine", func(t *testing.T) {
		accountID := "acct-reload"
		registry, repo := newTestRegistry(t, accountID, nil)

		w := NewWorker(eventBus, repo, registry, nil)
		w.Start(Config{AccountIDs: []string{accountID}})
		defer w.Stop()

		ctx := context.Background()

		// Prime the engine with an empty category set
		engine, err := registry.ForAccount(ctx, accountID)
		if err != nil {
			t.Fatalf("ForAccount failed: %v", err)
		}
		if engine.Count() != 0 {
			t.Fatalf("expected empty engine, got %d categories", engine.Count())
		}

		// Save a category and announce the change
		if err := repo.SaveCategory(ctx, accountID, workCategory()); err != nil {
			t.Fatalf("failed to save category: %v", err)
		}
		eventBus.Publish(ctx, accountID, domain.TopicCategoryUpdated, []byte(`{}`))

		time.Sleep(100 * time.Millisecond)

		if engine.Count() != 1 {
			t.Errorf("expected engine reloaded with 1 category, got %d", engine.Count())
		}
	})
}
