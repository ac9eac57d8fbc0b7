// Package worker provides async message classification from the EventBus.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/inboxkit/kestrel/internal/classify"
	"github.com/inboxkit/kestrel/internal/domain"
	"github.com/inboxkit/kestrel/internal/stats"
)

// Worker classifies messages asynchronously from the EventBus.
type Worker struct {
	bus      domain.EventBus
	repo     domain.Repository
	registry *classify.Registry
	stats    *stats.Service

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// AccountIDs is the list of accounts to process.
	AccountIDs []string
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, repo domain.Repository, registry *classify.Registry, statsSvc *stats.Service) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:      bus,
		repo:     repo,
		registry: registry,
		stats:    statsSvc,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins processing messages for the given accounts.
func (w *Worker) Start(cfg Config) error {
	for _, accountID := range cfg.AccountIDs {
		if err := w.startAccountWorker(accountID); err != nil {
			slog.Error("failed to start worker for account",
				"account_id", accountID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("workers started",
		"account_count", len(cfg.AccountIDs),
	)

	return nil
}

// startAccountWorker subscribes to the ingest and category-change topics
// for a single account.
func (w *Worker) startAccountWorker(accountID string) error {
	sub, err := w.bus.Subscribe(w.ctx, accountID, domain.TopicMessageIngested, func(ctx context.Context, event *domain.Event) error {
		return w.processMessage(ctx, accountID, event)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	// Reload the account's engine when its categories change.
	reloadSub, err := w.bus.Subscribe(w.ctx, accountID, domain.TopicCategoryUpdated, func(ctx context.Context, event *domain.Event) error {
		if err := w.registry.Reload(ctx, accountID); err != nil {
			slog.Error("failed to reload categories",
				"account_id", accountID,
				"error", err,
			)
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, reloadSub)

	slog.Info("account worker started",
		"account_id", accountID,
		"topic", domain.TopicMessageIngested,
	)

	return nil
}

// processMessage classifies a single ingested message.
func (w *Worker) processMessage(ctx context.Context, accountID string, event *domain.Event) error {
	start := time.Now()

	var msg domain.Message
	if err := json.Unmarshal(event.Payload, &msg); err != nil {
		slog.Error("failed to parse ingested message",
			"event_id", event.ID,
			"error", err,
		)
		return err
	}

	if event.AccountID != "" {
		accountID = event.AccountID
	}

	slog.Debug("classifying message",
		"message_id", msg.ID,
		"account_id", accountID,
	)

	engine, err := w.registry.ForAccount(ctx, accountID)
	if err != nil {
		slog.Error("failed to get engine",
			"account_id", accountID,
			"error", err,
		)
		return err
	}

	matched := engine.Classify(&msg)

	cl := &domain.Classification{
		ID:        uuid.New().String(),
		AccountID: accountID,
		MessageID: msg.ID,
		Matched:   matched != nil,
		Timestamp: time.Now().UTC(),
		ProcessMs: time.Since(start).Milliseconds(),
	}
	if matched != nil {
		cl.CategoryID = matched.ID
		cl.CategoryName = matched.Name
		cl.Color = matched.Color
	}

	if w.repo != nil {
		if err := w.repo.SaveClassification(ctx, accountID, cl); err != nil {
			slog.Error("failed to save classification",
				"message_id", msg.ID,
				"error", err,
			)
		}
	}

	if w.stats != nil && matched != nil {
		if _, err := w.stats.RecordMatch(ctx, accountID, matched.ID); err != nil {
			slog.Warn("failed to record match",
				"category_id", matched.ID,
				"error", err,
			)
		}
	}

	resultPayload, _ := json.Marshal(cl)
	if err := w.bus.Publish(ctx, accountID, domain.TopicMessageClassified, resultPayload); err != nil {
		slog.Error("failed to publish classification",
			"message_id", msg.ID,
			"error", err,
		)
	}

	slog.Info("message classified",
		"message_id", msg.ID,
		"account_id", accountID,
		"matched", cl.Matched,
		"category", cl.CategoryName,
		"duration_ms", cl.ProcessMs,
	)

	return nil
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
