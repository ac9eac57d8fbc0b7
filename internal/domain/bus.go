package domain

import (
	"context"
)

// EventBus defines the interface for event-driven communication.
// Supports Go channels (single node) or NATS (multi-node).
// All methods require accountID for strict per-account isolation.
type EventBus interface {
	// Publish sends an event to a topic.
	Publish(ctx context.Context, accountID string, topic string, payload []byte) error

	// Subscribe registers a handler for a topic.
	// Returns a subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, accountID string, topic string, handler EventHandler) (Subscription, error)

	// Request sends an event and waits for a response (request-reply pattern).
	Request(ctx context.Context, accountID string, topic string, payload []byte) ([]byte, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// EventHandler processes incoming events.
type EventHandler func(ctx context.Context, ev *Event) error

// Event is the envelope carried by the bus.
type Event struct {
	ID        string            `json:"id"`
	AccountID string            `json:"accountId"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"`
}

// Subscription represents an active subscription.
type Subscription interface {
	// Unsubscribe stops receiving events.
	Unsubscribe() error

	// Topic returns the subscribed topic.
	Topic() string
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type: "channel" or "nats"
	Type string

	// Channel settings (single node)
	ChannelBufferSize int

	// NATS settings (multi-node)
	NATSUrl           string
	NATSToken         string
	NATSMaxReconnects int
	NATSReconnectWait int // seconds
}

// Standard topic names for the classification pipeline.
const (
	TopicMessageIngested   = "kestrel.message.ingested"
	TopicMessageClassified = "kestrel.message.classified"
	TopicCategoryUpdated   = "kestrel.category.updated"
)
