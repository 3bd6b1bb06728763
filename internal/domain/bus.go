package domain

import (
	"context"
)

// EventBus defines the interface for event-driven communication.
// Supports Go channels (Community) or NATS (Pro).
// Messages are namespaced; the worker listens on GlobalNamespace.
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, namespace string, topic string, payload []byte) error

	// Subscribe registers a handler for a topic.
	// Returns a subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, namespace string, topic string, handler MessageHandler) (Subscription, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message represents an event message.
type Message struct {
	ID        string            `json:"id"`
	Namespace string            `json:"namespace"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"`
}

// Subscription represents an active subscription.
type Subscription interface {
	// Unsubscribe stops receiving messages.
	Unsubscribe() error

	// Topic returns the subscribed topic.
	Topic() string
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type: "channel" or "nats"
	Type string `yaml:"type"`

	// Channel settings (Community tier)
	ChannelBufferSize int `yaml:"channelBufferSize"`

	// NATS settings (Pro tier)
	NATSUrl           string `yaml:"natsUrl"`
	NATSToken         string `yaml:"natsToken"`
	NATSMaxReconnects int    `yaml:"natsMaxReconnects"`
	NATSReconnectWait int    `yaml:"natsReconnectWait"` // seconds

	// NATSQueueGroup load-balances subscriptions across replicas when set.
	NATSQueueGroup string `yaml:"natsQueueGroup"`
}

// GlobalNamespace is the bus namespace shared by all owners.
const GlobalNamespace = "_global"

// Standard topic names for the scan pipeline.
const (
	TopicRowsSubmitted = "fraudscan.rows.submitted"
	TopicScanCompleted = "fraudscan.scan.completed"
	TopicFraudAlert    = "fraudscan.alert"
)

// RowsSubmission is the payload of TopicRowsSubmitted.
type RowsSubmission struct {
	ScanID  string   `json:"scanId"`
	OwnerID string   `json:"ownerId"`
	Source  string   `json:"source"`
	TraceID string   `json:"traceId,omitempty"`
	Rows    []RawRow `json:"rows"`
}

// ScanCompletedEvent is the payload of TopicScanCompleted.
type ScanCompletedEvent struct {
	ScanID  string  `json:"scanId"`
	OwnerID string  `json:"ownerId"`
	Source  string  `json:"source"`
	Summary Summary `json:"summary"`
}

// FraudAlertEvent is published once per transaction flagged as fraud.
type FraudAlertEvent struct {
	ScanID      string            `json:"scanId"`
	OwnerID     string            `json:"ownerId"`
	Transaction ScoredTransaction `json:"transaction"`
}
