package domain

import (
	"context"
)

// EventBus decouples the scoring and tracking subsystems from whatever
// notification or persistence consumers exist. Event emission is
// fire-and-forget and must not block prediction or scoring latency.
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, topic string, payload []byte) error

	// Subscribe registers a handler for a topic.
	// Returns a subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, topic string, handler MessageHandler) (Subscription, error)

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
	Type string

	// Channel settings (in-process default)
	ChannelBufferSize int

	// NATS settings
	NATSUrl           string
	NATSToken         string
	NATSMaxReconnects int
	NATSReconnectWait int // seconds
}

// Topics for the outbound domain events consumed by notification delivery,
// dashboards, and compliance logging.
const (
	TopicPredictionGenerated = "settlement.prediction.generated"
	TopicHighRiskPrediction  = "settlement.prediction.highrisk"
	TopicPredictionError     = "settlement.prediction.error"
	TopicPredictionFeedback  = "settlement.prediction.feedback"
	TopicPatternAdded        = "settlement.pattern.added"
	TopicRiskAssessed        = "settlement.risk.assessed"
	TopicMilestoneUpdated    = "settlement.milestone.updated"
	TopicDelayRaised         = "settlement.delay.raised"
	TopicAlertCreated        = "settlement.alert.created"
	TopicAlertAcknowledged   = "settlement.alert.acknowledged"
	TopicAlertResolved       = "settlement.alert.resolved"
	TopicInstructionCreated  = "settlement.instruction.created"
)
