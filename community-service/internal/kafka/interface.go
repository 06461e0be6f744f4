package kafka

import (
	"context"
	"time"
)

// Event types published on the community topic.
const (
	EventBroadcastCreated = "broadcast.created"
	EventBroadcastLive    = "broadcast.live"
	EventBroadcastEnded   = "broadcast.ended"
	EventMessageSent      = "chat.message_sent"
)

// Event is the envelope of every published record. Key picks the partition.
type Event struct {
	Type       string                 `json:"type"`
	Key        string                 `json:"key"`
	ActorID    string                 `json:"actor_id,omitempty"`
	Data       map[string]interface{} `json:"data,omitempty"`
	OccurredAt time.Time              `json:"occurred_at"`
}

// NewEvent builds an event stamped with the current UTC time.
func NewEvent(eventType, key, actorID string, data map[string]interface{}) *Event {
	return &Event{
		Type:       eventType,
		Key:        key,
		ActorID:    actorID,
		Data:       data,
		OccurredAt: time.Now().UTC(),
	}
}

type EventProducer interface {
	Publish(ctx context.Context, evt *Event) error
	Close() error
}

// NoopProducer drops every event; used when Kafka is disabled.
type NoopProducer struct{}

func (NoopProducer) Publish(ctx context.Context, evt *Event) error { return nil }
func (NoopProducer) Close() error                                   { return nil }
