package events

import (
	"time"
)

// EventType identifies the type of event
type EventType string

const (
	// Pipeline events
	PipelineStage     EventType = "pipeline.stage"
	PipelineCompleted EventType = "pipeline.completed"
	PipelineFailed    EventType = "pipeline.failed"

	// Alert events
	AlertCreated  EventType = "alert.created"
	AlertNotified EventType = "alert.notified"
)

// Event wraps a payload with routing metadata
type Event[T any] struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Payload   T         `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
	ChatID    string    `json:"chat_id,omitempty"`
}

// Publisher is the sending half of a Broker
type Publisher[T any] interface {
	Publish(eventType EventType, payload T, opts ...PublishOption)
}

// Filter selects events for a subscriber
type Filter[T any] func(Event[T]) bool

// ByChatID matches events for one conversation. An empty id matches all.
func ByChatID[T any](chatID string) Filter[T] {
	return func(e Event[T]) bool {
		return chatID == "" || e.ChatID == chatID
	}
}

// ByType matches any of the given event types
func ByType[T any](types ...EventType) Filter[T] {
	return func(e Event[T]) bool {
		for _, t := range types {
			if e.Type == t {
				return true
			}
		}
		return false
	}
}

// PublishOptions holds per-event metadata
type PublishOptions struct {
	ChatID string
}

// PublishOption configures a published event
type PublishOption func(*PublishOptions)

// WithChatID tags an event with its conversation
func WithChatID(chatID string) PublishOption {
	return func(o *PublishOptions) { o.ChatID = chatID }
}
