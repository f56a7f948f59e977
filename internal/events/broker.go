package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

const (
	defaultBufferSize = 64
	defaultMaxEvents  = 1000
)

// Broker implements a generic publish-subscribe broker with type safety
type Broker[T any] struct {
	subs         map[chan Event[T]]subscriberInfo[T]
	mu           sync.RWMutex
	done         chan struct{}
	maxEvents    int
	bufferSize   int
	eventHistory []Event[T]
	historyMu    sync.RWMutex
	logger       *log.Logger
}

type subscriberInfo[T any] struct {
	id      string
	filters []Filter[T]
}

// NewBroker creates a new broker with default settings
func NewBroker[T any]() *Broker[T] {
	return NewBrokerWithOptions[T](defaultBufferSize, defaultMaxEvents)
}

// NewBrokerWithOptions creates a new broker with custom settings
func NewBrokerWithOptions[T any](channelBufferSize, maxEvents int) *Broker[T] {
	return &Broker[T]{
		subs:         make(map[chan Event[T]]subscriberInfo[T]),
		done:         make(chan struct{}),
		maxEvents:    maxEvents,
		bufferSize:   channelBufferSize,
		eventHistory: make([]Event[T], 0, maxEvents),
		logger:       log.Default().WithPrefix("events"),
	}
}

// Publish sends an event to every matching subscriber without blocking.
// Subscribers whose buffer is full miss the event.
func (b *Broker[T]) Publish(eventType EventType, payload T, opts ...PublishOption) {
	if b.isShutdown() {
		return
	}

	options := &PublishOptions{}
	for _, opt := range opts {
		opt(options)
	}

	event := Event[T]{
		ID:        uuid.New().String(),
		Type:      eventType,
		Payload:   payload,
		Timestamp: time.Now(),
		ChatID:    options.ChatID,
	}
	b.addToHistory(event)

	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch, info := range b.subs {
		if !matches(event, info.filters) {
			continue
		}
		select {
		case ch <- event:
		default:
			b.logger.Warn("subscriber channel full, dropping event", "subscriber", info.id, "event", event.ID)
		}
	}
}

// Subscribe returns a channel of matching events that closes when ctx ends
func (b *Broker[T]) Subscribe(ctx context.Context, filters ...Filter[T]) <-chan Event[T] {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event[T], b.bufferSize)
	if b.isShutdown() {
		close(ch)
		return ch
	}
	b.subs[ch] = subscriberInfo[T]{id: uuid.New().String(), filters: filters}

	go func() {
		select {
		case <-ctx.Done():
			b.unsubscribe(ch)
		case <-b.done:
		}
	}()

	return ch
}

func (b *Broker[T]) unsubscribe(ch chan Event[T]) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subs[ch]; exists {
		delete(b.subs, ch)
		close(ch)
	}
}

func matches[T any](event Event[T], filters []Filter[T]) bool {
	for _, filter := range filters {
		if !filter(event) {
			return false
		}
	}
	return true
}

func (b *Broker[T]) addToHistory(event Event[T]) {
	b.historyMu.Lock()
	defer b.historyMu.Unlock()

	b.eventHistory = append(b.eventHistory, event)
	if len(b.eventHistory) > b.maxEvents {
		copy(b.eventHistory, b.eventHistory[len(b.eventHistory)-b.maxEvents:])
		b.eventHistory = b.eventHistory[:b.maxEvents]
	}
}

// History returns retained events matching the given filters, oldest first
func (b *Broker[T]) History(filters ...Filter[T]) []Event[T] {
	b.historyMu.RLock()
	defer b.historyMu.RUnlock()

	result := make([]Event[T], 0, len(b.eventHistory))
	for _, event := range b.eventHistory {
		if matches(event, filters) {
			result = append(result, event)
		}
	}
	return result
}

// Stats contains broker statistics
type Stats struct {
	Subscribers  int  `json:"subscribers"`
	EventHistory int  `json:"event_history"`
	IsShutdown   bool `json:"is_shutdown"`
}

// Stats returns broker statistics
func (b *Broker[T]) Stats() Stats {
	b.mu.RLock()
	subs := len(b.subs)
	b.mu.RUnlock()

	b.historyMu.RLock()
	historyCount := len(b.eventHistory)
	b.historyMu.RUnlock()

	return Stats{Subscribers: subs, EventHistory: historyCount, IsShutdown: b.isShutdown()}
}

func (b *Broker[T]) isShutdown() bool {
	select {
	case <-b.done:
		return true
	default:
		return false
	}
}

// Shutdown closes every subscriber channel. Later publishes are dropped.
func (b *Broker[T]) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.isShutdown() {
		return
	}
	close(b.done)

	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
	b.logger.Debug("event broker shut down")
}

func (b *Broker[T]) String() string {
	stats := b.Stats()
	return fmt.Sprintf("Broker[subscribers=%d, history=%d, shutdown=%v]",
		stats.Subscribers, stats.EventHistory, stats.IsShutdown)
}
