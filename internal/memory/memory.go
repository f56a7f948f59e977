// Package memory keeps bounded per-conversation message history.
package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/entrepeneur4lyf/paycopilot/internal/llm"
)

// DurableSummaries is the slice of the turn store needed to rebuild context.
type DurableSummaries interface {
	RecentSummaries(ctx context.Context, chatID string, n int) []string
}

const (
	recentSummaryCount = 5
	durablePrefix      = "Previous conversation context:\n"
)

// Memory is the conversation cache.
type Memory struct {
	driver  Driver
	durable DurableSummaries
	locks   *keyedMutex
	logger  *log.Logger
}

// New creates a Memory over driver. durable may be nil.
func New(driver Driver, durable DurableSummaries) *Memory {
	if driver == nil {
		driver = NewMapDriver()
	}
	return &Memory{
		driver:  driver,
		durable: durable,
		locks:   newKeyedMutex(),
		logger:  log.Default().WithPrefix("memory"),
	}
}

// Append adds msgs to the conversation and compacts it.
func (m *Memory) Append(ctx context.Context, id string, msgs ...llm.Message) error {
	err := m.driver.Update(ctx, id, func(current []llm.Message) []llm.Message {
		return Compact(append(current, msgs...))
	})
	if err != nil {
		return fmt.Errorf("failed to append to conversation %s: %w", id, err)
	}
	return nil
}

// Create registers an empty conversation so it can be continued even if
// its first turn fails. Existing history is kept.
func (m *Memory) Create(ctx context.Context, id string) error {
	err := m.driver.Update(ctx, id, func(current []llm.Message) []llm.Message {
		if current == nil {
			return []llm.Message{}
		}
		return current
	})
	if err != nil {
		return fmt.Errorf("failed to create conversation %s: %w", id, err)
	}
	return nil
}

// Get returns the cached messages of a conversation.
func (m *Memory) Get(ctx context.Context, id string) ([]llm.Message, bool, error) {
	return m.driver.Get(ctx, id)
}

// LoadFromDurable rebuilds context from the most recent persisted summaries
// and caches it. A conversation without summaries yields an empty history.
func (m *Memory) LoadFromDurable(ctx context.Context, id string) ([]llm.Message, error) {
	if m.durable == nil {
		return nil, nil
	}
	summaries := m.durable.RecentSummaries(ctx, id, recentSummaryCount)

	var parts []string
	for _, s := range summaries {
		if s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		return nil, nil
	}

	msg := llm.UserMessage(durablePrefix + strings.Join(parts, "\n"))
	var out []llm.Message
	err := m.driver.Update(ctx, id, func(current []llm.Message) []llm.Message {
		out = Compact(append(current, msg))
		return out
	})
	if err != nil {
		return nil, fmt.Errorf("failed to cache conversation %s: %w", id, err)
	}
	m.logger.Debug("context rebuilt from durable summaries", "chat_id", id, "summaries", len(parts))
	return out, nil
}

// Context returns the cached history, or the durable rebuild when the
// cache is empty.
func (m *Memory) Context(ctx context.Context, id string) ([]llm.Message, error) {
	msgs, _, err := m.driver.Get(ctx, id)
	if err != nil {
		m.logger.Warn("conversation cache unavailable", "chat_id", id, "error", err)
	}
	if len(msgs) > 0 {
		return msgs, nil
	}
	return m.LoadFromDurable(ctx, id)
}

// Exists reports whether the conversation is cached.
func (m *Memory) Exists(ctx context.Context, id string) (bool, error) {
	return m.driver.Exists(ctx, id)
}

// Delete drops the cached conversation.
func (m *Memory) Delete(ctx context.Context, id string) error {
	return m.driver.Delete(ctx, id)
}

// Lock serializes turns on one conversation within this process. The
// returned function releases the lock and is safe to call more than once.
func (m *Memory) Lock(id string) func() {
	return m.locks.lock(id)
}
