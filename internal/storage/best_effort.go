package storage

import (
	"context"

	"github.com/charmbracelet/log"
)

// BestEffort wraps a TurnStore so persistence failures never reach the
// request path. Every failure is logged and converted to an empty result or
// false.
type BestEffort struct {
	store  TurnStore
	logger *log.Logger
}

// NewBestEffort wraps store. A nil store behaves as an empty one.
func NewBestEffort(store TurnStore) *BestEffort {
	return &BestEffort{store: store, logger: log.Default().WithPrefix("storage")}
}

// Unwrap returns the wrapped store.
func (b *BestEffort) Unwrap() TurnStore {
	return b.store
}

func (b *BestEffort) Save(ctx context.Context, turn *Turn) bool {
	if b.store == nil {
		return false
	}
	if _, err := b.store.Save(ctx, turn); err != nil {
		b.logger.Warn("failed to persist turn", "chat_id", turn.ChatID, "error", err)
		return false
	}
	return true
}

func (b *BestEffort) History(ctx context.Context, chatID string) []Turn {
	if b.store == nil {
		return nil
	}
	turns, err := b.store.History(ctx, chatID)
	if err != nil {
		b.logger.Warn("failed to load chat history", "chat_id", chatID, "error", err)
		return nil
	}
	return turns
}

func (b *BestEffort) RecentSummaries(ctx context.Context, chatID string, n int) []string {
	if b.store == nil {
		return nil
	}
	summaries, err := b.store.RecentSummaries(ctx, chatID, n)
	if err != nil {
		b.logger.Warn("failed to load recent summaries", "chat_id", chatID, "error", err)
		return nil
	}
	return summaries
}

func (b *BestEffort) Delete(ctx context.Context, chatID string) bool {
	if b.store == nil {
		return false
	}
	if err := b.store.Delete(ctx, chatID); err != nil {
		b.logger.Warn("failed to delete chat", "chat_id", chatID, "error", err)
		return false
	}
	return true
}

func (b *BestEffort) Exists(ctx context.Context, chatID string) bool {
	if b.store == nil {
		return false
	}
	ok, err := b.store.Exists(ctx, chatID)
	if err != nil {
		b.logger.Warn("failed to check chat", "chat_id", chatID, "error", err)
		return false
	}
	return ok
}

func (b *BestEffort) List(ctx context.Context, limit int) []ChatSummary {
	if b.store == nil {
		return nil
	}
	chats, err := b.store.List(ctx, limit)
	if err != nil {
		b.logger.Warn("failed to list chats", "error", err)
		return nil
	}
	return chats
}

func (b *BestEffort) SetTitle(ctx context.Context, chatID, title string) bool {
	if b.store == nil {
		return false
	}
	if err := b.store.SetTitle(ctx, chatID, title); err != nil {
		b.logger.Warn("failed to set chat title", "chat_id", chatID, "error", err)
		return false
	}
	return true
}

// Ping returns the store error unchanged; health checks need it.
func (b *BestEffort) Ping(ctx context.Context) error {
	if b.store == nil {
		return nil
	}
	return b.store.Ping(ctx)
}
