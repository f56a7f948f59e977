package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/entrepeneur4lyf/paycopilot/internal/llm"
)

const (
	chatKeyPrefix = "paycopilot:chat:"
	defaultTTL    = 24 * time.Hour
	maxTxRetries  = 5
)

// RedisDriver shares conversation caches between processes. Each
// conversation is a JSON array under its own key, refreshed on write.
type RedisDriver struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisDriver(client *redis.Client, ttl time.Duration) *RedisDriver {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisDriver{client: client, ttl: ttl}
}

func (d *RedisDriver) Get(ctx context.Context, id string) ([]llm.Message, bool, error) {
	val, err := d.client.Get(ctx, d.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read conversation: %w", err)
	}
	msgs, err := decodeMessages(val)
	if err != nil {
		return nil, false, err
	}
	return msgs, true, nil
}

// Update runs fn inside WATCH/MULTI/EXEC and retries when another writer
// changed the key first.
func (d *RedisDriver) Update(ctx context.Context, id string, fn func([]llm.Message) []llm.Message) error {
	key := d.key(id)

	txf := func(tx *redis.Tx) error {
		var current []llm.Message
		val, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			if current, err = decodeMessages(val); err != nil {
				return err
			}
		}

		next, err := json.Marshal(fn(current))
		if err != nil {
			return fmt.Errorf("failed to encode conversation: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, next, d.ttl)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := d.client.Watch(ctx, txf, key)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return fmt.Errorf("failed to update conversation: %w", err)
	}
	return fmt.Errorf("failed to update conversation %s: too many concurrent writers", id)
}

func (d *RedisDriver) Delete(ctx context.Context, id string) error {
	return d.client.Del(ctx, d.key(id)).Err()
}

func (d *RedisDriver) Exists(ctx context.Context, id string) (bool, error) {
	n, err := d.client.Exists(ctx, d.key(id)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (d *RedisDriver) key(id string) string {
	return chatKeyPrefix + id
}

func decodeMessages(val []byte) ([]llm.Message, error) {
	var msgs []llm.Message
	if err := json.Unmarshal(val, &msgs); err != nil {
		return nil, fmt.Errorf("failed to decode conversation: %w", err)
	}
	return msgs, nil
}
