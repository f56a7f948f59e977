package memory

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/entrepeneur4lyf/paycopilot/internal/llm"
)

// DriverType names a conversation cache backend.
type DriverType string

const (
	DriverMemory DriverType = "memory"
	DriverRedis  DriverType = "redis"
)

var (
	ErrInvalidDriver = errors.New("invalid memory driver")
	ErrInvalidConfig = errors.New("invalid memory driver configuration")
)

// Driver stores message lists by conversation id.
type Driver interface {
	// Get returns the cached messages and whether the id is cached.
	Get(ctx context.Context, id string) ([]llm.Message, bool, error)
	// Update atomically replaces the list with fn applied to the current one.
	Update(ctx context.Context, id string, fn func([]llm.Message) []llm.Message) error
	Delete(ctx context.Context, id string) error
	Exists(ctx context.Context, id string) (bool, error)
}

type driverConfig struct {
	redisClient *redis.Client
	ttl         time.Duration
}

// DriverOption configures NewDriver.
type DriverOption func(*driverConfig)

// WithRedisClient sets the client used by the redis driver.
func WithRedisClient(c *redis.Client) DriverOption {
	return func(cfg *driverConfig) { cfg.redisClient = c }
}

// WithTTL sets how long an idle conversation stays cached in redis.
func WithTTL(ttl time.Duration) DriverOption {
	return func(cfg *driverConfig) { cfg.ttl = ttl }
}

// NewDriver creates a driver of the given type.
func NewDriver(t DriverType, opts ...DriverOption) (Driver, error) {
	cfg := &driverConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	switch t {
	case DriverMemory, "":
		return NewMapDriver(), nil
	case DriverRedis:
		if cfg.redisClient == nil {
			return nil, ErrInvalidConfig
		}
		return NewRedisDriver(cfg.redisClient, cfg.ttl), nil
	default:
		return nil, ErrInvalidDriver
	}
}
