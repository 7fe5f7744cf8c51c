package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/amyangfei/redlock-go/v3/redlock"
	goredis "github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/twquant/twse-agents/internal/adapters/config"
	"github.com/twquant/twse-agents/pkg/logger"
)

// Client wraps a RedLock manager for cross-replica locking plus a plain
// client for health probes
type Client struct {
	lockManager *redlock.RedLock
	conn        *goredis.Client
}

// New connects to redis and initializes the lock manager
func New(cfg *config.RedisConfig) (*Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	lockManager, err := redlock.NewRedLock(ctx, []string{"tcp://" + cfg.Addr})
	if err != nil {
		return nil, fmt.Errorf("failed to create redlock manager: %w", err)
	}

	conn := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Addr,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	if err := conn.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("redis client initialized", zap.String("addr", cfg.Addr))
	return &Client{lockManager: lockManager, conn: conn}, nil
}

// Acquire takes a distributed lock on key. The returned release func is
// safe to call more than once.
func (c *Client) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	expiry, err := c.lockManager.Lock(ctx, key, ttl)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if expiry <= 0 {
		return nil, fmt.Errorf("failed to acquire lock %s: already held", key)
	}

	released := false
	return func() {
		if released {
			return
		}
		released = true
		unlockCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := c.lockManager.UnLock(unlockCtx, key); err != nil {
			logger.Warn("failed to release lock",
				zap.String("key", key),
				zap.Error(err),
			)
		}
	}, nil
}

// Health checks connectivity with a short ping
func (c *Client) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := c.conn.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

// Close closes the underlying connection
func (c *Client) Close() error {
	logger.Info("closing redis client")
	return c.conn.Close()
}
