package cache

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/contactbook/internal/logging"
	"github.com/dmitrijs2005/contactbook/internal/server/models"
	"github.com/redis/go-redis/v9"
)

// kv is the part of the go-redis client the cache uses.
type kv interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisCache stores snapshots as JSON strings under "user:<email>".
type RedisCache struct {
	client  kv
	timeout time.Duration
	logger  logging.Logger
}

// NewRedisClient builds a client whose dial/read/write are bounded by timeout.
func NewRedisClient(addr, password string, db int, timeout time.Duration) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	})
}

// NewRedisCache wraps client. Each call is bounded by timeout.
func NewRedisCache(client kv, timeout time.Duration, logger logging.Logger) *RedisCache {
	return &RedisCache{client: client, timeout: timeout, logger: logger.With("module", "identity_cache")}
}

func (c *RedisCache) Get(ctx context.Context, email string) (*models.User, bool) {
	ctx, cancel := c.bound(ctx)
	defer cancel()

	b, err := c.client.Get(ctx, key(email)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn(ctx, "identity cache get failed", "email", email, "error", err)
		}
		return nil, false
	}

	u, err := decode(b)
	if err != nil {
		c.logger.Warn(ctx, "identity cache entry is corrupt", "email", email, "error", err)
		return nil, false
	}
	return u, true
}

func (c *RedisCache) Put(ctx context.Context, email string, user *models.User, ttl time.Duration) bool {
	b, err := encode(user)
	if err != nil {
		c.logger.Warn(ctx, "identity cache encode failed", "email", email, "error", err)
		return false
	}

	ctx, cancel := c.bound(ctx)
	defer cancel()

	if err := c.client.Set(ctx, key(email), b, ttl).Err(); err != nil {
		c.logger.Warn(ctx, "identity cache put failed", "email", email, "error", err)
		return false
	}
	return true
}

func (c *RedisCache) Invalidate(ctx context.Context, email string) bool {
	ctx, cancel := c.bound(ctx)
	defer cancel()

	if err := c.client.Del(ctx, key(email)).Err(); err != nil {
		c.logger.Warn(ctx, "identity cache invalidate failed", "email", email, "error", err)
		return false
	}
	return true
}

// bound detaches from request cancellation so an invalidation issued right
// before a response is written still runs, and applies the per-call timeout.
func (c *RedisCache) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
}
