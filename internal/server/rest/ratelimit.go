package rest

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/dmitrijs2005/contactbook/internal/logging"
	"github.com/redis/go-redis/v9"
)

type counter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	TTL(ctx context.Context, key string) *redis.DurationCmd
}

// RateLimiter is a fixed-window request counter kept in Redis. When Redis
// cannot be reached requests are let through.
type RateLimiter struct {
	rdb     counter
	limit   int
	window  time.Duration
	prefix  string
	timeout time.Duration
	logger  logging.Logger
}

func NewRateLimiter(rdb counter, limit int, window time.Duration, prefix string, timeout time.Duration, l logging.Logger) *RateLimiter {
	return &RateLimiter{
		rdb:     rdb,
		limit:   limit,
		window:  window,
		prefix:  prefix,
		timeout: timeout,
		logger:  l.With("module", "rate_limiter"),
	}
}

// Middleware keys the counter by the authenticated user, falling back to the
// client address.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl == nil || rl.limit <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), rl.timeout)
		defer cancel()

		key := rl.prefix + ":" + clientID(r)

		count, err := rl.rdb.Incr(ctx, key).Result()
		if err != nil {
			rl.logger.Warn(r.Context(), "rate limiter unavailable, letting request through", "error", err)
			next.ServeHTTP(w, r)
			return
		}
		ttl, err := rl.rdb.TTL(ctx, key).Result()
		switch {
		case err != nil:
			ttl = rl.window
		case ttl < 0:
			// First hit of the window, or an earlier EXPIRE was lost. A key
			// left without expiry would lock the client out for good.
			if err := rl.rdb.Expire(ctx, key, rl.window).Err(); err != nil {
				rl.logger.Warn(r.Context(), "rate limiter could not set window expiry", "key", key, "error", err)
			}
			ttl = rl.window
		}

		remaining := rl.limit - int(count)
		if remaining < 0 {
			remaining = 0
		}
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.Itoa(int(ttl.Seconds())))

		if count > int64(rl.limit) {
			w.Header().Set("Retry-After", strconv.Itoa(int(ttl.Seconds())))
			writeError(w, http.StatusTooManyRequests,
				fmt.Sprintf("Rate limit exceeded: %d per %s", rl.limit, windowText(rl.window)))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func clientID(r *http.Request) string {
	if u := currentUser(r); u != nil {
		return "uid:" + strconv.FormatInt(u.ID, 10)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

func windowText(d time.Duration) string {
	if d == time.Minute {
		return "1 minute"
	}
	return d.String()
}
