package middleware

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/frahmantamala/timecard-management/internal"
	"github.com/redis/go-redis/v9"
)

// WindowCounter counts hits on key within a fixed window.
type WindowCounter interface {
	Hit(ctx context.Context, key string, window time.Duration) (count int64, ttl time.Duration, err error)
}

var fixedWindowScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
return {count, ttl}
`)

var errUnexpectedReply = errors.New("ratelimit: unexpected script reply")

type RedisCounter struct {
	client redis.Scripter
}

func NewRedisCounter(client redis.Scripter) *RedisCounter {
	return &RedisCounter{client: client}
}

func (c *RedisCounter) Hit(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	vals, err := fixedWindowScript.Run(ctx, c.client, []string{key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, 0, err
	}
	if len(vals) != 2 {
		return 0, 0, errUnexpectedReply
	}
	ttl := time.Duration(vals[1]) * time.Millisecond
	if ttl < 0 {
		ttl = window
	}
	return vals[0], ttl, nil
}

type RateLimiter struct {
	counter WindowCounter
	limit   int
	window  time.Duration
	logger  *slog.Logger
}

// NewRateLimiter returns nil when counter is nil, and a nil limiter lets every request through.
func NewRateLimiter(counter WindowCounter, cfg internal.RateLimitConfig, logger *slog.Logger) *RateLimiter {
	if counter == nil || !cfg.Enabled || cfg.Requests <= 0 || cfg.Window <= 0 {
		return nil
	}
	return &RateLimiter{
		counter: counter,
		limit:   cfg.Requests,
		window:  cfg.Window,
		logger:  logger,
	}
}

// Limit applies a per client IP budget to the named route group. Counter failures let the request through.
func (rl *RateLimiter) Limit(name string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if rl == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := "ratelimit:" + name + ":" + clientIP(r)
			count, ttl, err := rl.counter.Hit(r.Context(), key, rl.window)
			if err != nil {
				rl.logger.Warn("rate limiter unavailable", "key", key, "error", err)
				next.ServeHTTP(w, r)
				return
			}

			remaining := int64(rl.limit) - count
			if remaining < 0 {
				remaining = 0
			}
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

			if count > int64(rl.limit) {
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(ttl.Seconds()))))
				rl.logger.Info("rate limit exceeded", "key", key, "count", count)
				writeAppError(w, internal.NewRateLimitError("Too many requests, please try again later"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
