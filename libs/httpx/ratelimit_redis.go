package httpx

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRateLimiter counts requests in fixed windows stored in Redis, so every replica
// draws on the same budget.
type RedisRateLimiter struct {
	limit  int64
	window time.Duration
	prefix string
	key    func(*http.Request) string
	count  func(ctx context.Context, key string) (int64, time.Duration, error)
}

// KEYS[1] counter; ARGV[1] window in ms. Returns {count, remaining ttl in ms}.
var windowCounter = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {n, redis.call("PTTL", KEYS[1])}
`)

func NewRedisRateLimiter(rdb redis.Scripter, limit int, window time.Duration, prefix string) *RedisRateLimiter {
	if limit <= 0 {
		limit = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	if prefix = strings.TrimSpace(prefix); prefix == "" {
		prefix = "rl"
	}
	rl := &RedisRateLimiter{limit: int64(limit), window: window, prefix: prefix, key: clientKey}
	rl.count = func(ctx context.Context, key string) (int64, time.Duration, error) {
		return runWindowCounter(ctx, rdb, key, window)
	}
	return rl
}

// WithKey replaces the client address key, e.g. with UserOrClientKey.
func (rl *RedisRateLimiter) WithKey(fn func(*http.Request) string) *RedisRateLimiter {
	if fn != nil {
		rl.key = fn
	}
	return rl
}

// Middleware rejects callers over budget with 429. When Redis fails the request is let
// through if failOpen, otherwise answered with 503.
func (rl *RedisRateLimiter) Middleware(logger *slog.Logger, failOpen bool) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			n, ttl, err := rl.count(r.Context(), rl.prefix+":"+rl.key(r))
			if err != nil {
				logger.Warn("rate limiter unavailable", "err", err, "fail_open", failOpen,
					"request_id", RequestIDFromContext(r.Context()))
				if failOpen {
					next.ServeHTTP(w, r)
					return
				}
				writeLimitError(w, http.StatusServiceUnavailable, "Unavailable", "rate limiter unavailable")
				return
			}
			remaining := rl.limit - n
			if remaining < 0 {
				remaining = 0
			}
			w.Header().Set("X-RateLimit-Limit", fmt.Sprint(rl.limit))
			w.Header().Set("X-RateLimit-Remaining", fmt.Sprint(remaining))
			if n > rl.limit {
				if ttl <= 0 {
					ttl = rl.window
				}
				tooManyRequests(w, ttl)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func runWindowCounter(ctx context.Context, rdb redis.Scripter, key string, window time.Duration) (int64, time.Duration, error) {
	vals, err := windowCounter.Run(ctx, rdb, []string{key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, 0, err
	}
	if len(vals) != 2 {
		return 0, 0, fmt.Errorf("window counter returned %d values", len(vals))
	}
	return vals[0], time.Duration(vals[1]) * time.Millisecond, nil
}

// UserOrClientKey budgets authenticated callers by X-User-Id and anonymous ones by address.
func UserOrClientKey(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get("X-User-Id")); id != "" {
		return "user:" + id
	}
	return "ip:" + clientKey(r)
}
