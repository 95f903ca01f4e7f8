package server

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RateLimiter enforces a per-client requests-per-minute limit backed by
// Redis. A Redis failure fails open: the request is allowed and the error
// logged, so the API never depends on Redis availability.
type RateLimiter struct {
	redis  *redis.Client
	limit  int
	logger *zap.Logger
}

// NewRateLimiter builds a limiter allowing perMinute requests per client.
func NewRateLimiter(client *redis.Client, perMinute int, logger *zap.Logger) *RateLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if perMinute <= 0 {
		perMinute = 120
	}
	return &RateLimiter{redis: client, limit: perMinute, logger: logger}
}

var rateLimitScript = redis.NewScript(`
	local current = redis.call('INCR', KEYS[1])
	if current == 1 then
		redis.call('PEXPIRE', KEYS[1], ARGV[1])
	end
	return current
`)

// Middleware returns the chi-compatible rate limiting middleware.
func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			key := fmt.Sprintf("logwarden:ratelimit:%s:minute", clientIP(r))

			current, err := rateLimitScript.Run(ctx, rl.redis, []string{key}, 60000).Int()
			if err != nil {
				rl.logger.Warn("rate limit check failed, allowing request", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			remaining := rl.limit - current
			if remaining < 0 {
				remaining = 0
			}
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

			if current > rl.limit {
				ttl, _ := rl.redis.TTL(ctx, key).Result()
				if ttl < 0 {
					ttl = time.Minute
				}
				w.Header().Set("Retry-After", strconv.Itoa(int(ttl.Seconds())))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				fmt.Fprintf(w, `{"error":"rate_limit_exceeded","retry_after":%d}`,
					int(ttl.Seconds()))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
