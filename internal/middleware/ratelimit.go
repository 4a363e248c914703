package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ptcearn/ptcearn-api/internal/pkg/logger"
	"github.com/ptcearn/ptcearn-api/internal/pkg/response"
)

// RateLimiter is a fixed-window counter per account kept in Redis.
// Without Redis every request is allowed.
type RateLimiter struct {
	redis  *redis.Client
	name   string
	limit  int
	window time.Duration
}

func NewRateLimiter(client *redis.Client, name string, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{redis: client, name: name, limit: limit, window: window}
}

// Handler limits authenticated requests; it must run after Auth.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.redis == nil || rl.limit <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		key := fmt.Sprintf("ratelimit:%s:%d", rl.name, GetAccountID(ctx))

		count, err := rl.redis.Incr(ctx, key).Result()
		if err != nil {
			logger.FromContext(ctx).Warn().Err(err).Str("limiter", rl.name).Msg("rate limiter unavailable")
			next.ServeHTTP(w, r)
			return
		}
		if count == 1 {
			rl.redis.Expire(ctx, key, rl.window)
		}

		if count > int64(rl.limit) {
			w.Header().Set("Retry-After", strconv.Itoa(int(rl.window.Seconds())))
			response.TooManyRequests(w)
			return
		}

		next.ServeHTTP(w, r)
	})
}
