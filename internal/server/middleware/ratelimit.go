package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// RateLimit throttles the API through a shared token bucket. A request that
// would wait longer than maxWait for a token is rejected with 429. Limiter
// errors other than the wait timeout let the request through.
func RateLimit(limiter domain.RateLimiter, key string, maxWait time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), maxWait)
			err := limiter.Acquire(ctx, key, 1)
			cancel()

			if err != nil && ctx.Err() != nil && r.Context().Err() == nil {
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.Header().Set("Retry-After", strconv.Itoa(max(1, int(maxWait.Seconds()))))
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
