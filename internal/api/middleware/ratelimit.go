package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/kiranshivaraju/dashactyl/internal/api/response"
	"github.com/kiranshivaraju/dashactyl/internal/cache"
)

const (
	defaultRequestsPerMinute = 60
	rateWindow               = time.Minute
)

// Counter is the subset of cache.Cache the limiter needs.
type Counter interface {
	IncrWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

// RateLimit provides fixed-window rate limiting via Redis.
type RateLimit struct {
	cache          Counter
	requestsPerMin int
}

// NewRateLimit creates a new RateLimit middleware.
func NewRateLimit(c Counter, requestsPerMin int) *RateLimit {
	if requestsPerMin <= 0 {
		requestsPerMin = defaultRequestsPerMinute
	}
	return &RateLimit{cache: c, requestsPerMin: requestsPerMin}
}

// Limit applies rate limiting based on the key_prefix set by auth middleware.
func (rl *RateLimit) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		prefix, ok := getKeyPrefix(r)
		if !ok {
			// No key prefix means auth middleware didn't run; pass through
			next.ServeHTTP(w, r)
			return
		}
		rl.apply(w, r, next, cache.RateLimitKey(prefix))
	})
}

// LimitByIP applies rate limiting keyed by client address, for routes
// reachable without credentials.
func (rl *RateLimit) LimitByIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rl.apply(w, r, next, cache.IPRateLimitKey(ClientIP(r)))
	})
}

func (rl *RateLimit) apply(w http.ResponseWriter, r *http.Request, next http.Handler, key string) {
	count, reset, err := rl.cache.IncrWindow(r.Context(), key, rateWindow)
	if err != nil {
		// On Redis error, allow the request (fail open)
		next.ServeHTTP(w, r)
		return
	}

	remaining := rl.requestsPerMin - int(count)
	if remaining < 0 {
		remaining = 0
	}
	if reset <= 0 || reset > rateWindow {
		reset = rateWindow
	}
	resetAfter := int((reset + time.Second - 1) / time.Second)

	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.requestsPerMin))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(reset).Unix(), 10))

	if count > int64(rl.requestsPerMin) {
		w.Header().Set("Retry-After", strconv.Itoa(resetAfter))
		response.Error(w, http.StatusTooManyRequests,
			"RATE_LIMIT_EXCEEDED", "Too many requests", nil)
		return
	}

	next.ServeHTTP(w, r)
}
