package buddies

import (
	"crypto/subtle"
	"math"
	"net/http"
	"strconv"

	"github.com/dalemusser/buddyhub/internal/app/system/ratelimit"
)

// APIKeyHeader carries the admin API key.
const APIKeyHeader = "X-API-Key"

// RequireAPIKey rejects requests whose X-API-Key header does not match key.
// An empty key disables the check.
func RequireAPIKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if key == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(APIKeyHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				writeJSON(w, http.StatusUnauthorized, envelope{Operation: "authorize", Error: "missing or invalid API key"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimit rejects clients that exceed l with 429. A nil l disables the
// check.
func RateLimit(l *ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if l == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ratelimit.ClientIP(r)
			if !l.Allow(ip) {
				secs := int(math.Ceil(l.RetryAfter(ip).Seconds()))
				w.Header().Set("Retry-After", strconv.Itoa(max(secs, 1)))
				writeJSON(w, http.StatusTooManyRequests, envelope{Operation: "rate_limit", Error: "too many requests"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
