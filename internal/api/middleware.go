package api

import (
	"net/http"

	"golang.org/x/time/rate"
)

// RateLimit rejects requests beyond the limiter's rate with 429.
func RateLimit(l *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Allow() {
				w.Header().Set("Retry-After", "1")
				writeJSON(w, http.StatusTooManyRequests, ErrorResponse{Error: "rate limit exceeded", Kind: "RateLimited"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
