// Package ratelimit guards the ingest route against runaway packagers.
package ratelimit

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

// Config holds configuration for the rate limiting middleware.
type Config struct {
	// RequestLimit is the maximum number of requests allowed in the window.
	RequestLimit int
	WindowSize   time.Duration
	// KeyFunc extracts the rate limit key from the request. Defaults to the
	// client IP.
	KeyFunc func(r *http.Request) (string, error)
}

// Middleware returns a sliding-window limiter. A non-positive RequestLimit
// disables limiting.
func Middleware(cfg Config) func(http.Handler) http.Handler {
	if cfg.RequestLimit <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = time.Second
	}
	keyFunc := cfg.KeyFunc
	if keyFunc == nil {
		keyFunc = httprate.KeyByIP
	}

	return httprate.Limit(
		cfg.RequestLimit,
		cfg.WindowSize,
		httprate.WithKeyFuncs(keyFunc),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(cfg.WindowSize.Seconds()+0.5)))
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate_limit_exceeded"}`))
		}),
	)
}

// PerSecond limits each client IP to n requests per second.
func PerSecond(n int) func(http.Handler) http.Handler {
	return Middleware(Config{RequestLimit: n, WindowSize: time.Second})
}
