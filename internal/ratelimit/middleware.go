package ratelimit

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// KeyFunc names the client a request is counted against. An empty key
// skips the limiter.
type KeyFunc func(*http.Request) string

// MiddlewareOptions configures Middleware
type MiddlewareOptions struct {
	// KeyFunc defaults to ClientIP
	KeyFunc KeyFunc
	// FailOpen lets requests through when the limiter errors
	FailOpen bool
	Logger   *zap.Logger
}

// ClientIP keys requests by remote address without the port
func ClientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// Middleware answers 429 once a client is over the limit and sets the
// X-RateLimit-* headers on every counted response
func Middleware(l Limiter, opts MiddlewareOptions) func(http.Handler) http.Handler {
	keyFunc := opts.KeyFunc
	if keyFunc == nil {
		keyFunc = ClientIP
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFunc(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			d, err := l.Allow(r.Context(), key)
			if err != nil {
				logger.Warn("rate limiter failed", zap.String("key", key), zap.Error(err))
				if opts.FailOpen {
					next.ServeHTTP(w, r)
					return
				}
				http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))

			if !d.Allowed {
				wait := math.Ceil(time.Until(d.ResetAt).Seconds())
				h.Set("Retry-After", strconv.Itoa(max(1, int(wait))))
				logger.Debug("rate limited", zap.String("key", key))
				http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
