package middleware

import (
	"context"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/MrEthical07/otpauth"
)

// Limiter counts requests per source. *otpauth.Engine implements it.
type Limiter interface {
	Allow(ctx context.Context, source string) (otpauth.RateDecision, error)
}

// KeyFunc picks the rate-limit source for a request.
type KeyFunc func(r *http.Request) string

// RemoteIP keys requests by the host part of RemoteAddr.
func RemoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RateLimit rejects requests over the limit with 429 RATE_LIMITED and a
// Retry-After header. Limiter failures yield an opaque 500.
func RateLimit(limiter Limiter, key KeyFunc, now func() time.Time, logger *slog.Logger) func(http.Handler) http.Handler {
	if key == nil {
		key = RemoteIP
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision, err := limiter.Allow(r.Context(), key(r))
			if err != nil {
				logger.ErrorContext(r.Context(), "rate limiter unavailable", "error", err)
				writeError(w, http.StatusInternalServerError, CodeServerError)
				return
			}

			if decision.Limit > 0 {
				reset := secondsUntil(decision.ResetAt, now())
				h := w.Header()
				h.Set("RateLimit-Limit", strconv.Itoa(decision.Limit))
				h.Set("RateLimit-Remaining", strconv.Itoa(decision.Remaining))
				h.Set("RateLimit-Reset", strconv.Itoa(reset))
				if !decision.Allowed {
					h.Set("Retry-After", strconv.Itoa(reset))
				}
			}

			if !decision.Allowed {
				writeError(w, http.StatusTooManyRequests, CodeRateLimited)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func secondsUntil(t, now time.Time) int {
	d := t.Sub(now)
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}

// ClientIP stores the request's source address for audit events.
func ClientIP(key KeyFunc) func(http.Handler) http.Handler {
	if key == nil {
		key = RemoteIP
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(otpauth.WithClientIP(r.Context(), key(r))))
		})
	}
}
