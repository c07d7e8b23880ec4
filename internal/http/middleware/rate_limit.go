package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/diagnosis/hanguk-bookings/internal/http/response"
	"github.com/diagnosis/hanguk-bookings/internal/ratelimit"
	"github.com/diagnosis/hanguk-bookings/pkg/logger"
	"github.com/diagnosis/hanguk-bookings/pkg/metrics"
)

// RateLimit enforces l's policy per client address. When the policy skips
// successful requests, hits for responses below 400 are refunded.
func RateLimit(l *ratelimit.Limiter) func(http.Handler) http.Handler {
	policy := l.Policy()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			d := l.Allow(ctx, ClientIP(r))

			reset := strconv.Itoa(int(math.Ceil(max(time.Until(d.ResetAt).Seconds(), 0))))
			h := w.Header()
			h.Set("RateLimit-Limit", strconv.Itoa(d.Limit))
			h.Set("RateLimit-Remaining", strconv.Itoa(d.Remaining))
			h.Set("RateLimit-Reset", reset)

			if !d.Allowed {
				metrics.RateLimited.WithLabelValues(policy.Name).Inc()
				logger.WarnContext(ctx, "Rate limit exceeded",
					"policy", policy.Name,
					"path", r.URL.Path,
				)
				h.Set("Retry-After", reset)
				response.RateLimit(w, policy.Message)
				return
			}

			if !policy.SkipSuccessful {
				next.ServeHTTP(w, r)
				return
			}

			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			if ww.Status() < http.StatusBadRequest {
				l.Refund(ctx, d)
			}
		})
	}
}
