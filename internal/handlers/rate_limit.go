package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"

	"github.com/ceylongems/storefront/internal/cache"
	"github.com/ceylongems/storefront/internal/observability"
)

const rateLimitWindow = time.Minute

// RateLimit caps requests per client IP in fixed one-minute windows. Counters
// live in the cache provider so limits hold across instances on Redis. A
// failing counter lets the request through.
func (h *Handlers) RateLimit(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			limit := int64(h.config.RateLimitPerMinute)
			if limit <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			now := time.Now()
			windowStart := now.Truncate(rateLimitWindow)
			key := cache.RateLimitKey(scope, h.clientIP(r), windowStart)

			count, err := h.cacheProvider.Incr(ctx, key, rateLimitWindow)
			if err != nil {
				h.loggerFromContext(ctx).Error("rate limit counter failed", "error", err, "scope", scope)
				next.ServeHTTP(w, r)
				return
			}
			if count > limit {
				observability.MeterFromContext(ctx).Count("security.rate_limited", 1, sentry.WithAttributes(attribute.String("scope", scope)))
				h.metrics.ObserveRateLimited(scope)
				h.loggerFromContext(ctx).Warn("rate limit exceeded", "scope", scope, "count", count, "limit", limit)

				retryAfter := windowStart.Add(rateLimitWindow).Sub(now)
				w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())+1))
				writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: msgRateLimited})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
