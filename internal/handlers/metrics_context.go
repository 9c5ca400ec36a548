package handlers

import (
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"

	"github.com/ceylongems/storefront/internal/observability"
)

// MetricsContext gives each request a meter tagged with its route and,
// when present, the order it concerns. Payment code adds the method.
func (h *Handlers) MetricsContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		attrs := []attribute.Builder{
			attribute.String("http.request_id", w.Header().Get(requestIDHeader)),
			attribute.String("http.method", r.Method),
			attribute.String("http.route", routeLabel(r)),
		}
		if reference := orderReferenceFromRequest(r); reference != "" {
			attrs = append(attrs, attribute.String("order.reference", reference))
		}

		meter := sentry.NewMeter(ctx).WithCtx(ctx)
		meter.SetAttributes(attrs...)
		next.ServeHTTP(w, r.WithContext(observability.WithMeter(ctx, meter)))
	})
}
