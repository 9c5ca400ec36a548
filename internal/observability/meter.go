package observability

import (
	"context"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
)

type meterKey struct{}

// WithMeter stores the request meter. Handlers attach HTTP attributes to it
// once; payment and webhook code counts against it.
func WithMeter(ctx context.Context, meter sentry.Meter) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if meter == nil {
		meter = sentry.NewMeter(ctx)
	}
	return context.WithValue(ctx, meterKey{}, meter.WithCtx(ctx))
}

// MeterFromContext returns the request meter, or a fresh one outside a request.
func MeterFromContext(ctx context.Context) sentry.Meter {
	if ctx == nil {
		ctx = context.Background()
	}
	meter, ok := ctx.Value(meterKey{}).(sentry.Meter)
	if !ok || meter == nil {
		meter = sentry.NewMeter(ctx)
	}
	return meter.WithCtx(ctx)
}

// CountFailure counts one occurrence of name tagged with reason.
func CountFailure(ctx context.Context, name, reason string, attrs ...attribute.Builder) {
	attrs = append(attrs, attribute.String("reason", reason))
	MeterFromContext(ctx).Count(name, 1, sentry.WithAttributes(attrs...))
}
