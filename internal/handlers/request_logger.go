package handlers

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/ceylongems/storefront/internal/logging"
)

const requestIDHeader = "X-Request-ID"

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusRecorder) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

func (w *statusRecorder) statusCode() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

// RequestLogger stores a request-scoped logger in the context and logs each
// completed request with its route, status and latency. Requests that name
// an order are tagged with its reference.
func (h *Handlers) RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		route := routeLabel(r)
		requestID := requestIDFromRequest(r)
		w.Header().Set(requestIDHeader, requestID)

		args := []any{
			"request_id", requestID,
			"method", r.Method,
			"route", route,
			"remote_ip", h.clientIP(r),
		}
		if reference := orderReferenceFromRequest(r); reference != "" {
			args = append(args, "order_reference", reference)
		}
		ctx, logger := logging.With(r.Context(), h.logger, args...)

		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r.WithContext(ctx))

		status := rec.statusCode()
		elapsed := time.Since(start)
		h.metrics.ObserveHTTPRequest(route, r.Method, status, elapsed)

		meter := sentry.NewMeter(ctx).WithCtx(ctx)
		meter.Distribution("http.server.duration", float64(elapsed.Milliseconds()),
			sentry.WithUnit(sentry.UnitMillisecond),
			sentry.WithAttributes(
				attribute.String("http.route", route),
				attribute.Int("http.status_code", status),
			),
		)

		level := requestLogLevel(r.URL.Path, status)
		logger.Log(ctx, level, "request completed",
			"status", status,
			"duration_ms", elapsed.Milliseconds(),
			"bytes", rec.bytes,
		)
	})
}

// requestLogLevel keeps probes quiet and surfaces server errors.
func requestLogLevel(path string, status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case path == "/health" || path == "/metrics":
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

func orderReferenceFromRequest(r *http.Request) string {
	if reference := mux.Vars(r)["reference"]; reference != "" {
		return reference
	}
	return strings.TrimSpace(r.URL.Query().Get("orderReference"))
}

func requestIDFromRequest(r *http.Request) string {
	if requestID := strings.TrimSpace(r.Header.Get(requestIDHeader)); requestID != "" && len(requestID) <= 128 {
		return requestID
	}
	return uuid.NewString()
}

// clientIP is the rate limit key. Forwarding headers count only behind a
// trusted proxy.
func (h *Handlers) clientIP(r *http.Request) string {
	if h.config.TrustProxyHeaders {
		if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
			first, _, _ := strings.Cut(forwarded, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
		if realIP := strings.TrimSpace(r.Header.Get("X-Real-Ip")); realIP != "" {
			return realIP
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func routeLabel(r *http.Request) string {
	route := mux.CurrentRoute(r)
	if route == nil {
		return "unmatched"
	}
	if name := route.GetName(); name != "" {
		return name
	}
	if template, err := route.GetPathTemplate(); err == nil && template != "" {
		return template
	}
	return "unmatched"
}
