package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors served at /metrics. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	registry          *prometheus.Registry
	reconcileOutcomes *prometheus.CounterVec
	providerCalls     *prometheus.HistogramVec
	webhookDeliveries *prometheus.CounterVec
	rateLimited       *prometheus.CounterVec
	httpRequests      *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	reconcileOutcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_reconcile_outcomes_total",
		Help: "Payment confirmations applied to orders, by provider, kind and outcome.",
	}, []string{"provider", "kind", "outcome"})
	providerCalls := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "storefront_provider_call_duration_seconds",
		Help:    "Latency of outbound payment provider calls.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
	}, []string{"provider", "operation", "result"})
	webhookDeliveries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_webhook_deliveries_total",
		Help: "Inbound webhook deliveries by provider and result.",
	}, []string{"provider", "result"})
	rateLimited := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_rate_limited_requests_total",
		Help: "Requests rejected by the rate limiter.",
	}, []string{"scope"})
	httpRequests := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "storefront_http_request_duration_seconds",
		Help:    "Latency of checkout API and webhook requests by route and status class.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method", "status_class"})

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		reconcileOutcomes,
		providerCalls,
		webhookDeliveries,
		rateLimited,
		httpRequests,
	)

	return &Metrics{
		registry:          registry,
		reconcileOutcomes: reconcileOutcomes,
		providerCalls:     providerCalls,
		webhookDeliveries: webhookDeliveries,
		rateLimited:       rateLimited,
		httpRequests:      httpRequests,
	}
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveReconcile(provider, kind, outcome string) {
	if m == nil {
		return
	}
	m.reconcileOutcomes.WithLabelValues(provider, kind, outcome).Inc()
}

func (m *Metrics) ObserveProviderCall(provider, operation string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.providerCalls.WithLabelValues(provider, operation, result).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveWebhook(provider, result string) {
	if m == nil {
		return
	}
	m.webhookDeliveries.WithLabelValues(provider, result).Inc()
}

func (m *Metrics) ObserveRateLimited(scope string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(scope).Inc()
}

func (m *Metrics) ObserveHTTPRequest(route, method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(status/100)+"xx").Observe(elapsed.Seconds())
}
