package observability

import (
	"net/http"
	"time"

	sentryhttpclient "github.com/getsentry/sentry-go/httpclient"
)

// providerHosts receive Sentry trace headers on outbound calls.
var providerHosts = []string{
	"api-m.paypal.com",
	"api-m.sandbox.paypal.com",
	"api.stripe.com",
}

// NewHTTPClient returns a traced client for payment provider APIs. Extra
// hosts, such as a configured Payzy endpoint, also get trace propagation.
func NewHTTPClient(timeout time.Duration, extraHosts ...string) *http.Client {
	targets := append(append([]string{}, providerHosts...), extraHosts...)
	return &http.Client{
		Timeout: timeout,
		Transport: sentryhttpclient.NewSentryRoundTripper(
			http.DefaultTransport,
			sentryhttpclient.WithTracePropagationTargets(targets),
		),
	}
}
