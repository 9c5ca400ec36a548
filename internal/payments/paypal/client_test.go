package paypal

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

type fakePayPal struct {
	mu         sync.Mutex
	requestIDs []string
	verify     string
	lastCreate createOrderBody
}

func (f *fakePayPal) handler(t *testing.T) http.Handler {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "client" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"access_token":"token-1","token_type":"Bearer","expires_in":3600}`)
	})
	mux.HandleFunc("POST /v2/checkout/orders", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer token-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		f.mu.Lock()
		f.requestIDs = append(f.requestIDs, r.Header.Get("PayPal-Request-Id"))
		_ = json.NewDecoder(r.Body).Decode(&f.lastCreate)
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"5O190127TN364715T","status":"CREATED"}`)
	})
	mux.HandleFunc("POST /v2/checkout/orders/{id}/capture", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") == "DECLINED" {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = io.WriteString(w, `{"name":"UNPROCESSABLE_ENTITY","message":"The requested action could not be performed","debug_id":"dbg-1"}`)
			return
		}
		f.mu.Lock()
		f.requestIDs = append(f.requestIDs, r.Header.Get("PayPal-Request-Id"))
		f.mu.Unlock()
		_, _ = io.WriteString(w, `{"id":"`+r.PathValue("id")+`","status":"COMPLETED","purchase_units":[{"reference_id":"ORDER-1","payments":{"captures":[{"id":"CAP-1","status":"COMPLETED","amount":{"currency_code":"USD","value":"10.00"},"create_time":"2026-01-02T03:04:05Z"}]}}]}`)
	})
	mux.HandleFunc("POST /v1/notifications/verify-webhook-signature", func(w http.ResponseWriter, r *http.Request) {
		var req verifyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.WebhookID != "WH-CONFIG" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = io.WriteString(w, `{"verification_status":"`+f.verify+`"}`)
	})
	return mux
}

func newTestClient(t *testing.T, fake *fakePayPal) *Client {
	t.Helper()
	server := httptest.NewServer(fake.handler(t))
	t.Cleanup(server.Close)

	client, err := NewClient(Config{
		BaseURL:      server.URL,
		ClientID:     "client",
		ClientSecret: "secret",
		WebhookID:    "WH-CONFIG",
		HTTPClient:   server.Client(),
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func TestNewClientRequiresCredentials(t *testing.T) {
	t.Parallel()

	if _, err := NewClient(Config{BaseURL: SandboxBaseURL}); err == nil {
		t.Fatal("expected error for missing credentials")
	}
	if _, err := NewClient(Config{ClientID: "a", ClientSecret: "b"}); err == nil {
		t.Fatal("expected error for missing base url")
	}
}

func TestCreateOrder(t *testing.T) {
	t.Parallel()

	fake := &fakePayPal{}
	client := newTestClient(t, fake)

	id, err := client.CreateOrder(context.Background(), CreateOrderRequest{
		OrderReference: "ORDER-1700000000000",
		Amount:         "33.33",
		Currency:       "USD",
		RequestID:      "attempt-1",
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if id != "5O190127TN364715T" {
		t.Fatalf("unexpected order id %q", id)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if fake.requestIDs[0] != "attempt-1" {
		t.Fatalf("expected request id attempt-1, got %q", fake.requestIDs[0])
	}
	if fake.lastCreate.Intent != "CAPTURE" {
		t.Fatalf("expected CAPTURE intent, got %q", fake.lastCreate.Intent)
	}
	unit := fake.lastCreate.PurchaseUnits[0]
	if unit.ReferenceID != "ORDER-1700000000000" || unit.CustomID != "ORDER-1700000000000" {
		t.Fatalf("order reference not carried: %+v", unit)
	}
	if unit.Amount.Value != "33.33" || unit.Amount.CurrencyCode != "USD" {
		t.Fatalf("unexpected amount: %+v", unit.Amount)
	}
}

func TestCaptureOrder(t *testing.T) {
	t.Parallel()

	fake := &fakePayPal{}
	client := newTestClient(t, fake)

	result, err := client.CaptureOrder(context.Background(), "5O190127TN364715T")
	if err != nil {
		t.Fatalf("CaptureOrder: %v", err)
	}
	if result.OrderStatus != "COMPLETED" || result.Capture.ID != "CAP-1" {
		t.Fatalf("unexpected capture result: %+v", result)
	}
	if result.Capture.CustomID != "ORDER-1" {
		t.Fatalf("expected custom id from reference id, got %q", result.Capture.CustomID)
	}
	if result.Capture.CreatedAt().IsZero() {
		t.Fatal("expected capture create time")
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if fake.requestIDs[0] != "capture-5O190127TN364715T" {
		t.Fatalf("unexpected capture request id %q", fake.requestIDs[0])
	}
}

func TestCaptureOrderAPIError(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, &fakePayPal{})

	_, err := client.CaptureOrder(context.Background(), "DECLINED")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusUnprocessableEntity || apiErr.DebugID != "dbg-1" {
		t.Fatalf("unexpected api error: %+v", apiErr)
	}
}

func TestVerifyWebhookSignature(t *testing.T) {
	t.Parallel()

	signed := http.Header{}
	signed.Set(HeaderTransmissionID, "tx-1")
	signed.Set(HeaderTransmissionTime, "2026-01-02T03:04:05Z")
	signed.Set(HeaderTransmissionSig, "sig")
	signed.Set(HeaderCertURL, "https://api.paypal.com/cert.pem")
	signed.Set(HeaderAuthAlgo, "SHA256withRSA")

	tests := []struct {
		name    string
		status  string
		header  http.Header
		body    string
		wantErr bool
	}{
		{name: "success", status: "SUCCESS", header: signed, body: `{"id":"WH-1"}`},
		{name: "failure status", status: "FAILURE", header: signed, body: `{"id":"WH-1"}`, wantErr: true},
		{name: "missing headers", status: "SUCCESS", header: http.Header{}, body: `{"id":"WH-1"}`, wantErr: true},
		{name: "invalid body", status: "SUCCESS", header: signed, body: `not json`, wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			client := newTestClient(t, &fakePayPal{verify: tt.status})
			err := client.VerifyWebhookSignature(context.Background(), tt.header, []byte(tt.body))
			if tt.wantErr {
				if !errors.Is(err, ErrWebhookVerification) {
					t.Fatalf("expected ErrWebhookVerification, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
