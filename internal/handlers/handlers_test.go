package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/mux"

	"github.com/ceylongems/storefront/internal/cache"
	"github.com/ceylongems/storefront/internal/checkout"
	"github.com/ceylongems/storefront/internal/config"
	"github.com/ceylongems/storefront/internal/db"
	"github.com/ceylongems/storefront/internal/drafts"
	"github.com/ceylongems/storefront/internal/models"
	"github.com/ceylongems/storefront/internal/ordertest"
	"github.com/ceylongems/storefront/internal/payments"
	"github.com/ceylongems/storefront/internal/payments/card"
	"github.com/ceylongems/storefront/internal/payments/paypal"
	"github.com/ceylongems/storefront/internal/payments/payzy"
	"github.com/ceylongems/storefront/internal/reconcile"
	"github.com/ceylongems/storefront/internal/storeconfig"
)

const testReference = "ORDER-1700000000001"

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

type fakePayPal struct {
	mu        sync.Mutex
	creates   int
	createErr error
	verifyErr error
}

func (f *fakePayPal) CreateOrder(_ context.Context, req paypal.CreateOrderRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.creates++
	return fmt.Sprintf("PP-%d", f.creates), nil
}

func (f *fakePayPal) CaptureOrder(_ context.Context, id string) (*paypal.CaptureResult, error) {
	return &paypal.CaptureResult{
		OrderID:     id,
		OrderStatus: "COMPLETED",
		Capture:     paypal.Capture{ID: "CAP-" + id, Status: "COMPLETED", Amount: paypal.Money{CurrencyCode: "LKR", Value: "1350.00"}},
	}, nil
}

func (f *fakePayPal) VerifyWebhookSignature(_ context.Context, _ http.Header, _ []byte) error {
	return f.verifyErr
}

type testEnv struct {
	handlers *Handlers
	orders   *ordertest.Store
	audit    *ordertest.AuditStore
	cache    cache.Provider
	drafts   *drafts.MemoryStore
	paypal   *fakePayPal
	payzy    *payzy.Client
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()

	cfg := &config.Config{
		BaseURL:             "https://shop.test",
		StripeWebhookSecret: "whsec_test_secret",
		RateLimitPerMinute:  30,
	}
	if mutate != nil {
		mutate(cfg)
	}

	cacheProvider, err := cache.NewMemoryProvider()
	if err != nil {
		t.Fatalf("NewMemoryProvider: %v", err)
	}
	payzyClient, err := payzy.NewClient(payzy.Config{BaseURL: "https://payzy.test", MerchantID: "m-1", Secret: "payzy-secret"})
	if err != nil {
		t.Fatalf("payzy.NewClient: %v", err)
	}

	env := &testEnv{
		orders: ordertest.NewStore(),
		audit:  ordertest.NewAuditStore(),
		cache:  cacheProvider,
		drafts: drafts.NewMemoryStore(),
		paypal: &fakePayPal{},
		payzy:  payzyClient,
	}
	reconciler := reconcile.New(env.orders, nil, nil, nil)

	settings := storeconfig.Default()
	settings.Shipping = checkout.ShippingPolicy{FlatFee: 35000, FreeShippingThreshold: 500000}
	settings.PayPalCurrency = settings.Currency

	service, err := payments.NewService(payments.Dependencies{
		Drafts:       env.drafts,
		Orders:       env.orders,
		Reconciler:   reconciler,
		Settings:     settings,
		Availability: checkout.Availability{PayPal: true, Payzy: true, BankTransfer: true},
		PayPal:       env.paypal,
		Payzy:        &payzyGateway{Client: payzyClient},
		BaseURL:      cfg.BaseURL,
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	h, err := New(Dependencies{
		Config:        cfg,
		DB:            fakePinger{},
		Payments:      service,
		CacheProvider: cacheProvider,
		WebhookAudit:  env.audit,
		WebhookRouter: NewWebhookEventRouter(reconciler, nil),
		PayPal:        env.paypal,
		Payzy:         payzyClient,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	env.handlers = h
	return env
}

// payzyGateway keeps return verification real and stubs the hosted page.
type payzyGateway struct {
	*payzy.Client
}

func (g *payzyGateway) InitPayment(_ context.Context, req payzy.InitRequest) (*payzy.InitResult, error) {
	return &payzy.InitResult{PaymentURL: "https://pay.payzy.test/" + req.OrderReference, TransactionID: "PZ-1"}, nil
}

func doJSON(t *testing.T, handler http.HandlerFunc, method, target string, body any, vars map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	return doJSONWithToken(t, handler, method, target, "", body, vars)
}

// doJSONWithToken sends draftToken in the draft token header when set.
func doJSONWithToken(t *testing.T, handler http.HandlerFunc, method, target, draftToken string, body any, vars map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	if draftToken != "" {
		req.Header.Set(DraftTokenHeader, draftToken)
	}
	if vars != nil {
		req = mux.SetURLVars(req, vars)
	}
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func checkoutPayload(unitPrice int64, total string) map[string]any {
	return map[string]any{
		"orderId": testReference,
		"customer": map[string]any{
			"firstName":    "Nimal",
			"lastName":     "Perera",
			"email":        "nimal@example.com",
			"phone":        "+94771234567",
			"addressLine1": "12 Galle Road",
			"city":         "Colombo",
		},
		"items": []map[string]any{
			{"productId": "ring-1", "name": "Sapphire Ring", "unitPrice": unitPrice, "quantity": 1},
		},
		"termsAccepted": true,
		"total":         total,
	}
}

// saveDraft stores payload as a draft and returns its draft token.
func saveDraft(t *testing.T, env *testEnv, payload map[string]any) string {
	t.Helper()

	rec := doJSON(t, env.handlers.SaveDraft, http.MethodPost, "/api/checkout/drafts", payload, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("SaveDraft: %d %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		OrderReference string `json:"orderReference"`
		DraftToken     string `json:"draftToken"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.DraftToken == "" || rec.Header().Get(DraftTokenHeader) != resp.DraftToken {
		t.Fatalf("expected draft token in body and header, got %q / %q", resp.DraftToken, rec.Header().Get(DraftTokenHeader))
	}
	return resp.DraftToken
}

func TestHealth(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	rec := doJSON(t, env.handlers.Health, http.MethodGet, "/health", nil, nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "healthy") {
		t.Fatalf("unexpected response %d %s", rec.Code, rec.Body.String())
	}

	env.handlers.db = fakePinger{err: errors.New("connection refused")}
	rec = doJSON(t, env.handlers.Health, http.MethodGet, "/health", nil, nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestPaymentMethods(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	rec := doJSON(t, env.handlers.PaymentMethods, http.MethodGet, "/api/checkout/methods", nil, nil)

	var resp methodsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Methods.Card || !resp.Methods.PayPal || !resp.Methods.BankTransfer {
		t.Fatalf("unexpected methods: %+v", resp.Methods)
	}
}

func TestBeginAttemptRejectsIncompleteDraft(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	payload := checkoutPayload(100000, "")
	payload["orderReference"] = testReference
	payload["termsAccepted"] = false
	token := saveDraft(t, env, payload)

	rec := doJSONWithToken(t, env.handlers.BeginAttempt, http.MethodPost, "/api/checkout/drafts/"+testReference+"/attempts", token,
		map[string]string{"method": "paypal"}, map[string]string{"reference": testReference})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Field != checkout.FieldTerms {
		t.Fatalf("expected terms field, got %q", resp.Field)
	}

	rec = doJSONWithToken(t, env.handlers.BeginAttempt, http.MethodPost, "/api/checkout/drafts/"+testReference+"/attempts", token,
		map[string]string{"method": "card"}, map[string]string{"reference": testReference})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for disabled card payments, got %d", rec.Code)
	}
}

func TestPayPalCreateAndCapture(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	payload := checkoutPayload(100000, "")
	payload["orderReference"] = testReference
	token := saveDraft(t, env, payload)

	rec := doJSONWithToken(t, env.handlers.PayPalCreateOrder, http.MethodPost, "/api/payments/paypal/create", token,
		map[string]string{"amount": "1350.00", "orderReference": testReference}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("create: %d %s", rec.Code, rec.Body.String())
	}
	var created paypalCreateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	rec = doJSONWithToken(t, env.handlers.PayPalCaptureOrder, http.MethodPost, "/api/payments/paypal/capture", token,
		map[string]string{"providerOrderId": created.ID, "localOrderReference": testReference}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("capture: %d %s", rec.Code, rec.Body.String())
	}
	var captured paymentResultResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &captured); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !captured.Success || captured.TransactionID != "CAP-"+created.ID {
		t.Fatalf("unexpected capture response: %+v", captured)
	}

	order, err := env.orders.GetByOrderNumber(context.Background(), testReference)
	if err != nil {
		t.Fatalf("GetByOrderNumber: %v", err)
	}
	if order.PaymentStatus != models.PaymentPaid {
		t.Fatalf("expected paid order, got %s", order.PaymentStatus)
	}
}

func TestDraftAccessRequiresToken(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	payload := checkoutPayload(100000, "")
	payload["orderReference"] = testReference
	token := saveDraft(t, env, payload)

	other := checkoutPayload(100000, "")
	other["orderReference"] = "ORDER-1700000000002"
	otherToken := saveDraft(t, env, other)

	getPath := "/api/checkout/drafts/" + testReference
	vars := map[string]string{"reference": testReference}

	tests := []struct {
		name  string
		token string
		want  int
	}{
		{name: "no token", token: "", want: http.StatusNotFound},
		{name: "token for another draft", token: otherToken, want: http.StatusNotFound},
		{name: "garbage token", token: "not-a-token", want: http.StatusNotFound},
		{name: "own token", token: token, want: http.StatusOK},
	}
	for _, tt := range tests {
		rec := doJSONWithToken(t, env.handlers.GetDraft, http.MethodGet, getPath, tt.token, nil, vars)
		if rec.Code != tt.want {
			t.Fatalf("%s: expected %d, got %d", tt.name, tt.want, rec.Code)
		}
		if tt.want != http.StatusOK && strings.Contains(rec.Body.String(), "nimal@example.com") {
			t.Fatalf("%s: customer details leaked", tt.name)
		}
	}

	hijack := checkoutPayload(100000, "")
	hijack["orderReference"] = testReference
	hijack["customer"] = map[string]any{"firstName": "Mallory", "email": "mallory@example.com"}
	if rec := doJSON(t, env.handlers.SaveDraft, http.MethodPost, "/api/checkout/drafts", hijack, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected overwrite without token to be refused, got %d", rec.Code)
	}
	draft, err := env.drafts.Get(context.Background(), testReference)
	if err != nil {
		t.Fatalf("drafts.Get: %v", err)
	}
	if draft.Customer.Email != "nimal@example.com" {
		t.Fatalf("draft was overwritten: %+v", draft.Customer)
	}

	rec := doJSON(t, env.handlers.BeginAttempt, http.MethodPost, getPath+"/attempts",
		map[string]string{"method": "paypal"}, vars)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected attempt without token to be refused, got %d", rec.Code)
	}
	rec = doJSON(t, env.handlers.PayPalCreateOrder, http.MethodPost, "/api/payments/paypal/create",
		map[string]string{"amount": "1350.00", "orderReference": testReference}, nil)
	if rec.Code != http.StatusNotFound || env.paypal.creates != 0 {
		t.Fatalf("expected paypal create without token to be refused, got %d after %d creates", rec.Code, env.paypal.creates)
	}

	// A finished order stays protected after its draft is gone.
	env.orders.Put(pendingOrder(models.MethodBankTransfer, map[string]any{}))
	if err := env.drafts.Delete(context.Background(), testReference); err != nil {
		t.Fatalf("drafts.Delete: %v", err)
	}
	rec = doJSON(t, env.handlers.BankTransfer, http.MethodPost, "/api/payments/bank-transfer", checkoutPayload(550000, "5500.00"), nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected bank transfer for an existing order to be refused, got %d", rec.Code)
	}
	rec = doJSONWithToken(t, env.handlers.BeginAttempt, http.MethodPost, getPath+"/attempts", token,
		map[string]string{"method": "paypal"}, vars)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected missing draft with valid token to be 404, got %d", rec.Code)
	}
}

func TestPayPalCreateFailureIsGeneric(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	env.paypal.createErr = &paypal.APIError{StatusCode: 500, Name: "INTERNAL_SERVER_ERROR", Message: "secret provider detail"}
	payload := checkoutPayload(100000, "")
	payload["orderReference"] = testReference
	token := saveDraft(t, env, payload)

	rec := doJSONWithToken(t, env.handlers.PayPalCreateOrder, http.MethodPost, "/api/payments/paypal/create", token,
		map[string]string{"amount": "1350.00", "orderReference": testReference}, nil)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "secret provider detail") {
		t.Fatal("provider error leaked to the client")
	}
	if env.orders.Len() != 0 {
		t.Fatalf("expected no persisted order, got %d", env.orders.Len())
	}
}

func TestBankTransferEndpoint(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	rec := doJSON(t, env.handlers.BankTransfer, http.MethodPost, "/api/payments/bank-transfer", checkoutPayload(550000, "5500.00"), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("bank transfer: %d %s", rec.Code, rec.Body.String())
	}

	var resp bankTransferResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success || resp.OrderNumber != testReference {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.RedirectURL != "/checkout/success?order="+testReference+"&payment_method=bank_transfer" {
		t.Fatalf("unexpected redirect %q", resp.RedirectURL)
	}
	if resp.BankDetails.AccountNumber == "" {
		t.Fatal("expected bank details in response")
	}

	order, err := env.orders.GetByOrderNumber(context.Background(), testReference)
	if err != nil {
		t.Fatalf("GetByOrderNumber: %v", err)
	}
	if order.Status != models.StatusAwaitingTransfer || order.ShippingMinor != 0 {
		t.Fatalf("unexpected order: status=%s shipping=%d", order.Status, order.ShippingMinor)
	}
}

func TestPayzyInitAndReturnRedirect(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	rec := doJSON(t, env.handlers.PayzyInit, http.MethodPost, "/api/payments/payzy/init", checkoutPayload(100000, "1350.00"), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("init: %d %s", rec.Code, rec.Body.String())
	}
	var resp payzyInitResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success || resp.URL == "" {
		t.Fatalf("unexpected response: %+v", resp)
	}

	req := httptest.NewRequest(http.MethodGet, "/checkout/payzy/return?order_reference="+testReference+"&status=success&transaction_id=PZ-1&timestamp=1&signature=bad", nil)
	redirect := httptest.NewRecorder()
	env.handlers.PayzyReturn(redirect, req)
	if redirect.Code != http.StatusSeeOther || redirect.Header().Get("Location") != "/checkout/failed" {
		t.Fatalf("unexpected redirect %d %q", redirect.Code, redirect.Header().Get("Location"))
	}
}

func TestErrorForMapsToFixedMessages(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{name: "validation", err: &checkout.ValidationError{Field: "email", Message: "is required"}, wantStatus: http.StatusUnprocessableEntity, wantMsg: "email: is required"},
		{name: "unavailable", err: fmt.Errorf("%w: card", payments.ErrMethodUnavailable), wantStatus: http.StatusConflict, wantMsg: msgMethodUnavailable},
		{name: "stale attempt", err: payments.ErrStaleAttempt, wantStatus: http.StatusConflict, wantMsg: msgStaleAttempt},
		{name: "already paid", err: payments.ErrAlreadyPaid, wantStatus: http.StatusConflict, wantMsg: msgAlreadyPaid},
		{name: "draft access", err: fmt.Errorf("%w: token is expired", checkout.ErrDraftAccess), wantStatus: http.StatusNotFound, wantMsg: msgNotFound},
		{name: "draft missing", err: drafts.ErrNotFound, wantStatus: http.StatusNotFound, wantMsg: msgNotFound},
		{name: "order missing", err: db.ErrOrderNotFound, wantStatus: http.StatusNotFound, wantMsg: msgNotFound},
		{name: "amount mismatch", err: payments.ErrAmountMismatch, wantStatus: http.StatusUnprocessableEntity, wantMsg: msgAmountMismatch},
		{name: "initiation", err: fmt.Errorf("%w: boom", payments.ErrInitiation), wantStatus: http.StatusBadGateway, wantMsg: msgInitiation},
		{name: "declined", err: fmt.Errorf("%w: %w", payments.ErrConfirmation, &card.DeclineError{Code: "card_declined"}), wantStatus: http.StatusPaymentRequired, wantMsg: msgCardDeclined},
		{name: "confirmation", err: payments.ErrConfirmation, wantStatus: http.StatusPaymentRequired, wantMsg: msgConfirmation},
		{name: "tokenization", err: card.ErrTokenization, wantStatus: http.StatusUnprocessableEntity, wantMsg: msgTokenization},
		{name: "client token", err: fmt.Errorf("%w: expired", card.ErrInvalidClientToken), wantStatus: http.StatusConflict, wantMsg: msgClientTokenExpired},
		{name: "unknown", err: errors.New("pq: relation does not exist"), wantStatus: http.StatusInternalServerError, wantMsg: msgInternal},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			status, body := errorFor(tt.err)
			if status != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, status)
			}
			if body.Error != tt.wantMsg {
				t.Fatalf("expected message %q, got %q", tt.wantMsg, body.Error)
			}
		})
	}
}

func TestConfirmationMessageDoesNotAssumeOutcome(t *testing.T) {
	t.Parallel()

	// The provider may have taken the money even when confirmation failed.
	if strings.Contains(msgConfirmation, "charged") || !strings.Contains(msgConfirmation, "order status") {
		t.Fatalf("unexpected confirmation message %q", msgConfirmation)
	}
}

func TestRateLimit(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, func(c *config.Config) { c.RateLimitPerMinute = 2 })
	handler := env.handlers.RateLimit("payments")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/payments/paypal/create", nil)
		req.RemoteAddr = "203.0.113.7:5000"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
		if rec.Code == http.StatusTooManyRequests && rec.Header().Get("Retry-After") == "" {
			t.Fatal("expected Retry-After header")
		}
	}
	if codes[0] != http.StatusNoContent || codes[1] != http.StatusNoContent || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("unexpected status sequence %v", codes)
	}

	other := httptest.NewRequest(http.MethodPost, "/api/payments/paypal/create", nil)
	other.RemoteAddr = "198.51.100.2:5000"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, other)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected a different client to pass, got %d", rec.Code)
	}
}

func TestRateLimitIgnoresForwardedForUnlessTrusted(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		trusted   bool
		wantThird int
	}{
		{name: "untrusted proxy headers share the peer bucket", trusted: false, wantThird: http.StatusTooManyRequests},
		{name: "trusted proxy headers split buckets", trusted: true, wantThird: http.StatusNoContent},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			env := newTestEnv(t, func(c *config.Config) {
				c.RateLimitPerMinute = 2
				c.TrustProxyHeaders = tt.trusted
			})
			handler := env.handlers.RateLimit("payments")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusNoContent)
			}))

			var last int
			for i, forwarded := range []string{"192.0.2.1", "192.0.2.2", "192.0.2.3"} {
				req := httptest.NewRequest(http.MethodPost, "/api/payments/bank-transfer", nil)
				req.RemoteAddr = "10.0.0.1:443"
				req.Header.Set("X-Forwarded-For", forwarded+", 10.0.0.1")
				rec := httptest.NewRecorder()
				handler.ServeHTTP(rec, req)
				if i < 2 && rec.Code != http.StatusNoContent {
					t.Fatalf("request %d: expected 204, got %d", i, rec.Code)
				}
				last = rec.Code
			}
			if last != tt.wantThird {
				t.Fatalf("third request status = %d, want %d", last, tt.wantThird)
			}
		})
	}
}
