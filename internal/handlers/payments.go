package handlers

import (
	"net/http"
	"time"

	"github.com/ceylongems/storefront/internal/checkout"
	"github.com/ceylongems/storefront/internal/payments"
	"github.com/ceylongems/storefront/internal/storeconfig"
)

type paypalCreateRequest struct {
	Amount         string `json:"amount"`
	OrderReference string `json:"orderReference"`
	AttemptID      string `json:"attemptId"`
}

type paypalCreateResponse struct {
	ID        string `json:"id"`
	AttemptID string `json:"attemptId"`
}

func (h *Handlers) PayPalCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req paypalCreateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: msgInvalidRequest})
		return
	}
	if !h.authorizeDraft(w, r, req.OrderReference) {
		return
	}

	order, err := h.payments.CreatePayPalOrder(r.Context(), payments.PayPalCreateInput{
		Amount:         req.Amount,
		OrderReference: req.OrderReference,
		AttemptID:      req.AttemptID,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, paypalCreateResponse{ID: order.ID, AttemptID: order.AttemptID})
}

type paypalCaptureRequest struct {
	ProviderOrderID     string `json:"providerOrderId"`
	LocalOrderReference string `json:"localOrderReference"`
}

type paymentResultResponse struct {
	Success       bool   `json:"success"`
	TransactionID string `json:"transactionId,omitempty"`
}

func (h *Handlers) PayPalCaptureOrder(w http.ResponseWriter, r *http.Request) {
	var req paypalCaptureRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: msgInvalidRequest})
		return
	}
	if req.ProviderOrderID == "" || req.LocalOrderReference == "" {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: msgInvalidRequest})
		return
	}
	if !h.authorizeDraft(w, r, req.LocalOrderReference) {
		return
	}

	result, err := h.payments.CapturePayPalOrder(r.Context(), payments.PayPalCaptureInput{
		ProviderOrderID: req.ProviderOrderID,
		OrderReference:  req.LocalOrderReference,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, paymentResultResponse{Success: result.Success, TransactionID: result.TransactionID})
}

type cardClientTokenResponse struct {
	ClientToken    string `json:"clientToken"`
	PublishableKey string `json:"publishableKey"`
	AttemptID      string `json:"attemptId"`
	ExpiresAt      string `json:"expiresAt"`
}

func (h *Handlers) CardClientToken(w http.ResponseWriter, r *http.Request) {
	reference := r.URL.Query().Get("orderReference")
	if !checkout.IsOrderReference(reference) {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: msgInvalidRequest, Field: "orderReference"})
		return
	}
	if !h.authorizeDraft(w, r, reference) {
		return
	}

	token, err := h.payments.IssueCardClientToken(r.Context(), reference)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cardClientTokenResponse{
		ClientToken:    token.ClientToken,
		PublishableKey: token.PublishableKey,
		AttemptID:      token.AttemptID,
		ExpiresAt:      token.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

type cardChargeRequest struct {
	Token          string `json:"token"`
	ClientToken    string `json:"clientToken"`
	Amount         string `json:"amount"`
	OrderReference string `json:"orderReference"`
}

func (h *Handlers) CardCharge(w http.ResponseWriter, r *http.Request) {
	var req cardChargeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: msgInvalidRequest})
		return
	}

	result, err := h.payments.ChargeCard(r.Context(), payments.CardChargeInput{
		Token:          req.Token,
		ClientToken:    req.ClientToken,
		Amount:         req.Amount,
		OrderReference: req.OrderReference,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, paymentResultResponse{Success: result.Success, TransactionID: result.TransactionID})
}

// checkoutBody is the body of the redirect and bank-transfer endpoints.
// orderId is accepted as an alias for the draft's order reference.
type checkoutBody struct {
	draftRequest
	OrderID string `json:"orderId"`
	Total   string `json:"total"`
}

func (b checkoutBody) input() payments.CheckoutInput {
	draft := b.draftRequest.input()
	if draft.OrderReference == "" {
		draft.OrderReference = b.OrderID
	}
	return payments.CheckoutInput{Draft: draft, Total: b.Total}
}

func (b checkoutBody) reference() string {
	if b.OrderReference != "" {
		return b.OrderReference
	}
	return b.OrderID
}

type payzyInitResponse struct {
	Success bool   `json:"success"`
	URL     string `json:"url,omitempty"`
}

func (h *Handlers) PayzyInit(w http.ResponseWriter, r *http.Request) {
	var req checkoutBody
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: msgInvalidRequest})
		return
	}
	if !h.authorizeDraft(w, r, req.reference()) {
		return
	}

	result, err := h.payments.InitPayzy(r.Context(), req.input())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payzyInitResponse{Success: true, URL: result.URL})
}

// PayzyReturn handles the customer's browser coming back from Payzy.
func (h *Handlers) PayzyReturn(w http.ResponseWriter, r *http.Request) {
	target := h.payments.HandlePayzyReturn(r.Context(), r.URL.Query())
	http.Redirect(w, r, redirectPath(target), http.StatusSeeOther)
}

type bankTransferResponse struct {
	Success     bool                    `json:"success"`
	OrderNumber string                  `json:"orderNumber"`
	BankDetails storeconfig.BankDetails `json:"bankDetails"`
	RedirectURL string                  `json:"redirectUrl"`
}

func (h *Handlers) BankTransfer(w http.ResponseWriter, r *http.Request) {
	var req checkoutBody
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: msgInvalidRequest})
		return
	}
	if !h.authorizeDraft(w, r, req.reference()) {
		return
	}

	result, err := h.payments.RecordBankTransfer(r.Context(), req.input())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bankTransferResponse{
		Success:     true,
		OrderNumber: result.OrderNumber,
		BankDetails: result.BankDetails,
		RedirectURL: result.RedirectURL,
	})
}
