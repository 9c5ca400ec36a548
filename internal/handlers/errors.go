package handlers

import (
	"errors"
	"net/http"

	"github.com/ceylongems/storefront/internal/checkout"
	"github.com/ceylongems/storefront/internal/db"
	"github.com/ceylongems/storefront/internal/drafts"
	"github.com/ceylongems/storefront/internal/payments"
	"github.com/ceylongems/storefront/internal/payments/card"
)

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Field   string `json:"field,omitempty"`
}

// Customer-facing messages. Provider responses never reach the client.
const (
	msgInvalidRequest     = "The request could not be read."
	msgMethodUnavailable  = "This payment method is not available."
	msgStaleAttempt       = "This payment attempt is no longer active. Please try again."
	msgAlreadyPaid        = "This order has already been paid."
	msgCheckoutCompleted  = "This checkout has already been completed."
	msgNotFound           = "Checkout not found. Please start again."
	msgAmountMismatch     = "The order total has changed. Please review your order."
	msgInitiation         = "We could not start your payment. Please try again or choose another method."
	msgConfirmation       = "We could not confirm your payment. Please check your order status before trying again."
	msgCardDeclined       = "Your card was declined. Please try another card or payment method."
	msgTokenization       = "We could not read your card details. Please check them and try again."
	msgClientTokenExpired = "Your payment session expired. Please try again."
	msgRateLimited        = "Too many requests. Please wait a moment and try again."
	msgInternal           = "Something went wrong. Please try again."
)

type errorMapping struct {
	target  error
	status  int
	message string
}

// Order matters: wrapped errors match their most specific entry first.
var errorTable = []errorMapping{
	{target: payments.ErrMethodUnavailable, status: http.StatusConflict, message: msgMethodUnavailable},
	{target: payments.ErrStaleAttempt, status: http.StatusConflict, message: msgStaleAttempt},
	{target: checkout.ErrDraftCompleted, status: http.StatusConflict, message: msgCheckoutCompleted},
	{target: payments.ErrAlreadyPaid, status: http.StatusConflict, message: msgAlreadyPaid},
	{target: checkout.ErrUnknownMethod, status: http.StatusUnprocessableEntity, message: msgMethodUnavailable},
	{target: checkout.ErrDraftAccess, status: http.StatusNotFound, message: msgNotFound},
	{target: drafts.ErrNotFound, status: http.StatusNotFound, message: msgNotFound},
	{target: db.ErrOrderNotFound, status: http.StatusNotFound, message: msgNotFound},
	{target: payments.ErrAmountMismatch, status: http.StatusUnprocessableEntity, message: msgAmountMismatch},
	{target: card.ErrInvalidClientToken, status: http.StatusConflict, message: msgClientTokenExpired},
	{target: card.ErrTokenization, status: http.StatusUnprocessableEntity, message: msgTokenization},
	{target: card.ErrDeclined, status: http.StatusPaymentRequired, message: msgCardDeclined},
	{target: payments.ErrInitiation, status: http.StatusBadGateway, message: msgInitiation},
	{target: payments.ErrConfirmation, status: http.StatusPaymentRequired, message: msgConfirmation},
}

// errorFor maps a service error onto a status and a fixed message.
func errorFor(err error) (int, errorResponse) {
	var validationErr *checkout.ValidationError
	if errors.As(err, &validationErr) {
		return http.StatusUnprocessableEntity, errorResponse{Error: validationErr.Error(), Field: validationErr.Field}
	}
	for _, m := range errorTable {
		if errors.Is(err, m.target) {
			return m.status, errorResponse{Error: m.message}
		}
	}
	return http.StatusInternalServerError, errorResponse{Error: msgInternal}
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := errorFor(err)
	logger := h.loggerFromContext(r.Context())
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "error", err, "status", status)
	} else {
		logger.Info("request rejected", "error", err, "status", status)
	}
	writeJSON(w, status, body)
}
