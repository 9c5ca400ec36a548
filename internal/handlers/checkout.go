package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/ceylongems/storefront/internal/checkout"
	"github.com/ceylongems/storefront/internal/models"
)

// DraftTokenHeader carries the token returned when a draft is first saved.
const DraftTokenHeader = "X-Draft-Token"

// authorizeDraft writes the not-found response and returns false when the
// request may not touch reference. Existence of a foreign draft is not
// revealed.
func (h *Handlers) authorizeDraft(w http.ResponseWriter, r *http.Request, reference string) bool {
	if err := h.payments.AuthorizeDraft(r.Context(), reference, r.Header.Get(DraftTokenHeader)); err != nil {
		h.writeError(w, r, err)
		return false
	}
	return true
}

type draftRequest struct {
	OrderReference string            `json:"orderReference"`
	Customer       models.Customer   `json:"customer"`
	Items          []models.LineItem `json:"items"`
	TermsAccepted  bool              `json:"termsAccepted"`
}

func (r draftRequest) input() checkout.DraftInput {
	return checkout.DraftInput{
		OrderReference: r.OrderReference,
		Customer:       r.Customer,
		Items:          r.Items,
		TermsAccepted:  r.TermsAccepted,
	}
}

type draftResponse struct {
	*checkout.Draft
	DraftToken string `json:"draftToken"`
}

type methodsResponse struct {
	Methods checkout.Availability `json:"methods"`
}

func (h *Handlers) PaymentMethods(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, methodsResponse{Methods: h.payments.Availability()})
}

func (h *Handlers) SaveDraft(w http.ResponseWriter, r *http.Request) {
	var req draftRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: msgInvalidRequest})
		return
	}
	if !h.authorizeDraft(w, r, req.OrderReference) {
		return
	}

	draft, err := h.payments.SaveDraft(r.Context(), req.input())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	token, err := h.payments.IssueDraftToken(draft.OrderReference)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set(DraftTokenHeader, token)
	writeJSON(w, http.StatusOK, draftResponse{Draft: draft, DraftToken: token})
}

func (h *Handlers) GetDraft(w http.ResponseWriter, r *http.Request) {
	reference := mux.Vars(r)["reference"]
	if !checkout.IsOrderReference(reference) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: msgNotFound})
		return
	}
	if !h.authorizeDraft(w, r, reference) {
		return
	}

	draft, err := h.payments.GetDraft(r.Context(), reference)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, draft)
}

type attemptRequest struct {
	Method string `json:"method"`
}

type attemptResponse struct {
	AttemptID string          `json:"attemptId"`
	Method    checkout.Method `json:"method"`
}

func (h *Handlers) BeginAttempt(w http.ResponseWriter, r *http.Request) {
	reference := mux.Vars(r)["reference"]
	if !h.authorizeDraft(w, r, reference) {
		return
	}

	var req attemptRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: msgInvalidRequest})
		return
	}
	method, err := checkout.ParseMethod(req.Method)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	attempt, err := h.payments.BeginAttempt(r.Context(), reference, method)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, attemptResponse{AttemptID: attempt.ID, Method: attempt.Method})
}
