// Package checkout holds the order draft and the payment method strategy.
package checkout

import (
	"fmt"
	"strings"
	"time"

	"github.com/ceylongems/storefront/internal/models"
)

type Method = models.PaymentMethod

const (
	MethodCard         = models.MethodCard
	MethodPayPal       = models.MethodPayPal
	MethodPayzy        = models.MethodPayzy
	MethodBankTransfer = models.MethodBankTransfer
)

type DraftStatus string

const (
	DraftOpen            DraftStatus = "open"
	DraftAwaitingPayment DraftStatus = "awaiting_payment"
	DraftCompleted       DraftStatus = "completed"
)

const orderReferencePrefix = "ORDER-"

// Draft is the in-progress checkout for one order reference.
type Draft struct {
	OrderReference string            `json:"orderReference"`
	Customer       models.Customer   `json:"customer"`
	Items          []models.LineItem `json:"items"`
	Totals         Totals            `json:"totals"`
	Currency       string            `json:"currency"`
	TermsAccepted  bool              `json:"termsAccepted"`
	Attempt        *Attempt          `json:"attempt,omitempty"`
	Status         DraftStatus       `json:"status"`
	CreatedAt      time.Time         `json:"createdAt"`
	UpdatedAt      time.Time         `json:"updatedAt"`
}

// Attempt is the single active payment attempt on a draft.
type Attempt struct {
	ID          string    `json:"id"`
	Method      Method    `json:"method"`
	ProviderRef string    `json:"providerRef,omitempty"`
	StartedAt   time.Time `json:"startedAt"`
}

// NewOrderReference returns ORDER-<unix millis>.
func NewOrderReference(now time.Time) string {
	return fmt.Sprintf("%s%d", orderReferencePrefix, now.UnixMilli())
}

func IsOrderReference(value string) bool {
	rest, ok := strings.CutPrefix(value, orderReferencePrefix)
	if !ok || rest == "" {
		return false
	}
	for _, r := range rest {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// DraftInput is the client-submitted checkout form.
type DraftInput struct {
	OrderReference string
	Customer       models.Customer
	Items          []models.LineItem
	TermsAccepted  bool
}

// NewDraft builds a draft from client input. A blank reference gets a fresh one.
func NewDraft(input DraftInput, policy ShippingPolicy, currency string, now time.Time) *Draft {
	reference := strings.TrimSpace(input.OrderReference)
	if reference == "" {
		reference = NewOrderReference(now)
	}

	items := make([]models.LineItem, len(input.Items))
	copy(items, input.Items)

	return &Draft{
		OrderReference: reference,
		Customer:       NormalizeCustomer(input.Customer),
		Items:          items,
		Totals:         ComputeTotals(items, policy),
		Currency:       currency,
		TermsAccepted:  input.TermsAccepted,
		Status:         DraftOpen,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Merge replaces the editable fields of an existing draft. The active attempt is
// dropped when anything that affects the charge changes.
func (d *Draft) Merge(next *Draft, now time.Time) {
	if d.Totals.Total != next.Totals.Total || d.Customer != next.Customer {
		d.Attempt = nil
		d.Status = DraftOpen
	}
	d.Customer = next.Customer
	d.Items = next.Items
	d.Totals = next.Totals
	d.Currency = next.Currency
	d.TermsAccepted = next.TermsAccepted
	d.UpdatedAt = now
}

// ActiveAttempt returns the attempt when it belongs to method, else nil.
func (d *Draft) ActiveAttempt(method Method) *Attempt {
	if d == nil || d.Attempt == nil || d.Attempt.Method != method {
		return nil
	}
	return d.Attempt
}

// ToOrder maps the draft onto a pending order record.
func (d *Draft) ToOrder(method Method) *models.Order {
	status := models.StatusPending
	if method == MethodBankTransfer {
		status = models.StatusAwaitingTransfer
	}
	items := make([]models.LineItem, len(d.Items))
	copy(items, d.Items)

	return &models.Order{
		OrderNumber:   d.OrderReference,
		PaymentMethod: method,
		PaymentStatus: models.PaymentPending,
		Status:        status,
		Customer:      d.Customer,
		Items:         items,
		SubtotalMinor: d.Totals.Subtotal,
		ShippingMinor: d.Totals.Shipping,
		DiscountMinor: d.Totals.Discount,
		TotalMinor:    d.Totals.Total,
		Currency:      d.Currency,
		Metadata:      map[string]any{},
	}
}
