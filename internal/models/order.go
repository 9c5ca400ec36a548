package models

import (
	"time"

	"github.com/google/uuid"
)

type PaymentMethod string

const (
	MethodCard         PaymentMethod = "card"
	MethodPayPal       PaymentMethod = "paypal"
	MethodPayzy        PaymentMethod = "payzy"
	MethodBankTransfer PaymentMethod = "bank_transfer"
)

// PaymentStatus tracks whether money has moved for an order.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

// OrderStatus tracks fulfilment, independent of payment.
type OrderStatus string

const (
	StatusPending          OrderStatus = "pending"
	StatusAwaitingTransfer OrderStatus = "awaiting_transfer"
	StatusProcessing       OrderStatus = "processing"
	StatusCancelled        OrderStatus = "cancelled"
	StatusRefunded         OrderStatus = "refunded"
)

type Customer struct {
	FirstName    string `json:"firstName" validate:"required"`
	LastName     string `json:"lastName" validate:"required"`
	Email        string `json:"email" validate:"required,email"`
	Phone        string `json:"phone" validate:"required"`
	AddressLine1 string `json:"addressLine1" validate:"required"`
	AddressLine2 string `json:"addressLine2,omitempty"`
	City         string `json:"city" validate:"required"`
	PostalCode   string `json:"postalCode,omitempty"`
	Country      string `json:"country,omitempty"`
}

func (c Customer) FullName() string {
	switch {
	case c.FirstName == "":
		return c.LastName
	case c.LastName == "":
		return c.FirstName
	default:
		return c.FirstName + " " + c.LastName
	}
}

type LineItem struct {
	ProductID string `json:"productId" validate:"required"`
	Name      string `json:"name" validate:"required"`
	UnitPrice int64  `json:"unitPrice" validate:"min=0"`
	Quantity  int    `json:"quantity" validate:"min=1"`
	Size      string `json:"size,omitempty"`
	Gemstone  string `json:"gemstone,omitempty"`
}

type Order struct {
	ID            uuid.UUID      `json:"id"`
	OrderNumber   string         `json:"order_number"`
	PaymentMethod PaymentMethod  `json:"payment_method"`
	PaymentStatus PaymentStatus  `json:"payment_status"`
	Status        OrderStatus    `json:"status"`
	Customer      Customer       `json:"customer"`
	Items         []LineItem     `json:"items"`
	SubtotalMinor int64          `json:"subtotal_minor"`
	ShippingMinor int64          `json:"shipping_minor"`
	DiscountMinor int64          `json:"discount_minor"`
	TotalMinor    int64          `json:"total_minor"`
	Currency      string         `json:"currency"`
	Metadata      map[string]any `json:"metadata"`
	LastEventAt   time.Time      `json:"last_event_at"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// MetadataString returns a metadata value as a string, or "" when absent.
func (o *Order) MetadataString(key string) string {
	if o == nil || o.Metadata == nil {
		return ""
	}
	value, ok := o.Metadata[key].(string)
	if !ok {
		return ""
	}
	return value
}

// Metadata keys written by the payment adapters. The PayPal captured amount is
// in the captured currency, which may differ from the order currency.
const (
	MetaPayPalOrderID          = "paypal_order_id"
	MetaPayPalCaptureID        = "paypal_capture_id"
	MetaPayPalCapturedAmount   = "paypal_captured_amount"
	MetaPayPalCapturedCurrency = "paypal_captured_currency"
	MetaPayPalCapturedAt       = "paypal_captured_at"
	MetaPayzyTransactionID     = "payzy_transaction_id"
	MetaCardPaymentIntentID    = "card_payment_intent_id"
	MetaAttemptID              = "attempt_id"
	MetaRefundID               = "refund_id"
)
