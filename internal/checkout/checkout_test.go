package checkout

import (
	"errors"
	"testing"
	"time"

	"github.com/ceylongems/storefront/internal/models"
)

func validCustomer() models.Customer {
	return models.Customer{
		FirstName:    "Nimal",
		LastName:     "Perera",
		Email:        "nimal@example.com",
		Phone:        "+94771234567",
		AddressLine1: "12 Galle Road",
		City:         "Colombo",
		Country:      "LK",
	}
}

func validDraft() *Draft {
	return NewDraft(DraftInput{
		OrderReference: "ORDER-1700000000000",
		Customer:       validCustomer(),
		Items: []models.LineItem{
			{ProductID: "ring-1", Name: "Sapphire Ring", UnitPrice: 450000, Quantity: 1, Size: "7", Gemstone: "Blue Sapphire"},
		},
		TermsAccepted: true,
	}, ShippingPolicy{FlatFee: 35000, FreeShippingThreshold: 500000}, "LKR", time.Unix(1700000000, 0))
}

func TestNewOrderReference(t *testing.T) {
	t.Parallel()

	now := time.UnixMilli(1712345678901)
	got := NewOrderReference(now)
	if got != "ORDER-1712345678901" {
		t.Fatalf("unexpected reference %q", got)
	}
	if !IsOrderReference(got) {
		t.Fatalf("expected %q to be a valid reference", got)
	}
	if IsOrderReference("ORDER-abc") || IsOrderReference("12345") {
		t.Fatalf("expected malformed references to be rejected")
	}
}

func TestComputeTotals(t *testing.T) {
	t.Parallel()

	policy := ShippingPolicy{FlatFee: 35000, FreeShippingThreshold: 500000}
	tests := []struct {
		name  string
		items []models.LineItem
		want  Totals
	}{
		{
			name:  "flat shipping below threshold",
			items: []models.LineItem{{UnitPrice: 100000, Quantity: 2}},
			want:  Totals{Subtotal: 200000, Shipping: 35000, Total: 235000},
		},
		{
			name:  "free shipping at threshold",
			items: []models.LineItem{{UnitPrice: 250000, Quantity: 2}},
			want:  Totals{Subtotal: 500000, Shipping: 0, Total: 500000},
		},
		{
			name:  "empty cart",
			items: nil,
			want:  Totals{},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := ComputeTotals(tt.items, policy); got != tt.want {
				t.Fatalf("ComputeTotals() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestValidateReportsFirstInvalidField(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		mutate    func(d *Draft)
		wantField string
	}{
		{name: "blank first name", mutate: func(d *Draft) { d.Customer.FirstName = "   " }, wantField: "firstName"},
		{name: "bad email", mutate: func(d *Draft) { d.Customer.Email = "not-an-email" }, wantField: "email"},
		{name: "missing city", mutate: func(d *Draft) { d.Customer.City = "" }, wantField: "city"},
		{name: "terms not accepted", mutate: func(d *Draft) { d.TermsAccepted = false }, wantField: FieldTerms},
		{name: "no items", mutate: func(d *Draft) { d.Items = nil }, wantField: FieldItems},
		{name: "zero quantity", mutate: func(d *Draft) { d.Items[0].Quantity = 0 }, wantField: "items[0].quantity"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			d := validDraft()
			tt.mutate(d)

			err := Validate(d)
			var validationErr *ValidationError
			if !errors.As(err, &validationErr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if validationErr.Field != tt.wantField {
				t.Fatalf("expected field %q, got %q", tt.wantField, validationErr.Field)
			}
		})
	}
}

func TestValidateAcceptsCompleteDraft(t *testing.T) {
	t.Parallel()

	if err := Validate(validDraft()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestBeginAttemptRequiresValidDraft(t *testing.T) {
	t.Parallel()

	s := NewStrategy(Availability{PayPal: true, BankTransfer: true})
	d := validDraft()
	d.Customer.Phone = ""

	if _, err := s.BeginAttempt(d, MethodPayPal); err == nil {
		t.Fatalf("expected validation error")
	}
	if d.Attempt != nil {
		t.Fatalf("expected no attempt to be recorded")
	}
}

func TestBeginAttemptRejectsDisabledMethod(t *testing.T) {
	t.Parallel()

	s := NewStrategy(Availability{PayPal: true})
	if _, err := s.BeginAttempt(validDraft(), MethodCard); !errors.Is(err, ErrMethodUnavailable) {
		t.Fatalf("expected ErrMethodUnavailable, got %v", err)
	}
}

func TestCompleteAttemptDiscardsStaleResult(t *testing.T) {
	t.Parallel()

	ids := []string{"attempt-paypal", "attempt-bank"}
	s := NewStrategy(Availability{PayPal: true, BankTransfer: true})
	s.newID = func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}

	d := validDraft()
	first, err := s.BeginAttempt(d, MethodPayPal)
	if err != nil {
		t.Fatalf("begin paypal: %v", err)
	}
	if _, err := s.BeginAttempt(d, MethodBankTransfer); err != nil {
		t.Fatalf("begin bank transfer: %v", err)
	}

	if err := s.CompleteAttempt(d, first.ID); !errors.Is(err, ErrStaleAttempt) {
		t.Fatalf("expected ErrStaleAttempt, got %v", err)
	}
	if d.Status != DraftAwaitingPayment {
		t.Fatalf("expected draft to stay awaiting payment, got %s", d.Status)
	}

	if err := s.CompleteAttempt(d, "attempt-bank"); err != nil {
		t.Fatalf("expected active attempt to complete, got %v", err)
	}
	if d.Status != DraftCompleted {
		t.Fatalf("expected completed draft, got %s", d.Status)
	}
}

func TestCanPayCardDisabledRegardlessOfFields(t *testing.T) {
	t.Parallel()

	a := Availability{Card: false, PayPal: true}
	for _, fieldsValid := range []bool{true, false} {
		for _, terms := range []bool{true, false} {
			if a.CanPay(MethodCard, fieldsValid, terms) {
				t.Fatalf("expected card to be unpayable (fields=%v terms=%v)", fieldsValid, terms)
			}
		}
	}
	if !a.CanPay(MethodPayPal, true, true) {
		t.Fatalf("expected paypal to be payable")
	}
	if a.CanPay(MethodPayPal, true, false) {
		t.Fatalf("expected paypal to require terms")
	}
}

func TestMergeDropsAttemptWhenTotalChanges(t *testing.T) {
	t.Parallel()

	s := NewStrategy(Availability{PayPal: true})
	d := validDraft()
	if _, err := s.BeginAttempt(d, MethodPayPal); err != nil {
		t.Fatalf("begin: %v", err)
	}

	next := validDraft()
	next.Items[0].Quantity = 2
	next.Totals = ComputeTotals(next.Items, ShippingPolicy{FlatFee: 35000, FreeShippingThreshold: 500000})
	d.Merge(next, time.Now())

	if d.Attempt != nil {
		t.Fatalf("expected attempt to be cleared")
	}
	if d.Status != DraftOpen {
		t.Fatalf("expected open draft, got %s", d.Status)
	}
}
