package checkout

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrMethodUnavailable = errors.New("payment method unavailable")
	ErrUnknownMethod     = errors.New("unknown payment method")
	ErrStaleAttempt      = errors.New("payment attempt is no longer active")
	ErrDraftCompleted    = errors.New("checkout already completed")
)

// Availability is the set of payment methods enabled by configuration.
type Availability struct {
	Card         bool `json:"card"`
	PayPal       bool `json:"paypal"`
	Payzy        bool `json:"payzy"`
	BankTransfer bool `json:"bank_transfer"`
}

func ParseMethod(value string) (Method, error) {
	switch Method(value) {
	case MethodCard, MethodPayPal, MethodPayzy, MethodBankTransfer:
		return Method(value), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMethod, value)
	}
}

func (a Availability) Enabled(method Method) bool {
	switch method {
	case MethodCard:
		return a.Card
	case MethodPayPal:
		return a.PayPal
	case MethodPayzy:
		return a.Payzy
	case MethodBankTransfer:
		return a.BankTransfer
	default:
		return false
	}
}

// CanPay reports whether the pay control for method may be enabled.
func (a Availability) CanPay(method Method, fieldsValid, termsAccepted bool) bool {
	return a.Enabled(method) && fieldsValid && termsAccepted
}

// Strategy gates payment attempts on a draft.
type Strategy struct {
	availability Availability
	now          func() time.Time
	newID        func() string
}

func NewStrategy(availability Availability) *Strategy {
	return &Strategy{
		availability: availability,
		now:          time.Now,
		newID:        uuid.NewString,
	}
}

func (s *Strategy) Availability() Availability {
	return s.availability
}

// BeginAttempt validates the draft and replaces any active attempt with a new one.
func (s *Strategy) BeginAttempt(d *Draft, method Method) (*Attempt, error) {
	if _, err := ParseMethod(string(method)); err != nil {
		return nil, err
	}
	if !s.availability.Enabled(method) {
		return nil, fmt.Errorf("%w: %s", ErrMethodUnavailable, method)
	}
	if d != nil && d.Status == DraftCompleted {
		return nil, ErrDraftCompleted
	}
	if err := Validate(d); err != nil {
		return nil, err
	}

	now := s.now()
	attempt := &Attempt{
		ID:        s.newID(),
		Method:    method,
		StartedAt: now,
	}
	d.Attempt = attempt
	d.Status = DraftAwaitingPayment
	d.UpdatedAt = now
	return attempt, nil
}

// CheckAttempt returns ErrStaleAttempt unless attemptID is the active attempt.
func CheckAttempt(d *Draft, attemptID string) error {
	if d == nil || d.Attempt == nil || attemptID == "" || d.Attempt.ID != attemptID {
		return ErrStaleAttempt
	}
	if d.Status == DraftCompleted {
		return ErrDraftCompleted
	}
	return nil
}

// CompleteAttempt applies a confirmed provider result to the draft.
func (s *Strategy) CompleteAttempt(d *Draft, attemptID string) error {
	if err := CheckAttempt(d, attemptID); err != nil {
		return err
	}
	d.Status = DraftCompleted
	d.UpdatedAt = s.now()
	return nil
}
