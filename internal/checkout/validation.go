package checkout

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ceylongems/storefront/internal/models"
)

// ValidationError reports the first field that blocks a payment attempt.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

const (
	FieldTerms = "termsAccepted"
	FieldItems = "items"
)

var customerValidator = newCustomerValidator()

func newCustomerValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// NormalizeCustomer trims every field.
func NormalizeCustomer(c models.Customer) models.Customer {
	return models.Customer{
		FirstName:    strings.TrimSpace(c.FirstName),
		LastName:     strings.TrimSpace(c.LastName),
		Email:        strings.TrimSpace(c.Email),
		Phone:        strings.TrimSpace(c.Phone),
		AddressLine1: strings.TrimSpace(c.AddressLine1),
		AddressLine2: strings.TrimSpace(c.AddressLine2),
		City:         strings.TrimSpace(c.City),
		PostalCode:   strings.TrimSpace(c.PostalCode),
		Country:      strings.TrimSpace(c.Country),
	}
}

// ValidateCustomer checks required customer fields in form order.
func ValidateCustomer(c models.Customer) error {
	return firstFieldError(customerValidator.Struct(NormalizeCustomer(c)))
}

// Validate runs the pre-payment gate: customer fields, line items, then terms.
func Validate(d *Draft) error {
	if d == nil {
		return &ValidationError{Field: FieldItems, Message: "checkout is empty"}
	}
	if err := ValidateCustomer(d.Customer); err != nil {
		return err
	}
	if len(d.Items) == 0 {
		return &ValidationError{Field: FieldItems, Message: "at least one item is required"}
	}
	for i, item := range d.Items {
		if err := customerValidator.Struct(item); err != nil {
			var fieldErr *ValidationError
			if errors.As(firstFieldError(err), &fieldErr) {
				fieldErr.Field = fmt.Sprintf("items[%d].%s", i, fieldErr.Field)
				return fieldErr
			}
			return err
		}
	}
	if d.Totals.Total <= 0 {
		return &ValidationError{Field: FieldItems, Message: "order total must be positive"}
	}
	if !d.TermsAccepted {
		return &ValidationError{Field: FieldTerms, Message: "terms must be accepted"}
	}
	return nil
}

func firstFieldError(err error) error {
	if err == nil {
		return nil
	}
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) || len(validationErrs) == 0 {
		return err
	}
	first := validationErrs[0]
	return &ValidationError{Field: first.Field(), Message: fieldMessage(first)}
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return "must be at least " + fe.Param()
	default:
		return "is invalid"
	}
}
