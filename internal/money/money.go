// Package money converts between minor-unit integers and two-decimal strings.
package money

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrNegativeAmount = errors.New("amount must not be negative")
)

// Format renders minor units as a decimal string with exactly two places ("100.00").
func Format(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%d.%02d", sign, minor/100, minor%100)
}

// Parse reads a non-negative decimal amount with at most two fractional digits.
func Parse(value string) (int64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	if strings.HasPrefix(value, "-") {
		return 0, ErrNegativeAmount
	}

	whole, frac, hasFrac := strings.Cut(value, ".")
	if whole == "" || (hasFrac && (frac == "" || len(frac) > 2)) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, value)
	}
	if !digitsOnly(whole) || !digitsOnly(frac) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, value)
	}

	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, value)
	}
	for len(frac) < 2 {
		frac += "0"
	}
	cents, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, value)
	}
	if units > (1<<63-1-cents)/100 {
		return 0, fmt.Errorf("%w: %q overflows", ErrInvalidAmount, value)
	}
	return units*100 + cents, nil
}

// Convert divides an amount by an exchange rate expressed in minor units of the
// source currency per one unit of the target currency, rounding half up.
func Convert(minor, ratePerUnit int64) (int64, error) {
	if ratePerUnit <= 0 {
		return 0, fmt.Errorf("%w: rate must be positive", ErrInvalidAmount)
	}
	if minor < 0 {
		return 0, ErrNegativeAmount
	}
	return (minor*100 + ratePerUnit/2) / ratePerUnit, nil
}

func digitsOnly(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
