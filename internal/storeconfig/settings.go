// Package storeconfig loads the store settings file: currency, shipping and
// bank details.
package storeconfig

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ceylongems/storefront/internal/checkout"
	"github.com/ceylongems/storefront/internal/money"
)

type File struct {
	Store        StoreSection    `yaml:"store"`
	Shipping     ShippingSection `yaml:"shipping"`
	PayPal       PayPalSection   `yaml:"paypal"`
	BankTransfer BankDetails     `yaml:"bank_transfer"`
	Pages        PagesSection    `yaml:"pages"`
	Drafts       DraftsSection   `yaml:"drafts"`
}

type StoreSection struct {
	Name     string `yaml:"name"`
	Currency string `yaml:"currency"`
}

type ShippingSection struct {
	FlatFee               string `yaml:"flat_fee"`
	FreeShippingThreshold string `yaml:"free_shipping_threshold"`
}

// PayPalSection configures the currency PayPal is charged in. PayPal does not
// settle LKR, so store totals are converted at a fixed rate.
type PayPalSection struct {
	Currency     string `yaml:"currency"`
	ExchangeRate string `yaml:"exchange_rate"`
}

type BankDetails struct {
	BankName      string `yaml:"bank_name" json:"bankName"`
	AccountName   string `yaml:"account_name" json:"accountName"`
	AccountNumber string `yaml:"account_number" json:"accountNumber"`
	Branch        string `yaml:"branch" json:"branch,omitempty"`
	SwiftCode     string `yaml:"swift_code" json:"swiftCode,omitempty"`
	Instructions  string `yaml:"instructions" json:"instructions,omitempty"`
}

type PagesSection struct {
	Success string `yaml:"success"`
	Failure string `yaml:"failure"`
}

type DraftsSection struct {
	TTL string `yaml:"ttl"`
}

// Settings is the validated, typed form of File.
type Settings struct {
	StoreName          string
	Currency           string
	Shipping           checkout.ShippingPolicy
	PayPalCurrency     string
	PayPalExchangeRate int64
	BankTransfer       BankDetails
	SuccessPath        string
	FailurePath        string
	DraftTTL           time.Duration
}

const defaultSettingsYAML = `
store:
  name: "Ceylon Gems"
  currency: "LKR"
shipping:
  flat_fee: "350.00"
  free_shipping_threshold: "50000.00"
paypal:
  currency: "USD"
  exchange_rate: "300.00"
bank_transfer:
  bank_name: "Commercial Bank of Ceylon"
  account_name: "Ceylon Gems (Pvt) Ltd"
  account_number: "1000000000"
  branch: "Colombo 03"
  swift_code: "CCEYLKLX"
  instructions: "Use your order number as the payment reference."
pages:
  success: "/checkout/success"
  failure: "/checkout/failed"
drafts:
  ttl: "2h"
`

func Parse(content []byte) (*Settings, error) {
	var file File
	if err := yaml.Unmarshal(content, &file); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return file.settings()
}

// Load reads path, or returns the built-in defaults when path is empty.
func Load(path string) (*Settings, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read store settings: %w", err)
	}
	return Parse(content)
}

func Default() *Settings {
	settings, err := Parse([]byte(defaultSettingsYAML))
	if err != nil {
		panic(fmt.Sprintf("invalid default store settings: %v", err))
	}
	return settings
}

func (f *File) settings() (*Settings, error) {
	if err := f.validate(); err != nil {
		return nil, err
	}

	flatFee, err := money.Parse(f.Shipping.FlatFee)
	if err != nil {
		return nil, fmt.Errorf("shipping.flat_fee: %w", err)
	}
	var threshold int64
	if strings.TrimSpace(f.Shipping.FreeShippingThreshold) != "" {
		threshold, err = money.Parse(f.Shipping.FreeShippingThreshold)
		if err != nil {
			return nil, fmt.Errorf("shipping.free_shipping_threshold: %w", err)
		}
	}

	currency := strings.ToUpper(strings.TrimSpace(f.Store.Currency))
	paypalCurrency := strings.ToUpper(strings.TrimSpace(f.PayPal.Currency))
	if paypalCurrency == "" {
		paypalCurrency = currency
	}
	rate := int64(100)
	if strings.TrimSpace(f.PayPal.ExchangeRate) != "" {
		rate, err = money.Parse(f.PayPal.ExchangeRate)
		if err != nil {
			return nil, fmt.Errorf("paypal.exchange_rate: %w", err)
		}
		if rate == 0 {
			return nil, fmt.Errorf("paypal.exchange_rate must be positive")
		}
	}
	if paypalCurrency == currency && rate != 100 {
		return nil, fmt.Errorf("paypal.exchange_rate must be 1.00 when paypal.currency matches the store currency")
	}

	ttl := 2 * time.Hour
	if raw := strings.TrimSpace(f.Drafts.TTL); raw != "" {
		ttl, err = time.ParseDuration(raw)
		if err != nil || ttl <= 0 {
			return nil, fmt.Errorf("drafts.ttl must be a positive duration")
		}
	}

	return &Settings{
		StoreName: strings.TrimSpace(f.Store.Name),
		Currency:  currency,
		Shipping: checkout.ShippingPolicy{
			FlatFee:               flatFee,
			FreeShippingThreshold: threshold,
		},
		PayPalCurrency:     paypalCurrency,
		PayPalExchangeRate: rate,
		BankTransfer:       f.BankTransfer,
		SuccessPath:        f.Pages.Success,
		FailurePath:        f.Pages.Failure,
		DraftTTL:           ttl,
	}, nil
}

func (f *File) validate() error {
	if strings.TrimSpace(f.Store.Name) == "" {
		return fmt.Errorf("store.name is required")
	}
	if len(strings.TrimSpace(f.Store.Currency)) != 3 {
		return fmt.Errorf("store.currency must be a 3-letter ISO code")
	}
	if c := strings.TrimSpace(f.PayPal.Currency); c != "" && len(c) != 3 {
		return fmt.Errorf("paypal.currency must be a 3-letter ISO code")
	}
	if strings.TrimSpace(f.Shipping.FlatFee) == "" {
		return fmt.Errorf("shipping.flat_fee is required")
	}

	bank := f.BankTransfer
	if strings.TrimSpace(bank.BankName) == "" || strings.TrimSpace(bank.AccountName) == "" || strings.TrimSpace(bank.AccountNumber) == "" {
		return fmt.Errorf("bank_transfer requires bank_name, account_name and account_number")
	}

	for name, path := range map[string]string{"pages.success": f.Pages.Success, "pages.failure": f.Pages.Failure} {
		if !strings.HasPrefix(path, "/") {
			return fmt.Errorf("%s must be an absolute path", name)
		}
	}
	return nil
}

// ToPayPalAmount converts a store-currency amount into PayPal's currency.
func (s *Settings) ToPayPalAmount(minor int64) (int64, error) {
	if s.PayPalCurrency == s.Currency {
		return minor, nil
	}
	return money.Convert(minor, s.PayPalExchangeRate)
}
