package checkout

import "github.com/ceylongems/storefront/internal/models"

// ShippingPolicy is a flat fee waived at or above a subtotal threshold.
// A zero threshold disables free shipping.
type ShippingPolicy struct {
	FlatFee               int64
	FreeShippingThreshold int64
}

type Totals struct {
	Subtotal int64 `json:"subtotal"`
	Shipping int64 `json:"shipping"`
	Discount int64 `json:"discount"`
	Total    int64 `json:"total"`
}

func ComputeTotals(items []models.LineItem, policy ShippingPolicy) Totals {
	var subtotal int64
	for _, item := range items {
		if item.Quantity <= 0 {
			continue
		}
		subtotal += item.UnitPrice * int64(item.Quantity)
	}

	shipping := policy.ShippingFor(subtotal)
	if len(items) == 0 {
		shipping = 0
	}

	var discount int64
	return Totals{
		Subtotal: subtotal,
		Shipping: shipping,
		Discount: discount,
		Total:    subtotal - discount + shipping,
	}
}

func (p ShippingPolicy) ShippingFor(subtotal int64) int64 {
	if p.FreeShippingThreshold > 0 && subtotal >= p.FreeShippingThreshold {
		return 0
	}
	return p.FlatFee
}
