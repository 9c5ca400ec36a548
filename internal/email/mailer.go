package email

import (
	"context"
	"fmt"
	"strings"

	"github.com/ceylongems/storefront/internal/models"
	"github.com/ceylongems/storefront/internal/money"
	"github.com/ceylongems/storefront/internal/storeconfig"
)

var paymentMethodLabels = map[models.PaymentMethod]string{
	models.MethodCard:         "Card",
	models.MethodPayPal:       "PayPal",
	models.MethodPayzy:        "Payzy (pay in instalments)",
	models.MethodBankTransfer: "Bank transfer",
}

// OrderMailer sends the customer-facing order emails. A nil provider turns
// every send into a no-op.
type OrderMailer struct {
	provider  Provider
	renderer  *Renderer
	storeName string
}

func NewOrderMailer(provider Provider, storeName string) (*OrderMailer, error) {
	renderer, err := NewRenderer()
	if err != nil {
		return nil, err
	}
	return &OrderMailer{provider: provider, renderer: renderer, storeName: storeName}, nil
}

func (m *OrderMailer) Enabled() bool {
	return m != nil && m.provider != nil
}

// OrderPaid sends the payment confirmation.
func (m *OrderMailer) OrderPaid(ctx context.Context, order *models.Order) error {
	if !m.Enabled() {
		return nil
	}
	return m.send(ctx, TemplatePaymentConfirmation, BuildOrderInfo(m.storeName, order))
}

func (m *OrderMailer) SendBankTransferInstructions(ctx context.Context, order *models.Order, bank storeconfig.BankDetails) error {
	if !m.Enabled() {
		return nil
	}
	info := BuildOrderInfo(m.storeName, order)
	info.Bank = &bank
	return m.send(ctx, TemplateBankTransfer, info)
}

func (m *OrderMailer) send(ctx context.Context, template string, info *OrderInfo) error {
	if info.CustomerEmail == "" {
		return fmt.Errorf("order %s has no customer email", info.OrderNumber)
	}
	message, err := m.renderer.Render(template, info)
	if err != nil {
		return fmt.Errorf("failed to render %s email: %w", template, err)
	}
	return m.provider.SendEmail(ctx, message)
}

func BuildOrderInfo(storeName string, order *models.Order) *OrderInfo {
	info := &OrderInfo{
		StoreName:       storeName,
		OrderNumber:     order.OrderNumber,
		CustomerName:    order.Customer.FullName(),
		CustomerEmail:   order.Customer.Email,
		PaymentMethod:   paymentMethodLabels[order.PaymentMethod],
		ShippingAddress: formatAddress(order.Customer),
		Subtotal:        money.Format(order.SubtotalMinor),
		Shipping:        money.Format(order.ShippingMinor),
		Discount:        money.Format(order.DiscountMinor),
		Total:           money.Format(order.TotalMinor),
		Currency:        order.Currency,
	}
	if !order.CreatedAt.IsZero() {
		info.OrderDate = order.CreatedAt.Format("January 2, 2006")
	}
	for _, item := range order.Items {
		var options []string
		if item.Size != "" {
			options = append(options, "Size "+item.Size)
		}
		if item.Gemstone != "" {
			options = append(options, item.Gemstone)
		}
		info.Items = append(info.Items, OrderItem{
			Name:       item.Name,
			Options:    strings.Join(options, ", "),
			Quantity:   item.Quantity,
			TotalPrice: money.Format(item.UnitPrice * int64(item.Quantity)),
		})
	}
	return info
}

func formatAddress(c models.Customer) string {
	var lines []string
	for _, line := range []string{c.FullName(), c.AddressLine1, c.AddressLine2, strings.TrimSpace(c.City + " " + c.PostalCode), c.Country} {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}
