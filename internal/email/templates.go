package email

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"text/template"

	"github.com/ceylongems/storefront/internal/storeconfig"
)

const (
	TemplatePaymentConfirmation = "payment_confirmation"
	TemplateBankTransfer        = "bank_transfer_instructions"
)

// OrderInfo is the data every order email renders from.
type OrderInfo struct {
	StoreName       string
	OrderNumber     string
	OrderDate       string
	CustomerName    string
	CustomerEmail   string
	PaymentMethod   string
	ShippingAddress string
	Items           []OrderItem
	Subtotal        string
	Shipping        string
	Discount        string
	Total           string
	Currency        string
	Bank            *storeconfig.BankDetails
}

type OrderItem struct {
	Name       string
	Options    string
	Quantity   int
	TotalPrice string
}

var subjects = map[string]string{
	TemplatePaymentConfirmation: "Payment received - {{.OrderNumber}} - {{.StoreName}}",
	TemplateBankTransfer:        "Bank transfer details for order {{.OrderNumber}} - {{.StoreName}}",
}

// Renderer renders the built-in order templates. Safe for concurrent use.
type Renderer struct {
	text    *template.Template
	html    *htmltemplate.Template
	subject *template.Template
}

func NewRenderer() (*Renderer, error) {
	text := template.New("text")
	html := htmltemplate.New("html")
	subject := template.New("subject")

	for name, body := range map[string]string{
		TemplatePaymentConfirmation: paymentConfirmationText,
		TemplateBankTransfer:        bankTransferText,
	} {
		if _, err := text.New(name).Parse(body); err != nil {
			return nil, fmt.Errorf("failed to parse text template %s: %w", name, err)
		}
	}
	for name, body := range map[string]string{
		TemplatePaymentConfirmation: paymentConfirmationHTML,
		TemplateBankTransfer:        bankTransferHTML,
	} {
		if _, err := html.New(name).Parse(layoutHTMLStart + body + layoutHTMLEnd); err != nil {
			return nil, fmt.Errorf("failed to parse HTML template %s: %w", name, err)
		}
	}
	for name, body := range subjects {
		if _, err := subject.New(name).Parse(body); err != nil {
			return nil, fmt.Errorf("failed to parse subject template %s: %w", name, err)
		}
	}

	return &Renderer{text: text, html: html, subject: subject}, nil
}

func (r *Renderer) Render(name string, data *OrderInfo) (*Email, error) {
	if data == nil {
		return nil, fmt.Errorf("order info is required")
	}

	var subjectBuf, textBuf, htmlBuf bytes.Buffer
	if err := r.subject.ExecuteTemplate(&subjectBuf, name, data); err != nil {
		return nil, fmt.Errorf("failed to render subject: %w", err)
	}
	if err := r.text.ExecuteTemplate(&textBuf, name, data); err != nil {
		return nil, fmt.Errorf("failed to render text template: %w", err)
	}
	if err := r.html.ExecuteTemplate(&htmlBuf, name, data); err != nil {
		return nil, fmt.Errorf("failed to render HTML template: %w", err)
	}

	return &Email{
		To:      data.CustomerEmail,
		Subject: subjectBuf.String(),
		Text:    textBuf.String(),
		HTML:    htmlBuf.String(),
	}, nil
}

const paymentConfirmationText = `Thank you for your order, {{.CustomerName}}!

We have received your payment.

Order Number: {{.OrderNumber}}
Order Date: {{.OrderDate}}
Payment Method: {{.PaymentMethod}}

Items:
{{range .Items}}- {{.Name}}{{if .Options}} ({{.Options}}){{end}} x{{.Quantity}} - {{.TotalPrice}}
{{end}}
Subtotal: {{.Subtotal}}
Shipping: {{.Shipping}}
Total: {{.Currency}} {{.Total}}

Shipping to:
{{.ShippingAddress}}

We will let you know when your jewellery is on its way.

{{.StoreName}}
`

const bankTransferText = `Thank you for your order, {{.CustomerName}}!

Your order {{.OrderNumber}} is reserved and will be processed once we receive your transfer of {{.Currency}} {{.Total}}.

{{with .Bank}}Bank: {{.BankName}}
Account name: {{.AccountName}}
Account number: {{.AccountNumber}}
{{if .Branch}}Branch: {{.Branch}}
{{end}}{{if .SwiftCode}}SWIFT: {{.SwiftCode}}
{{end}}{{if .Instructions}}
{{.Instructions}}
{{end}}{{end}}
Items:
{{range .Items}}- {{.Name}}{{if .Options}} ({{.Options}}){{end}} x{{.Quantity}} - {{.TotalPrice}}
{{end}}
{{.StoreName}}
`

const layoutHTMLStart = `<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <style>
    body { font-family: Georgia, 'Times New Roman', serif; line-height: 1.6; color: #2b2b2b; max-width: 600px; margin: 0 auto; padding: 20px; }
    .header { background: #1f3a5f; color: #f5e9d3; padding: 20px; text-align: center; }
    .content { background: #fbf8f3; padding: 20px; border: 1px solid #e8e0d2; }
    .items { width: 100%; border-collapse: collapse; margin: 15px 0; }
    .items td { padding: 8px; border-bottom: 1px solid #e8e0d2; }
    .total { font-weight: bold; text-align: right; }
    .bank { background: #ffffff; padding: 15px; border-left: 4px solid #1f3a5f; margin: 15px 0; }
  </style>
</head>
<body>
`

const layoutHTMLEnd = `
</body>
</html>
`

const itemsHTML = `
    <table class="items">
      {{range .Items}}
      <tr>
        <td>{{.Name}}{{if .Options}}<br><small>{{.Options}}</small>{{end}}</td>
        <td>x{{.Quantity}}</td>
        <td>{{.TotalPrice}}</td>
      </tr>
      {{end}}
    </table>
`

const paymentConfirmationHTML = `  <div class="header">
    <h1>{{.StoreName}}</h1>
    <p>Payment received. Thank you, {{.CustomerName}}.</p>
  </div>
  <div class="content">
    <p><strong>Order Number:</strong> {{.OrderNumber}}<br>
    <strong>Order Date:</strong> {{.OrderDate}}<br>
    <strong>Payment Method:</strong> {{.PaymentMethod}}</p>
` + itemsHTML + `
    <p class="total">Subtotal: {{.Subtotal}}<br>Shipping: {{.Shipping}}<br>Total: {{.Currency}} {{.Total}}</p>
    <p><strong>Shipping to:</strong><br>{{.ShippingAddress}}</p>
  </div>`

const bankTransferHTML = `  <div class="header">
    <h1>{{.StoreName}}</h1>
    <p>Your order {{.OrderNumber}} is reserved.</p>
  </div>
  <div class="content">
    <p>Please transfer <strong>{{.Currency}} {{.Total}}</strong> to the account below. We will process your order once the payment arrives.</p>
    {{with .Bank}}
    <div class="bank">
      <strong>{{.BankName}}</strong><br>
      Account name: {{.AccountName}}<br>
      Account number: {{.AccountNumber}}<br>
      {{if .Branch}}Branch: {{.Branch}}<br>{{end}}
      {{if .SwiftCode}}SWIFT: {{.SwiftCode}}<br>{{end}}
      {{if .Instructions}}<p>{{.Instructions}}</p>{{end}}
    </div>
    {{end}}
` + itemsHTML + `
  </div>`
