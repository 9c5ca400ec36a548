package payments

import (
	"context"
	"net/url"

	"github.com/ceylongems/storefront/internal/checkout"
	"github.com/ceylongems/storefront/internal/models"
	"github.com/ceylongems/storefront/internal/observability"
	"github.com/ceylongems/storefront/internal/storeconfig"
)

type BankTransferResult struct {
	OrderNumber string
	BankDetails storeconfig.BankDetails
	RedirectURL string
}

// RecordBankTransfer persists an order awaiting a manual transfer. No
// provider is involved; reconciliation happens outside this service.
func (s *Service) RecordBankTransfer(ctx context.Context, input CheckoutInput) (result *BankTransferResult, err error) {
	span, ctx := startSpan(ctx, "bank_transfer", "RecordBankTransfer")
	defer func() { finishSpan(span, err) }()

	draft, err := s.SaveDraft(ctx, input.Draft)
	if err != nil {
		return nil, err
	}
	logger := s.loggerFromContext(ctx).With("order_reference", draft.OrderReference, "payment_method", checkout.MethodBankTransfer)

	if err := checkAmount("total", input.Total, draft.Totals.Total); err != nil {
		return nil, err
	}
	if err := s.ensurePayable(ctx, draft.OrderReference); err != nil {
		return nil, err
	}
	attempt, err := s.attemptFor(ctx, draft, checkout.MethodBankTransfer, "")
	if err != nil {
		return nil, err
	}

	order, err := s.persistPending(ctx, draft, checkout.MethodBankTransfer, map[string]any{
		models.MetaAttemptID: attempt.ID,
	})
	if err != nil {
		return nil, err
	}
	s.finishDraft(ctx, logger, draft.OrderReference, attempt.ID)

	if s.mailer != nil {
		if err := s.mailer.SendBankTransferInstructions(ctx, order, s.settings.BankTransfer); err != nil {
			logger.Error("failed to send bank transfer instructions", "error", err)
		}
	}

	observability.MeterFromContext(ctx).Count("payment.initiated", 1)
	logger.Info("bank transfer order recorded")
	return &BankTransferResult{
		OrderNumber: order.OrderNumber,
		BankDetails: s.settings.BankTransfer,
		RedirectURL: s.redirectURL(s.settings.SuccessPath, url.Values{
			"order":          {order.OrderNumber},
			"payment_method": {string(checkout.MethodBankTransfer)},
		}),
	}, nil
}
