package reconcile

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ceylongems/storefront/internal/models"
	"github.com/ceylongems/storefront/internal/ordertest"
)

type recordingNotifier struct {
	mu   sync.Mutex
	paid []string
}

func (n *recordingNotifier) OrderPaid(_ context.Context, order *models.Order) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.paid = append(n.paid, order.OrderNumber)
	return nil
}

var baseTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func seed(store *ordertest.Store, number string, status models.PaymentStatus, metadata map[string]any) {
	if metadata == nil {
		metadata = map[string]any{}
	}
	store.Put(&models.Order{
		OrderNumber:   number,
		PaymentMethod: models.MethodPayPal,
		PaymentStatus: status,
		Status:        models.StatusPending,
		TotalMinor:    10000,
		Currency:      "LKR",
		Metadata:      metadata,
		CreatedAt:     baseTime,
	})
}

func completed(number string, at time.Time) Confirmation {
	return Confirmation{
		Provider:    "paypal",
		Source:      SourceWebhook,
		EventID:     "WH-" + number,
		Kind:        KindCompleted,
		OrderNumber: number,
		CaptureKey:  "paypal_capture_id",
		CaptureID:   "CAP-" + number,
		OccurredAt:  at,
		Metadata: map[string]any{
			"paypal_capture_id":      "CAP-" + number,
			"paypal_captured_amount": "100.00",
		},
	}
}

func TestApplyCompletedIsIdempotent(t *testing.T) {
	t.Parallel()

	store := ordertest.NewStore()
	seed(store, "ORDER-1", models.PaymentPending, nil)
	notifier := &recordingNotifier{}
	r := New(store, notifier, nil, nil)
	ctx := context.Background()

	outcome, err := r.Apply(ctx, completed("ORDER-1", baseTime))
	if err != nil || outcome != models.OutcomeApplied {
		t.Fatalf("expected applied, got %s (%v)", outcome, err)
	}

	outcome, err = r.Apply(ctx, completed("ORDER-1", baseTime))
	if err != nil || outcome != models.OutcomeNoop {
		t.Fatalf("expected noop on replay, got %s (%v)", outcome, err)
	}

	order, err := store.GetByOrderNumber(ctx, "ORDER-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if order.PaymentStatus != models.PaymentPaid || order.Status != models.StatusProcessing {
		t.Fatalf("unexpected status %s/%s", order.PaymentStatus, order.Status)
	}
	if order.MetadataString("paypal_captured_amount") != "100.00" {
		t.Fatalf("expected captured amount metadata, got %+v", order.Metadata)
	}
	if len(notifier.paid) != 1 {
		t.Fatalf("expected exactly one paid notification, got %d", len(notifier.paid))
	}
}

func TestApplyDeniedAfterPaidIsConflict(t *testing.T) {
	t.Parallel()

	store := ordertest.NewStore()
	seed(store, "ORDER-2", models.PaymentPending, nil)
	r := New(store, nil, nil, nil)
	ctx := context.Background()

	if _, err := r.Apply(ctx, completed("ORDER-2", baseTime)); err != nil {
		t.Fatalf("complete: %v", err)
	}

	denied := completed("ORDER-2", baseTime.Add(time.Minute))
	denied.Kind = KindDenied
	outcome, err := r.Apply(ctx, denied)
	if err != nil || outcome != models.OutcomeConflict {
		t.Fatalf("expected conflict, got %s (%v)", outcome, err)
	}

	order, _ := store.GetByOrderNumber(ctx, "ORDER-2")
	if order.PaymentStatus != models.PaymentPaid {
		t.Fatalf("expected order to stay paid, got %s", order.PaymentStatus)
	}
}

func TestApplyStaleEventIsIgnored(t *testing.T) {
	t.Parallel()

	store := ordertest.NewStore()
	seed(store, "ORDER-3", models.PaymentPending, nil)
	r := New(store, nil, nil, nil)
	ctx := context.Background()

	denied := completed("ORDER-3", baseTime.Add(time.Hour))
	denied.Kind = KindDenied
	if outcome, err := r.Apply(ctx, denied); err != nil || outcome != models.OutcomeApplied {
		t.Fatalf("expected denial to apply, got %s (%v)", outcome, err)
	}

	outcome, err := r.Apply(ctx, completed("ORDER-3", baseTime))
	if err != nil || outcome != models.OutcomeStale {
		t.Fatalf("expected stale, got %s (%v)", outcome, err)
	}

	order, _ := store.GetByOrderNumber(ctx, "ORDER-3")
	if order.PaymentStatus != models.PaymentFailed || order.Status != models.StatusCancelled {
		t.Fatalf("unexpected status %s/%s", order.PaymentStatus, order.Status)
	}
}

func TestApplyComparesEventTimesInWholeSeconds(t *testing.T) {
	t.Parallel()

	store := ordertest.NewStore()
	seed(store, "ORDER-7", models.PaymentPending, nil)
	r := New(store, nil, nil, nil)
	ctx := context.Background()

	// A synchronous charge stamped mid-second, then the webhook for it.
	charge := completed("ORDER-7", baseTime.Add(700*time.Millisecond))
	charge.Source = SourceCapture
	if outcome, err := r.Apply(ctx, charge); err != nil || outcome != models.OutcomeApplied {
		t.Fatalf("expected applied, got %s (%v)", outcome, err)
	}

	order, _ := store.GetByOrderNumber(ctx, "ORDER-7")
	if !order.LastEventAt.Equal(baseTime) {
		t.Fatalf("expected last event at %v, got %v", baseTime, order.LastEventAt)
	}

	outcome, err := r.Apply(ctx, completed("ORDER-7", baseTime))
	if err != nil || outcome != models.OutcomeNoop {
		t.Fatalf("expected noop for the webhook, got %s (%v)", outcome, err)
	}
}

func TestApplyRefundResolvesByCaptureID(t *testing.T) {
	t.Parallel()

	store := ordertest.NewStore()
	seed(store, "ORDER-4", models.PaymentPending, nil)
	r := New(store, nil, nil, nil)
	ctx := context.Background()

	if _, err := r.Apply(ctx, completed("ORDER-4", baseTime)); err != nil {
		t.Fatalf("complete: %v", err)
	}

	refund := Confirmation{
		Provider:   "paypal",
		Source:     SourceWebhook,
		EventID:    "WH-refund",
		Kind:       KindRefunded,
		CaptureKey: "paypal_capture_id",
		CaptureID:  "CAP-ORDER-4",
		OccurredAt: baseTime.Add(24 * time.Hour),
		Metadata:   map[string]any{"paypal_refund_id": "RF-1"},
	}
	outcome, err := r.Apply(ctx, refund)
	if err != nil || outcome != models.OutcomeApplied {
		t.Fatalf("expected refund to apply, got %s (%v)", outcome, err)
	}

	order, _ := store.GetByOrderNumber(ctx, "ORDER-4")
	if order.PaymentStatus != models.PaymentRefunded || order.Status != models.StatusRefunded {
		t.Fatalf("unexpected status %s/%s", order.PaymentStatus, order.Status)
	}
	if order.MetadataString("paypal_refund_id") != "RF-1" {
		t.Fatalf("expected refund metadata, got %+v", order.Metadata)
	}
}

func TestApplyUnmatchedAndReversed(t *testing.T) {
	t.Parallel()

	store := ordertest.NewStore()
	seed(store, "ORDER-5", models.PaymentPaid, map[string]any{"paypal_capture_id": "CAP-5"})
	r := New(store, nil, nil, nil)
	ctx := context.Background()

	outcome, err := r.Apply(ctx, completed("ORDER-404", baseTime))
	if err != nil || outcome != models.OutcomeUnmatched {
		t.Fatalf("expected unmatched, got %s (%v)", outcome, err)
	}
	if store.Len() != 1 {
		t.Fatalf("expected no order to be created")
	}

	reversed := completed("ORDER-5", baseTime)
	reversed.Kind = KindReversed
	outcome, err = r.Apply(ctx, reversed)
	if err != nil || outcome != models.OutcomeManualReview {
		t.Fatalf("expected manual review, got %s (%v)", outcome, err)
	}
	order, _ := store.GetByOrderNumber(ctx, "ORDER-5")
	if order.PaymentStatus != models.PaymentPaid {
		t.Fatalf("expected reversal to leave status unchanged, got %s", order.PaymentStatus)
	}
}

func TestApplyRefundForPendingOrderIsConflict(t *testing.T) {
	t.Parallel()

	store := ordertest.NewStore()
	seed(store, "ORDER-6", models.PaymentPending, nil)
	r := New(store, nil, nil, nil)

	refund := completed("ORDER-6", baseTime)
	refund.Kind = KindRefunded
	outcome, err := r.Apply(context.Background(), refund)
	if err != nil || outcome != models.OutcomeConflict {
		t.Fatalf("expected conflict, got %s (%v)", outcome, err)
	}
}
