package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

type recordingHandler struct {
	level   slog.Level
	records []slog.Record
	err     error
}

func (h *recordingHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *recordingHandler) Handle(_ context.Context, record slog.Record) error {
	h.records = append(h.records, record)
	return h.err
}

func (h *recordingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *recordingHandler) WithGroup(string) slog.Handler      { return h }

func TestMultiHandlerRespectsEachLevel(t *testing.T) {
	t.Parallel()

	debug := &recordingHandler{level: slog.LevelDebug}
	errorsOnly := &recordingHandler{level: slog.LevelError}
	logger := slog.New(MultiHandler(debug, nil, errorsOnly))

	logger.Info("order created")
	logger.Error("capture failed")

	if len(debug.records) != 2 {
		t.Fatalf("debug handler records = %d, want 2", len(debug.records))
	}
	if len(errorsOnly.records) != 1 || errorsOnly.records[0].Message != "capture failed" {
		t.Fatalf("error handler records = %+v", errorsOnly.records)
	}
}

func TestMultiHandlerJoinsErrors(t *testing.T) {
	t.Parallel()

	errA := errors.New("sink a down")
	errB := errors.New("sink b down")
	handler := MultiHandler(&recordingHandler{err: errA}, &recordingHandler{err: errB})

	err := handler.Handle(context.Background(), slog.NewRecord(time.Now(), slog.LevelInfo, "msg", 0))
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Fatalf("Handle error = %v, want both sink errors", err)
	}
}

func TestMultiHandlerWithoutHandlersDiscards(t *testing.T) {
	t.Parallel()

	if MultiHandler(nil, nil).Enabled(context.Background(), slog.LevelError) {
		t.Fatal("empty multi handler should not be enabled")
	}
}

func TestReplaceAttrMasksCustomerDetails(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{ReplaceAttr: ReplaceAttr}))
	logger.Info("bank transfer order recorded",
		"order_number", "ORDER-1700000000001",
		"email", "nimal@example.com",
		"Phone", "+94771234567",
	)

	out := buf.String()
	for _, leaked := range []string{"nimal@example.com", "+94771234567"} {
		if strings.Contains(out, leaked) {
			t.Fatalf("log output leaked %q: %s", leaked, out)
		}
	}
	if !strings.Contains(out, "ORDER-1700000000001") {
		t.Fatalf("log output lost order number: %s", out)
	}
}

func TestWithStoresEnrichedLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))

	ctx, _ := With(context.Background(), base, "order_reference", "ORDER-1")
	FromContext(ctx, nil).Info("draft saved")

	if !strings.Contains(buf.String(), "order_reference=ORDER-1") {
		t.Fatalf("context logger missing attribute: %s", buf.String())
	}
}

func TestFromContextFallsBackToDiscard(t *testing.T) {
	t.Parallel()

	if FromContext(context.Background(), nil) == nil {
		t.Fatal("FromContext returned nil logger")
	}
}
