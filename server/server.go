package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/ceylongems/storefront/internal/config"
	"github.com/ceylongems/storefront/internal/handlers"
	"github.com/ceylongems/storefront/internal/observability"
)

type Server struct {
	cfg        *config.Config
	logger     *slog.Logger
	handlers   *handlers.Handlers
	metrics    *observability.Metrics
	httpServer *http.Server
}

func New(cfg *config.Config, logger *slog.Logger, h *handlers.Handlers, metrics *observability.Metrics) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if h == nil {
		return nil, fmt.Errorf("handlers are required")
	}

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		handlers: h,
		metrics:  metrics,
	}

	s.httpServer = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           s.buildRouter(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		// PayPal capture and Stripe confirmation can take a while.
		WriteTimeout:   45 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	return s, nil
}

func (s *Server) Run() error {
	s.logger.Info("server starting", "port", s.cfg.Port)

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Close(ctx context.Context) error {
	if s == nil || s.httpServer == nil {
		return nil
	}

	s.logger.Info("server shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) buildRouter() *mux.Router {
	h := s.handlers

	r := mux.NewRouter()
	r.Use(h.RequestLogger)
	r.Use(h.MetricsContext)
	r.Use(h.SecurityHeaders)
	r.HandleFunc("/health", h.Health).Methods("GET").Name("health")
	r.Handle("/metrics", s.metrics.Handler()).Methods("GET").Name("metrics")

	// Provider callbacks are server-to-server and authenticated by signature.
	r.HandleFunc("/webhooks/paypal", h.PayPalWebhook).Methods("POST").Name("webhooks.paypal")
	r.HandleFunc("/webhooks/payzy", h.PayzyWebhook).Methods("POST").Name("webhooks.payzy")
	r.HandleFunc("/webhooks/stripe", h.StripeWebhook).Methods("POST").Name("webhooks.stripe")

	r.HandleFunc("/checkout/payzy/return", h.PayzyReturn).Methods("GET").Name("checkout.payzy.return")

	r.NotFoundHandler = http.HandlerFunc(h.NotFound)

	checkoutRouter := r.PathPrefix("/api/checkout").Subrouter()
	checkoutRouter.Use(h.RequireSameOrigin)
	checkoutRouter.Use(h.RateLimit("checkout"))
	checkoutRouter.HandleFunc("/methods", h.PaymentMethods).Methods("GET").Name("checkout.methods")
	checkoutRouter.HandleFunc("/drafts", h.SaveDraft).Methods("POST").Name("checkout.drafts.save")
	checkoutRouter.HandleFunc("/drafts/{reference}", h.GetDraft).Methods("GET").Name("checkout.drafts.get")
	checkoutRouter.HandleFunc("/drafts/{reference}/attempts", h.BeginAttempt).Methods("POST").Name("checkout.drafts.attempts")

	paymentsRouter := r.PathPrefix("/api/payments").Subrouter()
	paymentsRouter.Use(h.RequireSameOrigin)
	paymentsRouter.Use(h.RateLimit("payments"))
	paymentsRouter.HandleFunc("/paypal/create", h.PayPalCreateOrder).Methods("POST").Name("payments.paypal.create")
	paymentsRouter.HandleFunc("/paypal/capture", h.PayPalCaptureOrder).Methods("POST").Name("payments.paypal.capture")
	paymentsRouter.HandleFunc("/card/client-token", h.CardClientToken).Methods("GET").Name("payments.card.client_token")
	paymentsRouter.HandleFunc("/card/charge", h.CardCharge).Methods("POST").Name("payments.card.charge")
	paymentsRouter.HandleFunc("/payzy/init", h.PayzyInit).Methods("POST").Name("payments.payzy.init")
	paymentsRouter.HandleFunc("/bank-transfer", h.BankTransfer).Methods("POST").Name("payments.bank_transfer")

	return r
}
