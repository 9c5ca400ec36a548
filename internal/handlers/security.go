package handlers

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/getsentry/sentry-go/attribute"

	"github.com/ceylongems/storefront/internal/config"
	"github.com/ceylongems/storefront/internal/observability"
)

const msgForbiddenOrigin = "This request was not sent from the store."

// SecurityHeaders marks every response as an uncacheable, unframeable API response.
func (h *Handlers) SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers := w.Header()
		headers.Set("X-Content-Type-Options", "nosniff")
		headers.Set("X-Frame-Options", "DENY")
		headers.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		headers.Set("Cross-Origin-Opener-Policy", "same-origin")
		headers.Set("Cross-Origin-Resource-Policy", "same-origin")
		headers.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		headers.Set("Cache-Control", "no-store")

		next.ServeHTTP(w, r)
	})
}

// RequireSameOrigin rejects state-changing checkout calls whose Origin or
// Referer is not the storefront. Webhooks are mounted outside it.
func (h *Handlers) RequireSameOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !requestMutatesState(r.Method) {
			next.ServeHTTP(w, r)
			return
		}

		reason := h.originRejection(r)
		if reason == "" {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		observability.CountFailure(ctx, "security.same_origin.blocked", reason, attribute.String("http.method", r.Method))
		h.loggerFromContext(ctx).Warn("blocked cross-origin checkout request",
			"reason", reason,
			"origin", r.Header.Get("Origin"),
			"referer", r.Header.Get("Referer"),
			"security_event", true,
		)
		writeJSON(w, http.StatusForbidden, errorResponse{Error: msgForbiddenOrigin})
	})
}

// originRejection returns why r fails the origin check, or "" when it passes.
func (h *Handlers) originRejection(r *http.Request) string {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	referer := strings.TrimSpace(r.Header.Get("Referer"))
	if origin == "" && referer == "" {
		return "missing_origin_and_referer"
	}

	allowed := allowedOrigins(h.config)
	if origin != "" && !allowed[normalizeOrigin(origin)] {
		return "invalid_origin"
	}
	if referer != "" && !allowed[normalizeOrigin(referer)] {
		return "invalid_referer"
	}
	return ""
}

func requestMutatesState(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}

func allowedOrigins(cfg *config.Config) map[string]bool {
	allowed := map[string]bool{}
	if cfg == nil {
		return allowed
	}
	for _, raw := range append([]string{cfg.BaseURL}, cfg.AllowedOrigins...) {
		if origin := normalizeOrigin(raw); origin != "" {
			allowed[origin] = true
		}
	}
	return allowed
}

// normalizeOrigin reduces a URL to scheme://host[:port], lowercased.
func normalizeOrigin(raw string) string {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return ""
	}
	return strings.ToLower(parsed.Scheme + "://" + parsed.Host)
}
