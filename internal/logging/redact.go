package logging

import (
	"log/slog"
	"strings"
)

const redacted = "[redacted]"

// sensitiveKeys are attribute keys whose values never reach a log sink.
// Matching is case-insensitive and ignores the group prefix.
var sensitiveKeys = map[string]struct{}{
	"email":          {},
	"customer_email": {},
	"phone":          {},
	"address":        {},
	"client_token":   {},
	"card_token":     {},
	"authorization":  {},
	"secret":         {},
}

// ReplaceAttr is a slog.HandlerOptions.ReplaceAttr that masks customer
// contact details and credentials.
func ReplaceAttr(_ []string, attr slog.Attr) slog.Attr {
	if _, ok := sensitiveKeys[strings.ToLower(attr.Key)]; ok && attr.Value.Kind() != slog.KindGroup {
		return slog.String(attr.Key, redacted)
	}
	return attr
}
