package db

import (
	"context"
	"strings"

	"github.com/getsentry/sentry-go"
	"github.com/jackc/pgx/v5"
)

type querySpanContextKey struct{}

// queryTracer opens a Sentry child span per statement when the caller is
// already inside a transaction span.
type queryTracer struct{}

func newQueryTracer() *queryTracer {
	return &queryTracer{}
}

func (t *queryTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	if sentry.SpanFromContext(ctx) == nil {
		return ctx
	}

	statement := normalizeQuery(data.SQL)
	span := sentry.StartSpan(
		ctx,
		"db.sql.query",
		sentry.WithDescription(statement),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	span.SetData("db.system", "postgresql")
	if table := queryTable(statement); table != "" {
		span.SetData("db.sql.table", table)
	}
	if operation := queryOperation(statement); operation != "" {
		span.SetData("db.operation", operation)
	}

	return context.WithValue(span.Context(), querySpanContextKey{}, span)
}

func (t *queryTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	span, _ := ctx.Value(querySpanContextKey{}).(*sentry.Span)
	if span == nil {
		return
	}

	if data.Err != nil {
		span.Status = sentry.SpanStatusInternalError
		span.SetData("db.error", data.Err.Error())
	} else {
		span.Status = sentry.SpanStatusOK
		span.SetData("db.rows_affected", data.CommandTag.RowsAffected())
	}
	span.Finish()
}

func normalizeQuery(query string) string {
	normalized := strings.Join(strings.Fields(query), " ")
	if normalized == "" {
		return "sql.query"
	}
	const maxLen = 512
	if len(normalized) > maxLen {
		return normalized[:maxLen]
	}
	return normalized
}

func queryOperation(query string) string {
	operation, _, _ := strings.Cut(query, " ")
	return strings.ToUpper(operation)
}

// queryTable picks the table name following FROM, INTO or UPDATE.
func queryTable(query string) string {
	fields := strings.Fields(query)
	for i, field := range fields {
		switch strings.ToUpper(field) {
		case "FROM", "INTO", "UPDATE":
			if i+1 < len(fields) {
				return strings.Trim(fields[i+1], `"(`)
			}
		}
	}
	return ""
}
