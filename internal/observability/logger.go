// Package observability carries structured logging, trace propagation and
// Prometheus metrics.
package observability

import (
	"context"
	"io"
	"log/slog"
	"unicode/utf8"

	"github.com/flightqa/flightqa/internal/config"
)

type ctxKey string

const traceIDKey ctxKey = "trace_id"

// MaxLoggedValueRunes caps prompt and model text in log records. Prompts
// embed the table schema and sample rows and would dominate the logs.
const MaxLoggedValueRunes = 512

var truncatedKeys = map[string]struct{}{
	"prompt":   {},
	"response": {},
	"question": {},
	"sql":      {},
}

func NewLogger(cfg config.Config, writer io.Writer) *slog.Logger {
	if writer == nil {
		writer = io.Discard
	}
	options := &slog.HandlerOptions{Level: cfg.Observability.LogLevel, ReplaceAttr: truncateAttr}
	var handler slog.Handler
	if cfg.Observability.LogJSON {
		handler = slog.NewJSONHandler(writer, options)
	} else {
		handler = slog.NewTextHandler(writer, options)
	}
	return slog.New(handler).With(
		slog.String("service", cfg.Service.Name),
		slog.String("profile", string(cfg.Profile)),
	)
}

func truncateAttr(_ []string, attr slog.Attr) slog.Attr {
	if _, ok := truncatedKeys[attr.Key]; !ok || attr.Value.Kind() != slog.KindString {
		return attr
	}
	value := attr.Value.String()
	if utf8.RuneCountInString(value) <= MaxLoggedValueRunes {
		return attr
	}
	runes := []rune(value)
	return slog.String(attr.Key, string(runes[:MaxLoggedValueRunes])+"...")
}

func ContextWithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

func TraceIDFromContext(ctx context.Context) string {
	value, ok := ctx.Value(traceIDKey).(string)
	if !ok {
		return ""
	}
	return value
}
