// Package logger provides structured logging using log/slog. It sets up a
// JSON handler with service-level context and propagates a tick
// correlation ID through context.Context so every log line touched by one
// tick's processing can be joined back together.
package logger

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"signalcore/internal/model"
)

type ctxKey string

const tickIDKey ctxKey = "tick_id"

// Init creates and returns a structured logger for the given service. The
// logger outputs JSON to stdout with the service name embedded, and is
// also installed as the slog default.
func Init(service string, level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})

	logger := slog.New(handler).With(
		slog.String("service", service),
	)

	slog.SetDefault(logger)
	return logger
}

// WithTickID stores a tick correlation ID in the context for downstream
// propagation.
func WithTickID(ctx context.Context, tickID string) context.Context {
	return context.WithValue(ctx, tickIDKey, tickID)
}

// TickID extracts the tick correlation ID from context. Returns "" if not set.
func TickID(ctx context.Context) string {
	if v, ok := ctx.Value(tickIDKey).(string); ok {
		return v
	}
	return ""
}

// GenerateTickID builds a correlation ID from an instrument and a
// millisecond timestamp: "{instrument}-{ts}".
func GenerateTickID(instrument string, ts int64) string {
	return fmt.Sprintf("%s-%d", instrument, ts)
}

// WithTick returns slog attributes including the tick ID from context.
// Usage: slog.Info("msg", logger.WithTick(ctx)...)
func WithTick(ctx context.Context) []any {
	tid := TickID(ctx)
	if tid == "" {
		return nil
	}
	return []any{slog.String("tick_id", tid)}
}

// WithRegime returns slog attributes identifying the market regime and
// timeframe driving a fusion decision, for log lines emitted around a
// Trigger or FilterReset so an operator can correlate a rejected order or
// a filter reset with the regime classification in force at the time.
func WithRegime(regime model.Regime, tf string) []any {
	return []any{slog.String("regime", string(regime)), slog.String("timeframe", tf)}
}
