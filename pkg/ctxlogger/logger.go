package ctxlogger

import (
	"context"

	"github.com/IsaacDSC/gquery/pkg/logs"
)

type loggerKey struct{}

// WithLogger stores logger in ctx so downstream calls log with the same attributes.
func WithLogger(ctx context.Context, logger *logs.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// GetLogger returns the logger carried by ctx, or logs.Default().
func GetLogger(ctx context.Context) *logs.Logger {
	if logger, ok := ctx.Value(loggerKey{}).(*logs.Logger); ok {
		return logger
	}

	return logs.Default()
}

// With returns ctx carrying the current logger enriched with args.
func With(ctx context.Context, args ...any) context.Context {
	return WithLogger(ctx, GetLogger(ctx).With(args...))
}
