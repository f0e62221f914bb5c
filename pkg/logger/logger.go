package logger

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"habittracker/pkg/trace"
)

// NewLogger builds the process logger. The local environment gets a human-readable
// development logger, everything else the JSON production logger.
func NewLogger(env string) *zap.Logger {
	var (
		l   *zap.Logger
		err error
	)
	if env == "local" {
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		l, err = cfg.Build()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		panic(err)
	}
	return l
}

// WithTrace attaches the request trace_id carried by ctx, if any.
func WithTrace(ctx context.Context, logger *zap.Logger) *zap.Logger {
	if traceID := trace.FromContext(ctx); traceID != "" {
		return logger.With(zap.String("trace_id", traceID))
	}
	return logger
}
