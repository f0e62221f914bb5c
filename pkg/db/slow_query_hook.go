package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"habittracker/pkg/metrics"
)

type queryStartKey struct{}

type queryStart struct {
	at  time.Time
	sql string
}

// SlowQueryTracer logs and counts queries slower than slowThreshold.
type SlowQueryTracer struct {
	logger        *zap.Logger
	slowThreshold time.Duration
}

// NewSlowQueryTracer returns a tracer; a zero threshold means 100ms.
func NewSlowQueryTracer(logger *zap.Logger, slowThreshold time.Duration) *SlowQueryTracer {
	if slowThreshold == 0 {
		slowThreshold = 100 * time.Millisecond
	}
	return &SlowQueryTracer{
		logger:        logger,
		slowThreshold: slowThreshold,
	}
}

// TraceQueryStart implements pgx.QueryTracer.
func (t *SlowQueryTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	return context.WithValue(ctx, queryStartKey{}, queryStart{at: time.Now(), sql: data.SQL})
}

// TraceQueryEnd implements pgx.QueryTracer.
func (t *SlowQueryTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	start, ok := ctx.Value(queryStartKey{}).(queryStart)
	if !ok {
		return
	}

	duration := time.Since(start.at)
	if duration <= t.slowThreshold {
		return
	}

	sql := start.sql
	if len(sql) > 200 {
		sql = sql[:200] + "..."
	}

	t.logger.Warn("slow-query",
		zap.String("sql", sql),
		zap.Duration("took", duration),
		zap.String("command_tag", data.CommandTag.String()),
		zap.Error(data.Err),
	)
	metrics.IncrementSlowQuery()
}
