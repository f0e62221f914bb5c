package db

import (
	"context"
	"fmt"
	"io/fs"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

// Migrate applies every pending goose migration found in migrations against pool.
func Migrate(ctx context.Context, pool *pgxpool.Pool, migrations fs.FS, logger *zap.Logger) error {
	sqlDB := stdlib.OpenDBFromPool(pool)
	defer sqlDB.Close()

	provider, err := goose.NewProvider(goose.DialectPostgres, sqlDB, migrations)
	if err != nil {
		return fmt.Errorf("create migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	for _, r := range results {
		logger.Info("Applied migration",
			zap.Int64("version", r.Source.Version),
			zap.String("path", r.Source.Path),
			zap.Duration("took", r.Duration),
		)
	}
	return nil
}
