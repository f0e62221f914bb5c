package repository

import (
	"context"
	"fmt"

	"habittracker/pkg/config"
	"habittracker/pkg/db"
	"habittracker/pkg/metrics"

	"go.uber.org/zap"
)

// Storage drivers accepted by Open.
const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverMemory   = "memory"
)

// OpenOptions selects and configures the store.
type OpenOptions struct {
	Driver           string
	FallbackToMemory bool
	DB               config.DBConfig
	Mongo            config.MongoConfig
	// Sink receives events from stores without an outbox (memory, mongo).
	Sink EventSink
}

// Open connects the configured backend. When it cannot be reached and FallbackToMemory
// is set, the memory store is returned instead; the choice is logged and exported as
// the storage_backend gauge.
func Open(ctx context.Context, opts OpenOptions, logger *zap.Logger) (Store, error) {
	switch opts.Driver {
	case DriverPostgres, DriverMongo, DriverMemory, "":
	default:
		return nil, fmt.Errorf("unknown storage driver %q", opts.Driver)
	}

	store, err := open(ctx, opts, logger)
	if err != nil {
		if !opts.FallbackToMemory || opts.Driver == DriverMemory {
			return nil, err
		}
		logger.Warn("Configured storage unreachable, falling back to in-memory store",
			zap.String("driver", opts.Driver),
			zap.Error(err),
		)
		store = NewMemoryStore(opts.Sink, logger)
	}

	metrics.SetStorageBackend(store.Name())
	logger.Info("Storage backend selected", zap.String("driver", store.Name()))
	return store, nil
}

func open(ctx context.Context, opts OpenOptions, logger *zap.Logger) (Store, error) {
	switch opts.Driver {
	case DriverMemory, "":
		return NewMemoryStore(opts.Sink, logger), nil

	case DriverPostgres:
		pool, err := db.NewConnection(ctx, opts.DB, logger)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(ctx, pool, Migrations(), logger); err != nil {
			pool.Close()
			return nil, err
		}
		return NewPostgresStore(pool, logger), nil

	default:
		s, err := NewMongoStore(ctx, opts.Mongo, opts.Sink, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}
