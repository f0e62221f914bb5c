package bootstrap

import (
	"context"

	"habittracker/internal/config"
	"habittracker/internal/repository"
	"habittracker/internal/service"
	"habittracker/pkg/mq"
	"habittracker/pkg/otel"
	"habittracker/pkg/redis"
	"habittracker/pkg/util"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Deps are the long-lived dependencies shared by the binaries.
type Deps struct {
	Store     repository.Store
	Publisher *mq.Publisher
	Redis     *goredis.Client
	Habits    *service.HabitService
	Sessions  *service.SessionService

	shutdownTracing func(context.Context)
	logger          *zap.Logger
}

// New wires tracing, the MQ publisher, the store, the Redis lock and the services.
// Optional dependencies (MQ, Redis) that fail to connect are logged and left out.
func New(ctx context.Context, cfg *config.Config, serviceName string, log *zap.Logger) (*Deps, error) {
	d := &Deps{logger: log, shutdownTracing: func(context.Context) {}}

	shutdown, err := otel.Init(ctx, otel.Config{
		ServiceName:    firstNonEmpty(cfg.Otel.ServiceName, serviceName),
		ServiceVersion: "1.0.0",
		Environment:    cfg.Env,
		Endpoint:       cfg.Otel.Endpoint,
		SampleRatio:    cfg.Otel.SampleRatio,
		Enabled:        cfg.Otel.Enabled,
	}, log)
	if err != nil {
		log.Warn("Failed to init OpenTelemetry, continuing without tracing", zap.Error(err))
	} else {
		d.shutdownTracing = shutdown
	}

	var sink repository.EventSink
	if cfg.MQ.Enabled {
		publisher, err := mq.NewPublisher(cfg.MQ.URL)
		if err != nil {
			log.Warn("Failed to init MQ publisher, events will not be published", zap.Error(err))
		} else {
			d.Publisher = publisher
			sink = publisher
		}
	}

	store, err := repository.Open(ctx, repository.OpenOptions{
		Driver:           cfg.Storage.Driver,
		FallbackToMemory: cfg.Storage.FallbackToMemory,
		DB:               cfg.DB,
		Mongo:            cfg.Mongo,
		Sink:             sink,
	}, log)
	if err != nil {
		d.Close(ctx)
		return nil, err
	}
	d.Store = store

	var locker service.Locker = service.NoopLocker{}
	if cfg.Redis.Enabled {
		rdb, err := redis.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			log.Warn("Redis unavailable, reconcile writes rely on version checks only", zap.Error(err))
		} else {
			d.Redis = rdb
			locker = util.NewKeyLock(rdb, cfg.App.LockTTL, log)
		}
	}

	loc, err := cfg.Location()
	if err != nil {
		d.Close(ctx)
		return nil, err
	}

	d.Sessions = service.NewSessionService(store, log)
	d.Habits = service.NewHabitService(store, log).
		WithSessions(d.Sessions).
		WithLocker(locker).
		WithParams(cfg.Strength).
		WithLocation(loc).
		WithConcurrency(cfg.App.ReconcileConcurrency)
	return d, nil
}

// Close releases everything New opened, in reverse order.
func (d *Deps) Close(ctx context.Context) {
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			d.logger.Warn("Failed to close redis", zap.Error(err))
		}
	}
	if d.Store != nil {
		if err := d.Store.Close(ctx); err != nil {
			d.logger.Warn("Failed to close store", zap.Error(err))
		}
	}
	if d.Publisher != nil {
		d.Publisher.Close()
	}
	d.shutdownTracing(ctx)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
