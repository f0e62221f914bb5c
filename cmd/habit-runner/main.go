package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"habittracker/internal/bootstrap"
	"habittracker/internal/config"
	"habittracker/internal/httpserver"
	"habittracker/internal/repository"
	"habittracker/internal/service"
	"habittracker/pkg/logger"
	"habittracker/pkg/outbox"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	log := logger.NewLogger(cfg.Env)
	defer log.Sync()

	if cfg.Env != "local" {
		gin.SetMode(gin.ReleaseMode)
	}

	log.Info("Starting habit-runner...",
		zap.String("env", cfg.Env),
		zap.String("storage_driver", cfg.Storage.Driver),
		zap.Duration("interval", cfg.Runner.Interval),
	)

	deps, err := bootstrap.New(context.Background(), cfg, "habit-runner", log)
	if err != nil {
		log.Fatal("Failed to initialize dependencies", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Postgres writes events to the outbox; only then is there anything to dispatch.
	if pg, ok := deps.Store.(*repository.PostgresStore); ok && deps.Publisher != nil {
		dispatcher := outbox.NewDispatcher(outbox.NewRepository(pg.Pool()), deps.Publisher, log).
			WithInterval(cfg.Runner.OutboxInterval).
			WithBatchSize(cfg.Runner.OutboxBatchSize).
			WithMaxRetries(cfg.Runner.OutboxMaxRetries)
		go dispatcher.Start(ctx)
	} else {
		log.Info("Outbox dispatcher disabled",
			zap.String("storage", deps.Store.Name()),
			zap.Bool("mq_connected", deps.Publisher != nil),
		)
	}

	go runSweeps(ctx, deps.Habits, cfg.Runner.Interval, log)

	health := httpserver.Health{Store: deps.Store}
	if deps.Publisher != nil {
		health.Broker = deps.Publisher
	}
	router := httpserver.NewBaseRouter(log, health)

	addr := ":" + cfg.Runner.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("HTTP server starting", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	log.Info("habit-runner is fully initialized and running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down habit-runner gracefully...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		log.Info("HTTP server stopped")
	}

	deps.Close(shutdownCtx)
	log.Info("habit-runner shutdown complete")
}

// runSweeps reconciles every habit on start and then once per interval.
func runSweeps(ctx context.Context, habits *service.HabitService, interval time.Duration, log *zap.Logger) {
	sweep := func() {
		start := time.Now()
		res, err := habits.ReconcileAll(ctx)
		if err != nil {
			log.Error("Reconcile sweep failed", zap.Error(err))
			return
		}
		log.Info("Reconcile sweep completed",
			zap.Int("habits", res.Habits),
			zap.Int("updated", res.Updated),
			zap.Int("missed_days", res.MissedDays),
			zap.Int("pending", res.Pending),
			zap.Duration("took", time.Since(start)),
		)
	}

	sweep()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("Reconcile sweeps stopped")
			return
		case <-ticker.C:
			sweep()
		}
	}
}
