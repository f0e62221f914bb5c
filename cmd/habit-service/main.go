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
	"habittracker/internal/handler"
	"habittracker/internal/httpserver"
	"habittracker/pkg/logger"

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

	log.Info("Starting habit-service...",
		zap.String("env", cfg.Env),
		zap.String("storage_driver", cfg.Storage.Driver),
		zap.String("timezone", cfg.App.Timezone),
		zap.Bool("mq_enabled", cfg.MQ.Enabled),
		zap.Bool("redis_enabled", cfg.Redis.Enabled),
	)

	deps, err := bootstrap.New(context.Background(), cfg, "habit-service", log)
	if err != nil {
		log.Fatal("Failed to initialize dependencies", zap.Error(err))
	}

	health := httpserver.Health{Store: deps.Store}
	if deps.Publisher != nil {
		health.Broker = deps.Publisher
	}

	router := httpserver.NewRouter(
		handler.NewHabitHandler(deps.Habits, log),
		handler.NewSessionHandler(deps.Sessions, log),
		log,
		health,
	)

	addr := ":" + cfg.Server.Port
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

	log.Info("habit-service is fully initialized and running",
		zap.String("http_addr", addr),
		zap.String("storage", deps.Store.Name()),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down habit-service gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		log.Info("HTTP server stopped")
	}

	deps.Close(shutdownCtx)
	log.Info("habit-service shutdown complete")
}
