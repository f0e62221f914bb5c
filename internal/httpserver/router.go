package httpserver

import (
	"context"
	"net/http"
	"time"

	"habittracker/internal/handler"
	"habittracker/pkg/otel"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Pinger is a dependency checked by /readyz.
type Pinger interface {
	Name() string
	Ping(ctx context.Context) error
}

// Connection reports broker connectivity.
type Connection interface {
	IsConnected() bool
}

// Health groups what the health endpoints inspect. Broker may be nil when MQ is disabled.
type Health struct {
	Store  Pinger
	Broker Connection
}

// RegisterHealth mounts /healthz, /health and /readyz.
func RegisterHealth(r *gin.Engine, health Health) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.HEAD("/health", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
		defer cancel()

		storage := "none"
		if health.Store != nil {
			storage = health.Store.Name()
			if err := health.Store.Ping(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status":  "storage_not_ready",
					"storage": storage,
					"error":   err.Error(),
				})
				return
			}
		}

		if health.Broker != nil && !health.Broker.IsConnected() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "mq_not_ready", "storage": storage})
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "ready", "storage": storage})
	})
}

// NewBaseRouter returns an engine with recovery, tracing, request logging and /metrics.
func NewBaseRouter(logger *zap.Logger, health Health) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(TraceMiddleware())
	r.Use(otel.GinMiddleware())
	r.Use(RequestLogger(logger))

	RegisterHealth(r, health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}

// NewRouter mounts the habit and session API on top of the base router.
func NewRouter(
	habitHandler *handler.HabitHandler,
	sessionHandler *handler.SessionHandler,
	logger *zap.Logger,
	health Health,
) *gin.Engine {
	r := NewBaseRouter(logger, health)

	api := r.Group("/api")

	sessions := api.Group("/sessions")
	{
		sessions.GET("", sessionHandler.ListSessions)
		sessions.POST("", sessionHandler.CreateSession)
		sessions.GET("/:id", sessionHandler.GetSession)
		sessions.PUT("/:id", sessionHandler.SaveSession)
		sessions.DELETE("/:id", sessionHandler.DeleteSession)
	}

	owned := api.Group("/")
	owned.Use(SessionMiddleware())
	{
		owned.GET("/habits", habitHandler.ListHabits)
		owned.POST("/habits", habitHandler.CreateHabit)
		owned.GET("/habits/:id", habitHandler.GetHabit)
		owned.PATCH("/habits/:id", habitHandler.UpdateHabit)
		owned.DELETE("/habits/:id", habitHandler.DeleteHabit)
		owned.POST("/habits/:id/complete", habitHandler.CompleteHabit)
		owned.GET("/habits/:id/curve", habitHandler.Curve)
		owned.GET("/habits/:id/calendar", habitHandler.Calendar)
		owned.GET("/stats", habitHandler.Stats)
	}

	return r
}
