package httpserver

import (
	"net/http"
	"strconv"
	"time"

	"habittracker/internal/handler"
	"habittracker/internal/model"
	"habittracker/pkg/metrics"
	"habittracker/pkg/trace"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// TraceMiddleware reuses X-Trace-ID / X-Request-ID or generates one and echoes it back.
func TraceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := trace.FromHeaders(c.GetHeader(trace.HeaderName), c.GetHeader("X-Request-ID"))
		c.Request = c.Request.WithContext(trace.WithContext(c.Request.Context(), traceID))
		c.Header(trace.HeaderName, traceID)
		c.Next()
	}
}

// RequestLogger logs every request and records its duration.
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.RecordHTTPRequestDuration(c.Request.Method, route, strconv.Itoa(c.Writer.Status()), latency)

		logger.Info("HTTP Request",
			zap.String("trace_id", trace.FromContext(c.Request.Context())),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
			zap.String("user_agent", c.Request.UserAgent()),
		)
	}
}

// SessionMiddleware requires X-Session-ID and stores it for handlers.
func SessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(handler.SessionHeader)
		if !model.ValidSessionID(id) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid " + handler.SessionHeader + " header"})
			c.Abort()
			return
		}

		c.Set(handler.SessionKey, id)
		c.Next()
	}
}
