package handler

import (
	"errors"
	"net/http"

	"habittracker/internal/model"
	"habittracker/internal/repository"
	"habittracker/internal/service"
	"habittracker/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SessionKey is the gin context key holding the caller's session id.
const SessionKey = "session_id"

// SessionHeader carries the owner identity on every habit request.
const SessionHeader = "X-Session-ID"

func sessionID(c *gin.Context) string {
	return c.GetString(SessionKey)
}

// writeError maps service and storage errors to a status code and JSON body.
func writeError(c *gin.Context, log *zap.Logger, op string, notFound string, err error) {
	log = logger.WithTrace(c.Request.Context(), log)

	var verr *model.ValidationError
	switch {
	case errors.As(err, &verr):
		log.Warn(op+": invalid input", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + op + " data", "details": verr.Fields})
	case errors.Is(err, service.ErrMissingOwner):
		log.Warn(op+": missing session id")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": notFound})
	case errors.Is(err, repository.ErrConflict):
		log.Warn(op+": write conflict", zap.Error(err))
		c.JSON(http.StatusConflict, gin.H{"error": "concurrent update, please retry"})
	case errors.Is(err, repository.ErrUnavailable):
		log.Error(op+": storage unavailable", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage unavailable"})
	default:
		log.Error(op+": internal error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process " + op})
	}
}

func bindError(field string, err error) error {
	v := &model.ValidationError{}
	v.Add(field, "malformed JSON body: "+err.Error())
	return v
}
