package handler

import (
	"net/http"

	"habittracker/internal/model"
	"habittracker/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const sessionNotFound = "Session not found"

type SessionHandler struct {
	sessions *service.SessionService
	logger   *zap.Logger
}

func NewSessionHandler(sessions *service.SessionService, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{sessions: sessions, logger: logger}
}

// ListSessions handles GET /api/sessions
func (h *SessionHandler) ListSessions(c *gin.Context) {
	list, err := h.sessions.ListRecent(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, "session", sessionNotFound, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// CreateSession handles POST /api/sessions
func (h *SessionHandler) CreateSession(c *gin.Context) {
	var in model.SessionInput
	if err := c.ShouldBindJSON(&in); err != nil {
		writeError(c, h.logger, "session", sessionNotFound, bindError("body", err))
		return
	}

	sess, err := h.sessions.Create(c.Request.Context(), in)
	if err != nil {
		writeError(c, h.logger, "session", sessionNotFound, err)
		return
	}
	c.JSON(http.StatusCreated, sess)
}

// GetSession handles GET /api/sessions/:id
func (h *SessionHandler) GetSession(c *gin.Context) {
	sess, err := h.sessions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, "session", sessionNotFound, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// SaveSession handles PUT /api/sessions/:id
func (h *SessionHandler) SaveSession(c *gin.Context) {
	var in model.SessionInput
	if err := c.ShouldBindJSON(&in); err != nil {
		writeError(c, h.logger, "session", sessionNotFound, bindError("body", err))
		return
	}

	sess, err := h.sessions.Save(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		writeError(c, h.logger, "session", sessionNotFound, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// DeleteSession handles DELETE /api/sessions/:id
func (h *SessionHandler) DeleteSession(c *gin.Context) {
	if err := h.sessions.Delete(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, h.logger, "session", sessionNotFound, err)
		return
	}
	c.Status(http.StatusNoContent)
}
