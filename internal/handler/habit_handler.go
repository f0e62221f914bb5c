package handler

import (
	"net/http"

	"habittracker/internal/model"
	"habittracker/internal/service"
	"habittracker/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const habitNotFound = "Habit not found"

type HabitHandler struct {
	habits *service.HabitService
	logger *zap.Logger
}

func NewHabitHandler(habits *service.HabitService, logger *zap.Logger) *HabitHandler {
	return &HabitHandler{habits: habits, logger: logger}
}

// ListHabits handles GET /api/habits
func (h *HabitHandler) ListHabits(c *gin.Context) {
	views, err := h.habits.List(c.Request.Context(), sessionID(c))
	if err != nil {
		writeError(c, h.logger, "habit", habitNotFound, err)
		return
	}

	logger.WithTrace(c.Request.Context(), h.logger).Debug("ListHabits: success",
		zap.String("session_id", sessionID(c)),
		zap.Int("habit_count", len(views)),
	)
	c.JSON(http.StatusOK, views)
}

// CreateHabit handles POST /api/habits
func (h *HabitHandler) CreateHabit(c *gin.Context) {
	var in model.NewHabitInput
	if err := c.ShouldBindJSON(&in); err != nil {
		writeError(c, h.logger, "habit", habitNotFound, bindError("body", err))
		return
	}

	view, err := h.habits.Create(c.Request.Context(), sessionID(c), in)
	if err != nil {
		writeError(c, h.logger, "habit", habitNotFound, err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

// GetHabit handles GET /api/habits/:id
func (h *HabitHandler) GetHabit(c *gin.Context) {
	view, err := h.habits.Get(c.Request.Context(), sessionID(c), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, "habit", habitNotFound, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// UpdateHabit handles PATCH /api/habits/:id
func (h *HabitHandler) UpdateHabit(c *gin.Context) {
	var in model.UpdateHabitInput
	if err := c.ShouldBindJSON(&in); err != nil {
		writeError(c, h.logger, "habit", habitNotFound, bindError("body", err))
		return
	}

	view, err := h.habits.Update(c.Request.Context(), sessionID(c), c.Param("id"), in)
	if err != nil {
		writeError(c, h.logger, "habit", habitNotFound, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// CompleteHabit handles POST /api/habits/:id/complete
func (h *HabitHandler) CompleteHabit(c *gin.Context) {
	view, err := h.habits.Complete(c.Request.Context(), sessionID(c), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, "habit", habitNotFound, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// DeleteHabit handles DELETE /api/habits/:id
func (h *HabitHandler) DeleteHabit(c *gin.Context) {
	if err := h.habits.Delete(c.Request.Context(), sessionID(c), c.Param("id")); err != nil {
		writeError(c, h.logger, "habit", habitNotFound, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Curve handles GET /api/habits/:id/curve
func (h *HabitHandler) Curve(c *gin.Context) {
	curve, err := h.habits.Curve(c.Request.Context(), sessionID(c), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, "habit", habitNotFound, err)
		return
	}
	c.JSON(http.StatusOK, curve)
}

// Calendar handles GET /api/habits/:id/calendar?month=YYYY-MM
func (h *HabitHandler) Calendar(c *gin.Context) {
	cal, err := h.habits.Calendar(c.Request.Context(), sessionID(c), c.Param("id"), c.Query("month"))
	if err != nil {
		writeError(c, h.logger, "calendar", habitNotFound, err)
		return
	}
	c.JSON(http.StatusOK, cal)
}

// Stats handles GET /api/stats
func (h *HabitHandler) Stats(c *gin.Context) {
	stats, err := h.habits.Stats(c.Request.Context(), sessionID(c))
	if err != nil {
		writeError(c, h.logger, "stats", habitNotFound, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
