package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Avi-Lezerovich/3D-Printer-Project-sub003/internal/model"
	"github.com/Avi-Lezerovich/3D-Printer-Project-sub003/internal/scheduler"
	"github.com/Avi-Lezerovich/3D-Printer-Project-sub003/pkg/logger"
)

// ScheduleHandler handles scheduling operations.
type ScheduleHandler struct {
	scheduler *scheduler.Scheduler
}

// NewScheduleHandler creates schedule handler
func NewScheduleHandler(sched *scheduler.Scheduler) *ScheduleHandler {
	return &ScheduleHandler{scheduler: sched}
}

// OptimizeRequest optimize request body
type OptimizeRequest struct {
	PrinterIDs  []string                     `json:"printer_ids,omitempty"`
	Constraints *model.SchedulingConstraints `json:"constraints,omitempty"`
}

// RescheduleRequest reschedule request body
type RescheduleRequest struct {
	Reason string   `json:"reason" binding:"required"`
	JobIDs []string `json:"job_ids,omitempty"`
}

// Optimize recomputes assignments over the pending job set
// @Summary Generate an optimized schedule
// @Tags schedules
// @Accept json
// @Produce json
// @Success 200 {object} model.OptimizedSchedule
// @Router /v1/schedules/optimize [post]
func (h *ScheduleHandler) Optimize(c *gin.Context) {
	var req OptimizeRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	schedule, err := h.scheduler.Optimize(c.Request.Context(), req.PrinterIDs, req.Constraints)
	if err != nil {
		logger.Errorf("failed to optimize schedule: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, schedule)
}

// Reschedule recomputes assignments for specific jobs
// @Summary Reschedule jobs
// @Tags schedules
// @Accept json
// @Produce json
// @Router /v1/schedules/reschedule [post]
func (h *ScheduleHandler) Reschedule(c *gin.Context) {
	var req RescheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "reason required"})
		return
	}

	schedule, err := h.scheduler.Reschedule(c.Request.Context(), req.Reason, req.JobIDs)
	if err != nil {
		logger.Errorf("failed to reschedule: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, schedule)
}

// Get returns one retained schedule
// @Summary Get schedule by id
// @Tags schedules
// @Produce json
// @Param schedule_id path string true "Schedule ID"
// @Router /v1/schedules/{schedule_id} [get]
func (h *ScheduleHandler) Get(c *gin.Context) {
	scheduleID := c.Param("schedule_id")
	schedule, ok := h.scheduler.GetActiveSchedule(scheduleID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "schedule not found"})
		return
	}
	c.JSON(http.StatusOK, schedule)
}

// List returns every retained schedule, newest first
// @Summary List active schedules
// @Tags schedules
// @Produce json
// @Router /v1/schedules [get]
func (h *ScheduleHandler) List(c *gin.Context) {
	schedules := h.scheduler.GetAllActiveSchedules()
	c.JSON(http.StatusOK, gin.H{"schedules": schedules, "count": len(schedules)})
}

// UpdateConstraints replaces the process-wide default constraints
// @Summary Update default scheduling constraints
// @Tags schedules
// @Accept json
// @Router /v1/schedules/constraints [put]
func (h *ScheduleHandler) UpdateConstraints(c *gin.Context) {
	var constraints model.SchedulingConstraints
	if err := c.ShouldBindJSON(&constraints); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid constraints"})
		return
	}

	h.scheduler.UpdateSchedulingConstraints(constraints)
	c.JSON(http.StatusOK, gin.H{"message": "constraints updated"})
}
