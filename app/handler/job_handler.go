package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Avi-Lezerovich/3D-Printer-Project-sub003/internal/model"
	"github.com/Avi-Lezerovich/3D-Printer-Project-sub003/pkg/interfaces"
	"github.com/Avi-Lezerovich/3D-Printer-Project-sub003/pkg/logger"
)

// JobHandler handles print job submission and cancellation.
type JobHandler struct {
	queue interfaces.JobQueue
}

// NewJobHandler creates job handler
func NewJobHandler(queue interfaces.JobQueue) *JobHandler {
	return &JobHandler{queue: queue}
}

// Submit enqueues a print job
// @Summary Submit print job
// @Tags jobs
// @Accept json
// @Produce json
// @Param request body model.SubmitJobRequest true "Job request"
// @Success 200 {object} model.PrintJob
// @Router /v1/jobs [post]
func (h *JobHandler) Submit(c *gin.Context) {
	var req model.SubmitJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Errorf("invalid job request: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	job := &model.PrintJob{
		ID:                 uuid.New().String(),
		ProjectID:          req.ProjectID,
		Priority:           req.Priority,
		QueuedAt:           time.Now(),
		EstimatedDuration:  time.Duration(req.EstimatedMinutes) * time.Minute,
		RequiredHotendTemp: req.RequiredHotendTemp,
		RequiredBedTemp:    req.RequiredBedTemp,
		QualityProfile:     req.QualityProfile,
		Status:             model.JobStatusQueued,
	}

	if _, err := h.queue.Enqueue(c.Request.Context(), job); err != nil {
		logger.Errorf("failed to enqueue job: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, job)
}

// List returns the jobs currently waiting for assignment
// @Summary List pending jobs
// @Tags jobs
// @Produce json
// @Router /v1/jobs [get]
func (h *JobHandler) List(c *gin.Context) {
	jobs, err := h.queue.PendingJobs(c.Request.Context())
	if err != nil {
		logger.Errorf("failed to list pending jobs: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs, "count": len(jobs)})
}

// Cancel removes a queued job
// @Summary Cancel job
// @Tags jobs
// @Param job_id path string true "Job ID"
// @Router /v1/jobs/{job_id}/cancel [post]
func (h *JobHandler) Cancel(c *gin.Context) {
	jobID := c.Param("job_id")
	if jobID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "job_id required"})
		return
	}

	if err := h.queue.Cancel(c.Request.Context(), jobID); err != nil {
		logger.Errorf("failed to cancel job, job_id: %s, error: %v", jobID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "job cancelled"})
}
