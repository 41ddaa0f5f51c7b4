package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Avi-Lezerovich/3D-Printer-Project-sub003/internal/model"
	"github.com/Avi-Lezerovich/3D-Printer-Project-sub003/internal/orchestrator"
	"github.com/Avi-Lezerovich/3D-Printer-Project-sub003/internal/recovery"
	"github.com/Avi-Lezerovich/3D-Printer-Project-sub003/pkg/logger"
)

// RecoveryHandler exposes device error reporting and recovery state.
// Errors enter through the orchestrator so they are broadcast as well.
type RecoveryHandler struct {
	orchestrator *orchestrator.Orchestrator
	coordinator  *recovery.Coordinator
}

// NewRecoveryHandler creates recovery handler
func NewRecoveryHandler(orch *orchestrator.Orchestrator, coordinator *recovery.Coordinator) *RecoveryHandler {
	return &RecoveryHandler{orchestrator: orch, coordinator: coordinator}
}

// ReportErrorRequest device error report body
type ReportErrorRequest struct {
	Code    string            `json:"code" binding:"required"`
	Message string            `json:"message"`
	Context map[string]string `json:"context,omitempty"`
}

// ReportError handles one device error report
// @Summary Report a device error
// @Tags recovery
// @Accept json
// @Produce json
// @Param device_id path string true "Device ID"
// @Router /v1/devices/{device_id}/errors [post]
func (h *RecoveryHandler) ReportError(c *gin.Context) {
	deviceID := c.Param("device_id")
	var req ReportErrorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "code required"})
		return
	}

	devErr := model.DeviceError{
		Code:    req.Code,
		Message: req.Message,
		Context: req.Context,
	}
	recovered, err := h.orchestrator.ReportDeviceError(c.Request.Context(), deviceID, devErr)
	if err != nil {
		logger.Errorf("recovery failed for device %s: %v", deviceID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"recovered": recovered})
}

// GetErrorHistory returns the device's bounded error history
// @Summary Get device error history
// @Tags recovery
// @Produce json
// @Param device_id path string true "Device ID"
// @Router /v1/devices/{device_id}/errors [get]
func (h *RecoveryHandler) GetErrorHistory(c *gin.Context) {
	deviceID := c.Param("device_id")
	history := h.coordinator.GetErrorHistory(deviceID)
	c.JSON(http.StatusOK, gin.H{"history": history, "count": len(history)})
}

// GetBlacklistStatus reports current blacklist membership
// @Summary Get device blacklist status
// @Tags recovery
// @Produce json
// @Param device_id path string true "Device ID"
// @Router /v1/devices/{device_id}/blacklist [get]
func (h *RecoveryHandler) GetBlacklistStatus(c *gin.Context) {
	deviceID := c.Param("device_id")
	c.JSON(http.StatusOK, gin.H{
		"device_id":   deviceID,
		"blacklisted": h.coordinator.IsBlacklisted(deviceID),
	})
}

// GetStats returns per-device recovery counters
// @Summary Get recovery statistics
// @Tags recovery
// @Produce json
// @Router /v1/recovery/stats [get]
func (h *RecoveryHandler) GetStats(c *gin.Context) {
	stats := h.coordinator.GetRecoveryStats()
	c.JSON(http.StatusOK, gin.H{"stats": stats, "count": len(stats)})
}
