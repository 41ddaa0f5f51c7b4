package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Avi-Lezerovich/3D-Printer-Project-sub003/internal/telemetry"
)

// TelemetryHandler exposes telemetry ingestion and derived views.
type TelemetryHandler struct {
	processor *telemetry.Processor
}

// NewTelemetryHandler creates telemetry handler
func NewTelemetryHandler(processor *telemetry.Processor) *TelemetryHandler {
	return &TelemetryHandler{processor: processor}
}

// IngestRequest one raw sample
type IngestRequest struct {
	Metric string  `json:"metric" binding:"required"`
	Value  float64 `json:"value"`
}

// Ingest records one raw sample for a device. Fire-and-forget.
// @Summary Ingest a telemetry sample
// @Tags telemetry
// @Accept json
// @Param device_id path string true "Device ID"
// @Router /v1/telemetry/{device_id} [post]
func (h *TelemetryHandler) Ingest(c *gin.Context) {
	deviceID := c.Param("device_id")
	var req IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "metric required"})
		return
	}

	h.processor.Ingest(deviceID, req.Metric, req.Value)
	c.JSON(http.StatusAccepted, gin.H{"message": "accepted"})
}

// GetProcessed returns the latest processed snapshot for a device
// @Summary Get processed telemetry
// @Tags telemetry
// @Produce json
// @Param device_id path string true "Device ID"
// @Router /v1/telemetry/{device_id} [get]
func (h *TelemetryHandler) GetProcessed(c *gin.Context) {
	deviceID := c.Param("device_id")
	snapshot, ok := h.processor.GetProcessedData(deviceID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no processed data for device"})
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

// GetHistory returns processed snapshots over the last N hours (default 1)
// @Summary Get metrics history
// @Tags telemetry
// @Produce json
// @Param device_id path string true "Device ID"
// @Param hours query int false "Lookback hours"
// @Router /v1/telemetry/{device_id}/history [get]
func (h *TelemetryHandler) GetHistory(c *gin.Context) {
	deviceID := c.Param("device_id")
	hours := queryInt(c, "hours", 1)

	history := h.processor.GetMetricsHistory(deviceID, hours)
	c.JSON(http.StatusOK, gin.H{"history": history, "count": len(history)})
}

// GetSeries returns raw samples for one metric over the last N hours
// @Summary Get time series data
// @Tags telemetry
// @Produce json
// @Param device_id path string true "Device ID"
// @Param metric query string true "Metric name"
// @Param hours query int false "Lookback hours"
// @Router /v1/telemetry/{device_id}/series [get]
func (h *TelemetryHandler) GetSeries(c *gin.Context) {
	deviceID := c.Param("device_id")
	metric := c.Query("metric")
	if metric == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "metric required"})
		return
	}
	hours := queryInt(c, "hours", 1)

	points := h.processor.GetTimeSeriesData(deviceID, metric, hours)
	c.JSON(http.StatusOK, gin.H{"points": points, "count": len(points)})
}

// GetAggregate returns fleet-wide metrics over a device set
// @Summary Get aggregate metrics
// @Tags telemetry
// @Produce json
// @Param devices query string true "Comma-separated device ids"
// @Router /v1/telemetry/aggregate [get]
func (h *TelemetryHandler) GetAggregate(c *gin.Context) {
	devicesParam := c.Query("devices")
	if devicesParam == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "devices required"})
		return
	}
	deviceIDs := strings.Split(devicesParam, ",")

	metrics := h.processor.CalculateAggregateMetrics(deviceIDs)
	c.JSON(http.StatusOK, metrics)
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}
