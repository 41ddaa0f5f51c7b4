package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Avi-Lezerovich/3D-Printer-Project-sub003/internal/model"
	"github.com/Avi-Lezerovich/3D-Printer-Project-sub003/internal/scheduler"
	"github.com/Avi-Lezerovich/3D-Printer-Project-sub003/pkg/interfaces"
	"github.com/Avi-Lezerovich/3D-Printer-Project-sub003/pkg/logger"
)

// PrinterHandler manages the printer capability registry. Records are
// persisted to the capability store and mirrored into the scheduler.
type PrinterHandler struct {
	store     interfaces.CapabilityStore
	scheduler *scheduler.Scheduler
}

// NewPrinterHandler creates printer handler
func NewPrinterHandler(store interfaces.CapabilityStore, sched *scheduler.Scheduler) *PrinterHandler {
	return &PrinterHandler{store: store, scheduler: sched}
}

// Register upserts a capability record
// @Summary Register or update a printer
// @Tags printers
// @Accept json
// @Produce json
// @Param request body model.PrinterCapability true "Printer capability"
// @Router /v1/printers [put]
func (h *PrinterHandler) Register(c *gin.Context) {
	var capability model.PrinterCapability
	if err := c.ShouldBindJSON(&capability); err != nil || capability.ID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "printer id required"})
		return
	}

	if err := h.store.Save(c.Request.Context(), &capability); err != nil {
		logger.Errorf("failed to save printer %s: %v", capability.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.scheduler.UpdatePrinterCapabilities([]model.PrinterCapability{capability})

	c.JSON(http.StatusOK, capability)
}

// List returns every registered printer
// @Summary List printers
// @Tags printers
// @Produce json
// @Router /v1/printers [get]
func (h *PrinterHandler) List(c *gin.Context) {
	capabilities, err := h.store.GetAll(c.Request.Context())
	if err != nil {
		logger.Errorf("failed to list printers: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"printers": capabilities, "count": len(capabilities)})
}

// Get returns one printer's capability record
// @Summary Get printer
// @Tags printers
// @Produce json
// @Param printer_id path string true "Printer ID"
// @Router /v1/printers/{printer_id} [get]
func (h *PrinterHandler) Get(c *gin.Context) {
	printerID := c.Param("printer_id")
	capability, err := h.store.Get(c.Request.Context(), printerID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "printer not found"})
		return
	}
	c.JSON(http.StatusOK, capability)
}

// Remove deletes a printer from the registry and the scheduler
// @Summary Remove printer
// @Tags printers
// @Param printer_id path string true "Printer ID"
// @Router /v1/printers/{printer_id} [delete]
func (h *PrinterHandler) Remove(c *gin.Context) {
	printerID := c.Param("printer_id")
	if err := h.store.Delete(c.Request.Context(), printerID); err != nil {
		logger.Errorf("failed to delete printer %s: %v", printerID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.scheduler.RemovePrinter(printerID)

	c.JSON(http.StatusOK, gin.H{"message": "printer removed"})
}
