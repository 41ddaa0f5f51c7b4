package model

import (
	"time"
)

// PrinterStatus operational printer state
type PrinterStatus string

const (
	PrinterStatusIdle        PrinterStatus = "IDLE"
	PrinterStatusPrinting    PrinterStatus = "PRINTING"
	PrinterStatusPaused      PrinterStatus = "PAUSED"
	PrinterStatusError       PrinterStatus = "ERROR"
	PrinterStatusOffline     PrinterStatus = "OFFLINE"
	PrinterStatusMaintenance PrinterStatus = "MAINTENANCE"
)

// PrinterCapability static and semi-static attributes of one device.
type PrinterCapability struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"` // e.g. FDM, SLA, high_detail
	MaxHotendTemp float64   `json:"max_hotend_temp"`
	MaxBedTemp    float64   `json:"max_bed_temp"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// CanPrint reports whether the device satisfies a job's temperature requirements.
// Unspecified requirements (zero) always pass.
func (p *PrinterCapability) CanPrint(requiredHotend, requiredBed float64) bool {
	if requiredHotend > 0 && p.MaxHotendTemp < requiredHotend {
		return false
	}
	if requiredBed > 0 && p.MaxBedTemp < requiredBed {
		return false
	}
	return true
}
