package scheduler

import (
	"time"

	"github.com/Avi-Lezerovich/3D-Printer-Project-sub003/internal/model"
)

// mergeConstraints overlays per-invocation constraints on the process-wide
// defaults. Zero-valued fields inherit the default.
func mergeConstraints(defaults model.SchedulingConstraints, override *model.SchedulingConstraints) model.SchedulingConstraints {
	merged := defaults
	if override == nil {
		return merged
	}
	if override.MaxPrintTime > 0 {
		merged.MaxPrintTime = override.MaxPrintTime
	}
	if len(override.RequiredPrinters) > 0 {
		merged.RequiredPrinters = override.RequiredPrinters
	}
	if len(override.PreferredPrinters) > 0 {
		merged.PreferredPrinters = override.PreferredPrinters
	}
	if len(override.ExcludedPrinters) > 0 {
		merged.ExcludedPrinters = override.ExcludedPrinters
	}
	if len(override.AllowedTypes) > 0 {
		merged.AllowedTypes = override.AllowedTypes
	}
	if override.PowerLimitKWh > 0 {
		merged.PowerLimitKWh = override.PowerLimitKWh
	}
	if override.WorkEndHour > 0 {
		merged.WorkStartHour = override.WorkStartHour
		merged.WorkEndHour = override.WorkEndHour
		merged.Timezone = override.Timezone
	}
	if len(override.MaintenanceWindows) > 0 {
		merged.MaintenanceWindows = override.MaintenanceWindows
	}
	return merged
}

// eligiblePrinters applies the constraint filters in documented order:
// required restriction, excluded list, preferred allow-list, type allow-list,
// then the temperature capability check. Mismatches are non-fatal; they only
// remove a printer from candidacy.
func eligiblePrinters(job model.PrintJob, capabilities map[string]model.PrinterCapability, c model.SchedulingConstraints) []string {
	required := toSet(c.RequiredPrinters)
	excluded := toSet(c.ExcludedPrinters)
	preferred := toSet(c.PreferredPrinters)
	types := toSet(c.AllowedTypes)

	var eligible []string
	for id, cap := range capabilities {
		if len(required) > 0 {
			if _, ok := required[id]; !ok {
				continue
			}
		}
		if _, ok := excluded[id]; ok {
			continue
		}
		if len(preferred) > 0 {
			if _, ok := preferred[id]; !ok {
				continue
			}
		}
		if len(types) > 0 {
			if _, ok := types[cap.Type]; !ok {
				continue
			}
		}
		if !cap.CanPrint(job.RequiredHotendTemp, job.RequiredBedTemp) {
			continue
		}
		eligible = append(eligible, id)
	}
	return eligible
}

// windowAllowed rejects a projected [start, end) window that exceeds the max
// print time, intersects a maintenance window affecting the printer, or falls
// outside working hours. A window is acceptable only when both its start and
// end local hours are inside [workStart, workEnd); windows that would span a
// day boundary are rejected rather than split.
func windowAllowed(printerID string, start, end time.Time, duration time.Duration, c model.SchedulingConstraints) bool {
	if c.MaxPrintTime > 0 && duration > c.MaxPrintTime {
		return false
	}

	for _, w := range c.MaintenanceWindows {
		if !windowAffects(w, printerID) {
			continue
		}
		if start.Before(w.End) && end.After(w.Start) {
			return false
		}
	}

	if c.HasWorkingHours() {
		loc := time.Local
		if c.Timezone != "" {
			if parsed, err := time.LoadLocation(c.Timezone); err == nil {
				loc = parsed
			}
		}
		startHour := start.In(loc).Hour()
		endHour := end.In(loc).Hour()
		if startHour < c.WorkStartHour || startHour >= c.WorkEndHour {
			return false
		}
		if endHour < c.WorkStartHour || endHour >= c.WorkEndHour {
			return false
		}
		// Reject windows crossing midnight even when both hours pass the check.
		if end.In(loc).YearDay() != start.In(loc).YearDay() {
			return false
		}
	}

	return true
}

func windowAffects(w model.MaintenanceWindow, printerID string) bool {
	if len(w.PrinterIDs) == 0 {
		return true
	}
	for _, id := range w.PrinterIDs {
		if id == printerID {
			return true
		}
	}
	return false
}

// confidence scores a job/printer pairing: 0.5 base, +0.2 when the printer
// type matches the job's quality profile, +0.1 per non-negative temperature
// headroom (hotend and bed).
func confidence(job model.PrintJob, cap model.PrinterCapability) float64 {
	score := 0.5
	if job.QualityProfile != "" && cap.Type == job.QualityProfile {
		score += 0.2
	}
	if cap.MaxHotendTemp-job.RequiredHotendTemp >= 0 {
		score += 0.1
	}
	if cap.MaxBedTemp-job.RequiredBedTemp >= 0 {
		score += 0.1
	}
	if score > 1 {
		score = 1
	}
	return score
}

func toSet(values []string) map[string]struct{} {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
