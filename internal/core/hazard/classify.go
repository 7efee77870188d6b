package hazard

import "github.com/gandretiraghu/gptr-road-safety/internal/models"

// Classify derives a hazard's status from the repairs linked to it.
//
// Only repairs with a GENUINE_REPAIR verdict count, and each device counts
// once. Repairs without a verdict, with an unknown verdict, or without a
// device id are ignored rather than treated as errors.
func Classify(hazard models.Report, linkedRepairs []models.Report) Status {
	return StatusFor(countConfirmingDevices(hazard, linkedRepairs))
}

func countConfirmingDevices(hazard models.Report, repairs []models.Report) int {
	devices := make(map[string]struct{}, len(repairs))
	for _, r := range repairs {
		if r.Kind != models.KindRepair || r.ID == hazard.ID {
			continue
		}
		if r.Analysis.AuditStatus() != models.AuditGenuineRepair {
			continue
		}
		if r.DeviceID == "" {
			continue
		}
		devices[r.DeviceID] = struct{}{}
	}
	return len(devices)
}
