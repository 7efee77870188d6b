package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/gandretiraghu/gptr-road-safety/internal/models"
)

// Oracle is the image forensics collaborator. Its verdicts are advisory:
// one GENUINE_REPAIR never resolves a hazard on its own.
type Oracle interface {
	TriageHazard(ctx context.Context, req models.TriageRequest) (*models.HazardAnalysis, error)
	VerifyRepair(ctx context.Context, req models.RepairRequest) (*models.RepairAudit, error)
}

// locationContext is the GPS metadata block sent alongside each photo.
func locationContext(sub models.Submission, trust models.GPSTrust, addr *models.AddressContext) string {
	loc := sub.Captured()
	var b strings.Builder
	fmt.Fprintf(&b, "GPS: %.6f, %.6f (accuracy %.0fm, trust %s)", loc.Lat, loc.Lng, loc.AccuracyMeters, trust)
	if loc.SpeedMps != nil {
		fmt.Fprintf(&b, ", speed %.1fm/s", *loc.SpeedMps)
	}
	if loc.HeadingDeg != nil {
		fmt.Fprintf(&b, ", heading %.0f°", *loc.HeadingDeg)
	}
	fmt.Fprintf(&b, ". Device: %s.", sub.DeviceID)
	if addr != nil {
		place := addr.FormattedAddress
		if place == "" {
			place = strings.Trim(strings.Join([]string{addr.Street, addr.City, addr.State, addr.Country}, ", "), ", ")
		}
		if place != "" {
			fmt.Fprintf(&b, " Address: %s.", place)
		}
	}
	return b.String()
}
