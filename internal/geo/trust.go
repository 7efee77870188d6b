package geo

import "github.com/gandretiraghu/gptr-road-safety/internal/models"

// Fix quality thresholds observed from mobile positioning sensors.
const (
	goodAccuracyMeters = 25.0
	// Mock-location providers commonly report a fixed 5 m accuracy with zero
	// speed and no altitude.
	mockAccuracyMeters = 5.0
)

// AssessFix grades a positioning fix. The result is advisory: it is recorded
// on the report and forwarded to the oracle, it never blocks a submission.
func AssessFix(loc models.GeoLocation) models.GPSTrust {
	if loc.AltitudeMeters == nil && loc.AccuracyMeters == mockAccuracyMeters &&
		loc.SpeedMps != nil && *loc.SpeedMps == 0 {
		return models.GPSTrustMockSuspected
	}
	if loc.AccuracyMeters <= 0 || loc.AccuracyMeters > goodAccuracyMeters {
		return models.GPSTrustWeak
	}
	return models.GPSTrustGood
}
