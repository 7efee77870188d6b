package gate

import "github.com/gandretiraghu/gptr-road-safety/internal/models"

// Distances are straight-line ground metres.
const (
	// NewHazardExclusionRadius blocks a new hazard when an open one is
	// strictly closer than this. A hazard exactly 20 m away does not block.
	NewHazardExclusionRadius = 20.0

	// RepairProximityRadius unlocks a repair when the device is at most this
	// far from the target. Exactly 20 m is in range.
	RepairProximityRadius = 20.0

	// MaxDriftMeters is the largest allowed gap between the photo fix and the
	// fix at confirmation. Exactly 50 m is allowed.
	MaxDriftMeters = 50.0

	// RiskThreshold is the accident probability score below which a hazard
	// is treated as a safe road and not stored.
	RiskThreshold = 40
)

// BlocksNewHazard reports whether an open hazard at distance d excludes a new one.
func BlocksNewHazard(d float64) bool { return d < NewHazardExclusionRadius }

// InRepairRange reports whether a device at distance d may verify a hazard.
func InRepairRange(d float64) bool { return d <= RepairProximityRadius }

// Drifted reports whether the confirmation fix wandered too far from the photo.
func Drifted(d float64) bool { return d > MaxDriftMeters }

// LowRisk reports whether a triage score warrants the soft rejection. A
// missing score never does: the report goes through for human review.
func LowRisk(score *int) bool { return score != nil && *score < RiskThreshold }

// IsRoad extracts the road check from whichever verdict is present. An
// analysis with neither verdict is not a road.
func IsRoad(a models.Analysis) bool {
	switch {
	case a.Hazard != nil:
		return a.Hazard.IsRoad
	case a.Repair != nil:
		return a.Repair.IsRoad
	default:
		return false
	}
}
