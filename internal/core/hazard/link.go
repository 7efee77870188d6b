package hazard

import (
	"github.com/gandretiraghu/gptr-road-safety/internal/geo"
	"github.com/gandretiraghu/gptr-road-safety/internal/models"
)

// LegacyLinkRadius is the spatial fallback radius for repairs that carry no
// parent id. Exclusive: a repair exactly 30 m away is unlinked.
const LegacyLinkRadius = 30.0

// ResolveParent returns the id of the hazard a repair verifies.
//
// An explicit parent id wins when it names a known hazard. Otherwise the
// closest hazard strictly within LegacyLinkRadius is used, ties going to the
// earliest report. A repair with no candidate is unlinked.
func ResolveParent(repair models.Report, hazards []models.Report) (string, bool) {
	if repair.Kind != models.KindRepair {
		return "", false
	}
	if repair.ParentReportID != "" {
		for _, h := range hazards {
			if h.Kind == models.KindHazard && h.ID == repair.ParentReportID {
				return h.ID, true
			}
		}
	}
	if !geo.Valid(repair.Location) {
		return "", false
	}

	var best *models.Report
	bestDist := 0.0
	for i := range hazards {
		h := &hazards[i]
		if h.Kind != models.KindHazard || !geo.Valid(h.Location) {
			continue
		}
		d := geo.DistanceMeters(h.Location, repair.Location)
		if d >= LegacyLinkRadius {
			continue
		}
		if best == nil || d < bestDist || (d == bestDist && earlier(h, best)) {
			best, bestDist = h, d
		}
	}
	if best == nil {
		return "", false
	}
	return best.ID, true
}

// earlier orders reports by timestamp, then id, so tie-breaks are deterministic.
func earlier(a, b *models.Report) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.Before(b.Timestamp)
	}
	return a.ID < b.ID
}
