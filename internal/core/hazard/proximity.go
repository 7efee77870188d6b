package hazard

import (
	"sort"

	"github.com/gandretiraghu/gptr-road-safety/internal/geo"
	"github.com/gandretiraghu/gptr-road-safety/internal/models"
)

// Match is an open hazard and its distance from a query point.
type Match struct {
	Hazard         models.Report
	Status         Status
	DistanceMeters float64
}

// NearestOpen finds the closest non-Resolved hazard to loc. Ties go to the
// earliest hazard. Hazards with unusable coordinates are skipped.
func (s *Snapshot) NearestOpen(loc models.GeoLocation) (Match, bool) {
	if !geo.Valid(loc) {
		return Match{}, false
	}
	var best Match
	found := false
	for i := range s.hazards {
		h := &s.hazards[i]
		st := s.statuses[h.ID]
		if !st.Open() || !geo.Valid(h.Location) {
			continue
		}
		d := geo.DistanceMeters(h.Location, loc)
		// hazards are sorted oldest first, so strict < keeps the earliest on ties
		if !found || d < best.DistanceMeters {
			best = Match{Hazard: *h, Status: st, DistanceMeters: d}
			found = true
		}
	}
	return best, found
}

// OpenWithin lists open hazards at distance <= radius, nearest first.
func (s *Snapshot) OpenWithin(loc models.GeoLocation, radius float64) []Match {
	if !geo.Valid(loc) {
		return nil
	}
	var out []Match
	for _, h := range s.hazards {
		st := s.statuses[h.ID]
		if !st.Open() || !geo.Valid(h.Location) {
			continue
		}
		if d := geo.DistanceMeters(h.Location, loc); d <= radius {
			out = append(out, Match{Hazard: h, Status: st, DistanceMeters: d})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DistanceMeters < out[j].DistanceMeters })
	return out
}

// NearestAddress returns the address of the closest report of any kind within
// radius that carries one.
func (s *Snapshot) NearestAddress(loc models.GeoLocation, radius float64) *models.AddressContext {
	if !geo.Valid(loc) {
		return nil
	}
	var (
		best     *models.AddressContext
		bestDist float64
	)
	consider := func(r *models.Report) {
		if r.AddressContext == nil || !geo.Valid(r.Location) {
			return
		}
		d := geo.DistanceMeters(r.Location, loc)
		if d <= radius && (best == nil || d < bestDist) {
			addr := *r.AddressContext
			best, bestDist = &addr, d
		}
	}
	for i := range s.hazards {
		consider(&s.hazards[i])
		linked := s.repairs[s.hazards[i].ID]
		for j := range linked {
			consider(&linked[j])
		}
	}
	for i := range s.unlinked {
		consider(&s.unlinked[i])
	}
	return best
}
