package hazard

import (
	"sort"

	"github.com/gandretiraghu/gptr-road-safety/internal/models"
)

// Snapshot is a point-in-time view of the report history with every repair
// resolved to its hazard and every hazard classified. It is immutable once
// built; callers build a fresh one per decision.
type Snapshot struct {
	hazards  []models.Report
	byID     map[string]int
	repairs  map[string][]models.Report
	statuses map[string]Status
	unlinked []models.Report
}

// HazardView is a hazard with its derived status, as served to display layers.
type HazardView struct {
	Hazard            models.Report `json:"hazard"`
	Status            Status        `json:"status"`
	VerificationCount int           `json:"verificationCount"`
}

// BuildSnapshot links and classifies reports. Reports of unknown kind are
// ignored and a repeated hazard id keeps its first occurrence.
func BuildSnapshot(reports []models.Report) *Snapshot {
	s := &Snapshot{
		byID:     make(map[string]int),
		repairs:  make(map[string][]models.Report),
		statuses: make(map[string]Status),
	}

	var repairs []models.Report
	for _, r := range reports {
		switch r.Kind {
		case models.KindHazard:
			if _, dup := s.byID[r.ID]; dup || r.ID == "" {
				continue
			}
			s.byID[r.ID] = len(s.hazards)
			s.hazards = append(s.hazards, r)
		case models.KindRepair:
			repairs = append(repairs, r)
		}
	}
	sort.SliceStable(s.hazards, func(i, j int) bool { return earlier(&s.hazards[i], &s.hazards[j]) })
	for i, h := range s.hazards {
		s.byID[h.ID] = i
	}

	sort.SliceStable(repairs, func(i, j int) bool { return earlier(&repairs[i], &repairs[j]) })
	for _, r := range repairs {
		parent, ok := ResolveParent(r, s.hazards)
		if !ok {
			s.unlinked = append(s.unlinked, r)
			continue
		}
		s.repairs[parent] = append(s.repairs[parent], r)
	}

	for _, h := range s.hazards {
		s.statuses[h.ID] = Classify(h, s.repairs[h.ID])
	}
	return s
}

// Hazard looks up a hazard by id.
func (s *Snapshot) Hazard(id string) (models.Report, bool) {
	i, ok := s.byID[id]
	if !ok {
		return models.Report{}, false
	}
	return s.hazards[i], true
}

// Status returns the derived status of a known hazard.
func (s *Snapshot) Status(id string) (Status, bool) {
	st, ok := s.statuses[id]
	return st, ok
}

// Hazards returns every hazard with its status, oldest first.
func (s *Snapshot) Hazards(includeResolved bool) []HazardView {
	out := make([]HazardView, 0, len(s.hazards))
	for _, h := range s.hazards {
		st := s.statuses[h.ID]
		if !includeResolved && !st.Open() {
			continue
		}
		out = append(out, HazardView{Hazard: h, Status: st, VerificationCount: st.Verifications})
	}
	return out
}

// Repairs returns the repairs linked to a hazard, oldest first.
func (s *Snapshot) Repairs(hazardID string) []models.Report {
	return append([]models.Report(nil), s.repairs[hazardID]...)
}

// Unlinked returns repairs that resolve to no hazard.
func (s *Snapshot) Unlinked() []models.Report {
	return append([]models.Report(nil), s.unlinked...)
}

// History is the hazard followed by its linked repairs in timestamp order.
// Unknown hazards have no history.
func (s *Snapshot) History(hazardID string) []models.Report {
	h, ok := s.Hazard(hazardID)
	if !ok {
		return nil
	}
	out := make([]models.Report, 0, 1+len(s.repairs[hazardID]))
	out = append(out, h)
	out = append(out, s.repairs[hazardID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// DeviceAttempted reports whether the device already filed any repair that
// resolves to the hazard, whatever its verdict.
func (s *Snapshot) DeviceAttempted(deviceID, hazardID string) bool {
	for _, r := range s.repairs[hazardID] {
		if r.DeviceID == deviceID {
			return true
		}
	}
	return false
}

// Counts tallies hazards per phase.
func (s *Snapshot) Counts() map[Phase]int {
	out := map[Phase]int{PhaseActive: 0, PhaseVerifying: 0, PhaseResolved: 0}
	for _, st := range s.statuses {
		out[st.Phase]++
	}
	return out
}
