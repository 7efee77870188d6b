// Package gate holds the admission rules a submission passes through before
// and after oracle analysis. Rules are evaluated in a fixed order and stop at
// the first failure. The gate never writes anything.
package gate

import (
	"fmt"
	"time"

	"github.com/gandretiraghu/gptr-road-safety/internal/core/hazard"
	"github.com/gandretiraghu/gptr-road-safety/internal/core/policy"
	"github.com/gandretiraghu/gptr-road-safety/internal/geo"
	"github.com/gandretiraghu/gptr-road-safety/internal/models"
)

// Stage is the furthest point a submission reached in the gate.
type Stage int

const (
	StageRequested Stage = iota
	StageTimeChecked
	StageProximityChecked
	StageDuplicateChecked
	StageAdmitted
)

func (s Stage) String() string {
	switch s {
	case StageRequested:
		return "requested"
	case StageTimeChecked:
		return "time_checked"
	case StageProximityChecked:
		return "proximity_checked"
	case StageDuplicateChecked:
		return "duplicate_checked"
	case StageAdmitted:
		return "admitted"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// Decision is the gate's verdict. Target is set for repairs once a target
// hazard is known, and for new hazards when an existing one blocks them.
type Decision struct {
	Stage   Stage
	Reason  models.Reason
	Message string
	Target  *hazard.Match
}

// Admitted reports whether every rule passed.
func (d Decision) Admitted() bool { return d.Stage == StageAdmitted && d.Reason == models.ReasonNone }

func reject(stage Stage, reason models.Reason, msg string, target *hazard.Match) Decision {
	return Decision{Stage: stage, Reason: reason, Message: msg, Target: target}
}

// Gate evaluates the pre-analysis rules.
type Gate struct {
	window policy.Window
}

func New(window policy.Window) *Gate {
	return &Gate{window: window}
}

// Window returns the submission window the gate enforces.
func (g *Gate) Window() policy.Window { return g.window }

// Admit runs the time, proximity and duplicate rules against a snapshot.
// localNow must carry the device's zone.
func (g *Gate) Admit(sub models.Submission, localNow time.Time, snap *hazard.Snapshot) Decision {
	if !g.window.IsOpen(localNow) {
		return reject(StageRequested, models.ReasonOutsideHours,
			fmt.Sprintf("submissions are accepted %s local time", g.window.Describe()), nil)
	}
	return g.placement(sub, snap, sub.ClaimedLocation)
}

// Recheck re-runs the proximity and duplicate rules at confirmation time on a
// fresh snapshot. The time rule is not repeated: a photo taken inside the
// window stays valid while it is analysed. A new hazard is checked where it
// will be stored, a repair where the device is at confirmation.
func (g *Gate) Recheck(sub models.Submission, snap *hazard.Snapshot) Decision {
	at := sub.Captured()
	if sub.Kind == models.KindRepair {
		at = sub.LiveAtConfirm()
	}
	return g.placement(sub, snap, at)
}

func (g *Gate) placement(sub models.Submission, snap *hazard.Snapshot, at models.GeoLocation) Decision {
	switch sub.Kind {
	case models.KindHazard:
		return g.admitHazard(snap, at)
	case models.KindRepair:
		return g.admitRepair(sub, snap, at)
	default:
		return reject(StageTimeChecked, models.ReasonNoHazardNearby, fmt.Sprintf("unknown submission kind %q", sub.Kind), nil)
	}
}

func (g *Gate) admitHazard(snap *hazard.Snapshot, at models.GeoLocation) Decision {
	if m, ok := snap.NearestOpen(at); ok && BlocksNewHazard(m.DistanceMeters) {
		return reject(StageTimeChecked, models.ReasonHazardAlreadyNearby,
			fmt.Sprintf("hazard %s is already reported %.1fm away; verify its repair instead", m.Hazard.ID, m.DistanceMeters), &m)
	}
	// new hazards skip the duplicate rule
	return Decision{Stage: StageAdmitted}
}

func (g *Gate) admitRepair(sub models.Submission, snap *hazard.Snapshot, at models.GeoLocation) Decision {
	target, ok := g.repairTarget(sub, snap, at)
	if !ok {
		return reject(StageTimeChecked, models.ReasonNoHazardNearby, "no open hazard to verify at this location", nil)
	}
	if !InRepairRange(target.DistanceMeters) {
		return reject(StageTimeChecked, models.ReasonNoHazardNearby,
			fmt.Sprintf("move within %.0fm of hazard %s (currently %.1fm)", RepairProximityRadius, target.Hazard.ID, target.DistanceMeters), &target)
	}
	if snap.DeviceAttempted(sub.DeviceID, target.Hazard.ID) {
		return reject(StageProximityChecked, models.ReasonAlreadyVerifiedByDevice,
			fmt.Sprintf("this device already submitted a repair for hazard %s", target.Hazard.ID), &target)
	}
	return Decision{Stage: StageAdmitted, Target: &target}
}

// repairTarget resolves the hazard a repair is aimed at. An explicit target
// must exist and still be open; without one the nearest open hazard is used.
func (g *Gate) repairTarget(sub models.Submission, snap *hazard.Snapshot, at models.GeoLocation) (hazard.Match, bool) {
	if sub.TargetHazardID == "" {
		return snap.NearestOpen(at)
	}
	h, ok := snap.Hazard(sub.TargetHazardID)
	if !ok || !geo.Valid(h.Location) {
		return hazard.Match{}, false
	}
	st, _ := snap.Status(h.ID)
	if !st.Open() {
		return hazard.Match{}, false
	}
	return hazard.Match{Hazard: h, Status: st, DistanceMeters: geo.DistanceMeters(h.Location, at)}, true
}

// CheckDrift ties the photo fix to both the fix the submission started from
// and the fix at confirmation.
func CheckDrift(sub models.Submission) (models.Reason, string) {
	if d := geo.DistanceMeters(sub.ClaimedLocation, sub.Captured()); Drifted(d) {
		return models.ReasonLocationDrifted,
			fmt.Sprintf("the photo was taken %.0fm from where you started (limit %.0fm)", d, MaxDriftMeters)
	}
	if d := geo.DistanceMeters(sub.Captured(), sub.LiveAtConfirm()); Drifted(d) {
		return models.ReasonLocationDrifted,
			fmt.Sprintf("you moved %.0fm since the photo was taken (limit %.0fm)", d, MaxDriftMeters)
	}
	return models.ReasonNone, ""
}

// CheckAnalysis applies the post-analysis rules: the road check, then the
// risk threshold for hazards. soft is true for the informational rejection.
func CheckAnalysis(kind models.ReportKind, a models.Analysis) (reason models.Reason, msg string, soft bool) {
	if !IsRoad(a) {
		return models.ReasonNotARoad, "the photo does not show a road", false
	}
	if kind == models.KindHazard && a.Hazard != nil && LowRisk(a.Hazard.AccidentProbabilityScore) {
		return models.ReasonLowRiskSoftReject,
			fmt.Sprintf("accident risk %d is below %d; this road looks safe", *a.Hazard.AccidentProbabilityScore, RiskThreshold), true
	}
	return models.ReasonNone, "", false
}
