// Package hazard derives the lifecycle of reported hazards from the append-only
// report history: which repairs belong to which hazard, how many independent
// devices have confirmed a repair, and which hazards are still open.
//
// Everything here is pure computation over a slice of reports. Nothing is
// cached between calls, so concurrent readers always agree.
package hazard

import (
	"encoding/json"
	"fmt"
)

// ResolutionThreshold is the number of distinct devices with a GENUINE_REPAIR
// verdict needed before a hazard is considered fixed.
const ResolutionThreshold = 3

// Phase is the coarse lifecycle state of a hazard.
type Phase int

const (
	PhaseActive Phase = iota
	PhaseVerifying
	PhaseResolved
)

func (p Phase) String() string {
	switch p {
	case PhaseActive:
		return "active"
	case PhaseVerifying:
		return "verifying"
	case PhaseResolved:
		return "resolved"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Status is Active, Verifying(n) or Resolved. Verifications is the number of
// distinct confirming devices. A Resolved hazard keeps the true device count,
// which may exceed the resolution threshold.
type Status struct {
	Phase         Phase
	Verifications int
}

// StatusFor maps a distinct-device count to a status.
func StatusFor(count int) Status {
	switch {
	case count <= 0:
		return Status{Phase: PhaseActive}
	case count < ResolutionThreshold:
		return Status{Phase: PhaseVerifying, Verifications: count}
	default:
		return Status{Phase: PhaseResolved, Verifications: count}
	}
}

// Open reports whether the hazard still shows on the active map.
func (s Status) Open() bool { return s.Phase != PhaseResolved }

// Rank orders statuses: Active < Verifying(1) < Verifying(2) < Resolved.
func (s Status) Rank() int {
	switch s.Phase {
	case PhaseActive:
		return 0
	case PhaseVerifying:
		return s.Verifications
	default:
		return ResolutionThreshold
	}
}

func (s Status) String() string {
	if s.Phase == PhaseVerifying {
		return fmt.Sprintf("verifying(%d)", s.Verifications)
	}
	return s.Phase.String()
}

type statusJSON struct {
	Phase         string `json:"phase"`
	Verifications int    `json:"verifications"`
	Required      int    `json:"required"`
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(statusJSON{Phase: s.Phase.String(), Verifications: s.Verifications, Required: ResolutionThreshold})
}

func (s *Status) UnmarshalJSON(b []byte) error {
	var raw statusJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	switch raw.Phase {
	case "active":
		s.Phase = PhaseActive
	case "verifying":
		s.Phase = PhaseVerifying
	case "resolved":
		s.Phase = PhaseResolved
	default:
		return fmt.Errorf("unknown hazard phase %q", raw.Phase)
	}
	s.Verifications = raw.Verifications
	return nil
}
