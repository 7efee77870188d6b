// gptr-road-safety/internal/models/submission_models.go
package models

import "time"

// Evidence references the photos involved in a submission. Images themselves
// live in object storage; the engine only passes references to the oracle.
type Evidence struct {
	ImageRef         string `json:"imageRef"`
	OriginalImageRef string `json:"originalImageRef,omitempty"` // repair only; defaults to the target hazard's image
}

// Submission is one attempt by a device to file a hazard or a repair claim.
type Submission struct {
	ReportID       string     `json:"reportId,omitempty"` // client-generated; enables idempotent retries
	DeviceID       string     `json:"deviceId"`
	UserID         string     `json:"userId,omitempty"`
	Kind           ReportKind `json:"kind"`
	TargetHazardID string     `json:"targetHazardId,omitempty"` // repair only; empty selects the nearest open hazard

	ClaimedLocation       GeoLocation  `json:"claimedLocation"`                 // live fix when the action is requested
	CapturedAtLocation    *GeoLocation `json:"capturedAtLocation,omitempty"`    // fix tagged to the photo; defaults to ClaimedLocation
	LiveLocationAtConfirm *GeoLocation `json:"liveLocationAtConfirm,omitempty"` // fix when the user confirms; defaults to CapturedAtLocation

	Now *time.Time `json:"now,omitempty"` // device local time, RFC3339 with offset

	Evidence       Evidence        `json:"evidence"`
	AddressContext *AddressContext `json:"addressContext,omitempty"`
}

// Captured returns the photo location, falling back to the claimed location.
func (s Submission) Captured() GeoLocation {
	if s.CapturedAtLocation != nil {
		return *s.CapturedAtLocation
	}
	return s.ClaimedLocation
}

// LiveAtConfirm returns the confirmation-time location, falling back to the photo location.
func (s Submission) LiveAtConfirm() GeoLocation {
	if s.LiveLocationAtConfirm != nil {
		return *s.LiveLocationAtConfirm
	}
	return s.Captured()
}

// Reason is a machine-readable decision code surfaced to callers.
type Reason string

const (
	ReasonNone                    Reason = ""
	ReasonOutsideHours            Reason = "OUTSIDE_HOURS"
	ReasonHazardAlreadyNearby     Reason = "HAZARD_ALREADY_NEARBY"
	ReasonNoHazardNearby          Reason = "NO_HAZARD_NEARBY"
	ReasonAlreadyVerifiedByDevice Reason = "ALREADY_VERIFIED_BY_DEVICE"
	ReasonLocationDrifted         Reason = "LOCATION_DRIFTED"
	ReasonNotARoad                Reason = "NOT_A_ROAD"
	ReasonLowRiskSoftReject       Reason = "LOW_RISK_SOFT_REJECT"
	ReasonAnalysisFailed          Reason = "ANALYSIS_FAILED"
	ReasonStoreUnavailable        Reason = "STORE_UNAVAILABLE"
	ReasonRateLimited             Reason = "RATE_LIMITED"
)

// Retryable reports whether the same submission may succeed on retry without
// the underlying condition changing.
func (r Reason) Retryable() bool {
	switch r {
	case ReasonAnalysisFailed, ReasonStoreUnavailable, ReasonRateLimited:
		return true
	}
	return false
}

// OutcomeStatus separates success, hard rejection and the informational soft rejection.
type OutcomeStatus string

const (
	OutcomeAdmitted     OutcomeStatus = "admitted"
	OutcomeRejected     OutcomeStatus = "rejected"
	OutcomeSoftRejected OutcomeStatus = "soft_rejected"
	OutcomeFailed       OutcomeStatus = "failed" // transient infrastructure failure
)

// Outcome is the result of a gate check or a full submission.
type Outcome struct {
	Status    OutcomeStatus `json:"status"`
	Reason    Reason        `json:"reason,omitempty"`
	Message   string        `json:"message,omitempty"`
	Retryable bool          `json:"retryable"`
	Replayed  bool          `json:"replayed,omitempty"` // an identical earlier submission was returned

	TargetHazardID string    `json:"targetHazardId,omitempty"` // repair target, or the hazard blocking a new report
	Report         *Report   `json:"report,omitempty"`
	Analysis       *Analysis `json:"analysis,omitempty"` // present on soft rejection so the client can explain it
}

// Admitted reports whether the outcome let the submission through.
func (o Outcome) Admitted() bool { return o.Status == OutcomeAdmitted }

// SubmissionJob is the queue payload consumed by the worker.
type SubmissionJob struct {
	JobID      string     `json:"jobId"`
	Submission Submission `json:"submission"`
}

// SubmissionResult is published back on the result queue.
type SubmissionResult struct {
	JobID       string    `json:"jobId"`
	Outcome     Outcome   `json:"outcome"`
	ProcessedAt time.Time `json:"processedAt"`
	Error       string    `json:"error,omitempty"` // transient error detail when Outcome.Status is failed
}
