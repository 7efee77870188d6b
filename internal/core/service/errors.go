package service

import (
	"errors"

	"github.com/gandretiraghu/gptr-road-safety/internal/models"
)

// Transient failures. Each may succeed on retry with the same submission.
var (
	ErrAnalysisFailed   = errors.New("analysis failed")
	ErrStoreUnavailable = errors.New("report store unavailable")
	ErrRateLimited      = errors.New("rate limit exceeded")
)

var (
	// ErrInvalidSubmission marks malformed input. Retrying does not help.
	ErrInvalidSubmission = errors.New("invalid submission")
	// ErrHazardNotFound is returned by history lookups for unknown ids.
	ErrHazardNotFound = errors.New("hazard not found")
)

// ReasonFor maps a transient error to its reason code, or ReasonNone.
func ReasonFor(err error) models.Reason {
	switch {
	case errors.Is(err, ErrAnalysisFailed):
		return models.ReasonAnalysisFailed
	case errors.Is(err, ErrStoreUnavailable):
		return models.ReasonStoreUnavailable
	case errors.Is(err, ErrRateLimited):
		return models.ReasonRateLimited
	default:
		return models.ReasonNone
	}
}

// OutcomeForError turns a Submit or Check error into the outcome reported
// to callers that only speak outcomes, such as the queue worker.
func OutcomeForError(err error) models.Outcome {
	if reason := ReasonFor(err); reason != models.ReasonNone {
		return models.Outcome{Status: models.OutcomeFailed, Reason: reason, Message: err.Error(), Retryable: true}
	}
	return models.Outcome{Status: models.OutcomeRejected, Message: err.Error()}
}
