package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gandretiraghu/gptr-road-safety/internal/core/service"
	"github.com/gandretiraghu/gptr-road-safety/internal/models"
)

// Submitter runs submissions through the engine.
type Submitter interface {
	Check(ctx context.Context, sub models.Submission) (models.Outcome, error)
	Submit(ctx context.Context, sub models.Submission) (models.Outcome, error)
}

type SubmissionHandler struct {
	svc Submitter
}

func NewSubmissionHandler(svc Submitter) *SubmissionHandler {
	return &SubmissionHandler{svc: svc}
}

// Check answers whether the request may proceed to photo capture.
func (h *SubmissionHandler) Check(c *gin.Context) {
	var sub models.Submission
	if err := c.ShouldBindJSON(&sub); err != nil {
		badRequest(c, err)
		return
	}
	out, err := h.svc.Check(c.Request.Context(), sub)
	if err != nil {
		writeOutcomeError(c, err)
		return
	}
	status := http.StatusOK
	if !out.Admitted() {
		status = rejectionStatus(out)
	}
	c.JSON(status, out)
}

// Submit runs the full sequence and appends the report when every check passes.
func (h *SubmissionHandler) Submit(c *gin.Context) {
	var sub models.Submission
	if err := c.ShouldBindJSON(&sub); err != nil {
		badRequest(c, err)
		return
	}
	out, err := h.svc.Submit(c.Request.Context(), sub)
	if err != nil {
		writeOutcomeError(c, err)
		return
	}
	switch {
	case out.Admitted() && out.Replayed:
		c.JSON(http.StatusOK, out)
	case out.Admitted():
		c.JSON(http.StatusCreated, out)
	default:
		c.JSON(rejectionStatus(out), out)
	}
}

// rejectionStatus maps a non-admitted outcome to its HTTP status. A soft
// rejection is informational, so it is not an error status.
func rejectionStatus(out models.Outcome) int {
	if out.Status == models.OutcomeSoftRejected {
		return http.StatusOK
	}
	switch out.Reason {
	case models.ReasonHazardAlreadyNearby, models.ReasonAlreadyVerifiedByDevice:
		return http.StatusConflict
	case models.ReasonRateLimited:
		return http.StatusTooManyRequests
	case models.ReasonAnalysisFailed, models.ReasonStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusUnprocessableEntity
	}
}

func writeOutcomeError(c *gin.Context, err error) {
	out := service.OutcomeForError(err)
	c.JSON(errorStatus(err), out)
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, models.Outcome{
		Status:  models.OutcomeRejected,
		Message: "malformed request body: " + err.Error(),
	})
}

// errorStatus maps engine errors to HTTP statuses.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidSubmission):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrHazardNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, service.ErrAnalysisFailed), errors.Is(err, service.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
