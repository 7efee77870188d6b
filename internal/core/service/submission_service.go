package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gandretiraghu/gptr-road-safety/internal/core/gate"
	"github.com/gandretiraghu/gptr-road-safety/internal/core/hazard"
	"github.com/gandretiraghu/gptr-road-safety/internal/core/policy"
	"github.com/gandretiraghu/gptr-road-safety/internal/geo"
	"github.com/gandretiraghu/gptr-road-safety/internal/metrics"
	"github.com/gandretiraghu/gptr-road-safety/internal/models"
	"github.com/gandretiraghu/gptr-road-safety/internal/store"
)

const (
	defaultOracleTimeout = 45 * time.Second
	// a report without an address borrows the one stored nearest within this radius
	addressReuseRadius = 50.0
)

// Options configures the submission service. Zero values pick defaults.
type Options struct {
	Window        *policy.Window
	Limiter       policy.RateLimiter
	OracleTimeout time.Duration
	Clock         func() time.Time
	NewID         func() string
	Metrics       *metrics.Metrics
	Logger        *slog.Logger
}

// SubmissionService runs a submission through the gate, the oracle and the
// confirmation checks, and appends the report only when all of them pass.
type SubmissionService struct {
	store         store.ReportStore
	oracle        Oracle
	gate          *gate.Gate
	limiter       policy.RateLimiter
	oracleTimeout time.Duration
	now           func() time.Time
	newID         func() string
	metrics       *metrics.Metrics
	logger        *slog.Logger

	repairLocks *keyedMutex
	createMu    sync.Mutex
}

func NewSubmissionService(st store.ReportStore, oracle Oracle, opts Options) *SubmissionService {
	window := policy.DefaultWindow()
	if opts.Window != nil {
		window = *opts.Window
	}
	s := &SubmissionService{
		store:         st,
		oracle:        oracle,
		gate:          gate.New(window),
		limiter:       opts.Limiter,
		oracleTimeout: opts.OracleTimeout,
		now:           opts.Clock,
		newID:         opts.NewID,
		metrics:       opts.Metrics,
		logger:        opts.Logger,
		repairLocks:   newKeyedMutex(),
	}
	if s.limiter == nil {
		s.limiter = policy.NoLimit{}
	}
	if s.oracleTimeout <= 0 {
		s.oracleTimeout = defaultOracleTimeout
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = func() string { return uuid.NewString() }
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "SubmissionService")
	return s
}

// Check runs the pre-analysis rules only. Clients call it before capturing a
// photo so a doomed submission never reaches the oracle. Nothing is written.
func (s *SubmissionService) Check(ctx context.Context, sub models.Submission) (models.Outcome, error) {
	if err := validate(sub, false); err != nil {
		return models.Outcome{}, err
	}
	snap, err := s.snapshot(ctx)
	if err != nil {
		return models.Outcome{}, err
	}
	d := s.gate.Admit(sub, s.localNow(sub), snap)
	if !d.Admitted() {
		return rejected(d.Reason, d.Message, d.Target), nil
	}
	out := models.Outcome{Status: models.OutcomeAdmitted}
	if d.Target != nil {
		out.TargetHazardID = d.Target.Hazard.ID
	}
	return out, nil
}

// Submit runs the whole sequence: gate, oracle, drift and analysis checks, a
// locked re-check and the append. Rejections come back as outcomes; transient
// failures come back as errors wrapping ErrAnalysisFailed,
// ErrStoreUnavailable or ErrRateLimited.
func (s *SubmissionService) Submit(ctx context.Context, sub models.Submission) (out models.Outcome, err error) {
	start := s.now()
	defer func() {
		s.record(sub, out, err, start)
	}()

	if err := validate(sub, true); err != nil {
		return models.Outcome{}, err
	}
	if !s.limiter.Allow(sub.DeviceID) {
		return models.Outcome{}, fmt.Errorf("device %s: %w", sub.DeviceID, ErrRateLimited)
	}

	if sub.ReportID != "" {
		if prior, ok, err := s.lookupReport(ctx, sub.ReportID); err != nil {
			return models.Outcome{}, err
		} else if ok {
			return replayed(prior, sub)
		}
	}

	snap, err := s.snapshot(ctx)
	if err != nil {
		return models.Outcome{}, err
	}
	d := s.gate.Admit(sub, s.localNow(sub), snap)
	if !d.Admitted() {
		return rejected(d.Reason, d.Message, d.Target), nil
	}

	var target *models.Report
	if sub.Kind == models.KindRepair {
		target = &d.Target.Hazard
		// confirmation must verify the hazard that was unlocked, not whatever is nearest later
		sub.TargetHazardID = target.ID
		unlock := s.repairLocks.Lock(models.RepairDedupKey(sub.DeviceID, target.ID))
		defer unlock()
	}

	address := sub.AddressContext
	if address == nil {
		address = snap.NearestAddress(sub.Captured(), addressReuseRadius)
	}
	trust := geo.AssessFix(sub.Captured())

	analysis, err := s.analyze(ctx, sub, target, trust, address)
	if err != nil {
		return models.Outcome{}, err
	}

	if reason, msg := gate.CheckDrift(sub); reason != models.ReasonNone {
		return rejected(reason, msg, nil), nil
	}
	if reason, msg, soft := gate.CheckAnalysis(sub.Kind, analysis); reason != models.ReasonNone {
		if soft {
			return models.Outcome{Status: models.OutcomeSoftRejected, Reason: reason, Message: msg, Analysis: &analysis}, nil
		}
		out := rejected(reason, msg, nil)
		out.Analysis = &analysis
		return out, nil
	}

	report := models.Report{
		ID:             sub.ReportID,
		DeviceID:       sub.DeviceID,
		UserID:         sub.UserID,
		Kind:           sub.Kind,
		Location:       sub.Captured(),
		Timestamp:      s.now().UTC(),
		Analysis:       analysis,
		AddressContext: address,
		ImageRef:       sub.Evidence.ImageRef,
		GPSTrust:       trust,
	}
	if report.ID == "" {
		report.ID = s.newID()
	}
	if target != nil {
		report.ParentReportID = target.ID
		report.DedupKey = models.RepairDedupKey(sub.DeviceID, target.ID)
	}

	if sub.Kind == models.KindHazard {
		s.createMu.Lock()
		defer s.createMu.Unlock()
	}
	// the world may have moved on while the oracle was thinking
	fresh, err := s.snapshot(ctx)
	if err != nil {
		return models.Outcome{}, err
	}
	if d := s.gate.Recheck(sub, fresh); !d.Admitted() {
		return rejected(d.Reason, d.Message, d.Target), nil
	}

	if err := s.store.Append(ctx, report); err != nil {
		return s.appendFailed(ctx, sub, report, err)
	}

	s.logger.Info("report admitted", "report_id", report.ID, "kind", report.Kind, "device_id", report.DeviceID,
		"parent_id", report.ParentReportID, "gps_trust", report.GPSTrust)
	return models.Outcome{Status: models.OutcomeAdmitted, Report: &report, TargetHazardID: report.ParentReportID}, nil
}

func (s *SubmissionService) analyze(ctx context.Context, sub models.Submission, target *models.Report, trust models.GPSTrust, addr *models.AddressContext) (models.Analysis, error) {
	ctx, cancel := context.WithTimeout(ctx, s.oracleTimeout)
	defer cancel()

	lc := locationContext(sub, trust, addr)
	start := time.Now()

	var (
		a    models.Analysis
		err  error
		verb string
	)
	switch sub.Kind {
	case models.KindHazard:
		verb = "triage"
		a.Hazard, err = s.oracle.TriageHazard(ctx, models.TriageRequest{ImageRef: sub.Evidence.ImageRef, LocationContext: lc})
		if err == nil && a.Hazard == nil {
			err = errors.New("empty triage verdict")
		}
	case models.KindRepair:
		verb = "verify_repair"
		original := sub.Evidence.OriginalImageRef
		if original == "" && target != nil {
			original = target.ImageRef
		}
		a.Repair, err = s.oracle.VerifyRepair(ctx, models.RepairRequest{ImageRef: sub.Evidence.ImageRef, OriginalImageRef: original, LocationContext: lc})
		if err == nil && a.Repair == nil {
			err = errors.New("empty repair verdict")
		}
	}

	result := "ok"
	if err != nil {
		result = "error"
	}
	s.metrics.ObserveOracle(verb, result, time.Since(start))
	if err != nil {
		s.logger.Warn("oracle call failed", "verb", verb, "device_id", sub.DeviceID, "error", err)
		return models.Analysis{}, fmt.Errorf("%s: %w: %w", verb, ErrAnalysisFailed, err)
	}
	return a, nil
}

// appendFailed sorts store errors into outcomes. A duplicate key means a
// concurrent twin won the race.
func (s *SubmissionService) appendFailed(ctx context.Context, sub models.Submission, report models.Report, err error) (models.Outcome, error) {
	switch {
	case errors.Is(err, store.ErrDuplicateRepair):
		return rejected(models.ReasonAlreadyVerifiedByDevice,
			fmt.Sprintf("this device already submitted a repair for hazard %s", report.ParentReportID), nil), nil
	case errors.Is(err, store.ErrDuplicateID):
		prior, ok, lookupErr := s.lookupReport(ctx, report.ID)
		if lookupErr != nil {
			return models.Outcome{}, lookupErr
		}
		if !ok {
			return models.Outcome{}, fmt.Errorf("append report %s: %w: %w", report.ID, ErrStoreUnavailable, err)
		}
		return replayed(prior, sub)
	default:
		s.logger.Error("append failed", "report_id", report.ID, "error", err)
		return models.Outcome{}, fmt.Errorf("append report %s: %w: %w", report.ID, ErrStoreUnavailable, err)
	}
}

func (s *SubmissionService) lookupReport(ctx context.Context, id string) (models.Report, bool, error) {
	got, err := s.store.Query(ctx, store.Filter{ID: id, Limit: 1})
	if err != nil {
		return models.Report{}, false, fmt.Errorf("lookup report %s: %w: %w", id, ErrStoreUnavailable, err)
	}
	if len(got) == 0 {
		return models.Report{}, false, nil
	}
	return got[0], true, nil
}

func (s *SubmissionService) snapshot(ctx context.Context) (*hazard.Snapshot, error) {
	reports, err := s.store.Query(ctx, store.Filter{})
	if err != nil {
		return nil, fmt.Errorf("load reports: %w: %w", ErrStoreUnavailable, err)
	}
	return hazard.BuildSnapshot(reports), nil
}

func (s *SubmissionService) localNow(sub models.Submission) time.Time {
	return s.gate.Window().Local(sub.Now, s.now())
}

func (s *SubmissionService) record(sub models.Submission, out models.Outcome, err error, start time.Time) {
	status, reason := out.Status, out.Reason
	if err != nil {
		fo := OutcomeForError(err)
		status, reason = fo.Status, fo.Reason
	}
	s.metrics.ObserveSubmission(string(sub.Kind), string(status), string(reason))
	if status != models.OutcomeAdmitted {
		s.logger.Info("submission not admitted", "kind", sub.Kind, "device_id", sub.DeviceID,
			"status", status, "reason", reason, "elapsed", s.now().Sub(start), "error", err)
	}
}

func rejected(reason models.Reason, msg string, target *hazard.Match) models.Outcome {
	out := models.Outcome{Status: models.OutcomeRejected, Reason: reason, Message: msg, Retryable: reason.Retryable()}
	if target != nil {
		out.TargetHazardID = target.Hazard.ID
	}
	return out
}

// replayed answers a retry of a submission that already landed.
func replayed(prior models.Report, sub models.Submission) (models.Outcome, error) {
	if prior.DeviceID != sub.DeviceID || prior.Kind != sub.Kind {
		return models.Outcome{}, fmt.Errorf("%w: report id %s is already taken", ErrInvalidSubmission, sub.ReportID)
	}
	return models.Outcome{Status: models.OutcomeAdmitted, Replayed: true, Report: &prior, TargetHazardID: prior.ParentReportID}, nil
}

func validate(sub models.Submission, needEvidence bool) error {
	if _, err := models.NewDeviceIdentity(sub.DeviceID); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSubmission, err)
	}
	if !sub.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidSubmission, sub.Kind)
	}
	if !geo.Valid(sub.ClaimedLocation) {
		return fmt.Errorf("%w: claimed location out of range", ErrInvalidSubmission)
	}
	if sub.CapturedAtLocation != nil && !geo.Valid(*sub.CapturedAtLocation) {
		return fmt.Errorf("%w: captured location out of range", ErrInvalidSubmission)
	}
	if sub.LiveLocationAtConfirm != nil && !geo.Valid(*sub.LiveLocationAtConfirm) {
		return fmt.Errorf("%w: confirmation location out of range", ErrInvalidSubmission)
	}
	if needEvidence && sub.Evidence.ImageRef == "" {
		return fmt.Errorf("%w: evidence image is required", ErrInvalidSubmission)
	}
	return nil
}
