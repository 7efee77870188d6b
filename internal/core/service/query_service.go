package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/gandretiraghu/gptr-road-safety/internal/core/gate"
	"github.com/gandretiraghu/gptr-road-safety/internal/core/hazard"
	"github.com/gandretiraghu/gptr-road-safety/internal/geo"
	"github.com/gandretiraghu/gptr-road-safety/internal/metrics"
	"github.com/gandretiraghu/gptr-road-safety/internal/models"
	"github.com/gandretiraghu/gptr-road-safety/internal/store"
)

const (
	navigationFeedLimit = 50
	civicFeedLimit      = 100
)

// QueryService serves read views. Every call derives statuses from a fresh
// snapshot of the full history.
type QueryService struct {
	store   store.ReportStore
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewQueryService(st store.ReportStore, m *metrics.Metrics, logger *slog.Logger) *QueryService {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueryService{store: st, metrics: m, logger: logger.With("component", "QueryService")}
}

// NearestResult tells a client what it may do at its current position.
type NearestResult struct {
	Found            bool               `json:"found"`
	Hazard           *hazard.HazardView `json:"hazard,omitempty"`
	DistanceMeters   float64            `json:"distanceMeters,omitempty"`
	RepairUnlocked   bool               `json:"repairUnlocked"`
	NewHazardBlocked bool               `json:"newHazardBlocked"`
}

// Stats are dashboard counters.
type Stats struct {
	Active          int `json:"active"`
	Verifying       int `json:"verifying"`
	Resolved        int `json:"resolved"`
	TotalHazards    int `json:"totalHazards"`
	TotalRepairs    int `json:"totalRepairs"`
	UnlinkedRepairs int `json:"unlinkedRepairs"`
}

// NavigationItem is one entry of the public navigation feed.
type NavigationItem struct {
	ID          string    `json:"id"`
	Lat         float64   `json:"lat"`
	Lng         float64   `json:"lng"`
	Severity    string    `json:"severity"`
	Type        string    `json:"type"`
	Status      string    `json:"status"`
	LastUpdated time.Time `json:"last_updated"`
}

// CivicItem is one entry of the authority feed.
type CivicItem struct {
	ID                string                 `json:"id"`
	Location          models.GeoLocation     `json:"location"`
	Address           *models.AddressContext `json:"address,omitempty"`
	Severity          string                 `json:"severity,omitempty"`
	HazardType        string                 `json:"hazard_type,omitempty"`
	CostEstimate      string                 `json:"cost_est,omitempty"`
	Status            hazard.Status          `json:"status"`
	VerificationCount int                    `json:"verification_count"`
	Image             string                 `json:"image,omitempty"`
	ReportedAt        time.Time              `json:"reported_at"`
}

func (q *QueryService) snapshot(ctx context.Context) (*hazard.Snapshot, error) {
	reports, err := q.store.Query(ctx, store.Filter{})
	if err != nil {
		return nil, fmt.Errorf("load reports: %w: %w", ErrStoreUnavailable, err)
	}
	return hazard.BuildSnapshot(reports), nil
}

// ListHazards returns hazards inside bbox (all when nil), oldest first.
// Resolved hazards are left out unless includeResolved is set.
func (q *QueryService) ListHazards(ctx context.Context, bbox *geo.BBox, includeResolved bool) ([]hazard.HazardView, error) {
	snap, err := q.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	// linking needs the whole history, so the box is applied after classification
	views := snap.Hazards(includeResolved)
	if bbox == nil {
		return views, nil
	}
	out := views[:0]
	for _, v := range views {
		if bbox.Contains(v.Hazard.Location) {
			out = append(out, v)
		}
	}
	return out, nil
}

// GetHistory returns the hazard and its linked repairs, oldest first.
func (q *QueryService) GetHistory(ctx context.Context, hazardID string) ([]models.Report, error) {
	snap, err := q.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	history := snap.History(hazardID)
	if len(history) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrHazardNotFound, hazardID)
	}
	return history, nil
}

// NearestHazard finds the closest open hazard and the actions it unlocks or blocks.
func (q *QueryService) NearestHazard(ctx context.Context, loc models.GeoLocation) (NearestResult, error) {
	if !geo.Valid(loc) {
		return NearestResult{}, fmt.Errorf("%w: location out of range", ErrInvalidSubmission)
	}
	snap, err := q.snapshot(ctx)
	if err != nil {
		return NearestResult{}, err
	}
	m, ok := snap.NearestOpen(loc)
	if !ok {
		return NearestResult{}, nil
	}
	view := hazard.HazardView{Hazard: m.Hazard, Status: m.Status, VerificationCount: m.Status.Verifications}
	return NearestResult{
		Found:            true,
		Hazard:           &view,
		DistanceMeters:   m.DistanceMeters,
		RepairUnlocked:   gate.InRepairRange(m.DistanceMeters),
		NewHazardBlocked: gate.BlocksNewHazard(m.DistanceMeters),
	}, nil
}

// Stats counts hazards per phase and repairs overall.
func (q *QueryService) Stats(ctx context.Context) (Stats, error) {
	snap, err := q.snapshot(ctx)
	if err != nil {
		return Stats{}, err
	}
	counts := snap.Counts()
	st := Stats{
		Active:          counts[hazard.PhaseActive],
		Verifying:       counts[hazard.PhaseVerifying],
		Resolved:        counts[hazard.PhaseResolved],
		UnlinkedRepairs: len(snap.Unlinked()),
	}
	st.TotalHazards = st.Active + st.Verifying + st.Resolved
	for _, v := range snap.Hazards(true) {
		st.TotalRepairs += len(snap.Repairs(v.Hazard.ID))
	}
	st.TotalRepairs += st.UnlinkedRepairs

	for phase, n := range counts {
		q.metrics.SetHazardCount(phase.String(), n)
	}
	return st, nil
}

// NavigationFeed lists the newest open hazards for routing apps.
func (q *QueryService) NavigationFeed(ctx context.Context) ([]NavigationItem, error) {
	snap, err := q.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	views := newestFirst(snap.Hazards(false))
	if len(views) > navigationFeedLimit {
		views = views[:navigationFeedLimit]
	}
	out := make([]NavigationItem, 0, len(views))
	for _, v := range views {
		item := NavigationItem{
			ID:          v.Hazard.ID,
			Lat:         v.Hazard.Location.Lat,
			Lng:         v.Hazard.Location.Lng,
			Severity:    "Unknown",
			Type:        "hazard",
			Status:      v.Status.String(),
			LastUpdated: lastUpdate(v.Hazard, snap.Repairs(v.Hazard.ID)),
		}
		if a := v.Hazard.Analysis.Hazard; a != nil {
			if a.Severity != "" {
				item.Severity = a.Severity
			}
			if a.HazardType != "" {
				item.Type = a.HazardType
			}
		}
		out = append(out, item)
	}
	return out, nil
}

// CivicFeed lists the newest hazards in every phase for road authorities.
func (q *QueryService) CivicFeed(ctx context.Context) ([]CivicItem, error) {
	snap, err := q.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	views := newestFirst(snap.Hazards(true))
	if len(views) > civicFeedLimit {
		views = views[:civicFeedLimit]
	}
	out := make([]CivicItem, 0, len(views))
	for _, v := range views {
		item := CivicItem{
			ID:                v.Hazard.ID,
			Location:          v.Hazard.Location,
			Address:           v.Hazard.AddressContext,
			Status:            v.Status,
			VerificationCount: v.VerificationCount,
			Image:             v.Hazard.ImageRef,
			ReportedAt:        v.Hazard.Timestamp,
		}
		if a := v.Hazard.Analysis.Hazard; a != nil {
			item.Severity = a.Severity
			item.HazardType = a.HazardType
			item.CostEstimate = a.EstimatedRepairCost
		}
		out = append(out, item)
	}
	return out, nil
}

func newestFirst(views []hazard.HazardView) []hazard.HazardView {
	sort.SliceStable(views, func(i, j int) bool { return views[i].Hazard.Timestamp.After(views[j].Hazard.Timestamp) })
	return views
}

func lastUpdate(h models.Report, repairs []models.Report) time.Time {
	last := h.Timestamp
	for _, r := range repairs {
		if r.Timestamp.After(last) {
			last = r.Timestamp
		}
	}
	return last
}
