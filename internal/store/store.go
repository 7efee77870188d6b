// Package store persists reports. Every backend is append-only: there is no
// update or delete, and a report is visible to Query once Append returns.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/gandretiraghu/gptr-road-safety/internal/geo"
	"github.com/gandretiraghu/gptr-road-safety/internal/models"
)

var (
	// ErrDuplicateID is returned when a report id is already stored.
	ErrDuplicateID = errors.New("store: duplicate report id")
	// ErrDuplicateRepair is returned when a repair reuses a device/hazard dedup key.
	ErrDuplicateRepair = errors.New("store: device already has a repair for this hazard")
	// ErrUnavailable wraps backend failures the caller may retry.
	ErrUnavailable = errors.New("store: unavailable")
)

// Filter narrows a query. Zero fields match everything.
type Filter struct {
	ID             string
	Kind           models.ReportKind
	DeviceID       string
	ParentReportID string
	BBox           *geo.BBox
	Limit          int
}

// ReportStore is the system of record for reports. Query returns matches in
// ascending timestamp order.
type ReportStore interface {
	Append(ctx context.Context, r models.Report) error
	Query(ctx context.Context, f Filter) ([]models.Report, error)
}

// Backend is a ReportStore that owns a connection.
type Backend interface {
	ReportStore
	Ping(ctx context.Context) error
	Close() error
}

// Drivers accepted by Open.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverMongo  = "mongo"
)

// Options selects and configures a backend.
type Options struct {
	Driver   string
	DSN      string // sqlite file path or mongo URI
	Database string // mongo only
}

// Open builds the configured backend.
func Open(ctx context.Context, opts Options) (Backend, error) {
	switch opts.Driver {
	case DriverMemory, "":
		return NewMemoryStore(), nil
	case DriverSQLite:
		return OpenSQLite(opts.DSN)
	case DriverMongo:
		return OpenMongo(ctx, opts.DSN, opts.Database)
	default:
		return nil, fmt.Errorf("unknown store driver %q", opts.Driver)
	}
}

func (f Filter) matches(r models.Report) bool {
	if f.ID != "" && r.ID != f.ID {
		return false
	}
	if f.Kind != "" && r.Kind != f.Kind {
		return false
	}
	if f.DeviceID != "" && r.DeviceID != f.DeviceID {
		return false
	}
	if f.ParentReportID != "" && r.ParentReportID != f.ParentReportID {
		return false
	}
	if f.BBox != nil && !f.BBox.Contains(r.Location) {
		return false
	}
	return true
}

func validateForAppend(r models.Report) error {
	if r.ID == "" {
		return fmt.Errorf("store: report id is required")
	}
	if !r.Kind.Valid() {
		return fmt.Errorf("store: invalid report kind %q", r.Kind)
	}
	return nil
}
