// gptr-road-safety/internal/models/report_models.go
package models

import (
	"fmt"
	"time"
)

// GeoLocation is a positioning fix as captured by the device sensor.
type GeoLocation struct {
	Lat            float64  `json:"lat" bson:"lat"`
	Lng            float64  `json:"lng" bson:"lng"`
	AccuracyMeters float64  `json:"accuracyMeters" bson:"accuracyMeters"`
	SpeedMps       *float64 `json:"speedMps,omitempty" bson:"speedMps,omitempty"`
	HeadingDeg     *float64 `json:"headingDeg,omitempty" bson:"headingDeg,omitempty"`
	AltitudeMeters *float64 `json:"altitudeMeters,omitempty" bson:"altitudeMeters,omitempty"` // absent on many mock providers
}

// GPSTrust is the advisory grade of a positioning fix.
type GPSTrust string

const (
	GPSTrustGood          GPSTrust = "good"
	GPSTrustWeak          GPSTrust = "weak"
	GPSTrustMockSuspected GPSTrust = "mock_suspected"
)

// ReportKind is fixed at creation.
type ReportKind string

const (
	KindHazard ReportKind = "hazard"
	KindRepair ReportKind = "repair"
)

func (k ReportKind) Valid() bool { return k == KindHazard || k == KindRepair }

// AuditStatus is the oracle's verdict on a repair claim.
type AuditStatus string

const (
	AuditGenuineRepair    AuditStatus = "GENUINE_REPAIR"
	AuditFakeCoverup      AuditStatus = "FAKE_COVERUP"
	AuditPoorQuality      AuditStatus = "POOR_QUALITY"
	AuditNotRepaired      AuditStatus = "NOT_REPAIRED"
	AuditLocationMismatch AuditStatus = "LOCATION_MISMATCH"
)

// Known reports whether s is one of the five audit outcomes.
func (s AuditStatus) Known() bool {
	switch s {
	case AuditGenuineRepair, AuditFakeCoverup, AuditPoorQuality, AuditNotRepaired, AuditLocationMismatch:
		return true
	}
	return false
}

// HazardAnalysis is the oracle's triage of a new hazard photo.
type HazardAnalysis struct {
	IsRoad                   bool           `json:"is_road" bson:"isRoad"`
	HazardDetected           bool           `json:"hazard_detected" bson:"hazardDetected"`
	HazardType               string         `json:"hazard_type,omitempty" bson:"hazardType,omitempty"` // pothole | road_surface_damage | none
	Severity                 string         `json:"severity,omitempty" bson:"severity,omitempty"`      // Low | Medium | High | Critical | None
	AccidentProbabilityScore *int           `json:"accident_probability_score,omitempty" bson:"accidentProbabilityScore,omitempty"`
	EstimatedRepairCost      string         `json:"estimated_repair_cost,omitempty" bson:"estimatedRepairCost,omitempty"`
	Detail                   map[string]any `json:"detail,omitempty" bson:"detail,omitempty"` // opaque supporting detail from the oracle
}

// RepairAudit is the oracle's side-by-side comparison of a repair claim.
type RepairAudit struct {
	IsRoad            bool           `json:"is_road" bson:"isRoad"`
	Status            AuditStatus    `json:"status" bson:"status"`
	Evidence          string         `json:"evidence,omitempty" bson:"evidence,omitempty"`
	VerificationScore *int           `json:"verification_score,omitempty" bson:"verificationScore,omitempty"`
	MatchConfidence   *int           `json:"match_confidence,omitempty" bson:"matchConfidence,omitempty"`
	Detail            map[string]any `json:"detail,omitempty" bson:"detail,omitempty"`
}

// Analysis holds exactly one verdict: triage for hazards, audit for repairs.
type Analysis struct {
	Hazard *HazardAnalysis `json:"hazard,omitempty" bson:"hazard,omitempty"`
	Repair *RepairAudit    `json:"repair,omitempty" bson:"repair,omitempty"`
}

// AuditStatus returns the repair verdict, or "" when there is none.
func (a Analysis) AuditStatus() AuditStatus {
	if a.Repair == nil {
		return ""
	}
	return a.Repair.Status
}

// AddressContext is resolved place metadata. Advisory only.
type AddressContext struct {
	Street           string `json:"street,omitempty" bson:"street,omitempty"`
	City             string `json:"city,omitempty" bson:"city,omitempty"`
	District         string `json:"district,omitempty" bson:"district,omitempty"`
	State            string `json:"state,omitempty" bson:"state,omitempty"`
	Country          string `json:"country,omitempty" bson:"country,omitempty"`
	PostalCode       string `json:"postalCode,omitempty" bson:"postalCode,omitempty"`
	FormattedAddress string `json:"formattedAddress,omitempty" bson:"formattedAddress,omitempty"`
}

// Report is the single stored entity. Reports are appended once and never mutated.
type Report struct {
	ID             string          `json:"id" bson:"id"`
	DeviceID       string          `json:"deviceId" bson:"deviceId"`
	UserID         string          `json:"userId,omitempty" bson:"userId,omitempty"`
	Kind           ReportKind      `json:"kind" bson:"kind"`
	ParentReportID string          `json:"parentReportId,omitempty" bson:"parentReportId,omitempty"` // repairs only; absent on legacy data
	Location       GeoLocation     `json:"location" bson:"location"`                                 // where the photo was captured
	Timestamp      time.Time       `json:"timestamp" bson:"timestamp"`
	Analysis       Analysis        `json:"analysis" bson:"analysis"`
	AddressContext *AddressContext `json:"addressContext,omitempty" bson:"addressContext,omitempty"`
	ImageRef       string          `json:"imageRef,omitempty" bson:"imageRef,omitempty"`
	GPSTrust       GPSTrust        `json:"gpsTrust,omitempty" bson:"gpsTrust,omitempty"`

	// DedupKey is "deviceId|hazardId" for repairs admitted by the engine.
	// Stores reject a second report with the same non-empty key.
	DedupKey string `json:"-" bson:"dedupKey,omitempty"`
}

// RepairDedupKey builds the per-device, per-hazard idempotency key.
func RepairDedupKey(deviceID, hazardID string) string {
	return deviceID + "|" + hazardID
}

// DeviceIdentity is a stable per-installation identifier, not tied to a user account.
type DeviceIdentity struct {
	ID string
}

const maxDeviceIDLen = 128

// NewDeviceIdentity validates raw and wraps it.
func NewDeviceIdentity(raw string) (DeviceIdentity, error) {
	if raw == "" {
		return DeviceIdentity{}, fmt.Errorf("device id is required")
	}
	if len(raw) > maxDeviceIDLen {
		return DeviceIdentity{}, fmt.Errorf("device id longer than %d bytes", maxDeviceIDLen)
	}
	for i := 0; i < len(raw); i++ {
		if raw[i] < 0x21 || raw[i] > 0x7e {
			return DeviceIdentity{}, fmt.Errorf("device id contains non-printable or non-ASCII byte at %d", i)
		}
		if raw[i] == '|' {
			return DeviceIdentity{}, fmt.Errorf("device id must not contain '|'")
		}
	}
	return DeviceIdentity{ID: raw}, nil
}

func (d DeviceIdentity) String() string { return d.ID }
