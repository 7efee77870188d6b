package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gandretiraghu/gptr-road-safety/internal/core/hazard"
	"github.com/gandretiraghu/gptr-road-safety/internal/core/service"
	"github.com/gandretiraghu/gptr-road-safety/internal/geo"
	"github.com/gandretiraghu/gptr-road-safety/internal/models"
	"github.com/gandretiraghu/gptr-road-safety/internal/store"
)

var depot = models.GeoLocation{Lat: 28.6139, Lng: 77.209, AccuracyMeters: 4}

func seedStore(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gptr.db")
	st, err := store.OpenSQLite(path)
	require.NoError(t, err)
	defer st.Close()

	base := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	ctx := context.Background()
	require.NoError(t, st.Append(ctx, models.Report{
		ID: "hz-1", DeviceID: "reporter", Kind: models.KindHazard, Location: depot, Timestamp: base,
		Analysis: models.Analysis{Hazard: &models.HazardAnalysis{IsRoad: true, HazardDetected: true, Severity: "Critical"}},
	}))
	for i, device := range []string{"fixer-1", "fixer-2"} {
		require.NoError(t, st.Append(ctx, models.Report{
			ID: "rp-" + device, DeviceID: device, Kind: models.KindRepair, ParentReportID: "hz-1",
			Location: geo.Offset(depot, 4, 0), Timestamp: base.Add(time.Duration(i+1) * time.Hour),
			Analysis: models.Analysis{Repair: &models.RepairAudit{IsRoad: true, Status: models.AuditGenuineRepair}},
			DedupKey: models.RepairDedupKey(device, "hz-1"),
		}))
	}
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	globalFlags.configPath, globalFlags.driver, globalFlags.dsn, globalFlags.database = "", "", "", ""
	globalFlags.json = false
	hazardsFlags.all, hazardsFlags.bbox = false, ""
	nearestFlags.lat, nearestFlags.lng = 0, 0

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestHazardsTable(t *testing.T) {
	db := seedStore(t)
	out, err := run(t, "hazards", "--driver=sqlite", "--dsn="+db)
	require.NoError(t, err)
	assert.Contains(t, out, "hz-1")
	assert.Contains(t, out, "verifying(2)")
	assert.Contains(t, out, "Critical")
	assert.Contains(t, out, "1 hazard(s)")
}

func TestHazardsJSONWithBBox(t *testing.T) {
	db := seedStore(t)
	out, err := run(t, "hazards", "--driver=sqlite", "--dsn="+db, "--json", "--bbox=0,0,1,1")
	require.NoError(t, err)
	var views []hazard.HazardView
	require.NoError(t, json.Unmarshal([]byte(out), &views))
	assert.Empty(t, views)

	_, err = run(t, "hazards", "--driver=sqlite", "--dsn="+db, "--bbox=nope")
	assert.Error(t, err)
}

func TestHistory(t *testing.T) {
	db := seedStore(t)
	out, err := run(t, "history", "hz-1", "--driver=sqlite", "--dsn="+db, "--json")
	require.NoError(t, err)
	var reports []models.Report
	require.NoError(t, json.Unmarshal([]byte(out), &reports))
	require.Len(t, reports, 3)
	assert.Equal(t, "hz-1", reports[0].ID)
	assert.Equal(t, "rp-fixer-2", reports[2].ID)

	_, err = run(t, "history", "missing", "--driver=sqlite", "--dsn="+db)
	assert.ErrorIs(t, err, service.ErrHazardNotFound)
}

func TestNearest(t *testing.T) {
	db := seedStore(t)
	near := geo.Offset(depot, 10, 0)
	out, err := run(t, "nearest", "--driver=sqlite", "--dsn="+db, "--json",
		"--lat="+fmtFloat(near.Lat), "--lng="+fmtFloat(near.Lng))
	require.NoError(t, err)
	var res service.NearestResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.True(t, res.Found)
	assert.True(t, res.RepairUnlocked)
	assert.InDelta(t, 10, res.DistanceMeters, 0.5)
}

func TestStats(t *testing.T) {
	db := seedStore(t)
	out, err := run(t, "stats", "--driver=sqlite", "--dsn="+db)
	require.NoError(t, err)
	assert.Contains(t, out, "Verifying:  1")
	assert.Contains(t, out, "Repairs:    2 (0 unlinked)")
}

func TestMemoryDriverRefused(t *testing.T) {
	_, err := run(t, "stats", "--driver=memory")
	assert.Error(t, err)
}

func fmtFloat(f float64) string {
	b, _ := json.Marshal(f)
	return string(b)
}
