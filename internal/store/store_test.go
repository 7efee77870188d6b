package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gandretiraghu/gptr-road-safety/internal/geo"
	"github.com/gandretiraghu/gptr-road-safety/internal/models"
)

var (
	origin = models.GeoLocation{Lat: 17.385, Lng: 78.4867, AccuracyMeters: 5}
	t0     = time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
)

func score(v int) *int { return &v }

func hazardReport(id string, at time.Time) models.Report {
	return models.Report{
		ID: id, DeviceID: "reporter", Kind: models.KindHazard, Location: origin, Timestamp: at,
		Analysis: models.Analysis{Hazard: &models.HazardAnalysis{IsRoad: true, HazardDetected: true, Severity: "High", AccidentProbabilityScore: score(72)}},
		ImageRef: "s3://gptr/" + id + ".jpg", GPSTrust: models.GPSTrustGood,
	}
}

func repairReport(id, device, parent string, at time.Time) models.Report {
	return models.Report{
		ID: id, DeviceID: device, Kind: models.KindRepair, ParentReportID: parent, Location: origin, Timestamp: at,
		Analysis: models.Analysis{Repair: &models.RepairAudit{IsRoad: true, Status: models.AuditGenuineRepair}},
		DedupKey: models.RepairDedupKey(device, parent),
	}
}

// runConformance exercises the behaviour every backend must share.
func runConformance(t *testing.T, open func(t *testing.T) ReportStore) {
	ctx := context.Background()

	t.Run("round trip and ordering", func(t *testing.T) {
		s := open(t)
		// appended out of order on purpose
		require.NoError(t, s.Append(ctx, repairReport("r1", "d1", "h1", t0.Add(2*time.Minute))))
		require.NoError(t, s.Append(ctx, hazardReport("h1", t0)))
		require.NoError(t, s.Append(ctx, repairReport("r2", "d2", "h1", t0.Add(time.Minute))))

		got, err := s.Query(ctx, Filter{})
		require.NoError(t, err)
		var ids []string
		for _, r := range got {
			ids = append(ids, r.ID)
		}
		assert.Empty(t, cmp.Diff([]string{"h1", "r2", "r1"}, ids))

		h := got[0]
		require.NotNil(t, h.Analysis.Hazard)
		assert.Equal(t, 72, *h.Analysis.Hazard.AccidentProbabilityScore)
		assert.Equal(t, "s3://gptr/h1.jpg", h.ImageRef)
		assert.True(t, h.Timestamp.Equal(t0))
		assert.Equal(t, models.AuditGenuineRepair, got[1].Analysis.AuditStatus())
	})

	t.Run("filters", func(t *testing.T) {
		s := open(t)
		far := hazardReport("h2", t0.Add(time.Second))
		far.Location = geo.Offset(origin, 5000, 0)
		require.NoError(t, s.Append(ctx, hazardReport("h1", t0)))
		require.NoError(t, s.Append(ctx, far))
		require.NoError(t, s.Append(ctx, repairReport("r1", "d1", "h1", t0.Add(time.Minute))))
		require.NoError(t, s.Append(ctx, repairReport("r2", "d2", "h2", t0.Add(2*time.Minute))))

		byKind, err := s.Query(ctx, Filter{Kind: models.KindRepair})
		require.NoError(t, err)
		assert.Len(t, byKind, 2)

		byDevice, err := s.Query(ctx, Filter{DeviceID: "d2"})
		require.NoError(t, err)
		require.Len(t, byDevice, 1)
		assert.Equal(t, "r2", byDevice[0].ID)

		byParent, err := s.Query(ctx, Filter{ParentReportID: "h1"})
		require.NoError(t, err)
		require.Len(t, byParent, 1)
		assert.Equal(t, "r1", byParent[0].ID)

		byID, err := s.Query(ctx, Filter{ID: "h2"})
		require.NoError(t, err)
		require.Len(t, byID, 1)

		box := geo.BBox{MinLng: 78.48, MinLat: 17.38, MaxLng: 78.49, MaxLat: 17.39}
		inBox, err := s.Query(ctx, Filter{BBox: &box, Kind: models.KindHazard})
		require.NoError(t, err)
		require.Len(t, inBox, 1)
		assert.Equal(t, "h1", inBox[0].ID)

		limited, err := s.Query(ctx, Filter{Limit: 2})
		require.NoError(t, err)
		assert.Len(t, limited, 2)
	})

	t.Run("duplicate id", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Append(ctx, hazardReport("h1", t0)))
		err := s.Append(ctx, hazardReport("h1", t0.Add(time.Second)))
		assert.ErrorIs(t, err, ErrDuplicateID)
	})

	t.Run("duplicate repair key", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Append(ctx, repairReport("r1", "d1", "h1", t0)))
		err := s.Append(ctx, repairReport("r2", "d1", "h1", t0.Add(time.Second)))
		assert.ErrorIs(t, err, ErrDuplicateRepair)

		// reports without a key never collide
		legacy := repairReport("r3", "d1", "", t0)
		legacy.DedupKey = ""
		legacy2 := repairReport("r4", "d1", "", t0)
		legacy2.DedupKey = ""
		require.NoError(t, s.Append(ctx, legacy))
		require.NoError(t, s.Append(ctx, legacy2))
	})

	t.Run("concurrent same key admits one", func(t *testing.T) {
		s := open(t)
		var (
			wg sync.WaitGroup
			ok atomic.Int32
		)
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				err := s.Append(ctx, repairReport(fmt.Sprintf("r%d", i), "d1", "h1", t0))
				if err == nil {
					ok.Add(1)
				} else if !errors.Is(err, ErrDuplicateRepair) {
					t.Errorf("unexpected error: %v", err)
				}
			}(i)
		}
		wg.Wait()
		assert.EqualValues(t, 1, ok.Load())
	})

	t.Run("rejects invalid", func(t *testing.T) {
		s := open(t)
		assert.Error(t, s.Append(ctx, models.Report{Kind: models.KindHazard}))
		assert.Error(t, s.Append(ctx, models.Report{ID: "x", Kind: "note"}))
	})
}

func TestMemoryStore(t *testing.T) {
	runConformance(t, func(t *testing.T) ReportStore { return NewMemoryStore() })
}

func TestSQLiteStore(t *testing.T) {
	runConformance(t, func(t *testing.T) ReportStore {
		s, err := OpenSQLite(filepath.Join(t.TempDir(), "gptr.db"))
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestSQLiteStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "gptr.db")

	s, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, s.Append(ctx, repairReport("r1", "d1", "h1", t0)))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Query(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, models.RepairDedupKey("d1", "h1"), got[0].DedupKey)
	assert.ErrorIs(t, s.Append(ctx, repairReport("r2", "d1", "h1", t0)), ErrDuplicateRepair)
}

func TestMongoStore(t *testing.T) {
	uri := os.Getenv("GPTR_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("GPTR_TEST_MONGO_URI not set")
	}
	n := 0
	runConformance(t, func(t *testing.T) ReportStore {
		n++
		s, err := OpenMongo(context.Background(), uri, fmt.Sprintf("gptr_test_%d_%d", time.Now().UnixNano(), n))
		require.NoError(t, err)
		t.Cleanup(func() {
			_ = s.col.Database().Drop(context.Background())
			s.Close()
		})
		return s
	})
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Options{Driver: "cassandra"})
	assert.Error(t, err)

	b, err := Open(context.Background(), Options{Driver: DriverMemory})
	require.NoError(t, err)
	assert.NoError(t, b.Ping(context.Background()))
}
