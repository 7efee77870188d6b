package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gandretiraghu/gptr-road-safety/internal/models"
)

var charminar = models.GeoLocation{Lat: 17.385, Lng: 78.4867}

func ptr(v float64) *float64 { return &v }

func TestDistanceKnownPairs(t *testing.T) {
	assert.Zero(t, DistanceMeters(charminar, charminar))

	// One degree of latitude on a 6371 km sphere.
	a := models.GeoLocation{Lat: 0, Lng: 0}
	b := models.GeoLocation{Lat: 1, Lng: 0}
	assert.InDelta(t, 111194.93, DistanceMeters(a, b), 0.5)

	// Hyderabad to Bengaluru, roughly 500 km as the crow flies.
	blr := models.GeoLocation{Lat: 12.9716, Lng: 77.5946}
	assert.InDelta(t, 500_000, DistanceMeters(charminar, blr), 10_000)
}

func TestDistanceSymmetric(t *testing.T) {
	other := models.GeoLocation{Lat: 17.4, Lng: 78.5}
	assert.Equal(t, DistanceMeters(charminar, other), DistanceMeters(other, charminar))
}

func TestOffsetRoundTrip(t *testing.T) {
	for _, d := range []float64{1, 15, 20, 25, 35, 50, 80} {
		north := Offset(charminar, d, 0)
		assert.InDelta(t, d, DistanceMeters(charminar, north), 0.01, "north %v", d)
		east := Offset(charminar, 0, d)
		assert.InDelta(t, d, DistanceMeters(charminar, east), 0.01, "east %v", d)
	}
}

func TestValid(t *testing.T) {
	assert.True(t, Valid(charminar))
	assert.False(t, Valid(models.GeoLocation{Lat: 91}))
	assert.False(t, Valid(models.GeoLocation{Lng: -181}))
	assert.False(t, Valid(models.GeoLocation{Lat: math.NaN()}))
	assert.False(t, Valid(models.GeoLocation{Lng: math.Inf(1)}))
}

func TestParseBBox(t *testing.T) {
	b, err := ParseBBox("78.4, 17.3, 78.6,17.5")
	require.NoError(t, err)
	assert.Equal(t, BBox{MinLng: 78.4, MinLat: 17.3, MaxLng: 78.6, MaxLat: 17.5}, b)
	assert.True(t, b.Contains(charminar))
	assert.False(t, b.Contains(models.GeoLocation{Lat: 12.97, Lng: 77.59}))

	for _, bad := range []string{"", "1,2,3", "a,b,c,d", "2,2,1,1"} {
		_, err := ParseBBox(bad)
		assert.Error(t, err, bad)
	}
}

func TestAssessFix(t *testing.T) {
	cases := []struct {
		name string
		loc  models.GeoLocation
		want models.GPSTrust
	}{
		{"good", models.GeoLocation{AccuracyMeters: 8, AltitudeMeters: ptr(540)}, models.GPSTrustGood},
		{"edge of good", models.GeoLocation{AccuracyMeters: 25}, models.GPSTrustGood},
		{"weak", models.GeoLocation{AccuracyMeters: 60}, models.GPSTrustWeak},
		{"unknown accuracy", models.GeoLocation{}, models.GPSTrustWeak},
		{"mock", models.GeoLocation{AccuracyMeters: 5, SpeedMps: ptr(0)}, models.GPSTrustMockSuspected},
		{"5m with altitude is fine", models.GeoLocation{AccuracyMeters: 5, SpeedMps: ptr(0), AltitudeMeters: ptr(500)}, models.GPSTrustGood},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, AssessFix(tc.loc))
		})
	}
}
