// Package geo holds the distance math and coordinate helpers shared by every
// proximity rule. All distances are straight-line ground distances in metres.
package geo

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/gandretiraghu/gptr-road-safety/internal/models"
)

// EarthRadiusKm is the mean Earth radius used by the haversine formula.
const EarthRadiusKm = 6371.0

const degToRad = math.Pi / 180.0

// DistanceMeters returns the great-circle (haversine) distance between a and b.
func DistanceMeters(a, b models.GeoLocation) float64 {
	return haversineMeters(a.Lat, a.Lng, b.Lat, b.Lng)
}

func haversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := (lat2 - lat1) * degToRad
	dLon := (lon2 - lon1) * degToRad
	lat1R := lat1 * degToRad
	lat2R := lat2 * degToRad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Sin(dLon/2)*math.Sin(dLon/2)*math.Cos(lat1R)*math.Cos(lat2R)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusKm * c * 1000
}

// Valid reports whether loc has finite coordinates inside the WGS84 ranges.
func Valid(loc models.GeoLocation) bool {
	if math.IsNaN(loc.Lat) || math.IsNaN(loc.Lng) || math.IsInf(loc.Lat, 0) || math.IsInf(loc.Lng, 0) {
		return false
	}
	return loc.Lat >= -90 && loc.Lat <= 90 && loc.Lng >= -180 && loc.Lng <= 180
}

// Offset moves loc by the given metres north and east using a local
// equirectangular approximation, which is accurate to well under a
// centimetre at the tens-of-metres scale the gates work with.
func Offset(loc models.GeoLocation, northM, eastM float64) models.GeoLocation {
	out := loc
	out.Lat = loc.Lat + (northM/(EarthRadiusKm*1000))/degToRad
	out.Lng = loc.Lng + (eastM/(EarthRadiusKm*1000*math.Cos(loc.Lat*degToRad)))/degToRad
	return out
}

// BBox is an axis-aligned lat/lng box. Boxes crossing the antimeridian are not supported.
type BBox struct {
	MinLng float64 `json:"minLng"`
	MinLat float64 `json:"minLat"`
	MaxLng float64 `json:"maxLng"`
	MaxLat float64 `json:"maxLat"`
}

// ParseBBox parses "minLng,minLat,maxLng,maxLat".
func ParseBBox(s string) (BBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return BBox{}, fmt.Errorf("bbox needs 4 numbers, got %d", len(parts))
	}
	var vals [4]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return BBox{}, fmt.Errorf("bbox value %d: %w", i, err)
		}
		vals[i] = v
	}
	b := BBox{MinLng: vals[0], MinLat: vals[1], MaxLng: vals[2], MaxLat: vals[3]}
	if b.MaxLng < b.MinLng || b.MaxLat < b.MinLat {
		return BBox{}, fmt.Errorf("bbox max must be >= min")
	}
	return b, nil
}

// Contains reports whether loc lies inside b, edges included.
func (b BBox) Contains(loc models.GeoLocation) bool {
	return loc.Lat >= b.MinLat && loc.Lat <= b.MaxLat && loc.Lng >= b.MinLng && loc.Lng <= b.MaxLng
}

func (b BBox) String() string {
	return fmt.Sprintf("%g,%g,%g,%g", b.MinLng, b.MinLat, b.MaxLng, b.MaxLat)
}
