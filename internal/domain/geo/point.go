package geo

import (
	"errors"
	"math"
	"time"
)

// Point is a latitude/longitude pair.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// StampedPoint is a location fix with the time the device recorded it.
// The timestamp, not arrival order, decides which fix is newest.
type StampedPoint struct {
	Point
	RecordedAt time.Time `json:"recorded_at"`
}

var (
	ErrInvalidLatitude  = errors.New("latitude must be between -90 and 90")
	ErrInvalidLongitude = errors.New("longitude must be between -180 and 180")
)

// Validate checks coordinate ranges.
func (p Point) Validate() error {
	if p.Lat < -90 || p.Lat > 90 {
		return ErrInvalidLatitude
	}
	if p.Lng < -180 || p.Lng > 180 {
		return ErrInvalidLongitude
	}
	return nil
}

// NewerThan reports whether this fix supersedes other. Equal timestamps do
// not supersede, which keeps duplicate pings idempotent.
func (sp StampedPoint) NewerThan(other StampedPoint) bool {
	return sp.RecordedAt.After(other.RecordedAt)
}

// HaversineKM returns the straight-line distance between two points in kilometers.
func HaversineKM(lat1, lng1, lat2, lng2 float64) float64 {
	const earthRadiusKM = 6371.0
	a1 := lat1 * math.Pi / 180
	a2 := lat2 * math.Pi / 180
	da := (lat2 - lat1) * math.Pi / 180
	db := (lng2 - lng1) * math.Pi / 180

	a := math.Sin(da/2)*math.Sin(da/2) +
		math.Cos(a1)*math.Cos(a2)*math.Sin(db/2)*math.Sin(db/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKM * c
}

// DistanceKM returns the distance from p to q in kilometers.
func (p Point) DistanceKM(q Point) float64 {
	return HaversineKM(p.Lat, p.Lng, q.Lat, q.Lng)
}
