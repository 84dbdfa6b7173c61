package geo

import (
	"errors"
	"math"
)

// Earth's radius in meters
const earthRadiusMeters = 6371000

// IsValid reports whether a point has plausible geographic coordinates
func IsValid(p Point) bool {
	return p.Latitude >= -90 && p.Latitude <= 90 &&
		p.Longitude >= -180 && p.Longitude <= 180
}

// PointToPoint calculates great-circle distance between two points in meters
// using the Haversine formula
func PointToPoint(p1, p2 Point) (float64, error) {
	if !IsValid(p1) || !IsValid(p2) {
		return 0, errors.New("invalid coordinates: latitude must be [-90, 90], longitude must be [-180, 180]")
	}

	if p1.Latitude == p2.Latitude && p1.Longitude == p2.Longitude {
		return 0, nil
	}

	lat1 := p1.Latitude * math.Pi / 180
	lat2 := p2.Latitude * math.Pi / 180
	dlat := (p2.Latitude - p1.Latitude) * math.Pi / 180
	dlon := (p2.Longitude - p1.Longitude) * math.Pi / 180

	a := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dlon/2)*math.Sin(dlon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMeters * c, nil
}

// Interpolate calculates a point along the segment between two points.
// t=0 returns start, t=1 returns end, t=0.5 returns the midpoint.
// Linear interpolation provides adequate accuracy for road-scale segments
// (typically < 10km); longer spans would need spherical interpolation.
func Interpolate(start, end Point, t float64) Point {
	return Point{
		Latitude:  start.Latitude + t*(end.Latitude-start.Latitude),
		Longitude: start.Longitude + t*(end.Longitude-start.Longitude),
	}
}

// ClosestPointOnSegment finds the point on the segment [a, b] nearest to p,
// and the distance to it in meters. The projection uses an equirectangular
// approximation around a, which is accurate at road-segment scale.
func ClosestPointOnSegment(p, a, b Point) (Point, float64) {
	if a.Latitude == b.Latitude && a.Longitude == b.Longitude {
		d, _ := PointToPoint(p, a)
		return a, d
	}

	// Project onto a local flat plane: x scaled by cos(lat) so that one unit
	// of x and one unit of y cover the same ground distance.
	cosLat := math.Cos(a.Latitude * math.Pi / 180)
	ax, ay := 0.0, 0.0
	bx := (b.Longitude - a.Longitude) * cosLat
	by := b.Latitude - a.Latitude
	px := (p.Longitude - a.Longitude) * cosLat
	py := p.Latitude - a.Latitude

	segLenSq := (bx-ax)*(bx-ax) + (by-ay)*(by-ay)
	t := ((px-ax)*(bx-ax) + (py-ay)*(by-ay)) / segLenSq

	// Clamp to the segment: projections beyond either endpoint snap to it
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}

	nearest := Interpolate(a, b, t)
	d, _ := PointToPoint(p, nearest)
	return nearest, d
}

// PathLengthKm computes the total great-circle length of a point sequence
// in kilometers
func PathLengthKm(points []Point) (float64, error) {
	total := 0.0
	for i := 1; i < len(points); i++ {
		d, err := PointToPoint(points[i-1], points[i])
		if err != nil {
			return 0, err
		}
		total += d
	}
	return total / MetersPerKm, nil
}
