package geo

import "github.com/paulmach/orb"

// Point represents a geographic coordinate
type Point struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
}

// MetersPerKm is the conversion factor between the two distance units used in
// this module. Snapping and point-to-segment math work in METERS; route
// lengths and the distance index are tracked in KILOMETERS. Any boundary
// between the two must convert explicitly with this constant.
const MetersPerKm = 1000.0

// FromOrb converts an orb.Point ([lon, lat] order) to a Point
func FromOrb(p orb.Point) Point {
	return Point{Latitude: p.Lat(), Longitude: p.Lon()}
}

// Orb converts a Point to an orb.Point ([lon, lat] order)
func (p Point) Orb() orb.Point {
	return orb.Point{p.Longitude, p.Latitude}
}

// LineString converts a point sequence to an orb.LineString
func LineString(points []Point) orb.LineString {
	ls := make(orb.LineString, len(points))
	for i, p := range points {
		ls[i] = p.Orb()
	}
	return ls
}

// FromLineString converts an orb.LineString back to a point sequence
func FromLineString(ls orb.LineString) []Point {
	points := make([]Point, len(ls))
	for i, p := range ls {
		points[i] = FromOrb(p)
	}
	return points
}
