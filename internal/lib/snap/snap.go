// Package snap projects arbitrary points onto route geometry within a
// configurable precision tolerance. All distances in this package are METERS;
// route length bookkeeping elsewhere is in kilometers (factor
// geo.MetersPerKm at the boundary).
package snap

import (
	"errors"
	"fmt"

	"github.com/dpup/routereg/server/internal/lib/geo"
)

// DefaultPrecisionMeters is the snap tolerance used when a session does not
// configure one.
const DefaultPrecisionMeters = 50.0

// Result describes the outcome of projecting a point onto a route.
type Result struct {
	// SnappedPoint is the nearest point on the route to the input point.
	// Populated even when IsSnapped is false so callers can report how far
	// off the route the input was.
	SnappedPoint geo.Point

	// IsSnapped is true when DistanceMeters is within the precision
	// tolerance. Callers must not accept the point as a cut location when
	// this is false.
	IsSnapped bool

	// DistanceMeters is the distance from the input point to SnappedPoint.
	DistanceMeters float64

	// SegmentIndex identifies the route edge (points[i] to points[i+1])
	// where the nearest point lies.
	SegmentIndex int
}

// OutOfPrecisionError reports a point that could not be snapped within the
// requested tolerance.
type OutOfPrecisionError struct {
	Point           geo.Point
	DistanceMeters  float64
	PrecisionMeters float64
}

func (e *OutOfPrecisionError) Error() string {
	return fmt.Sprintf("point (%f, %f) is %.1fm from route, exceeds %.1fm precision",
		e.Point.Latitude, e.Point.Longitude, e.DistanceMeters, e.PrecisionMeters)
}

// Snap finds the nearest point on the route to p. The globally closest
// route edge wins; IsSnapped reflects whether that nearest point is within
// precisionMeters of p.
func Snap(p geo.Point, route []geo.Point, precisionMeters float64) (Result, error) {
	if len(route) < 2 {
		return Result{}, errors.New("route must have at least 2 points")
	}
	if !geo.IsValid(p) {
		return Result{}, fmt.Errorf("invalid coordinates: lat=%f lng=%f", p.Latitude, p.Longitude)
	}
	if precisionMeters <= 0 {
		precisionMeters = DefaultPrecisionMeters
	}

	best := Result{DistanceMeters: -1}
	for i := 0; i < len(route)-1; i++ {
		candidate, dist := geo.ClosestPointOnSegment(p, route[i], route[i+1])
		if best.DistanceMeters < 0 || dist < best.DistanceMeters {
			best = Result{
				SnappedPoint:   candidate,
				DistanceMeters: dist,
				SegmentIndex:   i,
			}
		}
	}

	best.IsSnapped = best.DistanceMeters <= precisionMeters
	return best, nil
}

// MustSnap is like Snap but converts an out-of-tolerance result into an
// OutOfPrecisionError, for call sites that treat unsnapped points as failures.
func MustSnap(p geo.Point, route []geo.Point, precisionMeters float64) (Result, error) {
	result, err := Snap(p, route, precisionMeters)
	if err != nil {
		return Result{}, err
	}
	if !result.IsSnapped {
		return result, &OutOfPrecisionError{
			Point:           p,
			DistanceMeters:  result.DistanceMeters,
			PrecisionMeters: precisionMeters,
		}
	}
	return result, nil
}

// NearestIndex returns the index of the route vertex closest to p. Used to
// anchor legacy cut points that carry no distance metadata.
func NearestIndex(p geo.Point, route []geo.Point) int {
	bestIdx := 0
	bestDist := -1.0
	for i, vertex := range route {
		dist, err := geo.PointToPoint(p, vertex)
		if err != nil {
			continue
		}
		if bestDist < 0 || dist < bestDist {
			bestDist = dist
			bestIdx = i
		}
	}
	return bestIdx
}
