package segment

import "fmt"

// RouteTooShortError means the route cannot be cut even once at the
// requested interval.
type RouteTooShortError struct {
	TotalKm    float64
	DistanceKm float64
}

func (e *RouteTooShortError) Error() string {
	return fmt.Sprintf("route is %.2fkm, too short to segment at %.2fkm intervals", e.TotalKm, e.DistanceKm)
}

// MaxSegmentsError means the requested interval would produce more segments
// than MaxSegmentsLimit allows.
type MaxSegmentsError struct {
	Requested int
	Limit     int
}

func (e *MaxSegmentsError) Error() string {
	return fmt.Sprintf("segmentation would produce %d segments, limit is %d", e.Requested, e.Limit)
}
