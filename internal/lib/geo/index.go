package geo

import (
	"errors"
	"sort"
)

// DistanceIndex precomputes cumulative great-circle distances along a route
// geometry. Entry i holds the distance from point 0 to point i in kilometers,
// so the table is monotonically non-decreasing and the last entry is the total
// route length. The index supports distance→position queries and extraction
// of ordered sub-sequences between two distances.
type DistanceIndex struct {
	points []Point
	cumKm  []float64
}

// NewDistanceIndex builds a cumulative-distance table over a coordinate
// sequence. At least two points are required to form a measurable route.
func NewDistanceIndex(points []Point) (*DistanceIndex, error) {
	if len(points) < 2 {
		return nil, errors.New("distance index requires at least 2 points")
	}

	cumKm := make([]float64, len(points))
	for i := 1; i < len(points); i++ {
		d, err := PointToPoint(points[i-1], points[i])
		if err != nil {
			return nil, err
		}
		cumKm[i] = cumKm[i-1] + d/MetersPerKm
	}

	return &DistanceIndex{points: points, cumKm: cumKm}, nil
}

// Points returns the indexed coordinate sequence
func (ix *DistanceIndex) Points() []Point {
	return ix.points
}

// Len returns the number of indexed coordinates
func (ix *DistanceIndex) Len() int {
	return len(ix.points)
}

// TotalKm returns the total route length in kilometers
func (ix *DistanceIndex) TotalKm() float64 {
	return ix.cumKm[len(ix.cumKm)-1]
}

// DistanceAtIndex returns the cumulative distance from the route start to
// vertex i, in kilometers. Out-of-range indices are clamped.
func (ix *DistanceIndex) DistanceAtIndex(i int) float64 {
	if i < 0 {
		return 0
	}
	if i >= len(ix.cumKm) {
		return ix.TotalKm()
	}
	return ix.cumKm[i]
}

// IndexAtDistance returns the index of the last vertex at or before the given
// distance from the route start. Distances outside [0, total] are clamped.
func (ix *DistanceIndex) IndexAtDistance(km float64) int {
	if km <= 0 {
		return 0
	}
	if km >= ix.TotalKm() {
		return len(ix.points) - 1
	}
	// First vertex strictly past km, minus one
	i := sort.SearchFloat64s(ix.cumKm, km)
	if i < len(ix.cumKm) && ix.cumKm[i] == km {
		return i
	}
	return i - 1
}

// PointAtDistance returns the interpolated position at the given distance
// from the route start. Distances outside [0, total] are clamped.
func (ix *DistanceIndex) PointAtDistance(km float64) Point {
	if km <= 0 {
		return ix.points[0]
	}
	if km >= ix.TotalKm() {
		return ix.points[len(ix.points)-1]
	}

	i := ix.IndexAtDistance(km)
	if ix.cumKm[i] == km || i == len(ix.points)-1 {
		return ix.points[i]
	}

	edgeKm := ix.cumKm[i+1] - ix.cumKm[i]
	if edgeKm == 0 {
		return ix.points[i]
	}
	t := (km - ix.cumKm[i]) / edgeKm
	return Interpolate(ix.points[i], ix.points[i+1], t)
}

// SegmentBetween extracts the ordered coordinate sub-sequence between two
// distances along the route. Boundary points are interpolated unless an exact
// coordinate is supplied, in which case it overrides the interpolated point
// (used to honor snapped cut-point coordinates). Out-of-range distances are
// clamped to [0, total]; startKm == endKm yields just the two boundary
// coordinates.
func (ix *DistanceIndex) SegmentBetween(startKm, endKm float64, exactStart, exactEnd *Point) []Point {
	total := ix.TotalKm()
	if startKm < 0 {
		startKm = 0
	}
	if endKm > total {
		endKm = total
	}
	if endKm < startKm {
		startKm, endKm = endKm, startKm
	}

	first := ix.PointAtDistance(startKm)
	if exactStart != nil {
		first = *exactStart
	}
	last := ix.PointAtDistance(endKm)
	if exactEnd != nil {
		last = *exactEnd
	}

	coords := []Point{first}
	if startKm < endKm {
		for i, km := range ix.cumKm {
			if km > startKm && km < endKm {
				coords = append(coords, ix.points[i])
			}
		}
	}
	coords = append(coords, last)
	return coords
}
