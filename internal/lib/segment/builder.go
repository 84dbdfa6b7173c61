package segment

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/dpup/routereg/server/internal/lib/geo"
	"github.com/dpup/routereg/server/internal/lib/snap"
)

// distanceEpsilon guards the too-short check so a route exactly equal to the
// interval is still rejected.
const distanceEpsilon = 1e-9

// Builder constructs ordered segments over a single route's distance index.
type Builder struct {
	index   *geo.DistanceIndex
	routeID string
}

// NewBuilder creates a Builder for the given route geometry.
func NewBuilder(index *geo.DistanceIndex, routeID string) *Builder {
	return &Builder{index: index, routeID: routeID}
}

// TotalKm returns the total length of the underlying route.
func (b *Builder) TotalKm() float64 {
	return b.index.TotalKm()
}

// ByCutPoints partitions the route at each cut point's DistanceFromStart.
// Cuts are sorted ascending (stable, so equal distances keep insertion
// order) and each boundary uses the cut's exact snapped coordinate rather
// than the interpolated curve point. N cuts yield N+1 segments.
func (b *Builder) ByCutPoints(cuts []CutPoint) ([]Segment, error) {
	total := b.index.TotalKm()

	sorted := make([]CutPoint, len(cuts))
	copy(sorted, cuts)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].DistanceFromStart < sorted[j].DistanceFromStart
	})

	for _, cut := range sorted {
		if cut.DistanceFromStart < 0 || cut.DistanceFromStart > total {
			return nil, fmt.Errorf("cut point %s at %.3fkm is outside route [0, %.3f]",
				cut.ID, cut.DistanceFromStart, total)
		}
	}

	type boundary struct {
		km    float64
		exact *geo.Point
	}

	boundaries := make([]boundary, 0, len(sorted)+2)
	boundaries = append(boundaries, boundary{km: 0})
	for _, cut := range sorted {
		coord := cut.BoundaryCoordinates()
		boundaries = append(boundaries, boundary{km: cut.DistanceFromStart, exact: &coord})
	}
	boundaries = append(boundaries, boundary{km: total})

	segments := make([]Segment, 0, len(boundaries)-1)
	now := time.Now()
	for i := 0; i < len(boundaries)-1; i++ {
		start, end := boundaries[i], boundaries[i+1]
		points := b.index.SegmentBetween(start.km, end.km, start.exact, end.exact)
		segments = append(segments, b.newSegment(i+1, points, end.km-start.km, now))
	}
	return segments, nil
}

// ValidateDistance reports whether an interval can segment this route
// without doing any geometry work, so callers can reject bad input before
// dispatching a computation. A route no longer than the interval is an
// error, as is an interval small enough to exceed MaxSegmentsLimit.
func (b *Builder) ValidateDistance(distanceKm float64) error {
	if distanceKm <= 0 {
		return errors.New("segment distance must be positive")
	}
	total := b.index.TotalKm()
	if total <= distanceKm+distanceEpsilon {
		return &RouteTooShortError{TotalKm: total, DistanceKm: distanceKm}
	}
	if count := int(math.Ceil(total / distanceKm)); count > MaxSegmentsLimit {
		return &MaxSegmentsError{Requested: count, Limit: MaxSegmentsLimit}
	}
	return nil
}

// ByDistance partitions the route into fixed-length intervals. The final
// segment absorbs the remainder.
func (b *Builder) ByDistance(distanceKm float64) ([]Segment, error) {
	if err := b.ValidateDistance(distanceKm); err != nil {
		return nil, err
	}

	total := b.index.TotalKm()
	count := int(math.Ceil(total / distanceKm))
	segments := make([]Segment, 0, count)
	now := time.Now()
	for i := 0; i < count; i++ {
		startKm := float64(i) * distanceKm
		endKm := startKm + distanceKm
		if i == count-1 {
			endKm = total
		}
		points := b.index.SegmentBetween(startKm, endKm, nil, nil)
		segments = append(segments, b.newSegment(i+1, points, endKm-startKm, now))
	}
	return segments, nil
}

// ByIndex partitions the route at raw coordinate indices instead of
// distances. This is the fallback for legacy cut points without distance
// metadata; its boundaries land on route vertices, so they can differ from
// ByCutPoints boundaries for the same cut set.
func (b *Builder) ByIndex(cuts []CutPoint) ([]Segment, error) {
	route := b.index.Points()

	indices := make([]int, 0, len(cuts))
	for _, cut := range cuts {
		indices = append(indices, snap.NearestIndex(cut.BoundaryCoordinates(), route))
	}
	sort.Ints(indices)

	boundaries := make([]int, 0, len(indices)+2)
	boundaries = append(boundaries, 0)
	for _, idx := range indices {
		if idx > boundaries[len(boundaries)-1] && idx < len(route)-1 {
			boundaries = append(boundaries, idx)
		}
	}
	boundaries = append(boundaries, len(route)-1)

	segments := make([]Segment, 0, len(boundaries)-1)
	now := time.Now()
	for i := 0; i < len(boundaries)-1; i++ {
		startIdx, endIdx := boundaries[i], boundaries[i+1]
		points := route[startIdx : endIdx+1]
		lengthKm := b.index.DistanceAtIndex(endIdx) - b.index.DistanceAtIndex(startIdx)
		segments = append(segments, b.newSegment(i+1, points, lengthKm, now))
	}
	return segments, nil
}

func (b *Builder) newSegment(order int, points []geo.Point, distanceKm float64, createdAt time.Time) Segment {
	return Segment{
		ID:         uuid.New().String(),
		RouteID:    b.routeID,
		Name:       fmt.Sprintf("Segment %d", order),
		Geometry:   geo.LineString(points),
		Order:      order,
		DistanceKm: distanceKm,
		CreatedAt:  createdAt,
	}
}
