package segment

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpup/routereg/server/internal/lib/geo"
)

// equatorRoute builds a route along the equator with the given number of
// edges, each 0.01 degrees of longitude (~1.112 km).
func equatorRoute(t *testing.T, edges int) *geo.DistanceIndex {
	t.Helper()
	points := make([]geo.Point, edges+1)
	for i := range points {
		points[i] = geo.Point{Latitude: 0, Longitude: float64(i) * 0.01}
	}
	index, err := geo.NewDistanceIndex(points)
	require.NoError(t, err)
	return index
}

func cutAt(index *geo.DistanceIndex, km float64) CutPoint {
	return NewCutPoint(index.PointAtDistance(km), km)
}

func assertSumInvariant(t *testing.T, segments []Segment, totalKm float64) {
	t.Helper()
	sum := 0.0
	for _, s := range segments {
		sum += s.DistanceKm
	}
	assert.InDelta(t, totalKm, sum, 0.01)
}

func assertContiguous(t *testing.T, segments []Segment) {
	t.Helper()
	for i := 0; i < len(segments)-1; i++ {
		last := segments[i].Geometry[len(segments[i].Geometry)-1]
		first := segments[i+1].Geometry[0]
		assert.InDelta(t, last.Lat(), first.Lat(), 1e-9)
		assert.InDelta(t, last.Lon(), first.Lon(), 1e-9)
	}
}

func TestByCutPoints_ThreeSegments(t *testing.T) {
	index := equatorRoute(t, 11) // ~12.2 km
	builder := NewBuilder(index, "route-1")

	segments, err := builder.ByCutPoints([]CutPoint{
		cutAt(index, 4.0),
		cutAt(index, 9.0),
	})
	require.NoError(t, err)
	require.Len(t, segments, 3)

	assert.InDelta(t, 4.0, segments[0].DistanceKm, 1e-9)
	assert.InDelta(t, 5.0, segments[1].DistanceKm, 1e-9)
	assert.InDelta(t, index.TotalKm()-9.0, segments[2].DistanceKm, 1e-9)

	for i, s := range segments {
		assert.Equal(t, i+1, s.Order)
		assert.Equal(t, fmt.Sprintf("Segment %d", i+1), s.Name)
		assert.Equal(t, "route-1", s.RouteID)
		assert.NotEmpty(t, s.ID)
	}

	assertSumInvariant(t, segments, index.TotalKm())
	assertContiguous(t, segments)
}

func TestByCutPoints_ExactSnappedBoundary(t *testing.T) {
	index := equatorRoute(t, 10)
	builder := NewBuilder(index, "route-1")

	// The snapped coordinate, not the interpolated curve point, becomes the
	// shared boundary between adjacent segments.
	snapped := geo.Point{Latitude: 0.00001, Longitude: 0.045}
	cut := NewCutPoint(snapped, 5.0)

	segments, err := builder.ByCutPoints([]CutPoint{cut})
	require.NoError(t, err)
	require.Len(t, segments, 2)

	boundary := segments[0].Geometry[len(segments[0].Geometry)-1]
	assert.Equal(t, snapped.Latitude, boundary.Lat())
	assert.Equal(t, snapped.Longitude, boundary.Lon())
	assert.Equal(t, boundary, segments[1].Geometry[0])
}

func TestByCutPoints_NoCuts(t *testing.T) {
	index := equatorRoute(t, 5)
	builder := NewBuilder(index, "route-1")

	segments, err := builder.ByCutPoints(nil)
	require.NoError(t, err)
	require.Len(t, segments, 1)
	assert.Equal(t, 1, segments[0].Order)
	assert.InDelta(t, index.TotalKm(), segments[0].DistanceKm, 1e-9)
}

func TestByCutPoints_StableTies(t *testing.T) {
	index := equatorRoute(t, 10)
	builder := NewBuilder(index, "route-1")

	segments, err := builder.ByCutPoints([]CutPoint{
		cutAt(index, 3.0),
		cutAt(index, 3.0),
	})
	require.NoError(t, err)
	require.Len(t, segments, 3)
	assert.InDelta(t, 0, segments[1].DistanceKm, 1e-9)
	assertSumInvariant(t, segments, index.TotalKm())
}

func TestByCutPoints_OutOfRange(t *testing.T) {
	index := equatorRoute(t, 5)
	builder := NewBuilder(index, "route-1")

	_, err := builder.ByCutPoints([]CutPoint{cutAt(index, 2.0), {
		ID:                "bad",
		DistanceFromStart: index.TotalKm() + 1,
	}})
	assert.Error(t, err)
}

func TestByDistance(t *testing.T) {
	index := equatorRoute(t, 11) // ~12.2 km
	builder := NewBuilder(index, "route-1")

	segments, err := builder.ByDistance(5.0)
	require.NoError(t, err)
	require.Len(t, segments, 3)

	assert.InDelta(t, 5.0, segments[0].DistanceKm, 1e-9)
	assert.InDelta(t, 5.0, segments[1].DistanceKm, 1e-9)
	// Final segment absorbs the remainder.
	assert.InDelta(t, index.TotalKm()-10.0, segments[2].DistanceKm, 1e-9)

	assertSumInvariant(t, segments, index.TotalKm())
	assertContiguous(t, segments)
}

func TestByDistance_RouteTooShort(t *testing.T) {
	index := equatorRoute(t, 4)
	builder := NewBuilder(index, "route-1")

	// Interval exactly equal to the route length cannot cut even once.
	_, err := builder.ByDistance(index.TotalKm())

	var tooShort *RouteTooShortError
	require.True(t, errors.As(err, &tooShort))
	assert.Equal(t, index.TotalKm(), tooShort.DistanceKm)
}

func TestByDistance_MaxSegments(t *testing.T) {
	// ~55 km route, 1 m intervals: far past the segment limit.
	points := []geo.Point{{Latitude: 0, Longitude: 0}, {Latitude: 0, Longitude: 0.5}}
	index, err := geo.NewDistanceIndex(points)
	require.NoError(t, err)
	builder := NewBuilder(index, "route-1")

	_, err = builder.ByDistance(0.001)

	var maxErr *MaxSegmentsError
	require.True(t, errors.As(err, &maxErr))
	assert.Equal(t, MaxSegmentsLimit, maxErr.Limit)
	assert.Greater(t, maxErr.Requested, MaxSegmentsLimit)
}

func TestByDistance_Validation(t *testing.T) {
	index := equatorRoute(t, 5)
	builder := NewBuilder(index, "route-1")

	_, err := builder.ByDistance(0)
	assert.Error(t, err)
	_, err = builder.ByDistance(-1)
	assert.Error(t, err)
}

func TestByIndex_DivergesFromByCutPoints(t *testing.T) {
	index := equatorRoute(t, 11)
	builder := NewBuilder(index, "route-1")

	// A cut between vertices: ByCutPoints splits at the exact distance,
	// ByIndex lands on the nearest vertex, so the boundary moves.
	cuts := []CutPoint{cutAt(index, 4.0)}

	byDistance, err := builder.ByCutPoints(cuts)
	require.NoError(t, err)
	byIndex, err := builder.ByIndex(cuts)
	require.NoError(t, err)

	require.Len(t, byDistance, 2)
	require.Len(t, byIndex, 2)
	assert.Greater(t, math.Abs(byDistance[0].DistanceKm-byIndex[0].DistanceKm), 0.1)

	assertSumInvariant(t, byIndex, index.TotalKm())
	assertContiguous(t, byIndex)
}

func TestByIndex_IgnoresDegenerateCuts(t *testing.T) {
	index := equatorRoute(t, 5)
	builder := NewBuilder(index, "route-1")

	// Cuts at the route endpoints collapse into the outer boundaries.
	segments, err := builder.ByIndex([]CutPoint{
		{Coordinates: index.Points()[0]},
		{Coordinates: index.Points()[5]},
	})
	require.NoError(t, err)
	assert.Len(t, segments, 1)
}
