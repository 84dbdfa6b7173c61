package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// equatorRoute builds a straight test route along the equator with the given
// number of edges, each 0.01 degrees (~1.112km) of longitude long.
func equatorRoute(edges int) []Point {
	points := make([]Point, edges+1)
	for i := range points {
		points[i] = Point{Latitude: 0, Longitude: float64(i) * 0.01}
	}
	return points
}

const edgeKm = 1.11195 // ~0.01 degrees of longitude at the equator

func TestNewDistanceIndex(t *testing.T) {
	ix, err := NewDistanceIndex(equatorRoute(10))
	require.NoError(t, err)

	assert.Equal(t, 11, ix.Len())
	assert.InDelta(t, 10*edgeKm, ix.TotalKm(), 0.001)

	// Cumulative distances are monotonically non-decreasing
	for i := 1; i < ix.Len(); i++ {
		assert.GreaterOrEqual(t, ix.DistanceAtIndex(i), ix.DistanceAtIndex(i-1))
	}

	// Too few points
	_, err = NewDistanceIndex([]Point{{Latitude: 0, Longitude: 0}})
	assert.Error(t, err)
	_, err = NewDistanceIndex(nil)
	assert.Error(t, err)
}

func TestDistanceIndex_DistanceAtIndex(t *testing.T) {
	ix, err := NewDistanceIndex(equatorRoute(4))
	require.NoError(t, err)

	assert.Zero(t, ix.DistanceAtIndex(0))
	assert.InDelta(t, 2*edgeKm, ix.DistanceAtIndex(2), 0.001)

	// Out-of-range indices clamp
	assert.Zero(t, ix.DistanceAtIndex(-1))
	assert.InDelta(t, ix.TotalKm(), ix.DistanceAtIndex(99), 1e-9)
}

func TestDistanceIndex_IndexAtDistance(t *testing.T) {
	ix, err := NewDistanceIndex(equatorRoute(4))
	require.NoError(t, err)

	assert.Equal(t, 0, ix.IndexAtDistance(0))
	assert.Equal(t, 0, ix.IndexAtDistance(edgeKm/2))
	assert.Equal(t, 1, ix.IndexAtDistance(edgeKm*1.5))
	assert.Equal(t, 4, ix.IndexAtDistance(ix.TotalKm()))

	// Clamped
	assert.Equal(t, 0, ix.IndexAtDistance(-5))
	assert.Equal(t, 4, ix.IndexAtDistance(999))
}

func TestDistanceIndex_PointAtDistance(t *testing.T) {
	ix, err := NewDistanceIndex(equatorRoute(4))
	require.NoError(t, err)

	// Exactly at a vertex
	p := ix.PointAtDistance(edgeKm)
	assert.InDelta(t, 0.01, p.Longitude, 1e-6)

	// Midway along an edge
	p = ix.PointAtDistance(edgeKm * 1.5)
	assert.InDelta(t, 0.015, p.Longitude, 1e-6)

	// Clamped at both ends
	assert.Equal(t, ix.Points()[0], ix.PointAtDistance(-1))
	assert.Equal(t, ix.Points()[4], ix.PointAtDistance(999))
}

func TestDistanceIndex_SegmentBetween(t *testing.T) {
	ix, err := NewDistanceIndex(equatorRoute(10))
	require.NoError(t, err)

	// Sub-sequence spanning interior vertices
	coords := ix.SegmentBetween(edgeKm*1.5, edgeKm*3.5, nil, nil)
	require.Len(t, coords, 4) // interpolated start, vertices 2 and 3, interpolated end
	assert.InDelta(t, 0.015, coords[0].Longitude, 1e-6)
	assert.InDelta(t, 0.02, coords[1].Longitude, 1e-6)
	assert.InDelta(t, 0.03, coords[2].Longitude, 1e-6)
	assert.InDelta(t, 0.035, coords[3].Longitude, 1e-6)

	// The resulting sub-sequence length matches the requested span
	spanKm, err := PathLengthKm(coords)
	require.NoError(t, err)
	assert.InDelta(t, 2*edgeKm, spanKm, 0.01)
}

func TestDistanceIndex_SegmentBetween_ExactEndpoints(t *testing.T) {
	ix, err := NewDistanceIndex(equatorRoute(10))
	require.NoError(t, err)

	// Exact snapped coordinates override the interpolated boundary points
	exactStart := Point{Latitude: 0.0001, Longitude: 0.0151}
	exactEnd := Point{Latitude: -0.0001, Longitude: 0.0349}
	coords := ix.SegmentBetween(edgeKm*1.5, edgeKm*3.5, &exactStart, &exactEnd)

	assert.Equal(t, exactStart, coords[0])
	assert.Equal(t, exactEnd, coords[len(coords)-1])
}

func TestDistanceIndex_SegmentBetween_EdgeCases(t *testing.T) {
	ix, err := NewDistanceIndex(equatorRoute(10))
	require.NoError(t, err)

	// Zero-length request returns just the two boundary coordinates
	coords := ix.SegmentBetween(edgeKm*2, edgeKm*2, nil, nil)
	require.Len(t, coords, 2)
	assert.Equal(t, coords[0], coords[1])

	// Out-of-range requests clamp to [0, total]
	coords = ix.SegmentBetween(-5, 999, nil, nil)
	assert.Equal(t, ix.Points()[0], coords[0])
	assert.Equal(t, ix.Points()[10], coords[len(coords)-1])

	// Inverted bounds are reordered
	coords = ix.SegmentBetween(edgeKm*3.5, edgeKm*1.5, nil, nil)
	assert.InDelta(t, 0.015, coords[0].Longitude, 1e-6)
	assert.InDelta(t, 0.035, coords[len(coords)-1].Longitude, 1e-6)
}
