package segment

import (
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"

	"github.com/dpup/routereg/server/internal/lib/geo"
)

// MaxSegmentsLimit caps how many segments a single build may produce.
// Distance-mode builds on long routes with tiny intervals are rejected
// before any geometry work happens.
const MaxSegmentsLimit = 10000

// CutPoint marks a position on the route where a segment boundary goes.
// Order is derived for display; the authoritative ordering is always by
// DistanceFromStart.
type CutPoint struct {
	ID                 string     `json:"id"`
	Coordinates        geo.Point  `json:"coordinates"`
	Order              int        `json:"order"`
	DistanceFromStart  float64    `json:"distanceFromStart"` // km from route start
	IsSnapped          bool       `json:"isSnapped"`
	SnappedCoordinates *geo.Point `json:"snappedCoordinates,omitempty"`
}

// NewCutPoint creates a cut point at the given snapped position.
func NewCutPoint(snapped geo.Point, distanceKm float64) CutPoint {
	p := snapped
	return CutPoint{
		ID:                 uuid.New().String(),
		Coordinates:        snapped,
		DistanceFromStart:  distanceKm,
		IsSnapped:          true,
		SnappedCoordinates: &p,
	}
}

// BoundaryCoordinates returns the coordinate to use as a segment boundary:
// the snapped position when available, the raw position otherwise.
func (c CutPoint) BoundaryCoordinates() geo.Point {
	if c.SnappedCoordinates != nil {
		return *c.SnappedCoordinates
	}
	return c.Coordinates
}

// Segment is one contiguous piece of a segmented route. Segments are always
// recomputed wholesale; they are never patched in place.
type Segment struct {
	ID         string         `json:"id"`
	RouteID    string         `json:"routeId"`
	Name       string         `json:"name"`
	Geometry   orb.LineString `json:"geometry"`
	Order      int            `json:"order"` // 1-based
	DistanceKm float64        `json:"distanceKm"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// Mode selects which builder strategy produced (or should produce) a
// segmentation.
type Mode string

const (
	ModeManual        Mode = "manual"
	ModeDistance      Mode = "distance"
	ModeIntersections Mode = "intersections"
)
