package session

import (
	"time"

	"github.com/dpup/routereg/server/internal/lib/segment"
)

// Route is the input contract from route-drawing and import collaborators.
// EncodedPolyline is the geometry source of truth; FallbackKm is a length
// estimate used only when decoding yields no usable coordinates.
type Route struct {
	ID              string  `json:"id"`
	EncodedPolyline string  `json:"encodedPolyline"`
	FallbackKm      float64 `json:"distance"`
}

// Snapshot is a point-in-time copy of the session's cut points and preview
// segments, restorable independently of undo/redo.
type Snapshot struct {
	ID          string             `json:"id"`
	RouteID     string             `json:"routeId"`
	CutPoints   []segment.CutPoint `json:"cutPoints"`
	Segments    []segment.Segment  `json:"segments"`
	CreatedAt   time.Time          `json:"createdAt"`
	Description string             `json:"description,omitempty"`
}

// State is an immutable view of the segmentation session. Every transition
// replaces the whole value; callers never see a partially updated state.
type State struct {
	Active              bool
	TargetRoute         Route
	Mode                segment.Mode
	CutPoints           []segment.CutPoint
	DistanceKm          float64
	PreviewSegments     []segment.Segment
	SelectedSegmentIDs  []string
	IsCalculating       bool
	Err                 error
	SnapToRoute         bool
	SnapPrecisionMeters float64
	TotalKm             float64
}

// clone deep-copies the slices so a stored State can never alias a live one.
func (s State) clone() State {
	out := s
	out.CutPoints = cloneCutPoints(s.CutPoints)
	out.PreviewSegments = cloneSegments(s.PreviewSegments)
	out.SelectedSegmentIDs = append([]string(nil), s.SelectedSegmentIDs...)
	return out
}

func cloneCutPoints(cuts []segment.CutPoint) []segment.CutPoint {
	if cuts == nil {
		return nil
	}
	out := make([]segment.CutPoint, len(cuts))
	for i, c := range cuts {
		out[i] = c
		if c.SnappedCoordinates != nil {
			p := *c.SnappedCoordinates
			out[i].SnappedCoordinates = &p
		}
	}
	return out
}

func cloneSegments(segments []segment.Segment) []segment.Segment {
	if segments == nil {
		return nil
	}
	out := make([]segment.Segment, len(segments))
	for i, s := range segments {
		out[i] = s
		out[i].Geometry = append(s.Geometry[:0:0], s.Geometry...)
	}
	return out
}
