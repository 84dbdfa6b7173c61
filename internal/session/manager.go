// Package session owns segmentation session state. A Manager is the single
// logical owner of its session: all mutation goes through its documented
// operations, each of which swaps in a freshly built State under the
// manager's lock.
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/dpup/routereg/server/internal/cache"
	"github.com/dpup/routereg/server/internal/compute"
	"github.com/dpup/routereg/server/internal/lib/geo"
	"github.com/dpup/routereg/server/internal/lib/polyline"
	"github.com/dpup/routereg/server/internal/lib/segment"
	"github.com/dpup/routereg/server/internal/lib/snap"
)

const (
	maxSnapshots = 10
	maxHistory   = 50
)

var (
	ErrNoActiveSession = errors.New("no active segmentation session")
	ErrNoGeometry      = errors.New("route has no usable geometry")
	ErrWrongMode       = errors.New("operation not valid in current mode")
	ErrUnknownCutPoint = errors.New("unknown cut point")
	ErrUnknownSnapshot = errors.New("unknown snapshot")
	ErrNothingToUndo   = errors.New("nothing to undo")
	ErrNothingToRedo   = errors.New("nothing to redo")
)

// Manager owns one segmentation session at a time. Distance-mode builds go
// through the coordinator (debounced, off the caller's goroutine); manual
// and intersection builds run synchronously on the caller.
type Manager struct {
	mu sync.Mutex

	sessionID string
	state     State

	index   *geo.DistanceIndex
	builder *segment.Builder

	coordinator *compute.Coordinator
	debouncer   *compute.Debouncer
	store       *cache.ResultStore

	undoStack []State
	redoStack []State
	snapshots []Snapshot // newest first
}

// NewManager creates a Manager with its own computation coordinator backed
// by the given result store. A non-positive debounce falls back to the
// default.
func NewManager(store *cache.ResultStore, debounce time.Duration) *Manager {
	m := &Manager{
		store:     store,
		debouncer: compute.NewDebouncer(debounce),
	}
	m.coordinator = compute.NewCoordinator(store, m.applyResult)
	return m
}

// Run starts the background computation worker. The worker stops when ctx
// is cancelled.
func (m *Manager) Run(ctx context.Context) {
	m.coordinator.Start(ctx)
}

// Start begins a session for the route in the given mode, replacing any
// prior session. A different target route discards all undo history and any
// snapshots taken for other routes.
func (m *Manager) Start(route Route, mode segment.Mode) error {
	switch mode {
	case segment.ModeManual, segment.ModeDistance, segment.ModeIntersections:
	default:
		return fmt.Errorf("unknown segmentation mode %q", mode)
	}

	points, err := polyline.DecodeFlexible(route.EncodedPolyline)
	if err != nil {
		return err
	}

	var index *geo.DistanceIndex
	var builder *segment.Builder
	totalKm := route.FallbackKm
	if len(points) >= 2 {
		index, err = geo.NewDistanceIndex(points)
		if err != nil {
			return err
		}
		builder = segment.NewBuilder(index, route.ID)
		totalKm = index.TotalKm()
	} else if route.FallbackKm <= 0 {
		return ErrNoGeometry
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Active {
		m.coordinator.Forget(m.sessionID)
		m.debouncer.Cancel()
	}
	if m.state.TargetRoute.ID != route.ID {
		m.snapshots = m.snapshotsForRoute(route.ID)
	}

	m.sessionID = uuid.New().String()
	m.index = index
	m.builder = builder
	m.undoStack = nil
	m.redoStack = nil
	m.state = State{
		Active:              true,
		TargetRoute:         route,
		Mode:                mode,
		SnapToRoute:         true,
		SnapPrecisionMeters: snap.DefaultPrecisionMeters,
		TotalKm:             totalKm,
	}
	return nil
}

// Stop ends the session, forgetting in-flight computation and dropping
// memoized results for the route.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.state.Active {
		return
	}
	m.coordinator.Forget(m.sessionID)
	m.debouncer.Cancel()
	m.store.Invalidate(m.state.TargetRoute.ID)
	m.state = State{}
	m.undoStack = nil
	m.redoStack = nil
	m.snapshots = nil
	m.index = nil
	m.builder = nil
}

// SwitchToManual switches the session to manual mode.
func (m *Manager) SwitchToManual() error { return m.switchMode(segment.ModeManual) }

// SwitchToDistance switches the session to distance mode.
func (m *Manager) SwitchToDistance() error { return m.switchMode(segment.ModeDistance) }

// SwitchToIntersections switches the session to intersections mode.
func (m *Manager) SwitchToIntersections() error { return m.switchMode(segment.ModeIntersections) }

// switchMode clears mode-specific inputs, the preview, and the undo/redo
// history. Skipping the history reset would let an undo resurrect inputs
// from a mode the session is no longer in.
func (m *Manager) switchMode(mode segment.Mode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.state.Active {
		return ErrNoActiveSession
	}
	if m.state.Mode == mode {
		return nil
	}

	m.debouncer.Cancel()
	m.coordinator.Forget(m.sessionID)
	m.undoStack = nil
	m.redoStack = nil

	next := m.state.clone()
	next.Mode = mode
	next.CutPoints = nil
	next.DistanceKm = 0
	next.PreviewSegments = nil
	next.SelectedSegmentIDs = nil
	next.IsCalculating = false
	next.Err = nil
	m.state = next
	return nil
}

// SetSnapOptions adjusts snapping behavior for subsequent cut point edits.
func (m *Manager) SetSnapOptions(snapToRoute bool, precisionMeters float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.state.Active {
		return ErrNoActiveSession
	}
	next := m.state.clone()
	next.SnapToRoute = snapToRoute
	if precisionMeters > 0 {
		next.SnapPrecisionMeters = precisionMeters
	}
	m.state = next
	return nil
}

// AddCutPoint places a cut point at p, snapped to the route. When snapping
// is on and p is outside the precision tolerance the point is rejected and
// not added.
func (m *Manager) AddCutPoint(p geo.Point) (segment.CutPoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireCutMode(); err != nil {
		return segment.CutPoint{}, err
	}

	cut, err := m.resolveCut(p)
	if err != nil {
		return segment.CutPoint{}, err
	}

	m.pushHistory()
	next := m.state.clone()
	next.CutPoints = append(next.CutPoints, cut)
	if err := m.rebuildFromCuts(&next); err != nil {
		return segment.CutPoint{}, err
	}
	m.state = next
	return cut, nil
}

// MoveCutPoint re-snaps an existing cut point to a new position.
func (m *Manager) MoveCutPoint(id string, p geo.Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireCutMode(); err != nil {
		return err
	}

	idx := m.findCut(id)
	if idx < 0 {
		return ErrUnknownCutPoint
	}

	moved, err := m.resolveCut(p)
	if err != nil {
		return err
	}

	m.pushHistory()
	next := m.state.clone()
	moved.ID = id
	next.CutPoints[idx] = moved
	if err := m.rebuildFromCuts(&next); err != nil {
		return err
	}
	m.state = next
	return nil
}

// RemoveCutPoint deletes a cut point and rebuilds the preview.
func (m *Manager) RemoveCutPoint(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireCutMode(); err != nil {
		return err
	}

	idx := m.findCut(id)
	if idx < 0 {
		return ErrUnknownCutPoint
	}

	m.pushHistory()
	next := m.state.clone()
	next.CutPoints = append(next.CutPoints[:idx], next.CutPoints[idx+1:]...)
	if err := m.rebuildFromCuts(&next); err != nil {
		return err
	}
	m.state = next
	return nil
}

// SetDistance sets the distance-mode interval and schedules a debounced
// recomputation on the background worker. Callers observe completion via
// IsCalculating on subsequent Current() reads.
func (m *Manager) SetDistance(distanceKm float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.state.Active {
		return ErrNoActiveSession
	}
	if m.state.Mode != segment.ModeDistance {
		return ErrWrongMode
	}
	if m.builder == nil {
		return ErrNoGeometry
	}
	if distanceKm <= 0 {
		return errors.New("segment distance must be positive")
	}

	m.pushHistory()
	next := m.state.clone()
	next.DistanceKm = distanceKm

	// Reject intervals the route cannot support before dispatching any
	// work. Failure clears the preview, same as a worker-delivered error:
	// the old preview no longer matches the recorded interval, and leaving
	// it behind would let an apply persist segments built for a different
	// interval.
	if err := m.builder.ValidateDistance(distanceKm); err != nil {
		next.PreviewSegments = nil
		next.SelectedSegmentIDs = nil
		next.IsCalculating = false
		next.Err = err
		m.state = next
		m.debouncer.Cancel()
		return nil
	}

	next.IsCalculating = true
	next.Err = nil
	m.state = next

	sessionID := m.sessionID
	routeID := m.state.TargetRoute.ID
	builder := m.builder
	m.debouncer.Schedule(func() {
		m.submitDistance(sessionID, routeID, builder, distanceKm)
	})
	return nil
}

// submitDistance runs on the debounce timer goroutine, outside the manager
// lock so a memoized result can be delivered inline.
func (m *Manager) submitDistance(sessionID, routeID string, builder *segment.Builder, distanceKm float64) {
	m.mu.Lock()
	stale := !m.state.Active || m.sessionID != sessionID ||
		m.state.Mode != segment.ModeDistance || m.state.DistanceKm != distanceKm
	m.mu.Unlock()
	if stale {
		return
	}
	m.coordinator.Submit(context.Background(), sessionID, routeID, builder, distanceKm)
}

// applyResult is the coordinator's delivery callback. The coordinator has
// already filtered stale epochs; this re-checks against live session state
// so a result can never land on a session that moved on.
func (m *Manager) applyResult(result compute.Result) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.state.Active ||
		m.sessionID != result.SessionID ||
		m.state.Mode != segment.ModeDistance ||
		m.state.TargetRoute.ID != result.RouteID ||
		m.state.DistanceKm != result.DistanceKm {
		return
	}

	next := m.state.clone()
	next.IsCalculating = false
	if result.Err != nil {
		next.PreviewSegments = nil
		next.SelectedSegmentIDs = nil
		next.Err = result.Err
	} else {
		next.PreviewSegments = result.Segments
		next.SelectedSegmentIDs = segmentIDs(result.Segments)
		next.Err = nil
	}
	m.state = next
}

// SetIntersections snaps each Point feature onto the route and rebuilds the
// preview from the resulting cut set. The feature collection is untrusted:
// non-Point features and points outside the snap tolerance are skipped.
func (m *Manager) SetIntersections(fc *geojson.FeatureCollection) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.state.Active {
		return ErrNoActiveSession
	}
	if m.state.Mode != segment.ModeIntersections {
		return ErrWrongMode
	}
	if m.index == nil {
		return ErrNoGeometry
	}

	var cuts []segment.CutPoint
	for _, feature := range fc.Features {
		point, ok := feature.Geometry.(orb.Point)
		if !ok {
			continue
		}
		cut, err := m.resolveCut(geo.FromOrb(point))
		if err != nil {
			var precErr *snap.OutOfPrecisionError
			if errors.As(err, &precErr) {
				continue
			}
			return err
		}
		cuts = append(cuts, cut)
	}

	m.pushHistory()
	next := m.state.clone()
	next.CutPoints = cuts
	if err := m.rebuildFromCuts(&next); err != nil {
		return err
	}
	m.state = next
	return nil
}

// ToggleSegmentSelection flips whether a preview segment is included in the
// eventual apply.
func (m *Manager) ToggleSegmentSelection(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.state.Active {
		return ErrNoActiveSession
	}

	next := m.state.clone()
	for i, selected := range next.SelectedSegmentIDs {
		if selected == id {
			next.SelectedSegmentIDs = append(next.SelectedSegmentIDs[:i], next.SelectedSegmentIDs[i+1:]...)
			m.state = next
			return nil
		}
	}
	next.SelectedSegmentIDs = append(next.SelectedSegmentIDs, id)
	m.state = next
	return nil
}

// Undo reverts the last mutating operation.
func (m *Manager) Undo() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.state.Active {
		return ErrNoActiveSession
	}
	if len(m.undoStack) == 0 {
		return ErrNothingToUndo
	}

	m.redoStack = append(m.redoStack, m.state.clone())
	m.state = m.undoStack[len(m.undoStack)-1]
	m.undoStack = m.undoStack[:len(m.undoStack)-1]
	return nil
}

// Redo reapplies the last undone operation.
func (m *Manager) Redo() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.state.Active {
		return ErrNoActiveSession
	}
	if len(m.redoStack) == 0 {
		return ErrNothingToRedo
	}

	m.undoStack = append(m.undoStack, m.state.clone())
	m.state = m.redoStack[len(m.redoStack)-1]
	m.redoStack = m.redoStack[:len(m.redoStack)-1]
	return nil
}

// CreateSnapshot captures the current cut points and preview segments.
// Snapshots live in a bounded ring, newest first; the oldest falls off when
// the ring is full.
func (m *Manager) CreateSnapshot(description string) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.state.Active {
		return Snapshot{}, ErrNoActiveSession
	}

	snapshot := Snapshot{
		ID:          uuid.New().String(),
		RouteID:     m.state.TargetRoute.ID,
		CutPoints:   cloneCutPoints(m.state.CutPoints),
		Segments:    cloneSegments(m.state.PreviewSegments),
		CreatedAt:   time.Now(),
		Description: description,
	}

	m.snapshots = append([]Snapshot{snapshot}, m.snapshots...)
	if len(m.snapshots) > maxSnapshots {
		m.snapshots = m.snapshots[:maxSnapshots]
	}
	return snapshot, nil
}

// Snapshots returns the snapshot ring, newest first.
func (m *Manager) Snapshots() []Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Snapshot, len(m.snapshots))
	for i, s := range m.snapshots {
		out[i] = s
		out[i].CutPoints = cloneCutPoints(s.CutPoints)
		out[i].Segments = cloneSegments(s.Segments)
	}
	return out
}

// RestoreSnapshot replaces cut points and preview segments verbatim from the
// snapshot. Snapshot content is trusted as already computed: restoring never
// retriggers distance-mode computation.
func (m *Manager) RestoreSnapshot(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.state.Active {
		return ErrNoActiveSession
	}

	var found *Snapshot
	for i := range m.snapshots {
		if m.snapshots[i].ID == id {
			found = &m.snapshots[i]
			break
		}
	}
	if found == nil {
		return ErrUnknownSnapshot
	}
	if found.RouteID != m.state.TargetRoute.ID {
		return fmt.Errorf("snapshot %s belongs to route %s", id, found.RouteID)
	}

	m.debouncer.Cancel()
	m.coordinator.Forget(m.sessionID)

	m.pushHistory()
	next := m.state.clone()
	next.CutPoints = cloneCutPoints(found.CutPoints)
	next.PreviewSegments = cloneSegments(found.Segments)
	next.SelectedSegmentIDs = segmentIDs(next.PreviewSegments)
	next.IsCalculating = false
	next.Err = nil
	m.state = next
	return nil
}

// Current returns a defensive copy of the session state.
func (m *Manager) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.clone()
}

// requireCutMode guards operations that edit the cut set directly.
func (m *Manager) requireCutMode() error {
	if !m.state.Active {
		return ErrNoActiveSession
	}
	if m.state.Mode != segment.ModeManual && m.state.Mode != segment.ModeIntersections {
		return ErrWrongMode
	}
	if m.index == nil {
		return ErrNoGeometry
	}
	return nil
}

// resolveCut snaps p onto the route and derives its distance from start.
func (m *Manager) resolveCut(p geo.Point) (segment.CutPoint, error) {
	result, err := snap.Snap(p, m.index.Points(), m.state.SnapPrecisionMeters)
	if err != nil {
		return segment.CutPoint{}, err
	}
	if m.state.SnapToRoute && !result.IsSnapped {
		return segment.CutPoint{}, &snap.OutOfPrecisionError{
			Point:           p,
			DistanceMeters:  result.DistanceMeters,
			PrecisionMeters: m.state.SnapPrecisionMeters,
		}
	}

	// Distance to the cut = cumulative distance at the edge's start vertex
	// plus the along-edge offset to the snapped point.
	offsetMeters, err := geo.PointToPoint(m.index.Points()[result.SegmentIndex], result.SnappedPoint)
	if err != nil {
		return segment.CutPoint{}, err
	}
	distanceKm := m.index.DistanceAtIndex(result.SegmentIndex) + offsetMeters/geo.MetersPerKm

	cut := segment.NewCutPoint(result.SnappedPoint, distanceKm)
	cut.Coordinates = p
	cut.IsSnapped = result.IsSnapped
	return cut, nil
}

// rebuildFromCuts renumbers the cut set by distance and rebuilds the preview
// synchronously. An empty cut set clears the preview.
func (m *Manager) rebuildFromCuts(next *State) error {
	sort.SliceStable(next.CutPoints, func(i, j int) bool {
		return next.CutPoints[i].DistanceFromStart < next.CutPoints[j].DistanceFromStart
	})
	for i := range next.CutPoints {
		next.CutPoints[i].Order = i + 1
	}

	if len(next.CutPoints) == 0 {
		next.PreviewSegments = nil
		next.SelectedSegmentIDs = nil
		next.Err = nil
		return nil
	}

	segments, err := m.builder.ByCutPoints(next.CutPoints)
	if err != nil {
		return err
	}
	next.PreviewSegments = segments
	next.SelectedSegmentIDs = segmentIDs(segments)
	next.Err = nil
	return nil
}

// findCut returns the index of the cut with the given id, or -1.
func (m *Manager) findCut(id string) int {
	for i, cut := range m.state.CutPoints {
		if cut.ID == id {
			return i
		}
	}
	return -1
}

// pushHistory records the current state for undo and clears the redo stack.
func (m *Manager) pushHistory() {
	m.undoStack = append(m.undoStack, m.state.clone())
	if len(m.undoStack) > maxHistory {
		m.undoStack = m.undoStack[1:]
	}
	m.redoStack = nil
}

// snapshotsForRoute filters the ring down to snapshots for the given route.
func (m *Manager) snapshotsForRoute(routeID string) []Snapshot {
	var kept []Snapshot
	for _, s := range m.snapshots {
		if s.RouteID == routeID {
			kept = append(kept, s)
		}
	}
	return kept
}

func segmentIDs(segments []segment.Segment) []string {
	ids := make([]string, len(segments))
	for i, s := range segments {
		ids[i] = s.ID
	}
	return ids
}
