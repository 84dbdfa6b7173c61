package services

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/dpup/routereg/server/internal/cache"
	"github.com/dpup/routereg/server/internal/clients/google"
	"github.com/dpup/routereg/server/internal/clients/registry"
	"github.com/dpup/routereg/server/internal/clients/roadnetwork"
	"github.com/dpup/routereg/server/internal/config"
	"github.com/dpup/routereg/server/internal/lib/geo"
	"github.com/dpup/routereg/server/internal/lib/polyline"
	"github.com/dpup/routereg/server/internal/lib/segment"
	"github.com/dpup/routereg/server/internal/session"
)

// SegmentationService orchestrates segmentation sessions: route acquisition,
// intersection fetch, session edits, and persistence.
type SegmentationService struct {
	googleClient       *google.Client
	intersectionClient *roadnetwork.Client
	registryClient     *registry.Client
	manager            *session.Manager
	config             *config.SegmentationConfig
}

// NewSegmentationService creates a SegmentationService with its own session
// manager backed by the shared cache.
func NewSegmentationService(
	googleClient *google.Client,
	intersectionClient *roadnetwork.Client,
	registryClient *registry.Client,
	sharedCache *cache.Cache,
	cfg *config.SegmentationConfig,
) *SegmentationService {
	return &SegmentationService{
		googleClient:       googleClient,
		intersectionClient: intersectionClient,
		registryClient:     registryClient,
		manager:            session.NewManager(cache.NewResultStore(sharedCache), cfg.Debounce),
		config:             cfg,
	}
}

// Run starts the background computation worker
func (s *SegmentationService) Run(ctx context.Context) {
	s.manager.Run(ctx)
}

// Manager exposes the session manager for direct session operations
func (s *SegmentationService) Manager() *session.Manager {
	return s.manager
}

// StartSession begins a segmentation session for an existing route
func (s *SegmentationService) StartSession(route session.Route, mode segment.Mode) error {
	log.Printf("Starting %s segmentation session for route %s", mode, route.ID)

	if err := s.manager.Start(route, mode); err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	if s.config.SnapPrecisionMeters > 0 {
		if err := s.manager.SetSnapOptions(true, s.config.SnapPrecisionMeters); err != nil {
			return err
		}
	}
	return nil
}

// StartSessionFromEndpoints computes a route between two coordinates and
// starts a session on the result.
func (s *SegmentationService) StartSessionFromEndpoints(ctx context.Context, origin, destination geo.Point, mode segment.Mode) (session.Route, error) {
	log.Printf("Computing route (%.4f, %.4f) -> (%.4f, %.4f)",
		origin.Latitude, origin.Longitude, destination.Latitude, destination.Longitude)

	routeData, err := s.googleClient.ComputeRoute(ctx, origin, destination)
	if err != nil {
		return session.Route{}, fmt.Errorf("failed to compute route: %w", err)
	}

	route := session.Route{
		ID:              uuid.New().String(),
		EncodedPolyline: routeData.EncodedPolyline,
		FallbackKm:      float64(routeData.DistanceMeters) / geo.MetersPerKm,
	}
	return route, s.StartSession(route, mode)
}

// StartSessionFromGeoJSON imports route geometry from a GeoJSON document
func (s *SegmentationService) StartSessionFromGeoJSON(data []byte, routeID string, mode segment.Mode) (session.Route, error) {
	points, err := polyline.FromGeoJSON(data)
	if err != nil {
		return session.Route{}, err
	}
	return s.startFromPoints(points, routeID, mode)
}

// StartSessionFromKML imports route geometry from a KML document
func (s *SegmentationService) StartSessionFromKML(data []byte, routeID string, mode segment.Mode) (session.Route, error) {
	points, err := polyline.FromKML(data)
	if err != nil {
		return session.Route{}, err
	}
	return s.startFromPoints(points, routeID, mode)
}

func (s *SegmentationService) startFromPoints(points []geo.Point, routeID string, mode segment.Mode) (session.Route, error) {
	if routeID == "" {
		routeID = uuid.New().String()
	}
	route := session.Route{
		ID:              routeID,
		EncodedPolyline: polyline.Encode(points),
	}
	return route, s.StartSession(route, mode)
}

// LoadIntersections fetches road-network intersections for the session's
// route and applies them as cut points. Requires intersections mode.
func (s *SegmentationService) LoadIntersections(ctx context.Context) error {
	state := s.manager.Current()
	if !state.Active {
		return session.ErrNoActiveSession
	}

	log.Printf("Fetching intersections for route %s", state.TargetRoute.ID)

	fc, err := s.intersectionClient.FetchIntersections(ctx, state.TargetRoute.EncodedPolyline)
	if err != nil {
		return fmt.Errorf("failed to fetch intersections: %w", err)
	}
	log.Printf("Fetched %d intersection features", len(fc.Features))

	return s.manager.SetIntersections(fc)
}

// Apply persists the selected preview segments and, on success, ends the
// session. On failure the session and its preview stay intact for retry.
func (s *SegmentationService) Apply(ctx context.Context) (*registry.ApplyResult, error) {
	state := s.manager.Current()
	if !state.Active {
		return nil, session.ErrNoActiveSession
	}
	if state.IsCalculating {
		return nil, fmt.Errorf("segmentation still calculating")
	}
	if len(state.PreviewSegments) == 0 {
		return nil, fmt.Errorf("no segments to apply")
	}

	selected := selectedSegments(state)
	if len(selected) == 0 {
		return nil, fmt.Errorf("no segments selected")
	}

	req := registry.ApplyRequest{
		Type:       state.Mode,
		CutPoints:  state.CutPoints,
		DistanceKm: state.DistanceKm,
		Segments:   selected,
	}

	result, err := s.registryClient.ApplySegmentation(ctx, state.TargetRoute.ID, req)
	if err != nil {
		log.Printf("Failed to apply segmentation for route %s: %v", state.TargetRoute.ID, err)
		return nil, err
	}

	log.Printf("Applied %d segments to route %s", result.SegmentsSaved, result.RouteID)
	s.manager.Stop()
	return result, nil
}

// Clear removes any stored segmentation for a route
func (s *SegmentationService) Clear(ctx context.Context, routeID string) error {
	log.Printf("Clearing segmentation for route %s", routeID)
	return s.registryClient.ClearSegmentation(ctx, routeID)
}

// selectedSegments filters the preview down to the selected set, keeping
// segment order.
func selectedSegments(state session.State) []segment.Segment {
	selected := make(map[string]bool, len(state.SelectedSegmentIDs))
	for _, id := range state.SelectedSegmentIDs {
		selected[id] = true
	}

	var out []segment.Segment
	for _, s := range state.PreviewSegments {
		if selected[s.ID] {
			out = append(out, s)
		}
	}
	return out
}
