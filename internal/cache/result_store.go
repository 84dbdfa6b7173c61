package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/dpup/routereg/server/internal/lib/segment"
)

// ResultTTL bounds how long a memoized segmentation survives. Route geometry
// is immutable for the life of a session, so results only need to expire to
// bound memory.
const ResultTTL = 30 * time.Minute

// ResultStore memoizes distance-mode segmentation results by route and
// interval, backed by the shared TTL cache.
type ResultStore struct {
	cache *Cache
}

// NewResultStore creates a result store backed by the given cache
func NewResultStore(cache *Cache) *ResultStore {
	return &ResultStore{cache: cache}
}

// resultKey builds the cache key for a route/interval pair
func resultKey(routeID string, distanceKm float64) string {
	return fmt.Sprintf("segmentation:%s:%.6f", routeID, distanceKm)
}

// Get returns a previously computed segmentation for the route/interval
// pair, or found=false when none is cached.
func (s *ResultStore) Get(ctx context.Context, routeID string, distanceKm float64) ([]segment.Segment, bool, error) {
	var segments []segment.Segment
	found, err := s.cache.Get(resultKey(routeID, distanceKm), &segments)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cached segmentation: %w", err)
	}
	if !found {
		return nil, false, nil
	}
	return segments, true, nil
}

// Put caches a successful segmentation result
func (s *ResultStore) Put(ctx context.Context, routeID string, distanceKm float64, segments []segment.Segment) error {
	return s.cache.Set(resultKey(routeID, distanceKm), segments, ResultTTL, "segmentation")
}

// Invalidate drops all cached results for a route. Called when a session
// ends or the target route changes.
func (s *ResultStore) Invalidate(routeID string) int {
	return s.cache.DeletePrefix(fmt.Sprintf("segmentation:%s:", routeID))
}
