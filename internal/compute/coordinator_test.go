package compute

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dpup/prefab/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpup/routereg/server/internal/cache"
	"github.com/dpup/routereg/server/internal/lib/geo"
	"github.com/dpup/routereg/server/internal/lib/segment"
)

// resultRecorder collects delivered results for assertions.
type resultRecorder struct {
	mu      sync.Mutex
	results []Result
}

func (r *resultRecorder) record(res Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
}

func (r *resultRecorder) all() []Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Result, len(r.results))
	copy(out, r.results)
	return out
}

func (r *resultRecorder) waitFor(t *testing.T, n int) []Result {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if results := r.all(); len(results) >= n {
			return results
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d results, have %d", n, len(r.all()))
	return nil
}

func testBuilder(t *testing.T, edges int) *segment.Builder {
	t.Helper()
	points := make([]geo.Point, edges+1)
	for i := range points {
		points[i] = geo.Point{Latitude: 0, Longitude: float64(i) * 0.01}
	}
	index, err := geo.NewDistanceIndex(points)
	require.NoError(t, err)
	return segment.NewBuilder(index, "route-1")
}

func newTestCoordinator(recorder *resultRecorder) (*Coordinator, context.CancelFunc) {
	store := cache.NewResultStore(cache.NewCache())
	c := NewCoordinator(store, recorder.record)
	ctx, cancel := context.WithCancel(logging.With(context.Background(), logging.NewDevLogger()))
	c.Start(ctx)
	return c, cancel
}

func TestCoordinator_DeliversResult(t *testing.T) {
	recorder := &resultRecorder{}
	c, cancel := newTestCoordinator(recorder)
	defer cancel()

	builder := testBuilder(t, 11) // ~12.2 km
	epoch := c.Submit(context.Background(), "s1", "route-1", builder, 5.0)

	results := recorder.waitFor(t, 1)
	require.Len(t, results, 1)
	assert.Equal(t, epoch, results[0].Epoch)
	assert.NoError(t, results[0].Err)
	assert.Len(t, results[0].Segments, 3)
}

func TestCoordinator_StaleRequestDropped(t *testing.T) {
	recorder := &resultRecorder{}
	store := cache.NewResultStore(cache.NewCache())
	c := NewCoordinator(store, recorder.record)

	builder := testBuilder(t, 11)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Both requests are queued before the worker starts, so it sees the
	// superseded one first. Only the second may produce a result.
	c.Submit(ctx, "s1", "route-1", builder, 2.0)
	epoch2 := c.Submit(ctx, "s1", "route-1", builder, 5.0)
	c.Start(ctx)

	results := recorder.waitFor(t, 1)
	// Give a dropped first result a chance to surface erroneously.
	time.Sleep(50 * time.Millisecond)
	results = recorder.all()

	require.Len(t, results, 1)
	assert.Equal(t, epoch2, results[0].Epoch)
	assert.InDelta(t, 5.0, results[0].DistanceKm, 1e-9)
}

func TestCoordinator_ValidationErrorPassesThrough(t *testing.T) {
	recorder := &resultRecorder{}
	c, cancel := newTestCoordinator(recorder)
	defer cancel()

	builder := testBuilder(t, 4) // ~4.4 km
	c.Submit(context.Background(), "s1", "route-1", builder, 100.0)

	results := recorder.waitFor(t, 1)
	var tooShort *segment.RouteTooShortError
	require.True(t, errors.As(results[0].Err, &tooShort))
	assert.False(t, errors.Is(results[0].Err, ErrComputationFailed))
}

func TestCoordinator_WorkerSurvivesFailure(t *testing.T) {
	recorder := &resultRecorder{}
	c, cancel := newTestCoordinator(recorder)
	defer cancel()

	builder := testBuilder(t, 11)
	ctx := context.Background()

	c.Submit(ctx, "s1", "route-1", builder, 100.0) // fails: route too short
	recorder.waitFor(t, 1)

	c.Submit(ctx, "s1", "route-1", builder, 5.0) // succeeds
	results := recorder.waitFor(t, 2)
	assert.NoError(t, results[1].Err)
	assert.Len(t, results[1].Segments, 3)
}

func TestCoordinator_WorkerSurvivesPanic(t *testing.T) {
	recorder := &resultRecorder{}
	c, cancel := newTestCoordinator(recorder)
	defer cancel()

	ctx := context.Background()

	// A builder with no index panics inside the worker. The panic must
	// surface as a failed result, not a hung or dead worker.
	c.Submit(ctx, "s1", "route-1", segment.NewBuilder(nil, "route-1"), 5.0)
	results := recorder.waitFor(t, 1)
	assert.ErrorIs(t, results[0].Err, ErrComputationFailed)

	c.Submit(ctx, "s2", "route-1", testBuilder(t, 11), 5.0)
	results = recorder.waitFor(t, 2)
	assert.NoError(t, results[1].Err)
	assert.Len(t, results[1].Segments, 3)
}

func TestCoordinator_Memoization(t *testing.T) {
	recorder := &resultRecorder{}
	store := cache.NewResultStore(cache.NewCache())
	c := NewCoordinator(store, recorder.record)
	// Worker deliberately not started: a memoized result must be delivered
	// without it.
	ctx := context.Background()

	cached := []segment.Segment{{ID: "s1", RouteID: "route-1", Order: 1, DistanceKm: 5.0}}
	require.NoError(t, store.Put(ctx, "route-1", 5.0, cached))

	builder := testBuilder(t, 11)
	c.Submit(ctx, "s1", "route-1", builder, 5.0)

	results := recorder.all()
	require.Len(t, results, 1)
	assert.NoError(t, results[0].Err)
	require.Len(t, results[0].Segments, 1)
	assert.Equal(t, "s1", results[0].Segments[0].ID)
}

func TestCoordinator_SessionNamespacing(t *testing.T) {
	recorder := &resultRecorder{}
	c, cancel := newTestCoordinator(recorder)
	defer cancel()

	builder := testBuilder(t, 11)
	ctx := context.Background()

	// Concurrent sessions do not invalidate each other.
	c.Submit(ctx, "s1", "route-1", builder, 5.0)
	c.Submit(ctx, "s2", "route-1", builder, 3.0)

	results := recorder.waitFor(t, 2)
	sessions := map[string]bool{}
	for _, r := range results {
		assert.NoError(t, r.Err)
		sessions[r.SessionID] = true
	}
	assert.True(t, sessions["s1"])
	assert.True(t, sessions["s2"])
}

func TestCoordinator_Forget(t *testing.T) {
	recorder := &resultRecorder{}
	c, cancel := newTestCoordinator(recorder)
	defer cancel()

	builder := testBuilder(t, 11)
	c.Submit(context.Background(), "s1", "route-1", builder, 5.0)
	c.Forget("s1")

	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, recorder.all())
}

func TestDebouncer_Coalesces(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)

	var mu sync.Mutex
	var fired []int
	for i := 0; i < 5; i++ {
		i := i
		d.Schedule(func() {
			mu.Lock()
			fired = append(fired, i)
			mu.Unlock()
		})
		time.Sleep(2 * time.Millisecond)
	}

	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, fired, 1)
	assert.Equal(t, 4, fired[0])
}

func TestDebouncer_Cancel(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)

	fired := make(chan struct{}, 1)
	d.Schedule(func() { fired <- struct{}{} })
	d.Cancel()

	select {
	case <-fired:
		t.Fatal("cancelled call still fired")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDebouncer_DefaultDelay(t *testing.T) {
	d := NewDebouncer(0)
	assert.Equal(t, DefaultDebounce, d.delay)
}
