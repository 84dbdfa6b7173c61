// Package compute offloads expensive segmentation work to a background
// worker. Requests carry a monotonic epoch; a result is applied only when
// its epoch still matches the most recently issued request for that
// session, so rapid input changes can never regress the session to a stale
// computation.
package compute

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	prefaberrors "github.com/dpup/prefab/errors"
	"github.com/dpup/prefab/logging"

	"github.com/dpup/routereg/server/internal/cache"
	"github.com/dpup/routereg/server/internal/lib/segment"
)

// ErrComputationFailed marks an unexpected worker failure, as opposed to a
// validation error from the builder itself.
var ErrComputationFailed = errors.New("segmentation computation failed")

// Result is delivered to the coordinator's result callback. Exactly one of
// Segments or Err is set.
type Result struct {
	SessionID  string
	RouteID    string
	DistanceKm float64
	Epoch      uint64
	Segments   []segment.Segment
	Err        error
}

// request is one unit of work for the background worker.
type request struct {
	sessionID  string
	routeID    string
	distanceKm float64
	epoch      uint64
	builder    *segment.Builder
}

// Coordinator dispatches distance-mode segmentation to a single background
// worker. Cancellation is response-side only: there is no cancel message,
// stale results are simply dropped at delivery time.
type Coordinator struct {
	store    *cache.ResultStore
	onResult func(Result)

	requests chan request

	mu     sync.Mutex
	epochs map[string]uint64 // current expected epoch per session
}

// NewCoordinator creates a Coordinator. onResult is invoked (from the worker
// goroutine, or inline on a memoization hit) for every result that matches
// the current epoch; stale results never reach it.
func NewCoordinator(store *cache.ResultStore, onResult func(Result)) *Coordinator {
	return &Coordinator{
		store:    store,
		onResult: onResult,
		requests: make(chan request, 64),
		epochs:   make(map[string]uint64),
	}
}

// Start launches the background worker. The worker runs until ctx is
// cancelled and survives individual request failures.
func (c *Coordinator) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case req := <-c.requests:
				c.process(ctx, req)
			}
		}
	}()
}

// Submit issues a new segmentation request for the session, invalidating any
// request still in flight. Returns the epoch assigned to this request. If a
// memoized result exists for the route/interval pair, it is delivered
// synchronously and the worker is never involved.
func (c *Coordinator) Submit(ctx context.Context, sessionID, routeID string, builder *segment.Builder, distanceKm float64) uint64 {
	c.mu.Lock()
	c.epochs[sessionID]++
	epoch := c.epochs[sessionID]
	c.mu.Unlock()

	if cached, found, err := c.store.Get(ctx, routeID, distanceKm); err == nil && found {
		c.deliver(Result{
			SessionID:  sessionID,
			RouteID:    routeID,
			DistanceKm: distanceKm,
			Epoch:      epoch,
			Segments:   cached,
		})
		return epoch
	}

	req := request{
		sessionID:  sessionID,
		routeID:    routeID,
		distanceKm: distanceKm,
		epoch:      epoch,
		builder:    builder,
	}

	select {
	case c.requests <- req:
	default:
		// Queue full. Every queued request for this session is already
		// stale (a newer epoch exists), so dropping is safe; report it as
		// a failure so the session does not hang on isCalculating.
		c.deliver(Result{
			SessionID:  sessionID,
			RouteID:    routeID,
			DistanceKm: distanceKm,
			Epoch:      epoch,
			Err:        fmt.Errorf("%w: request queue full", ErrComputationFailed),
		})
	}
	return epoch
}

// Forget drops epoch tracking for a session. Subsequent stray results for
// that session are discarded.
func (c *Coordinator) Forget(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.epochs, sessionID)
}

// process runs one request on the worker goroutine. A panic is contained
// here so the worker loop survives for subsequent requests; the session
// sees it as a computation failure rather than hanging on isCalculating.
func (c *Coordinator) process(ctx context.Context, req request) {
	defer func() {
		if r := recover(); r != nil {
			err, _ := prefaberrors.ParseStack(debug.Stack())
			skipFrames := 3
			numFrames := 5
			logging.Errorw(ctx, "Segmentation worker: recovered from panic",
				"error", r, "error.stack_trace", err.MinimalStack(skipFrames, numFrames))
			c.deliver(Result{
				SessionID:  req.sessionID,
				RouteID:    req.routeID,
				DistanceKm: req.distanceKm,
				Epoch:      req.epoch,
				Err:        fmt.Errorf("%w: panic: %v", ErrComputationFailed, r),
			})
		}
	}()

	// Skip work that is already superseded.
	if !c.isCurrent(req.sessionID, req.epoch) {
		return
	}

	segments, err := req.builder.ByDistance(req.distanceKm)
	result := Result{
		SessionID:  req.sessionID,
		RouteID:    req.routeID,
		DistanceKm: req.distanceKm,
		Epoch:      req.epoch,
	}

	if err != nil {
		result.Err = classifyError(err)
	} else {
		result.Segments = segments
		if storeErr := c.store.Put(ctx, req.routeID, req.distanceKm, segments); storeErr != nil {
			logging.Errorw(ctx, "Failed to memoize segmentation result",
				"error", storeErr, "route_id", req.routeID)
		}
	}

	c.deliver(result)
}

// deliver invokes the result callback iff the result's epoch is still
// current for its session.
func (c *Coordinator) deliver(result Result) {
	if !c.isCurrent(result.SessionID, result.Epoch) {
		return
	}
	if c.onResult != nil {
		c.onResult(result)
	}
}

func (c *Coordinator) isCurrent(sessionID string, epoch uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epochs[sessionID] == epoch
}

// classifyError passes builder validation errors through untouched and wraps
// anything else as a worker failure.
func classifyError(err error) error {
	var tooShort *segment.RouteTooShortError
	var maxSegments *segment.MaxSegmentsError
	if errors.As(err, &tooShort) || errors.As(err, &maxSegments) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrComputationFailed, err)
}
