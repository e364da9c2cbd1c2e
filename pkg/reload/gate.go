// Package reload serializes listing refreshes. While a refresh runs, or while
// the gate is suspended, further requests are coalesced into a single slot
// that keeps only the most recent path; it is refreshed once the gate is
// released.
package reload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// RefreshFunc fetches and applies the listing for path.
type RefreshFunc func(ctx context.Context, path string) error

// ErrNotSuspended is returned by Resume without a matching Suspend.
var ErrNotSuspended = errors.New("reload: resume without suspend")

// RefreshError wraps a failed refresh.
type RefreshError struct {
	Path string
	Err  error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("reload: refresh %s: %v", e.Path, e.Err)
}

func (e *RefreshError) Unwrap() error {
	return e.Err
}

// State is the observable state of a Gate.
type State int

const (
	Idle State = iota
	// InFlight covers both a running refresh and an explicit suspension.
	InFlight
	InFlightWithQueued
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case InFlight:
		return "in-flight"
	case InFlightWithQueued:
		return "in-flight-with-queued"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

type request struct {
	ctx  context.Context
	path string
}

// Gate guards a RefreshFunc. The zero value is not usable; call New.
type Gate struct {
	refresh RefreshFunc
	onError func(error)
	logger  *slog.Logger

	mu     sync.Mutex
	depth  int
	queued *request
}

// Option configures a Gate.
type Option func(*Gate)

// WithErrorHandler receives every *RefreshError. The default logs it.
func WithErrorHandler(fn func(error)) Option {
	return func(g *Gate) {
		g.onError = fn
	}
}

// WithLogger sets the logger used by the default error handler.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gate) {
		if l != nil {
			g.logger = l
		}
	}
}

// New returns an idle gate around refresh.
func New(refresh RefreshFunc, opts ...Option) *Gate {
	g := &Gate{
		refresh: refresh,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.onError == nil {
		g.onError = func(err error) {
			g.logger.Warn("listing refresh failed", "error", err)
		}
	}
	return g
}

// Request asks for path to be refreshed. When the gate is idle the refresh
// runs on the calling goroutine, followed by any path queued meanwhile.
// Otherwise path replaces whatever was queued and Request returns at once.
func (g *Gate) Request(ctx context.Context, path string) {
	g.mu.Lock()
	if g.depth > 0 {
		if g.queued != nil {
			g.logger.Debug("replacing queued refresh", "dropped", g.queued.path, "path", path)
		}
		g.queued = &request{ctx: ctx, path: path}
		g.mu.Unlock()
		return
	}
	g.queued = nil
	g.depth = 1
	g.mu.Unlock()

	g.drain(request{ctx: ctx, path: path})
}

// Suspend blocks refreshes until the matching Resume.
func (g *Gate) Suspend() {
	g.mu.Lock()
	g.depth++
	g.mu.Unlock()
}

// Resume undoes one Suspend. If that releases the gate and a path is queued,
// the queued refresh runs before Resume returns.
func (g *Gate) Resume() error {
	g.mu.Lock()
	if g.depth == 0 {
		g.mu.Unlock()
		return ErrNotSuspended
	}
	next, ok := g.releaseLocked()
	g.mu.Unlock()

	if ok {
		g.drain(next)
	}
	return nil
}

// RunExclusive runs fn with the gate suspended. The gate is resumed when fn
// returns, including when it fails or panics.
func (g *Gate) RunExclusive(ctx context.Context, fn func(ctx context.Context) error) error {
	g.Suspend()
	defer func() {
		_ = g.Resume()
	}()
	return fn(ctx)
}

// State reports the current state.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	switch {
	case g.depth == 0:
		return Idle
	case g.queued != nil:
		return InFlightWithQueued
	default:
		return InFlight
	}
}

// Depth returns the suspend depth, counting a running refresh as one.
func (g *Gate) Depth() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.depth
}

// Queued returns the path waiting for the gate, if any.
func (g *Gate) Queued() (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.queued == nil {
		return "", false
	}
	return g.queued.path, true
}

// drain runs req and then every path queued while it ran. The caller must
// hold one unit of depth.
func (g *Gate) drain(req request) {
	for {
		g.run(req)

		g.mu.Lock()
		next, ok := g.releaseLocked()
		g.mu.Unlock()
		if !ok {
			return
		}
		req = next
	}
}

func (g *Gate) run(req request) {
	settled := false
	defer func() {
		if !settled {
			g.mu.Lock()
			g.depth--
			if g.depth == 0 {
				g.queued = nil
			}
			g.mu.Unlock()
		}
	}()

	err := g.refresh(req.ctx, req.path)
	settled = true
	if err != nil {
		g.onError(&RefreshError{Path: req.path, Err: err})
	}
}

// releaseLocked drops one unit of depth. When the gate becomes free with a
// queued path, the path is taken and depth is reacquired for it.
func (g *Gate) releaseLocked() (request, bool) {
	g.depth--
	if g.depth > 0 || g.queued == nil {
		return request{}, false
	}
	next := *g.queued
	g.queued = nil
	g.depth = 1
	return next, true
}
