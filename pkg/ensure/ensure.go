// Package ensure creates the ancestor directories of a relative path on the
// remote service, once per distinct directory for the lifetime of an Ensurer.
//
// Confirmed directories are remembered in a cache that only grows. A creation
// in flight is shared with every caller that needs the same directory, so at
// most one request per directory is outstanding at any time.
package ensure

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/webfm/webfm_sdk_go/pkg/fmpath"
	"github.com/webfm/webfm_sdk_go/pkg/webfm"
)

// Creator issues a single directory creation. A nil error or an error
// matching webfm.ErrAlreadyExists both confirm that the directory exists.
type Creator interface {
	CreateDirectory(ctx context.Context, path string) error
}

// CreationError reports the directory at which a walk stopped.
type CreationError struct {
	Path string
	Err  error
}

func (e *CreationError) Error() string {
	return fmt.Sprintf("ensure: create directory %s: %v", e.Path, e.Err)
}

func (e *CreationError) Unwrap() error {
	return e.Err
}

// Ensurer holds the confirmed-directory cache and the in-flight creations.
// It is safe for concurrent use.
type Ensurer struct {
	creator Creator
	logger  *slog.Logger

	mu    sync.Mutex
	cache map[string]struct{}

	pending singleflight.Group
}

// Option configures an Ensurer.
type Option func(*Ensurer)

// WithLogger sets the logger used for creation traces.
func WithLogger(l *slog.Logger) Option {
	return func(e *Ensurer) {
		if l != nil {
			e.logger = l
		}
	}
}

// New returns an Ensurer with an empty cache.
func New(c Creator, opts ...Option) *Ensurer {
	e := &Ensurer{
		creator: c,
		logger:  slog.Default(),
		cache:   make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Directories returns the directories Ensure walks for relativePath, in order.
func (e *Ensurer) Directories(basePath, relativePath string) []string {
	return fmpath.AncestorDirs(basePath, relativePath)
}

// Exists reports whether path has been confirmed by the service.
func (e *Ensurer) Exists(path string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.cache[fmpath.Normalize(path)]
	return ok
}

// Ensure makes sure every directory between basePath and the leaf of
// relativePath exists. basePath itself is never created. Directories are
// handled one at a time, shallowest first, and the walk stops at the first
// failure with a *CreationError.
//
// Cancelling ctx stops the caller from waiting, but a creation that was
// already sent completes in the background and still updates the cache.
func (e *Ensurer) Ensure(ctx context.Context, basePath, relativePath string) error {
	if e == nil || e.creator == nil {
		return errors.New("ensure: creator is nil")
	}
	for _, dir := range fmpath.AncestorDirs(basePath, relativePath) {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("ensure: %s: %w", dir, err)
		}
		if e.Exists(dir) {
			continue
		}
		if err := e.create(ctx, dir); err != nil {
			return err
		}
	}
	return nil
}

func (e *Ensurer) create(ctx context.Context, dir string) error {
	detached := context.WithoutCancel(ctx)
	ch := e.pending.DoChan(dir, func() (any, error) {
		// A creation for dir may have settled between the caller's cache
		// miss and this call being registered.
		if e.Exists(dir) {
			return nil, nil
		}
		e.logger.Debug("creating directory", "path", dir)
		err := e.creator.CreateDirectory(detached, dir)
		if err != nil && !errors.Is(err, webfm.ErrAlreadyExists) {
			e.logger.Debug("directory creation failed", "path", dir, "error", err)
			return nil, &CreationError{Path: dir, Err: err}
		}
		e.mu.Lock()
		e.cache[dir] = struct{}{}
		e.mu.Unlock()
		return nil, nil
	})

	select {
	case res := <-ch:
		if res.Shared {
			e.logger.Debug("joined pending directory creation", "path", dir)
		}
		return res.Err
	case <-ctx.Done():
		return fmt.Errorf("ensure: %s: %w", dir, ctx.Err())
	}
}
