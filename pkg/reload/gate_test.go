package reload_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webfm/webfm_sdk_go/pkg/reload"
)

type recorder struct {
	mu    sync.Mutex
	paths []string
}

func (r *recorder) add(p string) {
	r.mu.Lock()
	r.paths = append(r.paths, p)
	r.mu.Unlock()
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...)
}

func TestRequestWhenIdleRunsImmediately(t *testing.T) {
	rec := &recorder{}
	g := reload.New(func(ctx context.Context, path string) error {
		rec.add(path)
		return nil
	})

	g.Request(context.Background(), "/a/")
	assert.Equal(t, []string{"/a/"}, rec.list())
	assert.Equal(t, reload.Idle, g.State())
	assert.Equal(t, 0, g.Depth())
}

func TestRequestsDuringRefreshCoalesceToLatest(t *testing.T) {
	rec := &recorder{}
	started := make(chan struct{})
	release := make(chan struct{})
	g := reload.New(func(ctx context.Context, path string) error {
		rec.add(path)
		if path == "/p1/" {
			close(started)
			<-release
		}
		return nil
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		g.Request(context.Background(), "/p1/")
	}()
	<-started

	assert.Equal(t, reload.InFlight, g.State())
	g.Request(context.Background(), "/p2/")
	g.Request(context.Background(), "/p3/")
	assert.Equal(t, reload.InFlightWithQueued, g.State())
	queued, ok := g.Queued()
	require.True(t, ok)
	assert.Equal(t, "/p3/", queued)

	close(release)
	<-done

	assert.Equal(t, []string{"/p1/", "/p3/"}, rec.list())
	assert.Equal(t, reload.Idle, g.State())
}

func TestSuspendResumeDrains(t *testing.T) {
	rec := &recorder{}
	g := reload.New(func(ctx context.Context, path string) error {
		rec.add(path)
		return nil
	})

	g.Suspend()
	g.Request(context.Background(), "/p/")
	assert.Empty(t, rec.list())

	require.NoError(t, g.Resume())
	assert.Equal(t, []string{"/p/"}, rec.list())
	assert.Equal(t, reload.Idle, g.State())
}

func TestNestedSuspend(t *testing.T) {
	rec := &recorder{}
	g := reload.New(func(ctx context.Context, path string) error {
		rec.add(path)
		return nil
	})

	g.Suspend()
	g.Suspend()
	g.Request(context.Background(), "/p/")
	require.NoError(t, g.Resume())
	assert.Empty(t, rec.list())
	assert.Equal(t, 1, g.Depth())

	require.NoError(t, g.Resume())
	assert.Equal(t, []string{"/p/"}, rec.list())
}

func TestResumeWithoutSuspend(t *testing.T) {
	g := reload.New(func(ctx context.Context, path string) error { return nil })
	assert.ErrorIs(t, g.Resume(), reload.ErrNotSuspended)
	assert.Equal(t, 0, g.Depth())
}

func TestRequestFromInsideRefreshIsQueued(t *testing.T) {
	rec := &recorder{}
	var g *reload.Gate
	g = reload.New(func(ctx context.Context, path string) error {
		rec.add(path)
		if path == "/first/" {
			g.Request(ctx, "/second/")
		}
		return nil
	})

	g.Request(context.Background(), "/first/")
	assert.Equal(t, []string{"/first/", "/second/"}, rec.list())
	assert.Equal(t, reload.Idle, g.State())
}

func TestFailedRefreshStillDrains(t *testing.T) {
	rec := &recorder{}
	var reported []error
	boom := errors.New("list failed")
	started := make(chan struct{})
	release := make(chan struct{})
	g := reload.New(func(ctx context.Context, path string) error {
		rec.add(path)
		if path == "/bad/" {
			close(started)
			<-release
			return boom
		}
		return nil
	}, reload.WithErrorHandler(func(err error) {
		reported = append(reported, err)
	}))

	done := make(chan struct{})
	go func() {
		defer close(done)
		g.Request(context.Background(), "/bad/")
	}()
	<-started
	g.Request(context.Background(), "/good/")
	close(release)
	<-done

	assert.Equal(t, []string{"/bad/", "/good/"}, rec.list())
	require.Len(t, reported, 1)
	var re *reload.RefreshError
	require.ErrorAs(t, reported[0], &re)
	assert.Equal(t, "/bad/", re.Path)
	assert.ErrorIs(t, reported[0], boom)
	assert.Equal(t, reload.Idle, g.State())
}

func TestRunExclusiveResumesOnError(t *testing.T) {
	rec := &recorder{}
	g := reload.New(func(ctx context.Context, path string) error {
		rec.add(path)
		return nil
	})
	boom := errors.New("rename failed")

	err := g.RunExclusive(context.Background(), func(ctx context.Context) error {
		g.Request(ctx, "/cwd/")
		assert.Equal(t, reload.InFlightWithQueued, g.State())
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"/cwd/"}, rec.list())
	assert.Equal(t, 0, g.Depth())
}

func TestRunExclusiveResumesOnPanic(t *testing.T) {
	g := reload.New(func(ctx context.Context, path string) error { return nil })

	assert.Panics(t, func() {
		_ = g.RunExclusive(context.Background(), func(ctx context.Context) error {
			panic("boom")
		})
	})
	assert.Equal(t, 0, g.Depth())
}

func TestPanickingRefreshReleasesGate(t *testing.T) {
	g := reload.New(func(ctx context.Context, path string) error {
		panic("render failed")
	})
	assert.Panics(t, func() {
		g.Request(context.Background(), "/a/")
	})
	assert.Equal(t, 0, g.Depth())
}

func TestPanickingRefreshDropsQueuedPath(t *testing.T) {
	rec := &recorder{}
	var g *reload.Gate
	g = reload.New(func(ctx context.Context, path string) error {
		rec.add(path)
		if path == "/boom/" {
			g.Request(ctx, "/stale/")
			panic("render failed")
		}
		return nil
	})

	assert.Panics(t, func() {
		g.Request(context.Background(), "/boom/")
	})
	assert.Equal(t, reload.Idle, g.State())
	_, ok := g.Queued()
	assert.False(t, ok)

	g.Request(context.Background(), "/latest/")
	assert.Equal(t, []string{"/boom/", "/latest/"}, rec.list())
	assert.Equal(t, reload.Idle, g.State())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", reload.Idle.String())
	assert.Equal(t, "in-flight-with-queued", reload.InFlightWithQueued.String())
}
