package ensure_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webfm/webfm_sdk_go/pkg/ensure"
	"github.com/webfm/webfm_sdk_go/pkg/webfm"
	"github.com/webfm/webfm_sdk_go/pkg/webfm/mock"
)

const base = "/data/mnt/sd_0/"

func newService() *mock.Mock {
	m := mock.New()
	m.MkdirAll(base)
	return m
}

func TestEnsureCreatesAncestorsInOrder(t *testing.T) {
	m := newService()
	e := ensure.New(m)

	require.NoError(t, e.Ensure(context.Background(), base, "songs/rock/track.mp3"))
	assert.Equal(t, []string{
		"/data/mnt/sd_0/songs/",
		"/data/mnt/sd_0/songs/rock/",
	}, m.Calls(webfm.OpCreate))
	assert.True(t, m.Exists("/data/mnt/sd_0/songs/rock/"))
	assert.True(t, e.Exists("/data/mnt/sd_0/songs/rock"))

	m.ResetCalls()
	require.NoError(t, e.Ensure(context.Background(), base, "songs/rock/track2.mp3"))
	assert.Empty(t, m.Calls(webfm.OpCreate), "second upload must be fully cached")
}

func TestEnsureIsIdempotent(t *testing.T) {
	m := newService()
	e := ensure.New(m)
	ctx := context.Background()

	require.NoError(t, e.Ensure(ctx, base, "a/b/c/file.txt"))
	assert.Len(t, m.Calls(webfm.OpCreate), 3)

	m.ResetCalls()
	require.NoError(t, e.Ensure(ctx, base, "a/b/c/file.txt"))
	assert.Empty(t, m.Calls(webfm.OpCreate))
}

func TestEnsureNoIntermediateSegments(t *testing.T) {
	m := newService()
	e := ensure.New(m)

	require.NoError(t, e.Ensure(context.Background(), base, "file.txt"))
	require.NoError(t, e.Ensure(context.Background(), base, ""))
	assert.Empty(t, m.Calls(webfm.OpCreate))
}

func TestEnsureFiltersEmptySegments(t *testing.T) {
	m := newService()
	e := ensure.New(m)

	require.NoError(t, e.Ensure(context.Background(), "/data/mnt//sd_0", "//a///b//f.txt"))
	assert.Equal(t, []string{"/data/mnt/sd_0/a/", "/data/mnt/sd_0/a/b/"}, m.Calls(webfm.OpCreate))
}

func TestEnsureParentSettlesBeforeChild(t *testing.T) {
	m := newService()
	var order []string
	var mu sync.Mutex
	inFlight := int32(0)
	m.SetHook(webfm.OpCreate, func(ctx context.Context, op, path string) error {
		if atomic.AddInt32(&inFlight, 1) != 1 {
			t.Errorf("overlapping creation for %s", path)
		}
		defer atomic.AddInt32(&inFlight, -1)
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		order = append(order, path)
		mu.Unlock()
		return nil
	})
	e := ensure.New(m)

	require.NoError(t, e.Ensure(context.Background(), base, "a/b/file.txt"))
	assert.Equal(t, []string{"/data/mnt/sd_0/a/", "/data/mnt/sd_0/a/b/"}, order)
}

func TestEnsureAlreadyExistsIsConfirmed(t *testing.T) {
	m := newService()
	m.MkdirAll(base + "x/")
	e := ensure.New(m)

	require.NoError(t, e.Ensure(context.Background(), base, "x/a.txt"))
	assert.Equal(t, []string{base + "x/"}, m.Calls(webfm.OpCreate))
	assert.True(t, e.Exists(base+"x/"))

	m.ResetCalls()
	require.NoError(t, e.Ensure(context.Background(), base, "x/b.txt"))
	assert.Empty(t, m.Calls(webfm.OpCreate))
}

func TestEnsureConcurrentCallersShareCreation(t *testing.T) {
	m := newService()
	release := make(chan struct{})
	started := make(chan struct{}, 16)
	m.SetHook(webfm.OpCreate, func(ctx context.Context, op, path string) error {
		started <- struct{}{}
		<-release
		return nil
	})
	e := ensure.New(m)

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- e.Ensure(context.Background(), base, "x/file.txt")
		}()
	}

	<-started
	// Give the remaining callers time to join the pending creation.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, []string{base + "x/"}, m.Calls(webfm.OpCreate))
}

func TestEnsureConcurrentSiblingUploads(t *testing.T) {
	m := newService()
	e := ensure.New(m)

	var wg sync.WaitGroup
	for _, name := range []string{"x/a.txt", "x/b.txt"} {
		wg.Add(1)
		go func(rel string) {
			defer wg.Done()
			assert.NoError(t, e.Ensure(context.Background(), base, rel))
		}(name)
	}
	wg.Wait()

	assert.Equal(t, []string{base + "x/"}, m.Calls(webfm.OpCreate))
}

func TestEnsureFailureAbortsWalkAndStaysRetryable(t *testing.T) {
	m := newService()
	boom := errors.New("disk full")
	m.SetHook(webfm.OpCreate, func(ctx context.Context, op, path string) error {
		if path == base+"a/b/" {
			return boom
		}
		return nil
	})
	e := ensure.New(m)

	err := e.Ensure(context.Background(), base, "a/b/c/file.txt")
	var ce *ensure.CreationError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, base+"a/b/", ce.Path)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{base + "a/", base + "a/b/"}, m.Calls(webfm.OpCreate))
	assert.True(t, e.Exists(base+"a/"))
	assert.False(t, e.Exists(base+"a/b/"))

	m.SetHook(webfm.OpCreate, nil)
	m.ResetCalls()
	require.NoError(t, e.Ensure(context.Background(), base, "a/b/c/file.txt"))
	assert.Equal(t, []string{base + "a/b/", base + "a/b/c/"}, m.Calls(webfm.OpCreate))
}

func TestEnsureCancelledCallerLeavesStateConsistent(t *testing.T) {
	m := newService()
	release := make(chan struct{})
	started := make(chan struct{})
	m.SetHook(webfm.OpCreate, func(ctx context.Context, op, path string) error {
		close(started)
		<-release
		return nil
	})
	e := ensure.New(m)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- e.Ensure(ctx, base, "x/file.txt")
	}()
	<-started
	cancel()

	err := <-done
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, e.Exists(base+"x/"))

	close(release)
	require.Eventually(t, func() bool { return e.Exists(base + "x/") }, time.Second, 5*time.Millisecond)
	assert.True(t, m.Exists(base+"x/"))

	m.SetHook(webfm.OpCreate, nil)
	m.ResetCalls()
	require.NoError(t, e.Ensure(context.Background(), base, "x/other.txt"))
	assert.Empty(t, m.Calls(webfm.OpCreate))
}

func TestEnsureCancelledBeforeStartIssuesNothing(t *testing.T) {
	m := newService()
	e := ensure.New(m)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, e.Ensure(ctx, base, "x/y/file.txt"), context.Canceled)
	assert.Empty(t, m.Calls(webfm.OpCreate))
}

func TestDirectories(t *testing.T) {
	e := ensure.New(newService())
	assert.Equal(t, []string{base + "songs/", base + "songs/rock/"}, e.Directories(base, "songs/rock/track.mp3"))
	assert.Nil(t, e.Directories(base, "track.mp3"))
}
