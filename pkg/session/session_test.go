package session_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webfm/webfm_sdk_go/internal/devseed"
	"github.com/webfm/webfm_sdk_go/pkg/ensure"
	"github.com/webfm/webfm_sdk_go/pkg/policy"
	"github.com/webfm/webfm_sdk_go/pkg/reload"
	"github.com/webfm/webfm_sdk_go/pkg/session"
	"github.com/webfm/webfm_sdk_go/pkg/webfm"
	"github.com/webfm/webfm_sdk_go/pkg/webfm/mock"
)

const home = "/data/mnt/sd_0/"

type fixture struct {
	backend *mock.Mock
	notes   *session.Recorder
	s       *session.Session
}

func newFixture(t *testing.T, opts ...session.Option) *fixture {
	t.Helper()
	var mu sync.Mutex
	tick := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m := mock.New(
		mock.WithHostname("r3proii"),
		mock.WithClock(func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			tick = tick.Add(time.Second)
			return tick
		}),
	)
	for _, h := range policy.DefaultHomes {
		m.MkdirAll(policy.DefaultRoot + h + "/")
	}
	notes := &session.Recorder{}
	opts = append([]session.Option{session.WithNotifier(notes), session.WithVendor("HiBy")}, opts...)
	return &fixture{
		backend: m,
		notes:   notes,
		s:       session.New(webfm.NewWithBackend(m), opts...),
	}
}

func (f *fixture) errorsNotified() []session.Notification {
	var out []session.Notification
	for _, n := range f.notes.Notifications() {
		if n.Level == session.LevelError {
			out = append(out, n)
		}
	}
	return out
}

func TestOpenBuildsListing(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.backend.Seed([]devseed.Entry{
		{Path: home + "old.mp3", Content: "1", CTime: time.Unix(100, 0)},
		{Path: home + "new.mp3", Content: "2", CTime: time.Unix(300, 0)},
		{Path: home + "mid/", CTime: time.Unix(200, 0)},
	}))

	f.s.Open(context.Background(), home)
	snap := f.s.Snapshot()
	assert.Equal(t, home, snap.Path)
	assert.Equal(t, "HiBy R3PROII", snap.Device)
	require.Len(t, snap.Items, 3)
	assert.Equal(t, "new.mp3", snap.Items[0].Name)
	assert.Equal(t, "mid", snap.Items[1].Name)
	assert.Equal(t, "old.mp3", snap.Items[2].Name)
	require.Len(t, snap.Crumbs, 2)
	assert.Equal(t, "HiBy R3PROII", snap.Crumbs[0].Name)
	assert.Equal(t, "sd_0", snap.Crumbs[1].Name)
	assert.Empty(t, f.notes.Notifications())
}

func TestOpenRootMarksHomesProtected(t *testing.T) {
	f := newFixture(t)
	f.s.Open(context.Background(), policy.DefaultRoot)

	snap := f.s.Snapshot()
	require.Len(t, snap.Items, len(policy.DefaultHomes))
	for _, item := range snap.Items {
		assert.True(t, item.Protected, item.Path)
	}
	assert.Len(t, snap.Crumbs, 1)
}

func TestOpenFailureIsNotified(t *testing.T) {
	f := newFixture(t)
	f.s.Open(context.Background(), home)
	f.s.Open(context.Background(), "/data/mnt/missing/")

	errs := f.errorsNotified()
	require.Len(t, errs, 1)
	assert.Equal(t, webfm.OpList, errs[0].Op)
	assert.Equal(t, "/data/mnt/missing/", errs[0].Path)
	assert.ErrorIs(t, errs[0].Err, webfm.ErrNotFound)
	assert.Equal(t, home, f.s.Path(), "failed refresh keeps the previous directory")
	assert.Equal(t, reload.Idle, f.s.Gate().State())
}

func TestUploadTreeScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.s.Open(ctx, home)

	results, err := f.s.UploadTree(ctx, []session.UploadItem{
		session.BytesItem("songs/rock/track.mp3", []byte("one")),
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, home+"songs/rock/track.mp3", results[0].Path)
	assert.Equal(t, []string{home + "songs/", home + "songs/rock/"}, f.backend.Calls(webfm.OpCreate))
	assert.Equal(t, []string{home + "songs/rock/track.mp3"}, f.backend.Calls(webfm.OpUpload))

	f.backend.ResetCalls()
	_, err = f.s.UploadTree(ctx, []session.UploadItem{
		session.BytesItem("songs/rock/track2.mp3", []byte("two")),
	})
	require.NoError(t, err)
	assert.Empty(t, f.backend.Calls(webfm.OpCreate))
	assert.True(t, f.backend.Exists(home+"songs/rock/track2.mp3"))

	snap := f.s.Snapshot()
	require.NotEmpty(t, snap.Items)
	assert.Equal(t, "songs", snap.Items[0].Name)
}

func TestUploadTreeSharedAncestorCreatedOnce(t *testing.T) {
	f := newFixture(t, session.WithUploadConcurrency(2))
	ctx := context.Background()
	f.s.Open(ctx, home)

	_, err := f.s.UploadTree(ctx, []session.UploadItem{
		session.BytesItem("x/a.txt", []byte("a")),
		session.BytesItem("x/b.txt", []byte("b")),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{home + "x/"}, f.backend.Calls(webfm.OpCreate))
	assert.ElementsMatch(t, []string{home + "x/a.txt", home + "x/b.txt"}, f.backend.Calls(webfm.OpUpload))
}

func TestUploadTreeReportsEachFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.s.Open(ctx, home)
	boom := errors.New("no space")
	f.backend.SetHook(webfm.OpCreate, func(ctx context.Context, op, path string) error {
		if path == home+"bad/" {
			return boom
		}
		return nil
	})

	results, err := f.s.UploadTree(ctx, []session.UploadItem{
		session.BytesItem("bad/a.mp3", []byte("a")),
		session.BytesItem("good/b.mp3", []byte("b")),
		session.BytesItem("good/setup.exe", []byte("c")),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, policy.ErrUnsupportedType)

	var ce *ensure.CreationError
	require.ErrorAs(t, results[0].Err, &ce)
	assert.Equal(t, home+"bad/", ce.Path)
	assert.NoError(t, results[1].Err)
	assert.True(t, f.backend.Exists(home+"good/b.mp3"))
	assert.Equal(t, []string{home + "good/b.mp3"}, f.backend.Calls(webfm.OpUpload))

	var warned bool
	for _, n := range f.notes.Notifications() {
		if n.Level == session.LevelWarning && strings.Contains(n.Message, "setup.exe") {
			warned = true
		}
	}
	assert.True(t, warned, "unsupported type must be reported as a warning")
}

func TestUploadIntoRootDenied(t *testing.T) {
	f := newFixture(t)
	f.s.Open(context.Background(), policy.DefaultRoot)

	err := f.s.Upload(context.Background(), "a.mp3", strings.NewReader("x"))
	assert.ErrorIs(t, err, policy.ErrDenied)
	_, err = f.s.UploadTree(context.Background(), []session.UploadItem{session.BytesItem("d/a.mp3", nil)})
	assert.ErrorIs(t, err, policy.ErrDenied)
	assert.Empty(t, f.backend.Calls(webfm.OpUpload))
	assert.Empty(t, f.backend.Calls(webfm.OpCreate))
}

func TestUploadAbortIsSilent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.s.Open(ctx, home)
	f.backend.SetHook(webfm.OpUpload, func(ctx context.Context, op, path string) error {
		<-ctx.Done()
		return nil
	})

	done := make(chan error, 1)
	go func() {
		done <- f.s.Upload(ctx, "slow.flac", bytes.NewReader([]byte("data")))
	}()

	var transfers []session.Transfer
	require.Eventually(t, func() bool {
		transfers = f.s.Transfers()
		return len(transfers) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, home+"slow.flac", transfers[0].Path)
	require.NoError(t, f.s.Abort(transfers[0].ID))

	err := <-done
	assert.ErrorIs(t, err, webfm.ErrAborted)
	assert.Empty(t, f.errorsNotified())
	assert.Empty(t, f.s.Transfers())
	assert.False(t, f.backend.Exists(home+"slow.flac"))
	assert.ErrorIs(t, f.s.Abort(transfers[0].ID), session.ErrUnknownTransfer)
}

func TestUploadFailureIsNotified(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.s.Open(ctx, home)
	f.backend.SetHook(webfm.OpUpload, func(ctx context.Context, op, path string) error {
		return errors.New("connection reset")
	})

	require.Error(t, f.s.Upload(ctx, "a.mp3", strings.NewReader("x")))
	errs := f.errorsNotified()
	require.Len(t, errs, 1)
	assert.Equal(t, webfm.OpUpload, errs[0].Op)
	assert.Contains(t, errs[0].Message, "Failed uploading")
}

func TestCreateFolderReloads(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.s.Open(ctx, home)
	f.backend.ResetCalls()

	require.NoError(t, f.s.CreateFolder(ctx, "Untitled folder"))
	assert.True(t, f.backend.Exists(home+"Untitled folder/"))
	assert.Equal(t, []string{home}, f.backend.Calls(webfm.OpList))
	assert.Equal(t, "Untitled folder", f.s.Snapshot().Items[0].Name)

	err := f.s.CreateFolder(ctx, "Untitled folder")
	assert.ErrorIs(t, err, webfm.ErrAlreadyExists)
	require.Len(t, f.errorsNotified(), 1)
	assert.ErrorIs(t, f.s.CreateFolder(ctx, "  "), session.ErrInvalidName)
}

func TestCreateFolderInvalidNameIsNotified(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.s.Open(ctx, home)
	f.backend.ResetCalls()

	err := f.s.CreateFolder(ctx, "a/b")
	assert.ErrorIs(t, err, session.ErrInvalidName)
	assert.Empty(t, f.backend.Calls(webfm.OpCreate))
	errs := f.errorsNotified()
	require.Len(t, errs, 1)
	assert.Equal(t, webfm.OpCreate, errs[0].Op)
	assert.Equal(t, home, errs[0].Path)
	assert.Equal(t, "Invalid name 'a/b'", errs[0].Message)
	assert.ErrorIs(t, errs[0].Err, session.ErrInvalidName)
}

func TestCreateFolderAtRootDenied(t *testing.T) {
	f := newFixture(t)
	f.s.Open(context.Background(), policy.DefaultRoot)
	assert.ErrorIs(t, f.s.CreateFolder(context.Background(), "x"), policy.ErrDenied)
	assert.Empty(t, f.backend.Calls(webfm.OpCreate))
}

func TestMoveAndDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.backend.Seed([]devseed.Entry{{Path: home + "a.mp3", Content: "x"}}))
	f.s.Open(ctx, home)

	require.NoError(t, f.s.Move(ctx, home+"a.mp3", "/data/mnt/sd_1/a.mp3"))
	assert.True(t, f.backend.Exists("/data/mnt/sd_1/a.mp3"))
	assert.Empty(t, f.s.Snapshot().Items)

	assert.ErrorIs(t, f.s.Move(ctx, "/data/mnt/sd_1/a.mp3", "/tmp/a.mp3"), policy.ErrDenied)
	assert.ErrorIs(t, f.s.Delete(ctx, home), policy.ErrDenied)
	assert.ErrorIs(t, f.s.Delete(ctx, policy.DefaultRoot), policy.ErrDenied)

	require.NoError(t, f.s.Delete(ctx, "/data/mnt/sd_1/a.mp3"))
	assert.False(t, f.backend.Exists("/data/mnt/sd_1/a.mp3"))
	assert.ErrorIs(t, f.s.Delete(ctx, "/data/mnt/sd_1/a.mp3"), webfm.ErrNotFound)
}

func TestRenameHoldsReloadsUntilDone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.backend.Seed([]devseed.Entry{{Path: home + "a.mp3", Content: "x"}}))
	f.s.Open(ctx, home)
	f.backend.ResetCalls()

	f.backend.SetHook(webfm.OpMove, func(ctx context.Context, op, path string) error {
		f.s.Reload(ctx)
		assert.Empty(t, f.backend.Calls(webfm.OpList), "reload must wait for the rename")
		assert.Equal(t, reload.InFlightWithQueued, f.s.Gate().State())
		return nil
	})

	require.NoError(t, f.s.Rename(ctx, "a.mp3", " b.mp3 "))
	assert.True(t, f.backend.Exists(home+"b.mp3"))
	assert.Equal(t, []string{home}, f.backend.Calls(webfm.OpList))
	assert.Equal(t, "b.mp3", f.s.Snapshot().Items[0].Name)
	assert.Equal(t, 0, f.s.Gate().Depth())
}

func TestRenameEmptyNameSkipsMove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.backend.Seed([]devseed.Entry{{Path: home + "a.mp3", Content: "x"}}))
	f.s.Open(ctx, home)

	err := f.s.Rename(ctx, "a.mp3", "   ")
	assert.ErrorIs(t, err, session.ErrInvalidName)
	assert.Empty(t, f.backend.Calls(webfm.OpMove))
	errs := f.errorsNotified()
	require.Len(t, errs, 1)
	assert.Equal(t, "Invalid name ''", errs[0].Message)
	assert.Equal(t, 0, f.s.Gate().Depth())

	require.NoError(t, f.s.Rename(ctx, "a.mp3", "a.mp3"))
	assert.Empty(t, f.backend.Calls(webfm.OpMove))
}

func TestDownload(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.backend.Seed([]devseed.Entry{{Path: home + "a.txt", Content: "lyrics"}}))

	var buf bytes.Buffer
	n, err := f.s.Download(context.Background(), home+"a.txt", &buf)
	require.NoError(t, err)
	assert.EqualValues(t, 6, n)
	assert.Equal(t, "lyrics", buf.String())

	_, err = f.s.Download(context.Background(), home+"missing.txt", &buf)
	assert.ErrorIs(t, err, webfm.ErrNotFound)
	assert.Len(t, f.errorsNotified(), 1)
}

func TestDeviceFallsBackToRoot(t *testing.T) {
	f := newFixture(t)
	f.backend.SetHook(webfm.OpHostname, func(ctx context.Context, op, path string) error {
		return errors.New("no hostname")
	})
	f.s.Open(context.Background(), home)
	assert.Equal(t, policy.DefaultRoot, f.s.Snapshot().Device)

	f.backend.SetHook(webfm.OpHostname, nil)
	f.s.Reload(context.Background())
	assert.Equal(t, "HiBy R3PROII", f.s.Snapshot().Device)
}
