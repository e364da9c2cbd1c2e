// Package session is a headless file browser over the file-management
// service. It keeps the current directory and its listing, applies the
// device permission rules, and refreshes the listing after every mutation
// through a reload.Gate. Folder uploads create their ancestors through an
// ensure.Ensurer shared by the whole session.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/webfm/webfm_sdk_go/pkg/ensure"
	"github.com/webfm/webfm_sdk_go/pkg/fmpath"
	"github.com/webfm/webfm_sdk_go/pkg/policy"
	"github.com/webfm/webfm_sdk_go/pkg/reload"
	"github.com/webfm/webfm_sdk_go/pkg/webfm"
)

// DefaultUploadConcurrency bounds parallel uploads in UploadTree.
const DefaultUploadConcurrency = 4

// ErrInvalidName rejects empty names and names containing a separator.
var ErrInvalidName = errors.New("session: invalid name")

// Item is one listing row.
type Item struct {
	webfm.Entry
	// Protected rows may not be moved or deleted.
	Protected bool
}

// Listing is an immutable snapshot of the browser state.
type Listing struct {
	Path   string
	Device string
	Crumbs []fmpath.Crumb
	Items  []Item
}

// Session is safe for concurrent use.
type Session struct {
	client      *webfm.Client
	policy      *policy.Policy
	notifier    Notifier
	logger      *slog.Logger
	vendor      string
	uploadLimit int

	ensurer   *ensure.Ensurer
	gate      *reload.Gate
	transfers *transfers

	mu          sync.RWMutex
	listing     Listing
	device      string
	deviceKnown bool
}

// Option configures a Session.
type Option func(*Session)

// WithPolicy replaces the default device layout and rules.
func WithPolicy(p *policy.Policy) Option {
	return func(s *Session) {
		if p != nil {
			s.policy = p
		}
	}
}

// WithNotifier routes user-facing messages. The default logs them.
func WithNotifier(n Notifier) Option {
	return func(s *Session) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithLogger sets the logger shared by the session's components.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithVendor prefixes the device name shown as the root crumb.
func WithVendor(v string) Option {
	return func(s *Session) {
		s.vendor = strings.TrimSpace(v)
	}
}

// WithUploadConcurrency bounds parallel uploads in UploadTree.
func WithUploadConcurrency(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.uploadLimit = n
		}
	}
}

// New returns a session that has not listed anything yet; its current
// directory is the policy's home until Open succeeds.
func New(client *webfm.Client, opts ...Option) *Session {
	s := &Session{
		client:      client,
		policy:      policy.New(),
		logger:      slog.Default(),
		uploadLimit: DefaultUploadConcurrency,
		transfers:   newTransfers(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.notifier == nil {
		s.notifier = NewLogNotifier(s.logger)
	}
	s.ensurer = ensure.New(client, ensure.WithLogger(s.logger))
	s.gate = reload.New(s.refresh,
		reload.WithLogger(s.logger),
		reload.WithErrorHandler(s.refreshFailed),
	)
	return s
}

// Policy returns the rules the session enforces.
func (s *Session) Policy() *policy.Policy { return s.policy }

// Ensurer exposes the session's directory cache.
func (s *Session) Ensurer() *ensure.Ensurer { return s.ensurer }

// Gate exposes the session's reload gate, e.g. to suspend refreshes while
// the caller edits state of its own.
func (s *Session) Gate() *reload.Gate { return s.gate }

// Path returns the current directory.
func (s *Session) Path() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listing.Path == "" {
		return s.policy.Home()
	}
	return s.listing.Path
}

// Snapshot returns the last listing that was applied.
func (s *Session) Snapshot() Listing {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.listing
	out.Crumbs = append([]fmpath.Crumb(nil), s.listing.Crumbs...)
	out.Items = append([]Item(nil), s.listing.Items...)
	return out
}

// Open lists dir and makes it current. If a refresh is already running the
// request is queued; failures are reported through the notifier.
func (s *Session) Open(ctx context.Context, dir string) {
	s.gate.Request(ctx, fmpath.Normalize(dir))
}

// Reload refreshes the current directory.
func (s *Session) Reload(ctx context.Context) {
	s.gate.Request(ctx, s.Path())
}

func (s *Session) refresh(ctx context.Context, dir string) error {
	entries, err := s.client.List(ctx, dir)
	if err != nil {
		return err
	}
	// Newest first.
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CTime.After(entries[j].CTime)
	})
	items := make([]Item, 0, len(entries))
	for _, e := range entries {
		items = append(items, Item{Entry: e, Protected: s.policy.Protected(e.Path)})
	}
	device := s.deviceName(ctx)

	s.mu.Lock()
	s.listing = Listing{
		Path:   dir,
		Device: device,
		Crumbs: fmpath.Breadcrumbs(s.policy.Root(), dir, device),
		Items:  items,
	}
	s.mu.Unlock()
	s.logger.Debug("listing applied", "path", dir, "entries", len(items))
	return nil
}

// deviceName fetches the hostname until it is known. The root path stands in
// while it is not.
func (s *Session) deviceName(ctx context.Context) string {
	s.mu.RLock()
	device, known := s.device, s.deviceKnown
	s.mu.RUnlock()
	if known {
		return device
	}
	name, err := s.client.Hostname(ctx)
	if err != nil {
		s.logger.Debug("hostname unavailable", "error", err)
		return s.policy.Root()
	}
	device = strings.ToUpper(strings.TrimSpace(name))
	if s.vendor != "" {
		device = s.vendor + " " + device
	}
	s.mu.Lock()
	s.device, s.deviceKnown = device, true
	s.mu.Unlock()
	return device
}

func (s *Session) refreshFailed(err error) {
	var re *reload.RefreshError
	path := ""
	if errors.As(err, &re) {
		path = re.Path
	}
	s.notify(LevelError, webfm.OpList, path, fmt.Sprintf("Failed retrieving contents of %q", path), err)
}

func (s *Session) notify(level Level, op, path, msg string, err error) {
	s.notifier.Notify(Notification{Level: level, Op: op, Path: path, Message: msg, Err: err})
}

// denied reports a policy refusal and returns it.
func (s *Session) denied(op, path string, err error) error {
	s.notify(LevelError, op, path, err.Error(), err)
	return err
}

// CreateFolder creates name inside the current directory and reloads it.
func (s *Session) CreateFolder(ctx context.Context, name string) error {
	dir := s.Path()
	if err := s.policy.CheckCreate(dir); err != nil {
		return s.denied(webfm.OpCreate, dir, err)
	}
	name = strings.TrimSpace(name)
	if name == "" || strings.Contains(name, fmpath.Separator) {
		err := fmt.Errorf("%w: %q", ErrInvalidName, name)
		s.notify(LevelError, webfm.OpCreate, dir, fmt.Sprintf("Invalid name '%s'", name), err)
		return err
	}
	defer s.gate.Request(ctx, dir)

	target := fmpath.Join(dir, name)
	if err := s.client.CreateDirectory(ctx, target); err != nil {
		s.notify(LevelError, webfm.OpCreate, target, fmt.Sprintf("Failed creating folder %q in %q", name, dir), err)
		return err
	}
	return nil
}

// Move relocates oldPath to newPath and reloads the current directory.
// Identical paths are a no-op.
func (s *Session) Move(ctx context.Context, oldPath, newPath string) error {
	if err := s.policy.CheckMove(oldPath, newPath); err != nil {
		return s.denied(webfm.OpMove, newPath, err)
	}
	if oldPath == newPath {
		return nil
	}
	defer s.gate.Request(ctx, s.Path())

	if err := s.client.Move(ctx, oldPath, newPath); err != nil {
		s.notify(LevelError, webfm.OpMove, oldPath, fmt.Sprintf("Failed moving %q to %q", oldPath, newPath), err)
		return err
	}
	return nil
}

// Rename renames the entry called name in the current directory. Refreshes
// are held back until the rename settles; an empty new name is reported and
// nothing is sent.
func (s *Session) Rename(ctx context.Context, name, newName string) error {
	return s.gate.RunExclusive(ctx, func(ctx context.Context) error {
		dir := s.Path()
		value := strings.TrimSpace(newName)
		if value == "" || strings.Contains(value, fmpath.Separator) {
			err := fmt.Errorf("%w: %q", ErrInvalidName, value)
			s.notify(LevelError, webfm.OpMove, fmpath.JoinFile(dir, name), fmt.Sprintf("Invalid name '%s'", value), err)
			return err
		}
		if value == name {
			return nil
		}
		oldPath, newPath := fmpath.JoinFile(dir, name), fmpath.JoinFile(dir, value)
		if err := s.policy.CheckMove(oldPath, newPath); err != nil {
			return s.denied(webfm.OpMove, oldPath, err)
		}
		// Queued until RunExclusive resumes the gate.
		defer s.gate.Request(ctx, dir)

		if err := s.client.Move(ctx, oldPath, newPath); err != nil {
			s.notify(LevelError, webfm.OpMove, oldPath, fmt.Sprintf("Failed moving %q to %q", oldPath, newPath), err)
			return err
		}
		return nil
	})
}

// Delete removes path and reloads the current directory.
func (s *Session) Delete(ctx context.Context, path string) error {
	if err := s.policy.CheckDelete(path); err != nil {
		return s.denied(webfm.OpDelete, path, err)
	}
	defer s.gate.Request(ctx, s.Path())

	if err := s.client.Delete(ctx, path); err != nil {
		s.notify(LevelError, webfm.OpDelete, path, fmt.Sprintf("Failed deleting %q", path), err)
		return err
	}
	return nil
}

// Download writes the contents of path to w.
func (s *Session) Download(ctx context.Context, path string, w io.Writer) (int64, error) {
	n, err := s.client.Download(ctx, path, w)
	if err != nil && !errors.Is(err, webfm.ErrAborted) {
		s.notify(LevelError, webfm.OpDownload, path, fmt.Sprintf("Failed downloading %q", path), err)
	}
	return n, err
}

// Transfers lists running uploads, oldest first.
func (s *Session) Transfers() []Transfer {
	return s.transfers.list()
}

// Abort cancels a running upload. The upload returns an error matching
// webfm.ErrAborted and no failure is notified.
func (s *Session) Abort(id string) error {
	return s.transfers.abort(id)
}
