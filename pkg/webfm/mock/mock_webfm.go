// Package mock provides an in-memory implementation of the file-management
// service for tests, examples and the sandbox server.
package mock

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/webfm/webfm_sdk_go/internal/devseed"
	"github.com/webfm/webfm_sdk_go/pkg/fmpath"
	"github.com/webfm/webfm_sdk_go/pkg/webfm"
)

// Hook runs before an operation is applied. Returning an error fails the
// operation without touching state; blocking inside a hook simulates a slow
// server.
type Hook func(ctx context.Context, op, path string) error

// Call records one operation received by the mock.
type Call struct {
	Op   string
	Path string
}

type node struct {
	dir   bool
	data  []byte
	ctime time.Time
}

// Mock implements webfm.Backend over an in-memory tree. Directory keys end
// with a separator, file keys do not.
type Mock struct {
	mu       sync.RWMutex
	nodes    map[string]*node
	hostname string
	now      func() time.Time
	hooks    map[string]Hook
	calls    []Call
}

var _ webfm.Backend = (*Mock)(nil)

// Option configures a Mock.
type Option func(*Mock)

// WithHostname sets the name reported by Hostname.
func WithHostname(name string) Option {
	return func(m *Mock) {
		m.hostname = name
	}
}

// WithClock overrides the time source used for ctime.
func WithClock(now func() time.Time) Option {
	return func(m *Mock) {
		if now != nil {
			m.now = now
		}
	}
}

// New constructs a service holding only the root directory.
func New(opts ...Option) *Mock {
	m := &Mock{
		nodes:    make(map[string]*node),
		hostname: "mock",
		now: func() time.Time {
			return time.Now().UTC()
		},
		hooks: make(map[string]Hook),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.nodes[fmpath.Separator] = &node{dir: true, ctime: m.now()}
	return m
}

// MkdirAll creates path and any missing parents without recording calls.
func (m *Mock) MkdirAll(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mkdirAllLocked(path)
}

func (m *Mock) mkdirAllLocked(path string) {
	current := fmpath.Separator
	for _, seg := range fmpath.Segments(path) {
		current = fmpath.Join(current, seg)
		if _, ok := m.nodes[current]; !ok {
			m.nodes[current] = &node{dir: true, ctime: m.now()}
		}
	}
}

// Seed loads entries, creating parents as needed.
func (m *Mock) Seed(entries []devseed.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range entries {
		if strings.TrimSpace(e.Path) == "" {
			return fmt.Errorf("mock webfm: seed entry missing path")
		}
		ctime := e.CTime
		if ctime.IsZero() {
			ctime = m.now()
		}
		if e.IsDir() {
			m.mkdirAllLocked(e.Path)
			m.nodes[fmpath.Normalize(e.Path)].ctime = ctime
			continue
		}
		data, err := e.Data()
		if err != nil {
			return fmt.Errorf("mock webfm: %w", err)
		}
		key := fileKey(e.Path)
		m.mkdirAllLocked(fmpath.Parent(key))
		m.nodes[key] = &node{data: data, ctime: ctime}
	}
	return nil
}

// SetHook installs h for op (one of the webfm.Op* names). A nil hook clears it.
func (m *Mock) SetHook(op string, h Hook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h == nil {
		delete(m.hooks, op)
		return
	}
	m.hooks[op] = h
}

// Calls returns the paths passed to op, in arrival order. An empty op
// returns every call as "op path".
func (m *Mock) Calls(op string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for _, c := range m.calls {
		switch {
		case op == "":
			out = append(out, c.Op+" "+c.Path)
		case c.Op == op:
			out = append(out, c.Path)
		}
	}
	return out
}

// ResetCalls clears the call log.
func (m *Mock) ResetCalls() {
	m.mu.Lock()
	m.calls = nil
	m.mu.Unlock()
}

// Exists reports whether path names a file or directory.
func (m *Mock) Exists(path string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, _, ok := m.lookupLocked(path)
	return ok
}

// before records the call and runs the hook, if any, outside the lock.
func (m *Mock) before(ctx context.Context, op, path string) error {
	m.mu.Lock()
	m.calls = append(m.calls, Call{Op: op, Path: path})
	hook := m.hooks[op]
	m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mock webfm: %s %s: %w", op, path, webfm.ErrAborted)
	}
	if hook != nil {
		if err := hook(ctx, op, path); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mock webfm: %s %s: %w", op, path, webfm.ErrAborted)
	}
	return nil
}

func (m *Mock) List(ctx context.Context, dir string) ([]webfm.Entry, error) {
	if err := m.before(ctx, webfm.OpList, dir); err != nil {
		return nil, err
	}
	key := fmpath.Normalize(dir)

	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.nodes[key]
	if !ok || !n.dir {
		return nil, fmt.Errorf("mock webfm: list %s: %w", dir, webfm.ErrNotFound)
	}
	var entries []webfm.Entry
	for p, child := range m.nodes {
		if p == key || !strings.HasPrefix(p, key) {
			continue
		}
		rest := strings.TrimSuffix(strings.TrimPrefix(p, key), fmpath.Separator)
		if strings.Contains(rest, fmpath.Separator) {
			continue
		}
		entries = append(entries, webfm.Entry{
			Name:        rest,
			Path:        p,
			IsDirectory: child.dir,
			Size:        int64(len(child.data)),
			CTime:       child.ctime,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

func (m *Mock) CreateDirectory(ctx context.Context, path string) error {
	if err := m.before(ctx, webfm.OpCreate, path); err != nil {
		return err
	}
	key := fmpath.Normalize(path)

	m.mu.Lock()
	defer m.mu.Unlock()
	if n, ok := m.nodes[key]; ok && n.dir {
		return fmt.Errorf("mock webfm: create %s: %w", path, webfm.ErrAlreadyExists)
	}
	if _, ok := m.nodes[fileKey(key)]; ok {
		return fmt.Errorf("mock webfm: create %s: a file with that name exists: %w", path, webfm.ErrAlreadyExists)
	}
	if p, ok := m.nodes[fmpath.Parent(key)]; !ok || !p.dir {
		return fmt.Errorf("mock webfm: create %s: parent: %w", path, webfm.ErrNotFound)
	}
	m.nodes[key] = &node{dir: true, ctime: m.now()}
	return nil
}

func (m *Mock) Move(ctx context.Context, oldPath, newPath string) error {
	if err := m.before(ctx, webfm.OpMove, oldPath); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	oldKey, n, ok := m.lookupLocked(oldPath)
	if !ok || oldKey == fmpath.Separator {
		return fmt.Errorf("mock webfm: move %s: %w", oldPath, webfm.ErrNotFound)
	}
	newKey := fileKey(newPath)
	if n.dir {
		newKey = fmpath.Normalize(newPath)
		if strings.HasPrefix(newKey, oldKey) {
			return fmt.Errorf("mock webfm: move %s into itself", oldPath)
		}
	}
	if newKey == oldKey {
		return nil
	}
	if _, _, exists := m.lookupLocked(newPath); exists {
		return fmt.Errorf("mock webfm: move %s to %s: %w", oldPath, newPath, webfm.ErrAlreadyExists)
	}
	if p, ok := m.nodes[fmpath.Parent(newKey)]; !ok || !p.dir {
		return fmt.Errorf("mock webfm: move %s to %s: parent: %w", oldPath, newPath, webfm.ErrNotFound)
	}
	if !n.dir {
		delete(m.nodes, oldKey)
		m.nodes[newKey] = n
		return nil
	}
	moved := make(map[string]*node)
	for p, child := range m.nodes {
		if strings.HasPrefix(p, oldKey) {
			moved[newKey+strings.TrimPrefix(p, oldKey)] = child
			delete(m.nodes, p)
		}
	}
	for p, child := range moved {
		m.nodes[p] = child
	}
	return nil
}

func (m *Mock) Delete(ctx context.Context, path string) error {
	if err := m.before(ctx, webfm.OpDelete, path); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	key, n, ok := m.lookupLocked(path)
	if !ok || key == fmpath.Separator {
		return fmt.Errorf("mock webfm: delete %s: %w", path, webfm.ErrNotFound)
	}
	if !n.dir {
		delete(m.nodes, key)
		return nil
	}
	for p := range m.nodes {
		if strings.HasPrefix(p, key) {
			delete(m.nodes, p)
		}
	}
	return nil
}

func (m *Mock) Upload(ctx context.Context, dir, name string, data io.Reader, _ *webfm.UploadOptions) error {
	target := fmpath.JoinFile(dir, name)
	if err := m.before(ctx, webfm.OpUpload, target); err != nil {
		return err
	}
	payload, err := io.ReadAll(data)
	if err != nil {
		return fmt.Errorf("mock webfm: upload %s: %w", target, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.nodes[fmpath.Normalize(dir)]; !ok || !p.dir {
		return fmt.Errorf("mock webfm: upload %s: directory: %w", target, webfm.ErrNotFound)
	}
	if n, ok := m.nodes[fmpath.Normalize(target)]; ok && n.dir {
		return fmt.Errorf("mock webfm: upload %s: a directory with that name exists: %w", target, webfm.ErrAlreadyExists)
	}
	m.nodes[target] = &node{data: payload, ctime: m.now()}
	return nil
}

func (m *Mock) Download(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := m.before(ctx, webfm.OpDownload, path); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.nodes[fileKey(path)]
	if !ok || n.dir {
		return nil, fmt.Errorf("mock webfm: download %s: %w", path, webfm.ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(append([]byte(nil), n.data...))), nil
}

func (m *Mock) Hostname(ctx context.Context) (string, error) {
	if err := m.before(ctx, webfm.OpHostname, ""); err != nil {
		return "", err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hostname, nil
}

// lookupLocked resolves path to a directory key first, then a file key.
func (m *Mock) lookupLocked(path string) (string, *node, bool) {
	dirKey := fmpath.Normalize(path)
	if n, ok := m.nodes[dirKey]; ok && n.dir {
		return dirKey, n, true
	}
	key := fileKey(path)
	if n, ok := m.nodes[key]; ok && !n.dir {
		return key, n, true
	}
	return "", nil, false
}

func fileKey(path string) string {
	return strings.TrimSuffix(fmpath.Normalize(path), fmpath.Separator)
}
