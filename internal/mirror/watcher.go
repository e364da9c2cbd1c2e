package mirror

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/webfm/webfm_sdk_go/pkg/session"
)

// DefaultDebounce is how long the watcher waits for a burst of events to
// settle before uploading.
const DefaultDebounce = 500 * time.Millisecond

// Uploader receives batches of items. *session.Session satisfies it.
type Uploader interface {
	UploadTree(ctx context.Context, items []session.UploadItem) ([]session.UploadResult, error)
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithLogger sets the logger for watch events and batch results.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithInitialSync uploads the existing tree before watching.
func WithInitialSync() Option {
	return func(w *Watcher) {
		w.initial = true
	}
}

// Watcher uploads files created or rewritten under a local directory.
type Watcher struct {
	root     string
	uploader Uploader
	debounce time.Duration
	logger   *slog.Logger
	initial  bool
}

// NewWatcher prepares a watcher for dir.
func NewWatcher(dir string, uploader Uploader, opts ...Option) (*Watcher, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("mirror: resolve %s: %w", dir, err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("mirror: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("mirror: %s is not a directory", dir)
	}
	w := &Watcher{
		root:     root,
		uploader: uploader,
		debounce: DefaultDebounce,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Run watches until ctx is cancelled. Pending files are dropped on exit.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("mirror: create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	pending := make(map[string]struct{})
	if err := w.addTree(watcher, w.root, pending); err != nil {
		return err
	}
	if !w.initial {
		clear(pending)
	}
	w.logger.Info("watching for changes", "dir", w.root, "debounce", w.debounce)

	timer := time.NewTimer(w.debounce)
	defer timer.Stop()
	if len(pending) == 0 {
		timer.Stop()
	}

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watcher stopped", "dir", w.root, "dropped", len(pending))
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if hidden(filepath.Base(event.Name)) {
				continue
			}
			info, err := os.Stat(event.Name)
			if err != nil {
				continue
			}
			if info.IsDir() {
				// Files written before the watch was added produce no event.
				if err := w.addTree(watcher, event.Name, pending); err != nil {
					w.logger.Warn("watch directory", "dir", event.Name, "error", err)
				}
			} else if info.Mode().IsRegular() {
				pending[event.Name] = struct{}{}
			}
			timer.Reset(w.debounce)

		case <-timer.C:
			w.flush(ctx, pending)
			clear(pending)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}

// addTree watches dir and its subdirectories and marks the files found.
func (w *Watcher) addTree(watcher *fsnotify.Watcher, dir string, pending map[string]struct{}) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if path != w.root && hidden(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if err := watcher.Add(path); err != nil {
				return fmt.Errorf("mirror: watch %s: %w", path, err)
			}
			return nil
		}
		if d.Type().IsRegular() {
			pending[path] = struct{}{}
		}
		return nil
	})
}

func (w *Watcher) flush(ctx context.Context, pending map[string]struct{}) {
	if len(pending) == 0 {
		return
	}
	paths := make([]string, 0, len(pending))
	for p := range pending {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	items := make([]session.UploadItem, 0, len(paths))
	for _, p := range paths {
		rel, err := relativePath(w.root, p)
		if err != nil {
			w.logger.Warn("skip file", "file", p, "error", err)
			continue
		}
		items = append(items, FileItem(rel, p))
	}

	start := time.Now()
	results, err := w.uploader.UploadTree(ctx, items)
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	if err != nil {
		w.logger.Warn("batch finished with errors", "files", len(items), "failed", failed, "elapsed", time.Since(start), "error", err)
		return
	}
	w.logger.Info("batch uploaded", "files", len(items), "elapsed", time.Since(start))
}
