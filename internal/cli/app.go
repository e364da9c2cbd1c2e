package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/webfm/webfm_sdk_go/internal/config"
	"github.com/webfm/webfm_sdk_go/internal/httpx"
	"github.com/webfm/webfm_sdk_go/pkg/fmpath"
	"github.com/webfm/webfm_sdk_go/pkg/session"
	"github.com/webfm/webfm_sdk_go/pkg/webfm_sdk"
)

// errReported is returned when failures were already printed as
// notifications.
var errReported = errors.New("webfm: operation failed")

type app struct {
	cfg    *config.Config
	logger *slog.Logger
	closer io.Closer
}

func (a *app) close() error {
	if a.closer == nil {
		return nil
	}
	err := a.closer.Close()
	a.closer = nil
	return err
}

// runtime resolves the configured backend.
func (a *app) runtime() (*webfm_sdk.Runtime, error) {
	mc, err := a.cfg.Backend.MockConfig()
	if err != nil {
		return nil, err
	}
	rt, err := webfm_sdk.New(webfm_sdk.Settings{
		Mode:         a.cfg.Backend.Mode,
		URL:          a.cfg.Backend.URL,
		MockSeed:     mc.Seed,
		MockHostname: mc.Hostname,
		HTTPOptions:  append(a.cfg.Backend.HTTPOptions(), httpx.WithLogger(a.logger)),
	})
	if err != nil {
		return nil, err
	}
	a.logger.Debug("backend ready", "mode", rt.Mode, "url", a.cfg.Backend.URL)
	return rt, nil
}

// session opens a browser session on dir. Notifications go to stderr.
func (a *app) session(ctx context.Context, stderr io.Writer, dir string) (*session.Session, *printer, error) {
	rt, err := a.runtime()
	if err != nil {
		return nil, nil, err
	}
	p := &printer{w: stderr}
	s := session.New(rt.Client,
		session.WithPolicy(a.cfg.Layout.Policy()),
		session.WithNotifier(p),
		session.WithLogger(a.logger),
		session.WithVendor(a.cfg.Layout.Vendor),
		session.WithUploadConcurrency(a.cfg.Upload.Concurrency),
	)
	s.Open(ctx, a.resolveDir(dir))
	if err := p.err(); err != nil {
		return nil, nil, err
	}
	return s, p, nil
}

// resolveDir makes arg absolute against the home directory.
func (a *app) resolveDir(arg string) string {
	return fmpath.Normalize(a.resolve(arg))
}

func (a *app) resolve(arg string) string {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return a.cfg.Layout.Home
	}
	if strings.HasPrefix(arg, fmpath.Separator) {
		return arg
	}
	return fmpath.JoinFile(a.cfg.Layout.Home, arg)
}

// printer writes notifications as they arrive and remembers whether any
// was an error.
type printer struct {
	mu     sync.Mutex
	w      io.Writer
	errors int
}

func (p *printer) Notify(n session.Notification) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n.Level == session.LevelError {
		p.errors++
	}
	if n.Err != nil && n.Err.Error() != n.Message {
		fmt.Fprintf(p.w, "%s: %s: %v\n", strings.ToLower(n.Level.String()), n.Message, n.Err)
		return
	}
	fmt.Fprintf(p.w, "%s: %s\n", strings.ToLower(n.Level.String()), n.Message)
}

func (p *printer) err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.errors > 0 {
		return errReported
	}
	return nil
}

// finish folds a command error and any reported failures into one result.
// Errors that were already printed are not repeated.
func (p *printer) finish(err error) error {
	if reported := p.err(); reported != nil {
		return reported
	}
	return err
}
