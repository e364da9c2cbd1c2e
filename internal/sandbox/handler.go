// Package sandbox serves a webfm.Backend over the device's HTTP contract so
// the client, the CLI and the examples can run without hardware.
package sandbox

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/webfm/webfm_sdk_go/pkg/fmpath"
	"github.com/webfm/webfm_sdk_go/pkg/webfm"
)

// DefaultPrefix is where the device mounts its file-manager endpoints. The
// hostname endpoint lives one level above.
const DefaultPrefix = "/pages/"

const maxUploadMemory = 32 << 20

// sniffLen matches the read limit of mimetype.Detect.
const sniffLen = 3072

// FailConfig injects failures into a fraction of requests.
type FailConfig struct {
	Rate float64
	Code int
}

// ParseFailConfig parses "rate=<float>,code=<httpStatus>".
func ParseFailConfig(raw string) (FailConfig, error) {
	if strings.TrimSpace(raw) == "" {
		return FailConfig{}, nil
	}
	cfg := FailConfig{Code: http.StatusInternalServerError}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, val, ok := strings.Cut(part, "=")
		if !ok {
			return FailConfig{}, fmt.Errorf("sandbox: invalid fail segment %q", part)
		}
		val = strings.TrimSpace(val)
		switch strings.TrimSpace(key) {
		case "rate":
			rate, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return FailConfig{}, fmt.Errorf("sandbox: fail rate: %w", err)
			}
			if rate < 0 || rate > 1 {
				return FailConfig{}, fmt.Errorf("sandbox: fail rate %v out of range", rate)
			}
			cfg.Rate = rate
		case "code":
			code, err := strconv.Atoi(val)
			if err != nil {
				return FailConfig{}, fmt.Errorf("sandbox: fail code: %w", err)
			}
			cfg.Code = code
		default:
			return FailConfig{}, fmt.Errorf("sandbox: unknown fail key %q", key)
		}
	}
	return cfg, nil
}

// Option configures the handler.
type Option func(*handler)

// WithLatency delays every request by d.
func WithLatency(d time.Duration) Option {
	return func(h *handler) {
		h.latency = d
	}
}

// WithFailure enables failure injection.
func WithFailure(cfg FailConfig) Option {
	return func(h *handler) {
		h.fail = cfg
	}
}

// WithPrefix mounts the endpoints under prefix instead of DefaultPrefix.
func WithPrefix(prefix string) Option {
	return func(h *handler) {
		h.prefix = fmpath.Normalize(prefix)
	}
}

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *handler) {
		if l != nil {
			h.logger = l
		}
	}
}

type handler struct {
	backend webfm.Backend
	prefix  string
	latency time.Duration
	fail    FailConfig
	logger  *slog.Logger
}

// NewHandler exposes backend over HTTP.
func NewHandler(backend webfm.Backend, opts ...Option) http.Handler {
	h := &handler{
		backend: backend,
		prefix:  DefaultPrefix,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+h.prefix+webfm.OpList, h.wrap(webfm.OpList, h.handleList))
	mux.HandleFunc("POST "+h.prefix+webfm.OpCreate, h.wrap(webfm.OpCreate, h.handleCreate))
	mux.HandleFunc("POST "+h.prefix+webfm.OpMove, h.wrap(webfm.OpMove, h.handleMove))
	mux.HandleFunc("POST "+h.prefix+webfm.OpDelete, h.wrap(webfm.OpDelete, h.handleDelete))
	mux.HandleFunc("POST "+h.prefix+webfm.OpUpload, h.wrap(webfm.OpUpload, h.handleUpload))
	mux.HandleFunc("GET "+h.prefix+webfm.OpDownload, h.wrap(webfm.OpDownload, h.handleDownload))
	mux.HandleFunc("GET "+fmpath.Parent(h.prefix)+webfm.OpHostname, h.wrap(webfm.OpHostname, h.handleHostname))
	return mux
}

func (h *handler) wrap(op string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.logger.Debug("sandbox request", "op", op, "method", r.Method, "query", r.URL.RawQuery)
		if h.latency > 0 {
			select {
			case <-time.After(h.latency):
			case <-r.Context().Done():
				return
			}
		}
		if h.fail.Rate > 0 && rand.Float64() < h.fail.Rate {
			status := h.fail.Code
			if status == 0 {
				status = http.StatusInternalServerError
			}
			http.Error(w, "failure injected", status)
			return
		}
		next(w, r)
	}
}

type listEntry struct {
	Name        string  `json:"name"`
	Path        string  `json:"path"`
	Size        int64   `json:"size"`
	CTime       float64 `json:"ctime"`
	IsDirectory bool    `json:"isDirectory"`
}

func (h *handler) handleList(w http.ResponseWriter, r *http.Request) {
	dir := r.URL.Query().Get("path")
	if dir == "" {
		http.Error(w, "missing path parameter", http.StatusBadRequest)
		return
	}
	entries, err := h.backend.List(r.Context(), dir)
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]listEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, listEntry{
			Name:        e.Name,
			Path:        e.Path,
			Size:        e.Size,
			CTime:       float64(e.CTime.UnixMilli()) / 1000,
			IsDirectory: e.IsDirectory,
		})
	}
	writeJSON(w, out)
}

func (h *handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	path := r.PostFormValue("path")
	if path == "" {
		http.Error(w, "missing path parameter", http.StatusBadRequest)
		return
	}
	if err := h.backend.CreateDirectory(r.Context(), path); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, struct{}{})
}

func (h *handler) handleMove(w http.ResponseWriter, r *http.Request) {
	oldPath, newPath := r.PostFormValue("oldPath"), r.PostFormValue("newPath")
	if oldPath == "" || newPath == "" {
		http.Error(w, "missing oldPath or newPath parameter", http.StatusBadRequest)
		return
	}
	if err := h.backend.Move(r.Context(), oldPath, newPath); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, struct{}{})
}

func (h *handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	path := r.PostFormValue("path")
	if path == "" {
		http.Error(w, "missing path parameter", http.StatusBadRequest)
		return
	}
	if err := h.backend.Delete(r.Context(), path); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, struct{}{})
}

func (h *handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	dir := r.FormValue("path")
	if dir == "" {
		http.Error(w, "missing path parameter", http.StatusBadRequest)
		return
	}
	files := r.MultipartForm.File["files[]"]
	if len(files) == 0 {
		http.Error(w, "missing files[] part", http.StatusBadRequest)
		return
	}
	opts := &webfm.UploadOptions{RelativePath: r.FormValue("relativePath")}
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		opts.ContentType = fh.Header.Get("Content-Type")
		err = h.backend.Upload(r.Context(), dir, fmpath.Base(fh.Filename), f, opts)
		f.Close()
		if err != nil {
			h.writeError(w, err)
			return
		}
	}
	writeJSON(w, struct{}{})
}

func (h *handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		http.Error(w, "missing path parameter", http.StatusBadRequest)
		return
	}
	rc, err := h.backend.Download(r.Context(), path)
	if err != nil {
		h.writeError(w, err)
		return
	}
	defer rc.Close()
	br := bufio.NewReaderSize(rc, sniffLen)
	head, err := br.Peek(sniffLen)
	if err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", mimetype.Detect(head).String())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fmpath.Base(path)))
	_, _ = io.Copy(w, br)
}

func (h *handler) handleHostname(w http.ResponseWriter, r *http.Request) {
	name, err := h.backend.Hostname(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, name)
}

func (h *handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, webfm.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, webfm.ErrAlreadyExists):
		status = http.StatusConflict
	}
	h.logger.Debug("sandbox request failed", "status", status, "error", err)
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
