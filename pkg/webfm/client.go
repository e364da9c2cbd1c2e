package webfm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/webfm/webfm_sdk_go/internal/httpx"
	"github.com/webfm/webfm_sdk_go/internal/webfmapi"
	"github.com/webfm/webfm_sdk_go/pkg/fmpath"
)

// Operation names used in errors and logs.
const (
	OpList     = "list"
	OpCreate   = "create"
	OpMove     = "move"
	OpDelete   = "delete"
	OpUpload   = "upload"
	OpDownload = "download"
	OpHostname = "hostname"
)

// uploadField is the multipart field name used by the service's uploader.
const uploadField = "files[]"

// sniffLen matches the read limit of mimetype.Detect.
const sniffLen = 3072

// Backend is the remote-call capability behind a Client.
type Backend interface {
	List(ctx context.Context, dir string) ([]Entry, error)
	CreateDirectory(ctx context.Context, path string) error
	Move(ctx context.Context, oldPath, newPath string) error
	Delete(ctx context.Context, path string) error
	Upload(ctx context.Context, dir, name string, data io.Reader, opts *UploadOptions) error
	Download(ctx context.Context, path string) (io.ReadCloser, error)
	Hostname(ctx context.Context) (string, error)
}

// Client provides access to the file-management service.
type Client struct {
	backend Backend
}

// New constructs an HTTP-backed client. baseURL is the directory the
// endpoints live in, e.g. http://192.168.1.20/pages/.
func New(baseURL string, opts ...httpx.Option) (*Client, error) {
	cl, err := httpx.NewClient(baseURL, opts...)
	if err != nil {
		return nil, err
	}
	return NewWithHTTPClient(cl), nil
}

// NewWithHTTPClient wraps an existing httpx.Client.
func NewWithHTTPClient(httpClient *httpx.Client) *Client {
	return &Client{backend: &httpBackend{client: httpClient}}
}

// NewWithBackend allows callers to provide a custom backend (e.g., mocks).
func NewWithBackend(b Backend) *Client {
	return &Client{backend: b}
}

// List returns the entries of dir in the order the service delivered them.
func (c *Client) List(ctx context.Context, dir string) ([]Entry, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("webfm: path is required")
	}
	return c.backend.List(ctx, fmpath.Normalize(dir))
}

// CreateDirectory creates a single directory whose parent must exist.
// An existing directory yields an error matching ErrAlreadyExists.
func (c *Client) CreateDirectory(ctx context.Context, path string) error {
	if err := c.check(); err != nil {
		return err
	}
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("webfm: path is required")
	}
	return c.backend.CreateDirectory(ctx, path)
}

// Move renames or relocates an entry.
func (c *Client) Move(ctx context.Context, oldPath, newPath string) error {
	if err := c.check(); err != nil {
		return err
	}
	if strings.TrimSpace(oldPath) == "" || strings.TrimSpace(newPath) == "" {
		return fmt.Errorf("webfm: old and new paths are required")
	}
	return c.backend.Move(ctx, oldPath, newPath)
}

// Delete removes a file or a directory tree.
func (c *Client) Delete(ctx context.Context, path string) error {
	if err := c.check(); err != nil {
		return err
	}
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("webfm: path is required")
	}
	return c.backend.Delete(ctx, path)
}

// Upload streams the contents of data to dir/name. dir must exist. Without
// an explicit ContentType the type is sniffed from the first bytes of data.
func (c *Client) Upload(ctx context.Context, dir, name string, data io.Reader, opts *UploadOptions) error {
	if err := c.check(); err != nil {
		return err
	}
	if strings.TrimSpace(name) == "" || strings.Contains(name, fmpath.Separator) {
		return fmt.Errorf("webfm: invalid file name %q", name)
	}
	if strings.TrimSpace(dir) == "" {
		return fmt.Errorf("webfm: target directory is required")
	}
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(data, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("webfm: read upload payload: %w", err)
	}
	head = head[:n]
	var o UploadOptions
	if opts != nil {
		o = *opts
	}
	if o.ContentType == "" {
		o.ContentType = mimetype.Detect(head).String()
	}
	return c.backend.Upload(ctx, fmpath.Normalize(dir), name, io.MultiReader(bytes.NewReader(head), data), &o)
}

// Download streams the contents of path into w.
func (c *Client) Download(ctx context.Context, path string, w io.Writer) (int64, error) {
	if err := c.check(); err != nil {
		return 0, err
	}
	if strings.TrimSpace(path) == "" {
		return 0, fmt.Errorf("webfm: path is required")
	}
	rc, err := c.backend.Download(ctx, path)
	if err != nil {
		return 0, err
	}
	defer rc.Close()
	n, err := io.Copy(w, rc)
	if err != nil {
		return n, classify(ctx, OpDownload, path, err)
	}
	return n, nil
}

// Hostname returns the device name reported by the service.
func (c *Client) Hostname(ctx context.Context) (string, error) {
	if err := c.check(); err != nil {
		return "", err
	}
	return c.backend.Hostname(ctx)
}

func (c *Client) check() error {
	if c == nil || c.backend == nil {
		return fmt.Errorf("webfm: client is nil")
	}
	return nil
}

// classify maps transport-level failures onto the package error taxonomy.
func classify(ctx context.Context, op, path string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || (ctx != nil && errors.Is(ctx.Err(), context.Canceled)) {
		return fmt.Errorf("webfm: %s %s: %w", op, path, ErrAborted)
	}
	var httpErr *httpx.HTTPError
	if errors.As(err, &httpErr) {
		switch httpErr.StatusCode {
		case http.StatusConflict:
			return fmt.Errorf("webfm: %s %s: %w", op, path, ErrAlreadyExists)
		case http.StatusNotFound:
			return fmt.Errorf("webfm: %s %s: %w", op, path, ErrNotFound)
		}
		return &TransportError{Op: op, Path: path, StatusCode: httpErr.StatusCode, Err: err}
	}
	return &TransportError{Op: op, Path: path, Err: err}
}

type httpBackend struct {
	client *httpx.Client
}

func (b *httpBackend) postForm(ctx context.Context, op, path string, values url.Values, retry bool) error {
	body, contentType := httpx.FormBody(values)
	resp, err := b.client.Do(ctx, &httpx.Request{
		Method:       http.MethodPost,
		Path:         op,
		Header:       http.Header{"Content-Type": []string{contentType}},
		Body:         body,
		DisableRetry: !retry,
	})
	if err != nil {
		return classify(ctx, op, path, err)
	}
	_, _ = httpx.ReadAllAndClose(resp.Body)
	return nil
}

func (b *httpBackend) List(ctx context.Context, dir string) ([]Entry, error) {
	resp, err := b.client.Do(ctx, &httpx.Request{
		Method: http.MethodGet,
		Path:   OpList,
		Query:  url.Values{"path": []string{dir}},
	})
	if err != nil {
		return nil, classify(ctx, OpList, dir, err)
	}
	payload, err := httpx.ReadAllAndClose(resp.Body)
	if err != nil {
		return nil, classify(ctx, OpList, dir, err)
	}
	wire, err := webfmapi.DecodeEntries(payload)
	if err != nil {
		return nil, &TransportError{Op: OpList, Path: dir, Err: err}
	}
	entries := make([]Entry, 0, len(wire))
	for _, w := range wire {
		name := w.Name
		if name == "" {
			name = fmpath.Base(w.Path)
		}
		entries = append(entries, Entry{
			Name:        name,
			Path:        w.Path,
			IsDirectory: w.Directory(),
			Size:        w.Size,
			CTime:       w.CTime.Time,
		})
	}
	return entries, nil
}

// CreateDirectory may be retried: a replay that lands after a successful
// first attempt surfaces as 409, which callers treat as success.
func (b *httpBackend) CreateDirectory(ctx context.Context, path string) error {
	return b.postForm(ctx, OpCreate, path, url.Values{"path": []string{path}}, true)
}

func (b *httpBackend) Move(ctx context.Context, oldPath, newPath string) error {
	return b.postForm(ctx, OpMove, oldPath, url.Values{
		"oldPath": []string{oldPath},
		"newPath": []string{newPath},
	}, false)
}

func (b *httpBackend) Delete(ctx context.Context, path string) error {
	return b.postForm(ctx, OpDelete, path, url.Values{"path": []string{path}}, false)
}

func (b *httpBackend) Upload(ctx context.Context, dir, name string, data io.Reader, opts *UploadOptions) error {
	fields := url.Values{"path": []string{dir}}
	contentType := ""
	if opts != nil {
		if opts.RelativePath != "" {
			fields.Set("relativePath", opts.RelativePath)
		}
		contentType = opts.ContentType
	}
	body, formType := httpx.MultipartBody(fields, httpx.FilePart{
		Field:       uploadField,
		Filename:    name,
		ContentType: contentType,
		Reader:      data,
	})
	defer body.Close()
	target := fmpath.JoinFile(dir, name)
	resp, err := b.client.Do(ctx, &httpx.Request{
		Method:       http.MethodPost,
		Path:         OpUpload,
		Header:       http.Header{"Content-Type": []string{formType}},
		Body:         body,
		DisableRetry: true,
	})
	if err != nil {
		return classify(ctx, OpUpload, target, err)
	}
	_, _ = httpx.ReadAllAndClose(resp.Body)
	return nil
}

func (b *httpBackend) Download(ctx context.Context, path string) (io.ReadCloser, error) {
	resp, err := b.client.Do(ctx, &httpx.Request{
		Method: http.MethodGet,
		Path:   OpDownload,
		Query:  url.Values{"path": []string{path}},
	})
	if err != nil {
		return nil, classify(ctx, OpDownload, path, err)
	}
	return resp.Body, nil
}

func (b *httpBackend) Hostname(ctx context.Context) (string, error) {
	resp, err := b.client.Do(ctx, &httpx.Request{
		Method: http.MethodGet,
		Path:   "../" + OpHostname,
	})
	if err != nil {
		return "", classify(ctx, OpHostname, "", err)
	}
	data, err := httpx.ReadAllAndClose(resp.Body)
	if err != nil {
		return "", classify(ctx, OpHostname, "", err)
	}
	return string(bytes.TrimSpace(data)), nil
}
