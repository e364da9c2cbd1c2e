package webfm

import (
	"errors"
	"fmt"
	"time"
)

// Entry describes a single item in a directory listing.
type Entry struct {
	Name        string
	Path        string
	IsDirectory bool
	Size        int64
	CTime       time.Time
}

// UploadOptions control how a file is submitted.
type UploadOptions struct {
	// RelativePath is forwarded for folder uploads so the server can log or
	// verify the original tree position. It does not affect the target dir.
	RelativePath string
	// ContentType overrides content sniffing.
	ContentType string
}

var (
	// ErrNotFound indicates the requested entry is missing.
	ErrNotFound = errors.New("webfm: not found")
	// ErrAlreadyExists is reported when a directory to create already
	// exists. Directory creation treats it as success.
	ErrAlreadyExists = errors.New("webfm: already exists")
	// ErrAborted marks operations cancelled by the caller, as opposed to
	// transport failures.
	ErrAborted = errors.New("webfm: aborted")
)

// TransportError is a failed exchange with the service that is neither an
// abort nor one of the sentinel conditions above.
type TransportError struct {
	Op         string
	Path       string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("webfm: %s %s: status %d: %v", e.Op, e.Path, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("webfm: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Temporary reports whether retrying the operation later may succeed.
func (e *TransportError) Temporary() bool {
	return e.StatusCode == 0 || e.StatusCode == 408 || e.StatusCode == 429 || e.StatusCode >= 500
}
