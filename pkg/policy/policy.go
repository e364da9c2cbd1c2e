// Package policy holds the client-side permission rules of a device: which
// directories may receive new content, which entries are protected from
// removal, and which file types may be uploaded.
package policy

import (
	"errors"
	"fmt"
	"strings"

	"github.com/webfm/webfm_sdk_go/pkg/fmpath"
)

const (
	DefaultRoot = "/data/mnt/"
	DefaultHome = "/data/mnt/sd_0/"
)

// DefaultHomes are the storage volumes mounted under DefaultRoot.
var DefaultHomes = []string{"sd_0", "sd_1", "udisk_0", "udisk_1"}

// DefaultAllowedTypes lists the uploadable extensions, upper-case, without dot.
var DefaultAllowedTypes = []string{
	"ISO", "DFF", "DSF", "DTS", "APE", "FLAC", "AIF", "AIFF", "WAV", "M4A", "M4B",
	"AAC", "MP2", "MP3", "OGG", "OGA", "WMA", "CUE", "M3U", "M3U8", "OPUS",
	"BMP", "PNG", "JPG", "JPEG", "LRC", "UPT", "T", "TXT",
}

var (
	// ErrDenied is matched by every *DeniedError.
	ErrDenied = errors.New("policy: permission denied")
	// ErrUnsupportedType rejects an upload by extension.
	ErrUnsupportedType = errors.New("policy: unsupported file type")
)

// DeniedError names the operation and path refused by the policy.
type DeniedError struct {
	Op     string
	Path   string
	Reason string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("policy: %s %s: %s", e.Op, e.Path, e.Reason)
}

func (e *DeniedError) Unwrap() error {
	return ErrDenied
}

// Policy is immutable after construction.
type Policy struct {
	root    string
	home    string
	homes   []string
	allowed map[string]struct{}
}

// Option configures a Policy.
type Option func(*Policy)

// WithRoot sets the directory that holds the volumes.
func WithRoot(root string) Option {
	return func(p *Policy) {
		p.root = fmpath.Normalize(root)
	}
}

// WithHome sets the directory a session opens first.
func WithHome(home string) Option {
	return func(p *Policy) {
		p.home = home
	}
}

// WithHomes sets the volumes. Relative names are resolved against the root.
func WithHomes(homes ...string) Option {
	return func(p *Policy) {
		p.homes = append([]string(nil), homes...)
	}
}

// WithAllowedTypes replaces the upload allow-list. An empty list allows
// every type.
func WithAllowedTypes(exts ...string) Option {
	return func(p *Policy) {
		p.allowed = make(map[string]struct{}, len(exts))
		for _, ext := range exts {
			ext = strings.ToUpper(strings.TrimPrefix(strings.TrimSpace(ext), "."))
			if ext != "" {
				p.allowed[ext] = struct{}{}
			}
		}
	}
}

// New builds a Policy from the defaults overridden by opts.
func New(opts ...Option) *Policy {
	p := &Policy{root: DefaultRoot, home: DefaultHome}
	WithHomes(DefaultHomes...)(p)
	WithAllowedTypes(DefaultAllowedTypes...)(p)
	for _, opt := range opts {
		opt(p)
	}
	for i, h := range p.homes {
		if !strings.HasPrefix(h, fmpath.Separator) {
			h = p.root + h
		}
		p.homes[i] = fmpath.Normalize(h)
	}
	p.home = fmpath.Normalize(p.home)
	return p
}

// Root returns the canonical root directory.
func (p *Policy) Root() string { return p.root }

// Home returns the canonical start directory.
func (p *Policy) Home() string { return p.home }

// Homes returns the canonical volume directories.
func (p *Policy) Homes() []string { return append([]string(nil), p.homes...) }

// IsRoot reports whether path is the root directory.
func (p *Policy) IsRoot(path string) bool {
	return fmpath.Normalize(path) == p.root
}

// IsHome reports whether path is one of the volumes.
func (p *Policy) IsHome(path string) bool {
	path = fmpath.Normalize(path)
	for _, h := range p.homes {
		if path == h {
			return true
		}
	}
	return false
}

// Protected reports whether path may not be moved or deleted.
func (p *Policy) Protected(path string) bool {
	return p.IsRoot(path) || p.IsHome(path)
}

// CheckUpload allows uploads into any directory but the root.
func (p *Policy) CheckUpload(dir string) error {
	if p.IsRoot(dir) {
		return &DeniedError{Op: "upload", Path: dir, Reason: "no permission to upload contents to this directory"}
	}
	return nil
}

// CheckCreate allows new folders in any directory but the root.
func (p *Policy) CheckCreate(dir string) error {
	if p.IsRoot(dir) {
		return &DeniedError{Op: "create", Path: dir, Reason: "no permission to add contents to this directory"}
	}
	return nil
}

// CheckDelete refuses the root and the volumes.
func (p *Policy) CheckDelete(path string) error {
	if p.Protected(path) {
		return &DeniedError{Op: "delete", Path: path, Reason: "no permission to delete this directory"}
	}
	return nil
}

// CheckMove requires the source to be unprotected and the destination to lie
// strictly inside a volume.
func (p *Policy) CheckMove(oldPath, newPath string) error {
	if p.Protected(oldPath) {
		return &DeniedError{Op: "move", Path: oldPath, Reason: "no permission to move this directory"}
	}
	if len(strings.TrimSuffix(newPath, fmpath.Separator)) < len(p.root) || !p.insideHome(newPath) {
		return &DeniedError{Op: "move", Path: newPath, Reason: "no permission to move contents to this directory"}
	}
	return nil
}

func (p *Policy) insideHome(path string) bool {
	path = fmpath.Normalize(path)
	for _, h := range p.homes {
		if path != h && strings.HasPrefix(path, h) {
			return true
		}
	}
	return false
}

// CheckFileType matches name's extension against the allow-list. Directory
// paths are always accepted.
func (p *Policy) CheckFileType(name string) error {
	if len(p.allowed) == 0 || fmpath.IsDir(name) {
		return nil
	}
	base := name
	if i := strings.LastIndex(base, fmpath.Separator); i >= 0 {
		base = base[i+1:]
	}
	// A name without a dot is compared whole.
	ext := base[strings.LastIndex(base, ".")+1:]
	if _, ok := p.allowed[strings.ToUpper(ext)]; ok {
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnsupportedType, name)
}
