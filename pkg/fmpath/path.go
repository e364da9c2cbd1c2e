// Package fmpath manipulates the slash-separated paths used by the
// file-management service. A canonical directory path has no repeated
// separators and ends with exactly one trailing separator.
package fmpath

import "strings"

// Separator is the only separator understood by the service.
const Separator = "/"

// Normalize returns the canonical directory form of p: runs of separators
// collapse to one and exactly one trailing separator is kept.
func Normalize(p string) string {
	var b strings.Builder
	b.Grow(len(p) + 1)
	prevSep := false
	for _, r := range p {
		if r == '/' {
			if prevSep {
				continue
			}
			prevSep = true
		} else {
			prevSep = false
		}
		b.WriteRune(r)
	}
	out := strings.TrimSuffix(b.String(), Separator)
	return out + Separator
}

// Equal reports whether a and b name the same directory.
func Equal(a, b string) bool {
	return Normalize(a) == Normalize(b)
}

// Segments splits p on separators, dropping empty segments.
func Segments(p string) []string {
	parts := strings.Split(p, Separator)
	out := parts[:0]
	for _, s := range parts {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Join appends name to the directory dir and normalizes the result as a
// directory path.
func Join(dir, name string) string {
	return Normalize(dir + Separator + name)
}

// JoinFile appends a file name to dir without a trailing separator.
func JoinFile(dir, name string) string {
	return Normalize(dir) + strings.Trim(name, Separator)
}

// AncestorDirs lists the directories that must exist before a file at
// relativePath can be placed under basePath, shallowest first. The last
// segment of relativePath is the leaf and is never included; basePath itself
// is not included either.
func AncestorDirs(basePath, relativePath string) []string {
	segs := Segments(relativePath)
	if len(segs) <= 1 {
		return nil
	}
	dirs := make([]string, 0, len(segs)-1)
	current := Normalize(basePath)
	for _, seg := range segs[:len(segs)-1] {
		current = Join(current, seg)
		dirs = append(dirs, current)
	}
	return dirs
}

// TargetDir returns the directory a file at relativePath lands in when
// uploaded under basePath.
func TargetDir(basePath, relativePath string) string {
	dirs := AncestorDirs(basePath, relativePath)
	if len(dirs) == 0 {
		return Normalize(basePath)
	}
	return dirs[len(dirs)-1]
}

// Base returns the last non-empty segment of p, or "" for the root.
func Base(p string) string {
	segs := Segments(p)
	if len(segs) == 0 {
		return ""
	}
	return segs[len(segs)-1]
}

// Parent returns the canonical parent directory of p. The parent of the
// root is the root.
func Parent(p string) string {
	segs := Segments(p)
	if len(segs) <= 1 {
		return Separator
	}
	return Separator + strings.Join(segs[:len(segs)-1], Separator) + Separator
}

// IsDir reports whether p is written in directory form.
func IsDir(p string) bool {
	return strings.HasSuffix(p, Separator)
}

// HasPrefix reports whether p lies at or below dir.
func HasPrefix(p, dir string) bool {
	return strings.HasPrefix(Normalize(p), Normalize(dir))
}

// Crumb is one element of a breadcrumb trail.
type Crumb struct {
	Name string
	Path string
}

// Breadcrumbs returns the trail from root down to p. The first crumb is the
// root and is labelled rootLabel; p outside root yields only the root crumb.
func Breadcrumbs(root, p, rootLabel string) []Crumb {
	root = Normalize(root)
	p = Normalize(p)
	crumbs := []Crumb{{Name: rootLabel, Path: root}}
	if !strings.HasPrefix(p, root) {
		return crumbs
	}
	current := root
	for _, seg := range Segments(strings.TrimPrefix(p, root)) {
		current = Join(current, seg)
		crumbs = append(crumbs, Crumb{Name: seg, Path: current})
	}
	return crumbs
}
