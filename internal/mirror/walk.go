// Package mirror turns local directory trees into folder uploads, either once
// or continuously while files appear.
package mirror

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/webfm/webfm_sdk_go/pkg/session"
)

// Walk returns an upload item for every regular file under dir. Relative
// paths are slash separated and start with the base name of dir. Hidden
// files and directories are skipped.
func Walk(dir string) ([]session.UploadItem, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("mirror: resolve %s: %w", dir, err)
	}
	var items []session.UploadItem
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path != root && hidden(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := relativePath(root, path)
		if err != nil {
			return err
		}
		items = append(items, FileItem(rel, path))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("mirror: walk %s: %w", dir, err)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].RelativePath < items[j].RelativePath })
	return items, nil
}

// FileItem builds an upload item that opens path lazily.
func FileItem(relativePath, path string) session.UploadItem {
	return session.UploadItem{
		RelativePath: relativePath,
		Open: func() (io.ReadCloser, error) {
			return os.Open(path)
		},
	}
}

// relativePath maps a file under root to "<base of root>/<rel>".
func relativePath(root, path string) (string, error) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", fmt.Errorf("mirror: %s is not under %s: %w", path, root, err)
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("mirror: %s is not under %s", path, root)
	}
	return filepath.ToSlash(filepath.Join(filepath.Base(root), rel)), nil
}

func hidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
