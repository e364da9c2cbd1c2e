package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/webfm/webfm_sdk_go/pkg/fmpath"
	"github.com/webfm/webfm_sdk_go/pkg/webfm"
)

// UploadItem is one file of a folder upload. RelativePath is the file's
// position inside the uploaded folder, including the folder itself, e.g.
// "album/disc1/01.flac".
type UploadItem struct {
	RelativePath string
	Open         func() (io.ReadCloser, error)
}

// BytesItem builds an UploadItem over an in-memory payload.
func BytesItem(relativePath string, data []byte) UploadItem {
	return UploadItem{
		RelativePath: relativePath,
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

// UploadResult reports the outcome of one item.
type UploadResult struct {
	RelativePath string
	Path         string
	Err          error
}

// Upload sends r as name into the current directory and reloads it.
func (s *Session) Upload(ctx context.Context, name string, r io.Reader) error {
	dir := s.Path()
	if err := s.policy.CheckUpload(dir); err != nil {
		return s.denied(webfm.OpUpload, dir, err)
	}
	if err := s.policy.CheckFileType(name); err != nil {
		s.notify(LevelWarning, webfm.OpUpload, name, fmt.Sprintf("Unsupported upload file: %q", name), err)
		return err
	}
	if err := s.send(ctx, dir, name, r, nil); err != nil {
		return err
	}
	s.gate.Request(ctx, dir)
	return nil
}

// UploadTree uploads a folder into the current directory. Every item has its
// ancestor directories created first; items run concurrently up to the
// session's upload limit and one failing item does not stop the others. The
// returned error joins every item failure.
func (s *Session) UploadTree(ctx context.Context, items []UploadItem) ([]UploadResult, error) {
	base := s.Path()
	if err := s.policy.CheckUpload(base); err != nil {
		return nil, s.denied(webfm.OpUpload, base, err)
	}

	results := make([]UploadResult, len(items))
	var (
		mu   sync.Mutex
		errs []error
	)
	var g errgroup.Group
	g.SetLimit(s.uploadLimit)
	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			res := s.uploadItem(ctx, base, item)
			results[i] = res
			if res.Err != nil {
				mu.Lock()
				errs = append(errs, res.Err)
				mu.Unlock()
			}
			return res.Err
		})
	}
	_ = g.Wait()
	return results, errors.Join(errs...)
}

func (s *Session) uploadItem(ctx context.Context, base string, item UploadItem) UploadResult {
	rel := item.RelativePath
	name := fmpath.Base(rel)
	dir := fmpath.TargetDir(base, rel)
	res := UploadResult{RelativePath: rel, Path: fmpath.JoinFile(dir, name)}

	if name == "" || item.Open == nil {
		res.Err = fmt.Errorf("%w: %q", ErrInvalidName, rel)
		s.notify(LevelWarning, webfm.OpUpload, rel, fmt.Sprintf("Invalid upload item %q", rel), res.Err)
		return res
	}
	if err := s.policy.CheckFileType(name); err != nil {
		res.Err = err
		s.notify(LevelWarning, webfm.OpUpload, rel, fmt.Sprintf("Unsupported file type: %s", name), err)
		return res
	}
	if err := s.ensurer.Ensure(ctx, base, rel); err != nil {
		res.Err = err
		s.notify(LevelError, webfm.OpCreate, rel, err.Error(), err)
		return res
	}

	rc, err := item.Open()
	if err != nil {
		res.Err = fmt.Errorf("session: open %s: %w", rel, err)
		s.notify(LevelError, webfm.OpUpload, rel, fmt.Sprintf("Failed reading %q", rel), res.Err)
		return res
	}
	defer rc.Close()

	if err := s.send(ctx, dir, name, rc, &webfm.UploadOptions{RelativePath: rel}); err != nil {
		res.Err = err
		return res
	}
	s.gate.Request(ctx, base)
	return res
}

// send runs one upload as an abortable transfer. Aborts are returned but not
// notified.
func (s *Session) send(ctx context.Context, dir, name string, r io.Reader, opts *webfm.UploadOptions) error {
	target := fmpath.JoinFile(dir, name)
	tctx, t, done := s.transfers.start(ctx, target)
	defer done()
	s.logger.Debug("upload started", "transfer", t.ID, "path", target)

	err := s.client.Upload(tctx, dir, name, r, opts)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, webfm.ErrAborted):
		s.logger.Debug("upload aborted", "transfer", t.ID, "path", target)
		return err
	default:
		s.notify(LevelError, webfm.OpUpload, target, fmt.Sprintf("Failed uploading %q to %q", name, dir), err)
		return err
	}
}
