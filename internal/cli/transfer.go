package cli

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/webfm/webfm_sdk_go/internal/mirror"
	"github.com/webfm/webfm_sdk_go/pkg/fmpath"
)

func newPutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "put <local-file> [remote-dir]",
		Short: "Upload a file",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			info, err := f.Stat()
			if err != nil {
				return err
			}
			if info.IsDir() {
				return fmt.Errorf("%s is a directory, use put-dir", args[0])
			}

			s, p, err := a.session(cmd.Context(), cmd.ErrOrStderr(), argAt(args, 1))
			if err != nil {
				return err
			}
			name := filepath.Base(args[0])
			if err := p.finish(s.Upload(cmd.Context(), name, f)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "uploaded %s (%s) to %s\n", name, humanize.Bytes(uint64(info.Size())), s.Path())
			return nil
		},
	}
}

func newPutDirCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "put-dir <local-dir> [remote-dir]",
		Short: "Upload a folder, creating its subfolders as needed",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := mirror.Walk(args[0])
			if err != nil {
				return err
			}
			s, p, err := a.session(cmd.Context(), cmd.ErrOrStderr(), argAt(args, 1))
			if err != nil {
				return err
			}

			start := time.Now()
			results, err := s.UploadTree(cmd.Context(), items)
			uploaded := 0
			for _, r := range results {
				if r.Err == nil {
					uploaded++
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "uploaded %s of %s files to %s in %s\n",
				humanize.Comma(int64(uploaded)), humanize.Comma(int64(len(items))), s.Path(), time.Since(start).Round(time.Millisecond))
			return p.finish(err)
		},
	}
}

func newGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <remote-file> [local-file|-]",
		Short: "Download a file",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			remote := a.resolve(args[0])
			s, p, err := a.session(cmd.Context(), cmd.ErrOrStderr(), fmpath.Parent(remote))
			if err != nil {
				return err
			}

			dest := argAt(args, 1)
			if dest == "" {
				dest = fmpath.Base(remote)
			}
			if dest == "-" {
				_, err := s.Download(cmd.Context(), remote, cmd.OutOrStdout())
				return p.finish(err)
			}

			f, err := os.Create(dest)
			if err != nil {
				return err
			}
			n, err := s.Download(cmd.Context(), remote, f)
			if closeErr := f.Close(); err == nil {
				err = closeErr
			}
			if err != nil {
				_ = os.Remove(dest)
				return p.finish(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "downloaded %s (%s) to %s\n", remote, humanize.Bytes(uint64(n)), dest)
			return nil
		},
	}
}

func newWatchCmd(a *app) *cobra.Command {
	var (
		debounce time.Duration
		initial  bool
	)

	cmd := &cobra.Command{
		Use:   "watch <local-dir> [remote-dir]",
		Short: "Upload files as they appear in a local folder",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			s, _, err := a.session(ctx, cmd.ErrOrStderr(), argAt(args, 1))
			if err != nil {
				return err
			}
			opts := []mirror.Option{mirror.WithDebounce(debounce), mirror.WithLogger(a.logger)}
			if initial {
				opts = append(opts, mirror.WithInitialSync())
			}
			w, err := mirror.NewWatcher(args[0], s, opts...)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "watching %s -> %s (ctrl-c to stop)\n", args[0], s.Path())
			if err := w.Run(ctx); err != nil && !errors.Is(err, ctx.Err()) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&debounce, "debounce", mirror.DefaultDebounce, "quiet period before a batch is uploaded")
	cmd.Flags().BoolVar(&initial, "initial", false, "upload the existing tree before watching")

	return cmd
}

func argAt(args []string, i int) string {
	if i >= len(args) {
		return ""
	}
	return args[i]
}
