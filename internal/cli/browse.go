package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/webfm/webfm_sdk_go/pkg/fmpath"
	"github.com/webfm/webfm_sdk_go/pkg/session"
)

func newLsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ls [dir]",
		Short: "List a directory, newest first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _, err := a.session(cmd.Context(), cmd.ErrOrStderr(), firstArg(args))
			if err != nil {
				return err
			}
			printListing(cmd.OutOrStdout(), s.Snapshot())
			return nil
		},
	}
}

func printListing(w io.Writer, l session.Listing) {
	names := make([]string, 0, len(l.Crumbs))
	for _, c := range l.Crumbs {
		names = append(names, c.Name)
	}
	fmt.Fprintf(w, "%s\n", strings.Join(names, " > "))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, it := range l.Items {
		kind, size := "-", humanize.Bytes(uint64(it.Size))
		if it.IsDirectory {
			kind, size = "d", ""
		}
		if it.Protected {
			kind += "!"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", kind, size, humanize.Time(it.CTime), it.Name)
	}
	_ = tw.Flush()
}

func newMkdirCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir <path>",
		Short: "Create a folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := a.resolve(args[0])
			s, p, err := a.session(cmd.Context(), cmd.ErrOrStderr(), fmpath.Parent(target))
			if err != nil {
				return err
			}
			if err := p.finish(s.CreateFolder(cmd.Context(), fmpath.Base(target))); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s\n", fmpath.Normalize(target))
			return nil
		},
	}
}

func newMvCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mv <old> <new>",
		Short: "Move a file or folder",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			oldPath, newPath := a.resolve(args[0]), a.resolve(args[1])
			s, p, err := a.session(cmd.Context(), cmd.ErrOrStderr(), fmpath.Parent(oldPath))
			if err != nil {
				return err
			}
			if err := p.finish(s.Move(cmd.Context(), oldPath, newPath)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "moved %s -> %s\n", oldPath, newPath)
			return nil
		},
	}
}

func newRenameCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <path> <new-name>",
		Short: "Rename a file or folder in place",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := a.resolve(args[0])
			s, p, err := a.session(cmd.Context(), cmd.ErrOrStderr(), fmpath.Parent(target))
			if err != nil {
				return err
			}
			if err := p.finish(s.Rename(cmd.Context(), fmpath.Base(target), args[1])); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "renamed %s -> %s\n", fmpath.Base(target), strings.TrimSpace(args[1]))
			return nil
		},
	}
}

func newRmCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <path>...",
		Short: "Delete files or folders (folders recursively)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, p, err := a.session(cmd.Context(), cmd.ErrOrStderr(), fmpath.Parent(a.resolve(args[0])))
			if err != nil {
				return err
			}
			var firstErr error
			for _, arg := range args {
				path := a.resolve(arg)
				if err := s.Delete(cmd.Context(), path); err != nil {
					if firstErr == nil {
						firstErr = err
					}
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", path)
			}
			return p.finish(firstErr)
		},
	}
}

func newHostnameCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "hostname",
		Short: "Print the device hostname",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := a.runtime()
			if err != nil {
				return err
			}
			name, err := rt.Client.Hostname(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(name))
			return nil
		},
	}
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
