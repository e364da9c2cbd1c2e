// Package cli implements the webfm command line.
package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/webfm/webfm_sdk_go/internal/config"
	"github.com/webfm/webfm_sdk_go/internal/logging"
)

// Version, Commit and BuildDate are set via LDFLAGS at build time.
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

type globalFlags struct {
	configFile string
	verbose    bool
	url        string
	mode       string
}

// NewRootCmd builds the webfm command tree.
func NewRootCmd() *cobra.Command {
	a := &app{}
	var flags globalFlags

	root := &cobra.Command{
		Use:   "webfm",
		Short: "Browse and transfer files on a portable player over its web file manager",
		Long: "webfm talks to the file-management service of a portable player: list, create,\n" +
			"move, rename, delete, upload (including whole folders) and download.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(flags.configFile)
			if err != nil {
				return err
			}
			if flags.url != "" {
				cfg.Backend.URL = flags.url
			}
			if flags.mode != "" {
				cfg.Backend.Mode = flags.mode
			}
			if flags.verbose {
				cfg.Logging.Level = "DEBUG"
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}
			logger, closer, err := logging.New(cfg.Logging)
			if err != nil {
				return err
			}
			slog.SetDefault(logger)
			a.cfg, a.logger, a.closer = cfg, logger, closer
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flags.configFile, "config", "", "path to config file (default $XDG_CONFIG_HOME/webfm/config.yaml)")
	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "enable debug logging")
	root.PersistentFlags().StringVar(&flags.url, "url", "", "service base URL, e.g. http://192.168.1.20/pages/")
	root.PersistentFlags().StringVar(&flags.mode, "mode", "", "backend mode: http, mock or auto")

	root.AddCommand(newLsCmd(a))
	root.AddCommand(newMkdirCmd(a))
	root.AddCommand(newMvCmd(a))
	root.AddCommand(newRenameCmd(a))
	root.AddCommand(newRmCmd(a))
	root.AddCommand(newPutCmd(a))
	root.AddCommand(newPutDirCmd(a))
	root.AddCommand(newGetCmd(a))
	root.AddCommand(newWatchCmd(a))
	root.AddCommand(newHostnameCmd(a))
	root.AddCommand(newVersionCmd())

	return root
}
