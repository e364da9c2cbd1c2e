package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/webfm/webfm_sdk_go/internal/devseed"
	"github.com/webfm/webfm_sdk_go/internal/sandbox"
	"github.com/webfm/webfm_sdk_go/pkg/policy"
	"github.com/webfm/webfm_sdk_go/pkg/webfm/mock"
)

const (
	modeEnv   = "WEBFM_RUNTIME_MODE"
	apiURLEnv = "WEBFM_API_URL"
)

type options struct {
	addr     string
	seed     string
	latency  time.Duration
	fail     string
	hostname string
	verbose  bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "webfm-sandbox",
		Short: "Serve an in-memory device over the web file manager HTTP contract",
		Args:  cobra.NoArgs,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if opts.verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd, opts)
		},
		SilenceUsage: true,
	}

	cmd.Flags().StringVar(&opts.addr, "addr", ":8787", "listen address")
	cmd.Flags().StringVar(&opts.seed, "seed", "", "path to a YAML or JSON seed tree")
	cmd.Flags().DurationVar(&opts.latency, "latency", 0, "artificial latency to inject per request")
	cmd.Flags().StringVar(&opts.fail, "fail", "", "failure injection (rate=<float>,code=<httpStatus>)")
	cmd.Flags().StringVar(&opts.hostname, "hostname", "sandbox", "hostname reported by the device")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "log every request")

	return cmd
}

func serve(cmd *cobra.Command, opts options) error {
	store := mock.New(mock.WithHostname(opts.hostname))
	if opts.seed != "" {
		entries, err := devseed.Load(opts.seed)
		if err != nil {
			return fmt.Errorf("load seed: %w", err)
		}
		if err := store.Seed(entries); err != nil {
			return fmt.Errorf("apply seed: %w", err)
		}
	} else {
		for _, home := range policy.DefaultHomes {
			store.MkdirAll(policy.DefaultRoot + home + "/")
		}
	}

	failCfg, err := sandbox.ParseFailConfig(opts.fail)
	if err != nil {
		return fmt.Errorf("parse fail flag: %w", err)
	}

	server := &http.Server{
		Addr: opts.addr,
		Handler: sandbox.NewHandler(store,
			sandbox.WithLatency(opts.latency),
			sandbox.WithFailure(failCfg),
			sandbox.WithLogger(slog.Default()),
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	slog.Info("webfm-sandbox listening", "addr", opts.addr)
	out := cmd.OutOrStdout()
	fmt.Fprintln(out)
	fmt.Fprintf(out, "export %s=http\n", modeEnv)
	host := opts.addr
	if strings.HasPrefix(host, ":") {
		host = "localhost" + host
	}
	fmt.Fprintf(out, "export %s=http://%s%s\n", apiURLEnv, host, sandbox.DefaultPrefix)
	fmt.Fprintln(out)

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}
