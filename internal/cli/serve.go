package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/procflow/internal/engine"
	"github.com/roach88/procflow/internal/httpapi"
	"github.com/roach88/procflow/internal/runtime"
)

// shutdownTimeout bounds how long in-flight requests may take after a signal.
const shutdownTimeout = 10 * time.Second

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Serve the engine over HTTP until interrupted.

Definitions under definitions.dir in the config file are deployed before
the listener starts. SIGINT or SIGTERM triggers a graceful shutdown.

Examples:
  procflow serve --addr :9090
  procflow serve --config procflow.yaml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address, overrides config")

	return cmd
}

func runServe(ctx context.Context, opts *ServeOptions, cmd *cobra.Command) (err error) {
	srv, rt, logger, err := newServer(ctx, opts, cmd)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, rt.Close())
	}()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info("http server shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return WrapExitError(ExitCommandError, "server failed", err)
	}
	return nil
}

// newServer opens the runtime, deploys definitions.dir and builds the HTTP
// server without starting it. The caller closes the returned runtime.
func newServer(ctx context.Context, opts *ServeOptions, cmd *cobra.Command) (*http.Server, *runtime.Runtime, *slog.Logger, error) {
	cfg, err := opts.loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	if opts.Addr != "" {
		cfg.HTTP.Addr = opts.Addr
	}
	if opts.Verbose {
		cfg.Log.Level = "debug"
	}
	logger := cfg.NewLogger(cmd.ErrOrStderr())

	rt, err := runtime.New(ctx, cfg,
		runtime.WithLogger(logger),
		runtime.WithListeners(engine.LoggingListener{Logger: logger}),
	)
	if err != nil {
		return nil, nil, nil, WrapExitError(ExitCommandError, "failed to open runtime", err)
	}

	if dir := cfg.Definitions.Dir; dir != "" {
		if _, err := rt.DeployFile(ctx, dir); err != nil {
			err = multierr.Append(err, rt.Close())
			return nil, nil, nil, WrapExitError(ExitCommandError, "failed to deploy definitions", err)
		}
	}

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           httpapi.New(rt, httpapi.WithLogger(logger)),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return srv, rt, logger, nil
}
