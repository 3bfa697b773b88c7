package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/sitecrawler/internal/app"
)

// newServeCmd creates the 'serve' subcommand.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serves the crawl session HTTP API",
		Long: `Starts an HTTP server that starts, inspects, and stops crawl sessions and
exposes stored results and Prometheus metrics. Runs until SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: runServeCommand,
	}
}

func runServeCommand(cmd *cobra.Command, _ []string) error {
	e, err := resolveEnv(cmd.Context())
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, e.cfg, e.logger, app.Options{})
	if err != nil {
		return fmt.Errorf("failed to initialize application services: %w", err)
	}
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", e.cfg.Server.Port))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return serve(ctx, a, ln, e.logger)
}

// serve runs the API on ln until ctx ends, then stops the active session,
// waits for it to finish, and closes a.
func serve(ctx context.Context, a *app.App, ln net.Listener, logger *zap.Logger) error {
	// The pool outlives ctx so an interrupted session can still drain.
	a.Start(context.WithoutCancel(ctx))

	srv := &http.Server{
		Handler:           a.APIServer().Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server started", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown initiated")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		var errs []error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("server shutdown: %w", err))
		}
		coord := a.Coordinator()
		if coord.Stop() {
			logger.Info("stopping active session")
		}
		if err := coord.Wait(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		if err := a.Close(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		logger.Info("shutdown complete")
		return errors.Join(errs...)
	})
	return g.Wait()
}
