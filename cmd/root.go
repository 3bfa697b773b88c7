// Package cmd defines and implements the CLI commands for the sitecrawler executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitecrawler/internal/app"
	"github.com/JakeFAU/sitecrawler/internal/config"
	"github.com/JakeFAU/sitecrawler/internal/logging"
)

// envKeyType is the key for storing the loaded environment in the context.
type envKeyType string

const envKey envKeyType = "env"

// env is what every subcommand receives from the root command.
type env struct {
	cfg    config.Config
	logger *zap.Logger
}

// newApp is the application factory shared by crawl and serve.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger, opts app.Options) (*app.App, error) {
	return app.New(ctx, cfg, logger, opts)
}

// newLogger builds the process logger from the logging section.
var newLogger = func(cfg config.Config) (*zap.Logger, error) {
	return logging.New(logging.Config{Development: cfg.Logging.Development, Level: cfg.Logging.Level})
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var cfgFile string
	var restoreGlobals func()

	cmd := &cobra.Command{
		Use:   "sitecrawler",
		Short: "A concurrent single-domain web crawler.",
		Long: `sitecrawler visits every page reachable from a base URL without leaving
its host, fetching pages in parallel and reporting when the crawl has
quiesced. Run a single crawl with "crawl" or expose an HTTP API with "serve".`,
		SilenceUsage: true,

		// Load config and logging once, before any subcommand runs.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			restoreGlobals = logging.Install(logger)
			ctx := context.WithValue(cmd.Context(), envKey, &env{cfg: cfg, logger: logger})
			cmd.SetContext(ctx)
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if e, ok := cmd.Context().Value(envKey).(*env); ok && e != nil {
				_ = e.logger.Sync()
			}
			if restoreGlobals != nil {
				restoreGlobals()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, toml or json); CRAWLER_* env vars override it")
	cmd.AddCommand(newCrawlCmd(), newServeCmd())
	return cmd
}

func resolveEnv(ctx context.Context) (*env, error) {
	e, ok := ctx.Value(envKey).(*env)
	if !ok || e == nil {
		return nil, errors.New("application environment not initialized")
	}
	return e, nil
}

// Execute is the main entry point.
func Execute() {
	// Cobra already prints the error.
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
