// Package app initializes and holds long-lived application services, acting
// as a dependency injection container for the crawl commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitecrawler/internal/api"
	"github.com/JakeFAU/sitecrawler/internal/clock/system"
	"github.com/JakeFAU/sitecrawler/internal/config"
	"github.com/JakeFAU/sitecrawler/internal/coordinator"
	"github.com/JakeFAU/sitecrawler/internal/crawler"
	"github.com/JakeFAU/sitecrawler/internal/dispatcher"
	collyfetcher "github.com/JakeFAU/sitecrawler/internal/fetcher/colly"
	"github.com/JakeFAU/sitecrawler/internal/fetcher/headless"
	"github.com/JakeFAU/sitecrawler/internal/fetcher/htmlparse"
	"github.com/JakeFAU/sitecrawler/internal/hash/sha256"
	"github.com/JakeFAU/sitecrawler/internal/id/uuid"
	"github.com/JakeFAU/sitecrawler/internal/policy/ratelimit"
	"github.com/JakeFAU/sitecrawler/internal/progress"
	"github.com/JakeFAU/sitecrawler/internal/progress/sinks"
	"github.com/JakeFAU/sitecrawler/internal/publisher/pubsub"
	"github.com/JakeFAU/sitecrawler/internal/storage/gcs"
	"github.com/JakeFAU/sitecrawler/internal/storage/local"
	"github.com/JakeFAU/sitecrawler/internal/storage/memory"
	"github.com/JakeFAU/sitecrawler/internal/storage/postgres"
	"github.com/JakeFAU/sitecrawler/internal/telemetry"
	"github.com/JakeFAU/sitecrawler/internal/tracker"
)

// Options override pieces of the wiring, mostly for tests.
type Options struct {
	// Console receives human progress when progress.console is enabled. Nil disables it.
	Console io.Writer
	// Registerer receives the session collectors. Defaults to prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer
	Fetcher    crawler.Fetcher
	BlobStore  crawler.BlobStore
	Results    crawler.ResultStore
	Publisher  crawler.Publisher
	Clock      crawler.Clock
}

// App holds the shared services of one process.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	pool        *dispatcher.Pool
	hub         *progress.Hub
	coordinator *coordinator.Coordinator
	results     crawler.ResultStore
	report      *sinks.ReportSubscriber

	cleanups []func(context.Context) error
}

// New builds every service named by cfg. It fails fast when a backend cannot
// be reached. The worker pool is not started until Start.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts Options) (a *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a = &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			if cerr := a.runCleanups(context.Background()); cerr != nil {
				logger.Warn("cleanup after failed init", zap.Error(cerr))
			}
		}
	}()

	clock := opts.Clock
	if clock == nil {
		clock = system.New()
	}

	fetcher := opts.Fetcher
	if fetcher == nil {
		if fetcher, err = a.buildFetcher(); err != nil {
			return nil, err
		}
	}
	if cfg.Crawler.RequestsPerSecond > 0 {
		limiter := ratelimit.New(ratelimit.Config{
			DefaultRPS:   cfg.Crawler.RequestsPerSecond,
			DefaultBurst: cfg.Crawler.Burst,
		})
		fetcher = ratelimit.Wrap(fetcher, limiter)
	}
	if cfg.Tracing.Enabled {
		tp, err := telemetry.InitTracerProvider(ctx, telemetry.Config{
			ServiceName: cfg.Tracing.ServiceName,
			ProjectID:   cfg.Tracing.ProjectID,
			SampleRatio: cfg.Tracing.SampleRatio,
		})
		if err != nil {
			return nil, fmt.Errorf("init tracing: %w", err)
		}
		a.onClose(tp.Shutdown)
		fetcher = telemetry.TraceFetcher(fetcher, tp)
	}

	results := opts.Results
	if results == nil {
		if results, err = a.buildResultStore(ctx); err != nil {
			return nil, err
		}
	}
	a.results = results

	subs, err := a.buildSubscribers(ctx, opts, results, clock)
	if err != nil {
		return nil, err
	}
	a.hub = progress.NewHub(progress.Config{
		SubscriberTimeout: cfg.SubscriberTimeout(),
		Logger:            logger,
	}, subs...)

	a.pool = dispatcher.New(dispatcher.Config{Workers: cfg.Crawler.Workers}, logger)
	a.coordinator, err = coordinator.New(coordinator.Deps{
		Fetcher: fetcher,
		Pool:    a.pool,
		Tracker: tracker.New(),
		Hub:     a.hub,
		Clock:   clock,
		IDs:     uuid.New(),
	}, coordinator.Config{RequestTimeout: cfg.RequestTimeout()}, logger)
	if err != nil {
		return nil, fmt.Errorf("build coordinator: %w", err)
	}

	logger.Info("application services initialized",
		zap.String("fetcher", cfg.Crawler.Fetcher),
		zap.Int("workers", cfg.Crawler.Workers),
		zap.Int("subscribers", len(subs)),
	)
	return a, nil
}

// Start launches the worker pool. Cancelling ctx abandons queued tasks.
func (a *App) Start(ctx context.Context) {
	a.pool.Start(ctx)
}

// Coordinator returns the session coordinator.
func (a *App) Coordinator() *coordinator.Coordinator {
	return a.coordinator
}

// Results returns the result store backing the API.
func (a *App) Results() crawler.ResultStore {
	return a.results
}

// LastReportURI returns where the most recent session report was written, if any.
func (a *App) LastReportURI() string {
	if a.report == nil {
		return ""
	}
	return a.report.LastURI()
}

// APIServer builds the HTTP session API over this App.
func (a *App) APIServer() *api.Server {
	return api.NewServer(a.coordinator, a.results, api.Config{APIKey: a.cfg.Server.APIKey}, a.logger)
}

// Close drains the pool, delivers the remaining progress events, and then
// releases every backend. It should be called after the last session finished.
func (a *App) Close(ctx context.Context) error {
	a.logger.Info("shutting down application services")
	var errs []error
	if err := a.pool.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := a.hub.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := a.runCleanups(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *App) onClose(fn func(context.Context) error) {
	a.cleanups = append(a.cleanups, fn)
}

// runCleanups releases backends in reverse order of creation.
func (a *App) runCleanups(ctx context.Context) error {
	var errs []error
	for i := len(a.cleanups) - 1; i >= 0; i-- {
		if err := a.cleanups[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.cleanups = nil
	return errors.Join(errs...)
}

func (a *App) buildFetcher() (crawler.Fetcher, error) {
	cfg := a.cfg
	switch cfg.Crawler.Fetcher {
	case config.FetcherHTML:
		return htmlparse.New(htmlparse.Config{
			UserAgent: cfg.Crawler.UserAgent,
			Timeout:   cfg.RequestTimeout(),
		}), nil
	case config.FetcherHeadless:
		prober := htmlparse.New(htmlparse.Config{
			UserAgent: cfg.Crawler.UserAgent,
			Timeout:   cfg.RequestTimeout(),
		})
		f, err := headless.NewChromedp(headless.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			UserAgent:         cfg.Crawler.UserAgent,
			NavigationTimeout: cfg.NavTimeout(),
		}, prober)
		if err != nil {
			return nil, fmt.Errorf("init headless fetcher: %w", err)
		}
		a.onClose(func(context.Context) error {
			f.Close()
			return nil
		})
		return f, nil
	default:
		return collyfetcher.New(collyfetcher.Config{
			UserAgent: cfg.Crawler.UserAgent,
			Timeout:   cfg.RequestTimeout(),
		}), nil
	}
}

func (a *App) buildResultStore(ctx context.Context) (crawler.ResultStore, error) {
	if a.cfg.DB.DSN == "" {
		a.logger.Info("using in-memory result store")
		return memory.NewResultStore(), nil
	}
	store, err := postgres.NewResultStore(ctx, postgres.ResultStoreConfig{
		DSN:         a.cfg.DB.DSN,
		TablePrefix: a.cfg.DB.Table,
		MaxConns:    a.cfg.DB.MaxConns,
	})
	if err != nil {
		return nil, fmt.Errorf("init result store: %w", err)
	}
	a.onClose(func(context.Context) error {
		store.Close()
		return nil
	})
	if a.cfg.DB.Migrate {
		if err := store.Migrate(ctx); err != nil {
			return nil, err
		}
	}
	a.logger.Info("using postgres result store", zap.String("table_prefix", a.cfg.DB.Table))
	return store, nil
}

func (a *App) buildBlobStore(ctx context.Context) (crawler.BlobStore, error) {
	switch a.cfg.Storage.Backend {
	case config.StorageGCS:
		store, err := gcs.Dial(ctx, gcs.Config{Bucket: a.cfg.Storage.GCSBucket}, a.logger)
		if err != nil {
			return nil, fmt.Errorf("init gcs blob store: %w", err)
		}
		a.onClose(func(context.Context) error { return store.Close() })
		return store, nil
	case config.StorageMemory:
		return memory.NewBlobStore(), nil
	default:
		store, err := local.New(local.Config{BaseDir: a.cfg.Storage.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("init local blob store: %w", err)
		}
		return store, nil
	}
}

func (a *App) buildPublisher(ctx context.Context) (crawler.Publisher, error) {
	pub, err := pubsub.Dial(ctx, a.cfg.PubSub.ProjectID, a.cfg.PubSub.TopicName)
	if err != nil {
		return nil, fmt.Errorf("init pubsub publisher: %w", err)
	}
	a.onClose(func(context.Context) error { return pub.Close() })
	return pub, nil
}

// buildSubscribers attaches sinks in a fixed order: store, report, publish,
// prometheus, log, console.
func (a *App) buildSubscribers(
	ctx context.Context,
	opts Options,
	results crawler.ResultStore,
	clock crawler.Clock,
) ([]progress.Subscriber, error) {
	cfg := a.cfg
	subs := []progress.Subscriber{sinks.NewStoreSubscriber(results, clock)}

	if cfg.Report.Enabled {
		blobs := opts.BlobStore
		if blobs == nil {
			var err error
			if blobs, err = a.buildBlobStore(ctx); err != nil {
				return nil, err
			}
		}
		a.report = sinks.NewReportSubscriber(blobs, sinks.ReportConfig{
			Prefix: cfg.Report.Prefix,
			Hasher: sha256.New(),
		}, a.logger)
		subs = append(subs, a.report)
	}

	publisher := opts.Publisher
	if publisher == nil && cfg.PubSub.ProjectID != "" {
		var err error
		if publisher, err = a.buildPublisher(ctx); err != nil {
			return nil, err
		}
	}
	if publisher != nil {
		subs = append(subs, sinks.NewPublishSubscriber(publisher, cfg.PubSub.TopicName, a.logger))
	}

	if cfg.Progress.Prometheus {
		reg := opts.Registerer
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		promSub, err := sinks.NewPrometheusSubscriber(reg)
		if err != nil {
			return nil, fmt.Errorf("init prometheus subscriber: %w", err)
		}
		subs = append(subs, promSub)
	}
	if cfg.Progress.LogEvents {
		subs = append(subs, sinks.NewLogSubscriber(a.logger))
	}
	if cfg.Progress.Console && opts.Console != nil {
		subs = append(subs, sinks.NewConsoleSubscriber(opts.Console))
	}
	return subs, nil
}
