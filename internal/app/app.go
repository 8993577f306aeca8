// Package app builds the long-lived services a censusctl command needs from
// the loaded configuration and owns their shutdown.
package app

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
	gcs "cloud.google.com/go/storage"
	"go.opentelemetry.io/otel/baggage"
	"go.uber.org/zap"

	"github.com/JakeFAU/census-pipeline/internal/clock/system"
	"github.com/JakeFAU/census-pipeline/internal/config"
	"github.com/JakeFAU/census-pipeline/internal/fetcher/httpfetch"
	"github.com/JakeFAU/census-pipeline/internal/fetcher/ratelimit"
	"github.com/JakeFAU/census-pipeline/internal/hash/md5"
	"github.com/JakeFAU/census-pipeline/internal/id/uuid"
	"github.com/JakeFAU/census-pipeline/internal/ledger"
	ledgermemory "github.com/JakeFAU/census-pipeline/internal/ledger/memory"
	ledgerpostgres "github.com/JakeFAU/census-pipeline/internal/ledger/postgres"
	"github.com/JakeFAU/census-pipeline/internal/lodes"
	"github.com/JakeFAU/census-pipeline/internal/logging"
	"github.com/JakeFAU/census-pipeline/internal/notify"
	pubsubnotify "github.com/JakeFAU/census-pipeline/internal/notify/pubsub"
	"github.com/JakeFAU/census-pipeline/internal/pool"
	"github.com/JakeFAU/census-pipeline/internal/publish"
	"github.com/JakeFAU/census-pipeline/internal/server"
	"github.com/JakeFAU/census-pipeline/internal/storage"
	gcsstore "github.com/JakeFAU/census-pipeline/internal/storage/gcs"
	localstore "github.com/JakeFAU/census-pipeline/internal/storage/local"
	memorystore "github.com/JakeFAU/census-pipeline/internal/storage/memory"
	s3store "github.com/JakeFAU/census-pipeline/internal/storage/s3"
	"github.com/JakeFAU/census-pipeline/internal/telemetry"
	"github.com/JakeFAU/census-pipeline/internal/tiger"
)

// App holds the configuration, the run-tagged logger and any clients opened
// on behalf of the command.
type App struct {
	cfg    config.Config
	logger *zap.Logger
	runID  string
	bag    baggage.Baggage

	limiter       *ratelimit.Limiter
	metricsServer *server.Server
	closers       []func(ctx context.Context) error
}

// New generates a run ID, tags logger with it and installs the trace
// context and baggage propagator used for outgoing notifications.
func New(cfg config.Config, logger *zap.Logger, command string) (*App, error) {
	runID, err := uuid.New().NewID()
	if err != nil {
		return nil, err
	}
	bag, err := telemetry.RunBaggage(runID)
	if err != nil {
		return nil, err
	}
	telemetry.InstallPropagator()
	limiter := ratelimit.New(ratelimit.Config{
		RequestsPerSecond: cfg.HTTP.RequestsPerSecond,
		Burst:             cfg.HTTP.Burst,
	})
	return &App{
		cfg:     cfg,
		logger:  logging.ForRun(logger, runID, command),
		runID:   runID,
		bag:     bag,
		limiter: limiter,
	}, nil
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config {
	return a.cfg
}

// Logger returns the run-tagged logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// RunID identifies this invocation in logs and ledger rows.
func (a *App) RunID() string {
	return a.runID
}

// Context returns ctx carrying the run ID as baggage, so messages published
// under it name the run that produced them.
func (a *App) Context(ctx context.Context) context.Context {
	return baggage.ContextWithBaggage(ctx, a.bag)
}

// StartMetrics serves /metrics and /healthz when metrics.addr is set.
func (a *App) StartMetrics() error {
	if a.cfg.Metrics.Addr == "" {
		return nil
	}
	srv := server.New(a.runID, a.logger.Named("metrics"))
	if err := srv.Start(a.cfg.Metrics.Addr); err != nil {
		return err
	}
	a.metricsServer = srv
	a.closers = append(a.closers, srv.Shutdown)
	return nil
}

// MetricsAddr is the bound metrics address, or empty when disabled.
func (a *App) MetricsAddr() string {
	if a.metricsServer == nil {
		return ""
	}
	return a.metricsServer.Addr()
}

// Downloader builds an HTTP client. Every client built by one App shares
// the same per-host rate limiter.
func (a *App) Downloader() *httpfetch.Fetcher {
	return httpfetch.New(httpfetch.Config{
		UserAgent: a.cfg.HTTP.UserAgent,
		Timeout:   a.cfg.Timeout(),
		Limiter:   a.limiter,
	})
}

// TigerFetcher builds the boundary-file fetcher bounded by
// fetch.max_concurrency.
func (a *App) TigerFetcher() *tiger.Fetcher {
	return &tiger.Fetcher{
		Downloader: a.Downloader(),
		Exec:       pool.New(a.cfg.Fetch.MaxConcurrency),
		Logger:     a.logger,
		BaseURL:    a.cfg.Tiger.BaseURL,
		Root:       a.cfg.Paths.Root,
	}
}

// LODESFetcher builds the origin-destination fetcher bounded by
// lodes.max_concurrency.
func (a *App) LODESFetcher() *lodes.Fetcher {
	return &lodes.Fetcher{
		Downloader: a.Downloader(),
		Exec:       pool.New(a.cfg.LODES.MaxConcurrency),
		Logger:     a.logger,
		BaseURL:    a.cfg.LODES.BaseURL,
		Root:       a.cfg.Paths.Root,
	}
}

// Aggregator builds the flow-table aggregator.
func (a *App) Aggregator() *lodes.Aggregator {
	return &lodes.Aggregator{
		Exec:   pool.New(a.cfg.LODES.MaxConcurrency),
		Logger: a.logger,
		Root:   a.cfg.Paths.Root,
	}
}

// Store opens the configured publish backend.
func (a *App) Store(ctx context.Context) (storage.Store, error) {
	switch a.cfg.Storage.Provider {
	case "s3":
		a.logger.Info("using s3 store",
			zap.String("bucket", a.cfg.S3.PublicBucket),
			zap.String("endpoint", a.cfg.S3.EndpointURL),
		)
		return s3store.New(s3store.Config{
			Bucket:      a.cfg.S3.PublicBucket,
			Profile:     a.cfg.S3.Profile,
			Region:      a.cfg.S3.Region,
			EndpointURL: a.cfg.S3.EndpointURL,
		})
	case "gcs":
		client, err := gcs.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create gcs client: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return client.Close() })
		a.logger.Info("using gcs store", zap.String("bucket", a.cfg.Storage.GCSBucket))
		return gcsstore.New(client, gcsstore.Config{Bucket: a.cfg.Storage.GCSBucket})
	case "local":
		a.logger.Info("using local store", zap.String("dir", a.cfg.Storage.LocalDir))
		return localstore.New(localstore.Config{BaseDir: a.cfg.Storage.LocalDir})
	case "memory":
		a.logger.Info("using memory store; objects are discarded on exit")
		return memorystore.NewBlobStore(), nil
	default:
		return nil, fmt.Errorf("%w: unknown storage provider %q", config.ErrInvalidInput, a.cfg.Storage.Provider)
	}
}

// Recorder opens the configured publish ledger.
func (a *App) Recorder(ctx context.Context) (ledger.Recorder, error) {
	switch a.cfg.Ledger.Provider {
	case "memory":
		return ledgermemory.NewRecorder(), nil
	case "postgres":
		rec, err := ledgerpostgres.New(ctx, ledgerpostgres.Config{
			DSN:   a.cfg.Ledger.DSN,
			Table: a.cfg.Ledger.Table,
		})
		if err != nil {
			return nil, fmt.Errorf("init ledger: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error {
			rec.Close()
			return nil
		})
		return rec, nil
	default:
		return nil, fmt.Errorf("%w: unknown ledger provider %q", config.ErrInvalidInput, a.cfg.Ledger.Provider)
	}
}

// Notifier opens a Pub/Sub notifier, or returns nil when no topic is set.
func (a *App) Notifier(ctx context.Context) (notify.Notifier, error) {
	if a.cfg.PubSub.Topic == "" {
		return nil, nil
	}
	client, err := pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	n := pubsubnotify.New(client)
	a.closers = append(a.closers, func(context.Context) error {
		n.Close()
		return client.Close()
	})
	a.logger.Info("publishing notifications", zap.String("topic", a.cfg.PubSub.Topic))
	return n, nil
}

// Publisher wires the store, ledger and notifier into a publish.Publisher.
func (a *App) Publisher(ctx context.Context) (*publish.Publisher, error) {
	store, err := a.Store(ctx)
	if err != nil {
		return nil, err
	}
	rec, err := a.Recorder(ctx)
	if err != nil {
		return nil, err
	}
	n, err := a.Notifier(ctx)
	if err != nil {
		return nil, err
	}
	return publish.New(store, md5.New(), rec, n, system.New(), publish.Config{
		Root:  a.cfg.Paths.Root,
		Topic: a.cfg.PubSub.Topic,
		RunID: a.runID,
	}, a.logger), nil
}

// Close releases everything opened by the App, newest first, and flushes
// the logger.
func (a *App) Close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.logger.Warn("shutdown step failed", zap.Error(err))
		}
	}
	a.closers = nil
	_ = a.logger.Sync()
}
