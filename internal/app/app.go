// Package app initializes and holds long-lived application services,
// acting as a dependency injection container.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/booktrail/release-crawler/internal/api"
	"github.com/booktrail/release-crawler/internal/classify"
	"github.com/booktrail/release-crawler/internal/clock/system"
	"github.com/booktrail/release-crawler/internal/config"
	"github.com/booktrail/release-crawler/internal/feed"
	collyfetcher "github.com/booktrail/release-crawler/internal/fetcher/colly"
	"github.com/booktrail/release-crawler/internal/logging"
	"github.com/booktrail/release-crawler/internal/metrics"
	memorypublisher "github.com/booktrail/release-crawler/internal/publisher/memory"
	pubsubpublisher "github.com/booktrail/release-crawler/internal/publisher/pubsub"
	"github.com/booktrail/release-crawler/internal/release"
	chromedprenderer "github.com/booktrail/release-crawler/internal/renderer/chromedp"
	"github.com/booktrail/release-crawler/internal/scheduler"
	"github.com/booktrail/release-crawler/internal/scrape"
	snapshotgcs "github.com/booktrail/release-crawler/internal/snapshot/gcs"
	storememory "github.com/booktrail/release-crawler/internal/store/memory"
	storepostgres "github.com/booktrail/release-crawler/internal/store/postgres"
)

// App holds the shared, long-lived services for the release crawler. It is
// initialized once at startup and torn down via Close.
type App struct {
	Config       config.Config
	Logger       *zap.Logger
	Authors      release.AuthorStore
	Releases     release.ReleaseStore
	Orchestrator *scrape.Orchestrator
	Scheduler    *scheduler.Scheduler
	Server       *api.Server

	pool          *pgxpool.Pool
	pubsubClient  *pubsub.Client
	storageClient *storage.Client
	publisher     *pubsubpublisher.Publisher
	renderer      release.Renderer
}

// New wires every service from the loaded configuration. It fails fast if
// any external dependency cannot be initialized.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	metrics.Init()

	a := &App{Config: cfg, Logger: logger}
	clk := system.New()
	classifier := classify.New(cfg.Classifier)

	if cfg.DB.DSN != "" {
		logger.Info("connecting to postgres")
		pool, err := storepostgres.NewPool(ctx, storepostgres.PoolConfig{
			DSN:             cfg.DB.DSN,
			MaxConns:        int32(cfg.DB.MaxConns),
			MinConns:        int32(cfg.DB.MinConns),
			MaxConnLifetime: time.Duration(cfg.DB.ConnLifetimeMinute) * time.Minute,
		})
		if err != nil {
			return nil, err
		}
		a.pool = pool
		a.Releases = storepostgres.NewReleaseStore(pool)
		a.Authors = storepostgres.NewAuthorStore(pool)
	} else {
		logger.Info("using in-memory stores")
		a.Releases = storememory.NewReleaseStore()
		a.Authors = storememory.NewAuthorStore()
	}

	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:    cfg.Fetcher.UserAgent,
		Timeout:      cfg.FetchTimeout(),
		PerDomainRPS: cfg.Fetcher.PerDomainRPS,
		Burst:        cfg.Fetcher.Burst,
	})
	detector := feed.NewDetector(fetcher, logger)
	feedParser := feed.NewParser(
		feed.NewGofeedSource(cfg.Fetcher.UserAgent),
		a.Releases, classifier, clk, logger,
	)

	var snapshots release.BlobStore
	if cfg.Scraper.SnapshotsEnabled {
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("init storage client: %w", err)
		}
		a.storageClient = client
		snapshots, err = snapshotgcs.New(client, snapshotgcs.Config{Bucket: cfg.Storage.GCSBucket})
		if err != nil {
			return nil, err
		}
		logger.Info("snapshots enabled", zap.String("bucket", cfg.Storage.GCSBucket))
	}

	static := scrape.NewStaticScraper(fetcher, a.Releases, classifier, snapshots, clk, logger)
	static.ConfigureSnapshots(cfg.Storage.Prefix, cfg.Storage.ContentType)

	var dynamic scrape.PageScraper
	if cfg.Renderer.Enabled {
		r := chromedprenderer.New(chromedprenderer.Config{
			UserAgent:         cfg.Fetcher.UserAgent,
			NavigationTimeout: time.Duration(cfg.Renderer.NavTimeoutSeconds) * time.Second,
			SettleDelay:       time.Duration(cfg.Renderer.SettleDelayMs) * time.Millisecond,
		})
		a.renderer = r
		dynamic = scrape.NewDynamicScraper(r, static, a.Releases, classifier, clk, logger)
		logger.Info("headless rendering enabled")
	}

	var publisher release.Publisher
	if cfg.PubSub.ProjectID != "" {
		client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("init pubsub client: %w", err)
		}
		a.pubsubClient = client
		pub, err := pubsubpublisher.New(client)
		if err != nil {
			return nil, err
		}
		a.publisher = pub
		publisher = pub
		logger.Info("pubsub events enabled", zap.String("project", cfg.PubSub.ProjectID))
	} else if cfg.Logging.Development {
		publisher = memorypublisher.New()
	}

	a.Orchestrator = scrape.NewOrchestrator(
		scrape.OrchestratorConfig{
			Cooldown:      cfg.Cooldown(),
			MinDelay:      time.Duration(cfg.Scraper.MinDelaySeconds) * time.Second,
			MaxDelay:      time.Duration(cfg.Scraper.MaxDelaySeconds) * time.Second,
			ValidateDelay: time.Duration(cfg.Scraper.ValidateDelayMs) * time.Millisecond,
			EventTopic:    cfg.Scraper.DiscoveredTopic,
		},
		a.Authors, feedParser, detector, static, dynamic, a.renderer, publisher, clk, logger,
	)

	a.Scheduler = scheduler.New(cfg.Scheduler, a.Orchestrator, a.Authors, a.Releases, clk, logger)
	a.Server = api.NewServer(api.Config{
		AuthEnabled: cfg.Auth.Enabled,
		APIKey:      cfg.Auth.APIKey,
	}, a.Orchestrator, a.Scheduler, logger)

	return a, nil
}

// Serve starts the scheduler and HTTP server and blocks until the context
// is canceled, then shuts the server down gracefully.
func (a *App) Serve(ctx context.Context) error {
	a.Scheduler.Start()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:           a.Server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("http server listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.Logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}

// Close tears services down in reverse dependency order.
func (a *App) Close() {
	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}
	if a.renderer != nil {
		if err := a.renderer.Close(); err != nil {
			a.Logger.Warn("renderer close failed", zap.Error(err))
		}
	}
	if a.publisher != nil {
		a.publisher.Close()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.Logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storageClient != nil {
		if err := a.storageClient.Close(); err != nil {
			a.Logger.Warn("storage client close failed", zap.Error(err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	_ = a.Logger.Sync()
}
