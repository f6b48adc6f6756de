// Package main wires together the playlist archiver binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gpubsub "cloud.google.com/go/pubsub"
	gstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/radio-playlist-archiver/internal/api"
	"github.com/JakeFAU/radio-playlist-archiver/internal/clock/system"
	"github.com/JakeFAU/radio-playlist-archiver/internal/config"
	"github.com/JakeFAU/radio-playlist-archiver/internal/crawl"
	"github.com/JakeFAU/radio-playlist-archiver/internal/export"
	"github.com/JakeFAU/radio-playlist-archiver/internal/hash/sha256"
	"github.com/JakeFAU/radio-playlist-archiver/internal/id/uuid"
	"github.com/JakeFAU/radio-playlist-archiver/internal/logging"
	"github.com/JakeFAU/radio-playlist-archiver/internal/playlist"
	"github.com/JakeFAU/radio-playlist-archiver/internal/policy/ratelimit"
	memorypublisher "github.com/JakeFAU/radio-playlist-archiver/internal/publisher/memory"
	pubsubpublisher "github.com/JakeFAU/radio-playlist-archiver/internal/publisher/pubsub"
	"github.com/JakeFAU/radio-playlist-archiver/internal/runner"
	"github.com/JakeFAU/radio-playlist-archiver/internal/source/spinitron"
	"github.com/JakeFAU/radio-playlist-archiver/internal/status"
	gcsstorage "github.com/JakeFAU/radio-playlist-archiver/internal/storage/gcs"
	localstorage "github.com/JakeFAU/radio-playlist-archiver/internal/storage/local"
	memorystorage "github.com/JakeFAU/radio-playlist-archiver/internal/storage/memory"
	badgerstore "github.com/JakeFAU/radio-playlist-archiver/internal/store/badger"
	memorystore "github.com/JakeFAU/radio-playlist-archiver/internal/store/memory"
	postgresstore "github.com/JakeFAU/radio-playlist-archiver/internal/store/postgres"
	sqlitestore "github.com/JakeFAU/radio-playlist-archiver/internal/store/sqlite"
)

type archiveStore interface {
	playlist.Store
	Ping(ctx context.Context) error
}

type options struct {
	configPath string
	envFile    string
	once       bool
	backfill   int
	target     string
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "Path to config file")
	flag.StringVar(&opts.envFile, "env-file", "", "Path to a dotenv file (defaults to ./.env when present)")
	flag.BoolVar(&opts.once, "once", false, "Run a single crawl cycle and exit")
	flag.IntVar(&opts.backfill, "backfill", 0, "Crawl this many listing pages per target once, then exit")
	flag.StringVar(&opts.target, "target", "", "Limit --once/--backfill to the named target")
	flag.Parse()

	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "playlistcrawler: %v\n", err)
		os.Exit(1)
	}
}

func run(opts options) error {
	var envFiles []string
	if opts.envFile != "" {
		envFiles = append(envFiles, opts.envFile)
	}
	if err := config.LoadDotEnv(envFiles...); err != nil {
		return err
	}
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			logger.Error("store close failed", zap.Error(cerr))
		}
	}()
	logger.Info("store opened", zap.String("driver", cfg.Store.Driver))

	sink, closeSink, err := openSink(ctx, cfg.Export)
	if err != nil {
		return err
	}
	defer closeSink()

	publisher, closePublisher, err := openPublisher(ctx, cfg.PubSub)
	if err != nil {
		return err
	}
	defer closePublisher()

	clock := system.New()
	source := spinitron.New(spinitron.Config{
		UserAgent:       cfg.Crawler.UserAgent,
		RespectRobots:   cfg.Crawler.RespectRobots,
		Timeout:         cfg.Crawler.Timeout(),
		BreakerFailures: cfg.Crawler.BreakerFailures,
		BreakerCooldown: cfg.Crawler.BreakerCooldown(),
	}, logger)
	pacer := ratelimit.New(ratelimit.Config{Delay: cfg.Crawler.Delay()})
	exporter := export.New(store, sink, publisher, sha256.New(), clock, export.Config{
		Topic: cfg.PubSub.TopicName,
	}, logger)
	controller := crawl.New(source, store, exporter, pacer, clock, logger)
	tracker := status.New(clock)
	cycles := runner.New(controller, tracker, uuid.New(), runner.Config{
		Targets:         cfg.Targets,
		DefaultMaxPages: cfg.Crawler.MaxPagesDefault,
		Interval:        cfg.Crawler.PollingInterval(),
		Concurrency:     cfg.Crawler.Concurrency,
	}, logger)

	if opts.once || opts.backfill > 0 {
		req := runner.Request{MaxPages: opts.backfill, Target: opts.target, Reason: "cli"}
		report, err := cycles.Execute(ctx, req)
		logger.Info("cycle complete",
			zap.String("run_id", report.RunID),
			zap.Int("targets", len(report.Results)),
			zap.Int("failed", report.Failed),
		)
		return err
	}

	var srv *http.Server
	if cfg.Server.Enabled {
		filesDir := ""
		if cfg.Export.Sink == config.SinkLocal {
			filesDir = cfg.Export.BaseDir
		}
		apiServer := api.NewServer(store, store, cycles, tracker, source, clock, api.Config{
			FilesDir:       filesDir,
			RequestTimeout: cfg.Server.RequestTimeout(),
		}, logger)
		srv = &http.Server{
			Addr:              fmt.Sprintf(":%d", serverPort(cfg.Server.Port)),
			Handler:           apiServer.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("http server started", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", zap.Error(err))
				stop()
			}
		}()
	}

	logger.Info("scheduler started",
		zap.Int("targets", len(cfg.Targets)),
		zap.Duration("interval", cfg.Crawler.PollingInterval()),
	)
	runErr := cycles.Run(ctx)
	logger.Info("shutdown initiated")

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", zap.Error(err))
		}
	}
	logger.Info("shutdown complete")
	return runErr
}

func openStore(ctx context.Context, cfg config.StoreConfig) (archiveStore, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		store, err := postgresstore.New(ctx, postgresstore.Config{DSN: cfg.DSN, MaxConns: cfg.MaxConns})
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		if err := store.Migrate(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("migrate postgres store: %w", err)
		}
		return store, nil
	case config.DriverSQLite:
		store, err := sqlitestore.Open(ctx, cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return store, nil
	case config.DriverBadger:
		store, err := badgerstore.Open(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("open badger store: %w", err)
		}
		return store, nil
	case config.DriverMemory:
		return memorystore.New(), nil
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Driver)
	}
}

func openSink(ctx context.Context, cfg config.ExportConfig) (playlist.SnapshotSink, func(), error) {
	switch cfg.Sink {
	case config.SinkLocal:
		// Export folders are written as configured; base_dir only roots /files.
		sink, err := localstorage.New(localstorage.Config{})
		if err != nil {
			return nil, nil, fmt.Errorf("open local sink: %w", err)
		}
		return sink, func() {}, nil
	case config.SinkGCS:
		client, err := gstorage.NewClient(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("create storage client: %w", err)
		}
		sink, err := gcsstorage.New(client, gcsstorage.Config{Bucket: cfg.GCSBucket, Prefix: cfg.GCSPrefix})
		if err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("open gcs sink: %w", err)
		}
		return sink, func() { _ = client.Close() }, nil
	case config.SinkMemory:
		return memorystorage.NewBlobStore(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported export sink %q", cfg.Sink)
	}
}

func openPublisher(ctx context.Context, cfg config.PubSubConfig) (playlist.Publisher, func(), error) {
	if cfg.TopicName == "" {
		return memorypublisher.New(), func() {}, nil
	}
	client, err := gpubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, nil, fmt.Errorf("create pubsub client: %w", err)
	}
	publisher := pubsubpublisher.New(client)
	return publisher, func() {
		publisher.Close()
		_ = client.Close()
	}, nil
}

// serverPort honors the PORT variable set by container platforms.
func serverPort(configured int) int {
	if v := os.Getenv("PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil && port > 0 {
			return port
		}
	}
	return configured
}
