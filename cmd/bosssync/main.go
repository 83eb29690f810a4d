// Package main wires together the boss sync service binary.
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

	"cloud.google.com/go/pubsub"
	gcstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/tibialore/boss-sync/internal/api"
	"github.com/tibialore/boss-sync/internal/boss"
	"github.com/tibialore/boss-sync/internal/clock/system"
	"github.com/tibialore/boss-sync/internal/config"
	"github.com/tibialore/boss-sync/internal/deadletter"
	"github.com/tibialore/boss-sync/internal/logging"
	"github.com/tibialore/boss-sync/internal/metrics"
	"github.com/tibialore/boss-sync/internal/pipeline"
	memorypublisher "github.com/tibialore/boss-sync/internal/publisher/memory"
	pubsubpublisher "github.com/tibialore/boss-sync/internal/publisher/pubsub"
	"github.com/tibialore/boss-sync/internal/schedule"
	"github.com/tibialore/boss-sync/internal/storage/gcs"
	"github.com/tibialore/boss-sync/internal/storage/local"
	memoryStorage "github.com/tibialore/boss-sync/internal/storage/memory"
	"github.com/tibialore/boss-sync/internal/storage/postgres"
	"github.com/tibialore/boss-sync/internal/wiki"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := system.New()

	repo, lock, closeStores, err := buildStores(ctx, cfg, clock, logger)
	if err != nil {
		logger.Fatal("storage init failed", zap.Error(err))
	}
	defer closeStores()

	blobStore, err := buildBlobStore(ctx, cfg)
	if err != nil {
		logger.Fatal("blob store init failed", zap.Error(err))
	}

	publisher, closePublisher, err := buildPublisher(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("publisher init failed", zap.Error(err))
	}
	defer closePublisher()

	deadLetter, err := deadletter.New(cfg.Sync.DeadLetterPath, logger.Named("deadletter"))
	if err != nil {
		logger.Fatal("dead letter init failed", zap.Error(err))
	}

	wikiCfg := wiki.Config{
		BaseURL:           cfg.Wiki.BaseURL,
		UserAgent:         cfg.Wiki.UserAgent,
		Timeout:           cfg.WikiTimeout(),
		MaxRetries:        cfg.Wiki.MaxRetries,
		RetryBackoffBase:  cfg.WikiBackoff(),
		RequestsPerSecond: cfg.Wiki.RequestsPerSecond,
		PageLimit:         cfg.Wiki.PageLimit,
	}
	wikiClient := wiki.NewClient(wikiCfg, logger.Named("wiki"))
	defer wikiClient.Close()
	images := wiki.NewImageResolver(wikiCfg, wiki.DefaultImageBatchSize, logger.Named("images"))

	pipe := pipeline.New(
		wikiClient,
		wikiClient,
		images,
		repo,
		lock,
		deadLetter,
		blobStore,
		publisher,
		clock,
		pipeline.Config{
			Category:      cfg.Sync.Category,
			Concurrency:   cfg.Sync.Concurrency,
			BatchSize:     cfg.Sync.BatchSize,
			Topic:         cfg.PubSub.TopicName,
			ArchivePrefix: cfg.Storage.Prefix,
		},
		logger.Named("pipeline"),
	)

	if cfg.Schedule.Enabled {
		sched := schedule.New(cfg.SyncInterval(), func(ctx context.Context) error {
			_, runErr := pipe.Run(ctx)
			return runErr
		}, true, logger.Named("schedule"))
		go sched.Run(ctx)
	}

	apiServer := api.NewServer(repo, pipe, lock, cfg, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

// buildStores returns Postgres-backed stores when a DSN is configured and
// in-memory stores otherwise.
func buildStores(
	ctx context.Context,
	cfg config.Config,
	clock boss.Clock,
	logger *zap.Logger,
) (boss.Repository, boss.Lock, func(), error) {
	if cfg.DB.DSN == "" {
		logger.Warn("no database DSN configured, using in-memory stores")
		return memoryStorage.NewBossStore(), memoryStorage.NewLockStore(clock), func() {}, nil
	}

	bossStore, err := postgres.NewBossStore(ctx, postgres.BossStoreConfig{
		DSN:      cfg.DB.DSN,
		MaxConns: int32(cfg.DB.MaxConns),
		MinConns: int32(cfg.DB.MinConns),
	}, logger.Named("bosses"))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("boss store: %w", err)
	}
	lockStore, err := postgres.NewLockStore(bossStore.Pool(), clock, logger.Named("lock"))
	if err != nil {
		bossStore.Close()
		return nil, nil, nil, fmt.Errorf("lock store: %w", err)
	}
	return bossStore, lockStore, bossStore.Close, nil
}

func buildBlobStore(ctx context.Context, cfg config.Config) (boss.BlobStore, error) {
	switch cfg.Storage.Backend {
	case "", "none":
		return nil, nil
	case "local":
		return local.New(local.Config{BaseDir: cfg.Storage.LocalDir})
	case "gcs":
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client: %w", err)
		}
		return gcs.New(client, gcs.Config{Bucket: cfg.Storage.GCSBucket})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

func buildPublisher(
	ctx context.Context,
	cfg config.Config,
	logger *zap.Logger,
) (boss.Publisher, func(), error) {
	if cfg.PubSub.ProjectID == "" || cfg.PubSub.TopicName == "" {
		logger.Info("pubsub not configured, run summaries stay in-process")
		return memorypublisher.New(), func() {}, nil
	}
	client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		return nil, nil, fmt.Errorf("pubsub client: %w", err)
	}
	topic := client.Topic(cfg.PubSub.TopicName)
	closeFn := func() {
		topic.Stop()
		if closeErr := client.Close(); closeErr != nil {
			logger.Warn("pubsub client close failed", zap.Error(closeErr))
		}
	}
	return pubsubpublisher.New(topic), closeFn, nil
}
