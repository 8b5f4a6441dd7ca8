// cmd/worker/main.go
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/redis/go-redis/v9"

	"github.com/tendant/simple-renderer/internal/api"
	"github.com/tendant/simple-renderer/internal/bus"
	"github.com/tendant/simple-renderer/internal/converters"
	"github.com/tendant/simple-renderer/internal/img"
	"github.com/tendant/simple-renderer/internal/lease"
	"github.com/tendant/simple-renderer/internal/observability"
	"github.com/tendant/simple-renderer/internal/process"
	"github.com/tendant/simple-renderer/internal/render"
	"github.com/tendant/simple-renderer/internal/store"
	"github.com/tendant/simple-renderer/internal/trigger"
	"github.com/tendant/simple-renderer/internal/upload"
)

func main() {
	_ = godotenv.Load()

	cfg, err := LoadConfig()
	if err != nil {
		fatal(slog.Default(), "load config", err)
	}

	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	logger.Info("worker starting",
		"store", cfg.StoreBackend,
		"bus", cfg.BusBackend,
		"lease", cfg.LeaseBackend,
		"artifacts", cfg.ArtifactBackend,
		"concurrency", cfg.Concurrency,
		"job_timeout", cfg.JobTimeout,
		"http_addr", cfg.HTTPAddr,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var rdb *redis.Client
	if cfg.usesRedis() {
		opts, err := redis.ParseURL(cfg.RedisURI)
		if err != nil {
			fatal(logger, "parse REDIS_URI", err)
		}
		rdb = redis.NewClient(opts)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			fatal(logger, "connect to redis", err, "addr", opts.Addr)
		}
		logger.Info("connected to redis", "addr", opts.Addr, "db", opts.DB)
	}

	var nc *bus.Client
	if cfg.usesNATS() {
		nc, err = bus.Connect(cfg.NATSURL)
		if err != nil {
			fatal(logger, "connect to NATS", err, "nats_url", cfg.NATSURL)
		}
		defer nc.Close()
		logger.Info("connected to NATS", "nats_url", cfg.NATSURL)
	}

	var jobs store.JobStore
	switch cfg.StoreBackend {
	case backendNATS:
		js, err := jetstream.New(nc.Conn())
		if err != nil {
			fatal(logger, "open jetstream", err)
		}
		jobs, err = store.NewNATSKV(ctx, js, store.KVConfig{Bucket: cfg.NATSBucket})
		if err != nil {
			fatal(logger, "bind job bucket", err, "bucket", cfg.NATSBucket)
		}
		logger.Info("job store ready", "backend", "nats", "bucket", cfg.NATSBucket)
	default:
		jobs = store.NewRedis(rdb, store.WithKeyPrefix(cfg.RedisKeyPrefix), store.WithLogger(logger))
		logger.Info("job store ready", "backend", "redis", "prefix", cfg.RedisKeyPrefix)
	}

	var events bus.Bus
	switch cfg.BusBackend {
	case backendNATS:
		events = bus.NewNATS(nc, cfg.NATSSubject, cfg.NATSQueue, logger)
		logger.Info("notification bus ready", "backend", "nats", "subject", cfg.NATSSubject, "queue", cfg.NATSQueue)
	default:
		events = bus.NewRedis(rdb, cfg.RedisChannel, logger)
		logger.Info("notification bus ready", "backend", "redis", "channel", cfg.RedisChannel)
	}

	artifacts, err := newArtifactStore(ctx, cfg, logger)
	if err != nil {
		fatal(logger, "build artifact store", err, "backend", cfg.ArtifactBackend)
	}
	if err := artifacts.Probe(ctx); err != nil {
		fatal(logger, "artifact store unreachable", err, "backend", cfg.ArtifactBackend)
	}
	logger.Info("artifact store ready", "backend", cfg.ArtifactBackend)

	renderer := render.NewManim(
		render.WithBinary(cfg.ManimBinary),
		render.WithScene(cfg.ManimScene),
		render.WithQuality(cfg.ManimQuality),
		render.WithWorkDir(cfg.WorkDir),
		render.WithLogger(logger),
	)
	if err := renderer.Available(); err != nil {
		logger.Warn("renderer not available, jobs will fail until it is installed", "binary", cfg.ManimBinary, "err", err)
	}

	metrics, metricsHandler, err := observability.NewMetrics(ctx)
	if err != nil {
		fatal(logger, "init metrics", err)
	}

	opts := []process.Option{
		process.WithLogger(logger),
		process.WithTimeout(cfg.JobTimeout),
		process.WithMetrics(metrics),
		process.WithProcessingReport(cfg.ReportProcessing),
	}
	if cfg.LeaseBackend == backendRedis {
		opts = append(opts, process.WithLocker(lease.NewRedis(rdb, lease.WithLogger(logger))))
	}
	if cfg.PosterEnabled {
		frames := converters.NewFFmpegConverter()
		opts = append(opts, process.WithPoster(img.NewPosterGenerator(frames, cfg.PosterWidth, cfg.PosterHeight, cfg.WorkDir)))
		logger.Info("poster generation enabled", "width", cfg.PosterWidth, "height", cfg.PosterHeight)
	}
	processor := process.NewProcessor(jobs, events, renderer, artifacts, opts...)

	dispatcher := trigger.NewDispatcher(processor, cfg.Concurrency, cfg.QueueSize, metrics, logger)
	listener := trigger.NewListener(events, dispatcher, cfg.ResubscribeDelay, logger)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		listener.Run(ctx)
	}()

	router := api.NewRouter(api.RouterConfig{
		Jobs:       jobs,
		Dispatcher: dispatcher,
		Checks: map[string]api.CheckFunc{
			"store":     jobs.Ping,
			"bus":       events.Ping,
			"artifacts": artifacts.Probe,
		},
		Metrics:        metrics,
		MetricsHandler: metricsHandler,
		Logger:         logger,
	})
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		logger.Error("http server failed", "err", err)
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown", "err", err)
	}

	wg.Wait()
	dispatcher.Stop()
	logger.Info("worker stopped")
}

func newArtifactStore(ctx context.Context, cfg config, logger *slog.Logger) (upload.Store, error) {
	if cfg.ArtifactBackend == backendS3 {
		return upload.NewS3(ctx, upload.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			Endpoint:        cfg.S3Endpoint,
			UsePathStyle:    cfg.S3UsePathStyle,
			Prefix:          cfg.BlobPrefix,
			PublicBaseURL:   cfg.S3PublicBaseURL,
		}, logger)
	}
	return upload.NewAzure(cfg.AzureConnectionString, cfg.AzureContainer, cfg.BlobPrefix, logger)
}

func fatal(logger *slog.Logger, msg string, err error, attrs ...any) {
	attrs = append(attrs, "err", err)
	logger.Error(msg, attrs...)
	os.Exit(1)
}
