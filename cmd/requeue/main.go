// cmd/requeue/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/redis/go-redis/v9"

	"github.com/tendant/simple-renderer/internal/bus"
	"github.com/tendant/simple-renderer/internal/store"
)

type config struct {
	StoreBackend   string
	BusBackend     string
	RedisURI       string
	RedisChannel   string
	RedisKeyPrefix string
	NATSURL        string
	NATSSubject    string
	NATSBucket     string

	Limit         int
	DryRun        bool
	IncludeErrors bool
	Session       string
}

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := loadConfig()
	logger.Info("requeue starting",
		"store", cfg.StoreBackend,
		"bus", cfg.BusBackend,
		"limit", cfg.Limit,
		"dry_run", cfg.DryRun,
		"include_errors", cfg.IncludeErrors,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var rdb *redis.Client
	if cfg.StoreBackend == "redis" || cfg.BusBackend == "redis" {
		if cfg.RedisURI == "" {
			fatal(logger, "load config", errors.New("REDIS_URI is required"))
		}
		opts, err := redis.ParseURL(cfg.RedisURI)
		if err != nil {
			fatal(logger, "parse REDIS_URI", err)
		}
		rdb = redis.NewClient(opts)
		defer rdb.Close()
	}

	var nc *bus.Client
	if cfg.StoreBackend == "nats" || cfg.BusBackend == "nats" {
		if cfg.NATSURL == "" {
			fatal(logger, "load config", errors.New("NATS_URL is required"))
		}
		var err error
		nc, err = bus.Connect(cfg.NATSURL)
		if err != nil {
			fatal(logger, "connect to NATS", err, "nats_url", cfg.NATSURL)
		}
		defer nc.Close()
		logger.Info("connected to NATS", "nats_url", cfg.NATSURL)
	}

	var jobs store.JobStore
	if cfg.StoreBackend == "nats" {
		js, err := jetstream.New(nc.Conn())
		if err != nil {
			fatal(logger, "open jetstream", err)
		}
		jobs, err = store.NewNATSKV(ctx, js, store.KVConfig{Bucket: cfg.NATSBucket})
		if err != nil {
			fatal(logger, "bind job bucket", err, "bucket", cfg.NATSBucket)
		}
	} else {
		jobs = store.NewRedis(rdb, store.WithKeyPrefix(cfg.RedisKeyPrefix), store.WithLogger(logger))
	}

	var events bus.Bus
	if !cfg.DryRun {
		if cfg.BusBackend == "nats" {
			events = bus.NewNATS(nc, cfg.NATSSubject, "", logger)
		} else {
			events = bus.NewRedis(rdb, cfg.RedisChannel, logger)
		}
	}

	r := &requeuer{jobs: jobs, events: events, cfg: cfg, logger: logger}
	var (
		stats requeueStats
		err   error
	)
	if cfg.Session != "" {
		stats, err = r.runOne(ctx, cfg.Session)
	} else {
		logger.Info("scanning for unfinished render jobs...")
		stats, err = r.run(ctx)
	}
	if err != nil {
		fatal(logger, "requeue failed", err)
	}

	logger.Info("requeue complete",
		"scanned", stats.Scanned,
		"selected", stats.Selected,
		"published", stats.Published,
		"skipped_finished", stats.SkippedFinished,
		"skipped_no_code", stats.SkippedNoCode,
		"failed", stats.Failed,
		"dry_run", cfg.DryRun,
	)
	if len(stats.FailedIDs) > 0 {
		logger.Error("some sessions could not be requeued", "failed_ids", stats.FailedIDs)
	}
}

func loadConfig() config {
	cfg := config{
		StoreBackend:   strings.ToLower(getenv("STORE_BACKEND", "redis")),
		BusBackend:     strings.ToLower(getenv("BUS_BACKEND", "redis")),
		RedisURI:       getenv("REDIS_URI", ""),
		RedisChannel:   getenv("REDIS_CHANNEL", bus.DefaultChannel),
		RedisKeyPrefix: getenv("REDIS_KEY_PREFIX", store.DefaultKeyPrefix),
		NATSURL:        getenv("NATS_URL", ""),
		NATSSubject:    getenv("NATS_SUBJECT", bus.DefaultChannel),
		NATSBucket:     getenv("NATS_KV_BUCKET", "manim"),
		DryRun:         true,
	}

	flag.IntVar(&cfg.Limit, "limit", 0, "Maximum number of sessions to requeue (0 = unlimited)")
	flag.BoolVar(&cfg.IncludeErrors, "include-errors", false, "Also requeue sessions whose last render failed")
	flag.StringVar(&cfg.Session, "session", "", "Requeue a single session id regardless of its status")

	var execute bool
	flag.BoolVar(&execute, "execute", false, "Actually publish render requests (disables dry-run)")
	flag.Parse()

	if execute {
		cfg.DryRun = false
	}
	return cfg
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func fatal(logger *slog.Logger, msg string, err error, attrs ...any) {
	attrs = append(attrs, "err", err)
	logger.Error(msg, attrs...)
	os.Exit(1)
}
