package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tendant/simple-renderer/internal/bus"
	"github.com/tendant/simple-renderer/internal/store"
)

const (
	backendRedis = "redis"
	backendNATS  = "nats"
	backendLocal = "local"
	backendAzure = "azure"
	backendS3    = "s3"
)

type config struct {
	LogLevel  slog.Level
	LogFormat string
	HTTPAddr  string

	StoreBackend    string
	BusBackend      string
	LeaseBackend    string
	ArtifactBackend string

	RedisURI       string
	RedisChannel   string
	RedisKeyPrefix string

	NATSURL     string
	NATSSubject string
	NATSQueue   string
	NATSBucket  string

	AzureConnectionString string
	AzureContainer        string
	BlobPrefix            string

	S3Bucket        string
	S3Region        string
	S3AccessKey     string
	S3SecretKey     string
	S3Endpoint      string
	S3UsePathStyle  bool
	S3PublicBaseURL string

	Concurrency      int
	QueueSize        int
	JobTimeout       time.Duration
	ReportProcessing bool
	ResubscribeDelay time.Duration

	ManimBinary  string
	ManimScene   string
	ManimQuality string
	WorkDir      string

	PosterEnabled bool
	PosterWidth   int
	PosterHeight  int
}

func LoadConfig() (config, error) {
	cfg := config{
		LogFormat: strings.ToLower(getenv("LOG_FORMAT", "text")),
		HTTPAddr:  getenv("HTTP_ADDR", ":8000"),

		StoreBackend:    strings.ToLower(getenv("STORE_BACKEND", backendRedis)),
		BusBackend:      strings.ToLower(getenv("BUS_BACKEND", backendRedis)),
		LeaseBackend:    strings.ToLower(getenv("LEASE_BACKEND", backendLocal)),
		ArtifactBackend: strings.ToLower(getenv("ARTIFACT_BACKEND", backendAzure)),

		RedisURI:       getenv("REDIS_URI", ""),
		RedisChannel:   getenv("REDIS_CHANNEL", bus.DefaultChannel),
		RedisKeyPrefix: getenv("REDIS_KEY_PREFIX", store.DefaultKeyPrefix),

		NATSURL:     getenv("NATS_URL", ""),
		NATSSubject: getenv("NATS_SUBJECT", bus.DefaultChannel),
		NATSQueue:   getenv("NATS_QUEUE", ""),
		NATSBucket:  getenv("NATS_KV_BUCKET", "manim"),

		AzureConnectionString: getenv("AZURE_STORAGE_CONNECTION_STRING", ""),
		AzureContainer:        getenv("AZURE_STORAGE_CONTAINER_NAME", ""),
		BlobPrefix:            getenv("BLOB_PREFIX", ""),

		S3Bucket:        getenv("AWS_S3_BUCKET", ""),
		S3Region:        getenv("AWS_S3_REGION", ""),
		S3AccessKey:     getenv("AWS_ACCESS_KEY_ID", ""),
		S3SecretKey:     getenv("AWS_SECRET_ACCESS_KEY", ""),
		S3Endpoint:      getenv("AWS_S3_ENDPOINT", ""),
		S3PublicBaseURL: getenv("AWS_S3_PUBLIC_BASE_URL", ""),

		ManimBinary:  getenv("MANIM_BIN", "manim"),
		ManimScene:   getenv("MANIM_SCENE", "ManimScene"),
		ManimQuality: getenv("MANIM_QUALITY", "l"),
		WorkDir:      getenv("RENDER_WORK_DIR", ""),
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(getenv("LOG_LEVEL", "info"))); err != nil {
		return config{}, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	var err error
	if cfg.Concurrency, err = parsePositiveInt(getenv("WORKER_CONCURRENCY", "4"), "WORKER_CONCURRENCY"); err != nil {
		return config{}, err
	}
	if cfg.QueueSize, err = parsePositiveInt(getenv("WORKER_QUEUE_SIZE", "100"), "WORKER_QUEUE_SIZE"); err != nil {
		return config{}, err
	}
	if cfg.JobTimeout, err = parsePositiveDuration(getenv("JOB_TIMEOUT", "30m"), "JOB_TIMEOUT"); err != nil {
		return config{}, err
	}
	if cfg.ResubscribeDelay, err = parsePositiveDuration(getenv("RESUBSCRIBE_DELAY", "2s"), "RESUBSCRIBE_DELAY"); err != nil {
		return config{}, err
	}
	if cfg.PosterWidth, err = parsePositiveInt(getenv("POSTER_WIDTH", "640"), "POSTER_WIDTH"); err != nil {
		return config{}, err
	}
	if cfg.PosterHeight, err = parsePositiveInt(getenv("POSTER_HEIGHT", "360"), "POSTER_HEIGHT"); err != nil {
		return config{}, err
	}
	if cfg.S3UsePathStyle, err = getenvBool("AWS_S3_USE_PATH_STYLE", false); err != nil {
		return config{}, err
	}
	if cfg.ReportProcessing, err = getenvBool("REPORT_PROCESSING", true); err != nil {
		return config{}, err
	}
	if cfg.PosterEnabled, err = getenvBool("POSTER_ENABLED", false); err != nil {
		return config{}, err
	}

	if err := cfg.validate(); err != nil {
		return config{}, err
	}
	return cfg, nil
}

func (c config) validate() error {
	var errs []error

	if err := oneOf("STORE_BACKEND", c.StoreBackend, backendRedis, backendNATS); err != nil {
		errs = append(errs, err)
	}
	if err := oneOf("BUS_BACKEND", c.BusBackend, backendRedis, backendNATS); err != nil {
		errs = append(errs, err)
	}
	if err := oneOf("LEASE_BACKEND", c.LeaseBackend, backendLocal, backendRedis); err != nil {
		errs = append(errs, err)
	}
	if err := oneOf("ARTIFACT_BACKEND", c.ArtifactBackend, backendAzure, backendS3); err != nil {
		errs = append(errs, err)
	}
	if err := oneOf("LOG_FORMAT", c.LogFormat, "text", "json"); err != nil {
		errs = append(errs, err)
	}

	if c.usesRedis() && c.RedisURI == "" {
		errs = append(errs, errors.New("REDIS_URI is required"))
	}
	if c.usesNATS() && c.NATSURL == "" {
		errs = append(errs, errors.New("NATS_URL is required"))
	}

	switch c.ArtifactBackend {
	case backendAzure:
		if c.AzureConnectionString == "" {
			errs = append(errs, errors.New("AZURE_STORAGE_CONNECTION_STRING is required"))
		}
		if c.AzureContainer == "" {
			errs = append(errs, errors.New("AZURE_STORAGE_CONTAINER_NAME is required"))
		}
	case backendS3:
		if c.S3Bucket == "" {
			errs = append(errs, errors.New("AWS_S3_BUCKET is required"))
		}
		if c.S3Region == "" {
			errs = append(errs, errors.New("AWS_S3_REGION is required"))
		}
	}

	return errors.Join(errs...)
}

func (c config) usesRedis() bool {
	return c.StoreBackend == backendRedis || c.BusBackend == backendRedis || c.LeaseBackend == backendRedis
}

func (c config) usesNATS() bool {
	return c.StoreBackend == backendNATS || c.BusBackend == backendNATS
}

func oneOf(name, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of %s (got %q)", name, strings.Join(allowed, ", "), value)
}

func parsePositiveInt(value string, name string) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("%s must be greater than zero (got %d)", name, v)
	}
	return v, nil
}

func parsePositiveDuration(value string, name string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be greater than zero (got %s)", name, d)
	}
	return d, nil
}

func getenvBool(key string, defaultValue bool) (bool, error) {
	val := getenv(key, "")
	if val == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean (got %q)", key, val)
	}
	return b, nil
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func newLogger(level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
