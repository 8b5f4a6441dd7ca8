package main

import (
	"log/slog"
	"strings"
	"testing"
	"time"
)

var configEnv = []string{
	"LOG_LEVEL", "LOG_FORMAT", "HTTP_ADDR",
	"STORE_BACKEND", "BUS_BACKEND", "LEASE_BACKEND", "ARTIFACT_BACKEND",
	"REDIS_URI", "REDIS_CHANNEL", "REDIS_KEY_PREFIX",
	"NATS_URL", "NATS_SUBJECT", "NATS_QUEUE", "NATS_KV_BUCKET",
	"AZURE_STORAGE_CONNECTION_STRING", "AZURE_STORAGE_CONTAINER_NAME", "BLOB_PREFIX",
	"AWS_S3_BUCKET", "AWS_S3_REGION", "AWS_S3_ENDPOINT", "AWS_S3_USE_PATH_STYLE",
	"WORKER_CONCURRENCY", "WORKER_QUEUE_SIZE", "JOB_TIMEOUT", "RESUBSCRIBE_DELAY",
	"REPORT_PROCESSING", "POSTER_ENABLED", "POSTER_WIDTH", "POSTER_HEIGHT",
}

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, k := range configEnv {
		t.Setenv(k, "")
	}
}

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("REDIS_URI", "redis://localhost:6379/0")
	t.Setenv("AZURE_STORAGE_CONNECTION_STRING", "UseDevelopmentStorage=true")
	t.Setenv("AZURE_STORAGE_CONTAINER_NAME", "videos")
}

func TestLoadConfigDefaults(t *testing.T) {
	clearConfigEnv(t)
	setRequired(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}

	if cfg.StoreBackend != "redis" || cfg.BusBackend != "redis" || cfg.LeaseBackend != "local" || cfg.ArtifactBackend != "azure" {
		t.Fatalf("unexpected backends: %+v", cfg)
	}
	if cfg.RedisChannel != "manim_code_notifications" || cfg.RedisKeyPrefix != "manim:" {
		t.Fatalf("unexpected redis naming: %s %s", cfg.RedisChannel, cfg.RedisKeyPrefix)
	}
	if cfg.Concurrency != 4 || cfg.QueueSize != 100 {
		t.Fatalf("unexpected pool size: %d/%d", cfg.Concurrency, cfg.QueueSize)
	}
	if cfg.JobTimeout != 30*time.Minute {
		t.Fatalf("unexpected job timeout: %s", cfg.JobTimeout)
	}
	if !cfg.ReportProcessing || cfg.PosterEnabled {
		t.Fatalf("unexpected toggles: report=%v poster=%v", cfg.ReportProcessing, cfg.PosterEnabled)
	}
	if cfg.LogLevel != slog.LevelInfo || cfg.LogFormat != "text" {
		t.Fatalf("unexpected logging: %s %s", cfg.LogLevel, cfg.LogFormat)
	}
	if cfg.ManimScene != "ManimScene" || cfg.ManimQuality != "l" {
		t.Fatalf("unexpected renderer settings: %s %s", cfg.ManimScene, cfg.ManimQuality)
	}
}

func TestLoadConfigMissingRequired(t *testing.T) {
	clearConfigEnv(t)

	_, err := LoadConfig()
	if err == nil {
		t.Fatal("expected error when required settings are missing")
	}
	for _, name := range []string{"REDIS_URI", "AZURE_STORAGE_CONNECTION_STRING", "AZURE_STORAGE_CONTAINER_NAME"} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("error does not mention %s: %v", name, err)
		}
	}
}

func TestLoadConfigNATSAndS3(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("STORE_BACKEND", "nats")
	t.Setenv("BUS_BACKEND", "NATS")
	t.Setenv("ARTIFACT_BACKEND", "s3")
	t.Setenv("NATS_URL", "nats://localhost:4222")
	t.Setenv("AWS_S3_BUCKET", "renders")
	t.Setenv("AWS_S3_REGION", "us-east-1")
	t.Setenv("AWS_S3_USE_PATH_STYLE", "true")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.usesRedis() {
		t.Fatal("redis should not be required for a nats-only setup")
	}
	if !cfg.S3UsePathStyle || cfg.NATSSubject != "manim_code_notifications" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestLoadConfigRedisLeaseNeedsRedis(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("STORE_BACKEND", "nats")
	t.Setenv("BUS_BACKEND", "nats")
	t.Setenv("LEASE_BACKEND", "redis")
	t.Setenv("NATS_URL", "nats://localhost:4222")
	t.Setenv("AZURE_STORAGE_CONNECTION_STRING", "UseDevelopmentStorage=true")
	t.Setenv("AZURE_STORAGE_CONTAINER_NAME", "videos")

	if _, err := LoadConfig(); err == nil || !strings.Contains(err.Error(), "REDIS_URI") {
		t.Fatalf("expected REDIS_URI error, got %v", err)
	}
}

func TestLoadConfigInvalidValues(t *testing.T) {
	cases := map[string]string{
		"WORKER_CONCURRENCY":    "0",
		"WORKER_QUEUE_SIZE":     "lots",
		"JOB_TIMEOUT":           "soon",
		"LOG_LEVEL":             "chatty",
		"LOG_FORMAT":            "xml",
		"STORE_BACKEND":         "postgres",
		"ARTIFACT_BACKEND":      "gcs",
		"REPORT_PROCESSING":     "flase",
		"POSTER_ENABLED":        "maybe",
		"AWS_S3_USE_PATH_STYLE": "sure",
	}
	for name, value := range cases {
		t.Run(name, func(t *testing.T) {
			clearConfigEnv(t)
			setRequired(t)
			t.Setenv(name, value)

			if _, err := LoadConfig(); err == nil {
				t.Fatalf("expected error for %s=%s", name, value)
			}
		})
	}
}

func TestParsePositiveDuration(t *testing.T) {
	if d, err := parsePositiveDuration("90s", "X"); err != nil || d != 90*time.Second {
		t.Fatalf("parsePositiveDuration = %s, %v", d, err)
	}
	if _, err := parsePositiveDuration("-1m", "X"); err == nil {
		t.Fatal("expected error for negative duration")
	}
}
