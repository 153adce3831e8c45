// Package config centralizes how sitemedia reads environment variables
// and exposes them as strongly typed Go values.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
)

// Config represents runtime configuration shared by the worker, the
// webhook receiver, and the operator CLI.
type Config struct {
	// Address is the webhook receiver's listen address.
	Address string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	DatabaseURL string

	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3UseSSL    bool
	S3Region    string
	MediaBucket string

	// DownloadHost is the public host serving tokenized downloads; it is
	// the <storage-host> part of published media URLs.
	DownloadHost string

	FFmpegBin string

	// Concurrency bounds how many transcode jobs one worker process runs
	// at a time. Jobs never share state, so this is purely a resource cap.
	Concurrency int
}

const (
	defaultAddress      = ":8081"
	defaultRedisAddr    = "localhost:6379"
	defaultS3Endpoint   = "localhost:9000"
	defaultRegion       = "us-east-1"
	defaultMediaBucket  = "site-content"
	defaultDownloadHost = "media.lumenweb.app"
	defaultConcurrency  = 2
)

// Load reads configuration from environment variables falling back to
// defaults. Only the database URL has no sane default.
func Load() (*Config, error) {
	cfg := &Config{
		Address:       readEnv("SITEMEDIA_ADDRESS", defaultAddress),
		RedisAddr:     readEnv("SITEMEDIA_REDIS_ADDR", defaultRedisAddr),
		RedisPassword: readEnv("SITEMEDIA_REDIS_PASSWORD", ""),
		RedisDB:       parseInt("SITEMEDIA_REDIS_DB", 0),
		DatabaseURL:   readEnv("SITEMEDIA_DATABASE_URL", ""),
		S3Endpoint:    readEnv("SITEMEDIA_S3_ENDPOINT", defaultS3Endpoint),
		S3AccessKey:   readEnv("SITEMEDIA_S3_ACCESS_KEY", "minioadmin"),
		S3SecretKey:   readEnv("SITEMEDIA_S3_SECRET_KEY", "minioadmin"),
		S3UseSSL:      parseBool("SITEMEDIA_S3_USE_SSL", false),
		S3Region:      readEnv("SITEMEDIA_S3_REGION", defaultRegion),
		MediaBucket:   readEnv("SITEMEDIA_BUCKET", defaultMediaBucket),
		DownloadHost:  readEnv("SITEMEDIA_DOWNLOAD_HOST", defaultDownloadHost),
		FFmpegBin:     readEnv("SITEMEDIA_FFMPEG_BIN", "ffmpeg"),
		Concurrency:   parseInt("SITEMEDIA_CONCURRENCY", defaultConcurrency),
	}
	if cfg.DatabaseURL == "" {
		return nil, errors.New("SITEMEDIA_DATABASE_URL is required")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	return cfg, nil
}

func readEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func parseInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		switch strings.ToLower(v) {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off":
			return false
		}
	}
	return def
}
