package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const defaultRetention = 7 * 24 * time.Hour

func Load() (Config, error) {
	cfg := Config{}

	cfg.HTTP.Addr = getEnv("TAGFORGE_HTTP_ADDR", ":8080")
	cfg.HTTP.BaseURL = getEnv("TAGFORGE_BASE_URL", "http://localhost:8080/")
	if _, err := url.Parse(cfg.HTTP.BaseURL); err != nil {
		return Config{}, fmt.Errorf("invalid TAGFORGE_BASE_URL: %w", err)
	}

	cfg.Storage.Bucket = strings.TrimSpace(os.Getenv("S3_BUCKET"))
	if cfg.Storage.Bucket == "" {
		return Config{}, fmt.Errorf("S3_BUCKET is required")
	}
	cfg.Storage.Compress = getEnvBool("TAGFORGE_COMPRESS_ARTIFACTS", false)
	cfg.Storage.KindsDir = os.Getenv("TAGFORGE_KINDS_DIR")

	retention, err := getEnvDuration("TAGFORGE_RETENTION", defaultRetention)
	if err != nil {
		return Config{}, err
	}
	if retention <= 0 {
		return Config{}, fmt.Errorf("TAGFORGE_RETENTION must be positive")
	}
	cfg.Storage.Retention = retention

	storeTimeout, err := getEnvDuration("TAGFORGE_STORE_TIMEOUT", 5*time.Second)
	if err != nil {
		return Config{}, err
	}
	cfg.Storage.StoreTimeout = storeTimeout

	cfg.Bus.URL = strings.TrimSpace(os.Getenv("NATS_URL"))
	cfg.Bus.Enabled = cfg.Bus.URL != ""

	cfg.DB.DSN = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.DB.Enabled = cfg.DB.DSN != ""

	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	// Accept bare seconds for compatibility with shell helpers.
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return d, nil
}
