package config

import (
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"TAGFORGE_HTTP_ADDR", "TAGFORGE_BASE_URL", "TAGFORGE_RETENTION",
		"TAGFORGE_STORE_TIMEOUT", "TAGFORGE_COMPRESS_ARTIFACTS",
		"TAGFORGE_KINDS_DIR", "S3_BUCKET", "NATS_URL", "DATABASE_URL",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("S3_BUCKET", "tagforge-artifacts")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.HTTP.Addr != ":8080" {
		t.Errorf("Addr = %q", cfg.HTTP.Addr)
	}
	if cfg.HTTP.BaseURL != "http://localhost:8080/" {
		t.Errorf("BaseURL = %q", cfg.HTTP.BaseURL)
	}
	if cfg.Storage.Bucket != "tagforge-artifacts" {
		t.Errorf("Bucket = %q", cfg.Storage.Bucket)
	}
	if cfg.Storage.Retention != 7*24*time.Hour {
		t.Errorf("Retention = %v", cfg.Storage.Retention)
	}
	if cfg.Storage.StoreTimeout != 5*time.Second {
		t.Errorf("StoreTimeout = %v", cfg.Storage.StoreTimeout)
	}
	if cfg.Storage.Compress {
		t.Error("Compress should default to false")
	}
	if cfg.Bus.Enabled || cfg.DB.Enabled {
		t.Error("bus and db should be disabled without their env vars")
	}
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("S3_BUCKET", "bucket")
	t.Setenv("TAGFORGE_HTTP_ADDR", ":9090")
	t.Setenv("TAGFORGE_BASE_URL", "https://downloads.example.com/")
	t.Setenv("TAGFORGE_RETENTION", "48h")
	t.Setenv("TAGFORGE_STORE_TIMEOUT", "10")
	t.Setenv("TAGFORGE_COMPRESS_ARTIFACTS", "true")
	t.Setenv("TAGFORGE_KINDS_DIR", "/etc/tagforge/kinds")
	t.Setenv("NATS_URL", "nats://broker:4222")
	t.Setenv("DATABASE_URL", "postgres://localhost/tagforge")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.HTTP.Addr != ":9090" {
		t.Errorf("Addr = %q", cfg.HTTP.Addr)
	}
	if cfg.Storage.Retention != 48*time.Hour {
		t.Errorf("Retention = %v", cfg.Storage.Retention)
	}
	// Bare integers are read as seconds.
	if cfg.Storage.StoreTimeout != 10*time.Second {
		t.Errorf("StoreTimeout = %v", cfg.Storage.StoreTimeout)
	}
	if !cfg.Storage.Compress {
		t.Error("Compress should be enabled")
	}
	if cfg.Storage.KindsDir != "/etc/tagforge/kinds" {
		t.Errorf("KindsDir = %q", cfg.Storage.KindsDir)
	}
	if !cfg.Bus.Enabled || cfg.Bus.URL != "nats://broker:4222" {
		t.Errorf("Bus = %+v", cfg.Bus)
	}
	if !cfg.DB.Enabled || cfg.DB.DSN != "postgres://localhost/tagforge" {
		t.Errorf("DB = %+v", cfg.DB)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing bucket", map[string]string{}},
		{"bad retention", map[string]string{
			"S3_BUCKET":          "bucket",
			"TAGFORGE_RETENTION": "soon",
		}},
		{"negative retention", map[string]string{
			"S3_BUCKET":          "bucket",
			"TAGFORGE_RETENTION": "-24h",
		}},
		{"bad store timeout", map[string]string{
			"S3_BUCKET":              "bucket",
			"TAGFORGE_STORE_TIMEOUT": "whenever",
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatal("Load() accepted invalid environment")
			}
		})
	}
}
