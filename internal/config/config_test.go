package config

import (
	"testing"
	"time"
)

const testSigningKey = "0123456789abcdef0123456789abcdef"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("BLOB_SIGNING_KEY", testSigningKey)

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ViewDedupWindow != 10*time.Minute {
		t.Errorf("expected 10m dedup window, got %v", cfg.ViewDedupWindow)
	}
	if cfg.SignedURLTTL != 5*time.Minute {
		t.Errorf("expected 5m URL TTL, got %v", cfg.SignedURLTTL)
	}
	if cfg.StorageBackend != "fs" {
		t.Errorf("expected fs backend, got %s", cfg.StorageBackend)
	}
	if got := cfg.Timeouts().JobMaxTimeout; got != 4*time.Hour {
		t.Errorf("expected 4h cap, got %v", got)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("VIEW_DEDUP_WINDOW", "24h")
	t.Setenv("STORAGE_BACKEND", "s3")
	t.Setenv("S3_BUCKET", "videos")
	t.Setenv("S3_FORCE_PATH_STYLE", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ViewDedupWindow != 24*time.Hour || cfg.S3.Bucket != "videos" || !cfg.S3.ForcePathStyle {
		t.Errorf("unexpected config %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"s3 without bucket", func(c *Config) { c.StorageBackend = "s3" }},
		{"unknown backend", func(c *Config) { c.StorageBackend = "ftp" }},
		{"no workers", func(c *Config) { c.MaxWorkers = 0 }},
		{"zero window", func(c *Config) { c.ViewDedupWindow = 0 }},
		{"fs without signing key", func(c *Config) { c.SigningKey = "" }},
		{"fs with short signing key", func(c *Config) { c.SigningKey = "change-me-in-production" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{StorageBackend: "fs", SigningKey: testSigningKey, MaxWorkers: 1, ViewDedupWindow: time.Minute}
			if err := cfg.Validate(); err != nil {
				t.Fatalf("base config rejected: %v", err)
			}
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadRequiresSigningKeyForFS(t *testing.T) {
	if _, err := Load(); err == nil {
		t.Fatal("expected fs backend without BLOB_SIGNING_KEY to be rejected")
	}

	t.Setenv("STORAGE_BACKEND", "memory")
	if _, err := Load(); err != nil {
		t.Fatalf("memory backend needs no signing key: %v", err)
	}
}
