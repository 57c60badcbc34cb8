package infra

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("REFRESH_SECONDS", "")
	t.Setenv("CONCURRENCY_POLICY", "")
	t.Setenv("PROMPT_PROVIDER", "")
	t.Setenv("IMAGE_PROVIDER", "")
	t.Setenv("S3_ENDPOINT", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.Port != "8000" {
		t.Fatalf("Port = %q, want %q", cfg.Port, "8000")
	}
	if cfg.RefreshInterval != 5*time.Minute {
		t.Fatalf("RefreshInterval = %s, want 5m", cfg.RefreshInterval)
	}
	if cfg.ConcurrencyPolicy != PolicyWait {
		t.Fatalf("ConcurrencyPolicy = %q, want %q", cfg.ConcurrencyPolicy, PolicyWait)
	}
	if cfg.S3.Enabled() {
		t.Fatal("S3 mirror should be disabled without an endpoint")
	}
}

func TestLoadConfigClampsRefreshInterval(t *testing.T) {
	t.Setenv("REFRESH_SECONDS", "10")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.RefreshInterval != time.Minute {
		t.Fatalf("RefreshInterval = %s, want 1m", cfg.RefreshInterval)
	}
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name string
		key  string
		val  string
	}{
		{name: "policy", key: "CONCURRENCY_POLICY", val: "race"},
		{name: "prompt provider", key: "PROMPT_PROVIDER", val: "qwen"},
		{name: "image provider", key: "IMAGE_PROVIDER", val: "dalle"},
		{name: "history size", key: "HISTORY_SIZE", val: "-1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.val)
			if _, err := LoadConfig(); err == nil {
				t.Fatalf("expected error for %s=%q", tc.key, tc.val)
			}
		})
	}
}

func TestLoadConfigDataDirs(t *testing.T) {
	t.Setenv("DATA_DIR", "/srv/frame")
	t.Setenv("S3_ENDPOINT", "minio:9000")
	t.Setenv("S3_USE_SSL", "true")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if got := cfg.ImagesDir(); got != "/srv/frame/images" {
		t.Fatalf("ImagesDir = %q, want %q", got, "/srv/frame/images")
	}
	if got := cfg.VideosDir(); got != "/srv/frame/videos" {
		t.Fatalf("VideosDir = %q, want %q", got, "/srv/frame/videos")
	}
	if !cfg.S3.Enabled() || !cfg.S3.UseSSL {
		t.Fatalf("unexpected S3 config: %#v", cfg.S3)
	}
}
