package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"galleryd/internal/config"
)

func TestLoadDefaultConfigUsesEnvBaseURLAndExpandsPaths(t *testing.T) {
	t.Setenv("GALLERYD_REMOTE_BASE_URL", "https://galleries.example.com/")
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantDownloads := filepath.Join(tempHome, "Downloads", "galleryd")
	if cfg.Paths.DownloadDir != wantDownloads {
		t.Fatalf("unexpected download dir: got %q want %q", cfg.Paths.DownloadDir, wantDownloads)
	}
	if cfg.Paths.StateDir != filepath.Join(tempHome, ".local", "share", "galleryd") {
		t.Fatalf("unexpected state dir: %q", cfg.Paths.StateDir)
	}
	if cfg.Remote.BaseURL != "https://galleries.example.com" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.Remote.BaseURL)
	}
	if cfg.Remote.ImageBaseURL != cfg.Remote.BaseURL {
		t.Fatalf("expected image base to default to base url, got %q", cfg.Remote.ImageBaseURL)
	}
	if cfg.Paths.APIBind != "127.0.0.1:7497" {
		t.Fatalf("unexpected api bind: %q", cfg.Paths.APIBind)
	}
	if cfg.Scheduler.BackoffBase != 30 {
		t.Fatalf("expected 30s backoff base, got %d", cfg.Scheduler.BackoffBase)
	}
	if cfg.Notifications.MaxActive != 25 {
		t.Fatalf("expected 25 active notifications, got %d", cfg.Notifications.MaxActive)
	}
	if got := strings.Join(cfg.Download.Extensions, ","); got != "jpg,png,webp,gif" {
		t.Fatalf("unexpected extension candidates: %s", got)
	}
	if !strings.HasPrefix(cfg.Export.BucketURL, "file://") || !strings.HasSuffix(cfg.Export.BucketURL, "/exports") {
		t.Fatalf("unexpected export bucket: %q", cfg.Export.BucketURL)
	}
	if cfg.QueueDBPath() != filepath.Join(cfg.Paths.StateDir, "queue.db") {
		t.Fatalf("unexpected queue db path: %q", cfg.QueueDBPath())
	}
}

func TestLoadRequiresBaseURL(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("GALLERYD_REMOTE_BASE_URL", "")

	_, _, _, err := config.Load("")
	if err == nil {
		t.Fatal("expected error when remote.base_url is missing")
	}
	if !strings.Contains(err.Error(), "remote.base_url") {
		t.Fatalf("expected base_url hint, got %v", err)
	}
}

func TestLoadReadsTOMLFile(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	payload := map[string]any{
		"paths": map[string]any{
			"download_dir": "~/galleries",
		},
		"remote": map[string]any{
			"base_url":       "https://api.example.com",
			"image_base_url": "https://img.example.com",
		},
		"download": map[string]any{
			"extensions": []string{".PNG", "jpg", "png", " "},
		},
		"logging": map[string]any{
			"format": "JSON",
		},
	}
	data, err := toml.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	path := filepath.Join(tempHome, "galleryd.toml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected file to be used, got %q exists=%v", resolved, exists)
	}
	if cfg.Paths.DownloadDir != filepath.Join(tempHome, "galleries") {
		t.Fatalf("unexpected download dir: %q", cfg.Paths.DownloadDir)
	}
	if cfg.Remote.ImageBaseURL != "https://img.example.com" {
		t.Fatalf("unexpected image base: %q", cfg.Remote.ImageBaseURL)
	}
	if got := strings.Join(cfg.Download.Extensions, ","); got != "png,jpg" {
		t.Fatalf("expected normalized extensions, got %s", got)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("expected lowercased format, got %q", cfg.Logging.Format)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	path := filepath.Join(tempHome, "galleryd.toml")
	content := "[remote]\nbase_url = \"https://file.example.com\"\n[notifications]\nntfy_topic = \"https://ntfy.sh/file\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("GALLERYD_NTFY_TOPIC", "https://ntfy.sh/env")
	t.Setenv("GALLERYD_IO_WORKERS", "4")

	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Notifications.NtfyTopic != "https://ntfy.sh/env" {
		t.Fatalf("expected env topic, got %q", cfg.Notifications.NtfyTopic)
	}
	if cfg.Download.IOWorkers != 4 {
		t.Fatalf("expected env io workers, got %d", cfg.Download.IOWorkers)
	}
	if cfg.Remote.BaseURL != "https://file.example.com" {
		t.Fatalf("expected file base url to survive, got %q", cfg.Remote.BaseURL)
	}
}

func TestDotEnvNextToConfigIsLoaded(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	dir := t.TempDir()
	path := filepath.Join(dir, "galleryd.toml")
	if err := os.WriteFile(path, []byte("[logging]\nlevel = \"debug\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("GALLERYD_REMOTE_BASE_URL=https://dotenv.example.com\n"), 0o644); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Setenv("GALLERYD_REMOTE_BASE_URL", "")
	os.Unsetenv("GALLERYD_REMOTE_BASE_URL")

	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Remote.BaseURL != "https://dotenv.example.com" {
		t.Fatalf("expected base url from .env, got %q", cfg.Remote.BaseURL)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	base := func() config.Config {
		cfg := config.Default()
		cfg.Remote.BaseURL = "https://api.example.com"
		cfg.Remote.ImageBaseURL = "https://api.example.com"
		return cfg
	}
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"scheme", func(c *config.Config) { c.Remote.BaseURL = "ftp://api.example.com" }, "http or https"},
		{"backoff base", func(c *config.Config) { c.Scheduler.BackoffBase = 1 }, "scheduler.backoff_base"},
		{"backoff max", func(c *config.Config) { c.Scheduler.BackoffMax = 20 }, "scheduler.backoff_max"},
		{"io workers", func(c *config.Config) { c.Download.IOWorkers = 0 }, "download.io_workers"},
		{"log format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"extensions", func(c *config.Config) { c.Download.Extensions = nil }, "download.extensions"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected validation error containing %q", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected %q in %v", tt.want, err)
			}
		})
	}
}

func TestCreateSampleIsLoadable(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("GALLERYD_REMOTE_BASE_URL", "https://api.example.com")
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load sample failed: %v", err)
	}
	if !exists {
		t.Fatal("expected sample to exist")
	}
	if cfg.Scheduler.BackoffMax != 18000 {
		t.Fatalf("unexpected sample backoff max: %d", cfg.Scheduler.BackoffMax)
	}
}

func TestEnsureDirectoriesCreatesPaths(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DownloadDir = filepath.Join(base, "downloads")
	cfg.Paths.StateDir = filepath.Join(base, "state")
	cfg.Paths.LogDir = filepath.Join(base, "state", "logs")
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.DownloadDir, cfg.Paths.StateDir, cfg.Paths.LogDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s: %v", dir, err)
		}
	}
}
