package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DownloadDir string `toml:"download_dir"`
	StateDir    string `toml:"state_dir"`
	LogDir      string `toml:"log_dir"`
	APIBind     string `toml:"api_bind"`
	APIToken    string `toml:"api_token"`
}

// Remote describes the gallery host the transport talks to.
type Remote struct {
	BaseURL        string `toml:"base_url"`
	ImageBaseURL   string `toml:"image_base_url"`
	UserAgent      string `toml:"user_agent"`
	Cookie         string `toml:"cookie"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Download contains knobs for the gallery downloader and page fetch queue.
type Download struct {
	Extensions          []string `toml:"extensions"`
	MetadataPollPauseMS int      `toml:"metadata_poll_pause_ms"`
	IOWorkers           int      `toml:"io_workers"`
	PageCacheMB         int      `toml:"page_cache_mb"`
}

// Scheduler contains job backoff and constraint settings.
type Scheduler struct {
	BackoffBase      int    `toml:"backoff_base"`
	BackoffMax       int    `toml:"backoff_max"`
	RequireNetwork   bool   `toml:"require_network"`
	NetworkMonitor   bool   `toml:"network_monitor"`
	WakeInterval     int    `toml:"wake_interval"`
	NetworkCheckHost string `toml:"network_check_host"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Progress       bool   `toml:"progress"`
	Completed      bool   `toml:"completed"`
	Errors         bool   `toml:"errors"`
	MaxActive      int    `toml:"max_active"`
}

// Export contains configuration for ZIP exports.
type Export struct {
	BucketURL string `toml:"bucket_url"`
	MinFreeMB int    `toml:"min_free_mb"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for galleryd.
//
// Configuration sections by subsystem:
//   - Paths: download, state and log directories plus the API bind address
//   - Remote: gallery host endpoints and request settings
//   - Download: extension candidates, metadata polling, IO pool size
//   - Scheduler: job backoff and network wake settings
//   - Notifications: ntfy push notification settings
//   - Export: ZIP export destination and free space floor
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Remote        Remote        `toml:"remote"`
	Download      Download      `toml:"download"`
	Scheduler     Scheduler     `toml:"scheduler"`
	Notifications Notifications `toml:"notifications"`
	Export        Export        `toml:"export"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. Values from a .env
// file and GALLERYD_* environment variables override the file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := loadDotEnv(filepath.Dir(resolvedPath)); err != nil {
		return nil, "", false, err
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("galleryd.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DownloadDir, c.Paths.StateDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if err := checkWritable(c.Paths.DownloadDir); err != nil {
		return fmt.Errorf("paths.download_dir: %w", err)
	}
	return nil
}

// PageCacheDir returns where pages fetched for viewing are cached.
func (c *Config) PageCacheDir() string {
	return filepath.Join(c.Paths.StateDir, "pagecache")
}

// QueueDBPath returns the SQLite queue database location.
func (c *Config) QueueDBPath() string {
	return filepath.Join(c.Paths.StateDir, "queue.db")
}

// LockPath returns the daemon single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "galleryd.lock")
}

// RequestTimeout returns the remote request timeout as a duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Remote.RequestTimeout) * time.Second
}

// MetadataPollPause returns the pause between metadata drain iterations.
func (c *Config) MetadataPollPause() time.Duration {
	return time.Duration(c.Download.MetadataPollPauseMS) * time.Millisecond
}

// BackoffBase returns the initial scheduler retry delay.
func (c *Config) BackoffBase() time.Duration {
	return time.Duration(c.Scheduler.BackoffBase) * time.Second
}

// BackoffMax returns the scheduler retry delay ceiling.
func (c *Config) BackoffMax() time.Duration {
	return time.Duration(c.Scheduler.BackoffMax) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
