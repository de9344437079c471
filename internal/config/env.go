package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"golang.org/x/sys/unix"
)

// EnvPrefix is prepended to every environment override, e.g. GALLERYD_DOWNLOAD_DIR.
const EnvPrefix = "GALLERYD"

// envOverrides lists the settings that may be supplied through the
// environment. Empty values leave the file configuration untouched.
type envOverrides struct {
	DownloadDir  string `envconfig:"DOWNLOAD_DIR"`
	StateDir     string `envconfig:"STATE_DIR"`
	LogDir       string `envconfig:"LOG_DIR"`
	APIBind      string `envconfig:"API_BIND"`
	APIToken     string `envconfig:"API_TOKEN"`
	BaseURL      string `envconfig:"REMOTE_BASE_URL"`
	ImageBaseURL string `envconfig:"REMOTE_IMAGE_BASE_URL"`
	UserAgent    string `envconfig:"USER_AGENT"`
	Cookie       string `envconfig:"COOKIE"`
	NtfyTopic    string `envconfig:"NTFY_TOPIC"`
	ExportBucket string `envconfig:"EXPORT_BUCKET_URL"`
	LogLevel     string `envconfig:"LOG_LEVEL"`
	LogFormat    string `envconfig:"LOG_FORMAT"`
	IOWorkers    int    `envconfig:"IO_WORKERS"`
}

// loadDotEnv reads .env from the working directory and from the directory
// holding the config file. Variables already present in the process
// environment win.
func loadDotEnv(configDir string) error {
	candidates := []string{".env"}
	if configDir != "" {
		candidates = append(candidates, filepath.Join(configDir, ".env"))
	}
	for _, path := range candidates {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

func (c *Config) applyEnv() error {
	var env envOverrides
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return fmt.Errorf("process environment overrides: %w", err)
	}
	setString(&c.Paths.DownloadDir, env.DownloadDir)
	setString(&c.Paths.StateDir, env.StateDir)
	setString(&c.Paths.LogDir, env.LogDir)
	setString(&c.Paths.APIBind, env.APIBind)
	setString(&c.Paths.APIToken, env.APIToken)
	setString(&c.Remote.BaseURL, env.BaseURL)
	setString(&c.Remote.ImageBaseURL, env.ImageBaseURL)
	setString(&c.Remote.UserAgent, env.UserAgent)
	setString(&c.Remote.Cookie, env.Cookie)
	setString(&c.Notifications.NtfyTopic, env.NtfyTopic)
	setString(&c.Export.BucketURL, env.ExportBucket)
	setString(&c.Logging.Level, env.LogLevel)
	setString(&c.Logging.Format, env.LogFormat)
	if env.IOWorkers > 0 {
		c.Download.IOWorkers = env.IOWorkers
	}
	return nil
}

func setString(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}

func checkWritable(dir string) error {
	if err := unix.Access(dir, unix.W_OK|unix.X_OK); err != nil {
		return fmt.Errorf("directory %q is not writable: %w", dir, err)
	}
	return nil
}
