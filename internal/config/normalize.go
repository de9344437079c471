package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeRemote()
	c.normalizeDownload()
	c.normalizeScheduler()
	c.normalizeNotifications()
	if err := c.normalizeExport(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DownloadDir) == "" {
		c.Paths.DownloadDir = defaultDownloadDir
	}
	if c.Paths.DownloadDir, err = expandPath(c.Paths.DownloadDir); err != nil {
		return fmt.Errorf("paths.download_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = filepath.Join(c.Paths.StateDir, "logs")
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	return nil
}

func (c *Config) normalizeRemote() {
	c.Remote.BaseURL = strings.TrimRight(strings.TrimSpace(c.Remote.BaseURL), "/")
	c.Remote.ImageBaseURL = strings.TrimRight(strings.TrimSpace(c.Remote.ImageBaseURL), "/")
	if c.Remote.ImageBaseURL == "" {
		c.Remote.ImageBaseURL = c.Remote.BaseURL
	}
	c.Remote.UserAgent = strings.TrimSpace(c.Remote.UserAgent)
	if c.Remote.UserAgent == "" {
		c.Remote.UserAgent = defaultUserAgent
	}
	c.Remote.Cookie = strings.TrimSpace(c.Remote.Cookie)
	if c.Remote.RequestTimeout <= 0 {
		c.Remote.RequestTimeout = defaultRequestTimeout
	}
}

func (c *Config) normalizeDownload() {
	c.Download.Extensions = NormalizeExtensions(c.Download.Extensions)
	if len(c.Download.Extensions) == 0 {
		c.Download.Extensions = append([]string(nil), DefaultExtensions...)
	}
	if c.Download.MetadataPollPauseMS <= 0 {
		c.Download.MetadataPollPauseMS = defaultMetadataPollPauseMS
	}
	if c.Download.IOWorkers <= 0 {
		c.Download.IOWorkers = defaultIOWorkers
	}
}

// NormalizeExtensions lowercases, strips leading dots, and removes blanks and
// duplicates while preserving order.
func NormalizeExtensions(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		ext := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(value), "."))
		if ext == "" {
			continue
		}
		if _, ok := seen[ext]; ok {
			continue
		}
		seen[ext] = struct{}{}
		out = append(out, ext)
	}
	return out
}

func (c *Config) normalizeScheduler() {
	if c.Scheduler.BackoffBase <= 0 {
		c.Scheduler.BackoffBase = defaultBackoffBase
	}
	if c.Scheduler.BackoffMax <= 0 {
		c.Scheduler.BackoffMax = defaultBackoffMax
	}
	if c.Scheduler.WakeInterval < 0 {
		c.Scheduler.WakeInterval = 0
	}
	c.Scheduler.NetworkCheckHost = strings.TrimSpace(c.Scheduler.NetworkCheckHost)
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
	if c.Notifications.MaxActive <= 0 {
		c.Notifications.MaxActive = defaultNotifyMaxActive
	}
}

func (c *Config) normalizeExport() error {
	c.Export.BucketURL = strings.TrimSpace(c.Export.BucketURL)
	if c.Export.BucketURL == "" {
		c.Export.BucketURL = "file://" + filepath.ToSlash(filepath.Join(c.Paths.StateDir, defaultExportBucketDirectory))
	}
	if c.Export.MinFreeMB < 0 {
		c.Export.MinFreeMB = 0
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
