package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateRemote(); err != nil {
		return err
	}
	if err := c.validateDownload(); err != nil {
		return err
	}
	if err := c.validateScheduler(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateRemote() error {
	if c.Remote.BaseURL == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = defaultConfigPath
		}
		return fmt.Errorf("remote.base_url is required. Set GALLERYD_REMOTE_BASE_URL or edit %s (create with 'galleryd config init')", defaultPath)
	}
	for key, raw := range map[string]string{
		"remote.base_url":       c.Remote.BaseURL,
		"remote.image_base_url": c.Remote.ImageBaseURL,
	} {
		parsed, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		if parsed.Scheme != "http" && parsed.Scheme != "https" {
			return fmt.Errorf("%s must use http or https, got %q", key, raw)
		}
		if parsed.Host == "" {
			return fmt.Errorf("%s must include a host", key)
		}
	}
	return nil
}

func (c *Config) validateDownload() error {
	if len(c.Download.Extensions) == 0 {
		return errors.New("download.extensions must list at least one extension")
	}
	if c.Download.PageCacheMB < 0 {
		return errors.New("download.page_cache_mb must not be negative")
	}
	if c.Download.MetadataPollPauseMS > maximumMetadataPollPauseMS {
		return fmt.Errorf("download.metadata_poll_pause_ms must be at most %d", maximumMetadataPollPauseMS)
	}
	return ensurePositiveMap(map[string]int{
		"download.io_workers":           c.Download.IOWorkers,
		"remote.request_timeout":        c.Remote.RequestTimeout,
		"notifications.request_timeout": c.Notifications.RequestTimeout,
		"notifications.max_active":      c.Notifications.MaxActive,
	})
}

func (c *Config) validateScheduler() error {
	if c.Scheduler.BackoffBase < minimumBackoffBase {
		return fmt.Errorf("scheduler.backoff_base must be at least %d seconds", minimumBackoffBase)
	}
	if c.Scheduler.BackoffMax < c.Scheduler.BackoffBase {
		return errors.New("scheduler.backoff_max must be greater than or equal to scheduler.backoff_base")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
