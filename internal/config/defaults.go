package config

const (
	defaultConfigPath            = "~/.config/galleryd/config.toml"
	defaultDownloadDir           = "~/Downloads/galleryd"
	defaultStateDir              = "~/.local/share/galleryd"
	defaultLogDir                = "~/.local/share/galleryd/logs"
	defaultAPIBind               = "127.0.0.1:7497"
	defaultUserAgent             = "galleryd/0.1.0"
	defaultRequestTimeout        = 30
	defaultMetadataPollPauseMS   = 100
	defaultIOWorkers             = 2
	defaultPageCacheMB           = 256
	defaultBackoffBase           = 30
	defaultBackoffMax            = 5 * 60 * 60
	defaultWakeInterval          = 15 * 60
	defaultNotifyRequestTimeout  = 10
	defaultNotifyMaxActive       = 25
	defaultExportMinFreeMB       = 512
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
	minimumBackoffBase           = 10
	maximumMetadataPollPauseMS   = 10_000
	defaultExportBucketDirectory = "exports"
)

// DefaultExtensions lists the page file extensions tried, in order, when the
// remote extension hint is missing or wrong.
var DefaultExtensions = []string{"jpg", "png", "webp", "gif"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DownloadDir: defaultDownloadDir,
			StateDir:    defaultStateDir,
			LogDir:      defaultLogDir,
			APIBind:     defaultAPIBind,
		},
		Remote: Remote{
			UserAgent:      defaultUserAgent,
			RequestTimeout: defaultRequestTimeout,
		},
		Download: Download{
			Extensions:          append([]string(nil), DefaultExtensions...),
			MetadataPollPauseMS: defaultMetadataPollPauseMS,
			IOWorkers:           defaultIOWorkers,
			PageCacheMB:         defaultPageCacheMB,
		},
		Scheduler: Scheduler{
			BackoffBase:    defaultBackoffBase,
			BackoffMax:     defaultBackoffMax,
			RequireNetwork: true,
			NetworkMonitor: true,
			WakeInterval:   defaultWakeInterval,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Progress:       true,
			Completed:      true,
			Errors:         true,
			MaxActive:      defaultNotifyMaxActive,
		},
		Export: Export{
			MinFreeMB: defaultExportMinFreeMB,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
