package scheduler

import (
	"context"
	"net"
	"net/url"
	"time"

	"golang.org/x/sys/unix"

	"galleryd/internal/config"
)

// NetworkProbe reports whether the network is usable.
type NetworkProbe func(ctx context.Context) bool

// StorageProbe returns the bytes available to unprivileged users under path.
type StorageProbe func(path string) (uint64, error)

// FreeBytes is the StorageProbe backed by statfs.
func FreeBytes(path string) (uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, err
	}
	return st.Bavail * uint64(st.Bsize), nil
}

// DialProbe returns a NetworkProbe that opens a TCP connection to address.
func DialProbe(address string, timeout time.Duration) NetworkProbe {
	return func(ctx context.Context) bool {
		dialer := net.Dialer{Timeout: timeout}
		conn, err := dialer.DialContext(ctx, "tcp", address)
		if err != nil {
			return false
		}
		_ = conn.Close()
		return true
	}
}

// NetworkCheckAddress resolves the host:port probed for connectivity. The
// explicit scheduler setting wins; otherwise the remote API host is used.
func NetworkCheckAddress(cfg *config.Config) string {
	if cfg.Scheduler.NetworkCheckHost != "" {
		if _, _, err := net.SplitHostPort(cfg.Scheduler.NetworkCheckHost); err == nil {
			return cfg.Scheduler.NetworkCheckHost
		}
		return net.JoinHostPort(cfg.Scheduler.NetworkCheckHost, "443")
	}
	parsed, err := url.Parse(cfg.Remote.BaseURL)
	if err != nil || parsed.Hostname() == "" {
		return ""
	}
	port := parsed.Port()
	if port == "" {
		port = "443"
		if parsed.Scheme == "http" {
			port = "80"
		}
	}
	return net.JoinHostPort(parsed.Hostname(), port)
}
