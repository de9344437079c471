// Package notifications delivers download events via pluggable sinks.
//
// NewService always logs events and publishes to ntfy when a topic is
// configured, honoring the per-event toggles in config.toml. The active cap
// keeps at most notifications.max_active galleries with live progress
// notifications. Terminal renders progress bars for foreground CLI runs.
// Callers depend only on the Service interface and never fail a download
// because a notification could not be delivered.
package notifications
