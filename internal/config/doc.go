// Package config loads, normalizes, and validates galleryd configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and applies .env and GALLERYD_* environment
// overrides. The Config type centralizes every knob the daemon and CLI need,
// so the download directory, remote endpoints, and scheduler backoff are
// discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
