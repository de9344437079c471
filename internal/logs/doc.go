// Package logs reads the daemon log file for the CLI.
//
// Tail returns the last N lines (or everything after a saved offset) with
// bounded memory, and Follow keeps polling for appended lines until the
// context ends. Filter narrows lines to one gallery, component or minimum
// level and understands both the JSON and console handler formats written by
// package logging.
package logs
