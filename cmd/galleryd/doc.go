// Package main hosts the galleryd CLI entrypoint and command graph.
//
// The Cobra-based command tree runs the daemon, translates terminal
// invocations into HTTP calls against it, and falls back to direct queue
// store access when no daemon answers. Foreground downloads and exports run
// in process with terminal progress bars.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
