// Package daemonctl starts and stops a detached galleryd daemon through its
// HTTP API and process signals.
package daemonctl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"galleryd/internal/api"
)

const pollInterval = 200 * time.Millisecond

// ErrDaemonNotRunning indicates the daemon API is unreachable.
var ErrDaemonNotRunning = errors.New("daemon is not running")

// StatusClient is the slice of the API client daemon control needs.
type StatusClient interface {
	Status(ctx context.Context) (*api.DaemonStatus, error)
}

// Signaler delivers a signal to a process.
type Signaler func(pid int, sig syscall.Signal) error

// KillProcess is the production Signaler.
func KillProcess(pid int, sig syscall.Signal) error {
	return unix.Kill(pid, sig)
}

// LaunchOptions controls how the detached daemon is started.
type LaunchOptions struct {
	ConfigPath string
}

// StartState describes what EnsureStarted did.
type StartState string

const (
	StartStateStarted        StartState = "started"
	StartStateAlreadyRunning StartState = "already_running"
)

// StartResult captures daemon start orchestration state.
type StartResult struct {
	State StartState
	PID   int
}

// StopResult captures daemon stop outcome.
type StopResult struct {
	PID    int
	Forced bool
}

// Launch starts "galleryd run" in its own session so it outlives the CLI.
func Launch(executablePath string, opts LaunchOptions) error {
	if strings.TrimSpace(executablePath) == "" {
		return fmt.Errorf("resolve executable: executable path is empty")
	}
	args := []string{"run"}
	if cfg := strings.TrimSpace(opts.ConfigPath); cfg != "" {
		args = append(args, "--config", cfg)
	}
	proc := exec.Command(executablePath, args...)
	proc.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := proc.Start(); err != nil {
		return fmt.Errorf("launch daemon: %w", err)
	}
	return proc.Process.Release()
}

// EnsureStarted returns the running daemon's status, launching one first
// when the API does not answer.
func EnsureStarted(ctx context.Context, client StatusClient, launch func() error, timeout time.Duration) (StartResult, error) {
	status, err := client.Status(ctx)
	if err == nil {
		return StartResult{State: StartStateAlreadyRunning, PID: status.PID}, nil
	}
	if !errors.Is(err, api.ErrUnavailable) {
		return StartResult{}, err
	}
	if err := launch(); err != nil {
		return StartResult{}, err
	}
	status, err = WaitForAPI(ctx, client, timeout)
	if err != nil {
		return StartResult{}, err
	}
	return StartResult{State: StartStateStarted, PID: status.PID}, nil
}

// WaitForAPI polls until the daemon answers or timeout passes.
func WaitForAPI(ctx context.Context, client StatusClient, timeout time.Duration) (*api.DaemonStatus, error) {
	var status *api.DaemonStatus
	var lastErr error
	err := poll(ctx, timeout, func() bool {
		status, lastErr = client.Status(ctx)
		return lastErr == nil && status != nil
	})
	if err != nil {
		if lastErr != nil {
			err = lastErr
		}
		return nil, fmt.Errorf("daemon failed to start: %w", err)
	}
	return status, nil
}

// WaitForShutdown polls until the API stops answering or timeout passes.
func WaitForShutdown(ctx context.Context, client StatusClient, timeout time.Duration) error {
	err := poll(ctx, timeout, func() bool {
		_, err := client.Status(ctx)
		return errors.Is(err, api.ErrUnavailable)
	})
	if err != nil {
		return fmt.Errorf("daemon did not stop: %w", err)
	}
	return nil
}

// Stop sends SIGTERM to the daemon and escalates to SIGKILL when it is still
// answering after grace.
func Stop(ctx context.Context, client StatusClient, signal Signaler, grace time.Duration) (StopResult, error) {
	status, err := client.Status(ctx)
	if errors.Is(err, api.ErrUnavailable) {
		return StopResult{}, ErrDaemonNotRunning
	}
	if err != nil {
		return StopResult{}, err
	}
	if status.PID <= 0 {
		return StopResult{}, fmt.Errorf("daemon reported no pid")
	}
	result := StopResult{PID: status.PID}
	if err := signal(status.PID, syscall.SIGTERM); err != nil {
		if errors.Is(err, unix.ESRCH) || errors.Is(err, os.ErrProcessDone) {
			return result, nil
		}
		return result, fmt.Errorf("signal daemon: %w", err)
	}
	if err := WaitForShutdown(ctx, client, grace); err == nil {
		return result, nil
	}
	result.Forced = true
	if err := signal(status.PID, syscall.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return result, fmt.Errorf("kill daemon: %w", err)
	}
	return result, WaitForShutdown(ctx, client, grace)
}

func poll(ctx context.Context, timeout time.Duration, done func() bool) error {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		if done() {
			return nil
		}
		if time.Now().After(deadline) {
			return errors.New("timed out")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
