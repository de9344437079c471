package daemonctl

import (
	"context"
	"errors"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"galleryd/internal/api"
)

// scriptedClient answers Status from a script; the last entry repeats.
type scriptedClient struct {
	mu     sync.Mutex
	script []error
	pid    int
	calls  int
}

func (c *scriptedClient) Status(context.Context) (*api.DaemonStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := min(c.calls, len(c.script)-1)
	c.calls++
	if err := c.script[idx]; err != nil {
		return nil, err
	}
	return &api.DaemonStatus{Running: true, PID: c.pid}, nil
}

func (c *scriptedClient) setScript(script ...error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.script = script
	c.calls = 0
}

func TestEnsureStartedAlreadyRunning(t *testing.T) {
	client := &scriptedClient{script: []error{nil}, pid: 42}
	launched := false

	res, err := EnsureStarted(context.Background(), client, func() error { launched = true; return nil }, time.Second)
	require.NoError(t, err)
	assert.Equal(t, StartStateAlreadyRunning, res.State)
	assert.Equal(t, 42, res.PID)
	assert.False(t, launched)
}

func TestEnsureStartedLaunchesAndWaits(t *testing.T) {
	client := &scriptedClient{script: []error{api.ErrUnavailable, api.ErrUnavailable, nil}, pid: 7}
	launched := 0

	res, err := EnsureStarted(context.Background(), client, func() error { launched++; return nil }, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, StartStateStarted, res.State)
	assert.Equal(t, 7, res.PID)
	assert.Equal(t, 1, launched)
}

func TestEnsureStartedTimesOut(t *testing.T) {
	client := &scriptedClient{script: []error{api.ErrUnavailable}}

	_, err := EnsureStarted(context.Background(), client, func() error { return nil }, 300*time.Millisecond)
	require.Error(t, err)
	assert.ErrorIs(t, err, api.ErrUnavailable)
}

func TestEnsureStartedPropagatesOtherErrors(t *testing.T) {
	boom := errors.New("unauthorized")
	client := &scriptedClient{script: []error{boom}}
	launched := false

	_, err := EnsureStarted(context.Background(), client, func() error { launched = true; return nil }, time.Second)
	assert.ErrorIs(t, err, boom)
	assert.False(t, launched)
}

func TestStopGraceful(t *testing.T) {
	client := &scriptedClient{script: []error{nil}, pid: 99}
	var sent []syscall.Signal
	signal := func(pid int, sig syscall.Signal) error {
		assert.Equal(t, 99, pid)
		sent = append(sent, sig)
		client.setScript(api.ErrUnavailable)
		return nil
	}

	res, err := Stop(context.Background(), client, signal, 2*time.Second)
	require.NoError(t, err)
	assert.False(t, res.Forced)
	assert.Equal(t, 99, res.PID)
	assert.Equal(t, []syscall.Signal{syscall.SIGTERM}, sent)
}

func TestStopEscalatesToKill(t *testing.T) {
	client := &scriptedClient{script: []error{nil}, pid: 99}
	var sent []syscall.Signal
	signal := func(_ int, sig syscall.Signal) error {
		sent = append(sent, sig)
		if sig == syscall.SIGKILL {
			client.setScript(api.ErrUnavailable)
		}
		return nil
	}

	res, err := Stop(context.Background(), client, signal, 300*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, res.Forced)
	assert.Equal(t, []syscall.Signal{syscall.SIGTERM, syscall.SIGKILL}, sent)
}

func TestStopWhenNotRunning(t *testing.T) {
	client := &scriptedClient{script: []error{api.ErrUnavailable}}

	_, err := Stop(context.Background(), client, func(int, syscall.Signal) error { return nil }, time.Second)
	assert.ErrorIs(t, err, ErrDaemonNotRunning)
}

func TestLaunchRequiresExecutable(t *testing.T) {
	require.Error(t, Launch(" ", LaunchOptions{}))
}
