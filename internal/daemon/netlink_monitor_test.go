package daemon

import (
	"context"
	"testing"

	"github.com/pilebones/go-udev/netlink"

	"galleryd/internal/config"
)

func TestNewNetlinkMonitor(t *testing.T) {
	t.Run("nil config returns nil", func(t *testing.T) {
		if m := newNetlinkMonitor(nil, nil, nil); m != nil {
			t.Error("expected nil monitor for nil config")
		}
	})

	t.Run("disabled monitor returns nil", func(t *testing.T) {
		cfg := &config.Config{}
		if m := newNetlinkMonitor(cfg, nil, nil); m != nil {
			t.Error("expected nil monitor when disabled")
		}
	})

	t.Run("nil monitor run is a no-op", func(t *testing.T) {
		var m *netlinkMonitor
		if err := m.Run(context.Background()); err != nil {
			t.Fatalf("Run: %v", err)
		}
	})
}

func TestBuildMatcher(t *testing.T) {
	cfg := &config.Config{}
	cfg.Scheduler.NetworkMonitor = true
	m := newNetlinkMonitor(cfg, nil, nil)
	matcher := m.buildMatcher()

	for _, action := range []netlink.KObjAction{netlink.ADD, netlink.CHANGE, netlink.MOVE} {
		event := netlink.UEvent{Action: action, Env: map[string]string{"SUBSYSTEM": "net", "INTERFACE": "eth0"}}
		if !matcher.Evaluate(event) {
			t.Errorf("expected matcher to accept %s", action)
		}
	}
	if matcher.Evaluate(netlink.UEvent{Action: netlink.REMOVE, Env: map[string]string{"SUBSYSTEM": "net"}}) {
		t.Error("expected matcher to reject REMOVE action")
	}
	if matcher.Evaluate(netlink.UEvent{Action: netlink.CHANGE, Env: map[string]string{"SUBSYSTEM": "block"}}) {
		t.Error("expected matcher to reject block events")
	}
}

func TestHandleEvent(t *testing.T) {
	cfg := &config.Config{}
	cfg.Scheduler.NetworkMonitor = true
	var got []string
	m := newNetlinkMonitor(cfg, nil, func(iface string) { got = append(got, iface) })

	m.handleEvent(netlink.UEvent{Action: netlink.CHANGE, Env: map[string]string{"SUBSYSTEM": "net", "INTERFACE": "wlan0"}})
	m.handleEvent(netlink.UEvent{Action: netlink.CHANGE, Env: map[string]string{"SUBSYSTEM": "net", "INTERFACE": "lo"}})
	m.handleEvent(netlink.UEvent{Action: netlink.ADD, Env: map[string]string{"SUBSYSTEM": "net"}})

	if len(got) != 1 || got[0] != "wlan0" {
		t.Fatalf("unexpected callbacks: %v", got)
	}
}
