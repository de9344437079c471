package daemon

import (
	"context"
	"log/slog"

	"github.com/pilebones/go-udev/netlink"

	"galleryd/internal/config"
	"galleryd/internal/logging"
)

// netlinkMonitor listens for udev netlink events on network interfaces and
// calls onChange so jobs waiting on connectivity re-check right away instead
// of at the next constraint poll.
type netlinkMonitor struct {
	logger   *slog.Logger
	onChange func(iface string)
}

// newNetlinkMonitor returns nil when the monitor is disabled in cfg.
func newNetlinkMonitor(cfg *config.Config, logger *slog.Logger, onChange func(iface string)) *netlinkMonitor {
	if cfg == nil || !cfg.Scheduler.NetworkMonitor {
		return nil
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &netlinkMonitor{
		logger:   logging.NewComponentLogger(logger, "netlink-monitor"),
		onChange: onChange,
	}
}

// Run blocks until ctx is done. A socket that cannot be opened is logged and
// treated as a disabled monitor.
func (m *netlinkMonitor) Run(ctx context.Context) error {
	if m == nil {
		return nil
	}
	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		m.logger.Warn("failed to connect to netlink socket; network changes rely on polling",
			logging.Error(err),
			logging.String(logging.FieldEventType, "netlink_connect_failed"),
			logging.String(logging.FieldErrorHint, "ensure the daemon has permission to access netlink sockets"),
			logging.String(logging.FieldImpact, "downloads resume on the next constraint poll"),
		)
		return nil
	}
	defer conn.Close()

	events := make(chan netlink.UEvent)
	errs := make(chan error)
	quit := conn.Monitor(events, errs, m.buildMatcher())
	defer close(quit)

	m.logger.Info("netlink monitor started", logging.String(logging.FieldEventType, "netlink_monitor_started"))
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("netlink monitor stopped", logging.String(logging.FieldEventType, "netlink_monitor_stopped"))
			return nil
		case event := <-events:
			m.handleEvent(event)
		case err := <-errs:
			m.logger.Warn("netlink monitor error",
				logging.Error(err),
				logging.String(logging.FieldEventType, "netlink_monitor_error"),
				logging.String(logging.FieldErrorHint, "check kernel netlink subsystem"),
				logging.String(logging.FieldImpact, "network changes may be missed"),
			)
		}
	}
}

// buildMatcher matches SUBSYSTEM=net with ACTION add, change or move.
func (m *netlinkMonitor) buildMatcher() netlink.Matcher {
	action := "add|change|move"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": "net",
		},
	})
	return rules
}

func (m *netlinkMonitor) handleEvent(event netlink.UEvent) {
	iface := event.Env["INTERFACE"]
	if iface == "" || iface == "lo" {
		return
	}
	m.logger.Info("network interface changed",
		logging.String(logging.FieldEventType, "netlink_network_changed"),
		logging.String("interface", iface),
		logging.String("action", string(event.Action)),
	)
	if m.onChange != nil {
		m.onChange(iface)
	}
}
