package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"galleryd/internal/daemonctl"
)

const (
	startTimeout = 15 * time.Second
	stopGrace    = 20 * time.Second
)

func newStartCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the daemon in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := ensureDaemon(cmd, ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if res.State == daemonctl.StartStateAlreadyRunning {
				fmt.Fprintf(out, "Daemon already running (pid %d)\n", res.PID)
				return nil
			}
			fmt.Fprintf(out, "Daemon started (pid %d)\n", res.PID)
			return nil
		},
	}
}

func newStopCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the background daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			res, err := daemonctl.Stop(cmd.Context(), client, daemonctl.KillProcess, stopGrace)
			out := cmd.OutOrStdout()
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(out, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if res.Forced {
				fmt.Fprintf(out, "Daemon killed (pid %d) after %s\n", res.PID, stopGrace)
				return nil
			}
			fmt.Fprintf(out, "Daemon stopped (pid %d)\n", res.PID)
			return nil
		},
	}
}

func newRestartCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "restart",
		Short: "Restart the background daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			if _, err := daemonctl.Stop(cmd.Context(), client, daemonctl.KillProcess, stopGrace); err != nil &&
				!errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				return err
			}
			res, err := ensureDaemon(cmd, ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Daemon restarted (pid %d)\n", res.PID)
			return nil
		},
	}
}

func ensureDaemon(cmd *cobra.Command, ctx *commandContext) (daemonctl.StartResult, error) {
	client, err := ctx.apiClient()
	if err != nil {
		return daemonctl.StartResult{}, err
	}
	executable, err := os.Executable()
	if err != nil {
		return daemonctl.StartResult{}, fmt.Errorf("resolve executable: %w", err)
	}
	var configPath string
	if ctx.configFlag != nil {
		configPath = strings.TrimSpace(*ctx.configFlag)
	}
	launch := func() error {
		return daemonctl.Launch(executable, daemonctl.LaunchOptions{ConfigPath: configPath})
	}
	return daemonctl.EnsureStarted(cmd.Context(), client, launch, startTimeout)
}
