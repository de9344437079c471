package main

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"galleryd/internal/api"
	"galleryd/internal/config"
	"galleryd/internal/preflight"
	"galleryd/internal/queue"
)

// statusReport is the --json shape of the status command.
type statusReport struct {
	Daemon    *api.DaemonStatus  `json:"daemon"`
	Readiness []preflight.Result `json:"readiness,omitempty"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var checks bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, job and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			status, err := client.Status(cmd.Context())
			if err != nil && !errors.Is(err, api.ErrUnavailable) {
				return err
			}
			offline := err != nil
			var store *queue.Store
			if offline {
				store, err = queue.Open(cfg)
				if err != nil {
					return err
				}
				defer store.Close()
				status, err = offlineStatus(cmd, cfg, store)
				if err != nil {
					return err
				}
			}

			report := statusReport{Daemon: status}
			if checks {
				var db preflight.HealthChecker
				if store != nil {
					db = store
				}
				report.Readiness = preflight.RunAll(cmd.Context(), cfg, db)
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, report)
			}
			out := cmd.OutOrStdout()
			printStatus(out, status)
			if checks {
				printReadiness(out, report.Readiness)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&checks, "check", false, "Also run readiness checks against paths, remote host and export bucket")
	return cmd
}

func offlineStatus(cmd *cobra.Command, cfg *config.Config, store *queue.Store) (*api.DaemonStatus, error) {
	stats, err := api.NewQueueService(store).Stats(cmd.Context())
	if err != nil {
		return nil, err
	}
	return &api.DaemonStatus{
		QueueDBPath:  store.Path(),
		LockFilePath: cfg.LockPath(),
		DownloadDir:  cfg.Paths.DownloadDir,
		QueueStats:   stats,
	}, nil
}

func printStatus(out io.Writer, status *api.DaemonStatus) {
	if status.Running {
		fmt.Fprintf(out, "Daemon:    running (pid %d)\n", status.PID)
		fmt.Fprintf(out, "In memory: %d\n", status.InMemory)
	} else {
		fmt.Fprintln(out, "Daemon:    not running")
	}
	fmt.Fprintf(out, "Queue DB:  %s\n", status.QueueDBPath)
	if pc := status.PageCache; pc != nil {
		fmt.Fprintf(out, "Cache:     %d pages, %s of %s\n", pc.Entries, formatBytes(pc.Bytes), formatBytes(pc.Limit))
	}
	fmt.Fprintf(out, "Downloads: %s\n\n", status.DownloadDir)

	fmt.Fprint(out, renderTable(out, []string{"Status", "Count"}, buildQueueStatusRows(status.QueueStats), []columnAlignment{alignLeft, alignRight}))

	if len(status.Jobs) == 0 {
		return
	}
	rows := make([][]string, 0, len(status.Jobs))
	for _, job := range status.Jobs {
		rows = append(rows, []string{
			job.Name,
			job.State,
			strconv.Itoa(job.Attempts),
			valueOrDash(job.LastResult),
			formatAge(job.LastRun),
			formatAge(job.NextRun),
		})
	}
	fmt.Fprintln(out)
	fmt.Fprint(out, renderTable(out,
		[]string{"Job", "State", "Attempts", "Last Result", "Last Run", "Next Run"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft, alignLeft},
	))
}

func printReadiness(out io.Writer, results []preflight.Result) {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		state := "ok"
		if !r.Passed {
			state = "FAIL"
		}
		rows = append(rows, []string{r.Name, state, r.Detail})
	}
	fmt.Fprintln(out)
	fmt.Fprint(out, renderTable(out, []string{"Check", "State", "Detail"}, rows, []columnAlignment{alignLeft, alignLeft, alignLeft}))
}

// buildQueueStatusRows lists statuses in lifecycle order, then any unknown
// keys alphabetically.
func buildQueueStatusRows(stats map[string]int) [][]string {
	rows := make([][]string, 0, len(stats))
	seen := make(map[string]bool, len(stats))
	for _, status := range queue.AllStatuses() {
		key := string(status)
		seen[key] = true
		rows = append(rows, []string{key, strconv.Itoa(stats[key])})
	}
	var extra []string
	for key := range stats {
		if !seen[key] {
			extra = append(extra, key)
		}
	}
	sort.Strings(extra)
	for _, key := range extra {
		rows = append(rows, []string{key, strconv.Itoa(stats[key])})
	}
	return rows
}

func valueOrDash(value string) string {
	if value == "" {
		return "-"
	}
	return value
}
