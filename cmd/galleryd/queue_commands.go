package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"galleryd/internal/api"
	"galleryd/internal/queueaccess"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the download queue",
	}

	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueShowCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))
	queueCmd.AddCommand(newQueueRemoveCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))

	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List downloads",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccess(cmd.Context(), func(access queueaccess.Access) error {
				items, err := access.List(cmd.Context(), statuses)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, api.QueueListResponse{Items: items})
				}
				out := cmd.OutOrStdout()
				if len(items) == 0 {
					fmt.Fprintln(out, "Queue is empty")
					return nil
				}
				fmt.Fprint(out, renderTable(out,
					[]string{"ID", "Title", "Status", "Pages", "Size", "Updated"},
					buildQueueListRows(items),
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Filter by status (repeatable)")
	return cmd
}

func buildQueueListRows(items []api.QueueItem) [][]string {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{
			strconv.FormatInt(item.ID, 10),
			valueOrDash(truncate(item.Title, 48)),
			item.Status,
			formatPages(item.Progress),
			formatBytes(item.BytesDownloaded),
			formatAge(item.UpdatedAt),
		})
	}
	return rows
}

func formatPages(p api.QueueProgress) string {
	if p.Total <= 0 {
		return "-"
	}
	return fmt.Sprintf("%d/%d", p.Pages, p.Total)
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit-1]) + "…"
}

func newQueueShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one download",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parsePositiveIDs(args)
			if err != nil {
				return err
			}
			return ctx.withAccess(cmd.Context(), func(access queueaccess.Access) error {
				item, err := access.Describe(cmd.Context(), ids[0])
				if err != nil {
					return err
				}
				if item == nil {
					return fmt.Errorf("gallery %d not found", ids[0])
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, item)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "ID:       %d\n", item.ID)
				fmt.Fprintf(out, "Title:    %s\n", valueOrDash(item.Title))
				fmt.Fprintf(out, "Status:   %s\n", item.Status)
				fmt.Fprintf(out, "Pages:    %s (%.0f%%)\n", formatPages(item.Progress), item.Progress.Percent)
				fmt.Fprintf(out, "Size:     %s\n", formatBytes(item.BytesDownloaded))
				if item.RangeStart > 0 || item.RangeEnd > 0 {
					fmt.Fprintf(out, "Range:    %d-%d\n", item.RangeStart, item.RangeEnd)
				}
				if item.ErrorMessage != "" {
					fmt.Fprintf(out, "Error:    %s\n", item.ErrorMessage)
				}
				fmt.Fprintf(out, "Created:  %s\n", formatAge(item.CreatedAt))
				fmt.Fprintf(out, "Updated:  %s\n", formatAge(item.UpdatedAt))
				return nil
			})
		},
	}
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	var completed, failed, all bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove finished downloads from the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			scope, err := clearScope(completed, failed, all)
			if err != nil {
				return err
			}
			return ctx.withAccess(cmd.Context(), func(access queueaccess.Access) error {
				count, err := access.Clear(cmd.Context(), scope)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, api.CountResponse{Count: count})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d %s\n", count, clearLabel(scope))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&completed, "completed", false, "Remove completed downloads (default)")
	cmd.Flags().BoolVar(&failed, "failed", false, "Remove failed downloads")
	cmd.Flags().BoolVar(&all, "all", false, "Remove every download, cancelling active ones")
	cmd.MarkFlagsMutuallyExclusive("completed", "failed", "all")
	return cmd
}

func clearScope(completed, failed, all bool) (string, error) {
	switch {
	case completed && (failed || all), failed && all:
		return "", errors.New("choose one of --completed, --failed or --all")
	case failed:
		return "failed", nil
	case all:
		return "all", nil
	default:
		return "completed", nil
	}
}

func clearLabel(scope string) string {
	switch scope {
	case "failed":
		return "failed downloads"
	case "all":
		return "downloads"
	default:
		return "completed downloads"
	}
}

func newQueueRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>...",
		Short: "Cancel and remove downloads; files on disk are kept",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parsePositiveIDs(args)
			if err != nil {
				return err
			}
			return ctx.withAccess(cmd.Context(), func(access queueaccess.Access) error {
				count, err := access.Remove(cmd.Context(), ids)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d of %d downloads\n", count, len(ids))
				return nil
			})
		},
	}
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <id>...",
		Short: "Re-queue failed downloads",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parsePositiveIDs(args)
			if err != nil {
				return err
			}
			return ctx.withAccess(cmd.Context(), func(access queueaccess.Access) error {
				count, err := access.Retry(cmd.Context(), ids)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Retrying %d of %d downloads\n", count, len(ids))
				if !access.Live() && count > 0 {
					fmt.Fprintln(out, "Daemon not running; they resume on its next start")
				}
				return nil
			})
		},
	}
}
