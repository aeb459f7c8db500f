package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"inkvoice/internal/deps"
	"inkvoice/internal/queue"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show system and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)

			for _, line := range renderSectionHeader("System Status", colorize) {
				fmt.Fprintln(stdout, line)
			}
			if daemonRunning(cfg.Paths.LogDir) {
				fmt.Fprintln(stdout, renderStatusLine("Daemon", statusOK, "running", colorize))
			} else {
				fmt.Fprintln(stdout, renderStatusLine("Daemon", statusWarn, "not running", colorize))
			}
			fmt.Fprintln(stdout, renderStatusLine("Queue enabled", statusInfo, yesNo(cfg.Workflow.QueueEnabled), colorize))
			fmt.Fprintln(stdout, renderStatusLine("API bind", statusInfo, cfg.Paths.APIBind, colorize))
			fmt.Fprintln(stdout)

			for _, line := range renderSectionHeader("Dependencies", colorize) {
				fmt.Fprintln(stdout, line)
			}
			for _, status := range deps.CheckBinaries(deps.Requirements(cfg)) {
				kind := statusOK
				detail := status.Command
				if !status.Available {
					kind = statusError
					detail = status.Detail
				}
				fmt.Fprintln(stdout, renderStatusLine(status.Name, kind, detail, colorize))
			}
			fmt.Fprintln(stdout)

			for _, line := range renderSectionHeader("Paths", colorize) {
				fmt.Fprintln(stdout, line)
			}
			renderPathLine(stdout, "Staging", cfg.Paths.StagingDir, colorize)
			renderPathLine(stdout, "Output", cfg.Paths.OutputDir, colorize)
			renderPathLine(stdout, "Logs", cfg.Paths.LogDir, colorize)
			renderPathLine(stdout, "Preview cache", cfg.Paths.PreviewCacheDir, colorize)
			fmt.Fprintln(stdout)

			for _, line := range renderSectionHeader("Queue Status", colorize) {
				fmt.Fprintln(stdout, line)
			}
			return ctx.withStore(func(store *queue.Store) error {
				if db, err := store.CheckHealth(cmd.Context()); err != nil {
					fmt.Fprintln(stdout, renderStatusLine("Database", statusError, err.Error(), colorize))
				} else if !db.IntegrityCheck {
					fmt.Fprintln(stdout, renderStatusLine("Database", statusError, "integrity check failed", colorize))
				} else {
					fmt.Fprintln(stdout, renderStatusLine("Database", statusOK, fmt.Sprintf("%d jobs recorded", db.TotalJobs), colorize))
				}
				stats, err := store.Stats(cmd.Context())
				if err != nil {
					return err
				}
				rows := buildQueueStatusRows(stats)
				if len(rows) == 0 {
					fmt.Fprintln(stdout, "Queue is empty")
					return nil
				}
				table := renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight})
				fmt.Fprintln(stdout, table)
				return nil
			})
		},
	}
}

// daemonRunning probes the daemon's advisory lock. A held lock means a live
// daemon process owns it.
func daemonRunning(logDir string) bool {
	lock := flock.New(filepath.Join(logDir, "inkvoice.lock"))
	acquired, err := lock.TryLock()
	if err != nil {
		return false
	}
	if acquired {
		_ = lock.Unlock()
		return false
	}
	return true
}

func renderPathLine(out io.Writer, label, path string, colorize bool) {
	if path == "" {
		fmt.Fprintln(out, renderStatusLine(label, statusWarn, "not configured", colorize))
		return
	}
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintln(out, renderStatusLine(label, statusError, path+" (missing)", colorize))
		return
	}
	fmt.Fprintln(out, renderStatusLine(label, statusOK, path, colorize))
}
