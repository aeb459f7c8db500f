package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"inkvoice/internal/api"
	"inkvoice/internal/queue"
)

func newShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <chapter-id>",
		Short: "Show narration and audio status for a chapter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			chapterID := args[0]
			return ctx.withStore(func(store *queue.Store) error {
				narration, err := api.NewNarrationService(store).Status(cmd.Context(), chapterID)
				if err != nil {
					return err
				}
				audio, err := api.NewAssemblyService(store).Status(cmd.Context(), chapterID)
				if err != nil {
					return err
				}

				stdout := cmd.OutOrStdout()
				colorize := shouldColorize(stdout)

				for _, line := range renderSectionHeader("Narration", colorize) {
					fmt.Fprintln(stdout, line)
				}
				renderJobState(stdout, narration.State, narration.JobID, narration.Progress, narration.FailedReason, colorize)
				fmt.Fprintln(stdout)

				for _, line := range renderSectionHeader("Audio", colorize) {
					fmt.Fprintln(stdout, line)
				}
				renderJobState(stdout, audio.State, audio.JobID, audio.Progress, audio.FailedReason, colorize)

				if audio.Result != nil && len(audio.Result.Variants) > 0 {
					fmt.Fprintln(stdout)
					table := renderTable(
						[]string{"Bitrate", "Duration", "Size", "Path"},
						buildVariantRows(audio.Result.Variants),
						[]columnAlignment{alignRight, alignRight, alignRight, alignLeft},
					)
					fmt.Fprintln(stdout, table)
				}
				return nil
			})
		},
	}
}

func renderJobState(out io.Writer, state string, jobID int64, progress *api.Progress, failedReason string, colorize bool) {
	kind := statusKindForState(state)
	detail := state
	if jobID > 0 {
		detail = fmt.Sprintf("%s (job %d)", state, jobID)
	}
	fmt.Fprintln(out, renderStatusLine("State", kind, detail, colorize))
	if progress != nil {
		message := fmt.Sprintf("%.0f%% %s", progress.Percent, progress.Stage)
		if progress.Total > 0 {
			message = fmt.Sprintf("%s (%d/%d)", message, progress.Current, progress.Total)
		}
		if progress.Message != "" {
			message += " - " + progress.Message
		}
		fmt.Fprintln(out, renderStatusLine("Progress", statusInfo, message, colorize))
	}
	if failedReason != "" {
		fmt.Fprintln(out, renderStatusLine("Reason", statusError, failedReason, colorize))
	}
}

func statusKindForState(state string) statusKind {
	switch state {
	case string(queue.StatusCompleted):
		return statusOK
	case string(queue.StatusFailed):
		return statusError
	case string(queue.StatusCancelled), string(queue.StatusPaused):
		return statusWarn
	default:
		return statusInfo
	}
}

func buildVariantRows(variants []api.AudioVariant) [][]string {
	rows := make([][]string, 0, len(variants))
	for _, variant := range variants {
		rows = append(rows, []string{
			strconv.Itoa(variant.BitrateKbps) + " kbps",
			formatDuration(variant.DurationSeconds),
			formatByteSize(variant.SizeBytes),
			variant.Path,
		})
	}
	return rows
}

func formatDuration(seconds int64) string {
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	}
	return fmt.Sprintf("%dm%02ds", seconds/60, seconds%60)
}

func formatByteSize(size int64) string {
	switch {
	case size >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(size)/float64(1<<20))
	case size >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(size)/float64(1<<10))
	default:
		return fmt.Sprintf("%d B", size)
	}
}
