package main

import (
	"fmt"
	"strconv"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"inkvoice/internal/queue"
)

var statusDisplayOrder = []queue.Status{
	queue.StatusWaiting,
	queue.StatusDelayed,
	queue.StatusPaused,
	queue.StatusActive,
	queue.StatusCompleted,
	queue.StatusFailed,
	queue.StatusCancelled,
}

var titleCaser = cases.Title(language.English)

func statusLabel(status queue.Status) string {
	return titleCaser.String(string(status))
}

func buildQueueStatusRows(stats map[queue.Status]int) [][]string {
	rows := make([][]string, 0, len(stats))
	for _, status := range statusDisplayOrder {
		count, ok := stats[status]
		if !ok || count == 0 {
			continue
		}
		rows = append(rows, []string{statusLabel(status), strconv.Itoa(count)})
	}
	return rows
}

func buildQueueListRows(jobs []*queue.Job) [][]string {
	rows := make([][]string, 0, len(jobs))
	for _, job := range jobs {
		rows = append(rows, []string{
			strconv.FormatInt(job.ID, 10),
			titleCaser.String(string(job.Kind)),
			job.ChapterID,
			statusLabel(job.Status),
			formatJobProgress(job),
			job.CreatedAt.Local().Format("2006-01-02 15:04"),
		})
	}
	return rows
}

func formatJobProgress(job *queue.Job) string {
	switch job.Status {
	case queue.StatusCompleted:
		return "100%"
	case queue.StatusWaiting, queue.StatusDelayed, queue.StatusPaused:
		return "-"
	}
	if job.TotalSpeechCount > 0 {
		return fmt.Sprintf("%.0f%% (%d/%d)", job.ProgressPercent, job.CurrentSpeechIndex, job.TotalSpeechCount)
	}
	if job.ProgressPercent > 0 {
		return fmt.Sprintf("%.0f%%", job.ProgressPercent)
	}
	return "-"
}
