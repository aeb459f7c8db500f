package main

import (
	"strings"
	"testing"
	"time"

	"inkvoice/internal/queue"
)

func TestRenderStatusLine(t *testing.T) {
	line := renderStatusLine("Daemon", statusOK, "running", false)
	requireContains(t, line, "Daemon:")
	requireContains(t, line, "[OK] running")
	if strings.Contains(line, ansiGreen) {
		t.Fatalf("expected no color codes, got %q", line)
	}

	colored := renderStatusLine("Daemon", statusError, "stopped", true)
	if !strings.HasPrefix(colored, ansiRed) || !strings.HasSuffix(colored, ansiReset) {
		t.Fatalf("expected red wrapping, got %q", colored)
	}
}

func TestRenderSectionHeader(t *testing.T) {
	lines := renderSectionHeader("Queue Status", false)
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if lines[0] != "== Queue Status ==" {
		t.Fatalf("unexpected header %q", lines[0])
	}
	if len(lines[1]) != len(lines[0]) {
		t.Fatalf("rule length %d does not match header length %d", len(lines[1]), len(lines[0]))
	}
}

func TestBuildQueueStatusRowsOrdersAndSkipsEmpty(t *testing.T) {
	rows := buildQueueStatusRows(map[queue.Status]int{
		queue.StatusFailed:    2,
		queue.StatusWaiting:   3,
		queue.StatusCompleted: 0,
	})
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0][0] != "Waiting" || rows[0][1] != "3" {
		t.Fatalf("unexpected first row %v", rows[0])
	}
	if rows[1][0] != "Failed" || rows[1][1] != "2" {
		t.Fatalf("unexpected second row %v", rows[1])
	}
}

func TestFormatJobProgress(t *testing.T) {
	now := time.Now().UTC()
	cases := []struct {
		name string
		job  queue.Job
		want string
	}{
		{
			name: "waiting",
			job:  queue.Job{Status: queue.StatusWaiting, CreatedAt: now},
			want: "-",
		},
		{
			name: "active with counts",
			job: queue.Job{
				Status:             queue.StatusActive,
				ProgressPercent:    40,
				CurrentSpeechIndex: 2,
				TotalSpeechCount:   5,
			},
			want: "40% (2/5)",
		},
		{
			name: "active percent only",
			job:  queue.Job{Status: queue.StatusActive, ProgressPercent: 75},
			want: "75%",
		},
		{
			name: "completed",
			job:  queue.Job{Status: queue.StatusCompleted},
			want: "100%",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := formatJobProgress(&tc.job); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestFormatDuration(t *testing.T) {
	if got := formatDuration(45); got != "45s" {
		t.Fatalf("unexpected duration %q", got)
	}
	if got := formatDuration(125); got != "2m05s" {
		t.Fatalf("unexpected duration %q", got)
	}
}

func TestFormatByteSize(t *testing.T) {
	if got := formatByteSize(512); got != "512 B" {
		t.Fatalf("unexpected size %q", got)
	}
	if got := formatByteSize(2048); got != "2.0 KiB" {
		t.Fatalf("unexpected size %q", got)
	}
	if got := formatByteSize(3 << 20); got != "3.0 MiB" {
		t.Fatalf("unexpected size %q", got)
	}
}
