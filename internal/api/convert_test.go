package api_test

import (
	"testing"
	"time"

	"inkvoice/internal/api"
	"inkvoice/internal/queue"
	"inkvoice/internal/stage"
	"inkvoice/internal/tts"
)

func TestFromJobCarriesProgressAndTimestamps(t *testing.T) {
	created := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	job := &queue.Job{
		ID:                 7,
		Kind:               queue.KindNarration,
		ChapterID:          "ch-7",
		Status:             queue.StatusActive,
		Attempt:            2,
		CurrentSpeechIndex: 3,
		TotalSpeechCount:   9,
		ProgressStage:      "Narration",
		ProgressPercent:    33.3,
		ProgressMessage:    "Speech 3 of 9",
		CreatedAt:          created,
		UpdatedAt:          created.Add(time.Minute),
	}

	dto := api.FromJob(job)
	if dto.ID != 7 || dto.Kind != "narration" || dto.Status != "active" {
		t.Fatalf("dto = %+v", dto)
	}
	if dto.Progress.Current != 3 || dto.Progress.Total != 9 || dto.Progress.Percent != 33.3 {
		t.Fatalf("progress = %+v", dto.Progress)
	}
	if dto.CreatedAt != "2026-03-14T09:26:53.000Z" {
		t.Fatalf("createdAt = %q", dto.CreatedAt)
	}
	if dto.CompletedAt != "" {
		t.Fatalf("completedAt = %q, want empty", dto.CompletedAt)
	}
}

func TestMergeQueueStatsFillsMissingStatuses(t *testing.T) {
	merged := api.MergeQueueStats(map[queue.Status]int{queue.StatusWaiting: 2})
	if merged["waiting"] != 2 {
		t.Fatalf("waiting = %d, want 2", merged["waiting"])
	}
	for _, status := range queue.AllStatuses() {
		if _, ok := merged[string(status)]; !ok {
			t.Fatalf("status %s missing from merged stats", status)
		}
	}
}

func TestStageHealthSliceOrdersByName(t *testing.T) {
	out := api.StageHealthSlice([]stage.Health{
		stage.Unhealthy("narration", "provider down"),
		stage.Healthy("assembly"),
	})
	if len(out) != 2 || out[0].Name != "assembly" || out[1].Name != "narration" {
		t.Fatalf("out = %+v", out)
	}
	if out[1].Detail != "provider down" {
		t.Fatalf("detail = %q", out[1].Detail)
	}
}

func TestFromVoices(t *testing.T) {
	voices := api.FromVoices([]tts.Voice{{ID: "Kore", Name: "Kore", Gender: "female", Description: "Firm"}})
	if len(voices) != 1 || voices[0].ID != "Kore" || voices[0].Gender != "female" {
		t.Fatalf("voices = %+v", voices)
	}
}
