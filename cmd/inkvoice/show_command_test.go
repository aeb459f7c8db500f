package main

import (
	"context"
	"testing"
	"time"

	"inkvoice/internal/queue"
)

func TestShowIdleChapter(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"show", "ch-alpha"}, env.configPath)
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	requireContains(t, out, "Narration")
	requireContains(t, out, "Audio")
	requireContains(t, out, "idle")
}

func TestShowCompletedAudioListsVariants(t *testing.T) {
	env := setupCLITestEnv(t)
	ctx := context.Background()

	job := enqueueJob(t, env, queue.KindAssembly, "ch-alpha")
	if err := job.SetAudioOutputs([]queue.AudioOutput{
		{BitrateKbps: 64, Path: "/out/ch-alpha-64.mp3", DurationSeconds: 12, SizeBytes: 100_000, CreatedAt: time.Now().UTC()},
		{BitrateKbps: 128, Path: "/out/ch-alpha-128.mp3", DurationSeconds: 12, SizeBytes: 200_000, CreatedAt: time.Now().UTC()},
	}); err != nil {
		t.Fatalf("set outputs: %v", err)
	}
	job.SetCompleted("publish", "audio ready")
	if err := env.store.Update(ctx, job); err != nil {
		t.Fatalf("complete job: %v", err)
	}

	out, _, err := runCLI(t, []string{"show", "ch-alpha"}, env.configPath)
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	requireContains(t, out, "completed")
	requireContains(t, out, "64 kbps")
	requireContains(t, out, "128 kbps")
	requireContains(t, out, "/out/ch-alpha-128.mp3")
}

func TestShowFailedNarrationReportsReason(t *testing.T) {
	env := setupCLITestEnv(t)
	ctx := context.Background()

	job := enqueueJob(t, env, queue.KindNarration, "ch-alpha")
	job.SetFailed("voice rejected", "invalid_voice")
	if err := env.store.Update(ctx, job); err != nil {
		t.Fatalf("fail job: %v", err)
	}

	out, _, err := runCLI(t, []string{"show", "ch-alpha"}, env.configPath)
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	requireContains(t, out, "failed")
	requireContains(t, out, "voice rejected")
}
