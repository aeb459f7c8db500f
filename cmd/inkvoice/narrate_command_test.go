package main

import (
	"context"
	"testing"

	"inkvoice/internal/queue"
)

func TestNarrateQueuesJob(t *testing.T) {
	env := setupCLITestEnv(t)
	ctx := context.Background()

	out, _, err := runCLI(t, []string{"narrate", "ch-alpha", "--force", "--speech", "ch-alpha-s2"}, env.configPath)
	if err != nil {
		t.Fatalf("narrate: %v", err)
	}
	requireContains(t, out, "Queued narration job")
	requireContains(t, out, "Restricted to speech ch-alpha-s2")

	job, err := env.store.OpenForChapter(ctx, queue.KindNarration, "ch-alpha")
	if err != nil {
		t.Fatalf("open job: %v", err)
	}
	if job == nil {
		t.Fatal("expected an open narration job")
	}
	if !job.ForceRegenerate {
		t.Fatal("expected force flag to carry through")
	}
	if job.SpeechFilter != "ch-alpha-s2" {
		t.Fatalf("unexpected speech filter %q", job.SpeechFilter)
	}

	_, _, err = runCLI(t, []string{"narrate", "ch-alpha"}, env.configPath)
	if err == nil {
		t.Fatal("expected duplicate narrate to fail")
	}
	requireContains(t, err.Error(), "already has an open narration job")
}

func TestAssembleQueuesJob(t *testing.T) {
	env := setupCLITestEnv(t)
	ctx := context.Background()

	out, _, err := runCLI(t, []string{"assemble", "ch-alpha"}, env.configPath)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	requireContains(t, out, "Queued assembly job")

	job, err := env.store.OpenForChapter(ctx, queue.KindAssembly, "ch-alpha")
	if err != nil {
		t.Fatalf("open job: %v", err)
	}
	if job == nil {
		t.Fatal("expected an open assembly job")
	}
}

func TestCancelCommand(t *testing.T) {
	env := setupCLITestEnv(t)
	ctx := context.Background()

	out, _, err := runCLI(t, []string{"cancel", "ch-alpha"}, env.configPath)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	requireContains(t, out, "No open narration job for chapter ch-alpha")

	job := enqueueJob(t, env, queue.KindNarration, "ch-alpha")

	out, _, err = runCLI(t, []string{"cancel", "ch-alpha"}, env.configPath)
	if err != nil {
		t.Fatalf("cancel open job: %v", err)
	}
	requireContains(t, out, "Cancelled job")

	cancelled, err := env.store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("lookup job: %v", err)
	}
	if cancelled.Status != queue.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.Status)
	}
}

func TestCancelRejectsUnknownKind(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, []string{"cancel", "ch-alpha", "--kind", "bogus"}, env.configPath)
	if err == nil {
		t.Fatal("expected error for unknown kind")
	}
}
