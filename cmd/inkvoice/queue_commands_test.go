package main

import (
	"context"
	"testing"

	"inkvoice/internal/queue"
)

func TestQueueStatusAndList(t *testing.T) {
	env := setupCLITestEnv(t)
	ctx := context.Background()

	enqueueJob(t, env, queue.KindNarration, "ch-alpha")
	beta := enqueueJob(t, env, queue.KindNarration, "ch-beta")
	beta.SetFailed("synthesis exploded", "synthesis")
	if err := env.store.Update(ctx, beta); err != nil {
		t.Fatalf("fail beta: %v", err)
	}

	out, _, err := runCLI(t, []string{"queue", "status"}, env.configPath)
	if err != nil {
		t.Fatalf("queue status: %v", err)
	}
	requireContains(t, out, "Waiting")
	requireContains(t, out, "Failed")

	out, _, err = runCLI(t, []string{"queue", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("queue list: %v", err)
	}
	requireContains(t, out, "ch-alpha")
	requireContains(t, out, "ch-beta")

	out, _, err = runCLI(t, []string{"queue", "list", "--status", "failed"}, env.configPath)
	if err != nil {
		t.Fatalf("queue list failed: %v", err)
	}
	requireContains(t, out, "ch-beta")
	if containsRow(out, "ch-alpha") {
		t.Fatalf("expected filtered list to omit ch-alpha, got:\n%s", out)
	}
}

func TestQueueListRejectsUnknownStatus(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, []string{"queue", "list", "--status", "bogus"}, env.configPath)
	if err == nil {
		t.Fatal("expected error for unknown status")
	}
}

func TestQueueRetryAndClear(t *testing.T) {
	env := setupCLITestEnv(t)
	ctx := context.Background()

	alpha := enqueueJob(t, env, queue.KindNarration, "ch-alpha")
	alpha.SetFailed("synthesis exploded", "synthesis")
	if err := env.store.Update(ctx, alpha); err != nil {
		t.Fatalf("fail alpha: %v", err)
	}

	out, _, err := runCLI(t, []string{"queue", "retry"}, env.configPath)
	if err != nil {
		t.Fatalf("queue retry: %v", err)
	}
	requireContains(t, out, "Retried 1 failed jobs")

	updated, err := env.store.GetByID(ctx, alpha.ID)
	if err != nil {
		t.Fatalf("lookup alpha: %v", err)
	}
	if updated.Status != queue.StatusWaiting {
		t.Fatalf("expected waiting, got %s", updated.Status)
	}

	updated.SetFailed("synthesis exploded", "synthesis")
	if err := env.store.Update(ctx, updated); err != nil {
		t.Fatalf("refail alpha: %v", err)
	}

	out, _, err = runCLI(t, []string{"queue", "clear", "--failed"}, env.configPath)
	if err != nil {
		t.Fatalf("queue clear failed: %v", err)
	}
	requireContains(t, out, "Cleared 1 failed jobs")

	jobs, err := env.store.List(ctx)
	if err != nil {
		t.Fatalf("list jobs: %v", err)
	}
	if len(jobs) != 0 {
		t.Fatalf("expected empty queue, got %d jobs", len(jobs))
	}
}

func TestQueuePauseAndResume(t *testing.T) {
	env := setupCLITestEnv(t)
	ctx := context.Background()

	job := enqueueJob(t, env, queue.KindAssembly, "ch-alpha")

	out, _, err := runCLI(t, []string{"queue", "pause", jobIDArg(job)}, env.configPath)
	if err != nil {
		t.Fatalf("queue pause: %v", err)
	}
	requireContains(t, out, "Paused job")

	paused, err := env.store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("lookup job: %v", err)
	}
	if paused.Status != queue.StatusPaused {
		t.Fatalf("expected paused, got %s", paused.Status)
	}

	out, _, err = runCLI(t, []string{"queue", "resume", jobIDArg(job)}, env.configPath)
	if err != nil {
		t.Fatalf("queue resume: %v", err)
	}
	requireContains(t, out, "Resumed job")
}

func TestQueueHealth(t *testing.T) {
	env := setupCLITestEnv(t)

	enqueueJob(t, env, queue.KindNarration, "ch-alpha")

	out, _, err := runCLI(t, []string{"queue", "health"}, env.configPath)
	if err != nil {
		t.Fatalf("queue health: %v", err)
	}
	requireContains(t, out, "Total: 1")
	requireContains(t, out, "Waiting: 1")
}
