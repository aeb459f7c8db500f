package daemon

import (
	"context"
	"testing"

	"inkvoice/internal/events"
	"inkvoice/internal/testsupport"
	"inkvoice/internal/workflow"
)

func newTestDaemon(t *testing.T) *Daemon {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIBind = ""
	cfg.Workflow.QueueEnabled = false
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	store := testsupport.MustOpenStore(t, cfg)
	hub := events.NewHub(16)
	d, err := New(cfg, Components{
		Store:    store,
		Workflow: workflow.NewManager(cfg, store, hub, nil),
		Hub:      hub,
	}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d
}

func TestDaemonSingleInstanceLock(t *testing.T) {
	ctx := context.Background()
	first := newTestDaemon(t)
	if err := first.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer first.Stop()

	second, err := New(first.cfg, first.comps, nil)
	if err != nil {
		t.Fatalf("New second: %v", err)
	}
	if err := second.Start(ctx); err == nil {
		second.Stop()
		t.Fatal("second instance should fail to acquire the lock")
	}
}

func TestDaemonStartStopIdempotent(t *testing.T) {
	ctx := context.Background()
	d := newTestDaemon(t)
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := d.Start(ctx); err == nil {
		t.Fatal("double start should fail")
	}
	d.Stop()
	d.Stop()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("restart after stop: %v", err)
	}
	d.Stop()
}

func TestDaemonStatusReportsPaths(t *testing.T) {
	ctx := context.Background()
	d := newTestDaemon(t)
	status := d.Status(ctx)
	if status.Running {
		t.Fatal("daemon should not report running before Start")
	}
	if status.QueueDBPath == "" || status.LockFilePath == "" {
		t.Fatalf("status = %+v, want populated paths", status)
	}
	if status.QueueEnabled {
		t.Fatal("queue should report disabled")
	}
	if status.QueueStats == nil {
		t.Fatal("queue stats missing")
	}
}
