package testsupport

import (
	"context"
	"testing"

	"inkvoice/internal/config"
	"inkvoice/internal/queue"
)

// MustOpenStore opens the queue database under the test config and closes
// it when the test finishes.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// EnqueueJob queues a waiting job with default options.
func EnqueueJob(t testing.TB, store *queue.Store, kind queue.JobKind, chapterID string) *queue.Job {
	t.Helper()

	job, err := store.Enqueue(context.Background(), kind, chapterID, queue.EnqueueOptions{})
	if err != nil {
		t.Fatalf("store.Enqueue: %v", err)
	}
	return job
}
