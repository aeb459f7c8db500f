package services_test

import (
	"context"
	"testing"

	"inkvoice/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithJobID(ctx, 42)
	ctx = services.WithChapterID(ctx, "ch-9")
	ctx = services.WithStage(ctx, "synthesis")
	ctx = services.WithLane(ctx, "narration")
	ctx = services.WithRequestID(ctx, "req-123")

	if id, ok := services.JobIDFromContext(ctx); !ok || id != 42 {
		t.Fatalf("unexpected job id: %v %v", id, ok)
	}
	if chapter, ok := services.ChapterIDFromContext(ctx); !ok || chapter != "ch-9" {
		t.Fatalf("unexpected chapter id: %v %v", chapter, ok)
	}
	if stage, ok := services.StageFromContext(ctx); !ok || stage != "synthesis" {
		t.Fatalf("unexpected stage: %v %v", stage, ok)
	}
	if lane, ok := services.LaneFromContext(ctx); !ok || lane != "narration" {
		t.Fatalf("unexpected lane: %v %v", lane, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestStageBlankPreservesContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithStage(ctx, "")
	if _, ok := services.StageFromContext(ctx); ok {
		t.Fatal("expected no stage value")
	}
}
