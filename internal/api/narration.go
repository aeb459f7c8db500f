package api

import (
	"context"
	"strings"

	"inkvoice/internal/queue"
	"inkvoice/internal/services"
)

// NarrationService exposes chapter narration operations returning API DTOs.
type NarrationService struct {
	store *queue.Store
}

// NewNarrationService constructs a NarrationService around the job store.
func NewNarrationService(store *queue.Store) *NarrationService {
	if store == nil {
		return nil
	}
	return &NarrationService{store: store}
}

// StartOptions carries the optional knobs of a narration start request.
type StartOptions struct {
	ForceRegenerate bool
	SpeechID        string
}

// Start enqueues a narration job for the chapter. A chapter with an open
// narration job returns queue.ErrAlreadyInProgress.
func (s *NarrationService) Start(ctx context.Context, chapterID string, opts StartOptions) (Job, error) {
	if s == nil || s.store == nil {
		return Job{}, services.Wrap(services.ErrUnavailable, "api", "narration-start", "queue store unavailable", nil)
	}
	chapterID = strings.TrimSpace(chapterID)
	if chapterID == "" {
		return Job{}, services.Wrap(services.ErrInvalidInput, "api", "narration-start", "chapter id is required", nil)
	}
	job, err := s.store.Enqueue(ctx, queue.KindNarration, chapterID, queue.EnqueueOptions{
		ForceRegenerate: opts.ForceRegenerate,
		SpeechFilter:    strings.TrimSpace(opts.SpeechID),
	})
	if err != nil {
		return Job{}, err
	}
	return FromJob(job), nil
}

// Status reports the chapter's narration state. A chapter that has never
// been queued reports the idle state.
func (s *NarrationService) Status(ctx context.Context, chapterID string) (NarrationStatus, error) {
	if s == nil || s.store == nil {
		return NarrationStatus{}, services.Wrap(services.ErrUnavailable, "api", "narration-status", "queue store unavailable", nil)
	}
	job, err := s.store.LatestForChapter(ctx, queue.KindNarration, chapterID)
	if err != nil {
		return NarrationStatus{}, err
	}
	if job == nil {
		return NarrationStatus{State: StateIdle}, nil
	}
	status := NarrationStatus{
		State:     string(job.Status),
		JobID:     job.ID,
		UpdatedAt: formatTime(job.UpdatedAt),
	}
	progress := progressFor(job)
	status.Progress = &progress
	if job.Status == queue.StatusFailed || job.Status == queue.StatusCancelled {
		status.FailedReason = job.ErrorMessage
		status.ErrorKind = job.ErrorKind
	}
	return status, nil
}

// CancelResult reports how a cancellation request landed.
type CancelResult struct {
	Outcome queue.CancelOutcome
	Job     *Job
}

// Cancel requests cancellation of the chapter's open narration job.
func (s *NarrationService) Cancel(ctx context.Context, chapterID string) (CancelResult, error) {
	if s == nil || s.store == nil {
		return CancelResult{}, services.Wrap(services.ErrUnavailable, "api", "narration-cancel", "queue store unavailable", nil)
	}
	outcome, job, err := s.store.RequestCancel(ctx, queue.KindNarration, chapterID)
	if err != nil {
		return CancelResult{}, err
	}
	result := CancelResult{Outcome: outcome}
	if job != nil {
		dto := FromJob(job)
		result.Job = &dto
	}
	return result, nil
}
