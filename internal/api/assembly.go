package api

import (
	"context"
	"strings"

	"inkvoice/internal/queue"
	"inkvoice/internal/services"
)

// AssemblyService exposes chapter audio production operations.
type AssemblyService struct {
	store *queue.Store
}

// NewAssemblyService constructs an AssemblyService around the job store.
func NewAssemblyService(store *queue.Store) *AssemblyService {
	if store == nil {
		return nil
	}
	return &AssemblyService{store: store}
}

// Process enqueues an assembly job for the chapter. A chapter with an open
// assembly job returns queue.ErrAlreadyInProgress.
func (s *AssemblyService) Process(ctx context.Context, chapterID string, force bool) (Job, error) {
	if s == nil || s.store == nil {
		return Job{}, services.Wrap(services.ErrUnavailable, "api", "audio-process", "queue store unavailable", nil)
	}
	chapterID = strings.TrimSpace(chapterID)
	if chapterID == "" {
		return Job{}, services.Wrap(services.ErrInvalidInput, "api", "audio-process", "chapter id is required", nil)
	}
	job, err := s.store.Enqueue(ctx, queue.KindAssembly, chapterID, queue.EnqueueOptions{ForceRegenerate: force})
	if err != nil {
		return Job{}, err
	}
	return FromJob(job), nil
}

// Status reports the chapter's assembly state. The result payload is
// attached only when the latest job completed.
func (s *AssemblyService) Status(ctx context.Context, chapterID string) (AudioStatus, error) {
	if s == nil || s.store == nil {
		return AudioStatus{}, services.Wrap(services.ErrUnavailable, "api", "audio-status", "queue store unavailable", nil)
	}
	job, err := s.store.LatestForChapter(ctx, queue.KindAssembly, chapterID)
	if err != nil {
		return AudioStatus{}, err
	}
	if job == nil {
		return AudioStatus{State: StateIdle}, nil
	}
	status := AudioStatus{
		State:     string(job.Status),
		JobID:     job.ID,
		UpdatedAt: formatTime(job.UpdatedAt),
	}
	progress := progressFor(job)
	status.Progress = &progress
	switch job.Status {
	case queue.StatusCompleted:
		result, err := resultFor(job)
		if err != nil {
			return AudioStatus{}, services.Wrap(services.ErrTransient, "api", "audio-status", "decode job outputs", err)
		}
		status.Result = result
	case queue.StatusFailed, queue.StatusCancelled:
		status.FailedReason = job.ErrorMessage
		status.ErrorKind = job.ErrorKind
	}
	return status, nil
}

// Cancel requests cancellation of the chapter's open assembly job.
func (s *AssemblyService) Cancel(ctx context.Context, chapterID string) (CancelResult, error) {
	if s == nil || s.store == nil {
		return CancelResult{}, services.Wrap(services.ErrUnavailable, "api", "audio-cancel", "queue store unavailable", nil)
	}
	outcome, job, err := s.store.RequestCancel(ctx, queue.KindAssembly, chapterID)
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
