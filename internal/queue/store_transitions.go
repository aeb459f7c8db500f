package queue

import (
	"context"
	"fmt"
	"time"
)

// CancelOutcome reports how a cancellation request was applied.
type CancelOutcome string

const (
	// CancelApplied means the job moved straight to cancelled.
	CancelApplied CancelOutcome = "cancelled"
	// CancelRequestedOutcome means an active job was flagged and will stop
	// cooperatively between steps.
	CancelRequestedOutcome CancelOutcome = "requested"
	// CancelNotFound means no open job existed for the chapter.
	CancelNotFound CancelOutcome = "not_found"
)

// RequestCancel cancels the open job for a chapter. Waiting, delayed, and
// paused jobs transition directly to cancelled; active jobs are flagged so the
// worker stops before the next speech or step.
func (s *Store) RequestCancel(ctx context.Context, kind JobKind, chapterID string) (CancelOutcome, *Job, error) {
	job, err := s.OpenForChapter(ctx, kind, chapterID)
	if err != nil {
		return CancelNotFound, nil, err
	}
	if job == nil {
		return CancelNotFound, nil, nil
	}

	now := time.Now().UTC()
	nowStr := now.Format(time.RFC3339Nano)

	if job.Status == StatusActive {
		if err := s.execWithoutResultRetry(
			ctx,
			`UPDATE jobs SET cancel_requested = 1, updated_at = ? WHERE id = ? AND status = ?`,
			nowStr,
			job.ID,
			StatusActive,
		); err != nil {
			return CancelNotFound, nil, fmt.Errorf("flag cancel: %w", err)
		}
		job.CancelRequested = true
		return CancelRequestedOutcome, job, nil
	}

	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs
         SET status = ?, cancel_requested = 0, error_message = ?, error_kind = NULL,
             progress_message = ?, not_before = NULL, completed_at = ?, updated_at = ?
         WHERE id = ? AND status IN (?, ?, ?)`,
		StatusCancelled,
		UserCancelReason,
		UserCancelReason,
		nowStr,
		nowStr,
		job.ID,
		StatusWaiting,
		StatusDelayed,
		StatusPaused,
	)
	if err != nil {
		return CancelNotFound, nil, fmt.Errorf("cancel job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return CancelNotFound, nil, fmt.Errorf("cancel rows affected: %w", err)
	}
	if affected == 0 {
		// The job went active between lookup and update; fall back to a flag.
		return s.RequestCancel(ctx, kind, chapterID)
	}

	job.Status = StatusCancelled
	job.ErrorMessage = UserCancelReason
	job.CompletedAt = &now
	return CancelApplied, job, nil
}

// CancelRequested reports whether cooperative cancellation has been flagged
// for a job.
func (s *Store) CancelRequested(ctx context.Context, id int64) (bool, error) {
	var flagged int
	err := s.db.QueryRowContext(ctx, `SELECT cancel_requested FROM jobs WHERE id = ?`, id).Scan(&flagged)
	if err != nil {
		return false, fmt.Errorf("read cancel flag: %w", err)
	}
	return flagged != 0, nil
}

// Delay reschedules an active job for a later attempt after a transient
// failure. The job stays invisible to workers until notBefore passes.
func (s *Store) Delay(ctx context.Context, id int64, notBefore time.Time, message string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE jobs
         SET status = ?, not_before = ?, progress_message = ?, last_heartbeat = NULL, updated_at = ?
         WHERE id = ?`,
		StatusDelayed,
		notBefore.UTC().Format(time.RFC3339Nano),
		nullableString(message),
		now,
		id,
	); err != nil {
		return fmt.Errorf("delay job: %w", err)
	}
	return nil
}

// Pause holds a waiting or delayed job so workers skip it until resumed.
func (s *Store) Pause(ctx context.Context, id int64) (bool, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET status = ?, not_before = NULL, updated_at = ? WHERE id = ? AND status IN (?, ?)`,
		StatusPaused,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		StatusWaiting,
		StatusDelayed,
	)
	if err != nil {
		return false, fmt.Errorf("pause job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("pause rows affected: %w", err)
	}
	return affected > 0, nil
}

// Resume returns a paused job to the waiting pool.
func (s *Store) Resume(ctx context.Context, id int64) (bool, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		StatusWaiting,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		StatusPaused,
	)
	if err != nil {
		return false, fmt.Errorf("resume job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("resume rows affected: %w", err)
	}
	return affected > 0, nil
}

// RetryFailed moves failed jobs back to waiting for reprocessing.
func (s *Store) RetryFailed(ctx context.Context, ids ...int64) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if len(ids) == 0 {
		res, err := s.execWithRetry(
			ctx,
			`UPDATE jobs
            SET status = ?, attempt = 0, cancel_requested = 0, progress_stage = 'Retry requested',
                progress_percent = 0, progress_message = NULL, error_message = NULL,
                error_kind = NULL, completed_at = NULL, updated_at = ?
            WHERE status = ?`,
			StatusWaiting,
			now,
			StatusFailed,
		)
		if err != nil {
			return 0, fmt.Errorf("retry failed jobs: %w", err)
		}
		return res.RowsAffected()
	}

	placeholders := makePlaceholders(len(ids))
	args := make([]any, 0, len(ids)+2)
	args = append(args, StatusWaiting, now)
	for _, id := range ids {
		args = append(args, id)
	}
	query := `UPDATE jobs
        SET status = ?, attempt = 0, cancel_requested = 0, progress_stage = 'Retry requested',
            progress_percent = 0, progress_message = NULL, error_message = NULL,
            error_kind = NULL, completed_at = NULL, updated_at = ?
        WHERE id IN (` + placeholders + `) AND status = '` + string(StatusFailed) + `'`
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("retry selected jobs: %w", err)
	}
	return res.RowsAffected()
}

// UpdateHeartbeat updates the last heartbeat timestamp for an in-flight job.
func (s *Store) UpdateHeartbeat(ctx context.Context, id int64) error {
	now := time.Now().UTC()
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE jobs SET last_heartbeat = ?, updated_at = ? WHERE id = ?`,
		now.Format(time.RFC3339Nano),
		now.Format(time.RFC3339Nano),
		id,
	); err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

// ReclaimStaleProcessing returns active jobs whose heartbeats expired back to
// the waiting pool so another worker can pick them up.
func (s *Store) ReclaimStaleProcessing(ctx context.Context, cutoff time.Time) (int64, error) {
	now := time.Now().UTC()
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs
        SET status = ?, progress_stage = 'Reclaimed from stale processing',
            progress_percent = 0, progress_message = NULL, last_heartbeat = NULL, updated_at = ?
        WHERE status = ? AND last_heartbeat IS NOT NULL AND last_heartbeat < ?`,
		StatusWaiting,
		now.Format(time.RFC3339Nano),
		StatusActive,
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale jobs: %w", err)
	}
	return res.RowsAffected()
}

// ReleaseActive returns all active jobs to waiting. Used during daemon
// shutdown so interrupted jobs restart cleanly.
func (s *Store) ReleaseActive(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs
        SET status = ?, progress_message = ?, last_heartbeat = NULL, updated_at = ?
        WHERE status = ?`,
		StatusWaiting,
		DaemonStopReason,
		time.Now().UTC().Format(time.RFC3339Nano),
		StatusActive,
	)
	if err != nil {
		return 0, fmt.Errorf("release active jobs: %w", err)
	}
	return res.RowsAffected()
}
