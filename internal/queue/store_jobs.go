package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// EnqueueOptions carries the optional payload recorded with a new job.
type EnqueueOptions struct {
	ForceRegenerate bool
	// SpeechFilter restricts a narration job to a single speech. Empty means
	// the whole chapter.
	SpeechFilter string
}

// Enqueue inserts a new waiting job for a chapter. The partial unique index on
// open jobs rejects a second open job for the same chapter and kind, which is
// surfaced as ErrAlreadyInProgress.
func (s *Store) Enqueue(ctx context.Context, kind JobKind, chapterID string, opts EnqueueOptions) (*Job, error) {
	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)

	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO jobs (
            kind, chapter_id, status, force_regenerate, speech_filter, created_at, updated_at,
            progress_stage, progress_percent, progress_message
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		kind,
		chapterID,
		StatusWaiting,
		boolToInt(opts.ForceRegenerate),
		nullableString(opts.SpeechFilter),
		timestamp,
		timestamp,
		nil,
		0.0,
		nil,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrAlreadyInProgress
		}
		return nil, fmt.Errorf("insert job: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	return s.GetByID(ctx, id)
}

// GetByID fetches a job by identifier.
func (s *Store) GetByID(ctx context.Context, id int64) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// OpenForChapter returns the single open (non-terminal) job for a chapter and
// kind, or nil when none exists.
func (s *Store) OpenForChapter(ctx context.Context, kind JobKind, chapterID string) (*Job, error) {
	placeholders := makePlaceholders(len(openStatuses))
	args := append([]any{kind, chapterID}, statusArgs(openStatuses)...)
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE kind = ? AND chapter_id = ? AND status IN (`+placeholders+`) LIMIT 1`,
		args...,
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open job for chapter: %w", err)
	}
	return job, nil
}

// LatestForChapter returns the most recent job for a chapter and kind
// regardless of status, or nil when the chapter has never been queued.
func (s *Store) LatestForChapter(ctx context.Context, kind JobKind, chapterID string) (*Job, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE kind = ? AND chapter_id = ? ORDER BY id DESC LIMIT 1`,
		kind,
		chapterID,
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest job for chapter: %w", err)
	}
	return job, nil
}

// Update persists changes to an existing job.
func (s *Store) Update(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("job is nil")
	}
	job.UpdatedAt = time.Now().UTC()
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE jobs
         SET status = ?, force_regenerate = ?, speech_filter = ?, cancel_requested = ?, attempt = ?,
             current_speech_index = ?, total_speech_count = ?,
             progress_stage = ?, progress_percent = ?, progress_message = ?,
             outputs_json = ?, error_message = ?, error_kind = ?, not_before = ?,
             updated_at = ?, started_at = ?, completed_at = ?, last_heartbeat = ?
         WHERE id = ?`,
		job.Status,
		boolToInt(job.ForceRegenerate),
		nullableString(job.SpeechFilter),
		boolToInt(job.CancelRequested),
		job.Attempt,
		job.CurrentSpeechIndex,
		job.TotalSpeechCount,
		nullableString(job.ProgressStage),
		job.ProgressPercent,
		nullableString(job.ProgressMessage),
		nullableString(job.OutputsJSON),
		nullableString(job.ErrorMessage),
		nullableString(job.ErrorKind),
		nullableTime(job.NotBefore),
		job.UpdatedAt.Format(time.RFC3339Nano),
		nullableTime(job.StartedAt),
		nullableTime(job.CompletedAt),
		nullableTime(job.LastHeartbeat),
		job.ID,
	); err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return nil
}

// List returns jobs filtered by status set (or all jobs when no status is provided).
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Job, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + jobColumns + ` FROM jobs`
	orderClause := ` ORDER BY created_at`

	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		query := baseQuery + ` WHERE status IN (` + placeholders + `)` + orderClause
		rows, err = s.db.QueryContext(ctx, query, statusArgs(statuses)...)
	}
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// ClaimNext atomically claims the oldest runnable job of the given kind,
// transitioning it to active and stamping start time and heartbeat. Returns
// nil when no job is runnable.
func (s *Store) ClaimNext(ctx context.Context, kind JobKind) (*Job, error) {
	ctx = ensureContext(ctx)
	var claimed *Job
	err := retryOnBusy(ctx, func() error {
		claimed = nil
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin claim tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		now := time.Now().UTC()
		nowStr := now.Format(time.RFC3339Nano)

		row := tx.QueryRowContext(
			ctx,
			`SELECT `+jobColumns+` FROM jobs
             WHERE kind = ?
               AND (status = ? OR (status = ? AND (not_before IS NULL OR not_before <= ?)))
             ORDER BY created_at LIMIT 1`,
			kind,
			StatusWaiting,
			StatusDelayed,
			nowStr,
		)
		job, err := scanJob(row)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("select claimable job: %w", err)
		}

		res, err := tx.ExecContext(
			ctx,
			`UPDATE jobs
             SET status = ?, attempt = attempt + 1, not_before = NULL,
                 started_at = COALESCE(started_at, ?), last_heartbeat = ?, updated_at = ?
             WHERE id = ? AND status = ?`,
			StatusActive,
			nowStr,
			nowStr,
			nowStr,
			job.ID,
			job.Status,
		)
		if err != nil {
			return fmt.Errorf("claim job: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("claim rows affected: %w", err)
		}
		if affected == 0 {
			// Another worker won the race; the caller polls again.
			return nil
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit claim: %w", err)
		}

		job.Status = StatusActive
		job.Attempt++
		job.NotBefore = nil
		if job.StartedAt == nil {
			job.StartedAt = &now
		}
		job.LastHeartbeat = &now
		job.UpdatedAt = now
		claimed = job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// Remove deletes a job by identifier.
func (s *Store) Remove(ctx context.Context, id int64) (bool, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// ClearCompleted removes only completed jobs from the queue.
func (s *Store) ClearCompleted(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM jobs WHERE status = ?`, StatusCompleted)
	if err != nil {
		return 0, fmt.Errorf("clear completed: %w", err)
	}
	return res.RowsAffected()
}

// ClearFailed removes only failed jobs from the queue.
func (s *Store) ClearFailed(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM jobs WHERE status = ?`, StatusFailed)
	if err != nil {
		return 0, fmt.Errorf("clear failed: %w", err)
	}
	return res.RowsAffected()
}

// Clear removes all jobs from the queue.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM jobs`)
	if err != nil {
		return 0, fmt.Errorf("clear queue: %w", err)
	}
	return res.RowsAffected()
}
