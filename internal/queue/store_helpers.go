package queue

import (
	"database/sql"
	"errors"
	"time"
)

const jobColumns = "id, kind, chapter_id, status, force_regenerate, speech_filter, cancel_requested, attempt, current_speech_index, total_speech_count, progress_stage, progress_percent, progress_message, outputs_json, error_message, error_kind, not_before, created_at, updated_at, started_at, completed_at, last_heartbeat"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id              int64
		kind            string
		chapterID       string
		statusStr       string
		forceRegenerate sql.NullInt64
		speechFilter    sql.NullString
		cancelRequested sql.NullInt64
		attempt         sql.NullInt64
		currentIndex    sql.NullInt64
		totalCount      sql.NullInt64
		progressStage   sql.NullString
		progressPercent sql.NullFloat64
		progressMessage sql.NullString
		outputs         sql.NullString
		errorMessage    sql.NullString
		errorKind       sql.NullString
		notBeforeRaw    sql.NullString
		createdRaw      sql.NullString
		updatedRaw      sql.NullString
		startedRaw      sql.NullString
		completedRaw    sql.NullString
		heartbeatRaw    sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&kind,
		&chapterID,
		&statusStr,
		&forceRegenerate,
		&speechFilter,
		&cancelRequested,
		&attempt,
		&currentIndex,
		&totalCount,
		&progressStage,
		&progressPercent,
		&progressMessage,
		&outputs,
		&errorMessage,
		&errorKind,
		&notBeforeRaw,
		&createdRaw,
		&updatedRaw,
		&startedRaw,
		&completedRaw,
		&heartbeatRaw,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:                 id,
		Kind:               JobKind(kind),
		ChapterID:          chapterID,
		Status:             Status(statusStr),
		Attempt:            int(attempt.Int64),
		CurrentSpeechIndex: int(currentIndex.Int64),
		TotalSpeechCount:   int(totalCount.Int64),
		ProgressStage:      progressStage.String,
		ProgressPercent:    progressPercent.Float64,
		ProgressMessage:    progressMessage.String,
		SpeechFilter:       speechFilter.String,
		OutputsJSON:        outputs.String,
		ErrorMessage:       errorMessage.String,
		ErrorKind:          errorKind.String,
	}
	if forceRegenerate.Valid {
		job.ForceRegenerate = forceRegenerate.Int64 != 0
	}
	if cancelRequested.Valid {
		job.CancelRequested = cancelRequested.Int64 != 0
	}

	if created, err := parseTimeString(createdRaw.String); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		job.UpdatedAt = updated
	}
	if notBeforeRaw.Valid {
		if notBefore, err := parseTimeString(notBeforeRaw.String); err == nil {
			job.NotBefore = &notBefore
		}
	}
	if startedRaw.Valid {
		if started, err := parseTimeString(startedRaw.String); err == nil {
			job.StartedAt = &started
		}
	}
	if completedRaw.Valid {
		if completed, err := parseTimeString(completedRaw.String); err == nil {
			job.CompletedAt = &completed
		}
	}
	if heartbeatRaw.Valid {
		if heartbeat, err := parseTimeString(heartbeatRaw.String); err == nil {
			job.LastHeartbeat = &heartbeat
		}
	}
	return job, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	v := value.UTC().Format(time.RFC3339Nano)
	return v
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}

func statusArgs(statuses []Status) []any {
	args := make([]any, len(statuses))
	for i, status := range statuses {
		args[i] = status
	}
	return args
}
