package api

import (
	"sort"
	"time"

	"inkvoice/internal/queue"
	"inkvoice/internal/stage"
	"inkvoice/internal/tts"
)

// FromJob converts a queue job into its transport representation.
func FromJob(job *queue.Job) Job {
	if job == nil {
		return Job{}
	}
	return Job{
		ID:              job.ID,
		Kind:            string(job.Kind),
		ChapterID:       job.ChapterID,
		Status:          string(job.Status),
		ForceRegenerate: job.ForceRegenerate,
		SpeechFilter:    job.SpeechFilter,
		Attempt:         job.Attempt,
		Progress:        progressFor(job),
		ErrorMessage:    job.ErrorMessage,
		ErrorKind:       job.ErrorKind,
		CreatedAt:       formatTime(job.CreatedAt),
		UpdatedAt:       formatTime(job.UpdatedAt),
		CompletedAt:     formatTimePtr(job.CompletedAt),
	}
}

// FromJobs converts a job list, preserving order.
func FromJobs(jobs []*queue.Job) []Job {
	if len(jobs) == 0 {
		return nil
	}
	out := make([]Job, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, FromJob(job))
	}
	return out
}

// MergeQueueStats normalizes queue counts so every known status has an entry.
func MergeQueueStats(stats map[queue.Status]int) map[string]int {
	merged := make(map[string]int, len(queue.AllStatuses()))
	for _, status := range queue.AllStatuses() {
		merged[string(status)] = stats[status]
	}
	return merged
}

// StageHealthSlice orders stage health records by name for stable output.
func StageHealthSlice(health []stage.Health) []StageHealth {
	out := make([]StageHealth, 0, len(health))
	for _, h := range health {
		out = append(out, StageHealth{Name: h.Name, Ready: h.Ready, Detail: h.Detail})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// FromVoices converts provider voices into API records.
func FromVoices(voices []tts.Voice) []Voice {
	if len(voices) == 0 {
		return nil
	}
	out := make([]Voice, 0, len(voices))
	for _, v := range voices {
		out = append(out, Voice{
			ID:          v.ID,
			Name:        v.Name,
			Gender:      v.Gender,
			Description: v.Description,
		})
	}
	return out
}

func progressFor(job *queue.Job) Progress {
	return Progress{
		Stage:   job.ProgressStage,
		Percent: job.ProgressPercent,
		Message: job.ProgressMessage,
		Current: job.CurrentSpeechIndex,
		Total:   job.TotalSpeechCount,
	}
}

func resultFor(job *queue.Job) (*AudioResult, error) {
	outputs, err := job.AudioOutputs()
	if err != nil {
		return nil, err
	}
	if len(outputs) == 0 {
		return nil, nil
	}
	variants := make([]AudioVariant, 0, len(outputs))
	for _, out := range outputs {
		variants = append(variants, AudioVariant{
			BitrateKbps:     out.BitrateKbps,
			Path:            out.Path,
			DurationSeconds: out.DurationSeconds,
			SizeBytes:       out.SizeBytes,
			CreatedAt:       formatTime(out.CreatedAt),
		})
	}
	return &AudioResult{Variants: variants}, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateTimeFormat)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}
