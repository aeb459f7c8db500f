package events

import "time"

// Event types published by the pipelines.
const (
	TypeNarrationStarted   = "narration:started"
	TypeNarrationProgress  = "narration:progress"
	TypeNarrationCompleted = "narration:completed"
	TypeNarrationFailed    = "narration:failed"
	TypeAssemblyStarted    = "assembly:started"
	TypeAssemblyProgress   = "assembly:progress"
	TypeAssemblyCompleted  = "assembly:completed"
	TypeAssemblyFailed     = "assembly:failed"
)

// Event is one pipeline notification scoped to a chapter.
type Event struct {
	Sequence  uint64         `json:"seq"`
	Timestamp time.Time      `json:"ts"`
	Type      string         `json:"type"`
	ChapterID string         `json:"chapterId"`
	JobID     int64          `json:"jobId,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// NarrationStarted announces that speech synthesis began for a chapter.
func NarrationStarted(chapterID string, jobID int64, totalSpeeches int) Event {
	return Event{
		Type:      TypeNarrationStarted,
		ChapterID: chapterID,
		JobID:     jobID,
		Payload:   map[string]any{"totalSpeeches": totalSpeeches},
	}
}

// NarrationProgress reports one finished speech. Current counts processed
// speeches including skips, so consumers can render current/total directly.
func NarrationProgress(chapterID string, jobID int64, current, total int, speechID string) Event {
	return Event{
		Type:      TypeNarrationProgress,
		ChapterID: chapterID,
		JobID:     jobID,
		Payload: map[string]any{
			"current":  current,
			"total":    total,
			"speechId": speechID,
		},
	}
}

// NarrationCompleted announces that every speech has an artifact.
func NarrationCompleted(chapterID string, jobID int64) Event {
	return Event{Type: TypeNarrationCompleted, ChapterID: chapterID, JobID: jobID}
}

// NarrationFailed announces a terminal narration failure.
func NarrationFailed(chapterID string, jobID int64, reason, kind string) Event {
	return Event{
		Type:      TypeNarrationFailed,
		ChapterID: chapterID,
		JobID:     jobID,
		Payload:   map[string]any{"error": reason, "kind": kind},
	}
}

// AssemblyStarted announces that chapter audio assembly began.
func AssemblyStarted(chapterID string, jobID int64) Event {
	return Event{Type: TypeAssemblyStarted, ChapterID: chapterID, JobID: jobID}
}

// AssemblyProgress reports the active assembly step.
func AssemblyProgress(chapterID string, jobID int64, step string, percent float64) Event {
	return Event{
		Type:      TypeAssemblyProgress,
		ChapterID: chapterID,
		JobID:     jobID,
		Payload:   map[string]any{"step": step, "percent": percent},
	}
}

// AssemblyCompleted announces the published variants.
func AssemblyCompleted(chapterID string, jobID int64, bitrates []int) Event {
	return Event{
		Type:      TypeAssemblyCompleted,
		ChapterID: chapterID,
		JobID:     jobID,
		Payload:   map[string]any{"bitrates": bitrates},
	}
}

// AssemblyFailed announces a terminal assembly failure with the step that
// broke.
func AssemblyFailed(chapterID string, jobID int64, step, reason, kind string) Event {
	return Event{
		Type:      TypeAssemblyFailed,
		ChapterID: chapterID,
		JobID:     jobID,
		Payload:   map[string]any{"step": step, "error": reason, "kind": kind},
	}
}
