package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// StateIdle is reported when a chapter has never been queued for a pipeline.
const StateIdle = "idle"

// Job describes a queue entry in a transport-friendly format.
type Job struct {
	ID              int64    `json:"id"`
	Kind            string   `json:"kind"`
	ChapterID       string   `json:"chapterId"`
	Status          string   `json:"status"`
	ForceRegenerate bool     `json:"forceRegenerate,omitempty"`
	SpeechFilter    string   `json:"speechFilter,omitempty"`
	Attempt         int      `json:"attempt"`
	Progress        Progress `json:"progress"`
	ErrorMessage    string   `json:"errorMessage,omitempty"`
	ErrorKind       string   `json:"errorKind,omitempty"`
	CreatedAt       string   `json:"createdAt,omitempty"`
	UpdatedAt       string   `json:"updatedAt,omitempty"`
	CompletedAt     string   `json:"completedAt,omitempty"`
}

// Progress captures pipeline progress for a queue entry. Current and Total
// count speeches and are only populated by narration jobs.
type Progress struct {
	Stage   string  `json:"stage"`
	Percent float64 `json:"percent"`
	Message string  `json:"message"`
	Current int     `json:"current,omitempty"`
	Total   int     `json:"total,omitempty"`
}

// NarrationStatus reports the chapter's narration pipeline state.
type NarrationStatus struct {
	State        string    `json:"state"`
	JobID        int64     `json:"jobId,omitempty"`
	Progress     *Progress `json:"progress,omitempty"`
	FailedReason string    `json:"failedReason,omitempty"`
	ErrorKind    string    `json:"errorKind,omitempty"`
	UpdatedAt    string    `json:"updatedAt,omitempty"`
}

// AudioStatus reports the chapter's assembly pipeline state. Result is
// present only when the latest assembly job completed.
type AudioStatus struct {
	State        string       `json:"state"`
	JobID        int64        `json:"jobId,omitempty"`
	Progress     *Progress    `json:"progress,omitempty"`
	FailedReason string       `json:"failedReason,omitempty"`
	ErrorKind    string       `json:"errorKind,omitempty"`
	Result       *AudioResult `json:"result,omitempty"`
	UpdatedAt    string       `json:"updatedAt,omitempty"`
}

// AudioResult lists the published bitrate variants of a chapter.
type AudioResult struct {
	Variants []AudioVariant `json:"variants"`
}

// AudioVariant is one published encode of a chapter.
type AudioVariant struct {
	BitrateKbps     int    `json:"bitrateKbps"`
	Path            string `json:"path"`
	DurationSeconds int64  `json:"durationSeconds"`
	SizeBytes       int64  `json:"sizeBytes"`
	CreatedAt       string `json:"createdAt,omitempty"`
}

// VoicePreview carries a synthesized voice sample.
type VoicePreview struct {
	AudioBase64 string `json:"audioBase64"`
	Format      string `json:"format"`
	Cached      bool   `json:"cached"`
}

// Voice describes an available synthesis voice.
type Voice struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Gender      string `json:"gender,omitempty"`
	Description string `json:"description,omitempty"`
}

// QueueListResponse wraps a collection of jobs for API responses.
type QueueListResponse struct {
	Jobs []Job `json:"jobs"`
}

// QueueStatsResponse provides normalized queue counts keyed by status.
type QueueStatsResponse struct {
	Counts map[string]int `json:"counts"`
}

// StageHealth mirrors readiness reporting for pipeline stages.
type StageHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool           `json:"running"`
	PID          int            `json:"pid"`
	QueueDBPath  string         `json:"queueDbPath"`
	LockFilePath string         `json:"lockFilePath"`
	QueueStats   map[string]int `json:"queueStats"`
	StageHealth  []StageHealth  `json:"stageHealth"`
	LastError    string         `json:"lastError,omitempty"`
}
