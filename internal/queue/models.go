package queue

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a queue job.
type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusDelayed   Status = "delayed"
	StatusPaused    Status = "paused"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// JobKind distinguishes the two pipelines sharing the jobs table.
type JobKind string

const (
	KindNarration JobKind = "narration"
	KindAssembly  JobKind = "assembly"
)

// UserCancelReason is the failure reason set when a user explicitly cancels a job.
const UserCancelReason = "Cancelled by user"

// DaemonStopReason is the message recorded when active jobs are released during shutdown.
const DaemonStopReason = "Daemon stopped"

var allStatuses = []Status{
	StatusWaiting,
	StatusDelayed,
	StatusPaused,
	StatusActive,
	StatusCompleted,
	StatusFailed,
	StatusCancelled,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// openStatuses are the non-terminal states occupied by at most one job per
// chapter and kind.
var openStatuses = []Status{StatusWaiting, StatusDelayed, StatusPaused, StatusActive}

// Job represents a queue job persisted in SQLite.
type Job struct {
	ID                 int64
	Kind               JobKind
	ChapterID          string
	Status             Status
	ForceRegenerate    bool
	SpeechFilter       string
	CancelRequested    bool
	Attempt            int
	CurrentSpeechIndex int
	TotalSpeechCount   int
	ProgressStage      string
	ProgressPercent    float64
	ProgressMessage    string
	OutputsJSON        string
	ErrorMessage       string
	ErrorKind          string
	NotBefore          *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
	StartedAt          *time.Time
	CompletedAt        *time.Time
	LastHeartbeat      *time.Time
}

// DatabaseHealth captures diagnostic information about the queue database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    string
	TableExists      bool
	ColumnsPresent   []string
	MissingColumns   []string
	IntegrityCheck   bool
	TotalJobs        int
	Error            string
}

// HealthSummary describes aggregated queue counts per key lifecycle states.
type HealthSummary struct {
	Total     int
	Waiting   int
	Active    int
	Failed    int
	Completed int
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// ParseKind converts a string into a known JobKind.
func ParseKind(value string) (JobKind, bool) {
	switch JobKind(strings.ToLower(strings.TrimSpace(value))) {
	case KindNarration:
		return KindNarration, true
	case KindAssembly:
		return KindAssembly, true
	default:
		return "", false
	}
}

// IsTerminal reports whether a status is final history.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsOpen reports whether a status occupies the per-chapter exclusivity slot.
func (s Status) IsOpen() bool {
	return !s.IsTerminal()
}

// IsActive reports whether the job is currently held by a worker.
func (j Job) IsActive() bool {
	return j.Status == StatusActive
}

// InitProgress resets progress fields for a fresh attempt.
func (j *Job) InitProgress(stage, message string) {
	j.ProgressStage = stage
	j.ProgressMessage = message
	j.ProgressPercent = 0
	j.ErrorMessage = ""
	j.ErrorKind = ""
}

// SetProgress updates all three progress fields together.
func (j *Job) SetProgress(stage, message string, percent float64) {
	j.ProgressStage = stage
	j.ProgressMessage = message
	j.ProgressPercent = percent
}

// SetProgressComplete sets progress to 100% with the given stage and message.
func (j *Job) SetProgressComplete(stage, message string) {
	j.SetProgress(stage, message, 100)
}

// SetFailed marks the job failed with the given reason and classification.
func (j *Job) SetFailed(message, kind string) {
	now := time.Now().UTC()
	j.Status = StatusFailed
	j.ErrorMessage = message
	j.ErrorKind = kind
	j.ProgressMessage = message
	j.LastHeartbeat = nil
	j.NotBefore = nil
	j.CompletedAt = &now
}

// SetCompleted marks the job completed and stamps the completion time.
func (j *Job) SetCompleted(stage, message string) {
	now := time.Now().UTC()
	j.Status = StatusCompleted
	j.SetProgressComplete(stage, message)
	j.ErrorMessage = ""
	j.ErrorKind = ""
	j.LastHeartbeat = nil
	j.NotBefore = nil
	j.CompletedAt = &now
}

// ProcessingLane partitions workflow into the synthesis lane and the
// CPU-bound assembly lane.
type ProcessingLane string

const (
	LaneNarration ProcessingLane = "narration"
	LaneAssembly  ProcessingLane = "assembly"
)

// LaneForKind maps a job kind to its processing lane.
func LaneForKind(kind JobKind) ProcessingLane {
	if kind == KindAssembly {
		return LaneAssembly
	}
	return LaneNarration
}
