package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnavailable marks provider or backend outages that are worth retrying.
	ErrUnavailable = errors.New("service unavailable")
	// ErrInvalidVoice marks requests that name a voice the provider does not offer.
	ErrInvalidVoice = errors.New("invalid voice")
	// ErrInvalidInput marks malformed or rejected input such as bad speech markup.
	ErrInvalidInput = errors.New("invalid input")
	// ErrSynthesis marks provider-side synthesis failures on otherwise valid input.
	ErrSynthesis = errors.New("synthesis error")
	// ErrUnreadableMedia marks audio artifacts that cannot be probed or decoded.
	ErrUnreadableMedia = errors.New("unreadable media")
	// ErrIncompleteSource marks chapters whose narration artifacts are missing or stale.
	ErrIncompleteSource = errors.New("incomplete source")
	// ErrConflict marks requests that collide with work already in flight.
	ErrConflict = errors.New("conflict")
	// ErrExternalTool marks failures of spawned binaries such as ffmpeg or ffprobe.
	ErrExternalTool = errors.New("external tool error")
	// ErrConfiguration marks invalid or missing configuration.
	ErrConfiguration = errors.New("configuration error")
	// ErrNotFound marks lookups that matched nothing.
	ErrNotFound = errors.New("not found")
	// ErrTimeout marks operations cancelled by deadline.
	ErrTimeout = errors.New("timeout")
	// ErrTransient marks failures with no better classification that may clear on retry.
	ErrTransient = errors.New("transient failure")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsRetryable reports whether a stage error should be attempted again rather
// than failing the job outright. Bad input, unknown voices, and configuration
// mistakes never clear on their own, so they fail fast.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrInvalidVoice),
		errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrConfiguration),
		errors.Is(err, ErrConflict),
		errors.Is(err, ErrIncompleteSource),
		errors.Is(err, ErrNotFound):
		return false
	case errors.Is(err, ErrUnavailable),
		errors.Is(err, ErrSynthesis),
		errors.Is(err, ErrExternalTool),
		errors.Is(err, ErrTimeout),
		errors.Is(err, ErrTransient):
		return true
	default:
		return false
	}
}

// ErrorKind returns the short classification label recorded alongside failed
// jobs and surfaced through the API.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	case errors.Is(err, ErrInvalidVoice):
		return "invalid_voice"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrSynthesis):
		return "synthesis"
	case errors.Is(err, ErrUnreadableMedia):
		return "unreadable_media"
	case errors.Is(err, ErrIncompleteSource):
		return "incomplete_source"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrExternalTool):
		return "external_tool"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	default:
		return "transient"
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
