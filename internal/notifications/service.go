package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"inkvoice/internal/config"
)

const userAgent = "Inkvoice/0.1.0"

// Event identifies a notification-worthy pipeline milestone.
type Event string

const (
	EventNarrationStarted   Event = "narration_started"
	EventNarrationCompleted Event = "narration_completed"
	EventNarrationFailed    Event = "narration_failed"
	EventAssemblyCompleted  Event = "assembly_completed"
	EventAssemblyFailed     Event = "assembly_failed"
	EventError              Event = "error"
	EventTest               Event = "test"
)

// Payload carries event-specific fields referenced by the message templates.
type Payload map[string]string

// Service publishes milestone notifications.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:  topic,
		client:    &http.Client{Timeout: timeout},
		narration: cfg.Notifications.Narration,
		assembly:  cfg.Notifications.Assembly,
		errors:    cfg.Notifications.Errors,
	}
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint  string
	client    *http.Client
	narration bool
	assembly  bool
	errors    bool
}

// Publish formats and sends one milestone. Events disabled by configuration
// are dropped silently; notification failures never fail the pipeline.
func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	if !n.enabled(event) {
		return nil
	}
	msg, ok := format(event, payload)
	if !ok {
		return fmt.Errorf("unknown notification event %q", event)
	}
	return n.send(ctx, msg)
}

func (n *ntfyService) enabled(event Event) bool {
	switch event {
	case EventNarrationStarted, EventNarrationCompleted, EventNarrationFailed:
		return n.narration
	case EventAssemblyCompleted, EventAssemblyFailed:
		return n.assembly
	case EventError:
		return n.errors
	default:
		return true
	}
}

func format(event Event, payload Payload) (message, bool) {
	chapter := strings.TrimSpace(payload["chapterId"])
	switch event {
	case EventNarrationStarted:
		return message{
			title: "Inkvoice - Narration Started",
			body:  fmt.Sprintf("Narrating chapter %s (%s speeches)", chapter, valueOr(payload, "totalSpeeches", "?")),
			tags:  []string{"inkvoice", "narration", "started"},
		}, true
	case EventNarrationCompleted:
		return message{
			title: "Inkvoice - Narration Complete",
			body:  fmt.Sprintf("Chapter %s narrated: %s speeches ready", chapter, valueOr(payload, "totalSpeeches", "?")),
			tags:  []string{"inkvoice", "narration", "completed"},
		}, true
	case EventNarrationFailed:
		return message{
			title:    "Inkvoice - Narration Failed",
			body:     fmt.Sprintf("Chapter %s narration failed: %s", chapter, valueOr(payload, "error", "unknown")),
			tags:     []string{"inkvoice", "narration", "failed"},
			priority: "high",
		}, true
	case EventAssemblyCompleted:
		return message{
			title:    "Inkvoice - Audio Ready",
			body:     fmt.Sprintf("Chapter %s audio published at %s kbps", chapter, valueOr(payload, "bitrates", "?")),
			tags:     []string{"inkvoice", "assembly", "completed"},
			priority: "high",
		}, true
	case EventAssemblyFailed:
		return message{
			title:    "Inkvoice - Assembly Failed",
			body:     fmt.Sprintf("Chapter %s assembly failed at %s: %s", chapter, valueOr(payload, "step", "?"), valueOr(payload, "error", "unknown")),
			tags:     []string{"inkvoice", "assembly", "failed"},
			priority: "high",
		}, true
	case EventError:
		body := "Error: " + valueOr(payload, "error", "unknown")
		if label := strings.TrimSpace(payload["context"]); label != "" {
			body = fmt.Sprintf("Error with %s: %s", label, valueOr(payload, "error", "unknown"))
		}
		return message{
			title:    "Inkvoice - Error",
			body:     body,
			tags:     []string{"inkvoice", "error", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "Inkvoice - Test",
			body:     "Notification system test",
			tags:     []string{"inkvoice", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func valueOr(payload Payload, key, fallback string) string {
	if value := strings.TrimSpace(payload[key]); value != "" {
		return value
	}
	return fallback
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.Header.Set("Priority", msg.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
