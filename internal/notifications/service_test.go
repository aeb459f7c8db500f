package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"inkvoice/internal/config"
	"inkvoice/internal/notifications"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventNarrationCompleted, notifications.Payload{"chapterId": "ch-1"}); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		event          notifications.Event
		payload        notifications.Payload
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name:          "narration started",
			event:         notifications.EventNarrationStarted,
			payload:       notifications.Payload{"chapterId": "ch-1", "totalSpeeches": "12"},
			expectTitle:   "Inkvoice - Narration Started",
			expectMessage: "Narrating chapter ch-1 (12 speeches)",
			expectTags:    "inkvoice,narration,started",
		},
		{
			name:           "narration failed",
			event:          notifications.EventNarrationFailed,
			payload:        notifications.Payload{"chapterId": "ch-1", "error": "provider unavailable"},
			expectTitle:    "Inkvoice - Narration Failed",
			expectMessage:  "Chapter ch-1 narration failed: provider unavailable",
			expectTags:     "inkvoice,narration,failed",
			expectPriority: "high",
		},
		{
			name:           "assembly completed",
			event:          notifications.EventAssemblyCompleted,
			payload:        notifications.Payload{"chapterId": "ch-2", "bitrates": "64, 128, 192"},
			expectTitle:    "Inkvoice - Audio Ready",
			expectMessage:  "Chapter ch-2 audio published at 64, 128, 192 kbps",
			expectTags:     "inkvoice,assembly,completed",
			expectPriority: "high",
		},
		{
			name:           "error with context",
			event:          notifications.EventError,
			payload:        notifications.Payload{"error": "queue unavailable", "context": "startup"},
			expectTitle:    "Inkvoice - Error",
			expectMessage:  "Error with startup: queue unavailable",
			expectTags:     "inkvoice,error,alert",
			expectPriority: "high",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var gotTitle, gotBody, gotTags, gotPriority string
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				body, _ := io.ReadAll(r.Body)
				gotBody = string(body)
				gotTitle = r.Header.Get("Title")
				gotTags = r.Header.Get("Tags")
				gotPriority = r.Header.Get("Priority")
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			cfg := config.Default()
			cfg.Notifications.NtfyTopic = server.URL
			svc := notifications.NewService(&cfg)

			if err := svc.Publish(context.Background(), tc.event, tc.payload); err != nil {
				t.Fatalf("Publish: %v", err)
			}
			if gotTitle != tc.expectTitle {
				t.Fatalf("title = %q, want %q", gotTitle, tc.expectTitle)
			}
			if gotBody != tc.expectMessage {
				t.Fatalf("body = %q, want %q", gotBody, tc.expectMessage)
			}
			if gotTags != tc.expectTags {
				t.Fatalf("tags = %q, want %q", gotTags, tc.expectTags)
			}
			if gotPriority != tc.expectPriority {
				t.Fatalf("priority = %q, want %q", gotPriority, tc.expectPriority)
			}
		})
	}
}

func TestNtfyServiceRespectsCategoryToggles(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.Narration = false
	svc := notifications.NewService(&cfg)

	if err := svc.Publish(context.Background(), notifications.EventNarrationCompleted, notifications.Payload{"chapterId": "ch-1"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if requests != 0 {
		t.Fatalf("disabled category must not send, got %d requests", requests)
	}
}
