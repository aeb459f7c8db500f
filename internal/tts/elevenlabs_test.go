package tts

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"inkvoice/internal/services"
)

func newElevenLabsForTest(t *testing.T, handler http.Handler) *ElevenLabsProvider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	provider, err := NewElevenLabs(ElevenLabsOptions{
		APIKey:     "el-key",
		BaseURL:    server.URL,
		ModelID:    "eleven_multilingual_v2",
		HTTPClient: server.Client(),
	})
	if err != nil {
		t.Fatalf("NewElevenLabs: %v", err)
	}
	return provider
}

func TestElevenLabsGenerateAudio(t *testing.T) {
	provider := newElevenLabsForTest(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("xi-api-key") != "el-key" {
			t.Errorf("missing xi-api-key header")
		}
		if r.URL.Path != "/text-to-speech/voice-1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("output_format"); got != "mp3_44100_128" {
			t.Errorf("unexpected output format %q", got)
		}
		var body elevenLabsRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body.ModelID != "eleven_multilingual_v2" {
			t.Errorf("unexpected model id %q", body.ModelID)
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("mp3-bytes"))
	}))

	result, err := provider.GenerateAudio(context.Background(), Request{Text: "Hello.", VoiceID: "voice-1"})
	if err != nil {
		t.Fatalf("GenerateAudio: %v", err)
	}
	if result.Format != "mp3" {
		t.Fatalf("expected mp3, got %q", result.Format)
	}
	if string(result.Data) != "mp3-bytes" {
		t.Fatalf("unexpected payload %q", result.Data)
	}
	if result.BitrateKbps != 128 {
		t.Fatalf("expected 128 kbps, got %d", result.BitrateKbps)
	}
}

func TestElevenLabsVoices(t *testing.T) {
	provider := newElevenLabsForTest(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/voices" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"voices": []map[string]any{
				{"voice_id": "v1", "name": "Ana", "labels": map[string]string{"gender": "female"}, "preview_url": "https://cdn/v1.mp3"},
				{"voice_id": "v2", "name": "Bruno"},
				{"voice_id": "v1", "name": "Ana (shared)"},
			},
		})
	}))

	voices, err := provider.Voices(context.Background())
	if err != nil {
		t.Fatalf("Voices: %v", err)
	}
	if len(voices) != 2 {
		t.Fatalf("expected repeated voice ids collapsed to 2 voices, got %d", len(voices))
	}
	if voices[0].Name != "Ana" {
		t.Fatalf("expected first occurrence kept, got %q", voices[0].Name)
	}
	if voices[0].Gender != "FEMALE" {
		t.Fatalf("expected gender upcased, got %q", voices[0].Gender)
	}
	if voices[1].Gender != "NEUTRAL" {
		t.Fatalf("expected neutral fallback, got %q", voices[1].Gender)
	}
	if voices[0].Provider != "elevenlabs" {
		t.Fatalf("missing provider label")
	}
}

func TestElevenLabsUnknownVoice(t *testing.T) {
	provider := newElevenLabsForTest(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":{"status":"voice_not_found"}}`, http.StatusNotFound)
	}))
	_, err := provider.GenerateAudio(context.Background(), Request{Text: "hi", VoiceID: "v-missing"})
	if !errors.Is(err, services.ErrInvalidVoice) {
		t.Fatalf("expected invalid voice, got %v", err)
	}
	if services.IsRetryable(err) {
		t.Fatal("unknown voice must not be retryable")
	}
}

func TestElevenLabsRateLimited(t *testing.T) {
	provider := newElevenLabsForTest(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	_, err := provider.GenerateAudio(context.Background(), Request{Text: "hi", VoiceID: "v"})
	if !errors.Is(err, services.ErrUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
	if !services.IsRetryable(err) {
		t.Fatal("rate limit errors must be retryable")
	}
}
