package tts

import (
	"context"
	"fmt"
	"strings"

	"inkvoice/internal/services"
)

// Voice describes a synthesis voice offered by a provider.
type Voice struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	LanguageCode string `json:"languageCode"`
	Gender       string `json:"gender"`
	Provider     string `json:"provider"`
	Description  string `json:"description,omitempty"`
	PreviewURL   string `json:"previewUrl,omitempty"`
}

// Request carries one synthesis invocation.
type Request struct {
	Text    string
	VoiceID string
}

// Result is the audio produced by a provider for a single request.
type Result struct {
	Data       []byte
	Format     string
	SampleRate int
	// BitrateKbps is set for compressed formats so callers can estimate
	// playback duration without decoding.
	BitrateKbps int
}

// Provider is implemented by each speech synthesis backend.
type Provider interface {
	Name() string
	GenerateAudio(ctx context.Context, req Request) (Result, error)
	Voices(ctx context.Context) ([]Voice, error)
}

const previewSampleText = "Hello! This is a preview of the voice %s. How are you today?"

// PreviewText returns the sample sentence used when previewing a voice
// without caller-supplied text.
func PreviewText(voiceID string) string {
	return fmt.Sprintf(previewSampleText, voiceID)
}

// Synthesize validates the request and invokes the provider. Empty or
// whitespace-only text is rejected here so providers are never called with
// nothing to say.
func Synthesize(ctx context.Context, provider Provider, req Request) (Result, error) {
	if strings.TrimSpace(req.Text) == "" {
		return Result{}, services.Wrap(services.ErrInvalidInput, "synthesis", "generate_audio", "speech text is empty", nil)
	}
	return provider.GenerateAudio(ctx, req)
}

// PreviewVoice synthesizes the preview sample for a voice, using sampleText
// when the caller provides one.
func PreviewVoice(ctx context.Context, provider Provider, voiceID, sampleText string) (Result, error) {
	voiceID = strings.TrimSpace(voiceID)
	if voiceID == "" {
		return Result{}, services.Wrap(services.ErrInvalidVoice, "preview", "preview_voice", "voice id is empty", nil)
	}
	text := strings.TrimSpace(sampleText)
	if text == "" {
		text = PreviewText(voiceID)
	}
	return Synthesize(ctx, provider, Request{Text: text, VoiceID: voiceID})
}
