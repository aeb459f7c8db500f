package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"inkvoice/internal/logging"
	"inkvoice/internal/services"
)

// ElevenLabsOptions configures the ElevenLabs speech provider.
type ElevenLabsOptions struct {
	APIKey  string
	BaseURL string
	ModelID string
	Timeout time.Duration
	Logger  *slog.Logger

	// HTTPClient overrides the default client in tests.
	HTTPClient *http.Client
}

// ElevenLabsProvider synthesizes speech through the ElevenLabs REST API and
// returns MP3 audio.
type ElevenLabsProvider struct {
	apiKey     string
	baseURL    string
	modelID    string
	logger     *slog.Logger
	httpClient *http.Client
}

var _ Provider = (*ElevenLabsProvider)(nil)

// NewElevenLabs creates the ElevenLabs provider, failing fast on missing
// credentials.
func NewElevenLabs(opts ElevenLabsOptions) (*ElevenLabsProvider, error) {
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return nil, services.Wrap(services.ErrConfiguration, "synthesis", "new_provider", "elevenlabs api key required", nil)
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, services.Wrap(services.ErrConfiguration, "synthesis", "new_provider", "elevenlabs base url required", nil)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &ElevenLabsProvider{
		apiKey:     apiKey,
		baseURL:    baseURL,
		modelID:    strings.TrimSpace(opts.ModelID),
		logger:     logging.NewComponentLogger(logger, "tts-elevenlabs"),
		httpClient: client,
	}, nil
}

// Name identifies the provider in logs and API payloads.
func (p *ElevenLabsProvider) Name() string { return "elevenlabs" }

type elevenLabsRequest struct {
	Text    string `json:"text"`
	ModelID string `json:"model_id,omitempty"`
}

type elevenLabsVoice struct {
	VoiceID     string            `json:"voice_id"`
	Name        string            `json:"name"`
	Labels      map[string]string `json:"labels"`
	Description string            `json:"description"`
	PreviewURL  string            `json:"preview_url"`
}

type elevenLabsVoicesResponse struct {
	Voices []elevenLabsVoice `json:"voices"`
}

// GenerateAudio synthesizes one request and returns MP3 audio.
func (p *ElevenLabsProvider) GenerateAudio(ctx context.Context, req Request) (Result, error) {
	voiceID := strings.TrimSpace(req.VoiceID)
	if voiceID == "" {
		return Result{}, services.Wrap(services.ErrInvalidVoice, "synthesis", "generate_audio", "voice id is empty", nil)
	}

	body, err := json.Marshal(elevenLabsRequest{Text: req.Text, ModelID: p.modelID})
	if err != nil {
		return Result{}, services.Wrap(services.ErrSynthesis, "synthesis", "generate_audio", "encode request", err)
	}

	endpoint := fmt.Sprintf("%s/text-to-speech/%s?output_format=mp3_44100_128", p.baseURL, url.PathEscape(voiceID))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, services.Wrap(services.ErrSynthesis, "synthesis", "generate_audio", "build request", err)
	}
	httpReq.Header.Set("xi-api-key", p.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "audio/mpeg")

	requestStart := time.Now()
	resp, err := p.httpClient.Do(httpReq)
	latency := time.Since(requestStart)
	if err != nil {
		return Result{}, classifyTransportError("generate_audio", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return Result{}, services.Wrap(services.ErrUnavailable, "synthesis", "generate_audio", "read response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Result{}, classifyHTTPStatus("generate_audio", resp.StatusCode, payload)
	}
	if len(payload) == 0 {
		return Result{}, services.Wrap(services.ErrSynthesis, "synthesis", "generate_audio", "empty audio payload", nil)
	}

	p.logger.Debug("synthesized speech",
		logging.String(logging.FieldProvider, "elevenlabs"),
		logging.String(logging.FieldVoice, voiceID),
		logging.Int("mp3_bytes", len(payload)),
		logging.Duration("latency", latency))

	return Result{Data: payload, Format: "mp3", SampleRate: 44100, BitrateKbps: 128}, nil
}

// Voices lists the account's voices from the ElevenLabs API.
func (p *ElevenLabsProvider) Voices(ctx context.Context) ([]Voice, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/voices", nil)
	if err != nil {
		return nil, services.Wrap(services.ErrSynthesis, "synthesis", "list_voices", "build request", err)
	}
	httpReq.Header.Set("xi-api-key", p.apiKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, classifyTransportError("list_voices", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, services.Wrap(services.ErrUnavailable, "synthesis", "list_voices", "read response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, classifyHTTPStatus("list_voices", resp.StatusCode, payload)
	}

	var decoded elevenLabsVoicesResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, services.Wrap(services.ErrSynthesis, "synthesis", "list_voices", "decode response", err)
	}

	// Shared and cloned voices can repeat in the account listing.
	seen := make(map[string]struct{}, len(decoded.Voices))
	voices := make([]Voice, 0, len(decoded.Voices))
	for _, entry := range decoded.Voices {
		if _, dup := seen[entry.VoiceID]; dup {
			continue
		}
		seen[entry.VoiceID] = struct{}{}
		gender := strings.ToUpper(entry.Labels["gender"])
		if gender == "" {
			gender = "NEUTRAL"
		}
		voices = append(voices, Voice{
			ID:          entry.VoiceID,
			Name:        entry.Name,
			Gender:      gender,
			Provider:    "elevenlabs",
			Description: entry.Description,
			PreviewURL:  entry.PreviewURL,
		})
	}
	return voices, nil
}
