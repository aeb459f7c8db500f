package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
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

const geminiSampleRate = 24000

// Gemini voices are a fixed catalog published with the speech generation API.
var geminiVoices = []Voice{
	{ID: "Zephyr", Name: "Zephyr", Gender: "NEUTRAL", Description: "Bright - Cheerful"},
	{ID: "Puck", Name: "Puck", Gender: "MALE", Description: "Upbeat - Young"},
	{ID: "Charon", Name: "Charon", Gender: "MALE", Description: "Informative - Narrator"},
	{ID: "Kore", Name: "Kore", Gender: "FEMALE", Description: "Firm - Serious"},
	{ID: "Fenrir", Name: "Fenrir", Gender: "MALE", Description: "Excitable - Energetic"},
	{ID: "Leda", Name: "Leda", Gender: "FEMALE", Description: "Youthful"},
	{ID: "Orus", Name: "Orus", Gender: "MALE", Description: "Firm - Authoritative"},
	{ID: "Aoede", Name: "Aoede", Gender: "FEMALE", Description: "Breezy - Relaxed"},
	{ID: "Callirrhoe", Name: "Callirrhoe", Gender: "FEMALE", Description: "Easy-going - Calm"},
	{ID: "Autonoe", Name: "Autonoe", Gender: "FEMALE", Description: "Bright - Optimistic"},
	{ID: "Enceladus", Name: "Enceladus", Gender: "MALE", Description: "Breathy - Mysterious"},
	{ID: "Iapetus", Name: "Iapetus", Gender: "MALE", Description: "Clear - Crisp"},
	{ID: "Umbriel", Name: "Umbriel", Gender: "MALE", Description: "Easy-going - Relaxed"},
	{ID: "Algieba", Name: "Algieba", Gender: "FEMALE", Description: "Smooth - Gentle"},
	{ID: "Despina", Name: "Despina", Gender: "FEMALE", Description: "Smooth - Elegant"},
	{ID: "Erinome", Name: "Erinome", Gender: "FEMALE", Description: "Clear - Neutral"},
	{ID: "Algenib", Name: "Algenib", Gender: "MALE", Description: "Gravelly - Deep"},
	{ID: "Rasalgethi", Name: "Rasalgethi", Gender: "MALE", Description: "Informative"},
	{ID: "Laomedeia", Name: "Laomedeia", Gender: "FEMALE", Description: "Upbeat - Cheerful"},
	{ID: "Achernar", Name: "Achernar", Gender: "FEMALE", Description: "Soft - Delicate"},
	{ID: "Alnilam", Name: "Alnilam", Gender: "MALE", Description: "Firm - Assertive"},
	{ID: "Schedar", Name: "Schedar", Gender: "MALE", Description: "Even - Balanced narrator"},
	{ID: "Gacrux", Name: "Gacrux", Gender: "MALE", Description: "Mature - Experienced"},
	{ID: "Pulcherrima", Name: "Pulcherrima", Gender: "FEMALE", Description: "Forward - Assertive"},
	{ID: "Achird", Name: "Achird", Gender: "MALE", Description: "Friendly - Approachable"},
	{ID: "Zubenelgenubi", Name: "Zubenelgenubi", Gender: "MALE", Description: "Casual - Informal"},
	{ID: "Vindemiatrix", Name: "Vindemiatrix", Gender: "FEMALE", Description: "Gentle - Caring"},
	{ID: "Sadachbia", Name: "Sadachbia", Gender: "MALE", Description: "Lively - Vivacious"},
	{ID: "Sadaltager", Name: "Sadaltager", Gender: "MALE", Description: "Knowledgeable - Wise"},
	{ID: "Sulafat", Name: "Sulafat", Gender: "FEMALE", Description: "Warm - Welcoming"},
}

// GeminiOptions configures the Gemini speech provider.
type GeminiOptions struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
	Logger  *slog.Logger

	// HTTPClient overrides the default client in tests.
	HTTPClient *http.Client
}

// GeminiProvider synthesizes speech through the Gemini generateContent API.
// The API returns raw PCM which is framed into WAV before handing it back.
type GeminiProvider struct {
	apiKey     string
	baseURL    string
	model      string
	logger     *slog.Logger
	httpClient *http.Client
}

var _ Provider = (*GeminiProvider)(nil)

// NewGemini creates the Gemini provider, failing fast on missing credentials.
func NewGemini(opts GeminiOptions) (*GeminiProvider, error) {
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return nil, services.Wrap(services.ErrConfiguration, "synthesis", "new_provider", "gemini api key required", nil)
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, services.Wrap(services.ErrConfiguration, "synthesis", "new_provider", "gemini base url required", nil)
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		return nil, services.Wrap(services.ErrConfiguration, "synthesis", "new_provider", "gemini model required", nil)
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
	return &GeminiProvider{
		apiKey:     apiKey,
		baseURL:    baseURL,
		model:      model,
		logger:     logging.NewComponentLogger(logger, "tts-gemini"),
		httpClient: client,
	}, nil
}

// Name identifies the provider in logs and API payloads.
func (p *GeminiProvider) Name() string { return "gemini" }

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiGenerationConfig struct {
	ResponseModalities []string           `json:"responseModalities"`
	SpeechConfig       geminiSpeechConfig `json:"speechConfig"`
}

type geminiSpeechConfig struct {
	VoiceConfig geminiVoiceConfig `json:"voiceConfig"`
}

type geminiVoiceConfig struct {
	PrebuiltVoiceConfig geminiPrebuiltVoice `json:"prebuiltVoiceConfig"`
}

type geminiPrebuiltVoice struct {
	VoiceName string `json:"voiceName"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// GenerateAudio synthesizes one request and returns WAV audio.
func (p *GeminiProvider) GenerateAudio(ctx context.Context, req Request) (Result, error) {
	voiceID := strings.TrimSpace(req.VoiceID)
	if voiceID == "" {
		return Result{}, services.Wrap(services.ErrInvalidVoice, "synthesis", "generate_audio", "voice id is empty", nil)
	}
	if !geminiHasVoice(voiceID) {
		return Result{}, services.Wrap(services.ErrInvalidVoice, "synthesis", "generate_audio",
			fmt.Sprintf("voice %q is not a gemini voice", voiceID), nil)
	}

	body := geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: req.Text}}}},
		GenerationConfig: geminiGenerationConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig: geminiSpeechConfig{
				VoiceConfig: geminiVoiceConfig{
					PrebuiltVoiceConfig: geminiPrebuiltVoice{VoiceName: voiceID},
				},
			},
		},
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		return Result{}, services.Wrap(services.ErrSynthesis, "synthesis", "generate_audio", "encode request", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", p.baseURL, url.PathEscape(p.model), url.QueryEscape(p.apiKey))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return Result{}, services.Wrap(services.ErrSynthesis, "synthesis", "generate_audio", "build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

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

	var decoded geminiResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return Result{}, services.Wrap(services.ErrSynthesis, "synthesis", "generate_audio", "decode response", err)
	}
	pcm, err := geminiExtractAudio(decoded)
	if err != nil {
		return Result{}, err
	}

	p.logger.Debug("synthesized speech",
		logging.String(logging.FieldProvider, "gemini"),
		logging.String(logging.FieldVoice, voiceID),
		logging.Int("pcm_bytes", len(pcm)),
		logging.Duration("latency", latency))

	return Result{
		Data:       EncodeWAV(pcm, geminiSampleRate, 1, 16),
		Format:     "wav",
		SampleRate: geminiSampleRate,
	}, nil
}

// Voices returns the fixed Gemini voice catalog.
func (p *GeminiProvider) Voices(_ context.Context) ([]Voice, error) {
	voices := make([]Voice, len(geminiVoices))
	copy(voices, geminiVoices)
	for i := range voices {
		voices[i].Provider = "gemini"
	}
	return voices, nil
}

func geminiHasVoice(voiceID string) bool {
	for _, voice := range geminiVoices {
		if voice.ID == voiceID {
			return true
		}
	}
	return false
}

func geminiExtractAudio(decoded geminiResponse) ([]byte, error) {
	if decoded.Error != nil {
		return nil, services.Wrap(services.ErrSynthesis, "synthesis", "generate_audio",
			fmt.Sprintf("provider error %d: %s", decoded.Error.Code, decoded.Error.Message), nil)
	}
	for _, candidate := range decoded.Candidates {
		for _, part := range candidate.Content.Parts {
			if part.InlineData == nil || part.InlineData.Data == "" {
				continue
			}
			pcm, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
			if err != nil {
				return nil, services.Wrap(services.ErrSynthesis, "synthesis", "generate_audio", "decode inline audio", err)
			}
			if len(pcm) == 0 {
				return nil, services.Wrap(services.ErrSynthesis, "synthesis", "generate_audio", "empty audio payload", nil)
			}
			return pcm, nil
		}
	}
	return nil, services.Wrap(services.ErrSynthesis, "synthesis", "generate_audio", "no audio data in response", nil)
}

func classifyTransportError(operation string, err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return services.Wrap(services.ErrTimeout, "synthesis", operation, "request timed out", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return services.Wrap(services.ErrTimeout, "synthesis", operation, "request timed out", err)
	}
	return services.Wrap(services.ErrUnavailable, "synthesis", operation, "request failed", err)
}

func classifyHTTPStatus(operation string, status int, body []byte) error {
	detail := strings.TrimSpace(string(body))
	if len(detail) > 300 {
		detail = detail[:300]
	}
	message := fmt.Sprintf("provider returned %d: %s", status, detail)
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return services.Wrap(services.ErrConfiguration, "synthesis", operation, message, nil)
	case status == http.StatusNotFound && operation == "generate_audio":
		// The synthesis endpoint embeds the voice id in its path, so a 404
		// means the provider does not know the voice.
		return services.Wrap(services.ErrInvalidVoice, "synthesis", operation, message, nil)
	case status == http.StatusNotFound || status == http.StatusBadRequest:
		return services.Wrap(services.ErrInvalidInput, "synthesis", operation, message, nil)
	case status == http.StatusTooManyRequests || status >= 500:
		return services.Wrap(services.ErrUnavailable, "synthesis", operation, message, nil)
	default:
		return services.Wrap(services.ErrSynthesis, "synthesis", operation, message, nil)
	}
}
