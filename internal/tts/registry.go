package tts

import (
	"fmt"
	"log/slog"
	"time"

	"inkvoice/internal/config"
	"inkvoice/internal/logging"
	"inkvoice/internal/services"
)

// NewProvider builds the synthesis provider selected by configuration. An
// unknown provider name or missing credentials fail here, before any job is
// claimed.
func NewProvider(cfg *config.Config, logger *slog.Logger) (Provider, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	timeout := time.Duration(cfg.TTS.RequestTimeout) * time.Second

	switch cfg.TTS.Provider {
	case "gemini":
		return NewGemini(GeminiOptions{
			APIKey:  cfg.TTS.Gemini.APIKey,
			BaseURL: cfg.TTS.Gemini.BaseURL,
			Model:   cfg.TTS.Gemini.Model,
			Timeout: timeout,
			Logger:  logger,
		})
	case "elevenlabs":
		return NewElevenLabs(ElevenLabsOptions{
			APIKey:  cfg.TTS.ElevenLabs.APIKey,
			BaseURL: cfg.TTS.ElevenLabs.BaseURL,
			ModelID: cfg.TTS.ElevenLabs.ModelID,
			Timeout: timeout,
			Logger:  logger,
		})
	default:
		return nil, services.Wrap(services.ErrConfiguration, "synthesis", "new_provider",
			fmt.Sprintf("unknown tts provider %q", cfg.TTS.Provider), nil)
	}
}

// NewCatalogFromConfig builds the cached voice catalog for the configured
// provider.
func NewCatalogFromConfig(cfg *config.Config, provider Provider) *Catalog {
	return NewCatalog(provider, time.Duration(cfg.TTS.CatalogTTLSeconds)*time.Second)
}
