package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeTTS()
	c.normalizeAudio()
	c.normalizePreview()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.PreviewCacheDir) == "" {
		c.Paths.PreviewCacheDir = defaultPreviewCacheDir
	}
	if c.Paths.PreviewCacheDir, err = expandPath(c.Paths.PreviewCacheDir); err != nil {
		return fmt.Errorf("paths.preview_cache_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	return nil
}

func (c *Config) normalizeTTS() {
	c.TTS.Provider = strings.ToLower(strings.TrimSpace(c.TTS.Provider))
	if c.TTS.Provider == "" {
		c.TTS.Provider = defaultProvider
	}
	c.TTS.DefaultVoice = strings.TrimSpace(c.TTS.DefaultVoice)
	if c.TTS.DefaultVoice == "" {
		c.TTS.DefaultVoice = defaultVoice
	}
	if c.TTS.RequestTimeout <= 0 {
		c.TTS.RequestTimeout = defaultRequestTimeout
	}
	if c.TTS.MaxAttempts <= 0 {
		c.TTS.MaxAttempts = defaultMaxAttempts
	}
	if c.TTS.RetryBaseDelayMS <= 0 {
		c.TTS.RetryBaseDelayMS = defaultRetryBaseDelayMS
	}
	if c.TTS.CatalogTTLSeconds <= 0 {
		c.TTS.CatalogTTLSeconds = defaultCatalogTTL
	}

	c.TTS.Gemini.APIKey = strings.TrimSpace(c.TTS.Gemini.APIKey)
	if c.TTS.Gemini.APIKey == "" {
		if value, ok := os.LookupEnv("GEMINI_API_KEY"); ok {
			c.TTS.Gemini.APIKey = strings.TrimSpace(value)
		}
	}
	c.TTS.Gemini.BaseURL = strings.TrimSpace(c.TTS.Gemini.BaseURL)
	if c.TTS.Gemini.BaseURL == "" {
		c.TTS.Gemini.BaseURL = defaultGeminiBaseURL
	}
	c.TTS.Gemini.Model = strings.TrimSpace(c.TTS.Gemini.Model)
	if c.TTS.Gemini.Model == "" {
		c.TTS.Gemini.Model = defaultGeminiModel
	}

	c.TTS.ElevenLabs.APIKey = strings.TrimSpace(c.TTS.ElevenLabs.APIKey)
	if c.TTS.ElevenLabs.APIKey == "" {
		if value, ok := os.LookupEnv("ELEVENLABS_API_KEY"); ok {
			c.TTS.ElevenLabs.APIKey = strings.TrimSpace(value)
		}
	}
	c.TTS.ElevenLabs.BaseURL = strings.TrimSpace(c.TTS.ElevenLabs.BaseURL)
	if c.TTS.ElevenLabs.BaseURL == "" {
		c.TTS.ElevenLabs.BaseURL = defaultElevenLabsURL
	}
	c.TTS.ElevenLabs.ModelID = strings.TrimSpace(c.TTS.ElevenLabs.ModelID)
	if c.TTS.ElevenLabs.ModelID == "" {
		c.TTS.ElevenLabs.ModelID = defaultElevenLabsModel
	}
}

func (c *Config) normalizeAudio() {
	if c.Audio.SampleRate <= 0 {
		c.Audio.SampleRate = defaultSampleRate
	}
	if c.Audio.SilenceThresholdDB >= 0 {
		c.Audio.SilenceThresholdDB = defaultSilenceThreshold
	}
	if c.Audio.EncodeTimeout <= 0 {
		c.Audio.EncodeTimeout = defaultEncodeTimeout
	}
	if c.Audio.ProbeTimeout <= 0 {
		c.Audio.ProbeTimeout = defaultProbeTimeout
	}

	if len(c.Audio.Bitrates) == 0 {
		c.Audio.Bitrates = defaultBitrates()
		return
	}
	rates := make([]int, 0, len(c.Audio.Bitrates))
	seen := make(map[int]struct{}, len(c.Audio.Bitrates))
	for _, rate := range c.Audio.Bitrates {
		if rate <= 0 {
			continue
		}
		if _, exists := seen[rate]; exists {
			continue
		}
		seen[rate] = struct{}{}
		rates = append(rates, rate)
	}
	if len(rates) == 0 {
		rates = defaultBitrates()
	}
	sort.Ints(rates)
	c.Audio.Bitrates = rates
}

func (c *Config) normalizePreview() {
	if c.Preview.MaxEntries <= 0 {
		c.Preview.MaxEntries = defaultPreviewEntries
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
