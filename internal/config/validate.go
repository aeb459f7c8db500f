package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateTTS(); err != nil {
		return err
	}
	if err := c.validateAudio(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateTTS() error {
	switch c.TTS.Provider {
	case "gemini":
		if c.TTS.Gemini.APIKey == "" {
			defaultPath, err := DefaultConfigPath()
			if err != nil {
				defaultPath = "~/.config/inkvoice/config.toml"
			}
			return fmt.Errorf("tts.gemini.api_key is required. Set GEMINI_API_KEY env var or edit %s (create with 'inkvoice config init')", defaultPath)
		}
	case "elevenlabs":
		if c.TTS.ElevenLabs.APIKey == "" {
			defaultPath, err := DefaultConfigPath()
			if err != nil {
				defaultPath = "~/.config/inkvoice/config.toml"
			}
			return fmt.Errorf("tts.elevenlabs.api_key is required. Set ELEVENLABS_API_KEY env var or edit %s (create with 'inkvoice config init')", defaultPath)
		}
	default:
		return fmt.Errorf("tts.provider must be one of gemini, elevenlabs (got %q)", c.TTS.Provider)
	}
	if strings.TrimSpace(c.TTS.DefaultVoice) == "" {
		return errors.New("tts.default_voice must be set")
	}
	if c.TTS.MaxAttempts < 1 {
		return errors.New("tts.max_attempts must be >= 1")
	}
	return nil
}

func (c *Config) validateAudio() error {
	if c.Audio.TargetLoudness >= 0 {
		return errors.New("audio.target_loudness must be negative (LUFS)")
	}
	if c.Audio.TruePeak > 0 {
		return errors.New("audio.true_peak must be <= 0 (dBTP)")
	}
	if c.Audio.LoudnessRange <= 0 {
		return errors.New("audio.loudness_range must be positive (LU)")
	}
	if c.Audio.SilenceThresholdDB >= 0 {
		return errors.New("audio.silence_threshold_db must be negative")
	}
	if len(c.Audio.Bitrates) == 0 {
		return errors.New("audio.bitrates must include at least one bitrate")
	}
	for _, rate := range c.Audio.Bitrates {
		if rate <= 0 {
			return fmt.Errorf("audio.bitrates entries must be positive, got %d", rate)
		}
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if err := ensurePositiveMap(map[string]int{
		"tts.request_timeout":           c.TTS.RequestTimeout,
		"audio.encode_timeout":          c.Audio.EncodeTimeout,
		"audio.probe_timeout":           c.Audio.ProbeTimeout,
		"notifications.request_timeout": c.Notifications.RequestTimeout,
		"workflow.queue_poll_interval":  c.Workflow.QueuePollInterval,
		"workflow.error_retry_interval": c.Workflow.ErrorRetryInterval,
		"workflow.narration_workers":    c.Workflow.NarrationWorkers,
		"workflow.assembly_workers":     c.Workflow.AssemblyWorkers,
	}); err != nil {
		return err
	}
	if c.Workflow.HeartbeatInterval <= 0 {
		return errors.New("workflow.heartbeat_interval must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= 0 {
		return errors.New("workflow.heartbeat_timeout must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= c.Workflow.HeartbeatInterval {
		return errors.New("workflow.heartbeat_timeout must be greater than workflow.heartbeat_interval")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if strings.TrimSpace(c.Notifications.NtfyTopic) != "" && c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive when ntfy_topic is set")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
