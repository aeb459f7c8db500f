package config

const (
	defaultStagingDir       = "~/.local/share/inkvoice/staging"
	defaultOutputDir        = "~/.local/share/inkvoice/audio"
	defaultLogDir           = "~/.local/share/inkvoice/logs"
	defaultPreviewCacheDir  = "~/.cache/inkvoice/previews"
	defaultAPIBind          = "127.0.0.1:7833"
	defaultProvider         = "gemini"
	defaultVoice            = "Schedar"
	defaultGeminiBaseURL    = "https://generativelanguage.googleapis.com/v1beta"
	defaultGeminiModel      = "gemini-2.5-flash-preview-tts"
	defaultElevenLabsURL    = "https://api.elevenlabs.io/v1"
	defaultElevenLabsModel  = "eleven_multilingual_v2"
	defaultRequestTimeout   = 120
	defaultMaxAttempts      = 3
	defaultRetryBaseDelayMS = 500
	defaultCatalogTTL       = 3600
	defaultTargetLoudness   = -16.0
	defaultTruePeak         = -1.5
	defaultLoudnessRange    = 11.0
	defaultSilenceThreshold = -40.0
	defaultSampleRate       = 44100
	defaultEncodeTimeout    = 600
	defaultProbeTimeout     = 30
	defaultPreviewEntries   = 200
	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
	defaultHeartbeatTick    = 15
	defaultHeartbeatExpiry  = 120
)

func defaultBitrates() []int { return []int{64, 128, 192} }

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StagingDir:      defaultStagingDir,
			OutputDir:       defaultOutputDir,
			LogDir:          defaultLogDir,
			PreviewCacheDir: defaultPreviewCacheDir,
			APIBind:         defaultAPIBind,
		},
		TTS: TTS{
			Provider:          defaultProvider,
			DefaultVoice:      defaultVoice,
			RequestTimeout:    defaultRequestTimeout,
			MaxAttempts:       defaultMaxAttempts,
			RetryBaseDelayMS:  defaultRetryBaseDelayMS,
			ContinueOnError:   true,
			CatalogTTLSeconds: defaultCatalogTTL,
			Gemini: Gemini{
				BaseURL: defaultGeminiBaseURL,
				Model:   defaultGeminiModel,
			},
			ElevenLabs: ElevenLabs{
				BaseURL: defaultElevenLabsURL,
				ModelID: defaultElevenLabsModel,
			},
		},
		Audio: Audio{
			TargetLoudness:     defaultTargetLoudness,
			TruePeak:           defaultTruePeak,
			LoudnessRange:      defaultLoudnessRange,
			SilenceThresholdDB: defaultSilenceThreshold,
			SampleRate:         defaultSampleRate,
			Bitrates:           defaultBitrates(),
			EncodeTimeout:      defaultEncodeTimeout,
			ProbeTimeout:       defaultProbeTimeout,
		},
		Preview: Preview{
			Enabled:    true,
			MaxEntries: defaultPreviewEntries,
		},
		Notifications: Notifications{
			RequestTimeout: 10,
			Narration:      true,
			Assembly:       true,
			Errors:         true,
		},
		Workflow: Workflow{
			QueueEnabled:       true,
			QueuePollInterval:  5,
			ErrorRetryInterval: 10,
			HeartbeatInterval:  defaultHeartbeatTick,
			HeartbeatTimeout:   defaultHeartbeatExpiry,
			NarrationWorkers:   1,
			AssemblyWorkers:    1,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
