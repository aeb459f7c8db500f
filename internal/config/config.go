package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	StagingDir      string `toml:"staging_dir"`
	OutputDir       string `toml:"output_dir"`
	LogDir          string `toml:"log_dir"`
	PreviewCacheDir string `toml:"preview_cache_dir"`
	APIBind         string `toml:"api_bind"`
}

// TTS contains configuration for speech synthesis providers.
type TTS struct {
	Provider          string     `toml:"provider"`
	DefaultVoice      string     `toml:"default_voice"`
	RequestTimeout    int        `toml:"request_timeout"`
	MaxAttempts       int        `toml:"max_attempts"`
	RetryBaseDelayMS  int        `toml:"retry_base_delay_ms"`
	ContinueOnError   bool       `toml:"continue_on_error"`
	CatalogTTLSeconds int        `toml:"catalog_ttl_seconds"`
	Gemini            Gemini     `toml:"gemini"`
	ElevenLabs        ElevenLabs `toml:"elevenlabs"`
}

// Gemini contains configuration for the Gemini speech API.
type Gemini struct {
	APIKey  string `toml:"api_key"`
	BaseURL string `toml:"base_url"`
	Model   string `toml:"model"`
}

// ElevenLabs contains configuration for the ElevenLabs speech API.
type ElevenLabs struct {
	APIKey  string `toml:"api_key"`
	BaseURL string `toml:"base_url"`
	ModelID string `toml:"model_id"`
}

// Audio contains configuration for chapter audio assembly and encoding.
type Audio struct {
	TargetLoudness     float64 `toml:"target_loudness"`
	TruePeak           float64 `toml:"true_peak"`
	LoudnessRange      float64 `toml:"loudness_range"`
	SilenceThresholdDB float64 `toml:"silence_threshold_db"`
	SampleRate         int     `toml:"sample_rate"`
	Bitrates           []int   `toml:"bitrates"`
	EncodeTimeout      int     `toml:"encode_timeout"`
	ProbeTimeout       int     `toml:"probe_timeout"`
}

// Preview contains configuration for the voice preview cache.
type Preview struct {
	Enabled    bool `toml:"enabled"`
	MaxEntries int  `toml:"max_entries"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Narration      bool   `toml:"narration"`
	Assembly       bool   `toml:"assembly"`
	Errors         bool   `toml:"errors"`
}

// Workflow contains configuration for daemon timing and lane concurrency.
// Disabling the queue leaves the HTTP surface up but answers job submissions
// with a service-unavailable response.
type Workflow struct {
	QueueEnabled       bool `toml:"queue_enabled"`
	QueuePollInterval  int  `toml:"queue_poll_interval"`
	ErrorRetryInterval int  `toml:"error_retry_interval"`
	HeartbeatInterval  int  `toml:"heartbeat_interval"`
	HeartbeatTimeout   int  `toml:"heartbeat_timeout"`
	NarrationWorkers   int  `toml:"narration_workers"`
	AssemblyWorkers    int  `toml:"assembly_workers"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for inkvoice.
//
// Configuration sections by subsystem:
//   - Paths: directories and API bind address
//   - TTS: synthesis provider selection, credentials, and retry policy
//   - Audio: loudness targets, silence trimming, and encode bitrates
//   - Preview: voice preview cache behaviour
//   - Notifications: ntfy push notification settings
//   - Workflow: daemon polling intervals, heartbeats, and lane concurrency
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	TTS           TTS           `toml:"tts"`
	Audio         Audio         `toml:"audio"`
	Preview       Preview       `toml:"preview"`
	Notifications Notifications `toml:"notifications"`
	Workflow      Workflow      `toml:"workflow"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/inkvoice/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath("~/.config/inkvoice/config.toml")
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("inkvoice.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
// OutputDir is created on a best-effort basis so the daemon can run when
// external storage is temporarily unavailable.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StagingDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Paths.OutputDir) != "" {
		_ = os.MkdirAll(c.Paths.OutputDir, 0o755)
	}
	if c.Preview.Enabled && strings.TrimSpace(c.Paths.PreviewCacheDir) != "" {
		if err := os.MkdirAll(c.Paths.PreviewCacheDir, 0o755); err != nil {
			return fmt.Errorf("create preview cache directory %q: %w", c.Paths.PreviewCacheDir, err)
		}
	}
	return nil
}

// QueueDatabasePath returns the SQLite database location for the job queue.
func (c *Config) QueueDatabasePath() string {
	return filepath.Join(c.Paths.StagingDir, "queue.db")
}

// LibraryDatabasePath returns the SQLite database location for the book catalog.
func (c *Config) LibraryDatabasePath() string {
	return filepath.Join(c.Paths.StagingDir, "library.db")
}

// FFmpegBinary returns the ffmpeg executable name used for audio assembly.
func (c *Config) FFmpegBinary() string {
	return "ffmpeg"
}

// FFprobeBinary returns the ffprobe executable name used for media validation.
func (c *Config) FFprobeBinary() string {
	return "ffprobe"
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	sample := sampleConfig

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
