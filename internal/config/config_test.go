package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"inkvoice/internal/config"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")

	cfg, path, exists, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if exists {
		t.Fatal("expected exists=false for missing file")
	}
	if path == "" {
		t.Fatal("expected resolved path")
	}
	if cfg.TTS.Provider != "gemini" {
		t.Fatalf("unexpected default provider %q", cfg.TTS.Provider)
	}
	if cfg.TTS.DefaultVoice != "Schedar" {
		t.Fatalf("unexpected default voice %q", cfg.TTS.DefaultVoice)
	}
	if got := cfg.Audio.Bitrates; len(got) != 3 || got[0] != 64 || got[1] != 128 || got[2] != 192 {
		t.Fatalf("unexpected default bitrates %v", got)
	}
	if cfg.Audio.TargetLoudness != -16.0 || cfg.Audio.TruePeak != -1.5 || cfg.Audio.LoudnessRange != 11.0 {
		t.Fatalf("unexpected loudness defaults %+v", cfg.Audio)
	}
}

func TestLoadParsesFileAndExpandsPaths(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.toml")
	content := `
[paths]
staging_dir = "` + filepath.Join(dir, "staging") + `"
output_dir = "` + filepath.Join(dir, "audio") + `"
log_dir = "` + filepath.Join(dir, "logs") + `"

[tts]
provider = "elevenlabs"
default_voice = "Rachel"

[tts.elevenlabs]
api_key = "xi-secret"

[audio]
bitrates = [192, 64, 64, 128]

[workflow]
narration_workers = 2
assembly_workers = 3
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, path, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists=true")
	}
	if path != configPath {
		t.Fatalf("unexpected path %q", path)
	}
	if cfg.TTS.Provider != "elevenlabs" {
		t.Fatalf("unexpected provider %q", cfg.TTS.Provider)
	}
	if cfg.TTS.DefaultVoice != "Rachel" {
		t.Fatalf("unexpected voice %q", cfg.TTS.DefaultVoice)
	}
	if got := cfg.Audio.Bitrates; len(got) != 3 || got[0] != 64 || got[1] != 128 || got[2] != 192 {
		t.Fatalf("expected sorted deduplicated bitrates, got %v", got)
	}
	if cfg.Workflow.NarrationWorkers != 2 || cfg.Workflow.AssemblyWorkers != 3 {
		t.Fatalf("unexpected worker counts %+v", cfg.Workflow)
	}
	if !filepath.IsAbs(cfg.Paths.StagingDir) {
		t.Fatalf("expected absolute staging dir, got %q", cfg.Paths.StagingDir)
	}
}

func TestLoadRejectsMissingProviderCredential(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")

	_, _, _, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err == nil {
		t.Fatal("expected error for missing gemini credential")
	}
	if !strings.Contains(err.Error(), "tts.gemini.api_key") {
		t.Fatalf("expected credential error, got %v", err)
	}
}

func TestLoadRejectsUnknownProvider(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(configPath, []byte("[tts]\nprovider = \"espeak\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	_, _, _, err := config.Load(configPath)
	if err == nil || !strings.Contains(err.Error(), "tts.provider") {
		t.Fatalf("expected provider error, got %v", err)
	}
}

func TestValidateHeartbeatBounds(t *testing.T) {
	cfg := config.Default()
	cfg.TTS.Gemini.APIKey = "key"
	cfg.Workflow.HeartbeatInterval = 30
	cfg.Workflow.HeartbeatTimeout = 30

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected heartbeat timeout validation error")
	}
}

func TestQueueDatabasePath(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.StagingDir = "/tmp/staging"
	if got := cfg.QueueDatabasePath(); got != "/tmp/staging/queue.db" {
		t.Fatalf("unexpected queue path %q", got)
	}
}

func TestCreateSampleWritesParseableConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(data), "[tts]") {
		t.Fatalf("expected tts section in sample, got %q", data)
	}

	t.Setenv("GEMINI_API_KEY", "sample-key")
	if _, _, _, err := config.Load(path); err != nil {
		t.Fatalf("sample config should load cleanly: %v", err)
	}
}

func TestExpandPathTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home directory: %v", err)
	}
	got, err := config.ExpandPath("~/previews")
	if err != nil {
		t.Fatalf("ExpandPath returned error: %v", err)
	}
	if got != filepath.Join(home, "previews") {
		t.Fatalf("unexpected expansion %q", got)
	}
}
