package audioproc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"inkvoice/internal/config"
	"inkvoice/internal/logging"
	"inkvoice/internal/services"
)

type commandRunner func(ctx context.Context, name string, args ...string) error

// Settings carries the tunables applied to every chapter encode.
type Settings struct {
	TargetLoudness     float64
	TruePeak           float64
	LoudnessRange      float64
	SilenceThresholdDB float64
	SampleRate         int
}

// Processor runs the ffmpeg steps of chapter assembly.
type Processor struct {
	ffmpeg   string
	settings Settings
	logger   *slog.Logger
	run      commandRunner
}

// NewProcessor builds a processor from configuration.
func NewProcessor(cfg *config.Config, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Processor{
		ffmpeg: cfg.FFmpegBinary(),
		settings: Settings{
			TargetLoudness:     cfg.Audio.TargetLoudness,
			TruePeak:           cfg.Audio.TruePeak,
			LoudnessRange:      cfg.Audio.LoudnessRange,
			SilenceThresholdDB: cfg.Audio.SilenceThresholdDB,
			SampleRate:         cfg.Audio.SampleRate,
		},
		logger: logging.NewComponentLogger(logger, "audioproc"),
		run:    defaultCommandRunner,
	}
}

// WithCommandRunner injects a custom command runner for tests.
func (p *Processor) WithCommandRunner(r commandRunner) {
	if p != nil && r != nil {
		p.run = r
	}
}

// Concat joins the narration artifacts into a single PCM WAV file in input
// order, resampling everything to the configured rate so mixed-format
// artifacts concatenate cleanly.
func (p *Processor) Concat(ctx context.Context, inputs []string, output string) error {
	if len(inputs) == 0 {
		return services.Wrap(services.ErrInvalidInput, "assembly", "concat", "no input files", nil)
	}
	for _, input := range inputs {
		if _, err := os.Stat(input); err != nil {
			return services.Wrap(services.ErrIncompleteSource, "assembly", "concat",
				fmt.Sprintf("missing artifact %s", input), err)
		}
	}

	listPath := output + ".list"
	if err := writeConcatList(listPath, inputs); err != nil {
		return services.Wrap(services.ErrTransient, "assembly", "concat", "write concat list", err)
	}
	defer os.Remove(listPath)

	args := []string{
		"-hide_banner", "-y", "-v", "error",
		"-f", "concat", "-safe", "0",
		"-i", listPath,
		"-ac", "1",
		"-ar", fmt.Sprintf("%d", p.settings.SampleRate),
		"-c:a", "pcm_s16le",
		output,
	}
	if err := p.run(ctx, p.ffmpeg, args...); err != nil {
		return classifyRunError("concat", err)
	}
	p.logger.Debug("concatenated artifacts",
		logging.Int("inputs", len(inputs)),
		logging.String("output", output))
	return nil
}

// TrimSilence removes leading and trailing silence below the configured
// threshold. Interior pauses are left untouched.
func (p *Processor) TrimSilence(ctx context.Context, input, output string) error {
	threshold := fmt.Sprintf("%gdB", p.settings.SilenceThresholdDB)
	filter := fmt.Sprintf(
		"silenceremove=start_periods=1:start_threshold=%s,areverse,silenceremove=start_periods=1:start_threshold=%s,areverse",
		threshold, threshold)
	args := []string{
		"-hide_banner", "-y", "-v", "error",
		"-i", input,
		"-af", filter,
		"-c:a", "pcm_s16le",
		output,
	}
	if err := p.run(ctx, p.ffmpeg, args...); err != nil {
		return classifyRunError("trim_silence", err)
	}
	return nil
}

// LoudnormFilter returns the loudness normalization filter string used by
// every encode.
func (p *Processor) LoudnormFilter() string {
	return fmt.Sprintf("loudnorm=I=%g:TP=%g:LRA=%g",
		p.settings.TargetLoudness, p.settings.TruePeak, p.settings.LoudnessRange)
}

// Encode produces one loudness-normalized MP3 at the requested bitrate.
func (p *Processor) Encode(ctx context.Context, input, output string, bitrateKbps int) error {
	if bitrateKbps <= 0 {
		return services.Wrap(services.ErrInvalidInput, "assembly", "encode",
			fmt.Sprintf("invalid bitrate %d", bitrateKbps), nil)
	}
	args := []string{
		"-hide_banner", "-y", "-v", "error",
		"-i", input,
		"-af", p.LoudnormFilter(),
		"-ar", fmt.Sprintf("%d", p.settings.SampleRate),
		"-c:a", "libmp3lame",
		"-b:a", fmt.Sprintf("%dk", bitrateKbps),
		output,
	}
	if err := p.run(ctx, p.ffmpeg, args...); err != nil {
		return classifyRunError("encode", err)
	}
	return nil
}

// EncodeTiers encodes all bitrate tiers in parallel from the same source,
// returning output paths keyed by bitrate. Any failed tier fails the batch.
func (p *Processor) EncodeTiers(ctx context.Context, input, outputDir, baseName string, bitrates []int) (map[int]string, error) {
	if len(bitrates) == 0 {
		return nil, services.Wrap(services.ErrInvalidInput, "assembly", "encode", "no bitrates configured", nil)
	}
	outputs := make(map[int]string, len(bitrates))
	group, groupCtx := errgroup.WithContext(ctx)
	for _, bitrate := range bitrates {
		output := filepath.Join(outputDir, fmt.Sprintf("%s-%dk.mp3", baseName, bitrate))
		outputs[bitrate] = output
		bitrate := bitrate
		group.Go(func() error {
			return p.Encode(groupCtx, input, output, bitrate)
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return outputs, nil
}

// Verify decodes the file and discards the output, surfacing corrupt encodes
// before they are published.
func (p *Processor) Verify(ctx context.Context, input string) error {
	args := []string{
		"-hide_banner", "-v", "error",
		"-i", input,
		"-f", "null", "-",
	}
	if err := p.run(ctx, p.ffmpeg, args...); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return services.Wrap(services.ErrExternalTool, "assembly", "verify", "ffmpeg not found", err)
		}
		return services.Wrap(services.ErrUnreadableMedia, "assembly", "verify",
			fmt.Sprintf("decode check failed for %s", input), err)
	}
	return nil
}

func writeConcatList(path string, inputs []string) error {
	var builder strings.Builder
	for _, input := range inputs {
		// ffmpeg concat demuxer quoting: single quotes with '\'' escape.
		escaped := strings.ReplaceAll(input, "'", `'\''`)
		builder.WriteString("file '")
		builder.WriteString(escaped)
		builder.WriteString("'\n")
	}
	return os.WriteFile(path, []byte(builder.String()), 0o644)
}

func classifyRunError(operation string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, exec.ErrNotFound) {
		return services.Wrap(services.ErrExternalTool, "assembly", operation, "ffmpeg not found", err)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return services.Wrap(services.ErrTimeout, "assembly", operation, "ffmpeg interrupted", err)
	}
	return services.Wrap(services.ErrExternalTool, "assembly", operation, "ffmpeg failed", err)
}

func defaultCommandRunner(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		detail := strings.TrimSpace(string(output))
		if detail != "" {
			return fmt.Errorf("%w: %s", err, detail)
		}
		return err
	}
	return nil
}
