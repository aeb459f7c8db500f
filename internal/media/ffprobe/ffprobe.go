package ffprobe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"

	"inkvoice/internal/services"
)

// Result represents the parsed output from an ffprobe inspection.
type Result struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
	raw     []byte
}

// Stream describes a single stream in the media container.
type Stream struct {
	Index      int    `json:"index"`
	CodecName  string `json:"codec_name"`
	CodecType  string `json:"codec_type"`
	Duration   string `json:"duration"`
	BitRate    string `json:"bit_rate"`
	SampleRate string `json:"sample_rate"`
	Channels   int    `json:"channels"`
}

// Format captures container-level metadata extracted by ffprobe.
type Format struct {
	Filename   string `json:"filename"`
	NBStreams  int    `json:"nb_streams"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	BitRate    string `json:"bit_rate"`
	FormatName string `json:"format_name"`
}

// Inspect executes ffprobe against the provided path and decodes the JSON
// response. Files ffprobe cannot parse surface as unreadable media; a missing
// binary surfaces as an external tool failure.
func Inspect(ctx context.Context, binary string, path string) (Result, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffprobe"
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return Result{}, services.Wrap(services.ErrInvalidInput, "probe", "inspect", "empty path", nil)
	}

	cmd := exec.CommandContext(ctx, binary, "-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json", "--", path)
	output, err := cmd.CombinedOutput()
	if err != nil {
		detail := strings.TrimSpace(string(output))
		if errors.Is(err, exec.ErrNotFound) {
			return Result{}, services.Wrap(services.ErrExternalTool, "probe", "inspect", "ffprobe not found", err)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return Result{}, services.Wrap(services.ErrUnreadableMedia, "probe", "inspect",
				fmt.Sprintf("ffprobe rejected %s: %s", path, detail), nil)
		}
		return Result{}, services.Wrap(services.ErrExternalTool, "probe", "inspect", detail, err)
	}

	var result Result
	if err := json.Unmarshal(output, &result); err != nil {
		return Result{}, services.Wrap(services.ErrUnreadableMedia, "probe", "inspect", "unparseable ffprobe output", err)
	}
	result.raw = append([]byte(nil), output...)
	return result, nil
}

// DurationSeconds returns the container duration rounded up to whole seconds.
// A file that reports no usable duration is unreadable for our purposes: the
// pipeline records whole-second durations for every artifact.
func DurationSeconds(ctx context.Context, binary string, path string) (int64, error) {
	result, err := Inspect(ctx, binary, path)
	if err != nil {
		return 0, err
	}
	seconds := result.RawDurationSeconds()
	if math.IsNaN(seconds) || seconds <= 0 {
		return 0, services.Wrap(services.ErrUnreadableMedia, "probe", "duration",
			fmt.Sprintf("no duration reported for %s", path), nil)
	}
	return int64(math.Ceil(seconds)), nil
}

// RawJSON returns the raw ffprobe JSON payload.
func (r Result) RawJSON() []byte {
	return append([]byte(nil), r.raw...)
}

// AudioStreamCount returns the number of audio streams discovered.
func (r Result) AudioStreamCount() int {
	count := 0
	for _, stream := range r.Streams {
		if strings.EqualFold(stream.CodecType, "audio") {
			count++
		}
	}
	return count
}

// RawDurationSeconds returns the container duration in seconds, falling back
// to the first audio stream when the container reports none.
func (r Result) RawDurationSeconds() float64 {
	if seconds := parseFloat(r.Format.Duration); !math.IsNaN(seconds) && seconds > 0 {
		return seconds
	}
	for _, stream := range r.Streams {
		if !strings.EqualFold(stream.CodecType, "audio") {
			continue
		}
		if seconds := parseFloat(stream.Duration); !math.IsNaN(seconds) && seconds > 0 {
			return seconds
		}
	}
	return math.NaN()
}

// SizeBytes returns the reported container size in bytes, or 0 when unavailable.
func (r Result) SizeBytes() int64 {
	size := parseFloat(r.Format.Size)
	if math.IsNaN(size) || size < 0 {
		return 0
	}
	return int64(size)
}

// BitRate returns the container bitrate in bits per second, or 0 when unavailable.
func (r Result) BitRate() int64 {
	rate := parseFloat(r.Format.BitRate)
	if math.IsNaN(rate) || rate < 0 {
		return 0
	}
	return int64(rate)
}

// SampleRate returns the first audio stream's sample rate, or 0.
func (r Result) SampleRate() int {
	for _, stream := range r.Streams {
		if !strings.EqualFold(stream.CodecType, "audio") {
			continue
		}
		rate := parseFloat(stream.SampleRate)
		if !math.IsNaN(rate) && rate > 0 {
			return int(rate)
		}
	}
	return 0
}

func parseFloat(value string) float64 {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return math.NaN()
	}
	if parsed, err := strconv.ParseFloat(cleaned, 64); err == nil {
		return parsed
	}
	return math.NaN()
}
