package narration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"inkvoice/internal/config"
	"inkvoice/internal/events"
	"inkvoice/internal/fileutil"
	"inkvoice/internal/library"
	"inkvoice/internal/logging"
	"inkvoice/internal/queue"
	"inkvoice/internal/services"
	"inkvoice/internal/stage"
	"inkvoice/internal/tts"
)

// Stage synthesizes per-speech audio artifacts for a chapter.
type Stage struct {
	cfg      *config.Config
	store    *queue.Store
	catalog  library.Catalog
	provider tts.Provider
	hub      *events.Hub
	logger   *slog.Logger

	sleep func(context.Context, time.Duration) error
}

// NewStage constructs the narration stage handler.
func NewStage(cfg *config.Config, store *queue.Store, catalog library.Catalog, provider tts.Provider, hub *events.Hub, logger *slog.Logger) *Stage {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Stage{
		cfg:      cfg,
		store:    store,
		catalog:  catalog,
		provider: provider,
		hub:      hub,
		logger:   logging.NewComponentLogger(logger, "narration"),
		sleep:    sleepContext,
	}
}

// jobLogger layers the job identifiers carried by ctx onto the stage
// logger. The stage logger itself is never mutated, so concurrent lane
// workers can share one handler.
func (s *Stage) jobLogger(ctx context.Context) *slog.Logger {
	return logging.WithContext(ctx, s.logger)
}

// Prepare loads the chapter's speech count and initializes progress.
func (s *Stage) Prepare(ctx context.Context, job *queue.Job) error {
	speeches, err := s.speechesForJob(ctx, job)
	if err != nil {
		return err
	}
	job.TotalSpeechCount = len(speeches)
	job.CurrentSpeechIndex = 0
	job.InitProgress("Narration", fmt.Sprintf("Synthesizing %d speeches", len(speeches)))
	return nil
}

// Execute synthesizes every speech in order. Speeches that already carry an
// artifact on disk are skipped unless the job forces regeneration. Progress
// is persisted and published after every speech so observers see
// current/total advance monotonically.
func (s *Stage) Execute(ctx context.Context, job *queue.Job) error {
	speeches, err := s.speechesForJob(ctx, job)
	if err != nil {
		return err
	}
	total := len(speeches)
	job.TotalSpeechCount = total

	log := s.jobLogger(ctx)
	s.hub.Publish(events.NarrationStarted(job.ChapterID, job.ID, total))
	log.Info("narration started",
		logging.String(logging.FieldChapterID, job.ChapterID),
		logging.Int64(logging.FieldJobID, job.ID),
		logging.Int("total_speeches", total),
		logging.Bool("force_regenerate", job.ForceRegenerate))

	var failed []string
	for index, speech := range speeches {
		cancelled, err := s.cancelRequested(ctx, job)
		if err != nil {
			return err
		}
		if cancelled {
			return s.markCancelled(ctx, job, index, total)
		}

		if err := s.processSpeech(ctx, job, speech); err != nil {
			if errors.Is(err, errCancelled) {
				return s.markCancelled(ctx, job, index, total)
			}
			if !s.cfg.TTS.ContinueOnError || systemicFailure(err) {
				return err
			}
			// One bad speech should not sink the chapter. Record it and
			// keep going; the job fails at the end with the full list.
			failed = append(failed, speech.ID)
			log.Warn("speech failed, continuing with remaining speeches",
				logging.String(logging.FieldChapterID, job.ChapterID),
				logging.String(logging.FieldSpeechID, speech.ID),
				logging.Error(err))
		}

		job.CurrentSpeechIndex = index + 1
		job.SetProgress("Narration",
			fmt.Sprintf("Speech %d of %d", index+1, total),
			percentOf(index+1, total))
		if err := s.store.Update(ctx, job); err != nil {
			return services.Wrap(services.ErrUnavailable, "narration", "execute", "persist progress", err)
		}
		s.hub.Publish(events.NarrationProgress(job.ChapterID, job.ID, index+1, total, speech.ID))
	}

	if len(failed) > 0 {
		return services.Wrap(services.ErrIncompleteSource, "narration", "execute",
			fmt.Sprintf("%d of %d speeches failed: %s", len(failed), total, strings.Join(failed, ", ")), nil)
	}

	job.SetCompleted("Narration", fmt.Sprintf("All %d speeches synthesized", total))
	s.hub.Publish(events.NarrationCompleted(job.ChapterID, job.ID))
	log.Info("narration completed",
		logging.String(logging.FieldChapterID, job.ChapterID),
		logging.Int64(logging.FieldJobID, job.ID),
		logging.Int("total_speeches", total))
	return nil
}

// HealthCheck verifies the synthesis provider is constructed.
func (s *Stage) HealthCheck(ctx context.Context) stage.Health {
	if s.provider == nil {
		return stage.Unhealthy("narration", "synthesis provider not configured")
	}
	if _, err := s.catalog.SpeechesForChapter(ctx, "health-check"); err != nil {
		return stage.Unhealthy("narration", fmt.Sprintf("catalog unavailable: %v", err))
	}
	return stage.Healthy("narration")
}

// errCancelled propagates a cancel observed mid-speech up to the job loop.
var errCancelled = errors.New("narration cancelled")

// speechesForJob returns the chapter's speeches in order, narrowed to the
// job's speech filter when one is set.
func (s *Stage) speechesForJob(ctx context.Context, job *queue.Job) ([]library.Speech, error) {
	speeches, err := s.catalog.SpeechesForChapter(ctx, job.ChapterID)
	if err != nil {
		return nil, services.Wrap(services.ErrUnavailable, "narration", "prepare", "load chapter speeches", err)
	}
	if job.SpeechFilter == "" {
		return speeches, nil
	}
	for _, speech := range speeches {
		if speech.ID == job.SpeechFilter {
			return []library.Speech{speech}, nil
		}
	}
	return nil, services.Wrap(services.ErrNotFound, "narration", "prepare",
		fmt.Sprintf("speech %s not found in chapter %s", job.SpeechFilter, job.ChapterID), nil)
}

// systemicFailure reports errors that doom every remaining speech, where
// continuing would just burn the provider quota on guaranteed failures.
func systemicFailure(err error) bool {
	return errors.Is(err, services.ErrUnavailable) || errors.Is(err, services.ErrConfiguration)
}

func (s *Stage) processSpeech(ctx context.Context, job *queue.Job, speech library.Speech) error {
	log := s.jobLogger(ctx).With(
		logging.String(logging.FieldChapterID, job.ChapterID),
		logging.String(logging.FieldSpeechID, speech.ID),
		logging.Int64(logging.FieldJobID, job.ID))

	if !job.ForceRegenerate {
		artifact, err := s.catalog.ArtifactForSpeech(ctx, speech.ID)
		if err != nil {
			return services.Wrap(services.ErrUnavailable, "narration", "synthesize", "check existing artifact", err)
		}
		if artifact != nil && fileExists(artifact.Path) {
			log.Debug("artifact present, skipping synthesis",
				logging.String("path", artifact.Path))
			return nil
		}
	}

	text, err := s.synthesisText(speech)
	if err != nil {
		return err
	}
	voiceID, err := s.voiceFor(ctx, speech)
	if err != nil {
		return err
	}

	result, err := s.synthesizeWithRetry(ctx, job, tts.Request{Text: text, VoiceID: voiceID}, log)
	if err != nil {
		return err
	}

	// A cancel raced the synthesis call; drop the result on the floor.
	cancelled, err := s.cancelRequested(ctx, job)
	if err != nil {
		return err
	}
	if cancelled {
		return errCancelled
	}

	artifactPath := s.artifactPath(job.ChapterID, speech.ID, result.Format)
	if err := fileutil.WriteFileAtomic(artifactPath, result.Data, 0o644); err != nil {
		return services.Wrap(services.ErrTransient, "narration", "synthesize", "write artifact", err)
	}

	artifact := library.Artifact{
		SpeechID:      speech.ID,
		Path:          artifactPath,
		Format:        result.Format,
		DurationMS:    artifactDurationMS(result),
		VoiceID:       voiceID,
		SynthesizedAt: time.Now().UTC(),
	}
	if err := s.catalog.SetSpeechArtifact(ctx, artifact); err != nil {
		if errors.Is(err, library.ErrNotFound) {
			return services.Wrap(services.ErrNotFound, "narration", "synthesize", "record artifact", err)
		}
		return services.Wrap(services.ErrUnavailable, "narration", "synthesize", "record artifact", err)
	}

	log.Info("speech synthesized",
		logging.String(logging.FieldVoice, voiceID),
		logging.String("format", result.Format),
		logging.Int("bytes", len(result.Data)))
	return nil
}

func (s *Stage) synthesizeWithRetry(ctx context.Context, job *queue.Job, req tts.Request, log *slog.Logger) (tts.Result, error) {
	maxAttempts := s.cfg.TTS.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	baseDelay := time.Duration(s.cfg.TTS.RetryBaseDelayMS) * time.Millisecond

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err := tts.Synthesize(ctx, s.provider, req)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !services.IsRetryable(err) {
			return tts.Result{}, err
		}
		if attempt == maxAttempts {
			break
		}

		delay := baseDelay << (attempt - 1)
		log.Warn("synthesis attempt failed, backing off",
			logging.Int("attempt", attempt),
			logging.Duration("delay", delay),
			logging.Error(err))
		if err := s.sleep(ctx, delay); err != nil {
			return tts.Result{}, err
		}
		if cancelled, cancelErr := s.cancelRequested(ctx, job); cancelErr != nil {
			return tts.Result{}, cancelErr
		} else if cancelled {
			return tts.Result{}, errCancelled
		}
	}
	return tts.Result{}, lastErr
}

func (s *Stage) synthesisText(speech library.Speech) (string, error) {
	if speech.Markup != "" {
		normalized, err := tts.NormalizeMarkup(speech.Markup)
		if err != nil {
			return "", err
		}
		return normalized, nil
	}
	if strings.TrimSpace(speech.Text) == "" {
		return "", services.Wrap(services.ErrInvalidInput, "narration", "synthesize",
			fmt.Sprintf("speech %s has no text", speech.ID), nil)
	}
	return speech.Text, nil
}

func (s *Stage) voiceFor(ctx context.Context, speech library.Speech) (string, error) {
	if speech.CharacterID != "" {
		voiceID, err := s.catalog.VoiceForCharacter(ctx, speech.CharacterID)
		if err != nil {
			return "", services.Wrap(services.ErrUnavailable, "narration", "synthesize", "resolve character voice", err)
		}
		if voiceID != "" {
			return voiceID, nil
		}
	}
	return s.cfg.TTS.DefaultVoice, nil
}

func (s *Stage) cancelRequested(ctx context.Context, job *queue.Job) (bool, error) {
	if job.CancelRequested {
		return true, nil
	}
	cancelled, err := s.store.CancelRequested(ctx, job.ID)
	if err != nil {
		return false, services.Wrap(services.ErrUnavailable, "narration", "execute", "check cancel flag", err)
	}
	job.CancelRequested = cancelled
	return cancelled, nil
}

// markCancelled finalizes the job as cancelled in place. Artifacts already
// produced stay recorded; the manager persists the status without treating
// it as a failure.
func (s *Stage) markCancelled(ctx context.Context, job *queue.Job, index, total int) error {
	job.Status = queue.StatusCancelled
	job.ErrorMessage = queue.UserCancelReason
	job.SetProgress("Narration", fmt.Sprintf("Cancelled at speech %d of %d", index+1, total), percentOf(index, total))
	s.jobLogger(ctx).Info("narration cancelled",
		logging.String(logging.FieldChapterID, job.ChapterID),
		logging.Int64(logging.FieldJobID, job.ID),
		logging.Int("completed_speeches", index))
	return nil
}

func (s *Stage) artifactPath(chapterID, speechID, format string) string {
	if format == "" {
		format = "wav"
	}
	return filepath.Join(s.cfg.Paths.StagingDir, "artifacts", chapterID, "speech-"+speechID+"."+format)
}

func artifactDurationMS(result tts.Result) int64 {
	switch result.Format {
	case "wav":
		if len(result.Data) <= 44 {
			return 0
		}
		return tts.PCMDurationMS(len(result.Data)-44, result.SampleRate, 1, 16)
	case "mp3":
		// Estimate from the encoding bitrate. Accurate for CBR streams,
		// which is what the providers emit.
		if result.BitrateKbps <= 0 {
			return 0
		}
		return int64(len(result.Data)) * 8 / int64(result.BitrateKbps)
	default:
		return 0
	}
}

func percentOf(done, total int) float64 {
	if total <= 0 {
		return 100
	}
	return float64(done) / float64(total) * 100
}

func fileExists(path string) bool {
	if strings.TrimSpace(path) == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
