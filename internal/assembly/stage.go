package assembly

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"inkvoice/internal/config"
	"inkvoice/internal/events"
	"inkvoice/internal/fileutil"
	"inkvoice/internal/library"
	"inkvoice/internal/logging"
	"inkvoice/internal/media/audioproc"
	"inkvoice/internal/media/ffprobe"
	"inkvoice/internal/queue"
	"inkvoice/internal/services"
	"inkvoice/internal/stage"
)

// Stage produces the bitrate variants for a fully narrated chapter.
type Stage struct {
	cfg     *config.Config
	store   *queue.Store
	catalog library.Catalog
	proc    *audioproc.Processor
	hub     *events.Hub
	logger  *slog.Logger

	probe func(ctx context.Context, path string) (int64, error)
}

// NewStage constructs the assembly stage handler.
func NewStage(cfg *config.Config, store *queue.Store, catalog library.Catalog, proc *audioproc.Processor, hub *events.Hub, logger *slog.Logger) *Stage {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Stage{
		cfg:     cfg,
		store:   store,
		catalog: catalog,
		proc:    proc,
		hub:     hub,
		logger:  logging.NewComponentLogger(logger, "assembly"),
	}
	s.probe = func(ctx context.Context, path string) (int64, error) {
		return ffprobe.DurationSeconds(ctx, cfg.FFprobeBinary(), path)
	}
	return s
}

// jobLogger layers the job identifiers carried by ctx onto the stage
// logger. The stage logger itself is never mutated, so concurrent lane
// workers can share one handler.
func (s *Stage) jobLogger(ctx context.Context) *slog.Logger {
	return logging.WithContext(ctx, s.logger)
}

// WithDurationProbe injects a duration reader for tests.
func (s *Stage) WithDurationProbe(probe func(ctx context.Context, path string) (int64, error)) {
	if s != nil && probe != nil {
		s.probe = probe
	}
}

// Prepare verifies every speech has a narration artifact on disk before any
// ffmpeg work starts. A chapter with gaps fails here rather than partway
// through an encode.
func (s *Stage) Prepare(ctx context.Context, job *queue.Job) error {
	if _, err := s.collectArtifacts(ctx, job.ChapterID); err != nil {
		return err
	}
	job.InitProgress("Assembly", "Producing chapter audio")
	return nil
}

// Execute runs the assembly pipeline: concatenate artifacts in speech order,
// trim edge silence, encode every configured bitrate in parallel, verify each
// encode, then move the variants into the output directory and record them
// atomically.
func (s *Stage) Execute(ctx context.Context, job *queue.Job) error {
	inputs, err := s.collectArtifacts(ctx, job.ChapterID)
	if err != nil {
		return err
	}

	s.hub.Publish(events.AssemblyStarted(job.ChapterID, job.ID))
	log := s.jobLogger(ctx)
	log.Info("assembly started",
		logging.String(logging.FieldChapterID, job.ChapterID),
		logging.Int64(logging.FieldJobID, job.ID),
		logging.Int("artifacts", len(inputs)))

	workdir, err := audioproc.NewWorkdir(s.cfg.Paths.StagingDir, job.ID)
	if err != nil {
		return services.Wrap(services.ErrTransient, "assembly", "workdir", "create scratch directory", err)
	}
	defer workdir.Cleanup()

	if cancelled, err := s.checkCancel(ctx, job); err != nil || cancelled {
		return err
	}
	if err := s.setStep(ctx, job, "concat", "Joining narration audio", 15); err != nil {
		return err
	}
	concatPath := workdir.Path("chapter.wav")
	if err := s.proc.Concat(ctx, inputs, concatPath); err != nil {
		return err
	}

	if cancelled, err := s.checkCancel(ctx, job); err != nil || cancelled {
		return err
	}
	if err := s.setStep(ctx, job, "trim_silence", "Trimming edge silence", 30); err != nil {
		return err
	}
	trimmedPath := workdir.Path("chapter-trimmed.wav")
	if err := s.proc.TrimSilence(ctx, concatPath, trimmedPath); err != nil {
		return err
	}

	if cancelled, err := s.checkCancel(ctx, job); err != nil || cancelled {
		return err
	}
	bitrates := s.bitrates()
	if err := s.setStep(ctx, job, "encode", fmt.Sprintf("Encoding %d bitrate tiers", len(bitrates)), 65); err != nil {
		return err
	}
	encodeCtx, cancelEncode := s.stepContext(ctx, s.cfg.Audio.EncodeTimeout)
	outputs, err := s.proc.EncodeTiers(encodeCtx, trimmedPath, workdir.Root(), "chapter-"+job.ChapterID, bitrates)
	cancelEncode()
	if err != nil {
		return err
	}

	if cancelled, err := s.checkCancel(ctx, job); err != nil || cancelled {
		return err
	}
	if err := s.setStep(ctx, job, "verify", "Verifying encoded audio", 80); err != nil {
		return err
	}
	for _, bitrate := range bitrates {
		if err := s.proc.Verify(ctx, outputs[bitrate]); err != nil {
			return err
		}
	}

	if cancelled, err := s.checkCancel(ctx, job); err != nil || cancelled {
		return err
	}
	if err := s.setStep(ctx, job, "publish", "Publishing chapter audio", 95); err != nil {
		return err
	}
	variants, err := s.publishVariants(ctx, job.ChapterID, bitrates, outputs)
	if err != nil {
		return err
	}
	if err := s.catalog.SetChapterAudioVariants(ctx, job.ChapterID, variants); err != nil {
		return services.Wrap(services.ErrUnavailable, "assembly", "publish", "record audio variants", err)
	}

	if err := job.SetAudioOutputs(outputsFor(variants)); err != nil {
		return services.Wrap(services.ErrTransient, "assembly", "publish", "record job outputs", err)
	}
	job.SetCompleted("Assembly", fmt.Sprintf("Chapter audio ready in %d bitrates", len(bitrates)))
	s.hub.Publish(events.AssemblyCompleted(job.ChapterID, job.ID, bitrates))
	log.Info("assembly completed",
		logging.String(logging.FieldChapterID, job.ChapterID),
		logging.Int64(logging.FieldJobID, job.ID),
		logging.Int("variants", len(variants)))
	return nil
}

// HealthCheck confirms the external encoders are on PATH.
func (s *Stage) HealthCheck(ctx context.Context) stage.Health {
	for _, binary := range []string{s.cfg.FFmpegBinary(), s.cfg.FFprobeBinary()} {
		if _, err := exec.LookPath(binary); err != nil {
			return stage.Unhealthy("assembly", fmt.Sprintf("%s not found on PATH", binary))
		}
	}
	return stage.Healthy("assembly")
}

// collectArtifacts returns the chapter's artifact paths in speech order,
// failing when any speech has no artifact or the recorded file is gone.
func (s *Stage) collectArtifacts(ctx context.Context, chapterID string) ([]string, error) {
	speeches, err := s.catalog.SpeechesForChapter(ctx, chapterID)
	if err != nil {
		return nil, services.Wrap(services.ErrUnavailable, "assembly", "prepare", "load chapter speeches", err)
	}
	if len(speeches) == 0 {
		return nil, services.Wrap(services.ErrIncompleteSource, "assembly", "prepare",
			fmt.Sprintf("chapter %s has no speeches", chapterID), nil)
	}

	inputs := make([]string, 0, len(speeches))
	var missing []string
	for _, speech := range speeches {
		artifact, err := s.catalog.ArtifactForSpeech(ctx, speech.ID)
		if err != nil {
			return nil, services.Wrap(services.ErrUnavailable, "assembly", "prepare", "load artifact", err)
		}
		if artifact == nil {
			missing = append(missing, speech.ID)
			continue
		}
		if _, err := os.Stat(artifact.Path); err != nil {
			missing = append(missing, speech.ID)
			continue
		}
		inputs = append(inputs, artifact.Path)
	}
	if len(missing) > 0 {
		return nil, services.Wrap(services.ErrIncompleteSource, "assembly", "prepare",
			fmt.Sprintf("chapter %s missing narration for speeches: %s", chapterID, strings.Join(missing, ", ")), nil)
	}
	return inputs, nil
}

func (s *Stage) publishVariants(ctx context.Context, chapterID string, bitrates []int, outputs map[int]string) ([]library.AudioVariant, error) {
	destDir := filepath.Join(s.cfg.Paths.OutputDir, chapterID)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrTransient, "assembly", "publish", "create output directory", err)
	}

	now := time.Now().UTC()
	variants := make([]library.AudioVariant, 0, len(bitrates))
	for _, bitrate := range bitrates {
		source := outputs[bitrate]

		probeCtx, cancel := s.stepContext(ctx, s.cfg.Audio.ProbeTimeout)
		duration, err := s.probe(probeCtx, source)
		cancel()
		if err != nil {
			return nil, err
		}

		dest := filepath.Join(destDir, filepath.Base(source))
		if err := fileutil.MoveFile(source, dest); err != nil {
			return nil, services.Wrap(services.ErrTransient, "assembly", "publish",
				fmt.Sprintf("move %dk variant", bitrate), err)
		}
		info, err := os.Stat(dest)
		if err != nil {
			return nil, services.Wrap(services.ErrTransient, "assembly", "publish", "stat published variant", err)
		}

		variants = append(variants, library.AudioVariant{
			ChapterID:       chapterID,
			BitrateKbps:     bitrate,
			Path:            dest,
			DurationSeconds: duration,
			SizeBytes:       info.Size(),
			CreatedAt:       now,
		})
	}
	return variants, nil
}

func outputsFor(variants []library.AudioVariant) []queue.AudioOutput {
	outputs := make([]queue.AudioOutput, 0, len(variants))
	for _, v := range variants {
		outputs = append(outputs, queue.AudioOutput{
			BitrateKbps:     v.BitrateKbps,
			Path:            v.Path,
			DurationSeconds: v.DurationSeconds,
			SizeBytes:       v.SizeBytes,
			CreatedAt:       v.CreatedAt,
		})
	}
	return outputs
}

func (s *Stage) setStep(ctx context.Context, job *queue.Job, step, message string, percent float64) error {
	job.SetProgress("Assembly", message, percent)
	if err := s.store.Update(ctx, job); err != nil {
		return services.Wrap(services.ErrUnavailable, "assembly", step, "persist progress", err)
	}
	s.hub.Publish(events.AssemblyProgress(job.ChapterID, job.ID, step, percent))
	return nil
}

// checkCancel finalizes the job as cancelled between pipeline steps. The
// scratch directory is cleaned up by the deferred workdir removal.
func (s *Stage) checkCancel(ctx context.Context, job *queue.Job) (bool, error) {
	if !job.CancelRequested {
		cancelled, err := s.store.CancelRequested(ctx, job.ID)
		if err != nil {
			return false, services.Wrap(services.ErrUnavailable, "assembly", "execute", "check cancel flag", err)
		}
		job.CancelRequested = cancelled
	}
	if !job.CancelRequested {
		return false, nil
	}
	job.Status = queue.StatusCancelled
	job.ErrorMessage = queue.UserCancelReason
	s.jobLogger(ctx).Info("assembly cancelled",
		logging.String(logging.FieldChapterID, job.ChapterID),
		logging.Int64(logging.FieldJobID, job.ID))
	return true, nil
}

func (s *Stage) bitrates() []int {
	bitrates := append([]int(nil), s.cfg.Audio.Bitrates...)
	sort.Ints(bitrates)
	return bitrates
}

func (s *Stage) stepContext(ctx context.Context, timeoutSeconds int) (context.Context, context.CancelFunc) {
	if timeoutSeconds <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, time.Duration(timeoutSeconds)*time.Second)
}
