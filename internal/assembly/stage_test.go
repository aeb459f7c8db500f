package assembly_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"inkvoice/internal/assembly"
	"inkvoice/internal/events"
	"inkvoice/internal/library"
	"inkvoice/internal/media/audioproc"
	"inkvoice/internal/queue"
	"inkvoice/internal/services"
	"inkvoice/internal/testsupport"
)

// recordingRunner captures ffmpeg invocations and fabricates their output
// files so the pipeline can proceed without real encoders.
type recordingRunner struct {
	mu       sync.Mutex
	commands [][]string
	failWhen func(args []string) error
}

func (r *recordingRunner) run(_ context.Context, name string, args ...string) error {
	r.mu.Lock()
	r.commands = append(r.commands, append([]string{name}, args...))
	failWhen := r.failWhen
	r.mu.Unlock()

	if failWhen != nil {
		if err := failWhen(args); err != nil {
			return err
		}
	}
	if output := args[len(args)-1]; output != "-" {
		return os.WriteFile(output, []byte("audio"), 0o644)
	}
	return nil
}

func (r *recordingRunner) count(match func(args []string) bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int
	for _, cmd := range r.commands {
		if match(cmd[1:]) {
			n++
		}
	}
	return n
}

func hasFlag(args []string, flag, value string) bool {
	for i, arg := range args {
		if arg == flag && i+1 < len(args) && args[i+1] == value {
			return true
		}
	}
	return false
}

func isEncode(args []string) bool { return hasFlag(args, "-c:a", "libmp3lame") }
func isVerify(args []string) bool { return hasFlag(args, "-f", "null") }
func isConcat(args []string) bool { return hasFlag(args, "-f", "concat") }
func isTrim(args []string) bool {
	for _, arg := range args {
		if strings.Contains(arg, "silenceremove") {
			return true
		}
	}
	return false
}

type fixture struct {
	stage   *assembly.Stage
	store   *queue.Store
	catalog *testsupport.FakeCatalog
	runner  *recordingRunner
	hub     *events.Hub
	output  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	catalog := testsupport.NewFakeCatalog()
	hub := events.NewHub(64)

	runner := &recordingRunner{}
	proc := audioproc.NewProcessor(cfg, nil)
	proc.WithCommandRunner(runner.run)

	stage := assembly.NewStage(cfg, store, catalog, proc, hub, nil)
	stage.WithDurationProbe(func(context.Context, string) (int64, error) {
		return 321, nil
	})
	return &fixture{
		stage:   stage,
		store:   store,
		catalog: catalog,
		runner:  runner,
		hub:     hub,
		output:  cfg.Paths.OutputDir,
	}
}

func seedNarratedChapter(t *testing.T, catalog *testsupport.FakeCatalog, chapterID string, n int) {
	t.Helper()
	dir := t.TempDir()
	for i := 0; i < n; i++ {
		id := chapterID + "-s" + string(rune('a'+i))
		path := filepath.Join(dir, id+".wav")
		if err := os.WriteFile(path, []byte("pcm"), 0o644); err != nil {
			t.Fatalf("write artifact: %v", err)
		}
		catalog.AddSpeech(chapterID, library.Speech{ID: id, ChapterID: chapterID, Text: "line"})
		catalog.SeedArtifact(library.Artifact{SpeechID: id, Path: path, Format: "wav"})
	}
}

func claimAssemblyJob(t *testing.T, store *queue.Store, chapterID string) *queue.Job {
	t.Helper()
	ctx := context.Background()
	if _, err := store.Enqueue(ctx, queue.KindAssembly, chapterID, queue.EnqueueOptions{}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	job, err := store.ClaimNext(ctx, queue.KindAssembly)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if job == nil {
		t.Fatal("expected a claimable job")
	}
	return job
}

func TestExecuteProducesVariants(t *testing.T) {
	f := newFixture(t)
	seedNarratedChapter(t, f.catalog, "ch-asm", 3)
	job := claimAssemblyJob(t, f.store, "ch-asm")

	ctx := context.Background()
	if err := f.stage.Prepare(ctx, job); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := f.stage.Execute(ctx, job); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if got := f.runner.count(isConcat); got != 1 {
		t.Errorf("concat runs = %d, want 1", got)
	}
	if got := f.runner.count(isTrim); got != 1 {
		t.Errorf("trim runs = %d, want 1", got)
	}
	if got := f.runner.count(isEncode); got != 3 {
		t.Errorf("encode runs = %d, want 3", got)
	}
	if got := f.runner.count(isVerify); got != 3 {
		t.Errorf("verify runs = %d, want 3", got)
	}

	variants := f.catalog.Variants("ch-asm")
	if len(variants) != 3 {
		t.Fatalf("variants = %d, want 3", len(variants))
	}
	wantBitrates := []int{64, 128, 192}
	for i, variant := range variants {
		if variant.BitrateKbps != wantBitrates[i] {
			t.Errorf("variant[%d] bitrate = %d, want %d", i, variant.BitrateKbps, wantBitrates[i])
		}
		if variant.DurationSeconds != 321 {
			t.Errorf("variant[%d] duration = %d, want 321", i, variant.DurationSeconds)
		}
		if variant.SizeBytes == 0 {
			t.Errorf("variant[%d] size not recorded", i)
		}
		if !strings.HasPrefix(variant.Path, filepath.Join(f.output, "ch-asm")) {
			t.Errorf("variant[%d] path %q not under output dir", i, variant.Path)
		}
		if _, err := os.Stat(variant.Path); err != nil {
			t.Errorf("variant[%d] file missing: %v", i, err)
		}
	}

	if job.Status != queue.StatusCompleted {
		t.Fatalf("job status = %s, want completed", job.Status)
	}
	outputs, err := job.AudioOutputs()
	if err != nil {
		t.Fatalf("AudioOutputs: %v", err)
	}
	if len(outputs) != 3 {
		t.Fatalf("job outputs = %d, want 3", len(outputs))
	}

	evts, _, err := f.hub.Fetch(ctx, "ch-asm", 0, 0, false)
	if err != nil {
		t.Fatalf("hub.Fetch: %v", err)
	}
	if evts[0].Type != events.TypeAssemblyStarted {
		t.Errorf("first event = %s, want started", evts[0].Type)
	}
	last := evts[len(evts)-1]
	if last.Type != events.TypeAssemblyCompleted {
		t.Fatalf("last event = %s, want completed", last.Type)
	}
	var steps []string
	for _, evt := range evts {
		if evt.Type == events.TypeAssemblyProgress {
			steps = append(steps, evt.Payload["step"].(string))
		}
	}
	wantSteps := []string{"concat", "trim_silence", "encode", "verify", "publish"}
	if len(steps) != len(wantSteps) {
		t.Fatalf("progress steps = %v, want %v", steps, wantSteps)
	}
	for i, step := range steps {
		if step != wantSteps[i] {
			t.Errorf("step[%d] = %s, want %s", i, step, wantSteps[i])
		}
	}
}

func TestPrepareFailsOnMissingArtifacts(t *testing.T) {
	f := newFixture(t)
	f.catalog.AddSpeech("ch-gap", library.Speech{ID: "ch-gap-s1", ChapterID: "ch-gap", Text: "line"})
	job := claimAssemblyJob(t, f.store, "ch-gap")

	err := f.stage.Prepare(context.Background(), job)
	if !errors.Is(err, services.ErrIncompleteSource) {
		t.Fatalf("error = %v, want ErrIncompleteSource", err)
	}
	if !strings.Contains(err.Error(), "ch-gap-s1") {
		t.Fatalf("error should name the missing speech, got %v", err)
	}
}

func TestPrepareFailsWhenArtifactFileGone(t *testing.T) {
	f := newFixture(t)
	f.catalog.AddSpeech("ch-gone", library.Speech{ID: "ch-gone-s1", ChapterID: "ch-gone", Text: "line"})
	f.catalog.SeedArtifact(library.Artifact{SpeechID: "ch-gone-s1", Path: filepath.Join(t.TempDir(), "missing.wav"), Format: "wav"})
	job := claimAssemblyJob(t, f.store, "ch-gone")

	err := f.stage.Prepare(context.Background(), job)
	if !errors.Is(err, services.ErrIncompleteSource) {
		t.Fatalf("error = %v, want ErrIncompleteSource", err)
	}
}

func TestPrepareFailsOnEmptyChapter(t *testing.T) {
	f := newFixture(t)
	job := claimAssemblyJob(t, f.store, "ch-empty")

	err := f.stage.Prepare(context.Background(), job)
	if !errors.Is(err, services.ErrIncompleteSource) {
		t.Fatalf("error = %v, want ErrIncompleteSource", err)
	}
}

func TestExecuteEncodeFailureRecordsNothing(t *testing.T) {
	f := newFixture(t)
	seedNarratedChapter(t, f.catalog, "ch-bad", 2)
	f.runner.failWhen = func(args []string) error {
		if isEncode(args) {
			return errors.New("exit status 1: lame init failed")
		}
		return nil
	}
	job := claimAssemblyJob(t, f.store, "ch-bad")

	ctx := context.Background()
	if err := f.stage.Prepare(ctx, job); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	err := f.stage.Execute(ctx, job)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("error = %v, want ErrExternalTool", err)
	}
	if got := len(f.catalog.Variants("ch-bad")); got != 0 {
		t.Fatalf("variants recorded = %d, want 0", got)
	}
	entries, _ := os.ReadDir(filepath.Join(f.output, "ch-bad"))
	if len(entries) != 0 {
		t.Fatalf("output files published = %d, want 0", len(entries))
	}
}

func TestExecuteVerifyFailureStopsPublish(t *testing.T) {
	f := newFixture(t)
	seedNarratedChapter(t, f.catalog, "ch-corrupt", 1)
	f.runner.failWhen = func(args []string) error {
		if isVerify(args) {
			return errors.New("exit status 1: Header missing")
		}
		return nil
	}
	job := claimAssemblyJob(t, f.store, "ch-corrupt")

	ctx := context.Background()
	if err := f.stage.Prepare(ctx, job); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	err := f.stage.Execute(ctx, job)
	if !errors.Is(err, services.ErrUnreadableMedia) {
		t.Fatalf("error = %v, want ErrUnreadableMedia", err)
	}
	if got := len(f.catalog.Variants("ch-corrupt")); got != 0 {
		t.Fatalf("variants recorded = %d, want 0", got)
	}
}

func TestExecuteHonorsPendingCancel(t *testing.T) {
	f := newFixture(t)
	seedNarratedChapter(t, f.catalog, "ch-halt", 2)
	job := claimAssemblyJob(t, f.store, "ch-halt")

	ctx := context.Background()
	if _, _, err := f.store.RequestCancel(ctx, queue.KindAssembly, "ch-halt"); err != nil {
		t.Fatalf("RequestCancel: %v", err)
	}
	if err := f.stage.Prepare(ctx, job); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := f.stage.Execute(ctx, job); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if job.Status != queue.StatusCancelled {
		t.Fatalf("job status = %s, want cancelled", job.Status)
	}
	if len(f.runner.commands) != 0 {
		t.Fatalf("ffmpeg invocations = %d, want 0", len(f.runner.commands))
	}
	if got := len(f.catalog.Variants("ch-halt")); got != 0 {
		t.Fatalf("variants recorded = %d, want 0", got)
	}
}
