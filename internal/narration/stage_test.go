package narration_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"inkvoice/internal/config"
	"inkvoice/internal/events"
	"inkvoice/internal/library"
	"inkvoice/internal/narration"
	"inkvoice/internal/queue"
	"inkvoice/internal/services"
	"inkvoice/internal/testsupport"
	"inkvoice/internal/tts"
)

type fixture struct {
	cfg      *config.Config
	stage    *narration.Stage
	store    *queue.Store
	catalog  *testsupport.FakeCatalog
	provider *testsupport.FakeProvider
	hub      *events.Hub
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.TTS.RetryBaseDelayMS = 0
	store := testsupport.MustOpenStore(t, cfg)
	catalog := testsupport.NewFakeCatalog()
	provider := testsupport.NewFakeProvider()
	hub := events.NewHub(64)
	return &fixture{
		cfg:      cfg,
		stage:    narration.NewStage(cfg, store, catalog, provider, hub, nil),
		store:    store,
		catalog:  catalog,
		provider: provider,
		hub:      hub,
	}
}

func claimJob(t *testing.T, store *queue.Store, chapterID string, force bool) *queue.Job {
	t.Helper()
	ctx := context.Background()
	if _, err := store.Enqueue(ctx, queue.KindNarration, chapterID, queue.EnqueueOptions{ForceRegenerate: force}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	job, err := store.ClaimNext(ctx, queue.KindNarration)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if job == nil {
		t.Fatal("expected a claimable job")
	}
	return job
}

func seedSpeeches(catalog *testsupport.FakeCatalog, chapterID string, n int) []library.Speech {
	speeches := make([]library.Speech, 0, n)
	for i := 0; i < n; i++ {
		speech := library.Speech{
			ID:        chapterID + "-s" + string(rune('a'+i)),
			ChapterID: chapterID,
			Text:      "Some narration text.",
		}
		catalog.AddSpeech(chapterID, speech)
		speeches = append(speeches, speech)
	}
	return speeches
}

func TestPrepareInitializesProgress(t *testing.T) {
	f := newFixture(t)
	stage, store, catalog := f.stage, f.store, f.catalog
	seedSpeeches(catalog, "ch-prep", 4)
	job := claimJob(t, store, "ch-prep", false)

	if err := stage.Prepare(context.Background(), job); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if job.TotalSpeechCount != 4 {
		t.Fatalf("TotalSpeechCount = %d, want 4", job.TotalSpeechCount)
	}
	if job.ProgressStage != "Narration" {
		t.Fatalf("ProgressStage = %q, want Narration", job.ProgressStage)
	}
	if job.ProgressPercent != 0 {
		t.Fatalf("ProgressPercent = %v, want 0", job.ProgressPercent)
	}
}

func TestExecuteSynthesizesAllSpeeches(t *testing.T) {
	f := newFixture(t)
	stage, store, catalog, provider, hub := f.stage, f.store, f.catalog, f.provider, f.hub
	speeches := seedSpeeches(catalog, "ch-run", 3)
	job := claimJob(t, store, "ch-run", false)

	ctx := context.Background()
	if err := stage.Prepare(ctx, job); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := stage.Execute(ctx, job); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if got := provider.CallCount(); got != 3 {
		t.Fatalf("provider calls = %d, want 3", got)
	}
	if got := catalog.ArtifactCount(); got != 3 {
		t.Fatalf("artifacts recorded = %d, want 3", got)
	}
	for _, speech := range speeches {
		artifact, ok := catalog.Artifact(speech.ID)
		if !ok {
			t.Fatalf("no artifact for speech %s", speech.ID)
		}
		if artifact.Format != "wav" {
			t.Errorf("artifact format = %q, want wav", artifact.Format)
		}
		if artifact.DurationMS != 100 {
			t.Errorf("artifact duration = %dms, want 100", artifact.DurationMS)
		}
		info, err := os.Stat(artifact.Path)
		if err != nil || info.Size() == 0 {
			t.Errorf("artifact file missing or empty at %s: %v", artifact.Path, err)
		}
	}
	if job.Status != queue.StatusCompleted {
		t.Fatalf("job status = %s, want completed", job.Status)
	}
	if job.ProgressPercent != 100 {
		t.Fatalf("progress percent = %v, want 100", job.ProgressPercent)
	}

	evts, _, err := hub.Fetch(ctx, "ch-run", 0, 0, false)
	if err != nil {
		t.Fatalf("hub.Fetch: %v", err)
	}
	wantTypes := []string{
		events.TypeNarrationStarted,
		events.TypeNarrationProgress,
		events.TypeNarrationProgress,
		events.TypeNarrationProgress,
		events.TypeNarrationCompleted,
	}
	if len(evts) != len(wantTypes) {
		t.Fatalf("event count = %d, want %d", len(evts), len(wantTypes))
	}
	for i, evt := range evts {
		if evt.Type != wantTypes[i] {
			t.Errorf("event[%d].Type = %s, want %s", i, evt.Type, wantTypes[i])
		}
	}
	for i, evt := range evts[1:4] {
		if got := evt.Payload["current"].(int); got != i+1 {
			t.Errorf("progress[%d] current = %d, want %d", i, got, i+1)
		}
		if got := evt.Payload["total"].(int); got != 3 {
			t.Errorf("progress[%d] total = %d, want 3", i, got)
		}
	}
}

func TestExecuteSkipsExistingArtifacts(t *testing.T) {
	f := newFixture(t)
	stage, store, catalog, provider, hub := f.stage, f.store, f.catalog, f.provider, f.hub
	speeches := seedSpeeches(catalog, "ch-skip", 2)

	dir := t.TempDir()
	for _, speech := range speeches {
		path := filepath.Join(dir, speech.ID+".wav")
		if err := os.WriteFile(path, []byte("existing"), 0o644); err != nil {
			t.Fatalf("write artifact: %v", err)
		}
		catalog.SeedArtifact(library.Artifact{SpeechID: speech.ID, Path: path, Format: "wav"})
	}

	job := claimJob(t, store, "ch-skip", false)
	ctx := context.Background()
	if err := stage.Prepare(ctx, job); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := stage.Execute(ctx, job); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if got := provider.CallCount(); got != 0 {
		t.Fatalf("provider calls = %d, want 0", got)
	}
	if job.Status != queue.StatusCompleted {
		t.Fatalf("job status = %s, want completed", job.Status)
	}

	// Skipped speeches still advance visible progress.
	evts, _, err := hub.Fetch(ctx, "ch-skip", 0, 0, false)
	if err != nil {
		t.Fatalf("hub.Fetch: %v", err)
	}
	var progress int
	for _, evt := range evts {
		if evt.Type == events.TypeNarrationProgress {
			progress++
		}
	}
	if progress != 2 {
		t.Fatalf("progress events = %d, want 2", progress)
	}
}

func TestExecuteForceRegenerateResynthesizes(t *testing.T) {
	f := newFixture(t)
	stage, store, catalog, provider := f.stage, f.store, f.catalog, f.provider
	speeches := seedSpeeches(catalog, "ch-force", 2)

	dir := t.TempDir()
	for _, speech := range speeches {
		path := filepath.Join(dir, speech.ID+".wav")
		if err := os.WriteFile(path, []byte("existing"), 0o644); err != nil {
			t.Fatalf("write artifact: %v", err)
		}
		catalog.SeedArtifact(library.Artifact{SpeechID: speech.ID, Path: path, Format: "wav"})
	}

	job := claimJob(t, store, "ch-force", true)
	ctx := context.Background()
	if err := stage.Prepare(ctx, job); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := stage.Execute(ctx, job); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := provider.CallCount(); got != 2 {
		t.Fatalf("provider calls = %d, want 2", got)
	}
}

func TestExecuteRetriesTransientFailures(t *testing.T) {
	f := newFixture(t)
	stage, store, catalog, provider := f.stage, f.store, f.catalog, f.provider
	seedSpeeches(catalog, "ch-retry", 1)
	provider.FailNext("Schedar",
		services.Wrap(services.ErrUnavailable, "tts", "generate", "overloaded", nil),
		services.Wrap(services.ErrUnavailable, "tts", "generate", "overloaded", nil))

	job := claimJob(t, store, "ch-retry", false)
	ctx := context.Background()
	if err := stage.Prepare(ctx, job); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := stage.Execute(ctx, job); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := provider.CallCount(); got != 3 {
		t.Fatalf("provider calls = %d, want 3 (two failures then success)", got)
	}
	if got := catalog.ArtifactCount(); got != 1 {
		t.Fatalf("artifacts recorded = %d, want 1", got)
	}
}

func TestExecuteFailsAfterRetryExhaustion(t *testing.T) {
	f := newFixture(t)
	stage, store, catalog, provider := f.stage, f.store, f.catalog, f.provider
	catalog.SetVoice("villain", "Kore")
	catalog.AddSpeech("ch-fail", library.Speech{ID: "ch-fail-s1", ChapterID: "ch-fail", Text: "First line."})
	catalog.AddSpeech("ch-fail", library.Speech{ID: "ch-fail-s2", ChapterID: "ch-fail", Text: "Second line.", CharacterID: "villain"})

	failure := services.Wrap(services.ErrUnavailable, "tts", "generate", "overloaded", nil)
	provider.FailNext("Kore", failure, failure, failure)

	job := claimJob(t, store, "ch-fail", false)
	ctx := context.Background()
	if err := stage.Prepare(ctx, job); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	err := stage.Execute(ctx, job)
	if err == nil {
		t.Fatal("expected execution to fail")
	}
	if !errors.Is(err, services.ErrUnavailable) {
		t.Fatalf("error = %v, want ErrUnavailable", err)
	}
	if !services.IsRetryable(err) {
		t.Fatal("exhaustion error should remain retryable for job-level backoff")
	}

	// The artifact produced before the failure survives.
	if _, ok := catalog.Artifact("ch-fail-s1"); !ok {
		t.Fatal("speech one artifact should be retained")
	}
	if _, ok := catalog.Artifact("ch-fail-s2"); ok {
		t.Fatal("speech two should have no artifact")
	}
}

func TestExecuteNonRetryableFailsImmediately(t *testing.T) {
	f := newFixture(t)
	f.cfg.TTS.ContinueOnError = false
	stage, store, catalog, provider := f.stage, f.store, f.catalog, f.provider
	seedSpeeches(catalog, "ch-perm", 1)
	provider.FailNext("Schedar",
		services.Wrap(services.ErrInvalidVoice, "tts", "generate", "unknown voice", nil))

	job := claimJob(t, store, "ch-perm", false)
	ctx := context.Background()
	if err := stage.Prepare(ctx, job); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	err := stage.Execute(ctx, job)
	if !errors.Is(err, services.ErrInvalidVoice) {
		t.Fatalf("error = %v, want ErrInvalidVoice", err)
	}
	if got := provider.CallCount(); got != 1 {
		t.Fatalf("provider calls = %d, want 1 (no retries)", got)
	}
}

func TestExecuteHonorsPendingCancel(t *testing.T) {
	f := newFixture(t)
	stage, store, catalog, provider := f.stage, f.store, f.catalog, f.provider
	seedSpeeches(catalog, "ch-cancel", 3)
	job := claimJob(t, store, "ch-cancel", false)

	ctx := context.Background()
	outcome, _, err := store.RequestCancel(ctx, queue.KindNarration, "ch-cancel")
	if err != nil {
		t.Fatalf("RequestCancel: %v", err)
	}
	if outcome != queue.CancelRequestedOutcome {
		t.Fatalf("cancel outcome = %v, want requested", outcome)
	}

	if err := stage.Prepare(ctx, job); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := stage.Execute(ctx, job); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if job.Status != queue.StatusCancelled {
		t.Fatalf("job status = %s, want cancelled", job.Status)
	}
	if job.ErrorMessage != queue.UserCancelReason {
		t.Fatalf("error message = %q, want %q", job.ErrorMessage, queue.UserCancelReason)
	}
	if got := provider.CallCount(); got != 0 {
		t.Fatalf("provider calls = %d, want 0", got)
	}
}

// cancellingProvider flags a cancel on the job's chapter while a synthesis
// call is in flight, so the stage sees the flag only after the provider
// returns.
type cancellingProvider struct {
	*testsupport.FakeProvider
	store     *queue.Store
	chapterID string
}

func (p *cancellingProvider) GenerateAudio(ctx context.Context, req tts.Request) (tts.Result, error) {
	if _, _, err := p.store.RequestCancel(ctx, queue.KindNarration, p.chapterID); err != nil {
		return tts.Result{}, err
	}
	return p.FakeProvider.GenerateAudio(ctx, req)
}

func TestCancelDuringSynthesisDiscardsResult(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.TTS.RetryBaseDelayMS = 0
	store := testsupport.MustOpenStore(t, cfg)
	catalog := testsupport.NewFakeCatalog()
	hub := events.NewHub(64)
	seedSpeeches(catalog, "ch-race", 2)
	job := claimJob(t, store, "ch-race", false)

	provider := &cancellingProvider{
		FakeProvider: testsupport.NewFakeProvider(),
		store:        store,
		chapterID:    "ch-race",
	}
	stage := narration.NewStage(cfg, store, catalog, provider, hub, nil)

	ctx := context.Background()
	if err := stage.Prepare(ctx, job); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := stage.Execute(ctx, job); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if job.Status != queue.StatusCancelled {
		t.Fatalf("job status = %s, want cancelled", job.Status)
	}
	if got := catalog.ArtifactCount(); got != 0 {
		t.Fatalf("artifacts recorded = %d, want 0 (in-flight result discarded)", got)
	}
}

func TestExecuteContinuesPastFailedSpeech(t *testing.T) {
	f := newFixture(t)
	stage, store, catalog, provider := f.stage, f.store, f.catalog, f.provider
	catalog.SetVoice("villain", "Kore")
	catalog.AddSpeech("ch-part", library.Speech{ID: "ch-part-s1", ChapterID: "ch-part", Text: "First line."})
	catalog.AddSpeech("ch-part", library.Speech{ID: "ch-part-s2", ChapterID: "ch-part", Text: "Second line.", CharacterID: "villain"})
	catalog.AddSpeech("ch-part", library.Speech{ID: "ch-part-s3", ChapterID: "ch-part", Text: "Third line."})

	failure := services.Wrap(services.ErrSynthesis, "tts", "generate", "garbled output", nil)
	provider.FailNext("Kore", failure, failure, failure)

	job := claimJob(t, store, "ch-part", false)
	ctx := context.Background()
	if err := stage.Prepare(ctx, job); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	err := stage.Execute(ctx, job)
	if !errors.Is(err, services.ErrIncompleteSource) {
		t.Fatalf("error = %v, want ErrIncompleteSource", err)
	}
	if !strings.Contains(err.Error(), "ch-part-s2") {
		t.Fatalf("error %q should name the failed speech", err)
	}
	if services.IsRetryable(err) {
		t.Fatal("partial chapter failure should be terminal, not retried")
	}

	// The speeches around the failure still get their artifacts.
	if _, ok := catalog.Artifact("ch-part-s1"); !ok {
		t.Fatal("speech one artifact should be retained")
	}
	if _, ok := catalog.Artifact("ch-part-s3"); !ok {
		t.Fatal("speech three should still be synthesized")
	}
	if _, ok := catalog.Artifact("ch-part-s2"); ok {
		t.Fatal("failed speech should have no artifact")
	}
	if got := provider.CallCount(); got != 5 {
		t.Fatalf("provider calls = %d, want 5 (two successes, three failed attempts)", got)
	}
}

func TestExecuteSpeechFilterNarrowsJob(t *testing.T) {
	f := newFixture(t)
	stage, store, catalog, provider := f.stage, f.store, f.catalog, f.provider
	speeches := seedSpeeches(catalog, "ch-one", 3)

	ctx := context.Background()
	if _, err := store.Enqueue(ctx, queue.KindNarration, "ch-one", queue.EnqueueOptions{SpeechFilter: speeches[1].ID}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	job, err := store.ClaimNext(ctx, queue.KindNarration)
	if err != nil || job == nil {
		t.Fatalf("claim: job=%v err=%v", job, err)
	}

	if err := stage.Prepare(ctx, job); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if job.TotalSpeechCount != 1 {
		t.Fatalf("TotalSpeechCount = %d, want 1", job.TotalSpeechCount)
	}
	if err := stage.Execute(ctx, job); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := provider.CallCount(); got != 1 {
		t.Fatalf("provider calls = %d, want 1", got)
	}
	if _, ok := catalog.Artifact(speeches[1].ID); !ok {
		t.Fatal("filtered speech should have an artifact")
	}
	if _, ok := catalog.Artifact(speeches[0].ID); ok {
		t.Fatal("unfiltered speech should be untouched")
	}
}

func TestPrepareRejectsUnknownSpeechFilter(t *testing.T) {
	f := newFixture(t)
	stage, store, catalog := f.stage, f.store, f.catalog
	seedSpeeches(catalog, "ch-miss", 2)

	ctx := context.Background()
	if _, err := store.Enqueue(ctx, queue.KindNarration, "ch-miss", queue.EnqueueOptions{SpeechFilter: "no-such-speech"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	job, err := store.ClaimNext(ctx, queue.KindNarration)
	if err != nil || job == nil {
		t.Fatalf("claim: job=%v err=%v", job, err)
	}

	if err := stage.Prepare(ctx, job); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("Prepare error = %v, want ErrNotFound", err)
	}
}

func TestVoiceResolutionAndMarkup(t *testing.T) {
	f := newFixture(t)
	stage, store, catalog, provider := f.stage, f.store, f.catalog, f.provider
	catalog.SetVoice("narrator", "Kore")
	catalog.AddSpeech("ch-voice", library.Speech{
		ID:        "ch-voice-s1",
		ChapterID: "ch-voice",
		Text:      "Plain text line.",
	})
	catalog.AddSpeech("ch-voice", library.Speech{
		ID:          "ch-voice-s2",
		ChapterID:   "ch-voice",
		Text:        "fallback",
		Markup:      "<speak>Marked <emphasis>up</emphasis> line.</speak>",
		CharacterID: "narrator",
	})

	job := claimJob(t, store, "ch-voice", false)
	ctx := context.Background()
	if err := stage.Prepare(ctx, job); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := stage.Execute(ctx, job); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	calls := provider.Calls()
	if len(calls) != 2 {
		t.Fatalf("provider calls = %d, want 2", len(calls))
	}
	if calls[0].VoiceID != "Schedar" {
		t.Errorf("speech one voice = %q, want default Schedar", calls[0].VoiceID)
	}
	if calls[0].Text != "Plain text line." {
		t.Errorf("speech one text = %q", calls[0].Text)
	}
	if calls[1].VoiceID != "Kore" {
		t.Errorf("speech two voice = %q, want Kore", calls[1].VoiceID)
	}
	if calls[1].Text != "<speak>Marked <emphasis>up</emphasis> line.</speak>" {
		t.Errorf("speech two text = %q, want markup passed through", calls[1].Text)
	}
}
