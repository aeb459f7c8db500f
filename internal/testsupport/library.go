package testsupport

import (
	"context"
	"sort"
	"sync"
	"time"

	"inkvoice/internal/library"
)

// FakeCatalog is an in-memory library.Catalog for pipeline tests.
type FakeCatalog struct {
	mu        sync.Mutex
	speeches  map[string][]library.Speech
	voices    map[string]string
	artifacts map[string]library.Artifact
	variants  map[string][]library.AudioVariant

	SpeechesErr error
	ArtifactErr error
	VariantsErr error
}

// NewFakeCatalog returns an empty catalog fake.
func NewFakeCatalog() *FakeCatalog {
	return &FakeCatalog{
		speeches:  make(map[string][]library.Speech),
		voices:    make(map[string]string),
		artifacts: make(map[string]library.Artifact),
		variants:  make(map[string][]library.AudioVariant),
	}
}

// AddSpeech appends a speech to the chapter, assigning the next order index.
func (f *FakeCatalog) AddSpeech(chapterID string, speech library.Speech) {
	f.mu.Lock()
	defer f.mu.Unlock()
	speech.ChapterID = chapterID
	speech.OrderIndex = len(f.speeches[chapterID])
	f.speeches[chapterID] = append(f.speeches[chapterID], speech)
}

// SetVoice assigns a voice to a character.
func (f *FakeCatalog) SetVoice(characterID, voiceID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.voices[characterID] = voiceID
}

// SeedArtifact records an existing artifact for a speech.
func (f *FakeCatalog) SeedArtifact(artifact library.Artifact) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.artifacts[artifact.SpeechID] = artifact
}

func (f *FakeCatalog) SpeechesForChapter(_ context.Context, chapterID string) ([]library.Speech, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SpeechesErr != nil {
		return nil, f.SpeechesErr
	}
	speeches := append([]library.Speech(nil), f.speeches[chapterID]...)
	sort.SliceStable(speeches, func(i, j int) bool { return speeches[i].OrderIndex < speeches[j].OrderIndex })
	return speeches, nil
}

func (f *FakeCatalog) VoiceForCharacter(_ context.Context, characterID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.voices[characterID], nil
}

func (f *FakeCatalog) ArtifactForSpeech(_ context.Context, speechID string) (*library.Artifact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ArtifactErr != nil {
		return nil, f.ArtifactErr
	}
	artifact, ok := f.artifacts[speechID]
	if !ok {
		return nil, nil
	}
	copied := artifact
	return &copied, nil
}

func (f *FakeCatalog) SetSpeechArtifact(_ context.Context, artifact library.Artifact) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ArtifactErr != nil {
		return f.ArtifactErr
	}
	if artifact.SynthesizedAt.IsZero() {
		artifact.SynthesizedAt = time.Now().UTC()
	}
	if existing, ok := f.artifacts[artifact.SpeechID]; ok && existing.SynthesizedAt.After(artifact.SynthesizedAt) {
		return nil
	}
	f.artifacts[artifact.SpeechID] = artifact
	return nil
}

func (f *FakeCatalog) SetChapterAudioVariants(_ context.Context, chapterID string, variants []library.AudioVariant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.VariantsErr != nil {
		return f.VariantsErr
	}
	f.variants[chapterID] = append([]library.AudioVariant(nil), variants...)
	return nil
}

// ArtifactCount reports how many artifacts have been recorded.
func (f *FakeCatalog) ArtifactCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.artifacts)
}

// Artifact returns the recorded artifact for a speech, if any.
func (f *FakeCatalog) Artifact(speechID string) (library.Artifact, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	artifact, ok := f.artifacts[speechID]
	return artifact, ok
}

// Variants returns the recorded encodes for a chapter.
func (f *FakeCatalog) Variants(chapterID string) []library.AudioVariant {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]library.AudioVariant(nil), f.variants[chapterID]...)
}
