package library

import "context"

// Catalog is the surface the pipelines need from the book catalog. Reads feed
// the narration and assembly stages; writes publish their results back.
type Catalog interface {
	// SpeechesForChapter returns the chapter's speeches ordered by their
	// position in the text. A chapter with no speeches yields an empty slice.
	SpeechesForChapter(ctx context.Context, chapterID string) ([]Speech, error)

	// VoiceForCharacter returns the voice assigned to the character, or the
	// empty string when the character has no explicit assignment. Callers
	// fall back to the configured default voice.
	VoiceForCharacter(ctx context.Context, characterID string) (string, error)

	// ArtifactForSpeech returns the current artifact for the speech, or nil
	// when none has been recorded.
	ArtifactForSpeech(ctx context.Context, speechID string) (*Artifact, error)

	// SetSpeechArtifact records the artifact for a speech, superseding any
	// previous one. An older artifact (by synthesis time) never replaces a
	// newer one; stale writes are dropped silently.
	SetSpeechArtifact(ctx context.Context, artifact Artifact) error

	// SetChapterAudioVariants replaces the chapter's finished audio variants
	// in a single transaction. Either all variants land or none do.
	SetChapterAudioVariants(ctx context.Context, chapterID string, variants []AudioVariant) error
}
