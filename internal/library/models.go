package library

import "time"

// Speech is a single ordered utterance inside a chapter. Markup holds the
// optional speech-synthesis markup variant of Text; when present it is
// preferred for synthesis.
type Speech struct {
	ID          string
	ChapterID   string
	OrderIndex  int
	Text        string
	Markup      string
	CharacterID string
}

// SynthesisText returns the text handed to the synthesis provider, preferring
// markup when the speech carries it.
func (s Speech) SynthesisText() string {
	if s.Markup != "" {
		return s.Markup
	}
	return s.Text
}

// Artifact records the synthesized audio produced for one speech.
type Artifact struct {
	SpeechID      string
	Path          string
	Format        string
	DurationMS    int64
	VoiceID       string
	SynthesizedAt time.Time
}

// AudioVariant is one finished encode of a chapter's assembled narration.
type AudioVariant struct {
	ChapterID       string
	BitrateKbps     int
	Path            string
	DurationSeconds int64
	SizeBytes       int64
	CreatedAt       time.Time
}
