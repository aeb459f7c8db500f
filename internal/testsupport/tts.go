package testsupport

import (
	"context"
	"sync"

	"inkvoice/internal/tts"
)

// FakeProvider is a scripted tts.Provider for pipeline tests. Responses are
// keyed by voice then fall back to a default WAV payload; Fail scripts an
// error for the Nth call (1-based) to a given voice.
type FakeProvider struct {
	mu       sync.Mutex
	calls    []tts.Request
	failures map[string][]error
	voices   []tts.Voice
}

// NewFakeProvider returns a provider that always succeeds with a small WAV
// payload and offers the supplied voices (defaulting to Schedar and Kore).
func NewFakeProvider(voices ...tts.Voice) *FakeProvider {
	if len(voices) == 0 {
		voices = []tts.Voice{
			{ID: "Schedar", Name: "Schedar", Provider: "fake"},
			{ID: "Kore", Name: "Kore", Provider: "fake"},
		}
	}
	return &FakeProvider{
		failures: make(map[string][]error),
		voices:   voices,
	}
}

// FailNext queues errors returned by subsequent calls for the given voice,
// in order, before succeeding again.
func (f *FakeProvider) FailNext(voiceID string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[voiceID] = append(f.failures[voiceID], errs...)
}

func (f *FakeProvider) Name() string { return "fake" }

func (f *FakeProvider) GenerateAudio(_ context.Context, req tts.Request) (tts.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if queued := f.failures[req.VoiceID]; len(queued) > 0 {
		err := queued[0]
		f.failures[req.VoiceID] = queued[1:]
		return tts.Result{}, err
	}
	pcm := make([]byte, 4800)
	return tts.Result{Data: tts.EncodeWAV(pcm, 24000, 1, 16), Format: "wav", SampleRate: 24000}, nil
}

func (f *FakeProvider) Voices(context.Context) ([]tts.Voice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tts.Voice(nil), f.voices...), nil
}

// Calls returns the synthesis requests seen so far.
func (f *FakeProvider) Calls() []tts.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tts.Request(nil), f.calls...)
}

// CallCount reports how many synthesis requests were made.
func (f *FakeProvider) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}
