// Package api defines wire-format types and the service facades shared by
// the HTTP server and the CLI. It translates internal queue models into
// transport-friendly DTOs so consumers never couple to internal types.
//
// # Key Types
//
// NarrationStatus / AudioStatus: chapter-scoped pipeline state with progress;
// an idle state when the chapter has never been queued; the audio result
// payload appears only once assembly completes.
//
// VoicePreview: base64 audio plus a cached flag.
//
// # Design Notes
//
// DTOs use camelCase JSON tags for JavaScript consumers. Internal enums
// (queue.Status, queue.JobKind) are exposed as lowercase strings. Timestamps
// use RFC3339 with milliseconds.
package api
