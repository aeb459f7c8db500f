// Package audioproc drives ffmpeg for chapter audio assembly: concatenating
// narration artifacts, trimming silence, loudness-normalized MP3 encoding,
// and decode verification of finished files.
package audioproc
