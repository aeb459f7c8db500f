// Package ffprobe wraps the ffprobe binary for inspecting narration
// artifacts and assembled chapter audio.
package ffprobe
