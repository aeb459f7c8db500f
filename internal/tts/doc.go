// Package tts defines the speech synthesis provider surface and shared
// helpers: markup validation, the cached voice catalog, and provider
// selection from configuration. Provider implementations live in the
// gemini and elevenlabs subpackages.
package tts
