// Package library provides access to the book catalog consumed and updated
// by the narration and assembly pipelines. The catalog tracks the ordered
// speeches of each chapter, the voice assigned to each character, the audio
// artifact synthesized for each speech, and the finished per-chapter audio
// variants.
package library
