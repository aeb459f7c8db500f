// Package preview serves short voice samples for character casting. Samples
// are synthesized once per voice and sample text, persisted under the preview
// cache directory with a JSON index, and served from disk afterwards. A
// missing or damaged cache file degrades to a miss and the sample is
// regenerated.
package preview
