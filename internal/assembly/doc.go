// Package assembly implements the chapter audio production stage: it
// concatenates a chapter's narration artifacts, trims leading and trailing
// silence, encodes the configured bitrate tiers in parallel, verifies each
// encode, and publishes the resulting variants to the output directory.
package assembly
