// Package narration implements the speech synthesis stage: it walks a
// chapter's ordered speeches, synthesizes audio for each one through the
// configured provider, and records the resulting artifacts in the catalog.
package narration
