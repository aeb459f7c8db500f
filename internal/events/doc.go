// Package events fans out pipeline progress events to API subscribers. The
// hub keeps a bounded in-memory ring of recent events; delivery is
// at-least-once for connected consumers and best-effort overall, so the
// durable job record remains the source of truth for state.
package events
