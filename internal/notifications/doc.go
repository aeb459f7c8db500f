// Package notifications publishes pipeline milestones to ntfy. When no topic
// is configured a noop implementation is used, so callers never need to guard
// notification calls.
package notifications
