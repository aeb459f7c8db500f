// Package queue stores narration and assembly jobs in SQLite and guards the
// lifecycle transitions the workflow manager depends on.
//
// The store enforces the one-active-job-per-chapter invariant at the database
// level, hands out work to lane workers through atomic claims, and records
// progress, heartbeats, and failure detail so the daemon can resume cleanly
// after restarts.
package queue
