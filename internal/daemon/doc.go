// Package daemon coordinates the long-running inkvoice process.
//
// It wires configuration, the job store, the workflow manager, the event
// hub, and the voice preview cache into a single lifecycle with flock-based
// locking to prevent multiple instances, and serves the HTTP control API.
//
// Keep orchestration logic here: pipeline steps live in their own packages
// while the daemon focuses on startup, shutdown, and the HTTP surface.
package daemon
