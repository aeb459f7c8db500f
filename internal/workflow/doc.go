// Package workflow drives the durable job queue. A manager runs one worker
// pool per job kind; each worker claims runnable jobs, executes the
// registered stage handler with a heartbeat loop, and applies the queue
// transition semantics: retryable failures are delayed for another attempt,
// exhausted or permanent failures become terminal, and handlers may set
// their own terminal status (cancellation) which the manager preserves.
package workflow
