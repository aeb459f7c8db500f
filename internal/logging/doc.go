// Package logging builds the slog loggers used by the daemon and CLI.
//
// Two handler flavours are supported: a human-oriented console handler
// with optional color, and line-delimited JSON for log files. Context
// helpers carry job, chapter, and stage attributes so a stage can log
// without restating its identity on every call. NewNop returns a
// discard logger for tests.
package logging
