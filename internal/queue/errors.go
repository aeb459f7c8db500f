package queue

import "errors"

// ErrAlreadyInProgress is returned when a chapter already has an open job of
// the requested kind. Callers translate it into a conflict response.
var ErrAlreadyInProgress = errors.New("chapter already has a job in progress")

// ErrNotFound is returned when a job lookup matches nothing.
var ErrNotFound = errors.New("job not found")
