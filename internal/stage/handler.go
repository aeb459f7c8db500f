package stage

import (
	"context"

	"inkvoice/internal/queue"
)

// Handler describes the contract the workflow manager needs from each
// pipeline stage.
type Handler interface {
	// Prepare validates inputs and annotates the job before execution.
	// Failures here are classified the same way as execution failures.
	Prepare(context.Context, *queue.Job) error
	// Execute performs the stage work, updating job progress as it goes.
	Execute(context.Context, *queue.Job) error
	HealthCheck(context.Context) Health
}

// Health reports whether a stage can currently accept work. Detail is
// only set when Ready is false.
type Health struct {
	Name   string
	Ready  bool
	Detail string
}

func Healthy(name string) Health {
	return Health{Name: name, Ready: true}
}

func Unhealthy(name, detail string) Health {
	return Health{Name: name, Detail: detail}
}
