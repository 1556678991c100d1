package worker

import (
	"context"

	"montage/internal/jobs"
	"montage/internal/observability"
	"montage/internal/pkg/logger"
	"montage/internal/worker/processor"
)

// JobProcessor runs one admitted job to completion.
type JobProcessor interface {
	ProcessJob(ctx context.Context, job *processor.ParsedJob) error
}

type Deps struct {
	Jobs      *jobs.Controller
	Processor JobProcessor
	Metrics   *observability.Metrics
	// Base is the parent context of every job. Jobs are not cancelled when
	// the submitting request ends.
	Base context.Context
	Log  *logger.Logger
}
