// Package worker admits render jobs and runs each one in its own goroutine.
package worker

import (
	"context"
	"sync"
	"time"

	"montage/internal/jobs"
	"montage/internal/observability"
	"montage/internal/pkg/errors"
	"montage/internal/pkg/logger"
	"montage/internal/worker/processor"
)

// Dispatcher is the semaphore-gated task spawner in front of the processor.
// The controller's slot reservation is the semaphore; the processor frees it.
type Dispatcher struct {
	jobs    *jobs.Controller
	proc    JobProcessor
	metrics *observability.Metrics
	base    context.Context
	log     *logger.Logger

	wg sync.WaitGroup
}

func NewDispatcher(d Deps) *Dispatcher {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	base := d.Base
	if base == nil {
		base = context.Background()
	}
	return &Dispatcher{
		jobs:    d.Jobs,
		proc:    d.Processor,
		metrics: d.Metrics,
		base:    base,
		log:     log.WithComponent("worker"),
	}
}

// Submit admits job and starts it. Refusals (capacity, duplicate id) return
// before any work is scheduled and leave no record.
func (d *Dispatcher) Submit(ctx context.Context, job *processor.ParsedJob) (jobs.Job, error) {
	admitted, err := d.jobs.Admit(job.ID, job.ProjectID, job.Mode)
	if err != nil {
		reason := "conflict"
		if errors.IsCapacity(err) {
			reason = "capacity"
		}
		d.metrics.JobRejected(ctx, reason)
		d.log.FromContext(ctx).Info("job rejected", "job_id", job.ID, "reason", reason)
		return jobs.Job{}, err
	}
	d.metrics.JobAdmitted(ctx, string(job.Mode))
	job.Ticket = admitted.Ticket

	jobCtx := logger.ContextWithJobID(d.base, job.ID)
	if reqID := logger.RequestIDFrom(ctx); reqID != "" {
		jobCtx = logger.ContextWithRequestID(jobCtx, reqID)
	}

	d.wg.Add(1)
	go d.run(jobCtx, job)

	return admitted, nil
}

func (d *Dispatcher) run(ctx context.Context, job *processor.ParsedJob) {
	defer d.wg.Done()
	// The processor releases its own slot; this covers a processor that
	// never got that far. The ticket keeps a resubmission's slot safe.
	defer d.jobs.Release(job.ID, job.Ticket)

	jobLog := d.log.WithJobID(job.ID)
	jobLog.Info("processing job", "mode", string(job.Mode))
	startTime := time.Now()

	if err := d.proc.ProcessJob(ctx, job); err != nil {
		jobLog.Error("job failed",
			"error", err.Error(),
			"duration_ms", time.Since(startTime).Milliseconds(),
		)
		return
	}
	jobLog.Info("job completed",
		"duration_ms", time.Since(startTime).Milliseconds(),
	)
}

// Drain waits for running jobs to finish or ctx to expire.
func (d *Dispatcher) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.log.Info("all jobs drained")
		return nil
	case <-ctx.Done():
		active, _ := d.jobs.Active()
		d.log.Warn("drain timed out", "active", active)
		return ctx.Err()
	}
}
