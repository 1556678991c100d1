// Package jobs owns the in-memory job registry: admission under a global
// concurrency cap, monotonic status updates and age-based eviction.
package jobs

import (
	"fmt"
	"sync"
	"time"

	"montage/internal/pkg/errors"
	"montage/internal/pkg/logger"
)

// Options configures a Controller.
type Options struct {
	// MaxActive bounds jobs admitted and not yet released.
	MaxActive int
	// MaxTracked is the registry size above which eviction sweeps run.
	MaxTracked int
	// TTL is the age after the last update at which a finished job is evicted.
	TTL time.Duration
	// OnEvict runs after a job leaves the registry, outside the lock.
	OnEvict func(Job)
	Log     *logger.Logger
	Now     func() time.Time
}

// Controller is the single owner of job state.
type Controller struct {
	mu       sync.Mutex
	jobs     map[string]*Job
	reserved map[string]Ticket
	tickets  Ticket

	maxActive  int
	maxTracked int
	ttl        time.Duration
	onEvict    func(Job)
	now        func() time.Time
	log        *logger.Logger
}

// NewController creates an empty registry.
func NewController(opts Options) *Controller {
	if opts.MaxActive <= 0 {
		opts.MaxActive = 5
	}
	if opts.MaxTracked <= 0 {
		opts.MaxTracked = 500
	}
	if opts.TTL <= 0 {
		opts.TTL = time.Hour
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Log == nil {
		opts.Log = logger.Discard()
	}

	return &Controller{
		jobs:       make(map[string]*Job),
		reserved:   make(map[string]Ticket),
		maxActive:  opts.MaxActive,
		maxTracked: opts.MaxTracked,
		ttl:        opts.TTL,
		onEvict:    opts.OnEvict,
		now:        opts.Now,
		log:        opts.Log.WithComponent("jobs"),
	}
}

// Admit reserves a processing slot and records the job as queued. The
// returned job carries the Ticket that releases the slot. It fails with a
// capacity error when the cap is reached and with a conflict when a job with
// the same id is still running or still holds its slot. A refused job leaves
// no record.
func (c *Controller) Admit(id, projectID string, mode Mode) (Job, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.jobs[id]; ok && !existing.State.Terminal() {
		return Job{}, errors.Conflict(fmt.Sprintf("job %s is already %s", id, existing.State)).
			WithField("job_id", id)
	}
	if _, held := c.reserved[id]; held {
		return Job{}, errors.Conflict(fmt.Sprintf("job %s is still releasing its slot", id)).
			WithField("job_id", id)
	}
	if len(c.reserved) >= c.maxActive {
		return Job{}, errors.Capacity(len(c.reserved), c.maxActive)
	}

	c.tickets++
	now := c.now().UTC()
	job := &Job{
		Ticket:    c.tickets,
		ID:        id,
		ProjectID: projectID,
		Mode:      mode,
		State:     StateQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	c.jobs[id] = job
	c.reserved[id] = job.Ticket

	return *job, nil
}

// Release frees the slot reserved by the admission that issued t. A stale
// ticket, or a second call, leaves a later admission of the same id alone.
func (c *Controller) Release(id string, t Ticket) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if held, ok := c.reserved[id]; ok && held == t {
		delete(c.reserved, id)
	}
}

// SetStatus upserts the job record, applies the transition and stamps the
// update time. Progress never decreases while the job is running.
func (c *Controller) SetStatus(id string, state State, u Update) (Job, error) {
	c.mu.Lock()

	now := c.now().UTC()
	job, ok := c.jobs[id]
	if !ok {
		job = &Job{ID: id, State: StateQueued, CreatedAt: now}
		c.jobs[id] = job
	}

	if !isValidTransition(job.State, state) {
		snapshot := *job
		c.mu.Unlock()
		return snapshot, errors.Conflict(fmt.Sprintf("invalid transition: %s -> %s", snapshot.State, state)).
			WithField("job_id", id)
	}

	job.State = state
	job.UpdatedAt = now
	if u.Progress > job.Progress {
		job.Progress = u.Progress
	}
	if job.Progress > 100 {
		job.Progress = 100
	}
	if state == StateDone {
		job.Progress = 100
	}
	if u.Result != nil {
		r := *u.Result
		job.Result = &r
	}
	if u.Error != "" {
		job.Error = u.Error
	}
	if u.OutputPath != "" {
		job.OutputPath = u.OutputPath
	}
	snapshot := *job

	evicted := c.sweepLocked(now)
	c.mu.Unlock()

	c.notifyEvicted(evicted)
	return snapshot, nil
}

// Get returns a snapshot of the job.
func (c *Controller) Get(id string) (Job, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	job, ok := c.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// Active returns the number of reserved slots and the cap.
func (c *Controller) Active() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.reserved), c.maxActive
}

// Len returns the number of tracked jobs.
func (c *Controller) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.jobs)
}

// sweepLocked drops finished jobs older than the TTL once the registry grows
// past MaxTracked. Running jobs are never evicted.
func (c *Controller) sweepLocked(now time.Time) []Job {
	if len(c.jobs) <= c.maxTracked {
		return nil
	}

	var evicted []Job
	for id, job := range c.jobs {
		if !job.State.Terminal() {
			continue
		}
		if _, held := c.reserved[id]; held {
			continue
		}
		if now.Sub(job.UpdatedAt) > c.ttl {
			evicted = append(evicted, *job)
			delete(c.jobs, id)
		}
	}
	return evicted
}

func (c *Controller) notifyEvicted(evicted []Job) {
	if len(evicted) == 0 {
		return
	}
	c.log.Debug("evicted finished jobs", "count", len(evicted))
	if c.onEvict == nil {
		return
	}
	for _, job := range evicted {
		c.onEvict(job)
	}
}
