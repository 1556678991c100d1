package processor

import (
	"context"
	"fmt"
	"time"

	"montage/internal/assets"
	"montage/internal/compiler"
	"montage/internal/jobs"
	"montage/internal/observability"
	"montage/internal/pkg/errors"
	"montage/internal/pkg/logger"
	"montage/internal/ports"
	"montage/internal/worker/notify"
	"montage/internal/worker/renderer"
)

// Progress reported at each pipeline step.
const (
	progressDownloading = 5
	progressDownloaded  = 20
	progressRendering   = 30
	progressUploading   = 85
	progressFinalizing  = 90
)

type Deps struct {
	Jobs     *jobs.Controller
	Renderer renderer.Client
	Resolver *assets.Resolver
	SP       ports.StorageProvider
	Notifier *notify.Notifier
	Fonts    compiler.FontResolver
	Metrics  *observability.Metrics

	WorkDir       string
	FontsDir      string
	MinFreeBytes  int64
	PublicBaseURL string
	Log           *logger.Logger
}

type Processor struct {
	jobs     *jobs.Controller
	notifier *notify.Notifier
	metrics  *observability.Metrics
	workDir  string
	log      *logger.Logger

	// Componentes internos
	inputHandler    *InputHandler
	outputHandler   *OutputHandler
	rendererAdapter *RendererAdapter
	cleanup         *Cleanup
}

func New(d Deps) *Processor {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	log = log.WithComponent("processor")

	p := &Processor{
		jobs:     d.Jobs,
		notifier: d.Notifier,
		metrics:  d.Metrics,
		workDir:  d.WorkDir,
		log:      log,
	}

	// Inicializar componentes
	p.inputHandler = NewInputHandler(d.Resolver, d.WorkDir, d.MinFreeBytes)
	p.outputHandler = NewOutputHandler(d.SP, d.Renderer, d.PublicBaseURL)
	p.rendererAdapter = NewRendererAdapter(d.Renderer, d.Fonts, d.FontsDir)
	p.cleanup = NewCleanup(log)

	return p
}

// RemoveOutput is the registry eviction hook.
func (p *Processor) RemoveOutput(j jobs.Job) { p.cleanup.RemoveOutput(j) }

// ProcessJob runs an admitted job to a terminal state, then delivers the
// callback if one was requested. The returned error is the job failure, if
// any; callback failures are never returned.
func (p *Processor) ProcessJob(ctx context.Context, job *ParsedJob) error {
	start := time.Now()

	final, err := p.execute(ctx, job)
	p.metrics.JobFinished(ctx, string(job.Mode), string(final.State), time.Since(start))

	if job.CallbackURL != "" && p.notifier != nil {
		_ = p.notifier.Deliver(ctx, job.CallbackURL, notify.PayloadFor(final))
	}
	return err
}

// execute owns the job's slot and workspace. Both are released on every
// exit path, panics included.
func (p *Processor) execute(ctx context.Context, job *ParsedJob) (final jobs.Job, err error) {
	log := p.log.FromContext(ctx).WithJobID(job.ID)
	ws := assets.NewWorkspace(p.workDir, job.ID)

	defer func() {
		if r := recover(); r != nil {
			log.Error("job panicked", "panic", fmt.Sprint(r))
			err = errors.Newf(errors.CodeInternal, "job panicked: %v", r)
			final = p.failJob(ctx, job.ID, err)
		}
		p.cleanup.CleanupJob(ws)
		p.jobs.Release(job.ID, job.Ticket)
	}()

	// 1. Descargar inputs
	log.Debug("downloading inputs", "refs", len(job.Refs()))
	if _, err := p.jobs.SetStatus(job.ID, jobs.StateDownloading, jobs.Update{Progress: progressDownloading}); err != nil {
		return p.failJob(ctx, job.ID, err), err
	}
	paths, err := p.inputHandler.Materialize(ctx, ws, job)
	if err != nil {
		return p.failJob(ctx, job.ID, err), err
	}
	cues, err := p.inputHandler.LoadCues(job, paths)
	if err != nil {
		return p.failJob(ctx, job.ID, err), err
	}
	_, _ = p.jobs.SetStatus(job.ID, jobs.StateDownloading, jobs.Update{Progress: progressDownloaded})

	// 2. Renderizar
	log.Debug("rendering", "mode", string(job.Mode), "inputs", len(paths))
	if _, err := p.jobs.SetStatus(job.ID, jobs.StateRendering, jobs.Update{Progress: progressRendering}); err != nil {
		return p.failJob(ctx, job.ID, err), err
	}
	renderStart := time.Now()
	output, err := p.rendererAdapter.Render(ctx, RenderRequest{
		Job:        job,
		Workspace:  ws,
		InputPaths: paths,
		Cues:       cues,
	})
	if err != nil {
		return p.failJob(ctx, job.ID, err), err
	}
	p.metrics.RenderDuration(ctx, string(job.Mode), time.Since(renderStart))
	log.Debug("render completed", "duration_ms", time.Since(renderStart).Milliseconds())

	// 3. Publicar
	if job.Mode == jobs.ModeTimeline {
		return p.finalize(ctx, job, ws, output)
	}
	return p.publish(ctx, job, output)
}

func (p *Processor) publish(ctx context.Context, job *ParsedJob, output string) (jobs.Job, error) {
	if _, err := p.jobs.SetStatus(job.ID, jobs.StateUploading, jobs.Update{Progress: progressUploading}); err != nil {
		return p.failJob(ctx, job.ID, err), err
	}
	result, err := p.outputHandler.Publish(ctx, job, output)
	if err != nil {
		return p.failJob(ctx, job.ID, err), err
	}
	return p.markJobDone(ctx, job.ID, jobs.Update{Result: result})
}

func (p *Processor) finalize(ctx context.Context, job *ParsedJob, ws *assets.Workspace, output string) (jobs.Job, error) {
	if _, err := p.jobs.SetStatus(job.ID, jobs.StateFinalizing, jobs.Update{Progress: progressFinalizing}); err != nil {
		return p.failJob(ctx, job.ID, err), err
	}
	result, err := p.outputHandler.Finalize(ctx, job, output)
	if err != nil {
		return p.failJob(ctx, job.ID, err), err
	}
	// The served file now belongs to the registry and goes away on eviction.
	ws.Release(output)
	return p.markJobDone(ctx, job.ID, jobs.Update{Result: result, OutputPath: output})
}

func (p *Processor) markJobDone(ctx context.Context, jobID string, u jobs.Update) (jobs.Job, error) {
	done, err := p.jobs.SetStatus(jobID, jobs.StateDone, u)
	if err != nil {
		return p.failJob(ctx, jobID, err), err
	}
	p.log.FromContext(ctx).WithJobID(jobID).Info("job done", "url", done.Result.URL)
	return done, nil
}

func (p *Processor) failJob(ctx context.Context, jobID string, cause error) jobs.Job {
	log := p.log.FromContext(ctx).WithJobID(jobID)

	msg := ""
	if cause != nil {
		msg = truncate(cause.Error(), maxErrorLen)

		var montageErr *errors.Error
		if errors.As(cause, &montageErr) {
			log.Error("job failed",
				"code", string(montageErr.Code),
				"op", montageErr.Op,
				"message", montageErr.Message,
			)
		} else {
			log.Error("job failed", "error", msg)
		}
	}

	snap, err := p.jobs.SetStatus(jobID, jobs.StateError, jobs.Update{Error: msg})
	if err != nil {
		// Already terminal.
		log.Debug("error state not recorded", "error", err.Error())
	}
	return snap
}
