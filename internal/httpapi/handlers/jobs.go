package handlers

import (
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"

	"montage/internal/httpkit"
	"montage/internal/jobs"
	"montage/internal/pkg/errors"
	"montage/internal/worker/processor"
)

// PostJob validates a submission and admits it. The response carries the
// queued job; progress is polled via GetJob or pushed to callbackUrl.
func (h *Handler) PostJob(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	var sub processor.Submission
	if err := httpkit.DecodeJSON(r, &sub); err != nil {
		return errors.Validation("invalid json body")
	}

	parsed, err := h.parser.Parse(ctx, &sub)
	if err != nil {
		return err
	}

	job, err := h.submitter.Submit(ctx, parsed)
	if err != nil {
		return err
	}

	h.log.FromContext(ctx).Info("job accepted",
		"job_id", job.ID,
		"mode", string(job.Mode),
	)
	httpkit.WriteJSON(w, http.StatusAccepted, map[string]any{"job": job})
	return nil
}

func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) error {
	id := chi.URLParam(r, "jobId")
	job, ok := h.jobs.Get(id)
	if !ok {
		return errors.NotFound("job", id)
	}
	httpkit.WriteJSON(w, http.StatusOK, map[string]any{"job": job})
	return nil
}

// Download serves the render of a finished timeline job. The file lives
// until the job is evicted.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) error {
	id := chi.URLParam(r, "jobId")
	job, ok := h.jobs.Get(id)
	if !ok || job.State != jobs.StateDone || job.OutputPath == "" {
		return errors.NotFound("download", id)
	}
	if _, err := os.Stat(job.OutputPath); err != nil {
		return errors.NotFound("download", id)
	}

	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Content-Disposition", `attachment; filename="`+id+`.mp4"`)
	http.ServeFile(w, r, job.OutputPath)
	return nil
}
