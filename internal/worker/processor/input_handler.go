package processor

import (
	"context"
	"os"

	"montage/internal/assets"
	"montage/internal/pkg/errors"
	"montage/internal/subtitles"
)

type InputHandler struct {
	resolver *assets.Resolver
	workDir  string
	minFree  int64
}

func NewInputHandler(resolver *assets.Resolver, workDir string, minFree int64) *InputHandler {
	return &InputHandler{resolver: resolver, workDir: workDir, minFree: minFree}
}

// Materialize checks local space, then downloads every reference the job
// needs into ws. The returned map is keyed by reference.
func (ih *InputHandler) Materialize(ctx context.Context, ws *assets.Workspace, job *ParsedJob) (map[string]string, error) {
	if err := assets.EnsureFree(ih.workDir, ih.minFree); err != nil {
		return nil, err
	}
	return ih.resolver.FetchAll(ctx, ws, job.Refs())
}

// LoadCues returns the job's inline cues, or parses the downloaded subtitle
// file when the job referenced one.
func (ih *InputHandler) LoadCues(job *ParsedJob, paths map[string]string) ([]subtitles.Cue, error) {
	if len(job.Cues) > 0 || job.SubtitleURL == "" {
		return job.Cues, nil
	}
	p, ok := paths[job.SubtitleURL]
	if !ok {
		return nil, nil
	}
	b, err := os.ReadFile(p)
	if err != nil {
		return nil, errors.Resource(err, "processor.subtitles", "cannot read subtitle file")
	}
	return subtitles.ParseSRT(string(b)), nil
}
