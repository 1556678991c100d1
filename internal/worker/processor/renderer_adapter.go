package processor

import (
	"context"
	"os"

	"montage/internal/assets"
	"montage/internal/compiler"
	"montage/internal/jobs"
	"montage/internal/pkg/errors"
	"montage/internal/subtitles"
	"montage/internal/worker/renderer"
)

type RendererAdapter struct {
	client   renderer.Client
	fonts    compiler.FontResolver
	fontsDir string
}

func NewRendererAdapter(client renderer.Client, fonts compiler.FontResolver, fontsDir string) *RendererAdapter {
	return &RendererAdapter{client: client, fonts: fonts, fontsDir: fontsDir}
}

// RenderRequest is everything needed to compile and run one job.
type RenderRequest struct {
	Job        *ParsedJob
	Workspace  *assets.Workspace
	InputPaths map[string]string
	Cues       []subtitles.Cue
}

// Render compiles the job's plan, writes its subtitle document if any and
// runs the encoder. It returns the rendered file path.
func (ra *RendererAdapter) Render(ctx context.Context, req RenderRequest) (string, error) {
	subPath := req.Workspace.Path("subtitles.ass")

	var (
		plan *compiler.Plan
		err  error
	)
	if req.Job.Mode == jobs.ModeTimeline {
		plan, err = compiler.Timeline(ra.timelineInput(req, subPath))
	} else {
		var in compiler.FlatInput
		in, err = ra.flatInput(ctx, req, subPath)
		if err == nil {
			plan, err = compiler.Flat(in)
		}
	}
	if err != nil {
		return "", errors.WrapWithCode(err, errors.CodeRender, "processor.compile", "failed to compile filter graph")
	}

	if plan.SubtitleDoc != "" {
		if err := os.WriteFile(subPath, []byte(plan.SubtitleDoc), 0o644); err != nil {
			return "", errors.Resource(err, "processor.subtitles", "cannot write subtitle document")
		}
	}

	out := req.Workspace.Path("output.mp4")
	if err := ra.client.Render(ctx, plan, out); err != nil {
		return "", errors.WrapWithCode(err, errors.CodeRender, "processor.render", "encoder failed")
	}
	return out, nil
}

func (ra *RendererAdapter) flatInput(ctx context.Context, req RenderRequest, subPath string) (compiler.FlatInput, error) {
	job := req.Job
	videoPath := req.InputPaths[job.VideoURL]

	meta, err := ra.client.Probe(ctx, videoPath)
	if err != nil {
		return compiler.FlatInput{}, err
	}

	in := compiler.FlatInput{
		VideoPath:    videoPath,
		AudioPath:    req.InputPaths[job.AudioURL],
		SubtitlePath: subPath,
		FontsDir:     ra.fontsDir,
		Effects:      job.Effects,
		Source: compiler.Source{
			Duration: meta.DurationSeconds,
			Width:    meta.Width,
			Height:   meta.Height,
			FPS:      meta.FPS,
		},
		Cues:  req.Cues,
		Fonts: ra.fonts,
	}
	if w := job.Effects.Watermark; w != nil {
		in.WatermarkPath = req.InputPaths[w.URL]
	}
	return in, nil
}

func (ra *RendererAdapter) timelineInput(req RenderRequest, subPath string) compiler.TimelineInput {
	job := req.Job
	segs := make([]compiler.Segment, 0, len(job.Timeline))
	for _, e := range job.Timeline {
		segs = append(segs, compiler.Segment{
			Kind:  e.Type,
			Path:  req.InputPaths[e.Source],
			Start: e.Start,
			End:   e.End,
			Text:  e.Text,
			Style: e.Style,
		})
	}
	return compiler.TimelineInput{
		Segments:     segs,
		Width:        job.Canvas.Width,
		Height:       job.Canvas.Height,
		FPS:          job.Canvas.FPS,
		Subtitles:    job.Effects.Subtitles,
		SubtitlePath: subPath,
		FontsDir:     ra.fontsDir,
		Quality:      job.Effects.Quality,
		MaxDuration:  job.Effects.MaxDuration,
	}
}
