package processor

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"

	"montage/internal/effects"
	"montage/internal/jobs"
	"montage/internal/pkg/errors"
	"montage/internal/repositories"
	"montage/internal/subtitles"
)

// TemplateSource supplies stored effect defaults by template id.
type TemplateSource interface {
	Effects(ctx context.Context, id string) (map[string]any, error)
}

type JobParser struct {
	templates TemplateSource
}

// NewJobParser builds a parser. templates may be nil, in which case a
// submission naming a template is rejected.
func NewJobParser(templates TemplateSource) *JobParser {
	return &JobParser{templates: templates}
}

// Parse validates a submission. A rejected submission must not be admitted;
// all errors are VALIDATION_ERROR except a failing template store.
func (jp *JobParser) Parse(ctx context.Context, s *Submission) (*ParsedJob, error) {
	if s == nil {
		return nil, errors.Validation("empty submission")
	}
	id := strings.TrimSpace(s.JobID)
	if id == "" {
		return nil, errors.ValidationField("jobId", "jobId is required")
	}
	if strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return nil, errors.ValidationField("jobId", "jobId must not contain path separators")
	}

	j := &ParsedJob{
		ID:          id,
		ProjectID:   strings.TrimSpace(s.ProjectID),
		CallbackURL: strings.TrimSpace(s.CallbackURL),
	}

	if len(s.Timeline) > 0 {
		return jp.parseTimeline(s, j)
	}
	if strings.TrimSpace(s.VideoURL) == "" || strings.TrimSpace(s.AudioURL) == "" {
		return nil, errors.Validation("either timeline or videoUrl and audioUrl are required")
	}
	return jp.parseFlat(ctx, s, j)
}

func (jp *JobParser) parseTimeline(s *Submission, j *ParsedJob) (*ParsedJob, error) {
	j.Mode = jobs.ModeTimeline
	j.Canvas = s.Options

	videos := 0
	for i, e := range s.Timeline {
		field := fmt.Sprintf("timeline[%d]", i)
		e.Type = strings.ToLower(strings.TrimSpace(e.Type))
		switch e.Type {
		case "video", "audio":
			if e.Source = strings.TrimSpace(e.Source); e.Source == "" {
				return nil, errors.ValidationField(field+".source", "source is required")
			}
			if e.Type == "video" {
				videos++
			}
		case "subtitle":
			if strings.TrimSpace(e.Text) == "" {
				return nil, errors.ValidationField(field+".text", "subtitle text is required")
			}
			if e.End <= e.Start {
				return nil, errors.ValidationField(field+".end", "end must be after start")
			}
		default:
			return nil, errors.ValidationField(field+".type", "type must be video, audio or subtitle")
		}
		if e.Start < 0 {
			return nil, errors.ValidationField(field+".start", "start must not be negative")
		}
		j.Timeline = append(j.Timeline, e)
	}
	if videos == 0 {
		return nil, errors.ValidationField("timeline", "at least one video entry is required")
	}

	spec, err := effects.Decode(map[string]any{
		"output":    s.Options.Output,
		"subtitles": s.Options.Subtitles,
	})
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeValidation, "parser.options", "invalid timeline options").
			WithField("field", "options")
	}
	j.Effects = effects.Normalize(spec)
	return j, nil
}

func (jp *JobParser) parseFlat(ctx context.Context, s *Submission, j *ParsedJob) (*ParsedJob, error) {
	j.Mode = jobs.ModeFlat
	j.VideoURL = strings.TrimSpace(s.VideoURL)
	j.AudioURL = strings.TrimSpace(s.AudioURL)
	j.SubtitleURL = strings.TrimSpace(s.SubtitleURL)

	raw := s.Effects
	if tid := strings.TrimSpace(s.TemplateID); tid != "" {
		defaults, err := jp.templateEffects(ctx, tid)
		if err != nil {
			return nil, err
		}
		raw = effects.Merge(defaults, raw)
	}

	overlay, err := textOverlay(s.TextOverlay)
	if err != nil {
		return nil, err
	}
	if overlay != nil {
		if _, set := raw["text"]; !set {
			raw = effects.Merge(raw, map[string]any{"text": overlay})
		}
	}

	spec, err := effects.Decode(raw)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeValidation, "parser.effects", "invalid effects").
			WithField("field", "effects")
	}
	j.Effects = effects.Normalize(spec)

	if w := j.Effects.Watermark; w != nil {
		if w.URL = strings.TrimSpace(w.URL); w.URL == "" {
			return nil, errors.ValidationField("effects.watermark.url", "watermark url is required")
		}
	}
	if strings.TrimSpace(s.SubtitleContent) != "" {
		j.Cues = subtitles.ParseSRT(s.SubtitleContent)
	}
	return j, nil
}

func (jp *JobParser) templateEffects(ctx context.Context, id string) (map[string]any, error) {
	if jp.templates == nil {
		return nil, errors.ValidationField("templateId", "templates are not available")
	}
	fx, err := jp.templates.Effects(ctx, id)
	if stderrors.Is(err, repositories.ErrTemplateNotFound) {
		return nil, errors.ValidationField("templateId", "template not found").WithField("template_id", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "parser.template", "failed to load template")
	}
	return fx, nil
}

// textOverlay decodes the request-level overlay, a string or an object.
func textOverlay(raw json.RawMessage) (any, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, errors.ValidationField("textOverlay", "textOverlay must be a string or an object")
	}
	switch t := v.(type) {
	case string:
		if strings.TrimSpace(t) == "" {
			return nil, nil
		}
		return t, nil
	case map[string]any:
		return t, nil
	default:
		return nil, errors.ValidationField("textOverlay", "textOverlay must be a string or an object")
	}
}
