package processor

import (
	"encoding/json"
	"strings"

	"montage/internal/effects"
	"montage/internal/jobs"
	"montage/internal/subtitles"
)

// Submission is the body of POST /jobs. A submission is either a timeline
// or a flat videoUrl+audioUrl pair with effects.
type Submission struct {
	JobID     string `json:"jobId"`
	ProjectID string `json:"projectId,omitempty"`

	Timeline []TimelineEntry `json:"timeline,omitempty"`
	Options  TimelineOptions `json:"options,omitempty"`

	VideoURL        string          `json:"videoUrl,omitempty"`
	AudioURL        string          `json:"audioUrl,omitempty"`
	Effects         map[string]any  `json:"effects,omitempty"`
	TextOverlay     json.RawMessage `json:"textOverlay,omitempty"`
	SubtitleURL     string          `json:"subtitleUrl,omitempty"`
	SubtitleContent string          `json:"subtitleContent,omitempty"`
	TemplateID      string          `json:"templateId,omitempty"`

	CallbackURL string `json:"callbackUrl,omitempty"`
}

// TimelineEntry is one segment of a timeline submission.
type TimelineEntry struct {
	Type   string  `json:"type"`
	Source string  `json:"source,omitempty"`
	Start  float64 `json:"start"`
	End    float64 `json:"end"`
	Text   string  `json:"text,omitempty"`
	Style  string  `json:"style,omitempty"`
}

// TimelineOptions sets the canvas and encoding of a timeline render.
type TimelineOptions struct {
	Width     int            `json:"width,omitempty"`
	Height    int            `json:"height,omitempty"`
	FPS       float64        `json:"fps,omitempty"`
	Output    map[string]any `json:"output,omitempty"`
	Subtitles map[string]any `json:"subtitles,omitempty"`
}

// ParsedJob is a validated submission ready to run.
type ParsedJob struct {
	ID          string
	ProjectID   string
	Mode        jobs.Mode
	CallbackURL string

	// Flat mode.
	VideoURL    string
	AudioURL    string
	SubtitleURL string
	Effects     effects.Resolved
	Cues        []subtitles.Cue

	// Timeline mode.
	Timeline []TimelineEntry
	Canvas   TimelineOptions

	// Ticket is the slot reservation handed out at admission.
	Ticket jobs.Ticket
}

// Refs lists the remote references the job needs, in a stable order.
func (j *ParsedJob) Refs() []string {
	var refs []string
	add := func(ref string) {
		if ref = strings.TrimSpace(ref); ref != "" {
			refs = append(refs, ref)
		}
	}

	if j.Mode == jobs.ModeTimeline {
		for _, e := range j.Timeline {
			if e.Type != "subtitle" {
				add(e.Source)
			}
		}
		return refs
	}

	add(j.VideoURL)
	add(j.AudioURL)
	if w := j.Effects.Watermark; w != nil {
		add(w.URL)
	}
	if len(j.Cues) == 0 {
		add(j.SubtitleURL)
	}
	return refs
}
