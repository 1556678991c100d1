package compiler

import (
	"fmt"
	"math"

	"montage/internal/effects"
	"montage/internal/graph"
	"montage/internal/subtitles"
)

// Entry kinds.
const (
	KindVideo    = "video"
	KindAudio    = "audio"
	KindSubtitle = "subtitle"
)

// Segment is a timeline entry with its source already resolved to a local
// path. Subtitle segments carry Text instead of a path.
type Segment struct {
	Kind  string
	Path  string
	Start float64
	End   float64
	Text  string
	Style string
}

// TimelineInput is a multi-segment composition.
type TimelineInput struct {
	Segments     []Segment
	Width        int
	Height       int
	FPS          float64
	Subtitles    effects.ResolvedSubtitles
	SubtitlePath string
	FontsDir     string
	Quality      effects.Quality
	MaxDuration  float64
}

// Timeline compiles a merge graph. Video segments are trimmed, rebased to
// zero, fitted to a common canvas and concatenated in order. Audio segments
// are delayed by their start offset and mixed when there is more than one.
// Subtitle segments form one cue sequence overlaid on the concatenated video.
func Timeline(in TimelineInput) (*Plan, error) {
	width, height := in.Width, in.Height
	if width <= 0 || height <= 0 {
		width, height = 1920, 1080
	}
	width, height = even(width), even(height)
	fps := in.FPS
	if fps <= 0 {
		fps = 30
	}

	plan := &Plan{Quality: in.Quality, MaxDuration: in.MaxDuration, Width: width, Height: height}
	if plan.Quality.Preset == "" {
		plan.Quality = effects.QualityFor("")
	}
	g := &plan.Graph

	var (
		videoLabels []string
		audioLabels []string
		cues        []subtitles.Cue
		style       = in.Subtitles
	)
	for _, seg := range in.Segments {
		switch seg.Kind {
		case KindVideo:
			idx := g.AddInput(seg.Path)
			label := fmt.Sprintf("v%d", len(videoLabels))
			g.Chains = append(g.Chains, graph.Chain{
				Name:    "segment_" + label,
				Inputs:  []string{stream(idx, "v")},
				Stages:  segmentStages(seg, width, height, fps),
				Outputs: []string{label},
			})
			videoLabels = append(videoLabels, label)
		case KindAudio:
			idx := g.AddInput(seg.Path)
			label := fmt.Sprintf("a%d", len(audioLabels))
			g.Chains = append(g.Chains, graph.Chain{
				Name:    "segment_" + label,
				Inputs:  []string{stream(idx, "a")},
				Stages:  audioSegmentStages(seg),
				Outputs: []string{label},
			})
			audioLabels = append(audioLabels, label)
		case KindSubtitle:
			if seg.End > seg.Start && seg.Text != "" {
				cues = append(cues, subtitles.Cue{Start: math.Max(seg.Start, 0), End: seg.End, Text: seg.Text})
			}
			if style.Style == "none" && seg.Style != "" {
				style = style.WithStyle(seg.Style)
			}
		default:
			return nil, fmt.Errorf("compile timeline: unknown entry type %q", seg.Kind)
		}
	}
	if len(videoLabels) == 0 {
		return nil, fmt.Errorf("compile timeline: at least one video entry is required")
	}

	videoOut := videoLabels[0]
	if len(videoLabels) > 1 {
		g.Chains = append(g.Chains, graph.Chain{
			Name:    ChainConcat,
			Inputs:  videoLabels,
			Stages:  []graph.Stage{graph.NewStage("concat", graph.Int("n", len(videoLabels)), graph.Int("v", 1), graph.Int("a", 0))},
			Outputs: []string{"vcat"},
		})
		videoOut = "vcat"
	}

	if doc, ok := subtitles.Compile(cues, subtitles.Options{Style: style, Speed: 1, Width: width, Height: height}); ok {
		if in.SubtitlePath == "" {
			return nil, fmt.Errorf("compile timeline: subtitle path is required")
		}
		plan.SubtitleDoc = doc
		g.Chains = append(g.Chains, graph.Chain{
			Name:    ChainSubtitles,
			Inputs:  []string{videoOut},
			Stages:  []graph.Stage{subtitleStage(in.SubtitlePath, in.FontsDir)},
			Outputs: []string{"vsub"},
		})
		videoOut = "vsub"
	}
	g.Maps = []string{"[" + videoOut + "]"}

	switch len(audioLabels) {
	case 0:
	case 1:
		g.Maps = append(g.Maps, "["+audioLabels[0]+"]")
	default:
		g.Chains = append(g.Chains, graph.Chain{
			Name:   ChainMix,
			Inputs: audioLabels,
			Stages: []graph.Stage{graph.NewStage("amix",
				graph.Int("inputs", len(audioLabels)),
				graph.Raw("duration", "longest"),
				graph.Int("normalize", 0),
			)},
			Outputs: []string{"amix"},
		})
		g.Maps = append(g.Maps, "[amix]")
	}
	return plan, nil
}

func segmentStages(seg Segment, width, height int, fps float64) []graph.Stage {
	trim := []graph.Arg{graph.Num("start", math.Max(seg.Start, 0), -1)}
	if seg.End > seg.Start {
		trim = append(trim, graph.Num("end", seg.End, -1))
	}
	return []graph.Stage{
		graph.NewStage("trim", trim...),
		graph.NewStage("setpts", graph.Raw("", "PTS-STARTPTS")),
		graph.NewStage("scale", graph.Int("w", width), graph.Int("h", height), graph.Raw("force_original_aspect_ratio", "decrease")),
		graph.NewStage("pad", graph.Int("w", width), graph.Int("h", height), graph.Expr("x", "(ow-iw)/2"), graph.Expr("y", "(oh-ih)/2"), graph.Raw("color", "black")),
		graph.NewStage("setsar", graph.Int("", 1)),
		graph.NewStage("fps", graph.Num("", fps, -1)),
	}
}

func audioSegmentStages(seg Segment) []graph.Stage {
	var stages []graph.Stage
	if seg.End > seg.Start {
		stages = append(stages, graph.NewStage("atrim", graph.Int("start", 0), graph.Num("duration", seg.End-seg.Start, -1)))
	}
	stages = append(stages, graph.NewStage("asetpts", graph.Raw("", "PTS-STARTPTS")))
	if ms := int(math.Round(seg.Start * 1000)); ms > 0 {
		stages = append(stages, graph.NewStage("adelay", graph.Int("delays", ms), graph.Int("all", 1)))
	}
	return stages
}
