// Package compiler turns flat effect specifications and multi-segment
// timelines into typed filter graphs. It is pure: every path, probe result
// and font lookup is supplied by the caller.
package compiler

import (
	"fmt"
	"strconv"

	"montage/internal/effects"
	"montage/internal/graph"
)

// FontResolver maps a font family to a local font file.
type FontResolver interface {
	Resolve(family string) string
}

// Source describes the probed primary video input.
type Source struct {
	Duration float64
	Width    int
	Height   int
	FPS      float64
}

func (s Source) withDefaults() Source {
	if s.Width <= 0 || s.Height <= 0 {
		s.Width, s.Height = 1920, 1080
	}
	if s.FPS <= 0 {
		s.FPS = 30
	}
	return s
}

// Plan is a compiled render: the graph plus everything the executor needs
// alongside it.
type Plan struct {
	Graph graph.Graph
	// SubtitleDoc must be written to the subtitle path before rendering.
	// Empty when no subtitle stage was emitted.
	SubtitleDoc string
	Quality     effects.Quality
	MaxDuration float64
	Width       int
	Height      int
}

// Chain names used by both modes.
const (
	ChainVideo     = "video"
	ChainAudio     = "audio"
	ChainWatermark = "watermark"
	ChainOverlay   = "overlay"
	ChainConcat    = "concat"
	ChainMix       = "mix"
	ChainSubtitles = "subtitles"
)

func even(n int) int {
	if n%2 != 0 {
		n--
	}
	if n < 2 {
		return 2
	}
	return n
}

func fmtNum(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func stream(input int, kind string) string {
	return fmt.Sprintf("%d:%s", input, kind)
}

// atempoStages returns the audio stretch stages for factor s. The atempo
// filter accepts [0.5, 2.0], so factors above 2 are split into two stages
// and factors below 0.5 are clamped for audio only.
func atempoStages(s float64) []graph.Stage {
	switch {
	case s == 1:
		return nil
	case s > 2:
		return []graph.Stage{
			graph.NewStage("atempo", graph.Num("", 2.0, 1)),
			graph.NewStage("atempo", graph.Num("", s/2.0, -1)),
		}
	case s < 0.5:
		return []graph.Stage{graph.NewStage("atempo", graph.Num("", 0.5, -1))}
	default:
		return []graph.Stage{graph.NewStage("atempo", graph.Num("", s, -1))}
	}
}

func subtitleStage(path, fontsDir string) graph.Stage {
	args := []graph.Arg{graph.Str("filename", path)}
	if fontsDir != "" {
		args = append(args, graph.Str("fontsdir", fontsDir))
	}
	return graph.NewStage("subtitles", args...)
}
