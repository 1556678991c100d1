package compiler

import (
	"fmt"
	"math"

	"montage/internal/effects"
	"montage/internal/graph"
	"montage/internal/subtitles"
)

// FlatInput is a single video plus single audio composition.
type FlatInput struct {
	VideoPath     string
	AudioPath     string
	WatermarkPath string // required when Effects.Watermark is set
	SubtitlePath  string // where Plan.SubtitleDoc will be written
	FontsDir      string

	Effects effects.Resolved
	Source  Source
	Cues    []subtitles.Cue
	Fonts   FontResolver
}

// Flat compiles a flat-mode composition. Video stages always run in the
// order speed, crop, zoom, color, fade, followed by text and subtitles.
func Flat(in FlatInput) (*Plan, error) {
	if in.VideoPath == "" || in.AudioPath == "" {
		return nil, fmt.Errorf("compile flat: video and audio inputs are required")
	}
	fx := in.Effects
	if fx.Speed <= 0 {
		fx.Speed = 1
	}
	src := in.Source.withDefaults()

	plan := &Plan{Quality: fx.Quality, MaxDuration: fx.MaxDuration}
	g := &plan.Graph
	vIn := g.AddInput(in.VideoPath)
	aIn := g.AddInput(in.AudioPath)

	effDur := src.Duration / fx.Speed
	if fx.MaxDuration > 0 && (effDur <= 0 || fx.MaxDuration < effDur) {
		effDur = fx.MaxDuration
	}

	width, height := outputSize(src, fx.Crop)
	plan.Width, plan.Height = width, height

	var video []graph.Stage
	if fx.Speed != 1 {
		video = append(video, graph.NewStage("setpts", graph.Expr("", "PTS/"+fmtNum(fx.Speed))))
	}
	if fx.Crop != nil {
		video = append(video, cropStages(*fx.Crop)...)
	}
	if fx.Zoom != nil {
		video = append(video, zoomStage(*fx.Zoom, effDur, src.FPS, width, height))
	}
	if c := fx.Color; c != nil {
		video = append(video, graph.NewStage("eq",
			graph.Num("brightness", c.Brightness, 2),
			graph.Num("contrast", c.Contrast, 2),
			graph.Num("saturation", c.Saturation, 2),
			graph.Num("gamma", c.Gamma, 2),
		))
	}
	var audio []graph.Stage
	audio = append(audio, atempoStages(fx.Speed)...)

	if f := fx.Fade; f != nil {
		video = append(video, fadeStages("fade", *f, effDur)...)
		audio = append(audio, fadeStages("afade", *f, effDur)...)
	}

	if a := fx.Audio; a != nil {
		if a.Volume != 1 {
			audio = append(audio, graph.NewStage("volume", graph.Num("", a.Volume, 2)))
		}
		if a.Normalize {
			audio = append(audio, graph.NewStage("loudnorm", graph.Num("I", -16, -1), graph.Num("TP", -1.5, -1), graph.Num("LRA", 11, -1)))
		}
		// The synced fade already shapes the audio track.
		if fx.Fade == nil {
			audio = append(audio, fadeStages("afade", effects.ResolvedFade{In: a.FadeIn, Out: a.FadeOut}, effDur)...)
		}
	}

	if t := fx.Text; t != nil {
		video = append(video, textStage(*t, in.Fonts))
	}

	if len(in.Cues) > 0 {
		doc, ok := subtitles.Compile(in.Cues, subtitles.Options{
			Style:  fx.Subtitles,
			Speed:  fx.Speed,
			Width:  width,
			Height: height,
		})
		if ok {
			if in.SubtitlePath == "" {
				return nil, fmt.Errorf("compile flat: subtitle path is required")
			}
			plan.SubtitleDoc = doc
			video = append(video, subtitleStage(in.SubtitlePath, in.FontsDir))
		}
	}

	videoOut := stream(vIn, "v")
	if len(video) > 0 || fx.Watermark != nil {
		if len(video) == 0 {
			video = []graph.Stage{graph.NewStage("null")}
		}
		g.Chains = append(g.Chains, graph.Chain{
			Name:    ChainVideo,
			Inputs:  []string{videoOut},
			Stages:  video,
			Outputs: []string{"vmain"},
		})
		videoOut = "[vmain]"
	}

	if w := fx.Watermark; w != nil {
		if in.WatermarkPath == "" {
			return nil, fmt.Errorf("compile flat: watermark input is required")
		}
		wIn := g.AddInput(in.WatermarkPath)
		g.Chains = append(g.Chains,
			graph.Chain{
				Name:   ChainWatermark,
				Inputs: []string{stream(wIn, "v")},
				Stages: []graph.Stage{
					graph.NewStage("scale", graph.Int("w", even(int(math.Round(float64(width)*w.Scale)))), graph.Int("h", -2)),
					graph.NewStage("format", graph.Raw("", "rgba")),
					graph.NewStage("colorchannelmixer", graph.Num("aa", w.Opacity, 2)),
				},
				Outputs: []string{"wm"},
			},
			graph.Chain{
				Name:    ChainOverlay,
				Inputs:  []string{"vmain", "wm"},
				Stages:  []graph.Stage{overlayStage(*w)},
				Outputs: []string{"vout"},
			},
		)
		videoOut = "[vout]"
	}

	audioOut := stream(aIn, "a")
	if len(audio) > 0 {
		g.Chains = append(g.Chains, graph.Chain{
			Name:    ChainAudio,
			Inputs:  []string{audioOut},
			Stages:  audio,
			Outputs: []string{"aout"},
		})
		audioOut = "[aout]"
	}
	g.Maps = []string{videoOut, audioOut}
	return plan, nil
}

// VideoStages returns the main video chain's stages, or nil.
func (p *Plan) VideoStages() []graph.Stage {
	if c := p.Graph.Chain(ChainVideo); c != nil {
		return c.Stages
	}
	return nil
}

// AudioStages returns the main audio chain's stages, or nil.
func (p *Plan) AudioStages() []graph.Stage {
	if c := p.Graph.Chain(ChainAudio); c != nil {
		return c.Stages
	}
	return nil
}

func outputSize(src Source, crop *effects.ResolvedCrop) (int, int) {
	w, h := src.Width, src.Height
	if crop == nil {
		return even(w), even(h)
	}
	if crop.AspectW > 0 && crop.AspectH > 0 {
		target := float64(crop.AspectW) / float64(crop.AspectH)
		if float64(w)/float64(h) > target {
			w = int(math.Round(float64(h) * target))
		} else {
			h = int(math.Round(float64(w) / target))
		}
	}
	if crop.Width > 0 && crop.Height > 0 {
		w, h = crop.Width, crop.Height
	}
	return even(w), even(h)
}

func cropStages(c effects.ResolvedCrop) []graph.Stage {
	var stages []graph.Stage
	if c.AspectW > 0 && c.AspectH > 0 {
		ratio := fmt.Sprintf("%d/%d", c.AspectW, c.AspectH)
		x, y := "(iw-ow)/2", "(ih-oh)/2"
		switch c.Position {
		case "left":
			x = "0"
		case "right":
			x = "iw-ow"
		case "top":
			y = "0"
		case "bottom":
			y = "ih-oh"
		}
		stages = append(stages, graph.NewStage("crop",
			graph.Expr("w", "trunc(min(iw,ih*"+ratio+")/2)*2"),
			graph.Expr("h", "trunc(min(ih,iw/("+ratio+"))/2)*2"),
			graph.Expr("x", x),
			graph.Expr("y", y),
		))
	}
	if c.Width > 0 && c.Height > 0 {
		w, h := even(c.Width), even(c.Height)
		if c.Letterbox {
			stages = append(stages,
				graph.NewStage("scale", graph.Int("w", w), graph.Int("h", h), graph.Raw("force_original_aspect_ratio", "decrease")),
				graph.NewStage("pad", graph.Int("w", w), graph.Int("h", h), graph.Expr("x", "(ow-iw)/2"), graph.Expr("y", "(oh-ih)/2"), graph.Raw("color", "black")),
			)
		} else {
			stages = append(stages, graph.NewStage("scale", graph.Int("w", w), graph.Int("h", h)))
		}
		stages = append(stages, graph.NewStage("setsar", graph.Int("", 1)))
	}
	return stages
}

func zoomStage(z effects.ResolvedZoom, effDur, fps float64, width, height int) graph.Stage {
	frames := int(math.Round(effDur * fps))
	if frames < 1 {
		frames = 1
	}
	peak := 1 + z.Intensity
	step := fmtNum(z.Intensity / float64(frames))
	maxS := fmtNum(peak)
	n := fmt.Sprintf("%d", frames)

	zoom := "min(1+on*" + step + "," + maxS + ")"
	x := "iw/2-(iw/zoom/2)"
	y := "ih/2-(ih/zoom/2)"
	switch z.Type {
	case "zoom_out":
		zoom = "if(eq(on,0)," + maxS + ",max(" + maxS + "-on*" + step + ",1))"
	case "pan_left":
		zoom = maxS
		x = "(iw-iw/zoom)*(1-min(on/" + n + ",1))"
	case "pan_right":
		zoom = maxS
		x = "(iw-iw/zoom)*min(on/" + n + ",1)"
	}
	return graph.NewStage("zoompan",
		graph.Expr("z", zoom),
		graph.Expr("x", x),
		graph.Expr("y", y),
		graph.Int("d", 1),
		graph.Raw("s", fmt.Sprintf("%dx%d", width, height)),
		graph.Num("fps", fps, -1),
	)
}

func fadeStages(name string, f effects.ResolvedFade, effDur float64) []graph.Stage {
	var stages []graph.Stage
	if f.In > 0 {
		stages = append(stages, graph.NewStage(name, graph.Raw("t", "in"), graph.Int("st", 0), graph.Num("d", f.In, -1)))
	}
	if f.Out > 0 {
		st := math.Max(effDur-f.Out, 0)
		stages = append(stages, graph.NewStage(name, graph.Raw("t", "out"), graph.Num("st", st, 2), graph.Num("d", f.Out, -1)))
	}
	return stages
}

var textY = map[string]string{
	"top":    "h*0.08",
	"center": "(h-text_h)/2",
	"bottom": "h-text_h-h*0.08",
}

func textStage(t effects.ResolvedText, fonts FontResolver) graph.Stage {
	var args []graph.Arg
	if fonts != nil {
		if path := fonts.Resolve(t.Font); path != "" {
			args = append(args, graph.Str("fontfile", path))
		}
	}
	args = append(args,
		graph.Str("text", t.Text),
		graph.Raw("expansion", "none"),
		graph.Num("fontsize", t.FontSize, -1),
		graph.Raw("fontcolor", "0x"+t.Color[1:]),
		graph.Expr("x", "(w-text_w)/2"),
		graph.Expr("y", textY[t.Position]),
	)
	if t.Box {
		args = append(args, graph.Int("box", 1), graph.Raw("boxcolor", "black@0.5"), graph.Int("boxborderw", 12))
	}
	switch {
	case t.End > 0:
		args = append(args, graph.Expr("enable", "between(t,"+fmtNum(t.Start)+","+fmtNum(t.End)+")"))
	case t.Start > 0:
		args = append(args, graph.Expr("enable", "gte(t,"+fmtNum(t.Start)+")"))
	}
	return graph.NewStage("drawtext", args...)
}

func overlayStage(w effects.ResolvedWatermark) graph.Stage {
	m := fmt.Sprintf("%d", w.Margin)
	x, y := "main_w-overlay_w-"+m, "main_h-overlay_h-"+m
	switch w.Position {
	case "top_left":
		x, y = m, m
	case "top_right":
		y = m
	case "bottom_left":
		x = m
	case "center":
		x, y = "(main_w-overlay_w)/2", "(main_h-overlay_h)/2"
	}
	return graph.NewStage("overlay", graph.Expr("x", x), graph.Expr("y", y))
}
