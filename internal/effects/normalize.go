package effects

import "strings"

// Quality is a resolved encoder preset.
type Quality struct {
	Name   string
	Preset string
	CRF    int
}

var qualities = map[string]Quality{
	"low":    {Name: "low", Preset: "veryfast", CRF: 28},
	"medium": {Name: "medium", Preset: "medium", CRF: 23},
	"high":   {Name: "high", Preset: "slow", CRF: 20},
	"ultra":  {Name: "ultra", Preset: "veryslow", CRF: 17},
}

// QualityFor returns the named tier, falling back to medium.
func QualityFor(name string) Quality {
	if q, ok := qualities[strings.ToLower(strings.TrimSpace(name))]; ok {
		return q
	}
	return qualities["medium"]
}

// ColorParams are eq filter inputs.
type ColorParams struct {
	Brightness, Contrast, Saturation, Gamma float64
}

// Identity reports whether applying the params would be a no-op.
func (c ColorParams) Identity() bool {
	return c.Brightness == 0 && c.Contrast == 1 && c.Saturation == 1 && c.Gamma == 1
}

var colorPresets = map[string]ColorParams{
	"none":      {0, 1, 1, 1},
	"cinematic": {-0.03, 1.10, 0.85, 0.95},
	"vintage":   {0.02, 0.95, 0.70, 1.05},
	"vibrant":   {0.02, 1.15, 1.40, 1.0},
	"warm":      {0.03, 1.05, 1.15, 0.97},
	"cool":      {-0.02, 1.05, 0.90, 1.03},
	"bw":        {0, 1.10, 0, 1.0},
}

type ResolvedCrop struct {
	AspectW, AspectH int
	Position         string
	Width, Height    int
	Letterbox        bool
}

type ResolvedZoom struct {
	Type      string
	Intensity float64
}

type ResolvedFade struct {
	In, Out float64
}

type ResolvedWatermark struct {
	URL      string
	Position string
	Opacity  float64
	Scale    float64
	Margin   int
}

type ResolvedSubtitles struct {
	Font           string
	FontSize       float64
	PrimaryColor   string
	OutlineColor   string
	HighlightColor string
	Style          string
	MarginV        int
}

type ResolvedText struct {
	Text     string
	Font     string
	FontSize float64
	Color    string
	Position string
	Start    float64
	End      float64 // zero means until the end
	Box      bool
}

type ResolvedAudio struct {
	Volume          float64
	Normalize       bool
	FadeIn, FadeOut float64
}

// Resolved is a Spec with every default applied and every number clamped.
// Pointer fields are nil when the category is absent.
type Resolved struct {
	Speed       float64
	Crop        *ResolvedCrop
	Zoom        *ResolvedZoom
	Color       *ColorParams
	Fade        *ResolvedFade
	Watermark   *ResolvedWatermark
	Subtitles   ResolvedSubtitles
	Text        *ResolvedText
	Audio       *ResolvedAudio
	Quality     Quality
	MaxDuration float64 // zero means uncapped
}

// DefaultSubtitles is the subtitle styling used when none is supplied.
func DefaultSubtitles() ResolvedSubtitles {
	return ResolvedSubtitles{
		Font:           "Inter",
		FontSize:       42,
		PrimaryColor:   "#FFFFFF",
		OutlineColor:   "#000000",
		HighlightColor: "#FFFF00",
		Style:          "none",
		MarginV:        60,
	}
}

// Normalize resolves s. A nil Spec resolves to the identity configuration.
func Normalize(s *Spec) Resolved {
	r := Resolved{Speed: 1, Subtitles: DefaultSubtitles(), Quality: QualityFor("")}
	if s == nil {
		return r
	}

	if s.Speed != nil {
		r.Speed = clamp(floatOr(s.Speed.Factor, 1), 0.25, 4.0)
	}

	if c := s.Crop; c != nil {
		rc := &ResolvedCrop{
			Position:  oneOf(c.Position, []string{"center", "top", "bottom", "left", "right"}, "center"),
			Letterbox: c.Letterbox == nil || *c.Letterbox,
		}
		rc.AspectW, rc.AspectH = parseAspect(c.AspectRatio)
		if c.Width != nil {
			rc.Width = clampInt(*c.Width, 16, 7680)
		}
		if c.Height != nil {
			rc.Height = clampInt(*c.Height, 16, 4320)
		}
		if rc.AspectW > 0 || (rc.Width > 0 && rc.Height > 0) {
			r.Crop = rc
		}
	}

	if z := s.Zoom; z != nil {
		r.Zoom = &ResolvedZoom{
			Type:      oneOf(z.Type, []string{"zoom_in", "zoom_out", "pan_left", "pan_right"}, "zoom_in"),
			Intensity: clamp(floatOr(z.Intensity, 0.2), 0.05, 0.5),
		}
	}

	if c := s.Color; c != nil {
		base, ok := colorPresets[strings.ToLower(strings.TrimSpace(c.Preset))]
		if !ok {
			base = colorPresets["none"]
		}
		p := ColorParams{
			Brightness: clamp(floatOr(c.Brightness, base.Brightness), -1, 1),
			Contrast:   clamp(floatOr(c.Contrast, base.Contrast), 0, 3),
			Saturation: clamp(floatOr(c.Saturation, base.Saturation), 0, 3),
			Gamma:      clamp(floatOr(c.Gamma, base.Gamma), 0.1, 10),
		}
		if !p.Identity() {
			r.Color = &p
		}
	}

	if f := s.Fade; f != nil {
		rf := ResolvedFade{In: clamp(floatOr(f.In, 0), 0, 10), Out: clamp(floatOr(f.Out, 0), 0, 10)}
		if rf.In > 0 || rf.Out > 0 {
			r.Fade = &rf
		}
	}

	if w := s.Watermark; w != nil && strings.TrimSpace(w.URL) != "" {
		margin := 20
		if w.Margin != nil {
			margin = clampInt(*w.Margin, 0, 500)
		}
		r.Watermark = &ResolvedWatermark{
			URL:      strings.TrimSpace(w.URL),
			Position: oneOf(w.Position, []string{"top_left", "top_right", "bottom_left", "bottom_right", "center"}, "bottom_right"),
			Opacity:  clamp(floatOr(w.Opacity, 0.8), 0, 1),
			Scale:    clamp(floatOr(w.Scale, 0.15), 0.05, 0.5),
			Margin:   margin,
		}
	}

	if st := s.Subtitles; st != nil {
		r.Subtitles = resolveSubtitles(st)
	}

	if t := s.Text; t != nil && strings.TrimSpace(t.Text) != "" {
		rt := &ResolvedText{
			Text:     t.Text,
			Font:     stringOr(t.Font, "Inter"),
			FontSize: clamp(floatOr(t.FontSize, 48), 8, 200),
			Color:    hexOr(t.Color, "#FFFFFF"),
			Position: oneOf(t.Position, []string{"top", "center", "bottom"}, "bottom"),
			Start:    clamp(floatOr(t.Start, 0), 0, 1e6),
			Box:      t.Box,
		}
		if t.End != nil && *t.End > rt.Start {
			rt.End = *t.End
		}
		r.Text = rt
	}

	if a := s.Audio; a != nil {
		r.Audio = &ResolvedAudio{
			Volume:    clamp(floatOr(a.Volume, 1), 0, 4),
			Normalize: a.Normalize,
			FadeIn:    clamp(floatOr(a.FadeIn, 0), 0, 10),
			FadeOut:   clamp(floatOr(a.FadeOut, 0), 0, 10),
		}
	}

	if o := s.Output; o != nil {
		r.Quality = QualityFor(o.Quality)
		if o.MaxDuration != nil {
			r.MaxDuration = clamp(*o.MaxDuration, 1, 7200)
		}
	}
	return r
}

// WithStyle returns s with its animation style replaced by tag. Unknown
// tags leave the style unchanged.
func (s ResolvedSubtitles) WithStyle(tag string) ResolvedSubtitles {
	s.Style = oneOf(tag, []string{"pop", "slide_up", "karaoke", "fade", "none"}, s.Style)
	return s
}

func resolveSubtitles(st *Subtitles) ResolvedSubtitles {
	d := DefaultSubtitles()
	marginV := d.MarginV
	if st.MarginV != nil {
		marginV = clampInt(*st.MarginV, 0, 500)
	}
	return ResolvedSubtitles{
		Font:           stringOr(st.Font, d.Font),
		FontSize:       clamp(floatOr(st.FontSize, d.FontSize), 12, 120),
		PrimaryColor:   hexOr(st.PrimaryColor, d.PrimaryColor),
		OutlineColor:   hexOr(st.OutlineColor, d.OutlineColor),
		HighlightColor: hexOr(st.HighlightColor, d.HighlightColor),
		Style:          oneOf(st.Style, []string{"pop", "slide_up", "karaoke", "fade", "none"}, "none"),
		MarginV:        marginV,
	}
}

// ResolveSubtitles applies defaults to a subtitle style outside a full Spec.
func ResolveSubtitles(st *Subtitles) ResolvedSubtitles {
	if st == nil {
		return DefaultSubtitles()
	}
	return resolveSubtitles(st)
}

func parseAspect(s string) (int, int) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, 0
	}
	sep := strings.IndexAny(s, ":/x")
	if sep <= 0 {
		return 0, 0
	}
	w, h := atoiPositive(s[:sep]), atoiPositive(s[sep+1:])
	if w == 0 || h == 0 {
		return 0, 0
	}
	return w, h
}

func atoiPositive(s string) int {
	n := 0
	s = strings.TrimSpace(s)
	if s == "" || len(s) > 5 {
		return 0
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0
		}
		n = n*10 + int(c-'0')
	}
	return n
}

func stringOr(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return strings.TrimSpace(s)
}

// hexOr returns s when it is a #RRGGBB color, def otherwise.
func hexOr(s, def string) string {
	s = strings.TrimSpace(s)
	if !IsHexColor(s) {
		return def
	}
	return strings.ToUpper(s)
}

// IsHexColor reports whether s looks like #RRGGBB.
func IsHexColor(s string) bool {
	if len(s) != 7 || s[0] != '#' {
		return false
	}
	for _, c := range s[1:] {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
