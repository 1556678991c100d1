// Package effects models the flat-mode effect categories. Every numeric
// parameter is clamped to its documented range by Normalize; out-of-range
// input is never rejected.
package effects

import (
	"encoding/json"
	"math"
	"strings"
)

// Spec is the raw effects payload. Absent categories are nil.
type Spec struct {
	Color     *Color     `json:"color,omitempty"`
	Crop      *Crop      `json:"crop,omitempty"`
	Zoom      *Zoom      `json:"zoom,omitempty"`
	Speed     *Speed     `json:"speed,omitempty"`
	Fade      *Fade      `json:"fade,omitempty"`
	Watermark *Watermark `json:"watermark,omitempty"`
	Subtitles *Subtitles `json:"subtitles,omitempty"`
	Text      *Text      `json:"text,omitempty"`
	Audio     *Audio     `json:"audio,omitempty"`
	Output    *Output    `json:"output,omitempty"`
}

type Color struct {
	Preset     string   `json:"preset,omitempty"`
	Brightness *float64 `json:"brightness,omitempty"`
	Contrast   *float64 `json:"contrast,omitempty"`
	Saturation *float64 `json:"saturation,omitempty"`
	Gamma      *float64 `json:"gamma,omitempty"`
}

type Crop struct {
	AspectRatio string `json:"aspect_ratio,omitempty"`
	Position    string `json:"position,omitempty"`
	Width       *int   `json:"width,omitempty"`
	Height      *int   `json:"height,omitempty"`
	Letterbox   *bool  `json:"letterbox,omitempty"`
}

type Zoom struct {
	Type      string   `json:"type,omitempty"`
	Intensity *float64 `json:"intensity,omitempty"`
}

// Speed accepts either {"factor": 2} or a bare number.
type Speed struct {
	Factor *float64 `json:"factor,omitempty"`
}

func (s *Speed) UnmarshalJSON(b []byte) error {
	var f float64
	if err := json.Unmarshal(b, &f); err == nil {
		s.Factor = &f
		return nil
	}
	type alias Speed
	return json.Unmarshal(b, (*alias)(s))
}

type Fade struct {
	In  *float64 `json:"in,omitempty"`
	Out *float64 `json:"out,omitempty"`
}

type Watermark struct {
	URL      string   `json:"url,omitempty"`
	Position string   `json:"position,omitempty"`
	Opacity  *float64 `json:"opacity,omitempty"`
	Scale    *float64 `json:"scale,omitempty"`
	Margin   *int     `json:"margin,omitempty"`
}

type Subtitles struct {
	Font           string   `json:"font,omitempty"`
	FontSize       *float64 `json:"font_size,omitempty"`
	PrimaryColor   string   `json:"primary_color,omitempty"`
	OutlineColor   string   `json:"outline_color,omitempty"`
	HighlightColor string   `json:"highlight_color,omitempty"`
	Style          string   `json:"style,omitempty"`
	MarginV        *int     `json:"margin_v,omitempty"`
}

// Text accepts either a bare string or the full object.
type Text struct {
	Text     string   `json:"text,omitempty"`
	Font     string   `json:"font,omitempty"`
	FontSize *float64 `json:"font_size,omitempty"`
	Color    string   `json:"color,omitempty"`
	Position string   `json:"position,omitempty"`
	Start    *float64 `json:"start,omitempty"`
	End      *float64 `json:"end,omitempty"`
	Box      bool     `json:"box,omitempty"`
}

func (t *Text) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		t.Text = s
		return nil
	}
	type alias Text
	return json.Unmarshal(b, (*alias)(t))
}

type Audio struct {
	Volume    *float64 `json:"volume,omitempty"`
	Normalize bool     `json:"normalize,omitempty"`
	FadeIn    *float64 `json:"fade_in,omitempty"`
	FadeOut   *float64 `json:"fade_out,omitempty"`
}

type Output struct {
	Quality     string   `json:"quality,omitempty"`
	MaxDuration *float64 `json:"max_duration,omitempty"`
}

// Decode builds a Spec from a loosely typed map.
func Decode(raw map[string]any) (*Spec, error) {
	if len(raw) == 0 {
		return &Spec{}, nil
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var s Spec
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func floatOr(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

func oneOf(v string, allowed []string, def string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	for _, a := range allowed {
		if v == a {
			return v
		}
	}
	return def
}
