package subtitles

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"montage/internal/effects"
)

// Options controls document compilation.
type Options struct {
	Style  effects.ResolvedSubtitles
	Speed  float64
	Width  int
	Height int
}

// MaxCharsPerLine is the wrap width for a frame width and font size.
func MaxCharsPerLine(width int, fontSize float64) int {
	if fontSize <= 0 {
		return 50
	}
	n := int(float64(width) / (fontSize * 0.6))
	if n > 50 {
		n = 50
	}
	if n < 1 {
		n = 1
	}
	return n
}

// Wrap greedily fills lines up to max characters. Words are never split,
// so a single long word gets a line of its own.
func Wrap(text string, max int) []string {
	var (
		lines []string
		cur   string
	)
	for _, w := range strings.Fields(text) {
		switch {
		case cur == "":
			cur = w
		case len([]rune(cur))+1+len([]rune(w)) <= max:
			cur += " " + w
		default:
			lines = append(lines, cur)
			cur = w
		}
	}
	if cur != "" {
		lines = append(lines, cur)
	}
	return lines
}

// ASSColor converts #RRGGBB into &H00BBGGRR.
func ASSColor(hex string) string {
	hex = strings.TrimPrefix(strings.TrimSpace(hex), "#")
	if len(hex) != 6 {
		return "&H00FFFFFF"
	}
	hex = strings.ToUpper(hex)
	return "&H00" + hex[4:6] + hex[2:4] + hex[0:2]
}

// ASSTime formats seconds as H:MM:SS.cc.
func ASSTime(sec float64) string {
	if sec < 0 {
		sec = 0
	}
	cs := int64(math.Round(sec * 100))
	h := cs / 360000
	m := (cs / 6000) % 60
	s := (cs / 100) % 60
	return fmt.Sprintf("%d:%02d:%02d.%02d", h, m, s, cs%100)
}

// Compile renders cues into an ASS document. It returns false when there is
// nothing to render.
func Compile(cues []Cue, opts Options) (string, bool) {
	if len(cues) == 0 {
		return "", false
	}
	speed := opts.Speed
	if speed <= 0 {
		speed = 1
	}
	width, height := opts.Width, opts.Height
	if width <= 0 {
		width = 1920
	}
	if height <= 0 {
		height = 1080
	}
	st := opts.Style
	maxChars := MaxCharsPerLine(width, st.FontSize)

	var b strings.Builder
	b.WriteString("[Script Info]\nScriptType: v4.00+\n")
	fmt.Fprintf(&b, "PlayResX: %d\nPlayResY: %d\n", width, height)
	b.WriteString("WrapStyle: 2\nScaledBorderAndShadow: yes\n\n")

	b.WriteString("[V4+ Styles]\n")
	b.WriteString("Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding\n")
	fmt.Fprintf(&b, "Style: Default,%s,%s,%s,%s,%s,&H80000000,1,0,0,0,100,100,0,0,3,2,0,2,40,40,%d,1\n\n",
		st.Font,
		strconv.FormatFloat(st.FontSize, 'f', -1, 64),
		ASSColor(st.PrimaryColor),
		ASSColor(st.HighlightColor),
		ASSColor(st.OutlineColor),
		st.MarginV,
	)

	b.WriteString("[Events]\nFormat: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text\n")
	markup := animation(st, width, height)
	for _, c := range cues {
		lines := Wrap(escapeText(c.Text), maxChars)
		if len(lines) == 0 {
			continue
		}
		fmt.Fprintf(&b, "Dialogue: 0,%s,%s,Default,,0,0,0,,%s%s\n",
			ASSTime(c.Start/speed),
			ASSTime(c.End/speed),
			markup,
			strings.Join(lines, `\N`),
		)
	}
	return b.String(), true
}

func animation(st effects.ResolvedSubtitles, width, height int) string {
	switch st.Style {
	case "pop":
		return `{\fscx50\fscy50\t(0,150,\fscx100\fscy100)\fad(100,0)}`
	case "slide_up":
		x := width / 2
		from := height + int(st.FontSize)
		to := height - st.MarginV
		return fmt.Sprintf(`{\an2\move(%d,%d,%d,%d,0,300)}`, x, from, x, to)
	case "karaoke":
		return fmt.Sprintf(`{\1c%s&\t(300,300,\1c%s&)}`, ASSColor(st.PrimaryColor), ASSColor(st.HighlightColor))
	case "fade":
		return `{\fad(200,200)}`
	default:
		return ""
	}
}

func escapeText(s string) string {
	return strings.NewReplacer("{", `\{`, "}", `\}`).Replace(s)
}

var dialogueTiming = regexp.MustCompile(`(?m)^Dialogue: \d+,(\d+):(\d{2}):(\d{2})\.(\d{2}),(\d+):(\d{2}):(\d{2})\.(\d{2}),`)

// DialogueTimes extracts the start/end pairs of every Dialogue line.
func DialogueTimes(doc string) [][2]float64 {
	var out [][2]float64
	for _, m := range dialogueTiming.FindAllStringSubmatch(doc, -1) {
		out = append(out, [2]float64{
			assSeconds(m[1], m[2], m[3], m[4]),
			assSeconds(m[5], m[6], m[7], m[8]),
		})
	}
	return out
}

func assSeconds(h, m, s, cs string) float64 {
	hh, _ := strconv.Atoi(h)
	mm, _ := strconv.Atoi(m)
	ss, _ := strconv.Atoi(s)
	cc, _ := strconv.Atoi(cs)
	return float64(hh*3600+mm*60+ss) + float64(cc)/100
}
