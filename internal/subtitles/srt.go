// Package subtitles parses SRT cue text and compiles cue sequences into
// styled ASS documents for the encoder's subtitles filter.
package subtitles

import (
	"regexp"
	"strconv"
	"strings"
)

// Cue is a timestamped span of subtitle text, in seconds.
type Cue struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

var srtTiming = regexp.MustCompile(`^\s*(\d{1,2}):(\d{2}):(\d{2})[,.](\d{1,3})\s*-->\s*(\d{1,2}):(\d{2}):(\d{2})[,.](\d{1,3})`)

// ParseSRT parses blank-line separated SRT blocks. The index line is
// optional. Blocks with an unparseable timing line, no text, or an end time
// not after the start are skipped.
func ParseSRT(content string) []Cue {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.TrimPrefix(content, "\ufeff")

	var cues []Cue
	for _, block := range splitBlocks(content) {
		if cue, ok := parseBlock(block); ok {
			cues = append(cues, cue)
		}
	}
	return cues
}

func splitBlocks(content string) [][]string {
	var (
		blocks [][]string
		cur    []string
	)
	for _, line := range strings.Split(content, "\n") {
		if strings.TrimSpace(line) == "" {
			if len(cur) > 0 {
				blocks = append(blocks, cur)
				cur = nil
			}
			continue
		}
		cur = append(cur, strings.TrimRight(line, " \t"))
	}
	if len(cur) > 0 {
		blocks = append(blocks, cur)
	}
	return blocks
}

func parseBlock(lines []string) (Cue, bool) {
	i := 0
	if len(lines) > 1 && isIndex(lines[0]) {
		i = 1
	}
	m := srtTiming.FindStringSubmatch(lines[i])
	if m == nil {
		return Cue{}, false
	}
	start := timestamp(m[1], m[2], m[3], m[4])
	end := timestamp(m[5], m[6], m[7], m[8])
	text := strings.TrimSpace(strings.Join(lines[i+1:], "\n"))
	if text == "" || end <= start {
		return Cue{}, false
	}
	return Cue{Start: start, End: end, Text: text}, true
}

func isIndex(line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	_, err := strconv.Atoi(line)
	return err == nil
}

func timestamp(h, m, s, ms string) float64 {
	hh, _ := strconv.Atoi(h)
	mm, _ := strconv.Atoi(m)
	ss, _ := strconv.Atoi(s)
	// ",5" means 500ms, not 5ms.
	for len(ms) < 3 {
		ms += "0"
	}
	frac, _ := strconv.Atoi(ms)
	return float64(hh*3600+mm*60+ss) + float64(frac)/1000
}
