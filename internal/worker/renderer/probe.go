package renderer

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Metadata is the subset of ffprobe output the pipeline uses.
type Metadata struct {
	DurationSeconds float64 `json:"durationSeconds"`
	Width           int     `json:"width"`
	Height          int     `json:"height"`
	FPS             float64 `json:"fps"`
	SizeBytes       int64   `json:"sizeBytes"`
}

type probeOutput struct {
	Streams []struct {
		CodecType    string `json:"codec_type"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		RFrameRate   string `json:"r_frame_rate"`
		AvgFrameRate string `json:"avg_frame_rate"`
		Duration     string `json:"duration"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
		Size     string `json:"size"`
	} `json:"format"`
}

// Probe reads duration, geometry, frame rate and size from a media file.
func (e *Executor) Probe(ctx context.Context, path string) (Metadata, error) {
	args := []string{"-v", "error", "-print_format", "json", "-show_format", "-show_streams", path}
	res, err := e.runner.Run(ctx, e.ffprobePath, args...)
	if err != nil {
		return Metadata{}, &Error{
			Op:       "probe",
			Command:  e.ffprobePath,
			Args:     args,
			ExitCode: res.ExitCode,
			Stderr:   tail(res.Stderr, stderrTail),
			Err:      err,
		}
	}
	return parseProbe([]byte(res.Stdout))
}

func parseProbe(raw []byte) (Metadata, error) {
	var out probeOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return Metadata{}, fmt.Errorf("probe: decode output: %w", err)
	}

	md := Metadata{FPS: 30}
	md.DurationSeconds, _ = strconv.ParseFloat(strings.TrimSpace(out.Format.Duration), 64)
	md.SizeBytes, _ = strconv.ParseInt(strings.TrimSpace(out.Format.Size), 10, 64)

	for _, s := range out.Streams {
		if s.CodecType != "video" {
			continue
		}
		md.Width, md.Height = s.Width, s.Height
		rate := s.AvgFrameRate
		if ParseFPS(rate) <= 0 || rate == "0/0" {
			rate = s.RFrameRate
		}
		md.FPS = NormalizeFPS(rate)
		if md.DurationSeconds <= 0 {
			md.DurationSeconds, _ = strconv.ParseFloat(strings.TrimSpace(s.Duration), 64)
		}
		break
	}
	return md, nil
}

// ParseFPS parses "num/den" or a decimal. It returns 0 when unparseable.
func ParseFPS(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if num, den, ok := strings.Cut(s, "/"); ok {
		n, err1 := strconv.ParseFloat(num, 64)
		d, err2 := strconv.ParseFloat(den, 64)
		if err1 != nil || err2 != nil || d == 0 {
			return 0
		}
		return n / d
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// NormalizeFPS is ParseFPS with a default of 30 for non-positive results.
func NormalizeFPS(s string) float64 {
	if v := ParseFPS(s); v > 0 {
		return v
	}
	return 30
}
