// Package renderer runs the external encoder and probe binaries.
package renderer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"montage/internal/compiler"
)

const stderrTail = 4000

// Client renders compiled plans and probes media files.
type Client interface {
	Render(ctx context.Context, plan *compiler.Plan, outputPath string) error
	Probe(ctx context.Context, path string) (Metadata, error)
}

// Error is an encoder or probe failure with its command context.
type Error struct {
	Op       string
	Command  string
	Args     []string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := fmt.Sprintf("%s: %s exited with code %d", e.Op, e.Command, e.ExitCode)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

type commandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// commandRunner abstracts process execution for tests.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (commandResult, error)
}

type execRunner struct{}

func (r *execRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := commandResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		res.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		}
		return res, err
	}
	return res, nil
}

// Executor invokes ffmpeg and ffprobe.
type Executor struct {
	ffmpegPath  string
	ffprobePath string
	runner      commandRunner
}

func NewExecutor(ffmpegPath, ffprobePath string) *Executor {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Executor{ffmpegPath: ffmpegPath, ffprobePath: ffprobePath, runner: &execRunner{}}
}

// NewExecutorForTests builds an executor with an injected runner.
func NewExecutorForTests(ffmpegPath, ffprobePath string, runner commandRunner) *Executor {
	e := NewExecutor(ffmpegPath, ffprobePath)
	e.runner = runner
	return e
}

// FFmpegPath is the encoder binary used by Render.
func (e *Executor) FFmpegPath() string { return e.ffmpegPath }

// Render runs the encoder once. Failures are not retried.
func (e *Executor) Render(ctx context.Context, plan *compiler.Plan, outputPath string) error {
	if plan == nil {
		return fmt.Errorf("render: nil plan")
	}
	args := BuildArgs(plan, outputPath)
	res, err := e.runner.Run(ctx, e.ffmpegPath, args...)
	if err != nil {
		return &Error{
			Op:       "render",
			Command:  e.ffmpegPath,
			Args:     args,
			ExitCode: res.ExitCode,
			Stderr:   tail(res.Stderr, stderrTail),
			Err:      err,
		}
	}
	return nil
}

// BuildArgs assembles the encoder command line for a plan.
func BuildArgs(plan *compiler.Plan, outputPath string) []string {
	args := []string{"-hide_banner", "-nostdin", "-y"}
	for _, in := range plan.Graph.Inputs {
		args = append(args, in.Options...)
		args = append(args, "-i", in.Path)
	}
	if fc := plan.Graph.FilterComplex(); fc != "" {
		args = append(args, "-filter_complex", fc)
	}
	for _, m := range plan.Graph.Maps {
		args = append(args, "-map", m)
	}

	q := plan.Quality
	if q.Preset == "" {
		q.Preset, q.CRF = "medium", 23
	}
	args = append(args,
		"-c:v", "libx264",
		"-preset", q.Preset,
		"-crf", strconv.Itoa(q.CRF),
		"-pix_fmt", "yuv420p",
	)
	if len(plan.Graph.Maps) > 1 {
		args = append(args, "-c:a", "aac", "-b:a", "192k")
	} else {
		args = append(args, "-an")
	}
	args = append(args, "-movflags", "+faststart")
	if plan.MaxDuration > 0 {
		args = append(args, "-t", strconv.FormatFloat(plan.MaxDuration, 'f', -1, 64))
	}
	return append(args, outputPath)
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
