// Package assets materializes remote media into a per-job workspace and
// tracks every file a job creates so it can be removed on every exit path.
package assets

import (
	"os"
	"path/filepath"
	"sync"
)

// Workspace is a job's slice of the shared working directory. Every file
// name embeds the job id, so concurrent jobs never collide.
type Workspace struct {
	root  string
	jobID string

	mu    sync.Mutex
	files map[string]struct{}
}

func NewWorkspace(root, jobID string) *Workspace {
	return &Workspace{root: root, jobID: jobID, files: map[string]struct{}{}}
}

func (w *Workspace) JobID() string { return w.jobID }

// Path returns a tracked path for name inside the workspace.
func (w *Workspace) Path(name string) string {
	p := filepath.Join(w.root, w.jobID+"_"+SanitizeFilename(name))
	w.Track(p)
	return p
}

// Track records a file for cleanup.
func (w *Workspace) Track(path string) {
	w.mu.Lock()
	w.files[path] = struct{}{}
	w.mu.Unlock()
}

// Release stops tracking path; the caller becomes responsible for it.
func (w *Workspace) Release(path string) {
	w.mu.Lock()
	delete(w.files, path)
	w.mu.Unlock()
}

// Files lists the tracked paths.
func (w *Workspace) Files() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.files))
	for p := range w.files {
		out = append(out, p)
	}
	return out
}

// Cleanup removes every tracked file. It is safe to call more than once.
func (w *Workspace) Cleanup() {
	w.mu.Lock()
	files := w.files
	w.files = map[string]struct{}{}
	w.mu.Unlock()

	for p := range files {
		_ = os.Remove(p)
	}
}

// ResetDir removes and recreates the working directory.
func ResetDir(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}
