package processor

import (
	"errors"
	"io/fs"
	"os"

	"montage/internal/assets"
	"montage/internal/jobs"
	"montage/internal/pkg/logger"
)

type Cleanup struct {
	log *logger.Logger
}

func NewCleanup(log *logger.Logger) *Cleanup {
	return &Cleanup{log: log}
}

// CleanupJob elimina todos los archivos temporales registrados por el job.
func (c *Cleanup) CleanupJob(ws *assets.Workspace) {
	n := len(ws.Files())
	ws.Cleanup()
	c.log.Debug("workspace cleaned", "job_id", ws.JobID(), "files", n)
}

// RemoveOutput deletes the locally served render of an evicted job.
func (c *Cleanup) RemoveOutput(j jobs.Job) {
	if j.OutputPath == "" {
		return
	}
	err := os.Remove(j.OutputPath)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		c.log.Warn("failed to remove served output", "job_id", j.ID, "path", j.OutputPath, "error", err.Error())
	}
}
