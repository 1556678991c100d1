package handlers

import (
	"context"
	"net/http"
	"os/exec"
	"time"

	"montage/internal/assets"
	"montage/internal/httpkit"
	"montage/internal/ports"
)

const checkTimeout = 5 * time.Second

// Health reports liveness. With ?deep=true it also probes each configured
// backend and reports "degraded" when one of them fails.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	active, limit := h.jobs.Active()
	health := map[string]any{
		"status":  "ok",
		"service": "montage",
		"version": h.version,
		"jobs": map[string]any{
			"active":   active,
			"capacity": limit,
		},
	}

	if r.URL.Query().Get("deep") == "true" {
		checks := h.deepHealthCheck(ctx)
		health["checks"] = checks

		for _, check := range checks {
			if check["status"] == "error" {
				health["status"] = "degraded"
				h.log.FromContext(ctx).Warn("health check degraded", "checks", checks)
				break
			}
		}
	}

	httpkit.WriteJSON(w, http.StatusOK, health)
}

func (h *Handler) deepHealthCheck(ctx context.Context) map[string]map[string]any {
	return map[string]map[string]any{
		"postgres": h.checkPostgres(ctx),
		"redis":    h.checkRedis(ctx),
		"storage":  h.checkStorage(ctx),
		"encoder":  h.checkEncoder(),
		"disk":     h.checkDisk(),
	}
}

func (h *Handler) checkPostgres(ctx context.Context) map[string]any {
	if h.db == nil {
		return map[string]any{"status": "disabled"}
	}
	return timed(func() error {
		checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
		defer cancel()
		return h.db.Ping(checkCtx)
	})
}

func (h *Handler) checkRedis(ctx context.Context) map[string]any {
	if h.rdb == nil {
		return map[string]any{"status": "disabled"}
	}
	return timed(func() error {
		checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
		defer cancel()
		return h.rdb.Ping(checkCtx).Err()
	})
}

func (h *Handler) checkStorage(ctx context.Context) map[string]any {
	hc, ok := h.sp.(ports.HealthChecker)
	if !ok {
		return map[string]any{"status": "ok", "provider": h.sp.Provider()}
	}
	result := timed(func() error {
		checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
		defer cancel()
		return hc.Ping(checkCtx)
	})
	result["provider"] = h.sp.Provider()
	return result
}

func (h *Handler) checkEncoder() map[string]any {
	path, err := exec.LookPath(h.ffmpegPath)
	if err != nil {
		return map[string]any{"status": "error", "error": err.Error()}
	}
	return map[string]any{"status": "ok", "path": path}
}

func (h *Handler) checkDisk() map[string]any {
	free, err := assets.FreeBytes(h.workDir)
	if err != nil {
		return map[string]any{"status": "error", "error": err.Error()}
	}
	return map[string]any{"status": "ok", "free_bytes": free}
}

func timed(check func() error) map[string]any {
	start := time.Now()
	result := map[string]any{"status": "ok"}
	if err := check(); err != nil {
		result["status"] = "error"
		result["error"] = err.Error()
	}
	result["latency_ms"] = time.Since(start).Milliseconds()
	return result
}
