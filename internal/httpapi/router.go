// Package httpapi assembles the HTTP surface of the render service.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"montage/internal/adapters/storage/localfs"
	"montage/internal/httpapi/handlers"
	"montage/internal/httpkit"
	"montage/internal/pkg/logger"
	"montage/internal/pkg/middleware"
	"montage/internal/worker/processor"
)

type Deps struct {
	Handlers    handlers.Deps
	CORSOrigins []string
	// RateLimit guards job submission. Nil disables it.
	RateLimit func(http.Handler) http.Handler
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
	// FilesRoot is served at /files/ when set (localfs storage only).
	FilesRoot string
	Log       *logger.Logger
}

func NewRouter(d Deps) http.Handler {
	log := d.Log
	if log == nil {
		log = logger.Discard()
	}
	if d.Handlers.Log == nil {
		d.Handlers.Log = log
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(log, "/health", "/metrics", "/jobs/"))
	r.Use(middleware.Recovery(log))
	r.Use(httpkit.CORS(httpkit.CORSOptions{
		AllowedOrigins: d.CORSOrigins,
		ExposedHeaders: []string{"X-Request-ID", "X-RateLimit-Remaining", "Retry-After"},
	}))

	h := handlers.New(d.Handlers)
	wrap := func(fn middleware.ErrorHandlerFunc) http.HandlerFunc {
		return middleware.WrapHandler(log, fn)
	}

	// ---- HEALTH ----
	r.Get("/health", h.Health)
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}

	// ---- JOBS ----
	r.Group(func(r chi.Router) {
		if d.RateLimit != nil {
			r.Use(d.RateLimit)
		}
		r.Post("/jobs", wrap(h.PostJob))
	})
	r.Get("/jobs/{jobId}", wrap(h.GetJob))
	r.Get(processor.DownloadsPrefix+"{jobId}", wrap(h.Download))

	// ---- TEMPLATES ----
	r.Post("/templates", wrap(h.PostTemplate))
	r.Get("/templates", wrap(h.ListTemplates))
	r.Get("/templates/{templateId}", wrap(h.GetTemplate))
	r.Patch("/templates/{templateId}", wrap(h.PatchTemplate))
	r.Delete("/templates/{templateId}", wrap(h.DeleteTemplate))

	// ---- FILES ----
	if d.FilesRoot != "" {
		r.Handle(localfs.FilesPrefix+"*", http.StripPrefix(localfs.FilesPrefix, handlers.Files(d.FilesRoot)))
	}

	return r
}
