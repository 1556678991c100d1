// Package handlers implements the HTTP endpoints of the render service.
// Handlers return errors; middleware.WrapHandler renders them.
package handlers

import (
	"context"

	"github.com/redis/go-redis/v9"

	"montage/internal/jobs"
	"montage/internal/models"
	"montage/internal/pkg/logger"
	"montage/internal/ports"
	"montage/internal/worker/processor"
)

// JobReader is the read side of the job registry.
type JobReader interface {
	Get(id string) (jobs.Job, bool)
	Active() (int, int)
}

// Submitter admits a parsed job and starts it.
type Submitter interface {
	Submit(ctx context.Context, job *processor.ParsedJob) (jobs.Job, error)
}

// SubmissionParser validates raw submissions.
type SubmissionParser interface {
	Parse(ctx context.Context, s *processor.Submission) (*processor.ParsedJob, error)
}

// TemplateStore persists effect templates.
type TemplateStore interface {
	Create(ctx context.Context, t *models.Template) error
	List(ctx context.Context) ([]models.Template, error)
	Get(ctx context.Context, id string) (*models.Template, error)
	Update(ctx context.Context, id string, p models.TemplatePatch) (*models.Template, error)
	Delete(ctx context.Context, id string) error
}

// Pinger checks a SQL backend.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RedisPinger is satisfied by *redis.Client.
type RedisPinger interface {
	Ping(ctx context.Context) *redis.StatusCmd
}

// Deps are the handler collaborators. Templates, DB and Redis are optional;
// leave them nil (not typed-nil) when the backend is not configured.
type Deps struct {
	Jobs       JobReader
	Submitter  Submitter
	Parser     SubmissionParser
	Templates  TemplateStore
	DB         Pinger
	Redis      RedisPinger
	SP         ports.StorageProvider
	FFmpegPath string
	WorkDir    string
	Version    string
	Log        *logger.Logger
}

type Handler struct {
	jobs       JobReader
	submitter  Submitter
	parser     SubmissionParser
	templates  TemplateStore
	db         Pinger
	rdb        RedisPinger
	sp         ports.StorageProvider
	ffmpegPath string
	workDir    string
	version    string
	log        *logger.Logger
}

func New(d Deps) *Handler {
	log := d.Log
	if log == nil {
		log = logger.Discard()
	}
	version := d.Version
	if version == "" {
		version = "dev"
	}
	return &Handler{
		jobs:       d.Jobs,
		submitter:  d.Submitter,
		parser:     d.Parser,
		templates:  d.Templates,
		db:         d.DB,
		rdb:        d.Redis,
		sp:         d.SP,
		ffmpegPath: d.FFmpegPath,
		workDir:    d.WorkDir,
		version:    version,
		log:        log.WithComponent("http"),
	}
}
