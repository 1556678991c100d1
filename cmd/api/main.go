package main

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"montage/internal/adapters/storage/localfs"
	"montage/internal/assets"
	"montage/internal/config"
	"montage/internal/fonts"
	"montage/internal/httpapi"
	"montage/internal/httpapi/handlers"
	"montage/internal/jobs"
	"montage/internal/observability"
	"montage/internal/pkg/logger"
	"montage/internal/pkg/shutdown"
	"montage/internal/ratelimit"
	"montage/internal/repositories"
	"montage/internal/storage"
	"montage/internal/worker"
	"montage/internal/worker/notify"
	"montage/internal/worker/processor"
	"montage/internal/worker/renderer"
)

var version = "0.1.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.NewDefault().LogFatal("invalid configuration", err)
	}

	log := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
		ServiceName: "montage-api",
	})
	log.Info("starting montage API", "version", version)

	ctx := context.Background()
	shutdownMgr := shutdown.NewManager(log, 30*time.Second)

	// Leftovers from a previous run are never resumed.
	if err := assets.ResetDir(cfg.WorkDir); err != nil {
		log.LogFatal("failed to reset work dir", err, "dir", cfg.WorkDir)
	}

	metricsHandler, metricsShutdown, err := observability.InitMetrics()
	if err != nil {
		log.LogFatal("failed to initialize metrics", err)
	}
	shutdownMgr.Register("metrics", metricsShutdown)

	sp, err := storage.NewProvider(ctx, cfg.Storage, cfg.PublicBaseURL)
	if err != nil {
		log.LogFatal("failed to initialize storage provider", err)
	}
	log.Info("storage provider initialized", "provider", sp.Provider())

	hd := handlers.Deps{
		SP:         sp,
		FFmpegPath: cfg.FFmpegPath,
		WorkDir:    cfg.WorkDir,
		Version:    version,
		Log:        log,
	}

	// Templates are optional; without a database a templateId is rejected.
	var templateSource processor.TemplateSource
	if cfg.DatabaseURL != "" {
		log.Info("connecting to PostgreSQL")
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.LogFatal("failed to connect to PostgreSQL", err)
		}
		shutdownMgr.RegisterSimple("postgres", pool.Close)

		repo := repositories.NewTemplateRepository(pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			log.LogFatal("failed to prepare templates schema", err)
		}
		log.Info("PostgreSQL connected")

		templateSource = repo
		hd.Templates = repo
		hd.DB = repo
	}

	// Redis only backs the shared rate limit window.
	var window ratelimit.WindowStore
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		shutdownMgr.Register("redis", func(ctx context.Context) error {
			return rdb.Close()
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn("redis unreachable, rate limiting falls back to local buckets", "error", err.Error())
		} else {
			log.Info("Redis connected")
		}
		window = rdb
		hd.Redis = rdb
	}

	var proc *processor.Processor
	ctrl := jobs.NewController(jobs.Options{
		MaxActive:  cfg.MaxConcurrent,
		MaxTracked: cfg.MaxTrackedJobs,
		TTL:        cfg.JobTTL,
		OnEvict: func(j jobs.Job) {
			proc.RemoveOutput(j)
		},
		Log: log,
	})

	metrics, err := observability.NewMetrics(ctrl.Active)
	if err != nil {
		log.LogFatal("failed to register metrics", err)
	}

	proc = processor.New(processor.Deps{
		Jobs:     ctrl,
		Renderer: renderer.NewExecutor(cfg.FFmpegPath, cfg.FFprobePath),
		Resolver: assets.NewResolver(assets.Options{
			Storage: sp,
			Timeout: cfg.DownloadTimeout,
			Log:     log,
		}),
		SP: sp,
		Notifier: notify.New(notify.Options{
			Timeout: cfg.CallbackTimeout,
			Unit:    cfg.CallbackRetryUnit,
			Log:     log,
		}),
		Fonts:         fonts.NewResolver(cfg.FontsDir),
		Metrics:       metrics,
		WorkDir:       cfg.WorkDir,
		FontsDir:      cfg.FontsDir,
		MinFreeBytes:  cfg.MinFreeBytes,
		PublicBaseURL: cfg.PublicBaseURL,
		Log:           log,
	})

	dispatcher := worker.NewDispatcher(worker.Deps{
		Jobs:      ctrl,
		Processor: proc,
		Metrics:   metrics,
		Base:      ctx,
		Log:       log,
	})
	shutdownMgr.Register("jobs", func(ctx context.Context) error {
		active, _ := ctrl.Active()
		log.Info("waiting for running jobs", "active", active)
		return dispatcher.Drain(ctx)
	})

	hd.Jobs = ctrl
	hd.Submitter = dispatcher
	hd.Parser = processor.NewJobParser(templateSource)

	limiter := ratelimit.New(ratelimit.Options{
		RPM:   cfg.RateLimitRPM,
		Redis: window,
		Log:   log,
	})

	routerDeps := httpapi.Deps{
		Handlers:    hd,
		CORSOrigins: cfg.CORSOrigins,
		RateLimit:   limiter.Middleware,
		Metrics:     metricsHandler,
		Log:         log,
	}
	if fs, ok := sp.(*localfs.LocalFS); ok {
		routerDeps.FilesRoot = fs.Root()
	}

	server := &http.Server{
		Addr:         "0.0.0.0:" + cfg.HTTPPort,
		Handler:      httpapi.NewRouter(routerDeps),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	// Registered last so it stops first.
	shutdownMgr.Register("http-server", func(ctx context.Context) error {
		log.Info("shutting down HTTP server")
		return server.Shutdown(ctx)
	})

	go func() {
		log.Info("HTTP server listening",
			"addr", server.Addr,
			"max_concurrent", cfg.MaxConcurrent,
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.LogFatal("HTTP server failed", err)
		}
	}()

	shutdownMgr.Wait()
}
