package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/handler"
	"github.com/noah-isme/sma-timetable-api/internal/repository"
	"github.com/noah-isme/sma-timetable-api/internal/scheduler"
	"github.com/noah-isme/sma-timetable-api/internal/service"
	"github.com/noah-isme/sma-timetable-api/internal/timetable"
	"github.com/noah-isme/sma-timetable-api/pkg/cache"
	"github.com/noah-isme/sma-timetable-api/pkg/config"
	"github.com/noah-isme/sma-timetable-api/pkg/database"
	"github.com/noah-isme/sma-timetable-api/pkg/jobs"
	"github.com/noah-isme/sma-timetable-api/pkg/logger"
	"github.com/noah-isme/sma-timetable-api/pkg/storage"
)

// @title SMA Timetable API
// @version 1.0.0
// @description Genetic-algorithm timetable generation for school cohorts, faculty and classrooms.
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	checks := map[string]handler.ReadinessCheck{}

	var runs service.TimetableRunStore
	var db *sqlx.DB
	if cfg.Database.Enabled {
		db, err = database.NewPostgres(ctx, cfg.Database)
		if err != nil {
			logr.Sugar().Fatalw("failed to connect database", "error", err)
		}
		defer db.Close() //nolint:errcheck
		pgRuns := repository.NewTimetableRunRepository(db)
		if err := pgRuns.Migrate(ctx); err != nil {
			logr.Sugar().Fatalw("failed to migrate database", "error", err)
		}
		runs = pgRuns
		checks["database"] = db.PingContext
	} else {
		logr.Warn("database disabled; timetable runs are kept in memory")
		runs = repository.NewMemoryRunRepository()
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable; result cache disabled", "error", err)
		}
	}
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck
	if redisClient != nil {
		checks["redis"] = cacheRepo.Ping
	}

	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Redis.CacheTTL, logr, redisClient != nil)

	var worker *service.GenerationWorker
	queue := jobs.NewQueue("timetable-generation", func(jobCtx context.Context, job jobs.Job) error {
		return worker.Handle(jobCtx, job)
	}, jobs.QueueConfig{
		Workers:    cfg.Jobs.Workers,
		BufferSize: cfg.Jobs.Buffer,
		MaxRetries: cfg.Jobs.Retries,
		RetryDelay: 2 * time.Second,
		OnRequeueFailure: func(job jobs.Job, err error) {
			worker.RequeueFailed(job, err)
		},
		Logger: logr,
	})

	timetableSvc := service.NewTimetableService(runs, queue, cacheSvc, metricsSvc, validator.New(), logr, service.TimetableServiceConfig{
		Params:    generatorParams(cfg.Generator),
		Workers:   cfg.Generator.Workers,
		Timeout:   cfg.Generator.Timeout,
		LogEvery:  cfg.Generator.LogEvery,
		CacheTTL:  cfg.Redis.CacheTTL,
		APIPrefix: cfg.APIPrefix,
	})
	worker = service.NewGenerationWorker(runs, timetableSvc, cfg.Jobs.Retries, logr)
	metricsSvc.TrackQueueDepth(queue.Depth)

	queue.Start(ctx)
	defer queue.Stop()
	timetableSvc.RecoverPending(ctx)

	exportStore, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to prepare export storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
	exportSvc := service.NewExportService(runs, exportStore, signer, service.ExportConfig{APIPrefix: cfg.APIPrefix}, logr, nil, nil)

	maintenance := scheduler.New(logr, time.Minute)
	if err := maintenance.Register("export-cleanup", cfg.Exports.CleanupSchedule, func(context.Context) error {
		_, err := exportSvc.Cleanup()
		return err
	}); err != nil {
		logr.Sugar().Fatalw("invalid export cleanup schedule", "error", err)
	}
	if err := maintenance.Register("run-retention", cfg.Exports.CleanupSchedule, func(taskCtx context.Context) error {
		_, err := timetableSvc.PurgeExpired(taskCtx, cfg.Jobs.RunTTL)
		return err
	}); err != nil {
		logr.Sugar().Fatalw("invalid run retention schedule", "error", err)
	}
	maintenance.Start(ctx)
	defer maintenance.Stop()

	var tokens *service.TokenService
	if cfg.JWT.Enabled {
		tokens = service.NewTokenService(cfg.JWT.Secret)
	}

	router := newRouter(cfg, logr, routerDeps{
		timetables: handler.NewTimetableHandler(timetableSvc),
		exports:    handler.NewExportHandler(exportSvc),
		metrics:    handler.NewMetricsHandler(metricsSvc, checks),
		metricsSvc: metricsSvc,
		tokens:     tokens,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "auth", cfg.JWT.Enabled)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("graceful shutdown failed", zap.Error(err))
	}
}

func generatorParams(g config.GeneratorConfig) timetable.Params {
	params := timetable.DefaultParams()
	if g.PopulationSize > 0 {
		params.PopulationSize = g.PopulationSize
	}
	if g.Generations > 0 {
		params.Generations = g.Generations
	}
	if g.MutationRate > 0 {
		params.MutationRate = g.MutationRate
	}
	if g.CrossoverRate > 0 {
		params.CrossoverRate = g.CrossoverRate
	}
	if g.EliteSize > 0 {
		params.EliteSize = g.EliteSize
	}
	if g.TournamentSize > 0 {
		params.TournamentSize = g.TournamentSize
	}
	if g.Patience > 0 {
		params.Patience = g.Patience
	}
	if g.MinGenerations > 0 {
		params.MinGenerations = g.MinGenerations
	}
	return params
}
