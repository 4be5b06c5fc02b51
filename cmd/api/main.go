package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/jak0d/timetiba-sub002/api/swagger"
	"github.com/jak0d/timetiba-sub002/internal/handler"
	"github.com/jak0d/timetiba-sub002/internal/middleware"
	"github.com/jak0d/timetiba-sub002/internal/repository"
	"github.com/jak0d/timetiba-sub002/internal/service"
	"github.com/jak0d/timetiba-sub002/pkg/cache"
	"github.com/jak0d/timetiba-sub002/pkg/config"
	"github.com/jak0d/timetiba-sub002/pkg/database"
	"github.com/jak0d/timetiba-sub002/pkg/jobs"
	"github.com/jak0d/timetiba-sub002/pkg/logger"
	corsmiddleware "github.com/jak0d/timetiba-sub002/pkg/middleware/cors"
	reqidmiddleware "github.com/jak0d/timetiba-sub002/pkg/middleware/requestid"
	"github.com/jak0d/timetiba-sub002/pkg/storage"
	"github.com/jak0d/timetiba-sub002/pkg/txmanager"
)

// @title Timetabling Core API
// @version 1.0.0
// @description Conflict-aware academic timetabling: schedules, sessions, clash detection, bulk import and export.
// @BasePath /
// @schemes http

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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer redisClient.Close() //nolint:errcheck

	exportStore, err := storage.NewLocalStorage(cfg.Export.Dir)
	if err != nil {
		logr.Fatal("failed to prepare export storage", zap.Error(err))
	}

	metricsSvc := service.NewMetricsService()

	txManager := txmanager.NewManager(db, logr)
	txManager.OnRetry = func(kind txmanager.FailureKind, attempt int) {
		metricsSvc.RecordTxRetry(kind)
	}
	mutationOpts := txmanager.Options{
		StatementTimeout: cfg.Transactions.StatementTimeout,
		MaxAttempts:      cfg.Transactions.MaxAttempts,
		BackoffBase:      cfg.Transactions.BackoffBase,
		BackoffCap:       cfg.Transactions.BackoffCap,
	}

	scheduleRepo := repository.NewScheduleRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	venueRepo := repository.NewVenueRepository(db)
	lecturerRepo := repository.NewLecturerRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	groupRepo := repository.NewStudentGroupRepository(db)
	reviewRepo := repository.NewReviewRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	jobRepo := repository.NewImportJobRepository(redisClient, cfg.Import.JobTTL)

	validate := validator.New()
	detector := service.NewClashDetector()

	referenceSvc := service.NewReferenceService(
		venueRepo, lecturerRepo, courseRepo, groupRepo,
		cacheRepo, metricsSvc, cfg.Reference.CacheTTL, logr)

	scheduleSvc := service.NewScheduleService(
		scheduleRepo, sessionRepo, auditRepo, referenceSvc,
		txManager, detector, metricsSvc, validate, logr,
		service.ScheduleServiceConfig{Mutation: mutationOpts})

	// The queue handler closes over the worker, which needs the import
	// service, which needs the queue. Bind late.
	var importWorker *service.ImportWorker
	importQueue := jobs.NewQueue("schedule-imports", func(ctx context.Context, job jobs.Job) error {
		return importWorker.Handle(ctx, job)
	}, jobs.QueueConfig{
		Workers:    cfg.Import.Workers,
		BufferSize: cfg.Import.QueueCapacity,
		Logger:     logr,
	})

	importSvc := service.NewImportService(
		scheduleRepo, sessionRepo, reviewRepo, auditRepo,
		jobRepo, importQueue, referenceSvc, txManager,
		detector, nil, metricsSvc, validate, logr,
		service.ImportServiceConfig{
			Run: txmanager.Options{
				Timeout:          cfg.Import.RunTimeout,
				StatementTimeout: cfg.Transactions.StatementTimeout,
			},
			DefaultBatchSize: cfg.Import.BatchSize,
		})
	importWorker = service.NewImportWorker(importSvc, jobRepo, metricsSvc, logr)

	exportSvc := service.NewExportService(
		scheduleRepo, sessionRepo, referenceSvc,
		exportStore, storage.NewSignedURLSigner(cfg.Export.SigningSecret, cfg.Export.ResultTTL),
		service.ExportConfig{
			APIPrefix: cfg.APIPrefix,
			ResultTTL: cfg.Export.ResultTTL,
			MaxRows:   cfg.Export.MaxRows,
		}, logr, nil, nil)

	scheduleHandler := handler.NewScheduleHandler(scheduleSvc)
	importHandler := handler.NewImportHandler(importSvc)
	exportHandler := handler.NewExportHandler(exportSvc)
	referenceHandler := handler.NewReferenceHandler(referenceSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": err.Error()})
			return
		}
		if err := redisClient.Ping(ctx).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "redis": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	authed := middleware.Identity(cfg.JWT.Secret)
	api := r.Group(cfg.APIPrefix)
	{
		api.GET("/schedules", scheduleHandler.List)
		api.GET("/schedules/:id", scheduleHandler.Get)
		api.GET("/schedules/:id/clashes", scheduleHandler.Validate)
		api.GET("/schedules/:id/audit", scheduleHandler.AuditTrail)
		api.GET("/schedules/:id/export", exportHandler.Generate)
		api.GET("/export/:token", exportHandler.Download)
		api.GET("/imports/:id", importHandler.Job)

		api.POST("/schedules", authed, scheduleHandler.Create)
		api.POST("/schedules/:id/sessions", authed, scheduleHandler.AddSession)
		api.PUT("/schedules/:id/sessions/:sessionId", authed, scheduleHandler.UpdateSession)
		api.DELETE("/schedules/:id/sessions/:sessionId", authed, scheduleHandler.RemoveSession)
		api.POST("/schedules/:id/publish", authed, scheduleHandler.Publish)
		api.POST("/schedules/:id/archive", authed, scheduleHandler.Archive)
		api.POST("/schedules/:id/review", authed, scheduleHandler.MarkUnderReview)
		api.POST("/schedules/:id/reopen", authed, scheduleHandler.ReopenDraft)
		api.POST("/schedules/:id/import", authed, importHandler.Enqueue)
		api.POST("/reference/refresh", authed, referenceHandler.Refresh)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	importQueue.Start(ctx)

	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed, err := exportSvc.Cleanup(0)
				if err != nil {
					logr.Warn("export cleanup failed", zap.Error(err))
					continue
				}
				if len(removed) > 0 {
					logr.Info("expired exports removed", zap.Int("count", len(removed)))
				}
			}
		}
	}()

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("server shutdown incomplete", zap.Error(err))
	}
	importQueue.Stop()
}
