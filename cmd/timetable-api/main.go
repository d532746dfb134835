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
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/sma-timetable-api/api/swagger"
	"github.com/noah-isme/sma-timetable-api/internal/handler"
	"github.com/noah-isme/sma-timetable-api/internal/middleware"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/repository"
	"github.com/noah-isme/sma-timetable-api/internal/scheduling"
	"github.com/noah-isme/sma-timetable-api/internal/service"
	"github.com/noah-isme/sma-timetable-api/pkg/cache"
	"github.com/noah-isme/sma-timetable-api/pkg/config"
	"github.com/noah-isme/sma-timetable-api/pkg/database"
	"github.com/noah-isme/sma-timetable-api/pkg/jobs"
	"github.com/noah-isme/sma-timetable-api/pkg/lock"
	"github.com/noah-isme/sma-timetable-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-timetable-api/pkg/middleware/cors"
	"github.com/noah-isme/sma-timetable-api/pkg/middleware/custommethod"
	reqidmiddleware "github.com/noah-isme/sma-timetable-api/pkg/middleware/requestid"
)

// @title SMA Timetable API
// @version 1.0.0
// @description Conflict-free class timetable engine: entries, catalog, conflict report and bulk import.
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

	db, err := database.Open(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(db, cfg.Database.Driver, logr); err != nil {
			logr.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, continuing without cache", zap.Error(err))
	}
	// A nil *redis.Client must not leak into the interface as a non-nil value.
	var universal redis.UniversalClient
	if redisClient != nil {
		universal = redisClient
		defer redisClient.Close()
	}

	var locker lock.Locker = lock.NewLocal()
	if cfg.Lock.Backend == config.LockBackendRedis {
		if redisClient == nil {
			logr.Warn("LOCK_BACKEND=redis without redis, falling back to in-process lock")
		} else {
			locker = lock.NewRedis(redisClient, cfg.Lock.TTL, logr)
		}
	}

	metricsSvc := service.NewMetricsService()
	validate := validator.New()
	opts := scheduling.Options{
		Horizon:           cfg.Timetable.OccurrenceHorizon,
		ComparisonWindow:  cfg.Timetable.ComparisonWindow,
		Workers:           cfg.Timetable.DetectorWorkers,
		ParallelThreshold: cfg.Timetable.ParallelThreshold,
	}
	guard := service.WriteGuard{Locker: locker, Wait: cfg.Lock.WaitTimeout, Metrics: metricsSvc}

	entryRepo := repository.NewTimetableEntryRepository(db)
	catalogRepo := repository.NewCatalogRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	var cacheRepo service.CacheRepository
	if universal != nil {
		cacheRepo = repository.NewCacheRepository(universal, logr)
	}
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Conflicts.CacheTTL, logr, cfg.Conflicts.CacheEnabled && universal != nil)

	conflictSvc := service.NewConflictService(catalogRepo, entryRepo, cacheSvc, cfg.Conflicts.CacheTTL, opts, metricsSvc, logr)
	catalogSvc := service.NewCatalogService(catalogRepo, entryRepo, guard, conflictSvc, validate, logr)
	timetableSvc := service.NewTimetableService(entryRepo, catalogRepo, guard, conflictSvc, opts, validate, metricsSvc, logr)
	importSvc := service.NewImportService(entryRepo, catalogRepo, guard, conflictSvc, opts, cfg.Timetable.ImportMaxRows, validate, metricsSvc, logr)
	authSvc := service.NewAuthService(service.AuthConfig{AccessTokenSecret: cfg.JWT.Secret})

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var warmQueue *jobs.Queue
	if cfg.Conflicts.WarmerEnabled && cacheSvc.Enabled() {
		warmQueue = jobs.NewQueue("conflict-warmer", conflictSvc.Warm, jobs.QueueConfig{
			Workers:    cfg.Conflicts.WarmerWorkers,
			MaxRetries: 2,
			RetryDelay: time.Second,
			Logger:     logr,
		})
		warmQueue.Start(rootCtx)
		conflictSvc.SetWarmQueue(warmQueue)
	}

	timetableHandler := handler.NewTimetableHandler(timetableSvc, importSvc, cfg.Timetable.ImportMaxFileBytes)
	conflictHandler := handler.NewConflictHandler(conflictSvc)
	catalogHandler := handler.NewCatalogHandler(catalogSvc)
	auditHandler := handler.NewAuditHandler(auditRepo)
	metricsHandler := handler.NewMetricsHandler(metricsSvc, db)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc, "/metrics", "/health", "/ready"))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	writers := middleware.RequireRoles(models.RoleAdmin, models.RoleScheduler)
	readers := middleware.RequireRoles(models.RoleAdmin, models.RoleScheduler, models.RoleTeacher, models.RoleStudent)

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(authSvc), middleware.WithResponseMeta())
	tt := api.Group("/timetable")
	{
		entries := tt.Group("/entries")
		entries.GET("", readers, timetableHandler.List)
		entries.GET("/:id", readers, timetableHandler.Get)
		entries.GET("/:id/occurrences", readers, timetableHandler.Occurrences)
		entries.POST("", writers, middleware.Audit(auditRepo, models.AuditActionEntryCreate, "timetable_entry"), timetableHandler.Create)
		entries.PUT("/:id", writers, middleware.Audit(auditRepo, models.AuditActionEntryReplace, "timetable_entry"), timetableHandler.Replace)
		entries.DELETE("/:id", writers, middleware.Audit(auditRepo, models.AuditActionEntryDelete, "timetable_entry"), timetableHandler.Delete)
		entries.POST("/bulkImport", writers, middleware.Audit(auditRepo, models.AuditActionBulkImport, "timetable_entry"), timetableHandler.BulkImport)
		entries.POST("/importFile", writers, middleware.Audit(auditRepo, models.AuditActionBulkImport, "timetable_entry"), timetableHandler.ImportFile)

		conflicts := tt.Group("/conflicts")
		conflicts.GET("", readers, conflictHandler.List)
		conflicts.POST("/:id/suggest", writers, conflictHandler.Suggest)

		catalog := tt.Group("/catalog/:kind")
		catalog.GET("", readers, catalogHandler.List)
		catalog.GET("/:id", readers, catalogHandler.Get)
		catalog.POST("", writers, middleware.Audit(auditRepo, models.AuditActionCatalogSave, "catalog"), catalogHandler.Create)
		catalog.PUT("/:id", writers, middleware.Audit(auditRepo, models.AuditActionCatalogSave, "catalog"), catalogHandler.Replace)
		catalog.DELETE("/:id", writers, middleware.Audit(auditRepo, models.AuditActionCatalogDrop, "catalog"), catalogHandler.Delete)

		tt.GET("/audit", middleware.RequireRoles(models.RoleAdmin), auditHandler.List)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           custommethod.Handler(r, "bulkImport", "importFile", "suggest"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-rootCtx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
	if warmQueue != nil {
		warmQueue.Stop()
	}
}
