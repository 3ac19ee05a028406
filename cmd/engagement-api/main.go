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
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/wellness-analytics-api/api/swagger"
	"github.com/noah-isme/wellness-analytics-api/internal/analytics"
	"github.com/noah-isme/wellness-analytics-api/internal/handler"
	internalmiddleware "github.com/noah-isme/wellness-analytics-api/internal/middleware"
	"github.com/noah-isme/wellness-analytics-api/internal/models"
	"github.com/noah-isme/wellness-analytics-api/internal/repository"
	"github.com/noah-isme/wellness-analytics-api/internal/service"
	"github.com/noah-isme/wellness-analytics-api/pkg/cache"
	"github.com/noah-isme/wellness-analytics-api/pkg/config"
	"github.com/noah-isme/wellness-analytics-api/pkg/database"
	"github.com/noah-isme/wellness-analytics-api/pkg/export"
	"github.com/noah-isme/wellness-analytics-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/wellness-analytics-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/wellness-analytics-api/pkg/middleware/requestid"
	"github.com/noah-isme/wellness-analytics-api/pkg/storage"
)

// @title Wellness Engagement Analytics API
// @version 1.0.0
// @description Engagement rollups, risk classification, leaderboards and drill-down navigation for wellness dashboards.
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

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect database", "error", err)
	}
	defer db.Close() //nolint:errcheck

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, serving without shared cache", "error", err)
			redisClient = nil
		}
	}

	loc := cfg.Analytics.Location()
	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	var (
		cacheRepo  *repository.CacheRepository
		cacheStore service.CacheRepository
	)
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient, "wellness", logr)
		defer cacheRepo.Close() //nolint:errcheck
		cacheStore = cacheRepo
	}
	cacheSvc := service.NewCacheService(cacheStore, metricsSvc, cfg.Analytics.CacheTTL, logr)

	policy := analytics.RiskPolicy{
		HighWellbeing:    cfg.Risk.HighWellbeing,
		MediumWellbeing:  cfg.Risk.MediumWellbeing,
		HighEngagement:   cfg.Risk.HighEngagement,
		MediumEngagement: cfg.Risk.MediumEngagement,
	}
	memo, err := analytics.NewMemo(cfg.Analytics.MemoSize, policy)
	if err != nil {
		logr.Sugar().Fatalw("failed to init rollup memo", "error", err)
	}

	engagementRepo := repository.NewEngagementRepository(db, loc)
	engagementSvc := service.NewEngagementService(
		engagementRepo,
		cacheSvc,
		metricsSvc,
		memo,
		analytics.WindowResolver{Location: loc, Granularity: cfg.Analytics.WindowGranularity},
		service.EngagementConfig{
			CacheTTL:        cfg.Analytics.CacheTTL,
			InactiveDays:    cfg.Analytics.InactiveDays,
			HistoryDays:     cfg.Analytics.HistoryDays,
			LeaderboardSize: cfg.Analytics.LeaderboardSize,
			Trend:           analytics.TrendPoints{Weekly: cfg.Trend.WeeklyPoints, Monthly: cfg.Trend.MonthlyPoints},
		},
		logr,
	)

	var prefetchSvc *service.PrefetchService
	if cfg.Prefetch.Enabled {
		prefetchSvc = service.NewPrefetchService(engagementSvc, service.PrefetchConfig{
			Workers:    cfg.Prefetch.Workers,
			BufferSize: cfg.Prefetch.BufferSize,
			Retries:    cfg.Prefetch.Retries,
			RetryDelay: cfg.Prefetch.RetryDelay,
		}, metricsSvc, logr)
		prefetchSvc.Start(ctx)
		defer prefetchSvc.Stop()
		engagementSvc.SetPrefetcher(prefetchSvc)

		if cfg.Prefetch.WarmOnBoot {
			go func() {
				warmCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
				defer cancel()
				if err := prefetchSvc.WarmAll(warmCtx, engagementRepo, engagementSvc, analytics.WindowRequest{Period: analytics.PeriodWeek}); err != nil {
					logr.Warn("boot cache warm failed", zap.Error(err))
				}
			}()
		}
	}

	navigationSvc, err := service.NewNavigationService(engagementSvc, cacheSvc, metricsSvc, cfg.Analytics.NavigationTTL, logr)
	if err != nil {
		logr.Sugar().Fatalw("failed to init navigation service", "error", err)
	}

	authSvc := service.NewAuthService(validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})

	var exportHandler *handler.ExportHandler
	if cfg.Exports.Enabled {
		store, err := storage.NewDiskStore(cfg.Exports.StorageDir)
		if err != nil {
			logr.Sugar().Fatalw("failed to init export storage", "error", err)
		}
		signer := storage.NewLinkSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
		exportSvc := service.NewExportService(engagementSvc, store, signer, metricsSvc, service.ExportConfig{
			APIPrefix: cfg.APIPrefix,
			ResultTTL: cfg.Exports.SignedURLTTL,
		}, logr, export.NewCSVExporter(), export.NewPDFExporter())
		go exportSvc.RunCleanup(ctx, cfg.Exports.CleanupInterval)
		exportHandler = handler.NewExportHandler(exportSvc, validate, loc, cfg.Analytics.DefaultPageSize)
	}

	readiness := map[string]handler.ReadinessCheck{
		"postgres": engagementRepo.Ping,
	}
	if cacheRepo != nil {
		readiness["redis"] = cacheRepo.Ping
	}

	engagementHandler := handler.NewEngagementHandler(engagementSvc, validate, loc, cfg.Analytics.DefaultPageSize)
	navigationHandler := handler.NewNavigationHandler(navigationSvc, validate, loc, cfg.Analytics.DefaultPageSize)
	metricsHandler := handler.NewMetricsHandler(metricsSvc, readiness)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metricsSvc))
	r.Use(internalmiddleware.WithResponseMeta())

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	readers := []models.UserRole{models.RoleSuperAdmin, models.RoleAdmin, models.RoleCounselor, models.RoleTeacher}
	curators := internalmiddleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin, models.RoleCounselor)

	api := r.Group(cfg.APIPrefix)
	if exportHandler != nil {
		// the signed token authorises the download
		api.GET("/exports/:token", exportHandler.Download)
	}

	secured := api.Group("")
	secured.Use(internalmiddleware.JWT(authSvc))

	schools := secured.Group("/schools/:schoolId")
	schools.Use(internalmiddleware.RequireRoles(readers...), internalmiddleware.SchoolScope("schoolId"))
	schools.GET("/overview", engagementHandler.Overview)
	schools.GET("/classes", engagementHandler.Classes)
	schools.GET("/students", engagementHandler.Students)
	schools.GET("/leaderboard", engagementHandler.Leaderboard)
	schools.GET("/trend", engagementHandler.Trend)
	schools.POST("/refresh", curators, engagementHandler.Refresh)
	if exportHandler != nil {
		schools.POST("/exports", curators, exportHandler.Create)
	}

	readersOnly := internalmiddleware.RequireRoles(readers...)
	schoolOnly := internalmiddleware.RequireSchool()
	secured.GET("/classes/:classId", readersOnly, schoolOnly, engagementHandler.Class)
	secured.GET("/students/:studentId", readersOnly, schoolOnly, engagementHandler.Student)

	nav := secured.Group("/navigation")
	nav.Use(readersOnly)
	nav.GET("", navigationHandler.State)
	nav.POST("", navigationHandler.Start)
	nav.DELETE("", navigationHandler.End)
	nav.POST("/push", navigationHandler.Push)
	nav.POST("/pop", navigationHandler.Pop)
	nav.POST("/reset", navigationHandler.Reset)
	nav.PUT("/filters", navigationHandler.Filters)
	nav.PUT("/context", navigationHandler.Context)

	ops := secured.Group("/metrics")
	ops.Use(internalmiddleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin, models.RoleService))
	ops.GET("/summary", metricsHandler.Snapshot)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
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
