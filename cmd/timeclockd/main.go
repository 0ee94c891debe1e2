package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/makerdesk/timeclock-api/api/swagger"
	"github.com/makerdesk/timeclock-api/internal/civil"
	"github.com/makerdesk/timeclock-api/internal/handler"
	"github.com/makerdesk/timeclock-api/internal/middleware"
	"github.com/makerdesk/timeclock-api/internal/repository"
	"github.com/makerdesk/timeclock-api/internal/service"
	"github.com/makerdesk/timeclock-api/pkg/cache"
	"github.com/makerdesk/timeclock-api/pkg/config"
	"github.com/makerdesk/timeclock-api/pkg/database"
	"github.com/makerdesk/timeclock-api/pkg/jobs"
	"github.com/makerdesk/timeclock-api/pkg/logger"
	corsmiddleware "github.com/makerdesk/timeclock-api/pkg/middleware/cors"
	reqidmiddleware "github.com/makerdesk/timeclock-api/pkg/middleware/requestid"
	"github.com/makerdesk/timeclock-api/pkg/storage"
)

// @title Timeclock API
// @version 1.0.0
// @description Attendance event ingestion and shift lifecycle engine
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

	resolver, err := civil.LoadResolver(cfg.Attendance.Timezone)
	if err != nil {
		logr.Sugar().Fatalw("invalid attendance timezone", "timezone", cfg.Attendance.Timezone, "error", err)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect postgres", "error", err)
	}
	defer db.Close()

	metricsSvc := service.NewMetricsService()

	var cacheSvc *service.CacheService
	if cfg.Analytics.Enabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, analytics cache disabled", "error", err)
		} else {
			defer redisClient.Close()
			cacheRepo := repository.NewCacheRepository(redisClient, logr)
			cacheSvc = service.NewCacheService(cacheRepo, metricsSvc, cfg.Analytics.CacheTTL, logr, true)
		}
	}

	eventRepo := repository.NewClockEventRepository(db)
	shiftRepo := repository.NewShiftRepository(db)
	scheduleRepo := repository.NewScheduleRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	termRepo := repository.NewTermRepository(db)

	validate := validator.New()
	comparator := service.NewComparatorService(resolver,
		cfg.Attendance.OnTimeWindow, cfg.Attendance.NotScheduledWindow, metricsSvc, logr)
	shiftSvc := service.NewShiftService(shiftRepo, eventRepo, resolver,
		cfg.Attendance.MaxShiftDuration, cfg.Attendance.AutoCloseAtDayEnd, metricsSvc, logr)
	ingestSvc := service.NewIngestService(eventRepo, studentRepo, termRepo, scheduleRepo,
		shiftSvc, comparator, resolver, validate, cacheSvc, metricsSvc, logr)
	analyticsSvc := service.NewAnalyticsService(shiftRepo, eventRepo, termRepo, scheduleRepo,
		comparator, resolver, cacheSvc, metricsSvc, logr)

	var exportSvc *service.ExportService
	if cfg.Exports.Enabled {
		var exportStore *storage.LocalStorage
		if cfg.Exports.StorageDir != "" {
			exportStore, err = storage.NewLocalStorage(cfg.Exports.StorageDir)
			if err != nil {
				logr.Sugar().Fatalw("failed to init export storage", "dir", cfg.Exports.StorageDir, "error", err)
			}
		}
		if exportStore != nil {
			exportSvc = service.NewExportService(analyticsSvc, exportStore, service.ExportConfig{MaxRows: cfg.Exports.MaxRows}, logr, nil, nil)
		} else {
			exportSvc = service.NewExportService(analyticsSvc, nil, service.ExportConfig{MaxRows: cfg.Exports.MaxRows}, logr, nil, nil)
		}
	}

	clockEventHandler := handler.NewClockEventHandler(ingestSvc)
	shiftHandler := handler.NewShiftHandler(shiftSvc)
	termHandler := handler.NewTermHandler(termRepo)
	var reportHandler *handler.ReportHandler
	if exportSvc != nil {
		reportHandler = handler.NewReportHandler(analyticsSvc, exportSvc)
	} else {
		reportHandler = handler.NewReportHandler(analyticsSvc, nil)
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	{
		api.POST("/clock-events", clockEventHandler.Ingest)
		api.GET("/shifts/open", shiftHandler.GetOpen)
		api.GET("/terms/active", termHandler.GetActive)
		api.POST("/admin/shift-sweeps", shiftHandler.Sweep)
		api.GET("/reports/daily", reportHandler.Daily)
		api.GET("/reports/weekly", reportHandler.Weekly)
		api.GET("/reports/monthly", reportHandler.Monthly)
		api.GET("/reports/punctuality/export", reportHandler.ExportPunctuality)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sweepQueue := jobs.NewQueue("shift-sweep", func(ctx context.Context, job jobs.Job) error {
		result, err := shiftSvc.SweepStaleOpenShifts(ctx, time.Now().UTC())
		if err != nil {
			return err
		}
		if result.Examined > 0 {
			logr.Sugar().Infow("shift sweep finished",
				"examined", result.Examined, "closed", result.Closed, "failures", len(result.Failures))
		}
		return nil
	}, jobs.QueueConfig{Workers: 1, Logger: logr})

	if cfg.Attendance.SweepInterval > 0 {
		sweepQueue.Start(ctx)
		defer sweepQueue.Stop()
		go func() {
			ticker := time.NewTicker(cfg.Attendance.SweepInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case tick := <-ticker.C:
					if err := sweepQueue.Enqueue(jobs.Job{Type: "sweep", Enqueued: tick}); err != nil {
						logr.Sugar().Warnw("failed to enqueue sweep", "error", err)
					}
				}
			}
		}()
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
