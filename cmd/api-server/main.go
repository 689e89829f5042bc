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

	_ "github.com/campushub/institute-api/api/swagger"
	"github.com/campushub/institute-api/internal/handler"
	"github.com/campushub/institute-api/internal/middleware"
	"github.com/campushub/institute-api/internal/repository"
	"github.com/campushub/institute-api/internal/service"
	"github.com/campushub/institute-api/pkg/cache"
	"github.com/campushub/institute-api/pkg/config"
	"github.com/campushub/institute-api/pkg/database"
	"github.com/campushub/institute-api/pkg/jobs"
	"github.com/campushub/institute-api/pkg/logger"
	corsmiddleware "github.com/campushub/institute-api/pkg/middleware/cors"
	reqidmiddleware "github.com/campushub/institute-api/pkg/middleware/requestid"
	"github.com/campushub/institute-api/pkg/storage"
)

// @title CampusHub Institute API
// @version 1.0.0
// @description Course, class and attendance management backend
// @BasePath /api
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("database connection failed", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		// Sessions and throttling degrade gracefully without Redis.
		logr.Sugar().Warnw("redis unavailable, continuing without cache", "error", err)
		redisClient = nil
	}

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	subjectRepo := repository.NewSubjectRepository(db)
	classRepo := repository.NewClassRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	reportRepo := repository.NewReportRepository(db)
	sessionRepo := repository.NewSessionRepository(redisClient, cfg.RateLimit.RoleCacheTTL, logr)
	defer sessionRepo.Close() //nolint:errcheck

	tokenSvc := service.NewTokenService(userRepo, service.TokenConfig{
		Secret:        cfg.JWT.Secret,
		AccessExpiry:  cfg.JWT.Expiration,
		RefreshExpiry: cfg.JWT.RefreshExpiration,
		Issuer:        "institute-api",
	})
	authSvc := service.NewAuthService(userRepo, sessionRepo, tokenSvc, validate, logr)
	courseSvc := service.NewCourseService(courseRepo, userRepo, validate, logr)
	subjectSvc := service.NewSubjectService(subjectRepo, courseRepo, validate, logr)
	classSvc := service.NewClassService(classRepo, subjectRepo, courseRepo, userRepo, validate, logr)
	attendanceSvc := service.NewAttendanceService(attendanceRepo, classRepo, validate, logr)
	metricsSvc := service.NewMetricsService()

	var reportSvc *service.ReportService
	if cfg.Reports.Enabled {
		store, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
		if err != nil {
			logr.Sugar().Fatalw("report storage init failed", "error", err)
		}
		signer := storage.NewSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)
		reportSvc = service.NewReportService(reportRepo, attendanceRepo, classRepo, store, signer, jobs.QueueConfig{
			Workers:    cfg.Reports.WorkerConcurrency,
			MaxRetries: cfg.Reports.WorkerRetries,
			Logger:     logr,
		}, validate, logr)
		reportSvc.Start(context.Background())
		defer reportSvc.Stop()
	}

	limiter := middleware.NewRateLimiter(sessionRepo, userRepo, metricsSvc, cfg.RateLimit, logr)

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
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	router := &handler.Router{
		Auth:       handler.NewAuthHandler(authSvc, int(cfg.JWT.RefreshExpiration.Seconds()), cfg.Env == config.EnvProduction),
		Courses:    handler.NewCourseHandler(courseSvc),
		Subjects:   handler.NewSubjectHandler(subjectSvc),
		Classes:    handler.NewClassHandler(classSvc),
		Attendance: handler.NewAttendanceHandler(attendanceSvc),
		Tokens:     tokenSvc,
		Limiter:    limiter,
	}
	if reportSvc != nil {
		router.Reports = handler.NewReportHandler(reportSvc, metricsSvc)
	}
	router.Register(r, cfg.APIPrefix)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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
