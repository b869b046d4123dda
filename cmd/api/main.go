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
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/openlearn-labs/lms-api/api/swagger"
	"github.com/openlearn-labs/lms-api/internal/bus"
	"github.com/openlearn-labs/lms-api/internal/handler"
	"github.com/openlearn-labs/lms-api/internal/middleware"
	"github.com/openlearn-labs/lms-api/internal/models"
	"github.com/openlearn-labs/lms-api/internal/repository"
	"github.com/openlearn-labs/lms-api/internal/service"
	"github.com/openlearn-labs/lms-api/pkg/cache"
	"github.com/openlearn-labs/lms-api/pkg/config"
	"github.com/openlearn-labs/lms-api/pkg/database"
	"github.com/openlearn-labs/lms-api/pkg/jobs"
	"github.com/openlearn-labs/lms-api/pkg/logger"
	"github.com/openlearn-labs/lms-api/pkg/mailer"
	corsmiddleware "github.com/openlearn-labs/lms-api/pkg/middleware/cors"
	reqidmiddleware "github.com/openlearn-labs/lms-api/pkg/middleware/requestid"
	"github.com/openlearn-labs/lms-api/pkg/storage"
)

// @title OpenLearn LMS API
// @version 1.0.0
// @description Course catalogue, enrollment and learning dashboard backend
// @BasePath /api/v1
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
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	mediaStore, err := storage.NewMediaStore(cfg.Media.StorageDir, cfg.Media.BaseURL)
	if err != nil {
		logr.Sugar().Fatalw("failed to init media store", "error", err)
	}
	signer := storage.NewPlaybackSigner(cfg.Media.SignedURLSecret, cfg.Media.SignedURLTTL)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cleanupQueue := jobs.NewQueue("media-cleanup", func(jobCtx context.Context, job jobs.Job) error {
		ref, ok := job.Payload.(string)
		if !ok {
			return fmt.Errorf("media-cleanup: unexpected payload type %T", job.Payload)
		}
		return mediaStore.Delete(jobCtx, ref)
	}, jobs.QueueConfig{
		Workers:    cfg.Media.CleanupWorkers,
		MaxRetries: 3,
		RetryDelay: 30 * time.Second,
		Logger:     logr,
	})
	cleanupQueue.Start(ctx)
	defer cleanupQueue.Stop()

	userRepo := repository.NewUserRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	moduleRepo := repository.NewModuleRepository(db)
	lessonRepo := repository.NewLessonRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	broker := bus.NewBroker(cfg.Dashboard.StreamBuffer, logr)
	validate := validator.New()
	mail := mailer.New(cfg.Mail, logr)
	metricsSvc := service.NewMetricsService()

	authSvc := service.NewAuthService(userRepo, mediaStore, mail, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
		OTPTTL:             cfg.Mail.OTPTTL,
	})
	courseSvc := service.NewCourseService(courseRepo, moduleRepo, lessonRepo, userRepo, mediaStore, cleanupQueue, broker, validate, logr)
	moduleSvc := service.NewModuleService(moduleRepo, courseRepo, lessonRepo, validate, logr)
	lessonSvc := service.NewLessonService(lessonRepo, moduleRepo, courseRepo, mediaStore, cleanupQueue, signer, validate, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, courseRepo, courseRepo, broker, validate, logr)
	dashboardSvc := service.NewDashboardService(courseRepo, enrollmentRepo, userRepo, courseRepo, cacheRepo, cfg.Dashboard.CacheTTL, logr)

	authHandler := handler.NewAuthHandler(authSvc)
	courseHandler := handler.NewCourseHandler(courseSvc)
	moduleHandler := handler.NewModuleHandler(moduleSvc)
	lessonHandler := handler.NewLessonHandler(lessonSvc)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc)
	dashboardHandler := handler.NewDashboardHandler(dashboardSvc, broker, metricsSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc, db, redisClient)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)
	r.Static("/media", cfg.Media.StorageDir)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	staff := []models.UserRole{models.RoleAdmin, models.RoleInstructor}

	api := r.Group(cfg.APIPrefix)
	{
		auth := api.Group("/auth")
		{
			auth.POST("/signup", authHandler.Signup)
			auth.POST("/verify-otp", authHandler.VerifyOTP)
			auth.POST("/resend-otp", authHandler.ResendOTP)
			auth.POST("/login", authHandler.Login)
			auth.POST("/refresh", authHandler.Refresh)
			auth.POST("/logout", middleware.JWT(authSvc), authHandler.Logout)
			auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)
		}

		courses := api.Group("/courses")
		{
			courses.GET("", middleware.OptionalJWT(authSvc), courseHandler.List)
			courses.GET("/:id", middleware.OptionalJWT(authSvc), courseHandler.Get)

			courses.POST("", middleware.JWT(authSvc), middleware.RequireRoles(staff...),
				middleware.Audit(userRepo, models.AuditActionCourseCreate, "course"), courseHandler.Create)
			courses.PATCH("/:id", middleware.JWT(authSvc), middleware.RequireRoles(staff...),
				middleware.Audit(userRepo, models.AuditActionCourseUpdate, "course"), courseHandler.Update)
			courses.POST("/assign", middleware.JWT(authSvc), middleware.RequireRoles(models.RoleAdmin),
				middleware.Audit(userRepo, models.AuditActionCourseAssign, "course"), courseHandler.Assign)
			courses.PATCH("/:id/status", middleware.JWT(authSvc), middleware.RequireRoles(staff...),
				middleware.Audit(userRepo, models.AuditActionCourseStatus, "course"), courseHandler.SetStatus)

			courses.POST("/:id/modules", middleware.JWT(authSvc), middleware.RequireRoles(staff...),
				middleware.Audit(userRepo, models.AuditActionContentMutation, "module"), moduleHandler.Create)

			courses.POST("/:id/enroll", middleware.JWT(authSvc), middleware.RequireRoles(models.RoleStudent),
				middleware.Audit(userRepo, models.AuditActionEnroll, "enrollment"), enrollmentHandler.Enroll)
			courses.POST("/:id/complete", middleware.JWT(authSvc), middleware.RequireRoles(models.RoleStudent),
				middleware.Audit(userRepo, models.AuditActionEnrollComplete, "enrollment"), enrollmentHandler.Complete)
			courses.GET("/:id/enrollments", middleware.JWT(authSvc), middleware.RequireRoles(staff...), enrollmentHandler.ListEnrolledUsers)
		}

		modules := api.Group("/modules")
		{
			modules.GET("/:id", middleware.OptionalJWT(authSvc), moduleHandler.Get)
			modules.PATCH("/:id", middleware.JWT(authSvc), middleware.RequireRoles(staff...),
				middleware.Audit(userRepo, models.AuditActionContentMutation, "module"), moduleHandler.Update)
			modules.DELETE("/:id", middleware.JWT(authSvc), middleware.RequireRoles(staff...),
				middleware.Audit(userRepo, models.AuditActionContentMutation, "module"), moduleHandler.Delete)
			modules.POST("/:id/lessons", middleware.JWT(authSvc), middleware.RequireRoles(staff...),
				middleware.Audit(userRepo, models.AuditActionContentMutation, "lesson"), lessonHandler.Create)
		}

		lessons := api.Group("/lessons")
		{
			lessons.GET("/:id/playback", middleware.JWT(authSvc), lessonHandler.Playback)
			lessons.PATCH("/:id", middleware.JWT(authSvc), middleware.RequireRoles(staff...),
				middleware.Audit(userRepo, models.AuditActionContentMutation, "lesson"), lessonHandler.Update)
			lessons.DELETE("/:id", middleware.JWT(authSvc), middleware.RequireRoles(staff...),
				middleware.Audit(userRepo, models.AuditActionContentMutation, "lesson"), lessonHandler.Delete)
		}

		enrollments := api.Group("/enrollments", middleware.JWT(authSvc))
		{
			enrollments.GET("", enrollmentHandler.List)
			enrollments.PATCH("/status", middleware.RequireRoles(staff...),
				middleware.Audit(userRepo, models.AuditActionEnrollSetStatus, "enrollment"), enrollmentHandler.SetStatus)
		}

		dashboard := api.Group("/dashboard", middleware.JWT(authSvc))
		{
			dashboard.GET("", middleware.RequireRoles(models.RoleAdmin), dashboardHandler.Admin)
			dashboard.GET("/me", dashboardHandler.Me)
			dashboard.GET("/stream", middleware.RequireRoles(models.RoleAdmin), dashboardHandler.Stream)
			dashboard.GET("/stream/me", dashboardHandler.StreamMe)
		}
	}

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
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
