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
	"go.uber.org/zap"

	_ "github.com/noah-isme/gpa-tracker-api/api/swagger"
	"github.com/noah-isme/gpa-tracker-api/internal/handler"
	"github.com/noah-isme/gpa-tracker-api/internal/repository"
	"github.com/noah-isme/gpa-tracker-api/internal/service"
	"github.com/noah-isme/gpa-tracker-api/pkg/cache"
	"github.com/noah-isme/gpa-tracker-api/pkg/config"
	"github.com/noah-isme/gpa-tracker-api/pkg/database"
	"github.com/noah-isme/gpa-tracker-api/pkg/jobs"
	"github.com/noah-isme/gpa-tracker-api/pkg/logger"
	"github.com/noah-isme/gpa-tracker-api/pkg/mailer"
)

// @title GPA Tracker API
// @version 1.0.0
// @description Track subjects, grades and GPA across degree programmes.
// @BasePath /api/v1
// @schemes http https
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	metricsSvc := service.NewMetricsService()

	var redisClient *redis.Client
	var cacheRepo *repository.CacheRepository
	if cfg.GPA.CacheEnabled {
		redisClient, err = cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, gpa cache disabled", zap.Error(err))
		} else {
			defer redisClient.Close()
			cacheRepo = repository.NewCacheRepository(redisClient, logr)
		}
	}
	var cacheStore service.CacheRepository
	if cacheRepo != nil {
		cacheStore = cacheRepo
	}
	cacheSvc := service.NewCacheService(cacheStore, metricsSvc, cfg.GPA.CacheTTL, logr, cacheRepo != nil)

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	subjectRepo := repository.NewSubjectRepository(db)
	resultRepo := repository.NewResultRepository(db)
	degreeRepo := repository.NewDegreeRepository(db)
	verificationRepo := repository.NewVerificationRepository(db)

	sender, err := mailer.New(mailer.Config{
		Driver:         cfg.Mail.Driver,
		FromName:       cfg.Mail.FromName,
		FromAddress:    cfg.Mail.FromAddress,
		SendgridAPIKey: cfg.Mail.SendgridAPIKey,
	}, logr)
	if err != nil {
		logr.Fatal("failed to init mailer", zap.Error(err))
	}
	mailWorker := service.NewMailWorker(sender, metricsSvc, logr)
	mailQueue := jobs.NewQueue("mail", mailWorker.Handle, jobs.QueueConfig{
		Workers:    cfg.Mail.Workers,
		MaxRetries: cfg.Mail.Retries,
		Logger:     logr,
		OnOutcome:  mailWorker.Outcome,
	})
	if err := metricsSvc.TrackQueueDepth("mail", mailQueue.Len); err != nil {
		logr.Warn("failed to register mail queue gauge", zap.Error(err))
	}

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
	})
	verificationSvc := service.NewVerificationService(verificationRepo, userRepo, mailQueue, validate, logr, cfg.Verification.CodeTTL)
	degreeSvc := service.NewDegreeService(degreeRepo, userRepo, cacheSvc, metricsSvc, validate, logr, service.DegreeWorkflowConfig{
		PendingSecret: cfg.PendingDegree.Secret,
		PendingTTL:    cfg.PendingDegree.TTL,
		Issuer:        cfg.JWT.Issuer,
	})
	subjectSvc := service.NewSubjectService(subjectRepo, degreeSvc, cacheSvc, validate, logr)
	resultSvc := service.NewResultService(resultRepo, subjectRepo, cacheSvc, validate, logr)
	gpaSvc := service.NewGPAService(subjectRepo, cacheSvc, metricsSvc, logr)
	transcriptSvc := service.NewTranscriptService(gpaSvc, logr)
	userSvc := service.NewUserService(userRepo, validate, logr)
	degreeAdminSvc := service.NewDegreeAdminService(degreeRepo, subjectRepo, userRepo, validate, logr)

	checks := map[string]handler.ReadinessCheck{
		"postgres": db.PingContext,
	}
	if cacheRepo != nil {
		checks["redis"] = cacheRepo.Ping
	}

	deps := routerDeps{
		cfg:          cfg,
		logger:       logr,
		metrics:      metricsSvc,
		tokens:       authSvc,
		audit:        userRepo,
		auth:         handler.NewAuthHandler(authSvc, verificationSvc),
		subjects:     handler.NewSubjectHandler(subjectSvc, resultSvc),
		gpa:          handler.NewGPAHandler(gpaSvc, transcriptSvc),
		degrees:      handler.NewDegreeHandler(degreeSvc),
		users:        handler.NewUserHandler(userSvc),
		degreeAdmin:  handler.NewDegreeAdminHandler(degreeAdminSvc),
		observations: handler.NewMetricsHandler(metricsSvc, checks),
	}
	r := newRouter(deps)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mailQueue.Start(ctx)
	defer mailQueue.Stop()

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
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}
