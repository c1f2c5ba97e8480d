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
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "github.com/noah-isme/bursary-api/api/swagger"
	"github.com/noah-isme/bursary-api/internal/dto"
	"github.com/noah-isme/bursary-api/internal/handler"
	"github.com/noah-isme/bursary-api/internal/middleware"
	"github.com/noah-isme/bursary-api/internal/repository"
	"github.com/noah-isme/bursary-api/internal/screening"
	"github.com/noah-isme/bursary-api/internal/service"
	"github.com/noah-isme/bursary-api/migrations"
	"github.com/noah-isme/bursary-api/pkg/cache"
	"github.com/noah-isme/bursary-api/pkg/config"
	"github.com/noah-isme/bursary-api/pkg/database"
	"github.com/noah-isme/bursary-api/pkg/jobs"
	"github.com/noah-isme/bursary-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/bursary-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/bursary-api/pkg/middleware/requestid"
	"github.com/noah-isme/bursary-api/pkg/notify"
	"github.com/noah-isme/bursary-api/pkg/observability"
	"github.com/noah-isme/bursary-api/pkg/payment"
	"github.com/noah-isme/bursary-api/pkg/storage"
)

// @title Bursary Management API
// @version 1.0.0
// @description Applications, screening, committee review and disbursement for a constituency bursary fund.
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

const exportCleanupInterval = time.Hour

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

	flushSentry, err := observability.InitSentry(cfg.Sentry.DSN, cfg.Env, cfg.Sentry.Release, cfg.Sentry.SampleRate)
	if err != nil {
		logr.Warn("sentry disabled", zap.Error(err))
	}
	defer flushSentry()

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(db.DB, migrations.FS, "up"); err != nil {
			logr.Fatal("failed to apply migrations", zap.Error(err))
		}
		logr.Info("migrations applied")
	}

	metricsSvc := service.NewMetricsService()

	var redisClient *redis.Client
	if cfg.Reports.CacheEnabled {
		redisClient, err = cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Warn("report cache disabled, redis unavailable", zap.Error(err))
			redisClient = nil
		}
	}
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Reports.CacheTTL, logr, redisClient != nil)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := buildApp(ctx, cfg, db, cacheSvc, metricsSvc, logr)
	if err != nil {
		logr.Fatal("failed to build application", zap.Error(err))
	}
	defer app.shutdown()

	router := newRouter(cfg, app, metricsSvc, logr)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
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

type application struct {
	db           handler.Pinger
	auth         *service.AuthService
	applications *service.ApplicationService
	reviews      *service.ReviewService
	disburse     *service.DisbursementService
	profiles     *service.ProfileService
	documents    *service.DocumentService
	cycles       *service.CycleService
	audit        *service.AuditService
	reports      *service.ReportService
	exports      *service.ExportService
	notifyQueue  *jobs.Queue
}

func (a *application) shutdown() {
	if a.notifyQueue != nil {
		a.notifyQueue.Stop()
	}
}

func buildApp(ctx context.Context, cfg *config.Config, db *sqlx.DB, cacheSvc *service.CacheService, metricsSvc *service.MetricsService, logr *zap.Logger) (*application, error) {
	validate := dto.NewValidator()

	userRepo := repository.NewUserRepository(db)
	profileRepo := repository.NewProfileRepository(db)
	cycleRepo := repository.NewCycleRepository(db)
	appRepo := repository.NewApplicationRepository(db)
	docRepo := repository.NewDocumentRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	reportRepo := repository.NewReportRepository(db)

	policy := screening.DefaultPolicy().WithOverrides(
		cfg.Screening.EligibleConstituency,
		cfg.Screening.MaxMonthlyIncome,
		cfg.Screening.FirstTimePoints,
		cfg.Screening.ContinuingPoints,
	)
	engine, err := screening.NewEngine(policy)
	if err != nil {
		return nil, err
	}

	senders := []notify.Sender{notify.NewLogSMS(cfg.Notifications.SMSPrefix, logr)}
	if cfg.Notifications.Enabled {
		mailer, err := notify.NewSMTPMailer(notify.SMTPConfig{
			Host:          cfg.Notifications.SMTPHost,
			Port:          cfg.Notifications.SMTPPort,
			Username:      cfg.Notifications.SMTPUser,
			Password:      cfg.Notifications.SMTPPassword,
			From:          cfg.Notifications.SMTPFrom,
			SkipTLSVerify: cfg.Notifications.SkipTLSVerify,
		})
		if err != nil {
			logr.Warn("email notifications disabled", zap.Error(err))
		} else {
			senders = append(senders, mailer)
		}
	}
	notifications := service.NewNotificationService(userRepo, senders, metricsSvc, logr)
	queue := jobs.NewQueue("notifications", notifications.HandleJob, jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		MaxRetries: cfg.Notifications.MaxRetries,
		RetryDelay: 2 * time.Second,
		Logger:     logr,
	})
	queue.Start(ctx)
	notifications.UseQueue(queue)

	docStorage, err := storage.NewLocalStorage(cfg.Documents.StorageDir)
	if err != nil {
		return nil, fmt.Errorf("document storage: %w", err)
	}
	exportStorage, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		return nil, fmt.Errorf("export storage: %w", err)
	}
	docSigner := storage.NewSignedURLSigner(cfg.Documents.SignedURLSecret, cfg.Documents.SignedURLTTL)
	exportSigner := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)

	documents := service.NewDocumentService(docStorage, docSigner, logr, service.DocumentServiceConfig{
		MaxFileSize:  cfg.Documents.MaxFileSizeBytes,
		AllowedMIMEs: cfg.Documents.AllowedMIMEs,
		APIPrefix:    cfg.APIPrefix,
	})

	gateway := payment.NewMockMpesa(payment.MockMpesaConfig{
		RatePerSec:   cfg.Payments.RatePerSec,
		Burst:        cfg.Payments.Burst,
		Timeout:      cfg.Payments.Timeout,
		ForceFailure: cfg.Payments.ForceFailure,
	}, logr)

	auth := service.NewAuthService(userRepo, auditRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
	})

	applications := service.NewApplicationService(
		appRepo, docRepo, userRepo, profileRepo, auditRepo, db, engine, validate, logr,
		service.ApplicationConfig{
			MinAmount: cfg.Screening.MinAmountRequested,
			MaxAmount: cfg.Screening.MaxAmountRequested,
		},
		service.WithApplicationEvents(notifications),
		service.WithApplicationMetrics(metricsSvc),
		service.WithApplicationPayments(paymentRepo),
		service.WithDocumentLinks(documents),
	)

	exports := service.NewExportService(appRepo, paymentRepo, auditRepo, exportStorage, exportSigner, service.ExportRenderers{}, service.ExportConfig{
		APIPrefix: cfg.APIPrefix,
		ResultTTL: cfg.Exports.SignedURLTTL,
	}, logr)
	go cleanupExports(ctx, exports, cfg.Exports.SignedURLTTL, logr)

	return &application{
		db:           db,
		auth:         auth,
		applications: applications,
		reviews:      service.NewReviewService(appRepo, auditRepo, db, notifications, metricsSvc, validate, logr),
		disburse:     service.NewDisbursementService(appRepo, paymentRepo, userRepo, auditRepo, db, gateway, notifications, cacheSvc, metricsSvc, logr),
		profiles:     service.NewProfileService(userRepo, profileRepo, auditRepo, db, validate, logr),
		documents:    documents,
		cycles:       service.NewCycleService(cycleRepo, auditRepo, db, cacheSvc, validate, logr),
		audit:        service.NewAuditService(auditRepo),
		reports: service.NewReportService(service.ReportServiceParams{
			Reports:  reportRepo,
			Payments: paymentRepo,
			Cycles:   cycleRepo,
			Cache:    cacheSvc,
			CacheTTL: cfg.Reports.CacheTTL,
			Logger:   logr,
		}),
		exports:     exports,
		notifyQueue: queue,
	}, nil
}

func cleanupExports(ctx context.Context, exports *service.ExportService, ttl time.Duration, logr *zap.Logger) {
	ticker := time.NewTicker(exportCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := exports.Cleanup(ttl)
			if err != nil {
				logr.Warn("export cleanup failed", zap.Error(err))
				continue
			}
			if len(removed) > 0 {
				logr.Info("expired exports removed", zap.Int("files", len(removed)))
			}
		}
	}
}

func newRouter(cfg *config.Config, app *application, metricsSvc *service.MetricsService, logr *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(reqidmiddleware.Middleware())
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(logger.GinMiddleware(logr))
	r.Use(middleware.Recovery(logr))
	r.Use(middleware.Metrics(metricsSvc))
	r.Use(middleware.WithResponseMeta())

	registerRoutes(r, cfg, app, metricsSvc)
	return r
}
