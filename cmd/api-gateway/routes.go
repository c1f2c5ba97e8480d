package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/noah-isme/bursary-api/internal/authz"
	"github.com/noah-isme/bursary-api/internal/handler"
	"github.com/noah-isme/bursary-api/internal/middleware"
	"github.com/noah-isme/bursary-api/internal/service"
	"github.com/noah-isme/bursary-api/pkg/config"
)

func registerRoutes(r *gin.Engine, cfg *config.Config, app *application, metricsSvc *service.MetricsService) {
	metricsHandler := handler.NewMetricsHandler(metricsSvc, app.db)
	authHandler := handler.NewAuthHandler(app.auth)
	applicationHandler := handler.NewApplicationHandler(app.applications)
	reviewHandler := handler.NewReviewHandler(app.reviews, app.disburse)
	profileHandler := handler.NewProfileHandler(app.profiles)
	documentHandler := handler.NewDocumentHandler(app.documents)
	cycleHandler := handler.NewCycleHandler(app.cycles)
	auditHandler := handler.NewAuditHandler(app.audit)
	reportHandler := handler.NewReportHandler(app.reports, app.exports)

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	limiter := middleware.NewIPRateLimiter(cfg.RateLimit.PublicRPS, cfg.RateLimit.PublicBurst)

	public := api.Group("/public", middleware.RateLimit(limiter))
	public.GET("/transparency", reportHandler.Transparency)

	auth := api.Group("/auth")
	auth.POST("/register", middleware.RateLimit(limiter), authHandler.Register)
	auth.POST("/login", middleware.RateLimit(limiter), authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)

	// Signed links carry their own authorisation.
	api.GET("/exports/:token", reportHandler.DownloadExport)

	secured := api.Group("", middleware.JWT(app.auth))

	secured.POST("/auth/logout", authHandler.Logout)
	secured.POST("/auth/change-password", authHandler.ChangePassword)
	secured.GET("/auth/me", authHandler.Me)

	secured.GET("/profile", profileHandler.Get)
	secured.PUT("/profile", profileHandler.Upsert)
	secured.GET("/users/:id/profile", middleware.RequireCapability(authz.ActionProfileManage), profileHandler.Get)
	secured.PUT("/users/:id/profile", middleware.RequireCapability(authz.ActionProfileManage), profileHandler.Upsert)

	secured.POST("/documents", middleware.RequireCapability(authz.ActionDocumentUpload), documentHandler.Upload)
	secured.GET("/documents/download/:token", documentHandler.Download)

	apps := secured.Group("/applications")
	apps.POST("", middleware.RequireCapability(authz.ActionApplicationSubmit), applicationHandler.Submit)
	apps.GET("", middleware.RequireCapability(authz.ActionApplicationList), applicationHandler.List)
	apps.GET("/mine", applicationHandler.Mine)
	apps.GET("/queue", middleware.RequireCapability(authz.ActionApplicationReview), applicationHandler.Queue)
	apps.POST("/bulk-disburse", middleware.RequireCapability(authz.ActionApplicationDisburse), reviewHandler.BulkDisburse)
	apps.GET("/:id", applicationHandler.Get)
	apps.PUT("/:id", middleware.RequireCapability(authz.ActionApplicationSubmit), applicationHandler.Edit)
	apps.POST("/:id/recommend", middleware.RequireCapability(authz.ActionApplicationReview), reviewHandler.Recommend)
	apps.POST("/:id/reject", middleware.RequireCapability(authz.ActionApplicationReject), reviewHandler.Reject)
	apps.POST("/:id/disburse", middleware.RequireCapability(authz.ActionApplicationDisburse), reviewHandler.Disburse)
	apps.GET("/:id/award-letter", reportHandler.AwardLetter)

	cycles := secured.Group("/cycles")
	cycles.GET("", middleware.RequireCapability(authz.ActionApplicationList), cycleHandler.List)
	cycles.GET("/active", cycleHandler.Active)
	cycles.POST("", middleware.RequireCapability(authz.ActionCycleManage), cycleHandler.Create)
	cycles.POST("/:id/activate", middleware.RequireCapability(authz.ActionCycleManage), cycleHandler.Activate)

	reports := secured.Group("/reports", middleware.RequireCapability(authz.ActionReportView))
	reports.GET("/dashboard", reportHandler.Dashboard)
	reports.GET("/financial-history", reportHandler.FinancialHistory)
	reports.GET("/applications/export", middleware.RequireCapability(authz.ActionReportExport), reportHandler.Export)

	secured.GET("/audit-logs", middleware.RequireCapability(authz.ActionAuditView), auditHandler.List)
	secured.GET("/admin/metrics", middleware.RequireCapability(authz.ActionAuditView), metricsHandler.Snapshot)
}
