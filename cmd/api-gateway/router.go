package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/gpa-tracker-api/internal/handler"
	"github.com/noah-isme/gpa-tracker-api/internal/middleware"
	"github.com/noah-isme/gpa-tracker-api/internal/models"
	"github.com/noah-isme/gpa-tracker-api/internal/service"
	"github.com/noah-isme/gpa-tracker-api/pkg/config"
	"github.com/noah-isme/gpa-tracker-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/gpa-tracker-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/gpa-tracker-api/pkg/middleware/requestid"
)

type routerDeps struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *service.MetricsService
	tokens  middleware.TokenValidator
	audit   middleware.AuditWriter

	auth         *handler.AuthHandler
	subjects     *handler.SubjectHandler
	gpa          *handler.GPAHandler
	degrees      *handler.DegreeHandler
	users        *handler.UserHandler
	degreeAdmin  *handler.DegreeAdminHandler
	observations *handler.MetricsHandler
}

func newRouter(d routerDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(d.logger))
	r.Use(corsmiddleware.New(d.cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(d.metrics))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", d.observations.Health)
	r.GET("/ready", d.observations.Ready)
	r.GET("/metrics", d.observations.Prometheus)

	if d.cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(d.cfg.APIPrefix)
	authRequired := middleware.JWT(d.tokens)

	auth := api.Group("/auth")
	auth.POST("/register", d.auth.Register)
	auth.POST("/login", d.auth.Login)
	auth.POST("/refresh", d.auth.Refresh)
	auth.POST("/send-code", d.auth.SendCode)
	auth.POST("/verify-code", d.auth.VerifyCode)
	auth.POST("/logout", authRequired, d.auth.Logout)
	auth.GET("/me", authRequired, d.auth.Me)

	secured := api.Group("")
	secured.Use(authRequired)

	subjects := secured.Group("/subjects")
	subjects.GET("", d.subjects.List)
	subjects.POST("", d.subjects.Create)
	subjects.GET("/:id", d.subjects.Get)
	subjects.PATCH("/:id", d.subjects.Update)
	subjects.DELETE("/:id", d.subjects.Delete)
	subjects.GET("/:id/result", d.subjects.GetResult)
	subjects.PUT("/:id/result", d.subjects.UpsertResult)
	subjects.DELETE("/:id/result", d.subjects.DeleteResult)

	secured.GET("/gpa", d.gpa.Get)
	secured.GET("/gpa/transcript", d.gpa.Transcript)

	degrees := secured.Group("/degrees")
	degrees.GET("", d.degrees.List)
	degrees.GET("/committed", d.degrees.Committed)
	degrees.POST("/select", middleware.Audit(d.audit, models.AuditActionDegreeSelect, "degrees"), d.degrees.Select)
	degrees.POST("/custom", d.degrees.CreateCustom)

	admin := secured.Group("/admin")
	admin.Use(middleware.RequireRoles(models.RoleSuperAdmin))
	admin.GET("/metrics", d.observations.Snapshot)

	admin.GET("/users", d.users.List)
	admin.PATCH("/users/:id/role", d.users.UpdateRole)
	admin.DELETE("/users/:id", d.users.Delete)

	admin.GET("/degrees", d.degreeAdmin.List)
	admin.POST("/degrees", d.degreeAdmin.Create)
	admin.POST("/degrees/publish", d.degreeAdmin.Publish)
	admin.DELETE("/degrees/:id", d.degreeAdmin.Delete)
	admin.GET("/degrees/:id/templates", d.degreeAdmin.Templates)
	admin.POST("/degrees/:id/templates", d.degreeAdmin.CreateTemplate)
	admin.PATCH("/degrees/:id/templates/:templateId", d.degreeAdmin.UpdateTemplate)
	admin.DELETE("/degrees/:id/templates/:templateId", d.degreeAdmin.DeleteTemplate)

	return r
}
