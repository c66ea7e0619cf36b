package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/gracetrack-api/api/swagger"
	"github.com/noah-isme/gracetrack-api/internal/handler"
	"github.com/noah-isme/gracetrack-api/internal/middleware"
	"github.com/noah-isme/gracetrack-api/internal/models"
	"github.com/noah-isme/gracetrack-api/internal/realtime"
	"github.com/noah-isme/gracetrack-api/internal/service"
	"github.com/noah-isme/gracetrack-api/pkg/config"
	"github.com/noah-isme/gracetrack-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/gracetrack-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/gracetrack-api/pkg/middleware/requestid"
)

type routerDeps struct {
	tokens        middleware.TokenValidator
	audit         middleware.AuditWriter
	metrics       *service.MetricsService
	hub           *realtime.Hub
	records       *handler.RecordHandler
	editRequests  *handler.EditRequestHandler
	church        *handler.ChurchHandler
	notifications *handler.NotificationHandler
	dashboard     *handler.DashboardHandler
	observability *handler.MetricsHandler
}

func newRouter(cfg *config.Config, logr *zap.Logger, deps routerDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(deps.metrics, "/ws", "/metrics"))

	r.GET("/health", deps.observability.Health)
	r.GET("/ready", deps.observability.Ready)
	r.GET("/metrics", deps.observability.Prometheus)
	r.GET("/ws", realtime.ServeWs(deps.hub, deps.tokens, cfg.CORS.AllowedOrigins, logr))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.WithResponseMeta())
	api.Use(middleware.JWT(deps.tokens))

	records := api.Group("/records")
	records.GET("/:entity", deps.records.List)
	records.POST("/:entity", deps.records.Create)
	records.GET("/:entity/:id", deps.records.Get)
	records.DELETE("/:entity/:id", deps.records.RequestDelete)
	records.POST("/:entity/:id/edit-requests", deps.records.RequestUpdate)

	requests := api.Group("/edit-requests")
	requests.GET("", deps.editRequests.List)
	requests.POST("", deps.editRequests.Create)
	requests.GET("/:id", deps.editRequests.Get)
	requests.POST("/:id/decision", deps.editRequests.Decide)

	church := api.Group("/church")
	church.GET("", deps.church.Get)
	church.PUT("/roles", middleware.RequireChurchOwner(), deps.church.UpdateRoles)
	church.PUT("/preferences", middleware.RequireChurchOwner(),
		middleware.Audit(deps.audit, models.AuditActionPreferencesUpdate, "church"), deps.church.UpdatePreferences)

	api.GET("/notifications", deps.notifications.List)
	if cfg.Dashboard.Enabled {
		api.GET("/dashboard/summary", deps.dashboard.Summary)
	}

	return r
}
