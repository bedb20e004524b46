package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/sma-timetable-api/api/swagger"
	"github.com/noah-isme/sma-timetable-api/internal/handler"
	internalmiddleware "github.com/noah-isme/sma-timetable-api/internal/middleware"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/service"
	"github.com/noah-isme/sma-timetable-api/pkg/config"
	"github.com/noah-isme/sma-timetable-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-timetable-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-timetable-api/pkg/middleware/requestid"
)

type routerDeps struct {
	timetables *handler.TimetableHandler
	exports    *handler.ExportHandler
	metrics    *handler.MetricsHandler
	metricsSvc *service.MetricsService
	// tokens is nil when authentication is disabled.
	tokens *service.TokenService
}

func newRouter(cfg *config.Config, logr *zap.Logger, deps routerDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(deps.metricsSvc, "/metrics"))

	r.GET("/health", deps.metrics.Health)
	r.GET("/ready", deps.metrics.Ready)
	r.GET("/metrics", deps.metrics.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	// Signed tokens authorize downloads on their own.
	api.GET("/exports/:token", deps.exports.Download)

	timetables := api.Group("/timetables")
	writers := []gin.HandlerFunc{}
	readers := []gin.HandlerFunc{}
	if deps.tokens != nil {
		timetables.Use(internalmiddleware.JWT(deps.tokens))
		writers = append(writers, internalmiddleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin))
		readers = append(readers, internalmiddleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin, models.RoleTeacher))
	}

	timetables.POST("/generate", append(writers, deps.timetables.Generate)...)
	timetables.POST("/feasibility", append(writers, deps.timetables.Feasibility)...)
	timetables.POST("/jobs", append(writers, deps.timetables.SubmitJob)...)
	timetables.GET("/jobs/:id", append(readers, deps.timetables.Get)...)
	timetables.GET("", append(readers, deps.timetables.List)...)
	timetables.GET("/:id", append(readers, deps.timetables.Get)...)
	timetables.POST("/:id/exports", append(writers, deps.exports.Create)...)

	return r
}
