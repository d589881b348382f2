package server

import (
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"gorm.io/gorm"

	"github.com/caihaoran-00/xiaojilu/internal/handler"
	"github.com/caihaoran-00/xiaojilu/internal/imagestore"
	"github.com/caihaoran-00/xiaojilu/internal/middleware"
	"github.com/caihaoran-00/xiaojilu/pkg/config"
	"github.com/caihaoran-00/xiaojilu/pkg/logger"
	"github.com/caihaoran-00/xiaojilu/prometheus"
)

// New assembles the Echo instance: middleware chain, route table and static
// serving. main and the handler tests share this wiring.
func New(cfg *config.Config, db *gorm.DB, store *imagestore.Store, now handler.Clock) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	// Apply global middleware - order matters
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	e.Use(middleware.RequestIDMiddleware)
	e.Use(logger.Middleware())
	e.Use(prometheus.MetricsMiddleware())

	authHandler := handler.NewAuthHandler(db, cfg.Auth.AdminPassword)
	instantHandler := handler.NewInstantHandler(db, store, now)
	durationHandler := handler.NewDurationHandler(db, store, now)
	overviewHandler := handler.NewOverviewHandler(db, now)
	imageHandler := handler.NewImageHandler(db, store, now)
	adminHandler := handler.NewAdminHandler(db, store)

	// Public routes - no authentication required
	e.GET("/health", handler.HealthCheck)
	e.GET("/metrics", handler.MetricsHandler)
	e.POST("/api/auth", authHandler.Login)
	e.POST("/api/admin/auth", authHandler.AdminLogin)

	// Family-scoped routes - require the shared family secret
	api := e.Group("/api")
	api.Use(middleware.FamilyAuth(db))

	api.POST("/instant", instantHandler.Create)
	api.GET("/instant", instantHandler.List)
	api.DELETE("/instant/:id", instantHandler.Delete)

	api.POST("/duration/start", durationHandler.Start)
	api.POST("/duration/end/:id", durationHandler.End)
	api.PUT("/duration/:id", durationHandler.Update)
	api.GET("/duration", durationHandler.List)
	api.DELETE("/duration/:id", durationHandler.Delete)

	api.GET("/active", durationHandler.Active)
	api.GET("/today", overviewHandler.Today)
	api.GET("/recent", overviewHandler.Recent)

	api.POST("/upload", imageHandler.Upload)
	api.GET("/images/:record_type/:record_id", imageHandler.List)
	api.DELETE("/images/:id", imageHandler.Delete)

	// Admin routes - require the administrative secret
	admin := e.Group("/api/admin/families")
	admin.Use(middleware.AdminAuth(cfg.Auth.AdminPassword))
	admin.GET("", adminHandler.ListFamilies)
	admin.POST("", adminHandler.CreateFamily)
	admin.PUT("/:id", adminHandler.UpdateFamily)
	admin.DELETE("/:id", adminHandler.DeleteFamily)

	// Uploaded images and the SPA shell; HTML5 mode serves index.html for
	// any unmatched route.
	e.Static("/uploads", store.Dir())
	e.Use(echomiddleware.StaticWithConfig(echomiddleware.StaticConfig{
		Root:  "public",
		HTML5: true,
	}))

	return e
}
