package api

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tactusapp/tactus-api/internal/api/handlers"
	apimiddleware "github.com/tactusapp/tactus-api/internal/api/middleware"
	"github.com/tactusapp/tactus-api/internal/config"
	"github.com/tactusapp/tactus-api/internal/middleware"
)

func SetupRouter(db *gorm.DB, cfg *config.Config) *gin.Engine {
	router := gin.New()

	// Recovery middleware (must be first)
	router.Use(apimiddleware.RecoverWithSentry())

	// Sentry middleware for error tracking
	router.Use(apimiddleware.SentryMiddleware())

	// Request tracking and structured logging
	router.Use(apimiddleware.RequestTracking())

	// CORS middleware
	router.Use(apimiddleware.CORS())

	// Health check
	healthHandler := handlers.NewHealthHandler(db)
	router.GET("/health", healthHandler.HealthCheck)

	timelineHandler := handlers.NewTimelineHandler(db)

	apiGroup := router.Group("/api")
	apiGroup.Use(middleware.Auth(cfg))
	{
		apiGroup.POST("/scores", timelineHandler.CreateScore)
		apiGroup.GET("/scores/:id/timeline", timelineHandler.GetTimeline)
		apiGroup.GET("/scores/:id/tempo-groups", timelineHandler.GetTempoGroups)
		apiGroup.POST("/scores/:id/tempo-groups", timelineHandler.CreateTempoGroup)
		apiGroup.PUT("/scores/:id/tempo-groups", timelineHandler.UpdateTempoGroup)
	}

	return router
}
