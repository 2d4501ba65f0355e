package main

import (
	"github.com/gin-gonic/gin"
	"github.com/gradelens/gradelens/internal/handlers"
	"github.com/gradelens/gradelens/internal/middleware"
	"github.com/gradelens/gradelens/internal/models"
	"github.com/gradelens/gradelens/internal/services"
	"github.com/gradelens/gradelens/pkg/logger"
)

// registerRoutes sets up all HTTP routes on the given Gin engine.
func registerRoutes(r *gin.Engine, svc *appServices) {
	// Middleware
	r.Use(logger.GinLogger(), logger.GinRecovery())
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false
	r.Use(middleware.CORS())

	// Rate limiter for the login route
	loginLimiter := middleware.NewRateLimiter(5, 10)

	// Health check
	healthHandler := handlers.NewHealthHandler()
	r.GET("/health", healthHandler.CheckHealth)

	// API routes
	api := r.Group("/api")
	{
		// Auth routes (public)
		auth := api.Group("/auth")
		{
			auth.POST("/login", loginLimiter.Middleware(), svc.authHandler.Login)
			auth.GET("/config", svc.authHandler.GetAuthConfig)
		}

		// SSE events (public route with internal token validation)
		sseHandler := handlers.NewSSEHandler(services.GetSSEHub())
		api.GET("/events/analyses", sseHandler.StreamAnalysisEvents)

		// Protected routes
		protected := api.Group("")
		protected.Use(middleware.AuthRequired())
		{
			// Auth
			protected.GET("/auth/me", svc.authHandler.GetCurrentUser)
			protected.POST("/auth/logout", svc.authHandler.Logout)
			protected.POST("/auth/change-password", svc.authHandler.ChangePassword)

			// Analyses
			protected.POST("/analyses", svc.analysisHandler.Create)
			protected.GET("/analyses", svc.analysisHandler.List)
			protected.GET("/analyses/:uuid", svc.analysisHandler.Get)
			protected.GET("/analyses/:uuid/students", svc.analysisHandler.Students)
			protected.GET("/analyses/:uuid/staff", svc.analysisHandler.Staff)
			protected.GET("/analyses/:uuid/students/:name/requests", svc.analysisHandler.StudentRequests)
		}

		// Admin only routes
		admin := api.Group("")
		admin.Use(middleware.AuthRequired(), middleware.AdminRequired(), middleware.AuditLog())
		{
			// System Logs
			systemLogHandler := handlers.NewSystemLogHandler(models.GetDB())
			admin.GET("/system-logs", systemLogHandler.List)
			admin.GET("/system-logs/modules", systemLogHandler.GetModules)
		}
	}
}
