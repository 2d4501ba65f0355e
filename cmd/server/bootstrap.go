package main

import (
	"context"

	"github.com/gradelens/gradelens/internal/config"
	"github.com/gradelens/gradelens/internal/handlers"
	"github.com/gradelens/gradelens/internal/models"
	"github.com/gradelens/gradelens/internal/services"
	"github.com/gradelens/gradelens/internal/utils"
	"github.com/gradelens/gradelens/pkg/logger"
)

// appServices holds all initialized services and handlers needed by the application.
type appServices struct {
	cfg              *config.Config
	analysisService  *services.AnalysisService
	refreshScheduler *services.RefreshScheduler
	taskQueue        services.TaskQueue
	worker           *services.Worker
	authHandler      *handlers.AuthHandler
	analysisHandler  *handlers.AnalysisHandler
}

// bootstrap initializes all application dependencies: database, services, schedulers.
func bootstrap(cfg *config.Config) *appServices {
	utils.SetJWTSecret(cfg.JWT.Secret)

	// Initialize database
	if err := models.InitDB(&cfg.Database); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	// Auto migrate database
	if err := models.AutoMigrate(); err != nil {
		logger.Fatalf("Failed to migrate database: %v", err)
	}

	// Initialize system logger
	services.InitSystemLogger(models.GetDB())

	// Start system log cleanup scheduler
	services.StartLogCleanupScheduler(models.GetDB())

	analysisService := services.NewAnalysisService(models.GetDB(), cfg)
	processTask := func(ctx context.Context, task *services.AnalysisTask) error {
		return analysisService.Run(ctx, task.RunUUID)
	}

	// Initialize task queue (uses Redis if enabled, otherwise sync mode)
	taskQueue := services.InitTaskQueue(cfg)
	if syncQueue, ok := taskQueue.(*services.SyncQueue); ok {
		syncQueue.SetProcessor(processTask)
	}

	// Start async worker if Redis is enabled
	var worker *services.Worker
	if cfg.Redis.Enabled {
		worker = services.InitWorker(&cfg.Redis)
		if worker != nil {
			worker.SetProcessor(processTask)
			if err := worker.Start(); err != nil {
				logger.Warn().Err(err).Msg("Failed to start async worker")
			}
		}
	}

	// Start the periodic re-crawl scheduler for tracked assignments
	refreshScheduler := services.NewRefreshScheduler(models.GetDB(), &cfg.Analysis, analysisService)
	if err := refreshScheduler.Start(); err != nil {
		logger.Warn().Err(err).Msg("Failed to start refresh scheduler")
	}

	// Create default admin user
	authHandler := handlers.NewAuthHandler(models.GetDB(), cfg)
	if err := authHandler.CreateAdminIfNotExists(); err != nil {
		logger.Warn().Err(err).Msg("Failed to create admin user")
	}

	return &appServices{
		cfg:              cfg,
		analysisService:  analysisService,
		refreshScheduler: refreshScheduler,
		taskQueue:        taskQueue,
		worker:           worker,
		authHandler:      authHandler,
		analysisHandler:  handlers.NewAnalysisHandler(models.GetDB(), cfg, analysisService),
	}
}

// shutdown gracefully stops all services.
func (s *appServices) shutdown() {
	s.refreshScheduler.Stop()
	logger.Info().Msg("All schedulers stopped")

	if s.worker != nil {
		s.worker.Stop()
	}
	if s.taskQueue != nil {
		s.taskQueue.Close()
	}
}
