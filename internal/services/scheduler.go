package services

import (
	"fmt"
	"time"

	"github.com/gradelens/gradelens/internal/config"
	"github.com/gradelens/gradelens/internal/models"
	"github.com/gradelens/gradelens/pkg/logger"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// RefreshScheduler periodically re-runs the analysis for every assignment
// seen before, so cached results keep tracking fresh regrade activity.
// Refreshes are skipped on holidays: nobody grades then, so a crawl would
// only duplicate the previous result.
type RefreshScheduler struct {
	db       *gorm.DB
	cfg      *config.AnalysisConfig
	analysis *AnalysisService
	holidays *HolidayService
	cron     *cron.Cron
}

func NewRefreshScheduler(db *gorm.DB, cfg *config.AnalysisConfig, analysis *AnalysisService) *RefreshScheduler {
	return &RefreshScheduler{
		db:       db,
		cfg:      cfg,
		analysis: analysis,
		holidays: NewHolidayService(),
	}
}

// Start registers the cron entry and begins scheduling. A blank cron spec
// disables auto-refresh entirely.
func (s *RefreshScheduler) Start() error {
	if s.cfg.RefreshCron == "" {
		logger.Info().Msg("auto-refresh disabled (no cron spec configured)")
		return nil
	}

	s.cron = cron.New()
	if _, err := s.cron.AddFunc(s.cfg.RefreshCron, s.refreshAll); err != nil {
		return fmt.Errorf("invalid refresh cron spec %q: %w", s.cfg.RefreshCron, err)
	}

	s.cron.Start()
	logger.Info().Str("spec", s.cfg.RefreshCron).Msg("auto-refresh scheduler started")
	return nil
}

func (s *RefreshScheduler) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
}

func (s *RefreshScheduler) refreshAll() {
	if s.holidays.IsHoliday(time.Now(), s.cfg.HolidayCountry) {
		logger.Info().Str("country", s.cfg.HolidayCountry).Msg("skipping auto-refresh on holiday")
		return
	}

	urls, err := s.trackedAssignments()
	if err != nil {
		logger.Error().Err(err).Msg("failed to list tracked assignments")
		return
	}

	for _, u := range urls {
		run, err := s.analysis.CreateRun(&AnalysisOptions{URL: u, Refresh: true}, nil)
		if err != nil {
			logger.Warn().Err(err).Str("url", u).Msg("failed to schedule refresh run")
			continue
		}

		if queue := GetTaskQueue(); queue != nil {
			if err := queue.Enqueue(&AnalysisTask{RunUUID: run.UUID}); err != nil {
				logger.Warn().Err(err).Str("run", run.UUID).Msg("failed to enqueue refresh run")
			}
		}
	}

	if len(urls) > 0 {
		logger.Info().Int("assignments", len(urls)).Msg("auto-refresh runs scheduled")
	}
}

// trackedAssignments returns the URL of the latest completed run per
// course/assignment pair.
func (s *RefreshScheduler) trackedAssignments() ([]string, error) {
	var runs []models.AnalysisRun
	err := s.db.
		Where("status = ?", models.RunStatusCompleted).
		Order("created_at DESC").
		Find(&runs).Error
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var urls []string
	for _, run := range runs {
		key := run.CourseID + "_" + run.AssignmentID
		if seen[key] {
			continue
		}
		seen[key] = true
		urls = append(urls, run.URL)
	}
	return urls, nil
}
