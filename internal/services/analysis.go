package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gradelens/gradelens/internal/config"
	"github.com/gradelens/gradelens/internal/models"
	"github.com/gradelens/gradelens/internal/services/gradescope"
	"github.com/gradelens/gradelens/internal/services/regrade"
	"github.com/gradelens/gradelens/pkg/logger"
	"gorm.io/gorm"
)

var assignmentURLRegex = regexp.MustCompile(`.*/courses/(\d+)/assignments/(\d+)`)

// ParseAssignmentURL extracts the course and assignment IDs from a
// Gradescope assignment URL. A URL that does not match is a hard error;
// nothing downstream can run without the two IDs.
func ParseAssignmentURL(raw string) (courseID, assignmentID string, err error) {
	m := assignmentURLRegex.FindStringSubmatch(raw)
	if m == nil {
		return "", "", fmt.Errorf("not a gradescope assignment URL: %q", raw)
	}
	return m[1], m[2], nil
}

// AnalysisOptions are the per-run knobs. Zero values fall back to the
// configured defaults.
type AnalysisOptions struct {
	URL         string `json:"url" binding:"required"`
	Parallelism int    `json:"parallelism"`
	Classify    *bool  `json:"classify"`
	Refresh     bool   `json:"refresh"`
}

// AnalysisResult is the full outcome of one run: the per-student summary
// plus every collected conversation.
type AnalysisResult struct {
	CourseID      string             `json:"course_id"`
	AssignmentID  string             `json:"assignment_id"`
	Students      regrade.SummaryMap `json:"students"`
	Conversations regrade.LinkMap    `json:"conversations"`
	FromCache     bool               `json:"from_cache"`
}

type AnalysisService struct {
	db         *gorm.DB
	cfg        *config.Config
	classifier regrade.Classifier
	cache      *regrade.CacheStore
}

func NewAnalysisService(db *gorm.DB, cfg *config.Config) *AnalysisService {
	return &AnalysisService{
		db:         db,
		cfg:        cfg,
		classifier: NewLLMClassifier(&cfg.Classifier),
		cache:      regrade.NewCacheStore(cfg.Analysis.CacheDir),
	}
}

// CreateRun validates the options and records a pending run. The actual
// work happens later in Run, usually on a queue worker.
func (s *AnalysisService) CreateRun(opts *AnalysisOptions, triggeredBy *uint) (*models.AnalysisRun, error) {
	courseID, assignmentID, err := ParseAssignmentURL(opts.URL)
	if err != nil {
		return nil, err
	}

	parallelism := opts.Parallelism
	if parallelism == 0 {
		parallelism = s.cfg.Analysis.Parallelism
	}
	if parallelism <= 0 {
		return nil, fmt.Errorf("parallelism must be a positive integer, got %d", parallelism)
	}

	classify := s.cfg.Analysis.Classify
	if opts.Classify != nil {
		classify = *opts.Classify
	}

	run := &models.AnalysisRun{
		UUID:         uuid.NewString(),
		CourseID:     courseID,
		AssignmentID: assignmentID,
		URL:          opts.URL,
		Parallelism:  parallelism,
		Classify:     classify,
		Refresh:      opts.Refresh,
		Status:       models.RunStatusPending,
		TriggeredBy:  triggeredBy,
	}
	if err := s.db.Create(run).Error; err != nil {
		return nil, err
	}
	return run, nil
}

// Run executes a previously created analysis run end to end and persists
// its result to the cache and the run row.
func (s *AnalysisService) Run(ctx context.Context, runUUID string) error {
	var run models.AnalysisRun
	if err := s.db.Where("uuid = ?", runUUID).First(&run).Error; err != nil {
		return fmt.Errorf("analysis run %s not found: %w", runUUID, err)
	}

	now := time.Now()
	run.Status = models.RunStatusRunning
	run.StartedAt = &now
	s.db.Save(&run)
	PublishAnalysisEvent(run.ID, run.UUID, run.Status, 0, 0, "")

	result, err := s.execute(ctx, &run)
	finished := time.Now()
	run.FinishedAt = &finished

	if err != nil {
		run.Status = models.RunStatusFailed
		run.ErrorMessage = err.Error()
		s.db.Save(&run)
		PublishAnalysisEvent(run.ID, run.UUID, run.Status, run.Progress, run.TotalLinks, err.Error())
		LogError("Analyses", "Run", fmt.Sprintf("analysis %s failed: %v", run.UUID, err), run.TriggeredBy, "", "", nil)
		return err
	}

	run.Status = models.RunStatusCompleted
	run.FromCache = result.FromCache
	run.NumStudents = len(result.Students)
	run.NumRequests, run.NumAccepted = countOutcomes(result.Students)
	s.db.Save(&run)
	PublishAnalysisEvent(run.ID, run.UUID, run.Status, run.TotalLinks, run.TotalLinks, "")
	return nil
}

func (s *AnalysisService) execute(ctx context.Context, run *models.AnalysisRun) (*AnalysisResult, error) {
	if !run.Refresh {
		if result, err := s.loadCached(run.CourseID, run.AssignmentID); err == nil {
			logger.Info().
				Str("course", run.CourseID).
				Str("assignment", run.AssignmentID).
				Msg("serving analysis from cache")
			return result, nil
		} else if !errors.Is(err, regrade.ErrCacheMiss) {
			return nil, fmt.Errorf("corrupt cache for %s_%s: %w", run.CourseID, run.AssignmentID, err)
		}
	}

	client, err := gradescope.NewClient(&s.cfg.Gradescope)
	if err != nil {
		return nil, err
	}
	if err := client.Login(ctx); err != nil {
		return nil, fmt.Errorf("gradescope login failed: %w", err)
	}

	summaryURL := fmt.Sprintf("%s/courses/%s/assignments/%s/regrade_requests",
		strings.TrimRight(client.BaseURL(), "/"), run.CourseID, run.AssignmentID)

	page, err := client.FetchPage(ctx, summaryURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch regrade summary: %w", err)
	}

	students, err := regrade.ParseSummaryPage(page, client.BaseURL())
	if err != nil {
		return nil, err
	}

	links := collectLinks(students)
	run.TotalLinks = len(links)
	s.db.Save(run)

	logger.Info().
		Int("students", len(students)).
		Int("links", len(links)).
		Int("parallelism", run.Parallelism).
		Msg("collecting regrade conversations")

	// Progress events ride on the fetch function so the worker pool stays
	// oblivious to them.
	var fetched int64
	fetch := func(ctx context.Context, link string) ([]byte, error) {
		body, err := client.FetchPage(ctx, link)
		n := int(atomic.AddInt64(&fetched, 1))
		PublishAnalysisEvent(run.ID, run.UUID, models.RunStatusRunning, n, len(links), "")
		return body, err
	}

	linkMap, err := regrade.Collect(ctx, links, fetch, run.Parallelism)
	if err != nil {
		return nil, err
	}
	run.Progress = len(links)

	if run.Classify {
		if err := regrade.ClassifyOutcomes(ctx, linkMap, s.classifier); err != nil {
			logger.Warn().Err(err).Msg("classification unavailable, outcomes left unresolved")
		} else {
			regrade.PropagateOutcomes(linkMap)
		}
	}

	regrade.ComputeStudentStats(students, linkMap)

	if err := s.cache.Save(run.CourseID, run.AssignmentID, students, linkMap); err != nil {
		logger.Warn().Err(err).Msg("failed to write analysis cache")
	}

	return &AnalysisResult{
		CourseID:      run.CourseID,
		AssignmentID:  run.AssignmentID,
		Students:      students,
		Conversations: linkMap,
	}, nil
}

// Result returns the stored outcome of a completed run.
func (s *AnalysisService) Result(courseID, assignmentID string) (*AnalysisResult, error) {
	return s.loadCached(courseID, assignmentID)
}

func (s *AnalysisService) loadCached(courseID, assignmentID string) (*AnalysisResult, error) {
	students, conversations, err := s.cache.Load(courseID, assignmentID)
	if err != nil {
		return nil, err
	}
	return &AnalysisResult{
		CourseID:      courseID,
		AssignmentID:  assignmentID,
		Students:      students,
		Conversations: conversations,
		FromCache:     true,
	}, nil
}

// collectLinks flattens every student's review links into one slice.
// Duplicates are fine; the collector collapses them.
func collectLinks(students regrade.SummaryMap) []string {
	var links []string
	for _, summary := range students {
		for _, req := range summary.Requests {
			if req.ReviewLink != "" {
				links = append(links, req.ReviewLink)
			}
		}
	}
	return links
}

func countOutcomes(students regrade.SummaryMap) (requests, accepted int) {
	for _, summary := range students {
		requests += len(summary.Requests)
		accepted += summary.NumAccepted
	}
	return requests, accepted
}

// StudentStatRow is one line of the per-student report.
type StudentStatRow struct {
	Name         string `json:"name"`
	Requests     int    `json:"requests"`
	NumResponded int    `json:"num_responded"`
	NumAccepted  int    `json:"num_accepted"`
}

// StudentRows builds the per-student report view. minRequests filters rows
// below the threshold; metric picks between total rows seen and unique
// conversations. Rows are sorted by the chosen metric, descending, then by
// name for stable output.
func StudentRows(students regrade.SummaryMap, minRequests int, metric string) []StudentStatRow {
	rows := make([]StudentStatRow, 0, len(students))
	for name, summary := range students {
		count := summary.MetricValue(metric)
		if count < minRequests {
			continue
		}
		rows = append(rows, StudentStatRow{
			Name:         name,
			Requests:     count,
			NumResponded: summary.NumResponded,
			NumAccepted:  summary.NumAccepted,
		})
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Requests != rows[j].Requests {
			return rows[i].Requests > rows[j].Requests
		}
		return rows[i].Name < rows[j].Name
	})
	return rows
}

// StaffStatRow is one line of the per-grader report.
type StaffStatRow struct {
	Name         string `json:"name"`
	NumRequested int    `json:"num_requested"`
	NumResponded int    `json:"num_responded"`
	NumAccepted  int    `json:"num_accepted"`
}

// StaffRows builds the per-grader report view, sorted by requests handled.
func StaffRows(students regrade.SummaryMap, conversations regrade.LinkMap) []StaffStatRow {
	stats := regrade.ComputeStaffStats(students, conversations)

	rows := make([]StaffStatRow, 0, len(stats))
	for name, st := range stats {
		rows = append(rows, StaffStatRow{
			Name:         name,
			NumRequested: st.NumRequested,
			NumResponded: st.NumResponded,
			NumAccepted:  st.NumAccepted,
		})
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].NumRequested != rows[j].NumRequested {
			return rows[i].NumRequested > rows[j].NumRequested
		}
		return rows[i].Name < rows[j].Name
	})
	return rows
}
