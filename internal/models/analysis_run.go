package models

import (
	"time"

	"gorm.io/gorm"
)

// Run statuses.
const (
	RunStatusPending   = "pending"
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// AnalysisRun records one regrade analysis of a Gradescope assignment.
type AnalysisRun struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	UUID         string         `gorm:"size:64;uniqueIndex;not null" json:"uuid"`
	CourseID     string         `gorm:"size:50;index" json:"course_id"`
	AssignmentID string         `gorm:"size:50;index" json:"assignment_id"`
	URL          string         `gorm:"size:500" json:"url"`
	Parallelism  int            `json:"parallelism"`
	Classify     bool           `json:"classify"`
	Refresh      bool           `json:"refresh"`
	FromCache    bool           `json:"from_cache"`
	Status       string         `gorm:"size:50;default:pending;index" json:"status"`
	Progress     int            `json:"progress"` // conversation pages fetched so far
	TotalLinks   int            `json:"total_links"`
	NumStudents  int            `json:"num_students"`
	NumRequests  int            `json:"num_requests"`
	NumAccepted  int            `json:"num_accepted"`
	ErrorMessage string         `gorm:"type:text" json:"error_message"`
	TriggeredBy  *uint          `json:"triggered_by"` // user ID, nil for scheduled runs
	StartedAt    *time.Time     `json:"started_at"`
	FinishedAt   *time.Time     `json:"finished_at"`
	CreatedAt    time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}

func (AnalysisRun) TableName() string { return "analysis_runs" }
