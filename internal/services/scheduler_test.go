package services

import (
	"testing"
	"time"

	"github.com/gradelens/gradelens/internal/config"
	"github.com/gradelens/gradelens/internal/models"
)

func TestHolidayService_Weekend(t *testing.T) {
	svc := NewHolidayService()

	// 2026-08-22 is a Saturday
	saturday := time.Date(2026, 8, 22, 12, 0, 0, 0, time.UTC)
	if svc.IsWorkday(saturday, "US") {
		t.Error("Saturday should not be a workday in the US")
	}
	if svc.IsWorkday(saturday, "NONE") {
		t.Error("Saturday should not be a workday with NONE calendar")
	}
}

func TestHolidayService_USIndependenceDay(t *testing.T) {
	svc := NewHolidayService()

	// 2025-07-04 fell on a Friday
	fourth := time.Date(2025, 7, 4, 12, 0, 0, 0, time.UTC)
	if svc.IsWorkday(fourth, "US") {
		t.Error("July 4th should be a US holiday")
	}
	if !svc.IsHoliday(fourth, "US") {
		t.Error("IsHoliday should mirror IsWorkday")
	}
}

func TestHolidayService_UnknownCountryFallsBackToWeekdays(t *testing.T) {
	svc := NewHolidayService()

	// A plain Wednesday
	wednesday := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	if !svc.IsWorkday(wednesday, "XX") {
		t.Error("unknown country code should fall back to weekday check")
	}
}

func TestHolidayService_SupportedCountries(t *testing.T) {
	countries := NewHolidayService().GetSupportedCountries()
	if len(countries) == 0 {
		t.Fatal("expected a non-empty country list")
	}

	seen := make(map[string]bool)
	for _, c := range countries {
		seen[c.Code] = true
	}
	for _, code := range []string{"US", "CN", "NONE"} {
		if !seen[code] {
			t.Errorf("country list should include %q", code)
		}
	}
}

func TestTrackedAssignments_DedupesPerAssignment(t *testing.T) {
	svc := newTestAnalysisService(t)

	runs := []models.AnalysisRun{
		{UUID: "a", CourseID: "1", AssignmentID: "10", URL: "https://g/courses/1/assignments/10", Status: models.RunStatusCompleted},
		{UUID: "b", CourseID: "1", AssignmentID: "10", URL: "https://g/courses/1/assignments/10", Status: models.RunStatusCompleted},
		{UUID: "c", CourseID: "2", AssignmentID: "20", URL: "https://g/courses/2/assignments/20", Status: models.RunStatusCompleted},
		{UUID: "d", CourseID: "3", AssignmentID: "30", URL: "https://g/courses/3/assignments/30", Status: models.RunStatusFailed},
	}
	for i := range runs {
		if err := svc.db.Create(&runs[i]).Error; err != nil {
			t.Fatal(err)
		}
	}

	scheduler := NewRefreshScheduler(svc.db, &config.AnalysisConfig{HolidayCountry: "US"}, svc)

	urls, err := scheduler.trackedAssignments()
	if err != nil {
		t.Fatalf("trackedAssignments() error = %v", err)
	}

	if len(urls) != 2 {
		t.Fatalf("expected 2 tracked assignments, got %d: %v", len(urls), urls)
	}
	for _, u := range urls {
		if u == "https://g/courses/3/assignments/30" {
			t.Error("failed runs should not be tracked")
		}
	}
}

func TestRefreshScheduler_EmptySpecDisabled(t *testing.T) {
	svc := newTestAnalysisService(t)
	scheduler := NewRefreshScheduler(svc.db, &config.AnalysisConfig{RefreshCron: ""}, svc)

	if err := scheduler.Start(); err != nil {
		t.Errorf("Start() with empty spec should be a no-op, got %v", err)
	}
	scheduler.Stop()
}

func TestRefreshScheduler_InvalidSpec(t *testing.T) {
	svc := newTestAnalysisService(t)
	scheduler := NewRefreshScheduler(svc.db, &config.AnalysisConfig{RefreshCron: "not a cron spec"}, svc)

	if err := scheduler.Start(); err == nil {
		t.Error("Start() with a bad cron spec should fail")
	}
}
