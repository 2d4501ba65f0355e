package regrade

import (
	"time"
)

// Message senders.
const (
	SenderStudent = "student"
	SenderStaff   = "staff"
)

// Message is one turn in a regrade conversation. Outcome is nil until the
// classifier has labeled it, and is only meaningful for staff messages.
type Message struct {
	Sender    string    `json:"sender"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	Outcome   *bool     `json:"outcome,omitempty"`
}

// ConversationRecord is the full thread behind one review link.
// Outcome stays nil until PropagateOutcomes runs; it is derived only from
// Messages, Score and Weight.
type ConversationRecord struct {
	Link     string    `json:"link"`
	Messages []Message `json:"messages"`
	Score    float64   `json:"score"`
	Weight   float64   `json:"weight"`
	Outcome  *bool     `json:"outcome"`
}

// LinkMap maps a review link to its conversation record.
type LinkMap map[string]*ConversationRecord

// RequestRef points at one regrade request a student submitted.
type RequestRef struct {
	Question     string `json:"question"`
	Grader       string `json:"grader"`
	QuestionLink string `json:"question_link"`
	ReviewLink   string `json:"review_link"`
}

// StudentSummary aggregates all regrade requests of one student.
// TotalCount counts every submitted comment, including repeat comments on the
// same question; Requests is deduplicated by review link, so
// len(Requests) <= TotalCount always holds.
type StudentSummary struct {
	TotalCount   int          `json:"total_count"`
	Requests     []RequestRef `json:"requests"`
	NumAccepted  int          `json:"num_accepted"`
	NumResponded int          `json:"num_responded"`
}

// SummaryMap maps a student name to their summary row.
type SummaryMap map[string]*StudentSummary

// StaffSummary aggregates request outcomes per grader. Derived on demand,
// never persisted.
type StaffSummary struct {
	NumRequested int `json:"num_requested"`
	NumResponded int `json:"num_responded"`
	NumAccepted  int `json:"num_accepted"`
}

// Metric names for sorting/filtering student statistics.
const (
	MetricTotal  = "total"
	MetricUnique = "unique"
)

// MetricValue returns the requested metric for a student. Unknown metric
// names fall back to the total comment count.
func (s *StudentSummary) MetricValue(metric string) int {
	switch metric {
	case MetricUnique:
		return len(s.Requests)
	default:
		return s.TotalCount
	}
}

func boolPtr(b bool) *bool { return &b }
