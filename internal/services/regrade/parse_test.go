package regrade

import (
	"testing"
	"time"
)

const summaryPageFixture = `
<html><body>
<table class="js-regradeRequestsTable">
<tbody>
<tr>
  <td>Ada Lovelace</td><td>ignored</td>
  <td><a href="/courses/1/assignments/2/questions/3">Q3: Induction</a></td>
  <td> Grace Hopper </td><td>ignored</td>
  <td><a href="/courses/1/questions/3/submissions/9/review">review</a></td>
</tr>
<tr>
  <td>Ada Lovelace</td><td>ignored</td>
  <td><a href="/courses/1/assignments/2/questions/3">Q3: Induction</a></td>
  <td> Grace Hopper </td><td>ignored</td>
  <td><a href="/courses/1/questions/3/submissions/9/review">review</a></td>
</tr>
<tr>
  <td>Ada Lovelace</td><td>ignored</td>
  <td><a href="/courses/1/assignments/2/questions/4">Q4: Recursion</a></td>
  <td>Alan Turing</td><td>ignored</td>
  <td><a href="/courses/1/questions/4/submissions/9/review">review</a></td>
</tr>
<tr>
  <td>Charles Babbage</td><td>ignored</td>
  <td><a href="/courses/1/assignments/2/questions/3">Q3: Induction</a></td>
  <td>Grace Hopper</td><td>ignored</td>
  <td><a href="/courses/1/questions/3/submissions/12/review">review</a></td>
</tr>
</tbody>
</table>
</body></html>`

func TestParseSummaryPage(t *testing.T) {
	summary, err := ParseSummaryPage([]byte(summaryPageFixture), "https://www.gradescope.com")
	if err != nil {
		t.Fatalf("ParseSummaryPage() error = %v", err)
	}

	if len(summary) != 2 {
		t.Fatalf("expected 2 students, got %d", len(summary))
	}

	ada := summary["Ada Lovelace"]
	if ada == nil {
		t.Fatal("missing summary row for Ada Lovelace")
	}
	if ada.TotalCount != 3 {
		t.Errorf("TotalCount = %d, expected 3 (duplicates count)", ada.TotalCount)
	}
	if len(ada.Requests) != 2 {
		t.Fatalf("len(Requests) = %d, expected 2 (deduplicated by review link)", len(ada.Requests))
	}
	if ada.Requests[0].ReviewLink != "https://www.gradescope.com/courses/1/questions/3/submissions/9/review" {
		t.Errorf("unexpected review link %q", ada.Requests[0].ReviewLink)
	}
	if ada.Requests[0].Grader != "Grace Hopper" {
		t.Errorf("Grader = %q, expected trimmed name", ada.Requests[0].Grader)
	}
	if ada.Requests[1].Question != "Q4: Recursion" {
		t.Errorf("Question = %q", ada.Requests[1].Question)
	}

	babbage := summary["Charles Babbage"]
	if babbage == nil || babbage.TotalCount != 1 || len(babbage.Requests) != 1 {
		t.Errorf("unexpected row for Charles Babbage: %+v", babbage)
	}
}

func TestParseSummaryPage_NoTable(t *testing.T) {
	_, err := ParseSummaryPage([]byte("<html><body><p>nope</p></body></html>"), "https://www.gradescope.com")
	if err == nil {
		t.Error("expected error for page without regrade table")
	}
}

const conversationPageFixture = `
<html><body>
<div data-react-class="SubmissionGrader" data-react-props='{
  "open_request": {
    "student_comment": "Please look at part b again.",
    "staff_comment": null,
    "created_at": "2024-03-03T10:00:00-08:00",
    "updated_at": "2024-03-03T10:00:00-08:00"
  },
  "closed_requests": [
    {
      "student_comment": "I think my proof is correct.",
      "staff_comment": "Regraded, points restored.",
      "created_at": "2024-03-01T09:00:00-08:00",
      "updated_at": "2024-03-02T14:30:00-08:00"
    }
  ],
  "submission": {"score": "7.5"},
  "question": {"weight": 10}
}'></div>
</body></html>`

func TestParseConversationPage(t *testing.T) {
	record, err := ParseConversationPage("https://example.com/review", []byte(conversationPageFixture))
	if err != nil {
		t.Fatalf("ParseConversationPage() error = %v", err)
	}

	if record.Score != 7.5 {
		t.Errorf("Score = %v, expected 7.5 (string-encoded number)", record.Score)
	}
	if record.Weight != 10 {
		t.Errorf("Weight = %v, expected 10", record.Weight)
	}
	if record.Outcome != nil {
		t.Error("Outcome should be nil before propagation")
	}

	if len(record.Messages) != 3 {
		t.Fatalf("len(Messages) = %d, expected 3", len(record.Messages))
	}

	// Merged across open + closed requests and sorted by timestamp.
	for i := 1; i < len(record.Messages); i++ {
		if record.Messages[i].Timestamp.Before(record.Messages[i-1].Timestamp) {
			t.Errorf("messages not sorted by timestamp at index %d", i)
		}
	}
	if record.Messages[0].Sender != SenderStudent || record.Messages[0].Text != "I think my proof is correct." {
		t.Errorf("unexpected first message: %+v", record.Messages[0])
	}
	if record.Messages[1].Sender != SenderStaff {
		t.Errorf("second message should be the staff reply, got %+v", record.Messages[1])
	}
	if record.Messages[2].Text != "Please look at part b again." {
		t.Errorf("unexpected last message: %+v", record.Messages[2])
	}
}

func TestParseConversationPage_MissingPayload(t *testing.T) {
	_, err := ParseConversationPage("link", []byte("<html><body><div>no grader here</div></body></html>"))
	if err == nil {
		t.Error("expected error when grader payload is missing")
	}
}

func TestParseISOTime(t *testing.T) {
	ts := parseISOTime("2024-03-02T14:30:00-08:00")
	if ts.IsZero() {
		t.Fatal("RFC3339 timestamp should parse")
	}
	want := time.Date(2024, 3, 2, 14, 30, 0, 0, time.FixedZone("", -8*3600))
	if !ts.Equal(want) {
		t.Errorf("parsed %v, expected %v", ts, want)
	}

	if !parseISOTime("garbage").IsZero() {
		t.Error("unparseable timestamp should produce the zero time")
	}
}
