package regrade

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gradelens/gradelens/pkg/logger"
)

// summaryTableSelector matches the regrade-requests table on the assignment
// summary page. Column layout: 0 student name, 2 question, 3 grader, 5 review.
const summaryTableSelector = "table.js-regradeRequestsTable"

// graderPropsSelector matches the React mount point on a review page whose
// data-react-props attribute carries the conversation payload.
const graderPropsSelector = "div[data-react-class=SubmissionGrader]"

// ParseSummaryPage extracts one StudentSummary row per student from the
// regrade-requests table. Every table row increments the student's
// TotalCount; Requests only grows for review links not seen before for that
// student. Relative links are resolved against base.
func ParseSummaryPage(page []byte, base string) (SummaryMap, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("parse summary page: %w", err)
	}

	table := doc.Find(summaryTableSelector).First()
	if table.Length() == 0 {
		return nil, fmt.Errorf("regrade requests table not found")
	}

	baseURL, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", base, err)
	}

	summary := make(SummaryMap)
	seenLinks := make(map[string]map[string]bool)

	table.Find("tbody tr").Each(func(_ int, row *goquery.Selection) {
		cols := row.Find("td")
		if cols.Length() < 6 {
			return
		}

		name := cols.Eq(0).Text()
		if summary[name] == nil {
			summary[name] = &StudentSummary{Requests: []RequestRef{}}
			seenLinks[name] = make(map[string]bool)
		}

		questionTag := cols.Eq(2).Find("a").First()
		questionHref, hasQuestion := questionTag.Attr("href")
		if !hasQuestion {
			logger.Warn().Str("student", name).Msg("question link not found in summary row")
			return
		}

		reviewTag := cols.Eq(5).Find("a").First()
		reviewHref, hasReview := reviewTag.Attr("href")
		if !hasReview {
			logger.Warn().Str("student", name).Msg("review link not found in summary row")
			return
		}
		reviewLink := resolveLink(baseURL, reviewHref)

		// Every comment counts, even repeat comments on the same question.
		summary[name].TotalCount++

		if seenLinks[name][reviewLink] {
			return
		}
		seenLinks[name][reviewLink] = true

		summary[name].Requests = append(summary[name].Requests, RequestRef{
			Question:     questionTag.Text(),
			Grader:       trimmedText(cols.Eq(3)),
			QuestionLink: resolveLink(baseURL, questionHref),
			ReviewLink:   reviewLink,
		})
	})

	return summary, nil
}

// graderProps mirrors the JSON payload embedded in a review page.
type graderProps struct {
	OpenRequest    *regradeRequestProps  `json:"open_request"`
	ClosedRequests []regradeRequestProps `json:"closed_requests"`
	Submission     struct {
		Score flexFloat `json:"score"`
	} `json:"submission"`
	Question struct {
		Weight flexFloat `json:"weight"`
	} `json:"question"`
}

type regradeRequestProps struct {
	StudentComment *string `json:"student_comment"`
	StaffComment   *string `json:"staff_comment"`
	CreatedAt      string  `json:"created_at"`
	UpdatedAt      string  `json:"updated_at"`
}

// ParseConversationPage turns a raw review page into a ConversationRecord.
// Messages from the open request and all closed requests are merged into one
// flat sequence sorted by timestamp; the sort is stable so ties keep the
// open-request-first discovery order.
func ParseConversationPage(link string, page []byte) (*ConversationRecord, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("parse review page: %w", err)
	}

	props, ok := doc.Find(graderPropsSelector).First().Attr("data-react-props")
	if !ok {
		return nil, fmt.Errorf("submission grader payload not found in %s", link)
	}

	var payload graderProps
	if err := json.Unmarshal([]byte(props), &payload); err != nil {
		return nil, fmt.Errorf("decode grader payload for %s: %w", link, err)
	}

	messages := requestMessages(payload.OpenRequest)
	for i := range payload.ClosedRequests {
		messages = append(messages, requestMessages(&payload.ClosedRequests[i])...)
	}
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].Timestamp.Before(messages[j].Timestamp)
	})

	return &ConversationRecord{
		Link:     link,
		Messages: messages,
		Score:    float64(payload.Submission.Score),
		Weight:   float64(payload.Question.Weight),
	}, nil
}

// requestMessages expands one request object into its student comment (at
// created_at) and staff reply (at updated_at), skipping absent comments.
func requestMessages(req *regradeRequestProps) []Message {
	if req == nil {
		return nil
	}

	var messages []Message
	if req.StudentComment != nil {
		messages = append(messages, Message{
			Sender:    SenderStudent,
			Text:      *req.StudentComment,
			Timestamp: parseISOTime(req.CreatedAt),
		})
	}
	if req.StaffComment != nil {
		messages = append(messages, Message{
			Sender:    SenderStaff,
			Text:      *req.StaffComment,
			Timestamp: parseISOTime(req.UpdatedAt),
		})
	}
	return messages
}

var isoLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05 -0700",
}

func parseISOTime(value string) time.Time {
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	logger.Warn().Str("value", value).Msg("unparseable timestamp in review payload")
	return time.Time{}
}

func resolveLink(base *url.URL, href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

func trimmedText(sel *goquery.Selection) string {
	return strings.TrimSpace(sel.Text())
}

// flexFloat decodes JSON numbers that Gradescope sometimes serializes as
// strings ("10.0") and sometimes as numbers (10).
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	s := string(bytes.Trim(data, `"`))
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}
