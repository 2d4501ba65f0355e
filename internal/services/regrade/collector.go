package regrade

import (
	"context"
	"fmt"
	"sync"

	"github.com/gradelens/gradelens/pkg/logger"
)

// FetchFunc retrieves the raw HTML of one review page. Implementations are
// expected to apply their own bounded timeout per request.
type FetchFunc func(ctx context.Context, link string) ([]byte, error)

// DefaultParallelism is the worker count used when callers do not override it.
const DefaultParallelism = 10

// Collect fans fetch-and-parse units out over the given review links and
// returns one ConversationRecord per link. A fetch or parse failure on a
// single link produces an empty record for that link and never aborts the
// run. The output map has exactly one entry per unique input link.
func Collect(ctx context.Context, links []string, fetch FetchFunc, parallelism int) (LinkMap, error) {
	if parallelism <= 0 {
		return nil, fmt.Errorf("invalid parallelism %d: must be a positive integer", parallelism)
	}

	unique := make([]string, 0, len(links))
	seen := make(map[string]bool, len(links))
	for _, link := range links {
		if !seen[link] {
			seen[link] = true
			unique = append(unique, link)
		}
	}

	jobs := make(chan string)
	results := make(chan *ConversationRecord)

	var wg sync.WaitGroup
	for i := 0; i < parallelism; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for link := range jobs {
				results <- collectOne(ctx, link, fetch)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, link := range unique {
			select {
			case jobs <- link:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	// Gather on the calling goroutine only; workers share no state.
	linkMap := make(LinkMap, len(unique))
	for record := range results {
		linkMap[record.Link] = record
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return linkMap, nil
}

// collectOne fetches and parses a single review page. Any failure degrades
// to an empty record so the rest of the run can proceed.
func collectOne(ctx context.Context, link string, fetch FetchFunc) *ConversationRecord {
	page, err := fetch(ctx, link)
	if err != nil {
		logger.Warn().Str("link", link).Err(err).Msg("review page fetch failed")
		return emptyRecord(link)
	}

	record, err := ParseConversationPage(link, page)
	if err != nil {
		logger.Warn().Str("link", link).Err(err).Msg("review page parse failed")
		return emptyRecord(link)
	}
	return record
}

func emptyRecord(link string) *ConversationRecord {
	return &ConversationRecord{
		Link:     link,
		Messages: []Message{},
		Score:    0,
		Weight:   0,
	}
}
