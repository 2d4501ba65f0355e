package regrade

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrCacheMiss reports that no cache file exists for the requested
// course/assignment pair. Any other load error means the file exists but is
// unreadable or corrupt, which is fatal for the run.
var ErrCacheMiss = errors.New("cache miss")

// CacheStore persists analysis results as one JSON file per
// (course, assignment) pair.
type CacheStore struct {
	dir string
}

func NewCacheStore(dir string) *CacheStore {
	return &CacheStore{dir: dir}
}

// cacheEnvelope is the cache file layout: exactly two top-level keys.
type cacheEnvelope struct {
	Students      SummaryMap `json:"students"`
	Conversations LinkMap    `json:"conversations"`
}

// Path returns the cache file path for a course/assignment pair.
func (c *CacheStore) Path(courseID, assignmentID string) string {
	return filepath.Join(c.dir, fmt.Sprintf("%s_%s.json", courseID, assignmentID))
}

// Load reads cached results. Returns ErrCacheMiss when no file exists.
func (c *CacheStore) Load(courseID, assignmentID string) (SummaryMap, LinkMap, error) {
	data, err := os.ReadFile(c.Path(courseID, assignmentID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil, ErrCacheMiss
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read cache file: %w", err)
	}

	var envelope cacheEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, nil, fmt.Errorf("corrupt cache file %s: %w", c.Path(courseID, assignmentID), err)
	}
	if envelope.Students == nil || envelope.Conversations == nil {
		return nil, nil, fmt.Errorf("corrupt cache file %s: missing top-level keys", c.Path(courseID, assignmentID))
	}

	return envelope.Students, envelope.Conversations, nil
}

// Save writes results to the cache, creating the cache directory on first
// use. Loading a freshly saved file reproduces an identical data model.
func (c *CacheStore) Save(courseID, assignmentID string, summary SummaryMap, linkMap LinkMap) error {
	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	data, err := json.Marshal(cacheEnvelope{Students: summary, Conversations: linkMap})
	if err != nil {
		return fmt.Errorf("encode cache: %w", err)
	}

	return os.WriteFile(c.Path(courseID, assignmentID), data, 0644)
}
