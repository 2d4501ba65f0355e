package regrade

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestCacheStore_RoundTrip(t *testing.T) {
	store := NewCacheStore(t.TempDir())

	ts := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	summary := SummaryMap{
		"Ada Lovelace": {
			TotalCount: 2,
			Requests: []RequestRef{
				{Question: "Q1", Grader: "Grace Hopper", QuestionLink: "q1", ReviewLink: "r1"},
				{Question: "Q2", Grader: "Alan Turing", QuestionLink: "q2", ReviewLink: "r2"},
			},
			NumAccepted:  1,
			NumResponded: 2,
		},
	}
	linkMap := LinkMap{
		"r1": {
			Link: "r1",
			Messages: []Message{
				{Sender: SenderStudent, Text: "please", Timestamp: ts},
				{Sender: SenderStaff, Text: "done", Timestamp: ts.Add(time.Hour), Outcome: boolPtr(true)},
			},
			Score:   10,
			Weight:  10,
			Outcome: boolPtr(true),
		},
		"r2": {Link: "r2", Messages: []Message{}, Score: 0, Weight: 5},
	}

	if err := store.Save("123", "456", summary, linkMap); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	gotSummary, gotLinkMap, err := store.Load("123", "456")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if !reflect.DeepEqual(summary, gotSummary) {
		t.Errorf("summary round trip mismatch:\nsaved:  %+v\nloaded: %+v", summary, gotSummary)
	}
	if !reflect.DeepEqual(linkMap, gotLinkMap) {
		t.Errorf("link map round trip mismatch:\nsaved:  %+v\nloaded: %+v", linkMap, gotLinkMap)
	}
}

func TestCacheStore_Miss(t *testing.T) {
	store := NewCacheStore(t.TempDir())

	_, _, err := store.Load("123", "456")
	if !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Load() error = %v, expected ErrCacheMiss", err)
	}
}

func TestCacheStore_Corruption(t *testing.T) {
	dir := t.TempDir()
	store := NewCacheStore(dir)

	tests := []struct {
		name    string
		content string
	}{
		{"invalid json", "{not json"},
		{"missing keys", `{"unexpected": {}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := os.WriteFile(filepath.Join(dir, "1_2.json"), []byte(tt.content), 0644); err != nil {
				t.Fatal(err)
			}
			_, _, err := store.Load("1", "2")
			if err == nil {
				t.Fatal("expected corruption error")
			}
			if errors.Is(err, ErrCacheMiss) {
				t.Error("corruption must not be reported as a cache miss")
			}
		})
	}
}

func TestCacheStore_PathLayout(t *testing.T) {
	store := NewCacheStore("/var/cache/gradelens")
	if got := store.Path("217", "901234"); got != "/var/cache/gradelens/217_901234.json" {
		t.Errorf("Path() = %q", got)
	}
}

func TestCacheStore_SaveCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "cache")
	store := NewCacheStore(dir)

	if err := store.Save("1", "2", SummaryMap{}, LinkMap{}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if _, err := os.Stat(store.Path("1", "2")); err != nil {
		t.Errorf("cache file not created: %v", err)
	}
}
