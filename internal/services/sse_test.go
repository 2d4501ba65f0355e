package services

import (
	"testing"
	"time"
)

func TestSSEHub_Subscribe(t *testing.T) {
	hub := NewSSEHub()

	if hub.ClientCount() != 0 {
		t.Errorf("new hub should have 0 clients, got %d", hub.ClientCount())
	}

	ch := hub.Subscribe("client1")
	if ch == nil {
		t.Error("Subscribe should return a channel")
	}
	if hub.ClientCount() != 1 {
		t.Errorf("expected 1 client, got %d", hub.ClientCount())
	}

	hub.Subscribe("client2")
	if hub.ClientCount() != 2 {
		t.Errorf("expected 2 clients, got %d", hub.ClientCount())
	}
}

func TestSSEHub_Unsubscribe(t *testing.T) {
	hub := NewSSEHub()

	hub.Subscribe("client1")
	hub.Subscribe("client2")

	hub.Unsubscribe("client1")
	if hub.ClientCount() != 1 {
		t.Errorf("expected 1 client after unsubscribe, got %d", hub.ClientCount())
	}

	hub.Unsubscribe("nonexistent")
	if hub.ClientCount() != 1 {
		t.Errorf("unsubscribing nonexistent should not affect count, got %d", hub.ClientCount())
	}

	hub.Unsubscribe("client2")
	if hub.ClientCount() != 0 {
		t.Errorf("expected 0 clients, got %d", hub.ClientCount())
	}
}

func TestSSEHub_Publish(t *testing.T) {
	hub := NewSSEHub()

	ch := hub.Subscribe("client1")

	event := AnalysisEvent{
		RunID:    1,
		UUID:     "run-abc",
		Status:   "running",
		Progress: 12,
		Total:    40,
	}

	hub.Publish(event)

	select {
	case received := <-ch:
		if received.RunID != event.RunID {
			t.Errorf("RunID = %d, expected %d", received.RunID, event.RunID)
		}
		if received.Status != "running" {
			t.Errorf("Status = %q, expected %q", received.Status, "running")
		}
		if received.Progress != 12 || received.Total != 40 {
			t.Errorf("Progress/Total = %d/%d, expected 12/40", received.Progress, received.Total)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("timed out waiting for event")
	}
}

func TestSSEHub_PublishMultipleClients(t *testing.T) {
	hub := NewSSEHub()

	ch1 := hub.Subscribe("client1")
	ch2 := hub.Subscribe("client2")

	hub.Publish(AnalysisEvent{RunID: 1, Status: "pending"})

	for i, ch := range []<-chan AnalysisEvent{ch1, ch2} {
		select {
		case received := <-ch:
			if received.RunID != 1 {
				t.Errorf("client%d: RunID = %d, expected 1", i+1, received.RunID)
			}
		case <-time.After(100 * time.Millisecond):
			t.Errorf("client%d: timed out waiting for event", i+1)
		}
	}
}

func TestSSEHub_NonBlockingPublish(t *testing.T) {
	hub := NewSSEHub()

	hub.Subscribe("slow_client")

	// Must not block even when the subscriber never drains its buffer
	for i := 0; i < 200; i++ {
		hub.Publish(AnalysisEvent{RunID: uint(i)})
	}
}

func TestSSEHub_FailedEventCarriesError(t *testing.T) {
	hub := NewSSEHub()
	ch := hub.Subscribe("client1")

	hub.Publish(AnalysisEvent{RunID: 3, UUID: "run-x", Status: "failed", Error: "login failed"})

	select {
	case received := <-ch:
		if received.Status != "failed" {
			t.Errorf("Status = %q, expected %q", received.Status, "failed")
		}
		if received.Error != "login failed" {
			t.Errorf("Error = %q, expected %q", received.Error, "login failed")
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("timed out waiting for event")
	}
}

func TestGetSSEHub_Singleton(t *testing.T) {
	hub1 := GetSSEHub()
	hub2 := GetSSEHub()

	if hub1 != hub2 {
		t.Error("GetSSEHub should return the same instance")
	}
}
