package services

import (
	"sync"
)

// AnalysisEvent represents a real-time analysis status update event
type AnalysisEvent struct {
	RunID    uint   `json:"run_id"`
	UUID     string `json:"uuid"`
	Status   string `json:"status"` // pending, running, completed, failed
	Progress int    `json:"progress,omitempty"`
	Total    int    `json:"total,omitempty"`
	Error    string `json:"error,omitempty"`
}

// SSEHub manages SSE client connections and event broadcasting
type SSEHub struct {
	clients map[string]chan AnalysisEvent
	mu      sync.RWMutex
}

// NewSSEHub creates a new SSE hub instance
func NewSSEHub() *SSEHub {
	return &SSEHub{
		clients: make(map[string]chan AnalysisEvent),
	}
}

// Subscribe registers a new client and returns a channel for receiving events
func (h *SSEHub) Subscribe(clientID string) <-chan AnalysisEvent {
	h.mu.Lock()
	defer h.mu.Unlock()

	// Create buffered channel to prevent blocking
	ch := make(chan AnalysisEvent, 100)
	h.clients[clientID] = ch
	return ch
}

// Unsubscribe removes a client from the hub
func (h *SSEHub) Unsubscribe(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ch, ok := h.clients[clientID]; ok {
		close(ch)
		delete(h.clients, clientID)
	}
}

// Publish broadcasts an event to all connected clients
func (h *SSEHub) Publish(event AnalysisEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.clients {
		// Non-blocking send - drop event if client buffer is full
		select {
		case ch <- event:
		default:
			// Client is slow, skip this event
		}
	}
}

// ClientCount returns the number of connected clients
func (h *SSEHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Global SSE Hub instance
var globalSSEHub *SSEHub
var sseHubOnce sync.Once

// GetSSEHub returns the global SSE hub singleton
func GetSSEHub() *SSEHub {
	sseHubOnce.Do(func() {
		globalSSEHub = NewSSEHub()
	})
	return globalSSEHub
}

// PublishAnalysisEvent is a convenience function to publish analysis events
func PublishAnalysisEvent(runID uint, uuid, status string, progress, total int, errMsg string) {
	GetSSEHub().Publish(AnalysisEvent{
		RunID:    runID,
		UUID:     uuid,
		Status:   status,
		Progress: progress,
		Total:    total,
		Error:    errMsg,
	})
}
