package services

import (
	"context"
	"sync"
	"time"

	"github.com/Nk110820004/freddie-backend-sub000/internal/workflow"
)

// WorkflowEvent is pushed to operator dashboards on every transition.
type WorkflowEvent struct {
	ReviewID      uint      `json:"review_id"`
	From          string    `json:"from"`
	To            string    `json:"to"`
	ReminderCount int       `json:"reminder_count"`
	At            time.Time `json:"at"`
}

// SSEHub fans workflow events out to connected clients.
type SSEHub struct {
	clients map[string]chan WorkflowEvent
	mu      sync.RWMutex
}

func NewSSEHub() *SSEHub {
	return &SSEHub{
		clients: make(map[string]chan WorkflowEvent),
	}
}

func (h *SSEHub) Subscribe(clientID string) <-chan WorkflowEvent {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan WorkflowEvent, 100)
	if old, ok := h.clients[clientID]; ok {
		close(old)
	}
	h.clients[clientID] = ch
	return ch
}

func (h *SSEHub) Unsubscribe(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ch, ok := h.clients[clientID]; ok {
		close(ch)
		delete(h.clients, clientID)
	}
}

// Publish never blocks; a full client buffer drops the event.
func (h *SSEHub) Publish(event WorkflowEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.clients {
		select {
		case ch <- event:
		default:
		}
	}
}

func (h *SSEHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Observe matches workflow.Observer.
func (h *SSEHub) Observe(_ context.Context, ev workflow.Event) {
	h.Publish(WorkflowEvent{
		ReviewID:      ev.ReviewID,
		From:          string(ev.From),
		To:            string(ev.To),
		ReminderCount: ev.ReminderCount,
		At:            ev.At,
	})
}
