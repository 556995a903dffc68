// Package realtime fans meeting events out to websocket subscribers.
package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/example/meeting-coordinator/internal/application"
)

const defaultQueueSize = 16

// Frame is the JSON text frame delivered to subscribers.
type Frame struct {
	Type       string         `json:"type"`
	MeetingID  string         `json:"meetingId"`
	Data       map[string]any `json:"data,omitempty"`
	OccurredAt time.Time      `json:"occurredAt"`
}

// Subscriber is one connected feed. Send is never closed by the hub so concurrent publishers stay safe.
type Subscriber struct {
	MeetingID string
	Send      chan []byte

	done      chan struct{}
	closeOnce sync.Once
}

// Done is closed once the subscriber has been dropped or unsubscribed.
func (s *Subscriber) Done() <-chan struct{} {
	return s.done
}

func (s *Subscriber) close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// Hub tracks subscribers per meeting. It implements application.EventPublisher.
type Hub struct {
	log       *slog.Logger
	queueSize int

	mu          sync.Mutex
	subscribers map[string]map[*Subscriber]struct{}
}

// NewHub constructs an empty hub. queueSize bounds each subscriber's backlog.
func NewHub(log *slog.Logger, queueSize int) *Hub {
	if log == nil {
		log = slog.Default()
	}
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Hub{log: log, queueSize: queueSize, subscribers: make(map[string]map[*Subscriber]struct{})}
}

// Subscribe registers a new subscriber for meetingID.
func (h *Hub) Subscribe(meetingID string) *Subscriber {
	sub := &Subscriber{MeetingID: meetingID, Send: make(chan []byte, h.queueSize), done: make(chan struct{})}

	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subscribers[meetingID]
	if !ok {
		set = make(map[*Subscriber]struct{})
		h.subscribers[meetingID] = set
	}
	set[sub] = struct{}{}
	return sub
}

// Unsubscribe removes sub. It is safe to call more than once.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	h.removeLocked(sub)
	h.mu.Unlock()
}

func (h *Hub) removeLocked(sub *Subscriber) {
	if set, ok := h.subscribers[sub.MeetingID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.subscribers, sub.MeetingID)
		}
	}
	sub.close()
}

// Count returns the number of live subscribers for meetingID.
func (h *Hub) Count(meetingID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers[meetingID])
}

// Publish delivers event to every subscriber of its meeting. Subscribers whose queue is full are dropped.
func (h *Hub) Publish(ctx context.Context, event application.Event) {
	payload, err := json.Marshal(Frame{
		Type:       event.Type,
		MeetingID:  event.MeetingID,
		Data:       event.Data,
		OccurredAt: event.OccurredAt,
	})
	if err != nil {
		h.log.ErrorContext(ctx, "failed to encode realtime frame", "error", err, "event_type", event.Type)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subscribers[event.MeetingID] {
		select {
		case sub.Send <- payload:
		default:
			h.log.WarnContext(ctx, "dropping slow realtime subscriber", "meeting_id", event.MeetingID)
			h.removeLocked(sub)
		}
	}
}
