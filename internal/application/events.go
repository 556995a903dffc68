package application

import (
	"context"
	"time"
)

// Event types emitted by MeetingService.
const (
	EventAvailabilitySubmitted = "availability.submitted"
	EventMeetingUpdated        = "meeting.updated"
	EventMeetingConfirmed      = "meeting.confirmed"
)

// Event describes a change to a meeting that subscribers may react to.
type Event struct {
	Type       string         `json:"type"`
	MeetingID  string         `json:"meetingId"`
	Data       map[string]any `json:"data,omitempty"`
	OccurredAt time.Time      `json:"occurredAt"`
}

// EventPublisher receives meeting events after the corresponding write has been persisted.
// Implementations must not block the caller for long.
type EventPublisher interface {
	Publish(ctx context.Context, event Event)
}

// EventPublishers fans an event out to every publisher in order.
type EventPublishers []EventPublisher

// Publish implements EventPublisher.
func (p EventPublishers) Publish(ctx context.Context, event Event) {
	for _, publisher := range p {
		if publisher != nil {
			publisher.Publish(ctx, event)
		}
	}
}
