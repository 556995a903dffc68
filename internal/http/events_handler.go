package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/example/meeting-coordinator/internal/application"
)

type meetingLookup interface {
	GetMeeting(ctx context.Context, meetingID string) (application.MeetingDetails, error)
}

// EventStream upgrades a request into a live feed for one meeting.
type EventStream interface {
	Serve(w http.ResponseWriter, r *http.Request, meetingID string)
}

// EventsHandler serves the websocket feed of meeting events.
type EventsHandler struct {
	meetings  meetingLookup
	stream    EventStream
	responder responder
}

// NewEventsHandler constructs an EventsHandler.
func NewEventsHandler(meetings meetingLookup, stream EventStream, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{meetings: meetings, stream: stream, responder: newResponder(defaultLogger(logger))}
}

// Feed rejects unknown meetings before upgrading so clients get a plain 404.
func (h *EventsHandler) Feed(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.meetings == nil || h.stream == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	ctx := r.Context()
	meetingID, _ := MeetingIDFromContext(ctx)

	if _, err := h.meetings.GetMeeting(ctx, meetingID); err != nil {
		h.responder.handleServiceError(ctx, w, err, "")
		return
	}
	h.stream.Serve(w, r, meetingID)
}
