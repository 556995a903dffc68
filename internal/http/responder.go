package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/example/meeting-coordinator/internal/application"
)

var (
	errInvalidJSON      = errors.New("Invalid JSON")
	errMissingMeetingID = errors.New("Meeting ID required")
	errMethodNotAllowed = errors.New("Method not allowed")
	errInternal         = errors.New("Internal server error")
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// errorMapping is one row of the application error to HTTP table.
type errorMapping struct {
	target  error
	status  int
	code    string
	message string
}

var errorMappings = []errorMapping{
	{application.ErrUnauthorized, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized"},
	{application.ErrUnauthenticated, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid authentication token"},
	{application.ErrForbidden, http.StatusForbidden, "FORBIDDEN", "Forbidden"},
	{application.ErrNotFound, http.StatusNotFound, "NOT_FOUND", "Meeting not found"},
	{application.ErrNoValidFields, http.StatusBadRequest, "NO_VALID_FIELDS", "No valid fields to update"},
	{application.ErrMeetingClosed, http.StatusBadRequest, "MEETING_CLOSED", "Meeting is no longer accepting responses"},
	{application.ErrDeadlinePassed, http.StatusBadRequest, "DEADLINE_PASSED", "Response deadline has passed"},
	{application.ErrQuotaExhausted, http.StatusBadRequest, "QUOTA_EXHAUSTED", "No AI suggestions remaining"},
	{application.ErrNoParticipants, http.StatusBadRequest, "NO_PARTICIPANTS", "No participants have submitted availability yet"},
	{application.ErrGenerationFailed, http.StatusInternalServerError, "GENERATION_FAILED", "AI processing failed"},
	{application.ErrConcurrentUpdate, http.StatusConflict, "CONFLICT", "Meeting was modified concurrently, please retry"},
	{application.ErrNotConfirmed, http.StatusNotFound, "NOT_CONFIRMED", "Meeting is not confirmed"},
	{application.ErrCalendarFetch, http.StatusInternalServerError, "CALENDAR_FETCH_FAILED", "Failed to fetch calendar events"},
	{application.ErrCodeExchange, http.StatusInternalServerError, "CODE_EXCHANGE_FAILED", "Failed to exchange authorization code"},
	{application.ErrInvalidState, http.StatusBadRequest, "INVALID_STATE", "Invalid OAuth state"},
	{application.ErrCalendarDisabled, http.StatusServiceUnavailable, "CALENDAR_DISABLED", "Calendar integration is not configured"},
}

type responder struct {
	logger *slog.Logger
}

func newResponder(logger *slog.Logger) responder {
	if logger == nil {
		logger = slog.Default()
	}
	return responder{logger: logger}
}

func (r responder) writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	if w == nil {
		return
	}

	if status == http.StatusNoContent || payload == nil {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		r.loggerFor(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (r responder) writeError(ctx context.Context, w http.ResponseWriter, status int, code string, err error) {
	message := http.StatusText(status)
	if err != nil && err.Error() != "" {
		message = err.Error()
	}
	r.writeJSON(ctx, w, status, errorResponse{Error: message, Code: code})
}

func (r responder) badRequest(ctx context.Context, w http.ResponseWriter, err error) {
	r.writeError(ctx, w, http.StatusBadRequest, "INVALID_REQUEST", err)
}

// handleServiceError is the single place application errors become HTTP responses.
// forbidden overrides the 403 message so each operation can name what only the creator may do.
func (r responder) handleServiceError(ctx context.Context, w http.ResponseWriter, err error, forbidden string) {
	if err == nil {
		err = errors.New("unknown error")
	}

	var vErr *application.ValidationError
	if errors.As(err, &vErr) {
		r.writeJSON(ctx, w, http.StatusBadRequest, errorResponse{Error: vErr.FirstMessage(), Code: "INVALID_REQUEST"})
		return
	}

	for _, m := range errorMappings {
		if !errors.Is(err, m.target) {
			continue
		}
		message := m.message
		if m.target == application.ErrForbidden && forbidden != "" {
			message = forbidden
		}
		if m.status >= http.StatusInternalServerError {
			r.loggerFor(ctx).ErrorContext(ctx, "request failed", "status", m.status, "error", err, "error_kind", application.ErrorKind(err))
		}
		r.writeJSON(ctx, w, m.status, errorResponse{Error: message, Code: m.code})
		return
	}

	r.loggerFor(ctx).ErrorContext(ctx, "request failed", "status", http.StatusInternalServerError, "error", err, "error_kind", application.ErrorKind(err))
	r.writeError(ctx, w, http.StatusInternalServerError, "INTERNAL", errInternal)
}

func (r responder) loggerFor(ctx context.Context) *slog.Logger {
	if logger := LoggerFromContext(ctx); logger != nil {
		return logger
	}
	return r.logger
}
