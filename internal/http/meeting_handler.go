package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/example/meeting-coordinator/internal/application"
	"github.com/example/meeting-coordinator/internal/calendar"
)

const (
	forbiddenUpdate  = "Forbidden: Only meeting creator can update"
	forbiddenSuggest = "Forbidden: Only meeting creator can run AI suggestion"
)

type meetingService interface {
	CreateMeeting(ctx context.Context, params application.CreateMeetingParams) (application.Meeting, error)
	GetMeeting(ctx context.Context, meetingID string) (application.MeetingDetails, error)
	UpdateMeeting(ctx context.Context, params application.UpdateMeetingParams) (application.Meeting, error)
	SubmitAvailability(ctx context.Context, params application.SubmitAvailabilityParams) (application.Availability, error)
	ConfirmBySuggestion(ctx context.Context, params application.ConfirmBySuggestionParams) (application.SuggestionResult, error)
	ConfirmedMeeting(ctx context.Context, meetingID string) (application.Meeting, error)
}

// MeetingHandler serves the meeting lifecycle endpoints.
type MeetingHandler struct {
	service   meetingService
	responder responder
	logger    *slog.Logger
	now       func() time.Time
}

// NewMeetingHandler constructs a MeetingHandler.
func NewMeetingHandler(service meetingService, logger *slog.Logger) *MeetingHandler {
	base := defaultLogger(logger)
	return &MeetingHandler{service: service, responder: newResponder(base), logger: base, now: time.Now}
}

func (h *MeetingHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "MeetingHandler", operation, attrs...)
}

type createMeetingRequest struct {
	Title       *string  `json:"title"`
	Description *string  `json:"description"`
	TimeSlots   []string `json:"timeSlots"`
	Deadline    *string  `json:"deadline"`
}

type updateMeetingRequest struct {
	Title             *string `json:"title"`
	Description       *string `json:"description"`
	Deadline          *string `json:"deadline"`
	Status            *string `json:"status"`
	ConfirmedDateTime *string `json:"confirmedDateTime"`
	ConfirmedReason   *string `json:"confirmedReason"`
}

type submitAvailabilityRequest struct {
	UserName *string                             `json:"userName"`
	Schedule map[string]application.SlotResponse `json:"schedule"`
}

type suggestRequest struct {
	HostInstructions string `json:"hostInstructions"`
}

type createMeetingResponse struct {
	Success   bool   `json:"success"`
	MeetingID string `json:"meetingId"`
	Message   string `json:"message"`
}

type meetingDetailsResponse struct {
	Success      bool                       `json:"success"`
	Meeting      application.Meeting        `json:"meeting"`
	Participants []application.Availability `json:"participants"`
}

type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type submitAvailabilityResponse struct {
	Success bool   `json:"success"`
	UserID  string `json:"userId"`
	Message string `json:"message"`
}

type suggestResponse struct {
	Success bool                         `json:"success"`
	Result  application.SuggestionResult `json:"result"`
	Message string                       `json:"message"`
}

// Create handles POST /meetings.
func (h *MeetingHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	ctx := r.Context()

	principal, err := requirePrincipal(ctx)
	if err != nil {
		h.responder.handleServiceError(ctx, w, err, "")
		return
	}

	var req createMeetingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(ctx, "Create", "principal_id", principal.UserID, "error_kind", "bad_request").InfoContext(ctx, "failed to decode meeting request", "error", err)
		h.responder.badRequest(ctx, w, errInvalidJSON)
		return
	}

	meeting, err := h.service.CreateMeeting(ctx, application.CreateMeetingParams{
		Principal:   principal,
		Title:       req.Title,
		Description: req.Description,
		TimeSlots:   req.TimeSlots,
		Deadline:    req.Deadline,
	})
	if err != nil {
		h.responder.handleServiceError(ctx, w, err, "")
		return
	}

	h.responder.writeJSON(ctx, w, http.StatusCreated, createMeetingResponse{
		Success:   true,
		MeetingID: meeting.ID,
		Message:   "Meeting created successfully",
	})
}

// Get returns a meeting with every submitted availability.
func (h *MeetingHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	ctx := r.Context()
	meetingID, _ := MeetingIDFromContext(ctx)

	details, err := h.service.GetMeeting(ctx, meetingID)
	if err != nil {
		h.responder.handleServiceError(ctx, w, err, "")
		return
	}

	h.responder.writeJSON(ctx, w, http.StatusOK, meetingDetailsResponse{
		Success:      true,
		Meeting:      details.Meeting,
		Participants: details.Participants,
	})
}

// Update applies a host edit. Only the creator may call it.
func (h *MeetingHandler) Update(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	ctx := r.Context()
	meetingID, _ := MeetingIDFromContext(ctx)

	principal, err := requirePrincipal(ctx)
	if err != nil {
		h.responder.handleServiceError(ctx, w, err, forbiddenUpdate)
		return
	}

	var req updateMeetingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(ctx, "Update", "error_kind", "bad_request").InfoContext(ctx, "failed to decode update request", "error", err)
		h.responder.badRequest(ctx, w, errInvalidJSON)
		return
	}

	_, err = h.service.UpdateMeeting(ctx, application.UpdateMeetingParams{
		Principal:         principal,
		MeetingID:         meetingID,
		Title:             req.Title,
		Description:       req.Description,
		Deadline:          req.Deadline,
		Status:            req.Status,
		ConfirmedDateTime: req.ConfirmedDateTime,
		ConfirmedReason:   req.ConfirmedReason,
	})
	if err != nil {
		h.responder.handleServiceError(ctx, w, err, forbiddenUpdate)
		return
	}

	h.responder.writeJSON(ctx, w, http.StatusOK, messageResponse{Success: true, Message: "Meeting updated successfully"})
}

// SubmitAvailability records the caller's schedule. Anonymous callers get a name derived id.
func (h *MeetingHandler) SubmitAvailability(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	ctx := r.Context()
	meetingID, _ := MeetingIDFromContext(ctx)

	var req submitAvailabilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(ctx, "SubmitAvailability", "error_kind", "bad_request").InfoContext(ctx, "failed to decode availability request", "error", err)
		h.responder.badRequest(ctx, w, errInvalidJSON)
		return
	}

	// An invalid token is not fatal here; the participant falls back to the name derived id.
	availability, err := h.service.SubmitAvailability(ctx, application.SubmitAvailabilityParams{
		Principal: optionalPrincipal(ctx),
		MeetingID: meetingID,
		UserName:  req.UserName,
		Schedule:  req.Schedule,
	})
	if err != nil {
		h.responder.handleServiceError(ctx, w, err, "")
		return
	}

	h.responder.writeJSON(ctx, w, http.StatusOK, submitAvailabilityResponse{
		Success: true,
		UserID:  availability.UserID,
		Message: "Availability submitted successfully",
	})
}

// Suggest asks the model for a slot and confirms the meeting with it.
func (h *MeetingHandler) Suggest(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	ctx := r.Context()
	meetingID, _ := MeetingIDFromContext(ctx)

	principal, err := requirePrincipal(ctx)
	if err != nil {
		h.responder.handleServiceError(ctx, w, err, forbiddenSuggest)
		return
	}

	var req suggestRequest
	if err := decodeOptionalJSON(r.Body, &req); err != nil {
		h.log(ctx, "Suggest", "error_kind", "bad_request").InfoContext(ctx, "failed to decode suggest request", "error", err)
		h.responder.badRequest(ctx, w, errInvalidJSON)
		return
	}

	result, err := h.service.ConfirmBySuggestion(ctx, application.ConfirmBySuggestionParams{
		Principal:        principal,
		MeetingID:        meetingID,
		HostInstructions: req.HostInstructions,
	})
	if err != nil {
		h.responder.handleServiceError(ctx, w, err, forbiddenSuggest)
		return
	}

	h.responder.writeJSON(ctx, w, http.StatusOK, suggestResponse{
		Success: true,
		Result:  result,
		Message: "AI suggestion completed successfully",
	})
}

// ExportICS serves a confirmed meeting as an iCalendar file.
func (h *MeetingHandler) ExportICS(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	ctx := r.Context()
	meetingID, _ := MeetingIDFromContext(ctx)

	meeting, err := h.service.ConfirmedMeeting(ctx, meetingID)
	if err != nil {
		h.responder.handleServiceError(ctx, w, err, "")
		return
	}

	var buf bytes.Buffer
	if err := calendar.EncodeMeeting(&buf, meeting, h.now()); err != nil {
		if errors.Is(err, calendar.ErrNotConfirmed) {
			err = application.ErrNotConfirmed
		}
		h.responder.handleServiceError(ctx, w, err, "")
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="meeting-`+meetingID+`.ics"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.log(ctx, "ExportICS").ErrorContext(ctx, "failed to write calendar", "error", err)
	}
}

// decodeOptionalJSON accepts an empty body as the zero value.
func decodeOptionalJSON(body io.Reader, v any) error {
	err := json.NewDecoder(body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
