package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/example/meeting-coordinator/internal/application"
)

type calendarService interface {
	BusyTimes(ctx context.Context, params application.BusyTimesParams) ([]application.BusyTime, error)
	AuthURL(ctx context.Context, params application.AuthURLParams) (application.AuthURL, error)
	ExchangeCode(ctx context.Context, params application.ExchangeCodeParams) (application.OAuthToken, error)
}

// CalendarHandler exposes the Google Calendar import endpoints.
type CalendarHandler struct {
	service   calendarService
	responder responder
	logger    *slog.Logger
}

// NewCalendarHandler constructs a CalendarHandler.
func NewCalendarHandler(service calendarService, logger *slog.Logger) *CalendarHandler {
	base := defaultLogger(logger)
	return &CalendarHandler{service: service, responder: newResponder(base), logger: base}
}

type busyTimesRequest struct {
	StartDate   string `json:"startDate"`
	EndDate     string `json:"endDate"`
	AccessToken string `json:"accessToken"`
}

type authURLRequest struct {
	RedirectURI string `json:"redirectUri"`
}

type tokenRequest struct {
	Code        string `json:"code"`
	RedirectURI string `json:"redirectUri"`
	State       string `json:"state"`
}

type busyTimesResponse struct {
	Success   bool                   `json:"success"`
	BusyTimes []application.BusyTime `json:"busyTimes"`
}

type authURLResponse struct {
	Success bool   `json:"success"`
	AuthURL string `json:"authUrl"`
	State   string `json:"state"`
}

type tokenResponse struct {
	Success      bool    `json:"success"`
	AccessToken  string  `json:"accessToken"`
	RefreshToken string  `json:"refreshToken"`
	ExpiresAt    *string `json:"expiresAt"`
}

// BusyTimes lists busy periods from the caller's primary calendar.
func (h *CalendarHandler) BusyTimes(w http.ResponseWriter, r *http.Request) {
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

	var req busyTimesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handlerLogger(ctx, h.logger, "CalendarHandler", "BusyTimes", "error_kind", "bad_request").InfoContext(ctx, "failed to decode busy times request", "error", err)
		h.responder.badRequest(ctx, w, errInvalidJSON)
		return
	}

	busy, err := h.service.BusyTimes(ctx, application.BusyTimesParams{
		Principal:   principal,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
		AccessToken: req.AccessToken,
	})
	if err != nil {
		h.responder.handleServiceError(ctx, w, err, "")
		return
	}

	h.responder.writeJSON(ctx, w, http.StatusOK, busyTimesResponse{Success: true, BusyTimes: busy})
}

// AuthURL starts the calendar OAuth flow.
func (h *CalendarHandler) AuthURL(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	ctx := r.Context()

	var req authURLRequest
	if err := decodeOptionalJSON(r.Body, &req); err != nil {
		h.responder.badRequest(ctx, w, errInvalidJSON)
		return
	}

	url, err := h.service.AuthURL(ctx, application.AuthURLParams{
		Principal:   optionalPrincipal(ctx),
		RedirectURI: req.RedirectURI,
	})
	if err != nil {
		h.responder.handleServiceError(ctx, w, err, "")
		return
	}

	h.responder.writeJSON(ctx, w, http.StatusOK, authURLResponse{Success: true, AuthURL: url.URL, State: url.State})
}

// Token exchanges an authorization code for calendar tokens.
func (h *CalendarHandler) Token(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	ctx := r.Context()

	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.badRequest(ctx, w, errInvalidJSON)
		return
	}

	token, err := h.service.ExchangeCode(ctx, application.ExchangeCodeParams{
		Principal:   optionalPrincipal(ctx),
		Code:        req.Code,
		RedirectURI: req.RedirectURI,
		State:       req.State,
	})
	if err != nil {
		h.responder.handleServiceError(ctx, w, err, "")
		return
	}

	resp := tokenResponse{Success: true, AccessToken: token.AccessToken, RefreshToken: token.RefreshToken}
	if !token.Expiry.IsZero() {
		expires := token.Expiry.UTC().Format(time.RFC3339)
		resp.ExpiresAt = &expires
	}
	h.responder.writeJSON(ctx, w, http.StatusOK, resp)
}
