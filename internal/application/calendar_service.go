package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// DefaultOAuthRedirectURL is used when the caller does not supply a redirect URI.
const DefaultOAuthRedirectURL = "http://localhost:3000/auth/google/callback"

// anonymousSubject binds OAuth state for callers without a verified identity.
const anonymousSubject = "anonymous"

// BusyTime is an opaque, non all-day event imported from the caller's calendar.
type BusyTime struct {
	Start string `json:"start"`
	End   string `json:"end"`
	Title string `json:"title"`
}

// OAuthToken is the result of exchanging an authorization code.
type OAuthToken struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// BusyTimeSource lists busy periods from the calendar the access token grants.
type BusyTimeSource interface {
	BusyTimes(ctx context.Context, accessToken string, start, end time.Time) ([]BusyTime, error)
}

// OAuthProvider builds consent URLs and exchanges authorization codes.
type OAuthProvider interface {
	AuthCodeURL(state, redirectURI string) string
	Exchange(ctx context.Context, code, redirectURI string) (OAuthToken, error)
}

// StateGuard issues OAuth state values bound to a subject and consumes them at most once.
type StateGuard interface {
	Issue(ctx context.Context, subject string, now time.Time) (string, error)
	Consume(ctx context.Context, state, subject string, now time.Time) error
}

// BusyTimesParams wraps a busy time import request.
type BusyTimesParams struct {
	Principal   *Principal
	StartDate   string
	EndDate     string
	AccessToken string
}

// AuthURLParams wraps a consent URL request.
type AuthURLParams struct {
	Principal   *Principal
	RedirectURI string
}

// AuthURL is a consent URL plus the state value that must come back with the code.
type AuthURL struct {
	URL   string
	State string
}

// ExchangeCodeParams wraps an authorization code exchange request.
type ExchangeCodeParams struct {
	Principal   *Principal
	Code        string
	RedirectURI string
	State       string
}

// CalendarService imports busy times from the participant's calendar.
type CalendarService struct {
	events BusyTimeSource
	oauth  OAuthProvider
	states StateGuard
	now    func() time.Time
	logger *slog.Logger

	defaultRedirect string
}

// NewCalendarService constructs a calendar service. oauth and states may be nil when OAuth is not configured.
func NewCalendarService(events BusyTimeSource, oauth OAuthProvider, states StateGuard, now func() time.Time) *CalendarService {
	return NewCalendarServiceWithLogger(events, oauth, states, now, nil)
}

// NewCalendarServiceWithLogger constructs a calendar service with a specified logger.
func NewCalendarServiceWithLogger(events BusyTimeSource, oauth OAuthProvider, states StateGuard, now func() time.Time, logger *slog.Logger) *CalendarService {
	if now == nil {
		now = time.Now
	}
	return &CalendarService{
		events:          events,
		oauth:           oauth,
		states:          states,
		now:             now,
		logger:          defaultLogger(logger),
		defaultRedirect: DefaultOAuthRedirectURL,
	}
}

// SetDefaultRedirect overrides the redirect URI used when a request does not name one.
func (s *CalendarService) SetDefaultRedirect(uri string) {
	if strings.TrimSpace(uri) != "" {
		s.defaultRedirect = uri
	}
}

func (s *CalendarService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "CalendarService", operation, attrs...)
}

// BusyTimes lists the caller's busy periods between StartDate and EndDate.
func (s *CalendarService) BusyTimes(ctx context.Context, params BusyTimesParams) (busy []BusyTime, err error) {
	logger := s.loggerWith(ctx, "BusyTimes", "principal_id", principalID(params.Principal))
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to import busy times", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("count", len(busy)).InfoContext(ctx, "busy times imported")
	}()

	if params.Principal == nil || params.Principal.UserID == "" {
		return nil, ErrUnauthorized
	}
	if params.StartDate == "" || params.EndDate == "" || params.AccessToken == "" {
		vErr := &ValidationError{}
		vErr.add("parameters", "Missing required parameters: startDate, endDate, accessToken")
		return nil, vErr
	}

	start, startErr := parseTimestamp(params.StartDate)
	end, endErr := parseTimestamp(params.EndDate)
	if startErr != nil || endErr != nil {
		vErr := &ValidationError{}
		vErr.add("parameters", "Invalid date range: startDate and endDate must be RFC 3339 timestamps")
		return nil, vErr
	}
	if !end.After(start) {
		vErr := &ValidationError{}
		vErr.add("parameters", "Invalid date range: endDate must be after startDate")
		return nil, vErr
	}

	if s.events == nil {
		return nil, ErrCalendarDisabled
	}
	busy, err = s.events.BusyTimes(ctx, params.AccessToken, start, end)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCalendarFetch, err)
	}
	if busy == nil {
		busy = []BusyTime{}
	}
	return busy, nil
}

// AuthURL returns a consent URL requesting read-only calendar access.
func (s *CalendarService) AuthURL(ctx context.Context, params AuthURLParams) (AuthURL, error) {
	if s.oauth == nil || s.states == nil {
		return AuthURL{}, ErrCalendarDisabled
	}

	state, err := s.states.Issue(ctx, subjectFor(params.Principal), s.now())
	if err != nil {
		s.loggerWith(ctx, "AuthURL").ErrorContext(ctx, "failed to issue oauth state", "error", err, "error_kind", ErrorKind(err))
		return AuthURL{}, err
	}
	return AuthURL{URL: s.oauth.AuthCodeURL(state, s.redirectOrDefault(params.RedirectURI)), State: state}, nil
}

// ExchangeCode trades an authorization code for tokens. A supplied state must be valid for the caller.
func (s *CalendarService) ExchangeCode(ctx context.Context, params ExchangeCodeParams) (token OAuthToken, err error) {
	logger := s.loggerWith(ctx, "ExchangeCode", "principal_id", principalID(params.Principal))
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to exchange authorization code", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	if strings.TrimSpace(params.Code) == "" {
		vErr := &ValidationError{}
		vErr.add("code", "Authorization code required")
		return OAuthToken{}, vErr
	}
	if s.oauth == nil {
		return OAuthToken{}, ErrCalendarDisabled
	}

	if params.State != "" {
		if s.states == nil {
			return OAuthToken{}, ErrCalendarDisabled
		}
		if err := s.states.Consume(ctx, params.State, subjectFor(params.Principal), s.now()); err != nil {
			return OAuthToken{}, fmt.Errorf("%w: %v", ErrInvalidState, err)
		}
	}

	token, err = s.oauth.Exchange(ctx, params.Code, s.redirectOrDefault(params.RedirectURI))
	if err != nil {
		return OAuthToken{}, fmt.Errorf("%w: %v", ErrCodeExchange, err)
	}
	return token, nil
}

func subjectFor(principal *Principal) string {
	if principal == nil || principal.UserID == "" {
		return anonymousSubject
	}
	return principal.UserID
}

func (s *CalendarService) redirectOrDefault(uri string) string {
	if strings.TrimSpace(uri) == "" {
		return s.defaultRedirect
	}
	return uri
}
