package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/example/meeting-coordinator/internal/application"
)

type calendarServiceStub struct {
	busyParams  application.BusyTimesParams
	authParams  application.AuthURLParams
	tokenParams application.ExchangeCodeParams
	busy        []application.BusyTime
	token       application.OAuthToken
	err         error
}

func (s *calendarServiceStub) BusyTimes(ctx context.Context, params application.BusyTimesParams) ([]application.BusyTime, error) {
	s.busyParams = params
	return s.busy, s.err
}

func (s *calendarServiceStub) AuthURL(ctx context.Context, params application.AuthURLParams) (application.AuthURL, error) {
	s.authParams = params
	if s.err != nil {
		return application.AuthURL{}, s.err
	}
	return application.AuthURL{URL: "https://accounts.example.com/auth?state=abc", State: "abc"}, nil
}

func (s *calendarServiceStub) ExchangeCode(ctx context.Context, params application.ExchangeCodeParams) (application.OAuthToken, error) {
	s.tokenParams = params
	return s.token, s.err
}

func serveCalendar(stub *calendarServiceStub, principal *application.Principal, method, target, body string) *httptest.ResponseRecorder {
	router := NewRouter(RouterConfig{Calendar: NewCalendarHandler(stub, nil)})
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if principal != nil {
		req = req.WithContext(ContextWithPrincipal(req.Context(), *principal))
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCalendarHandler_BusyTimes(t *testing.T) {
	t.Parallel()

	body := `{"startDate": "2024-01-15T00:00:00Z", "endDate": "2024-01-16T00:00:00Z", "accessToken": "ya29"}`

	t.Run("requires authentication", func(t *testing.T) {
		t.Parallel()

		rec := serveCalendar(&calendarServiceStub{}, nil, http.MethodPost, "/calendar/busy-times", body)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("returns busy periods", func(t *testing.T) {
		t.Parallel()

		stub := &calendarServiceStub{busy: []application.BusyTime{{Start: "2024-01-15T10:00:00Z", End: "2024-01-15T11:00:00Z", Title: "Standup"}}}
		rec := serveCalendar(stub, &application.Principal{UserID: "u1"}, http.MethodPost, "/calendar/busy-times", body)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
		}
		var resp busyTimesResponse
		decodeBody(t, rec, &resp)
		if !resp.Success || len(resp.BusyTimes) != 1 || resp.BusyTimes[0].Title != "Standup" {
			t.Fatalf("unexpected response: %+v", resp)
		}
		if stub.busyParams.AccessToken != "ya29" || stub.busyParams.Principal.UserID != "u1" {
			t.Fatalf("unexpected params: %+v", stub.busyParams)
		}
	})

	t.Run("maps fetch failures", func(t *testing.T) {
		t.Parallel()

		stub := &calendarServiceStub{err: application.ErrCalendarFetch}
		rec := serveCalendar(stub, &application.Principal{UserID: "u1"}, http.MethodPost, "/calendar/busy-times", body)
		if rec.Code != http.StatusInternalServerError || decodeError(t, rec).Code != "CALENDAR_FETCH_FAILED" {
			t.Fatalf("got %d %s", rec.Code, rec.Body.String())
		}
	})
}

func TestCalendarHandler_AuthURL(t *testing.T) {
	t.Parallel()

	stub := &calendarServiceStub{}
	rec := serveCalendar(stub, nil, http.MethodPost, "/calendar/auth-url", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp authURLResponse
	decodeBody(t, rec, &resp)
	if resp.AuthURL == "" || resp.State != "abc" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if stub.authParams.Principal != nil || stub.authParams.RedirectURI != "" {
		t.Fatalf("unexpected params: %+v", stub.authParams)
	}

	disabled := serveCalendar(&calendarServiceStub{err: application.ErrCalendarDisabled}, nil, http.MethodPost, "/calendar/auth-url", `{"redirectUri": "http://localhost/cb"}`)
	if disabled.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", disabled.Code)
	}
}

func TestCalendarHandler_Token(t *testing.T) {
	t.Parallel()

	t.Run("formats expiry", func(t *testing.T) {
		t.Parallel()

		expiry := time.Date(2024, time.January, 10, 10, 0, 0, 0, time.UTC)
		stub := &calendarServiceStub{token: application.OAuthToken{AccessToken: "at", RefreshToken: "rt", Expiry: expiry}}
		rec := serveCalendar(stub, nil, http.MethodPost, "/calendar/token", `{"code": "c1", "state": "s1"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
		}
		var resp tokenResponse
		decodeBody(t, rec, &resp)
		if resp.AccessToken != "at" || resp.RefreshToken != "rt" || resp.ExpiresAt == nil || *resp.ExpiresAt != "2024-01-10T10:00:00Z" {
			t.Fatalf("unexpected response: %+v", resp)
		}
		if stub.tokenParams.Code != "c1" || stub.tokenParams.State != "s1" {
			t.Fatalf("unexpected params: %+v", stub.tokenParams)
		}
	})

	t.Run("null expiry when unknown", func(t *testing.T) {
		t.Parallel()

		stub := &calendarServiceStub{token: application.OAuthToken{AccessToken: "at"}}
		rec := serveCalendar(stub, nil, http.MethodPost, "/calendar/token", `{"code": "c1"}`)
		if !strings.Contains(rec.Body.String(), `"expiresAt":null`) {
			t.Fatalf("expected null expiresAt: %s", rec.Body.String())
		}
	})

	t.Run("invalid state", func(t *testing.T) {
		t.Parallel()

		stub := &calendarServiceStub{err: application.ErrInvalidState}
		rec := serveCalendar(stub, nil, http.MethodPost, "/calendar/token", `{"code": "c1", "state": "forged"}`)
		if rec.Code != http.StatusBadRequest || decodeError(t, rec).Code != "INVALID_STATE" {
			t.Fatalf("got %d %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("invalid json", func(t *testing.T) {
		t.Parallel()

		rec := serveCalendar(&calendarServiceStub{}, nil, http.MethodPost, "/calendar/token", "not json")
		if rec.Code != http.StatusBadRequest || decodeError(t, rec).Error != "Invalid JSON" {
			t.Fatalf("got %d %s", rec.Code, rec.Body.String())
		}
	})
}
