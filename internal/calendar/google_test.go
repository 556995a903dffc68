package calendar

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

func TestGoogleBusyTimes_FiltersEvents(t *testing.T) {
	t.Parallel()

	var gotQuery url.Values
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/calendars/primary/events") {
			http.NotFound(w, r)
			return
		}
		gotQuery = r.URL.Query()
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"items": []map[string]any{
				{"summary": "Standup", "start": map[string]string{"dateTime": "2024-01-15T10:00:00+09:00"}, "end": map[string]string{"dateTime": "2024-01-15T10:30:00+09:00"}},
				{"summary": "Holiday", "start": map[string]string{"date": "2024-01-16"}, "end": map[string]string{"date": "2024-01-17"}},
				{"summary": "Focus", "transparency": "transparent", "start": map[string]string{"dateTime": "2024-01-15T13:00:00+09:00"}, "end": map[string]string{"dateTime": "2024-01-15T14:00:00+09:00"}},
				{"start": map[string]string{"dateTime": "2024-01-15T15:00:00+09:00"}, "end": map[string]string{"dateTime": "2024-01-15T16:00:00+09:00"}},
			},
		})
	}))
	defer srv.Close()

	source := NewGoogleBusyTimes(WithCalendarEndpoint(srv.URL+"/"), WithCalendarHTTPClient(srv.Client()))
	start := time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC)
	busy, err := source.BusyTimes(context.Background(), "access-token", start, start.Add(7*24*time.Hour))
	if err != nil {
		t.Fatalf("BusyTimes returned error: %v", err)
	}

	if gotAuth != "Bearer access-token" {
		t.Fatalf("unexpected authorization header %q", gotAuth)
	}
	if gotQuery.Get("singleEvents") != "true" || gotQuery.Get("orderBy") != "startTime" {
		t.Fatalf("unexpected query %v", gotQuery)
	}
	if len(busy) != 2 {
		t.Fatalf("expected 2 busy periods, got %+v", busy)
	}
	if busy[0].Title != "Standup" || busy[1].Title != "Busy" {
		t.Fatalf("unexpected titles %+v", busy)
	}
}

func TestGoogleBusyTimes_UpstreamError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":401,"message":"Invalid Credentials"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	source := NewGoogleBusyTimes(WithCalendarEndpoint(srv.URL+"/"), WithCalendarHTTPClient(srv.Client()))
	start := time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC)
	if _, err := source.BusyTimes(context.Background(), "expired", start, start.Add(time.Hour)); err == nil {
		t.Fatal("expected error from upstream failure")
	}
}

func TestGoogleOAuth(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.Form.Get("code") != "good-code" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		if r.Form.Get("redirect_uri") != "https://app.example.com/cb" {
			t.Errorf("unexpected redirect_uri %q", r.Form.Get("redirect_uri"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at","refresh_token":"rt","token_type":"Bearer","expires_in":3600}`))
	}))
	defer srv.Close()

	provider, err := NewGoogleOAuth("client", "secret",
		WithOAuthEndpoint(oauth2.Endpoint{AuthURL: "https://accounts.example.com/auth", TokenURL: srv.URL + "/token"}),
		WithOAuthHTTPClient(srv.Client()),
	)
	if err != nil {
		t.Fatalf("NewGoogleOAuth returned error: %v", err)
	}

	consent, err := url.Parse(provider.AuthCodeURL("state-1", "https://app.example.com/cb"))
	if err != nil {
		t.Fatalf("invalid consent url: %v", err)
	}
	q := consent.Query()
	if q.Get("state") != "state-1" || q.Get("access_type") != "offline" || !strings.Contains(q.Get("scope"), "calendar.readonly") {
		t.Fatalf("unexpected consent query %v", q)
	}

	token, err := provider.Exchange(context.Background(), "good-code", "https://app.example.com/cb")
	if err != nil {
		t.Fatalf("Exchange returned error: %v", err)
	}
	if token.AccessToken != "at" || token.RefreshToken != "rt" || token.Expiry.IsZero() {
		t.Fatalf("unexpected token %+v", token)
	}

	if _, err := provider.Exchange(context.Background(), "bad-code", "https://app.example.com/cb"); err == nil {
		t.Fatal("expected exchange failure")
	}

	if _, err := NewGoogleOAuth("", "secret"); err == nil {
		t.Fatal("expected error for missing client id")
	}
}
