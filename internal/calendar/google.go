// Package calendar talks to external calendars: Google for busy time import and OAuth, CalDAV for
// publishing confirmed meetings, plus the iCalendar rendering both directions share.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/example/meeting-coordinator/internal/application"
)

const (
	primaryCalendarID = "primary"
	defaultBusyTitle  = "Busy"
)

// GoogleOAuth implements application.OAuthProvider on top of an oauth2 client configuration.
type GoogleOAuth struct {
	config     oauth2.Config
	httpClient *http.Client
}

// GoogleOAuthOption customises GoogleOAuth.
type GoogleOAuthOption func(*GoogleOAuth)

// WithOAuthEndpoint replaces the Google authorization and token endpoints.
func WithOAuthEndpoint(endpoint oauth2.Endpoint) GoogleOAuthOption {
	return func(g *GoogleOAuth) {
		g.config.Endpoint = endpoint
	}
}

// WithOAuthHTTPClient sets the client used for the token exchange.
func WithOAuthHTTPClient(client *http.Client) GoogleOAuthOption {
	return func(g *GoogleOAuth) {
		g.httpClient = client
	}
}

// NewGoogleOAuth configures read-only calendar consent for the given client credentials.
func NewGoogleOAuth(clientID, clientSecret string, opts ...GoogleOAuthOption) (*GoogleOAuth, error) {
	if strings.TrimSpace(clientID) == "" || strings.TrimSpace(clientSecret) == "" {
		return nil, errors.New("calendar: oauth client id and secret are required")
	}
	g := &GoogleOAuth{
		config: oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Scopes:       []string{gcal.CalendarReadonlyScope},
			Endpoint:     google.Endpoint,
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g, nil
}

func (g *GoogleOAuth) withRedirect(redirectURI string) *oauth2.Config {
	cfg := g.config
	cfg.RedirectURL = redirectURI
	return &cfg
}

// AuthCodeURL builds a consent URL requesting offline access so a refresh token is returned.
func (g *GoogleOAuth) AuthCodeURL(state, redirectURI string) string {
	return g.withRedirect(redirectURI).AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades the authorization code for tokens.
func (g *GoogleOAuth) Exchange(ctx context.Context, code, redirectURI string) (application.OAuthToken, error) {
	if g.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, g.httpClient)
	}
	token, err := g.withRedirect(redirectURI).Exchange(ctx, code)
	if err != nil {
		return application.OAuthToken{}, fmt.Errorf("calendar: exchange code: %w", err)
	}
	return application.OAuthToken{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Expiry:       token.Expiry,
	}, nil
}

// GoogleBusyTimes implements application.BusyTimeSource with the Calendar v3 events API.
type GoogleBusyTimes struct {
	endpoint   string
	httpClient *http.Client
}

// GoogleBusyTimesOption customises GoogleBusyTimes.
type GoogleBusyTimesOption func(*GoogleBusyTimes)

// WithCalendarEndpoint points the client at a different Calendar API base URL.
func WithCalendarEndpoint(endpoint string) GoogleBusyTimesOption {
	return func(g *GoogleBusyTimes) {
		g.endpoint = endpoint
	}
}

// WithCalendarHTTPClient sets the base transport wrapped with the caller's access token.
func WithCalendarHTTPClient(client *http.Client) GoogleBusyTimesOption {
	return func(g *GoogleBusyTimes) {
		g.httpClient = client
	}
}

// NewGoogleBusyTimes returns a busy time source for the caller's primary calendar.
func NewGoogleBusyTimes(opts ...GoogleBusyTimesOption) *GoogleBusyTimes {
	g := &GoogleBusyTimes{}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

// BusyTimes lists timed, opaque events on the primary calendar between start and end.
func (g *GoogleBusyTimes) BusyTimes(ctx context.Context, accessToken string, start, end time.Time) ([]application.BusyTime, error) {
	if g.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, g.httpClient)
	}
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}))

	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if g.endpoint != "" {
		opts = append(opts, option.WithEndpoint(g.endpoint))
	}
	service, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("calendar: create service: %w", err)
	}

	busy := make([]application.BusyTime, 0)
	err = service.Events.List(primaryCalendarID).
		SingleEvents(true).
		OrderBy("startTime").
		TimeMin(start.Format(time.RFC3339)).
		TimeMax(end.Format(time.RFC3339)).
		Pages(ctx, func(page *gcal.Events) error {
			busy = append(busy, toBusyTimes(page.Items)...)
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("calendar: list events: %w", err)
	}
	return busy, nil
}

func toBusyTimes(items []*gcal.Event) []application.BusyTime {
	result := make([]application.BusyTime, 0, len(items))
	for _, item := range items {
		// All-day entries only carry Date.
		if item.Start == nil || item.Start.DateTime == "" || item.End == nil || item.End.DateTime == "" {
			continue
		}
		if item.Transparency == "transparent" {
			continue
		}
		title := item.Summary
		if title == "" {
			title = defaultBusyTitle
		}
		result = append(result, application.BusyTime{
			Start: item.Start.DateTime,
			End:   item.End.DateTime,
			Title: title,
		})
	}
	return result
}
