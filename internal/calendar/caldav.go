package calendar

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/emersion/go-webdav/caldav"

	"github.com/example/meeting-coordinator/internal/application"
)

// basicAuthTransport adds credentials and a user agent to every CalDAV request.
type basicAuthTransport struct {
	username  string
	password  string
	transport http.RoundTripper
}

func (t *basicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	if t.username != "" {
		req.SetBasicAuth(t.username, t.password)
	}
	req.Header.Set("User-Agent", "meeting-coordinator/1.0")
	return t.transport.RoundTrip(req)
}

// CalDAVConfig locates the calendar collection confirmed meetings are written to.
type CalDAVConfig struct {
	Endpoint     string
	Username     string
	Password     string
	CalendarPath string
	Transport    http.RoundTripper
}

// CalDAVPublisher writes confirmed meetings into a CalDAV calendar as <calendar>/<meetingId>.ics.
type CalDAVPublisher struct {
	client       *caldav.Client
	calendarPath string
	now          func() time.Time
	logger       *slog.Logger
}

// NewCalDAVPublisher builds a publisher for cfg.
func NewCalDAVPublisher(cfg CalDAVConfig, logger *slog.Logger) (*CalDAVPublisher, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("calendar: caldav endpoint is required")
	}
	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	httpClient := &http.Client{
		Transport: &basicAuthTransport{username: cfg.Username, password: cfg.Password, transport: transport},
		Timeout:   30 * time.Second,
	}

	client, err := caldav.NewClient(httpClient, cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create caldav client: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	calendarPath := cfg.CalendarPath
	if calendarPath == "" {
		calendarPath = "/"
	}

	return &CalDAVPublisher{client: client, calendarPath: calendarPath, now: time.Now, logger: logger}, nil
}

// ObjectPath is the resource path a meeting is stored under.
func (p *CalDAVPublisher) ObjectPath(meetingID string) string {
	return path.Join(p.calendarPath, meetingID+".ics")
}

// Publish creates or replaces the calendar object for meeting.
func (p *CalDAVPublisher) Publish(ctx context.Context, meeting application.Meeting) error {
	cal, err := MeetingCalendar(meeting, p.now())
	if err != nil {
		return err
	}

	objectPath := p.ObjectPath(meeting.ID)
	if _, err := p.client.PutCalendarObject(ctx, objectPath, cal); err != nil {
		return fmt.Errorf("failed to put calendar object %s: %w", objectPath, err)
	}

	p.logger.InfoContext(ctx, "published meeting to caldav", "meeting_id", meeting.ID, "path", objectPath)
	return nil
}
