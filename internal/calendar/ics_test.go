package calendar

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/emersion/go-ical"

	"github.com/example/meeting-coordinator/internal/application"
)

func confirmedMeeting() application.Meeting {
	date := "2024-01-15T10:00:00+09:00"
	reason := "Everyone is available"
	return application.Meeting{
		ID:                "m-1",
		Title:             "Quarterly planning",
		Description:       "Bring numbers",
		Status:            application.StatusConfirmed,
		ConfirmedDateTime: &date,
		ConfirmedReason:   &reason,
	}
}

func TestMeetingCalendar(t *testing.T) {
	t.Parallel()

	stamp := time.Date(2024, time.January, 10, 9, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	if err := EncodeMeeting(&buf, confirmedMeeting(), stamp); err != nil {
		t.Fatalf("EncodeMeeting returned error: %v", err)
	}

	cal, err := ical.NewDecoder(&buf).Decode()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	events := cal.Events()
	if len(events) != 1 {
		t.Fatalf("expected one event, got %d", len(events))
	}
	event := events[0]

	if uid, _ := event.Props.Text(ical.PropUID); uid != "m-1@meeting-coordinator" {
		t.Fatalf("unexpected uid %q", uid)
	}
	start, err := event.DateTimeStart(time.UTC)
	if err != nil {
		t.Fatalf("DTSTART: %v", err)
	}
	end, err := event.DateTimeEnd(time.UTC)
	if err != nil {
		t.Fatalf("DTEND: %v", err)
	}
	if !start.Equal(time.Date(2024, time.January, 15, 1, 0, 0, 0, time.UTC)) || end.Sub(start) != time.Hour {
		t.Fatalf("unexpected window %v - %v", start, end)
	}
	if desc, _ := event.Props.Text(ical.PropDescription); !strings.Contains(desc, "Everyone is available") {
		t.Fatalf("description missing reason: %q", desc)
	}
}

func TestMeetingCalendar_NotConfirmed(t *testing.T) {
	t.Parallel()

	meeting := confirmedMeeting()
	meeting.Status = application.StatusScheduling
	if _, err := MeetingCalendar(meeting, time.Now()); !errors.Is(err, ErrNotConfirmed) {
		t.Fatalf("expected ErrNotConfirmed, got %v", err)
	}
}

func TestCalDAVPublisher_Publish(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var gotMethod, gotPath, gotUser, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		user, _, _ := r.BasicAuth()
		mu.Lock()
		gotMethod, gotPath, gotUser, gotBody = r.Method, r.URL.Path, user, string(body)
		mu.Unlock()
		w.Header().Set("ETag", `"v1"`)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	publisher, err := NewCalDAVPublisher(CalDAVConfig{
		Endpoint:     srv.URL,
		Username:     "host",
		Password:     "secret",
		CalendarPath: "/calendars/host/meetings/",
	}, nil)
	if err != nil {
		t.Fatalf("NewCalDAVPublisher returned error: %v", err)
	}

	if err := publisher.Publish(context.Background(), confirmedMeeting()); err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if gotMethod != http.MethodPut || gotPath != "/calendars/host/meetings/m-1.ics" {
		t.Fatalf("unexpected request %s %s", gotMethod, gotPath)
	}
	if gotUser != "host" {
		t.Fatalf("basic auth not applied, user=%q", gotUser)
	}
	if !strings.Contains(gotBody, "BEGIN:VEVENT") {
		t.Fatalf("body is not an iCalendar object: %s", gotBody)
	}
}
