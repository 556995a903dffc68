package calendar

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-ical"

	"github.com/example/meeting-coordinator/internal/application"
)

const (
	productID       = "-//meeting-coordinator//EN"
	meetingDuration = time.Hour
	uidDomain       = "meeting-coordinator"
)

// ErrNotConfirmed is returned when rendering a meeting that has no confirmed slot.
var ErrNotConfirmed = errors.New("calendar: meeting is not confirmed")

// MeetingCalendar renders a confirmed meeting as a VCALENDAR with a single one hour VEVENT.
func MeetingCalendar(meeting application.Meeting, stamp time.Time) (*ical.Calendar, error) {
	if meeting.Status != application.StatusConfirmed || meeting.ConfirmedDateTime == nil {
		return nil, ErrNotConfirmed
	}
	start, err := time.Parse(time.RFC3339, *meeting.ConfirmedDateTime)
	if err != nil {
		return nil, fmt.Errorf("calendar: parse confirmed date: %w", err)
	}

	event := ical.NewEvent()
	event.Props.SetText(ical.PropUID, meeting.ID+"@"+uidDomain)
	event.Props.SetText(ical.PropSummary, meeting.Title)
	event.Props.SetDateTime(ical.PropDateTimeStamp, stamp.UTC())
	event.Props.SetDateTime(ical.PropDateTimeStart, start.UTC())
	event.Props.SetDateTime(ical.PropDateTimeEnd, start.Add(meetingDuration).UTC())
	if description := eventDescription(meeting); description != "" {
		event.Props.SetText(ical.PropDescription, description)
	}

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)
	cal.Children = append(cal.Children, event.Component)
	return cal, nil
}

// EncodeMeeting writes the iCalendar rendering of meeting to w.
func EncodeMeeting(w io.Writer, meeting application.Meeting, stamp time.Time) error {
	cal, err := MeetingCalendar(meeting, stamp)
	if err != nil {
		return err
	}
	return ical.NewEncoder(w).Encode(cal)
}

func eventDescription(meeting application.Meeting) string {
	parts := make([]string, 0, 2)
	if strings.TrimSpace(meeting.Description) != "" {
		parts = append(parts, meeting.Description)
	}
	if meeting.ConfirmedReason != nil && *meeting.ConfirmedReason != "" {
		parts = append(parts, *meeting.ConfirmedReason)
	}
	return strings.Join(parts, "\n\n")
}
