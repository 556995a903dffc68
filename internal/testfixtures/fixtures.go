package testfixtures

import (
	"fmt"
	"time"

	"github.com/example/meeting-coordinator/internal/application"
	"github.com/example/meeting-coordinator/internal/persistence"
)

var referenceTime = time.Date(2024, time.January, 10, 9, 0, 0, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// DefaultTimeSlots are the candidate slots used by meeting fixtures. All of them
// fall after ReferenceTime and after DefaultDeadline.
func DefaultTimeSlots() []string {
	return []string{
		"2024-01-15T10:00:00+09:00",
		"2024-01-15T14:00:00+09:00",
		"2024-01-16T10:00:00+09:00",
	}
}

// DefaultDeadline is the response deadline used by meeting fixtures.
const DefaultDeadline = "2024-01-14T23:59:59+09:00"

// MeetingRecord returns a persisted meeting in the scheduling state owned by creator.
func MeetingRecord(id, creator string) persistence.Meeting {
	deadline, _ := time.Parse(time.RFC3339, DefaultDeadline)
	return persistence.Meeting{
		ID:                     id,
		Title:                  fmt.Sprintf("Meeting %s", id),
		Description:            "Fixture meeting",
		TimeSlots:              DefaultTimeSlots(),
		Deadline:               deadline.UTC(),
		CreatorUID:             creator,
		Status:                 application.StatusScheduling,
		AISuggestionsRemaining: application.InitialSuggestionQuota,
		CreatedAt:              referenceTime,
		UpdatedAt:              referenceTime,
	}
}

// AvailabilityRecord returns a submission that marks every default slot with status.
func AvailabilityRecord(meetingID, userName, status string) persistence.Availability {
	schedule := make(map[string]persistence.SlotResponse, len(DefaultTimeSlots()))
	for _, slot := range DefaultTimeSlots() {
		schedule[slot] = persistence.SlotResponse{Status: status}
	}
	return persistence.Availability{
		MeetingID:   meetingID,
		UserID:      application.DeriveParticipantID(meetingID, userName),
		UserName:    userName,
		Schedule:    schedule,
		SubmittedAt: referenceTime,
	}
}

// CreateMeetingParams returns valid creation parameters for host.
func CreateMeetingParams(host, title string) application.CreateMeetingParams {
	description := "Fixture meeting"
	deadline := DefaultDeadline
	return application.CreateMeetingParams{
		Principal:   &application.Principal{UserID: host},
		Title:       &title,
		Description: &description,
		TimeSlots:   DefaultTimeSlots(),
		Deadline:    &deadline,
	}
}
