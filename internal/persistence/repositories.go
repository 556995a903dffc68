package persistence

import "context"

// MeetingRepository stores meetings.
type MeetingRepository interface {
	CreateMeeting(ctx context.Context, meeting Meeting) error
	GetMeeting(ctx context.Context, id string) (Meeting, error)
	// UpdateMeeting writes the fields set in patch and nothing else. The suggestion quota is left
	// untouched. A status change whose ExpectedRemaining no longer matches returns ErrConflict.
	UpdateMeeting(ctx context.Context, id string, patch MeetingPatch) error
	// ConfirmMeeting atomically marks the meeting confirmed and decrements its suggestion quota,
	// provided the stored quota still equals expectedRemaining and is positive. ErrConflict is
	// returned otherwise.
	ConfirmMeeting(ctx context.Context, id string, expectedRemaining int, confirmation Confirmation) error
}

// AvailabilityRepository stores per participant availability for meetings.
type AvailabilityRepository interface {
	UpsertAvailability(ctx context.Context, availability Availability) error
	ListAvailabilities(ctx context.Context, meetingID string) ([]Availability, error)
}
