package persistence

import "time"

// Meeting represents a scheduling poll stored in persistence.
type Meeting struct {
	ID                     string
	Title                  string
	Description            string
	TimeSlots              []string
	Deadline               time.Time
	CreatorUID             string
	Status                 string
	ConfirmedDateTime      *string
	ConfirmedReason        *string
	AISuggestionsRemaining int
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// SlotResponse is a participant's answer for a single candidate slot.
type SlotResponse struct {
	Status  string `json:"status"`
	Comment string `json:"comment,omitempty"`
}

// Availability represents one participant's submission for a meeting.
type Availability struct {
	MeetingID   string
	UserID      string
	UserName    string
	Schedule    map[string]SlotResponse
	SubmittedAt time.Time
}

// Confirmation carries the fields written when a meeting is confirmed through a suggestion.
type Confirmation struct {
	DateTime  string
	Reason    string
	UpdatedAt time.Time
}

// MeetingPatch lists the host editable fields of a meeting. Nil fields keep their stored value.
type MeetingPatch struct {
	Title       *string
	Description *string
	Deadline    *time.Time
	Status      *StatusChange
	UpdatedAt   time.Time
}

// StatusChange moves a meeting between scheduling and confirmed. It applies only while the stored
// suggestion quota still equals ExpectedRemaining.
type StatusChange struct {
	Status            string
	ConfirmedDateTime *string
	ConfirmedReason   *string
	ExpectedRemaining int
}
