package application

import "time"

// Meeting statuses.
const (
	StatusScheduling = "scheduling"
	StatusConfirmed  = "confirmed"
)

// Slot statuses a participant may report.
const (
	SlotAvailable   = "available"
	SlotMaybe       = "maybe"
	SlotUnavailable = "unavailable"
)

// InitialSuggestionQuota is the number of automated suggestions a new meeting may use.
const InitialSuggestionQuota = 2

// DefaultConfirmedReason is stored when the host confirms a slot without giving a reason.
const DefaultConfirmedReason = "Confirmed by host"

// Principal represents the authenticated user invoking a service method.
type Principal struct {
	UserID string
}

// SlotResponse is a participant's answer for one candidate slot.
type SlotResponse struct {
	Status  string `json:"status"`
	Comment string `json:"comment,omitempty"`
}

// Meeting represents a scheduling poll.
type Meeting struct {
	ID                     string    `json:"id"`
	Title                  string    `json:"title"`
	Description            string    `json:"description"`
	TimeSlots              []string  `json:"timeSlots"`
	Deadline               time.Time `json:"deadline"`
	CreatorUID             string    `json:"creatorUid"`
	Status                 string    `json:"status"`
	ConfirmedDateTime      *string   `json:"confirmedDateTime"`
	ConfirmedReason        *string   `json:"confirmedReason"`
	AISuggestionsRemaining int       `json:"aiSuggestionsRemaining"`
	CreatedAt              time.Time `json:"createdAt"`
	UpdatedAt              time.Time `json:"updatedAt"`
}

// Availability is one participant's submission for a meeting.
type Availability struct {
	UserID      string                  `json:"userId"`
	UserName    string                  `json:"userName"`
	Schedule    map[string]SlotResponse `json:"schedule"`
	SubmittedAt time.Time               `json:"submittedAt"`
}

// MeetingDetails bundles a meeting with every availability record submitted for it.
type MeetingDetails struct {
	Meeting      Meeting
	Participants []Availability
}

// CreateMeetingParams wraps the data required to create a meeting.
type CreateMeetingParams struct {
	Principal   *Principal
	Title       *string
	Description *string
	TimeSlots   []string
	Deadline    *string
}

// UpdateMeetingParams carries the host supplied subset of editable fields.
// Nil pointers are left untouched.
type UpdateMeetingParams struct {
	Principal         *Principal
	MeetingID         string
	Title             *string
	Description       *string
	Deadline          *string
	Status            *string
	ConfirmedDateTime *string
	ConfirmedReason   *string
}

// SubmitAvailabilityParams wraps a participant submission. Principal is nil for anonymous callers.
type SubmitAvailabilityParams struct {
	Principal *Principal
	MeetingID string
	UserName  *string
	Schedule  map[string]SlotResponse
}

// ConfirmBySuggestionParams wraps a host request for an automated suggestion.
type ConfirmBySuggestionParams struct {
	Principal        *Principal
	MeetingID        string
	HostInstructions string
}

// SuggestionResult is the slot picked for a meeting and the explanation that came with it.
type SuggestionResult struct {
	Date   string `json:"date"`
	Reason string `json:"reason"`
}
