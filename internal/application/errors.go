package application

import (
	"errors"
	"sort"
)

var (
	// ErrUnauthorized is returned when an operation requires a credential and none was supplied.
	ErrUnauthorized = errors.New("application: unauthorized")
	// ErrUnauthenticated is returned when a supplied credential fails verification.
	ErrUnauthenticated = errors.New("application: invalid credential")
	// ErrForbidden is returned when the acting principal is not the meeting creator.
	ErrForbidden = errors.New("application: forbidden")
	// ErrNotFound is returned when the requested meeting does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrNoValidFields is returned when an update carries none of the editable fields.
	ErrNoValidFields = errors.New("application: no valid fields to update")
	// ErrMeetingClosed is returned when availability is submitted to a meeting that is no longer scheduling.
	ErrMeetingClosed = errors.New("application: meeting closed")
	// ErrDeadlinePassed is returned when availability is submitted after the response deadline.
	ErrDeadlinePassed = errors.New("application: deadline passed")
	// ErrQuotaExhausted is returned when no automated suggestions remain for a meeting.
	ErrQuotaExhausted = errors.New("application: suggestion quota exhausted")
	// ErrNoParticipants is returned when a suggestion is requested before anyone responded.
	ErrNoParticipants = errors.New("application: no participants")
	// ErrGenerationFailed is returned when the suggestion model could not produce a reply.
	ErrGenerationFailed = errors.New("application: generation failed")
	// ErrConcurrentUpdate is returned when a conditional write lost a race with another writer.
	ErrConcurrentUpdate = errors.New("application: concurrent update")
	// ErrNotConfirmed is returned when a confirmed-only view is requested for an open meeting.
	ErrNotConfirmed = errors.New("application: meeting not confirmed")
	// ErrCalendarFetch is returned when the calendar provider could not list events.
	ErrCalendarFetch = errors.New("application: calendar fetch failed")
	// ErrCodeExchange is returned when the OAuth authorization code could not be exchanged.
	ErrCodeExchange = errors.New("application: authorization code exchange failed")
	// ErrInvalidState is returned when an OAuth state value is forged, expired or replayed.
	ErrInvalidState = errors.New("application: invalid oauth state")
	// ErrCalendarDisabled is returned when calendar integration has not been configured.
	ErrCalendarDisabled = errors.New("application: calendar integration disabled")
)

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
	order       []string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	return "validation failed"
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// FirstMessage returns the message of the earliest recorded field.
func (v *ValidationError) FirstMessage() string {
	if !v.HasErrors() {
		return ""
	}
	for _, field := range v.order {
		if msg, ok := v.FieldErrors[field]; ok {
			return msg
		}
	}
	keys := make([]string, 0, len(v.FieldErrors))
	for field := range v.FieldErrors {
		keys = append(keys, field)
	}
	sort.Strings(keys)
	return v.FieldErrors[keys[0]]
}

// add records a field level validation error.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	if _, exists := v.FieldErrors[field]; !exists {
		v.order = append(v.order, field)
	}
	v.FieldErrors[field] = message
}

// merge copies entries from another validation error into the receiver.
func (v *ValidationError) merge(other *ValidationError) {
	if other == nil || len(other.FieldErrors) == 0 {
		return
	}
	seen := make(map[string]bool, len(other.order))
	for _, field := range other.order {
		if msg, ok := other.FieldErrors[field]; ok {
			v.add(field, msg)
			seen[field] = true
		}
	}
	rest := make([]string, 0, len(other.FieldErrors))
	for field := range other.FieldErrors {
		if !seen[field] {
			rest = append(rest, field)
		}
	}
	sort.Strings(rest)
	for _, field := range rest {
		v.add(field, other.FieldErrors[field])
	}
}

func missingField(v *ValidationError, field string) {
	v.add(field, "Missing required field: "+field)
}
