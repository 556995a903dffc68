// Package memory provides a process local implementation of the meeting store.
package memory

import (
	"context"
	"maps"
	"sort"
	"sync"

	"github.com/example/meeting-coordinator/internal/persistence"
)

// Storage keeps meetings and availability records in mutex guarded maps.
type Storage struct {
	mu             sync.RWMutex
	meetings       map[string]persistence.Meeting
	availabilities map[string]map[string]persistence.Availability
}

// Open returns a new empty Storage instance.
func Open() *Storage {
	return &Storage{
		meetings:       make(map[string]persistence.Meeting),
		availabilities: make(map[string]map[string]persistence.Availability),
	}
}

// Close releases resources held by the storage. No-op for the in-memory implementation.
func (s *Storage) Close() error {
	return nil
}

// Migrate initialises the storage. No-op for the in-memory implementation.
func (s *Storage) Migrate(context.Context) error {
	return nil
}

// --- MeetingRepository implementation ---

// CreateMeeting stores a new meeting.
func (s *Storage) CreateMeeting(ctx context.Context, meeting persistence.Meeting) error {
	if meeting.ID == "" {
		return persistence.ErrConstraintViolation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.meetings[meeting.ID]; ok {
		return persistence.ErrDuplicate
	}

	s.meetings[meeting.ID] = cloneMeeting(meeting)
	return nil
}

// GetMeeting retrieves a meeting by ID.
func (s *Storage) GetMeeting(ctx context.Context, id string) (persistence.Meeting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	meeting, ok := s.meetings[id]
	if !ok {
		return persistence.Meeting{}, persistence.ErrNotFound
	}
	return cloneMeeting(meeting), nil
}

// UpdateMeeting applies the fields set in patch to an existing meeting.
func (s *Storage) UpdateMeeting(ctx context.Context, id string, patch persistence.MeetingPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.meetings[id]
	if !ok {
		return persistence.ErrNotFound
	}
	if change := patch.Status; change != nil && existing.AISuggestionsRemaining != change.ExpectedRemaining {
		return persistence.ErrConflict
	}

	if patch.Title != nil {
		existing.Title = *patch.Title
	}
	if patch.Description != nil {
		existing.Description = *patch.Description
	}
	if patch.Deadline != nil {
		existing.Deadline = *patch.Deadline
	}
	if change := patch.Status; change != nil {
		existing.Status = change.Status
		existing.ConfirmedDateTime = cloneString(change.ConfirmedDateTime)
		existing.ConfirmedReason = cloneString(change.ConfirmedReason)
	}
	existing.UpdatedAt = patch.UpdatedAt
	s.meetings[id] = existing
	return nil
}

// ConfirmMeeting applies a suggestion result when the stored quota matches expectedRemaining.
func (s *Storage) ConfirmMeeting(ctx context.Context, id string, expectedRemaining int, confirmation persistence.Confirmation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.meetings[id]
	if !ok {
		return persistence.ErrNotFound
	}
	if existing.AISuggestionsRemaining != expectedRemaining || existing.AISuggestionsRemaining <= 0 {
		return persistence.ErrConflict
	}

	date := confirmation.DateTime
	reason := confirmation.Reason
	existing.Status = "confirmed"
	existing.ConfirmedDateTime = &date
	existing.ConfirmedReason = &reason
	existing.AISuggestionsRemaining--
	existing.UpdatedAt = confirmation.UpdatedAt
	s.meetings[id] = existing
	return nil
}

// --- AvailabilityRepository implementation ---

// UpsertAvailability stores or replaces the availability record of a participant.
func (s *Storage) UpsertAvailability(ctx context.Context, availability persistence.Availability) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.meetings[availability.MeetingID]; !ok {
		return persistence.ErrNotFound
	}

	records, ok := s.availabilities[availability.MeetingID]
	if !ok {
		records = make(map[string]persistence.Availability)
		s.availabilities[availability.MeetingID] = records
	}
	records[availability.UserID] = cloneAvailability(availability)
	return nil
}

// ListAvailabilities returns every availability record for a meeting ordered by SubmittedAt.
func (s *Storage) ListAvailabilities(ctx context.Context, meetingID string) ([]persistence.Availability, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := s.availabilities[meetingID]
	if len(records) == 0 {
		return nil, nil
	}

	result := make([]persistence.Availability, 0, len(records))
	for _, record := range records {
		result = append(result, cloneAvailability(record))
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].SubmittedAt.Equal(result[j].SubmittedAt) {
			return result[i].UserID < result[j].UserID
		}
		return result[i].SubmittedAt.Before(result[j].SubmittedAt)
	})

	return result, nil
}

func cloneMeeting(meeting persistence.Meeting) persistence.Meeting {
	clone := meeting
	clone.TimeSlots = append([]string(nil), meeting.TimeSlots...)
	clone.ConfirmedDateTime = cloneString(meeting.ConfirmedDateTime)
	clone.ConfirmedReason = cloneString(meeting.ConfirmedReason)
	return clone
}

func cloneAvailability(availability persistence.Availability) persistence.Availability {
	clone := availability
	if availability.Schedule != nil {
		clone.Schedule = maps.Clone(availability.Schedule)
	}
	return clone
}

func cloneString(value *string) *string {
	if value == nil {
		return nil
	}
	clone := *value
	return &clone
}
