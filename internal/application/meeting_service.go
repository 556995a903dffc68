package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/example/meeting-coordinator/internal/persistence"
	"github.com/example/meeting-coordinator/internal/suggestion"
)

// Suggester proposes a slot from aggregated availability.
type Suggester interface {
	Suggest(ctx context.Context, in suggestion.Input) (suggestion.Result, error)
}

// MeetingService orchestrates validation, authorization and persistence for meetings.
type MeetingService struct {
	meetings       persistence.MeetingRepository
	availabilities persistence.AvailabilityRepository
	aggregator     *AvailabilityAggregator
	suggester      Suggester
	publisher      EventPublisher
	idGenerator    func() string
	now            func() time.Time
	logger         *slog.Logger
}

// NewMeetingService constructs a meeting service with the provided dependencies.
func NewMeetingService(meetings persistence.MeetingRepository, availabilities persistence.AvailabilityRepository, suggester Suggester, idGenerator func() string, now func() time.Time) *MeetingService {
	return NewMeetingServiceWithLogger(meetings, availabilities, suggester, idGenerator, now, nil)
}

// NewMeetingServiceWithLogger constructs a meeting service with a specified logger.
func NewMeetingServiceWithLogger(meetings persistence.MeetingRepository, availabilities persistence.AvailabilityRepository, suggester Suggester, idGenerator func() string, now func() time.Time, logger *slog.Logger) *MeetingService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &MeetingService{
		meetings:       meetings,
		availabilities: availabilities,
		aggregator:     NewAvailabilityAggregator(availabilities),
		suggester:      suggester,
		idGenerator:    idGenerator,
		now:            now,
		logger:         defaultLogger(logger),
	}
}

// SetEventPublisher registers the publisher notified after successful writes.
func (s *MeetingService) SetEventPublisher(publisher EventPublisher) {
	s.publisher = publisher
}

func (s *MeetingService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "MeetingService", operation, attrs...)
}

// CreateMeeting validates the request and stores a new meeting owned by the principal.
func (s *MeetingService) CreateMeeting(ctx context.Context, params CreateMeetingParams) (meeting Meeting, err error) {
	if s == nil {
		err = fmt.Errorf("MeetingService is nil")
		return
	}

	logger := s.loggerWith(ctx, "CreateMeeting", "principal_id", principalID(params.Principal))
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create meeting", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("meeting_id", meeting.ID).InfoContext(ctx, "meeting created")
	}()

	if params.Principal == nil || params.Principal.UserID == "" {
		err = ErrUnauthorized
		return
	}

	vErr := &ValidationError{}
	title := ""
	if params.Title != nil {
		title = strings.TrimSpace(*params.Title)
	}
	if title == "" {
		missingField(vErr, "title")
	}
	if len(params.TimeSlots) == 0 {
		missingField(vErr, "timeSlots")
	}
	if params.Deadline == nil || strings.TrimSpace(*params.Deadline) == "" {
		missingField(vErr, "deadline")
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	slots, slotErr := validateTimeSlots(params.TimeSlots)
	vErr.merge(slotErr)
	deadline, parseErr := parseTimestamp(*params.Deadline)
	if parseErr != nil {
		vErr.add("deadline", "Invalid deadline: must be an RFC 3339 timestamp")
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	description := ""
	if params.Description != nil {
		description = *params.Description
	}

	createdAt := s.now().UTC()
	record := persistence.Meeting{
		ID:                     s.idGenerator(),
		Title:                  title,
		Description:            description,
		TimeSlots:              slots,
		Deadline:               deadline,
		CreatorUID:             params.Principal.UserID,
		Status:                 StatusScheduling,
		AISuggestionsRemaining: InitialSuggestionQuota,
		CreatedAt:              createdAt,
		UpdatedAt:              createdAt,
	}

	if err = s.meetings.CreateMeeting(ctx, record); err != nil {
		err = mapRepoError(err)
		return
	}

	meeting = toMeeting(record)
	return
}

// GetMeeting returns the meeting and every availability record submitted for it.
func (s *MeetingService) GetMeeting(ctx context.Context, meetingID string) (details MeetingDetails, err error) {
	if s == nil {
		err = fmt.Errorf("MeetingService is nil")
		return
	}

	logger := s.loggerWith(ctx, "GetMeeting", "meeting_id", meetingID)
	defer func() {
		if err != nil && !errors.Is(err, ErrNotFound) {
			logger.ErrorContext(ctx, "failed to get meeting", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	record, err := s.meetings.GetMeeting(ctx, meetingID)
	if err != nil {
		err = mapRepoError(err)
		return
	}

	records, err := s.availabilities.ListAvailabilities(ctx, meetingID)
	if err != nil {
		err = mapRepoError(err)
		return
	}

	details.Meeting = toMeeting(record)
	details.Participants = make([]Availability, 0, len(records))
	for _, r := range records {
		details.Participants = append(details.Participants, toAvailability(r))
	}
	return
}

// UpdateMeeting applies the host's changes to the editable fields of a meeting.
func (s *MeetingService) UpdateMeeting(ctx context.Context, params UpdateMeetingParams) (meeting Meeting, err error) {
	if s == nil {
		err = fmt.Errorf("MeetingService is nil")
		return
	}

	logger := s.loggerWith(ctx, "UpdateMeeting",
		"principal_id", principalID(params.Principal),
		"meeting_id", params.MeetingID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update meeting", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("status", meeting.Status).InfoContext(ctx, "meeting updated")
	}()

	if params.Principal == nil || params.Principal.UserID == "" {
		err = ErrUnauthorized
		return
	}

	existing, err := s.meetings.GetMeeting(ctx, params.MeetingID)
	if err != nil {
		err = mapRepoError(err)
		return
	}
	if existing.CreatorUID != params.Principal.UserID {
		err = ErrForbidden
		return
	}

	patch, changed, vErr := meetingPatch(existing, params)
	if !changed {
		err = ErrNoValidFields
		return
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	patch.UpdatedAt = s.now().UTC()
	if err = s.meetings.UpdateMeeting(ctx, existing.ID, patch); err != nil {
		err = mapRepoError(err)
		return
	}
	updated, err := s.meetings.GetMeeting(ctx, existing.ID)
	if err != nil {
		err = mapRepoError(err)
		return
	}

	meeting = toMeeting(updated)
	s.publish(ctx, Event{
		Type:       EventMeetingUpdated,
		MeetingID:  meeting.ID,
		Data:       map[string]any{"status": meeting.Status},
		OccurredAt: updated.UpdatedAt,
	})
	if meeting.Status == StatusConfirmed && params.Status != nil {
		s.publish(ctx, confirmedEvent(meeting.ID, *meeting.ConfirmedDateTime, *meeting.ConfirmedReason, updated.UpdatedAt))
	}
	return
}

// SubmitAvailability stores the caller's availability, replacing any previous submission.
// Anonymous callers are keyed by DeriveParticipantID.
func (s *MeetingService) SubmitAvailability(ctx context.Context, params SubmitAvailabilityParams) (availability Availability, err error) {
	if s == nil {
		err = fmt.Errorf("MeetingService is nil")
		return
	}

	logger := s.loggerWith(ctx, "SubmitAvailability",
		"principal_id", principalID(params.Principal),
		"meeting_id", params.MeetingID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to submit availability", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("user_id", availability.UserID).InfoContext(ctx, "availability submitted")
	}()

	vErr := &ValidationError{}
	if params.UserName == nil || strings.TrimSpace(*params.UserName) == "" {
		missingField(vErr, "userName")
	}
	if params.Schedule == nil {
		missingField(vErr, "schedule")
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}
	vErr.merge(validateSchedule(params.Schedule))
	if vErr.HasErrors() {
		err = vErr
		return
	}

	userName := *params.UserName
	userID := DeriveParticipantID(params.MeetingID, userName)
	if params.Principal != nil && params.Principal.UserID != "" {
		userID = params.Principal.UserID
	}

	meeting, err := s.meetings.GetMeeting(ctx, params.MeetingID)
	if err != nil {
		err = mapRepoError(err)
		return
	}
	if meeting.Status != StatusScheduling {
		err = ErrMeetingClosed
		return
	}
	now := s.now().UTC()
	if now.After(meeting.Deadline) {
		err = ErrDeadlinePassed
		return
	}

	record := persistence.Availability{
		MeetingID:   params.MeetingID,
		UserID:      userID,
		UserName:    userName,
		Schedule:    toPersistenceSchedule(params.Schedule),
		SubmittedAt: now,
	}
	if err = s.availabilities.UpsertAvailability(ctx, record); err != nil {
		err = mapRepoError(err)
		return
	}

	availability = toAvailability(record)
	s.publish(ctx, Event{
		Type:       EventAvailabilitySubmitted,
		MeetingID:  params.MeetingID,
		Data:       map[string]any{"userId": userID, "userName": userName},
		OccurredAt: now,
	})
	return
}

// ConfirmBySuggestion asks the suggestion engine for a slot and confirms the meeting with it.
// The quota is spent through a compare-and-set so concurrent requests cannot overspend it.
func (s *MeetingService) ConfirmBySuggestion(ctx context.Context, params ConfirmBySuggestionParams) (result SuggestionResult, err error) {
	if s == nil {
		err = fmt.Errorf("MeetingService is nil")
		return
	}

	logger := s.loggerWith(ctx, "ConfirmBySuggestion",
		"principal_id", principalID(params.Principal),
		"meeting_id", params.MeetingID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to confirm meeting by suggestion", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("confirmed_date_time", result.Date).InfoContext(ctx, "meeting confirmed by suggestion")
	}()

	if params.Principal == nil || params.Principal.UserID == "" {
		err = ErrUnauthorized
		return
	}

	meeting, err := s.meetings.GetMeeting(ctx, params.MeetingID)
	if err != nil {
		err = mapRepoError(err)
		return
	}
	if meeting.CreatorUID != params.Principal.UserID {
		err = ErrForbidden
		return
	}
	if meeting.AISuggestionsRemaining <= 0 {
		err = ErrQuotaExhausted
		return
	}

	participants, err := s.aggregator.Aggregate(ctx, meeting)
	if err != nil {
		return
	}

	if s.suggester == nil {
		err = fmt.Errorf("%w: no suggester configured", ErrGenerationFailed)
		return
	}
	suggested, err := s.suggester.Suggest(ctx, suggestion.Input{
		MeetingTitle:     meeting.Title,
		TimeSlots:        append([]string(nil), meeting.TimeSlots...),
		Participants:     toSuggestionParticipants(participants),
		HostInstructions: params.HostInstructions,
	})
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrGenerationFailed, err)
		return
	}

	confirmedAt := s.now().UTC()
	err = s.meetings.ConfirmMeeting(ctx, meeting.ID, meeting.AISuggestionsRemaining, persistence.Confirmation{
		DateTime:  suggested.Date,
		Reason:    suggested.Reason,
		UpdatedAt: confirmedAt,
	})
	if err != nil {
		err = mapRepoError(err)
		return
	}

	result = SuggestionResult{Date: suggested.Date, Reason: suggested.Reason}
	s.publish(ctx, confirmedEvent(meeting.ID, result.Date, result.Reason, confirmedAt))
	return
}

// ConfirmedMeeting returns the meeting when it has been confirmed and ErrNotConfirmed otherwise.
func (s *MeetingService) ConfirmedMeeting(ctx context.Context, meetingID string) (Meeting, error) {
	record, err := s.meetings.GetMeeting(ctx, meetingID)
	if err != nil {
		return Meeting{}, mapRepoError(err)
	}
	if record.Status != StatusConfirmed || record.ConfirmedDateTime == nil {
		return Meeting{}, ErrNotConfirmed
	}
	return toMeeting(record), nil
}

func (s *MeetingService) publish(ctx context.Context, event Event) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(ctx, event)
}

func confirmedEvent(meetingID, date, reason string, at time.Time) Event {
	return Event{
		Type:       EventMeetingConfirmed,
		MeetingID:  meetingID,
		Data:       map[string]any{"date": date, "reason": reason},
		OccurredAt: at,
	}
}

// meetingPatch turns the request into a patch carrying only the fields the host sent.
func meetingPatch(existing persistence.Meeting, params UpdateMeetingParams) (persistence.MeetingPatch, bool, *ValidationError) {
	var patch persistence.MeetingPatch
	changed := false
	vErr := &ValidationError{}

	if params.Title != nil {
		changed = true
		title := strings.TrimSpace(*params.Title)
		if title == "" {
			vErr.add("title", "Invalid title: must not be empty")
		} else {
			patch.Title = &title
		}
	}
	if params.Description != nil {
		changed = true
		description := *params.Description
		patch.Description = &description
	}
	if params.Deadline != nil {
		changed = true
		deadline, err := parseTimestamp(*params.Deadline)
		if err != nil {
			vErr.add("deadline", "Invalid deadline: must be an RFC 3339 timestamp")
		} else {
			patch.Deadline = &deadline
		}
	}
	if params.Status != nil {
		changed = true
		switch *params.Status {
		case StatusScheduling:
			patch.Status = &persistence.StatusChange{
				Status:            StatusScheduling,
				ExpectedRemaining: existing.AISuggestionsRemaining,
			}
		case StatusConfirmed:
			confirmedAt := ""
			if params.ConfirmedDateTime != nil {
				confirmedAt = strings.TrimSpace(*params.ConfirmedDateTime)
			}
			if confirmedAt == "" {
				missingField(vErr, "confirmedDateTime")
				break
			}
			if _, err := time.Parse(time.RFC3339, confirmedAt); err != nil {
				vErr.add("confirmedDateTime", "Invalid confirmedDateTime: must be an RFC 3339 timestamp")
				break
			}
			reason := DefaultConfirmedReason
			if params.ConfirmedReason != nil && strings.TrimSpace(*params.ConfirmedReason) != "" {
				reason = strings.TrimSpace(*params.ConfirmedReason)
			}
			patch.Status = &persistence.StatusChange{
				Status:            StatusConfirmed,
				ConfirmedDateTime: &confirmedAt,
				ConfirmedReason:   &reason,
				ExpectedRemaining: existing.AISuggestionsRemaining,
			}
		default:
			vErr.add("status", `Invalid status: must be "scheduling" or "confirmed"`)
		}
	}

	return patch, changed, vErr
}

func validateTimeSlots(slots []string) ([]string, *ValidationError) {
	vErr := &ValidationError{}
	seen := make(map[string]bool, len(slots))
	result := make([]string, 0, len(slots))
	for _, slot := range slots {
		slot = strings.TrimSpace(slot)
		if _, err := time.Parse(time.RFC3339, slot); err != nil {
			vErr.add("timeSlots", fmt.Sprintf("Invalid time slot: %q is not an RFC 3339 timestamp", slot))
			return nil, vErr
		}
		if seen[slot] {
			vErr.add("timeSlots", fmt.Sprintf("Duplicate time slot: %s", slot))
			return nil, vErr
		}
		seen[slot] = true
		result = append(result, slot)
	}
	return result, vErr
}

func validateSchedule(schedule map[string]SlotResponse) *ValidationError {
	vErr := &ValidationError{}
	slots := make([]string, 0, len(schedule))
	for slot := range schedule {
		slots = append(slots, slot)
	}
	sort.Strings(slots)
	for _, slot := range slots {
		switch schedule[slot].Status {
		case SlotAvailable, SlotMaybe, SlotUnavailable:
		default:
			vErr.add("schedule", fmt.Sprintf("Invalid status %q for slot %s", schedule[slot].Status, slot))
			return vErr
		}
	}
	return vErr
}

func parseTimestamp(value string) (time.Time, error) {
	return time.Parse(time.RFC3339, strings.TrimSpace(value))
}

func principalID(principal *Principal) string {
	if principal == nil {
		return ""
	}
	return principal.UserID
}

func toMeeting(record persistence.Meeting) Meeting {
	return Meeting{
		ID:                     record.ID,
		Title:                  record.Title,
		Description:            record.Description,
		TimeSlots:              append([]string(nil), record.TimeSlots...),
		Deadline:               record.Deadline,
		CreatorUID:             record.CreatorUID,
		Status:                 record.Status,
		ConfirmedDateTime:      record.ConfirmedDateTime,
		ConfirmedReason:        record.ConfirmedReason,
		AISuggestionsRemaining: record.AISuggestionsRemaining,
		CreatedAt:              record.CreatedAt,
		UpdatedAt:              record.UpdatedAt,
	}
}

func toAvailability(record persistence.Availability) Availability {
	schedule := make(map[string]SlotResponse, len(record.Schedule))
	for slot, response := range record.Schedule {
		schedule[slot] = SlotResponse{Status: response.Status, Comment: response.Comment}
	}
	return Availability{
		UserID:      record.UserID,
		UserName:    record.UserName,
		Schedule:    schedule,
		SubmittedAt: record.SubmittedAt,
	}
}

func toPersistenceSchedule(schedule map[string]SlotResponse) map[string]persistence.SlotResponse {
	result := make(map[string]persistence.SlotResponse, len(schedule))
	for slot, response := range schedule {
		result[slot] = persistence.SlotResponse{Status: response.Status, Comment: response.Comment}
	}
	return result
}

func toSuggestionParticipants(participants []ParticipantAvailability) []suggestion.Participant {
	result := make([]suggestion.Participant, 0, len(participants))
	for _, p := range participants {
		slots := make([]suggestion.SlotAvailability, 0, len(p.Slots))
		for _, slot := range p.Slots {
			slots = append(slots, suggestion.SlotAvailability{Time: slot.Time, Status: slot.Status, Comment: slot.Comment})
		}
		result = append(result, suggestion.Participant{Name: p.Name, Availability: slots})
	}
	return result
}

func mapRepoError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, persistence.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, persistence.ErrConflict):
		return ErrConcurrentUpdate
	}
	return err
}
